package cli

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/phenotype"
)

// ReadQueries reads organism/compound pairs from a CSV file with an
// "organism,compound" header, or from a YAML/JSON list.
func ReadQueries(path string) ([]phenotype.Query, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		var qs []phenotype.Query
		if err := decodeYAML(data, &qs); err != nil {
			return nil, err
		}
		return qs, nil
	}

	rows, cols, err := readCSV(data, []string{"organism", "compound"})
	if err != nil {
		return nil, err
	}
	qs := make([]phenotype.Query, len(rows))
	for i, row := range rows {
		qs[i] = phenotype.Query{
			Organism: strings.TrimSpace(row[cols["organism"]]),
			Compound: strings.TrimSpace(row[cols["compound"]]),
		}
	}
	return qs, nil
}

// markerColumns maps optional CSV columns to marker fact kinds.
var markerColumns = []ir.FactKind{ir.KindMec, ir.KindBetaLactamase, ir.KindInducibleMLSB}

// ReadMeasurements reads batch rows from a CSV file or a YAML/JSON list.
// The CSV header must name organism and compound; sample_id, mic, label
// and the marker columns mec, beta_lactamase and inducible_mlsb are
// optional. Empty cells are absent values.
func ReadMeasurements(path string) ([]phenotype.Measurement, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		var ms []phenotype.Measurement
		if err := decodeYAML(data, &ms); err != nil {
			return nil, err
		}
		for i := range ms {
			if err := checkMeasurement(&ms[i]); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		return ms, nil
	}

	rows, cols, err := readCSV(data, []string{"organism", "compound"})
	if err != nil {
		return nil, err
	}
	ms := make([]phenotype.Measurement, len(rows))
	for i, row := range rows {
		m := phenotype.Measurement{
			Organism: strings.TrimSpace(row[cols["organism"]]),
			Compound: strings.TrimSpace(row[cols["compound"]]),
		}
		if c, ok := cols["sample_id"]; ok {
			m.SampleID = strings.TrimSpace(row[c])
		}
		if c, ok := cols["mic"]; ok {
			if v := strings.TrimSpace(row[c]); v != "" {
				mic, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: mic: %w", i+2, err)
				}
				m.MIC = &mic
			}
		}
		if c, ok := cols["label"]; ok {
			m.Label = ir.Label(strings.TrimSpace(row[c]))
		}
		for _, kind := range markerColumns {
			c, ok := cols[string(kind)]
			if !ok {
				continue
			}
			v := strings.TrimSpace(row[c])
			if v == "" {
				continue
			}
			present, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i+2, kind, err)
			}
			m.Markers = append(m.Markers, ir.Fact{Kind: kind, Present: present})
		}
		if err := checkMeasurement(&m); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		ms[i] = m
	}
	return ms, nil
}

// checkMeasurement rejects rows without an organism or compound, with an
// unusable MIC or with a non-marker fact among the markers, and
// normalises the label.
func checkMeasurement(m *phenotype.Measurement) error {
	if m.Organism == "" || m.Compound == "" {
		return fmt.Errorf("organism and compound are required")
	}
	if m.MIC != nil {
		if err := ir.CheckMIC(*m.MIC); err != nil {
			return err
		}
	}
	for _, f := range m.Markers {
		if !f.Kind.IsMarker() {
			return fmt.Errorf("marker %s: not a marker fact", f)
		}
	}
	if m.Label != "" {
		l, ok := ir.ParseLabel(string(m.Label))
		if !ok {
			return fmt.Errorf("invalid label %q", m.Label)
		}
		m.Label = l
	}
	return nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func decodeYAML(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	return nil
}

// readCSV returns the data rows and a column index by header name. Every
// name in required must appear in the header.
func readCSV(data []byte, required []string) ([][]string, map[string]int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty input")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("header is missing column %q", name)
		}
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, cols, nil
}
