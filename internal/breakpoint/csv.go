package breakpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/vicbeneder/micruler/internal/ir"
)

// Header is the column layout of a compiled breakpoint table.
var Header = []string{
	"organism",
	"compound",
	"s_threshold",
	"r_threshold",
	"exception",
	"route_of_administration",
	"indication",
	"high_exposure",
	"source",
}

// ReadCSV decodes a compiled breakpoint table. The header must match
// Header exactly. Empty source defaults to guideline.
func ReadCSV(r io.Reader) ([]ir.BreakpointRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("breakpoint table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected header %v, want %v", header, Header)
	}

	records := []ir.BreakpointRecord{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (ir.BreakpointRecord, error) {
	rec := ir.BreakpointRecord{
		Organism:   strings.TrimSpace(row[0]),
		Compound:   strings.TrimSpace(row[1]),
		Exception:  strings.TrimSpace(row[4]),
		Route:      strings.TrimSpace(row[5]),
		Indication: strings.TrimSpace(row[6]),
		Source:     ir.SourceGuideline,
	}
	if rec.Organism == "" {
		return rec, fmt.Errorf("organism is required")
	}
	if rec.Compound == "" {
		return rec, fmt.Errorf("compound is required")
	}

	var err error
	if rec.SThreshold, err = parseThreshold(row[2]); err != nil {
		return rec, fmt.Errorf("s_threshold: %w", err)
	}
	if rec.RThreshold, err = parseThreshold(row[3]); err != nil {
		return rec, fmt.Errorf("r_threshold: %w", err)
	}
	if v := strings.TrimSpace(row[7]); v != "" {
		if rec.HighExposure, err = strconv.ParseBool(v); err != nil {
			return rec, fmt.Errorf("high_exposure: %w", err)
		}
	}
	if v := strings.TrimSpace(row[8]); v != "" {
		rec.Source = ir.Source(v)
		if !ir.ValidSources[rec.Source] {
			return rec, fmt.Errorf("source: unknown value %q", v)
		}
	}
	return rec, nil
}

// parseThreshold accepts any finite number. Intrinsic resistance rows
// carry negative thresholds.
func parseThreshold(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

// WriteCSV encodes records with Header as the first row.
func WriteCSV(w io.Writer, records []ir.BreakpointRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Organism,
			r.Compound,
			ir.FormatMIC(r.SThreshold),
			ir.FormatMIC(r.RThreshold),
			r.Exception,
			r.Route,
			r.Indication,
			strconv.FormatBool(r.HighExposure),
			string(r.Source),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
