package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteMetrics dumps the default Prometheus registry to path in the text
// exposition format. "-" writes to stdout.
func WriteMetrics(path string) error {
	if path == "-" {
		return writeMetrics(os.Stdout, prometheus.DefaultGatherer)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := writeMetrics(f, prometheus.DefaultGatherer); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
