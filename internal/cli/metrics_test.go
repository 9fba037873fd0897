package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMetrics_TextFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rows_total", Help: "Rows."})
	reg.MustRegister(c)
	c.Add(3)

	buf := &bytes.Buffer{}
	require.NoError(t, writeMetrics(buf, reg))
	assert.Equal(t, "# HELP test_rows_total Rows.\n# TYPE test_rows_total counter\ntest_rows_total 3\n", buf.String())
}

func TestWriteMetrics_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, WriteMetrics(path))
	assert.Contains(t, readFileString(t, path), "# TYPE")
}

func TestWriteMetrics_Unwritable(t *testing.T) {
	err := WriteMetrics(filepath.Join(t.TempDir(), "missing", "metrics.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create metrics file")
}
