package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Engine.MaxIterations)
	assert.Equal(t, runtime.NumCPU(), cfg.Batch.Workers)
	assert.Equal(t, "micruler.db", cfg.Paths.Database)
	assert.Empty(t, cfg.Paths.Rules)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
[engine]
max_iterations = 50

[batch]
workers = 3

[paths]
breakpoints = "tables/eucast.csv"
rules = "rules"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Engine.MaxIterations)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, "tables/eucast.csv", cfg.Paths.Breakpoints)
	assert.Equal(t, "rules", cfg.Paths.Rules)
	assert.Equal(t, "micruler.db", cfg.Paths.Database)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FindsFileInWorkingDirectory(t *testing.T) {
	path := writeConfig(t, "[batch]\nworkers = 7\n")
	t.Chdir(filepath.Dir(path))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Batch.Workers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[engine]\nmax_iterations = 50\n")
	t.Setenv("MICRULER_ENGINE_MAX_ITERATIONS", "75")
	t.Setenv("MICRULER_PATHS_DATABASE", "/tmp/other.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Engine.MaxIterations)
	assert.Equal(t, "/tmp/other.db", cfg.Paths.Database)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.toml")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"zero iterations", "[engine]\nmax_iterations = 0\n", "engine.max_iterations"},
		{"negative workers", "[batch]\nworkers = -1\n", "batch.workers"},
		{"bad format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// =============================================================================
// SetDefaults / LoadWithViper
// =============================================================================

func TestSetDefaults(t *testing.T) {
	v := New()
	assert.Equal(t, 1000, v.GetInt("engine.max_iterations"))
	assert.Equal(t, "text", v.GetString("logging.format"))
}

func TestLoadWithViper_Overrides(t *testing.T) {
	v := New()
	v.Set("batch.workers", 0)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Batch.Workers)
}

// =============================================================================
// Logging
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Warn("shown", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	LoggingConfig{Level: "info", Format: "text"}.NewLogger(&buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
