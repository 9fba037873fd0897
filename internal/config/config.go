// Package config loads micruler settings from a TOML file, MICRULER_*
// environment variables and built-in defaults, in that order of
// increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// DefaultFileName is the config file looked up in the working directory
// when no explicit path is given.
const DefaultFileName = "micruler.toml"

// EnvPrefix prefixes every environment override, e.g.
// MICRULER_ENGINE_MAX_ITERATIONS.
const EnvPrefix = "MICRULER"

// Config is the full micruler configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig bounds a single inference run.
type EngineConfig struct {
	MaxIterations int `mapstructure:"max_iterations"` // rule firings per sample (default: 1000)
}

// BatchConfig controls batch fan-out.
type BatchConfig struct {
	Workers int `mapstructure:"workers"` // concurrent samples (default: NumCPU)
}

// PathsConfig locates reference data. Empty paths select the embedded
// defaults.
type PathsConfig struct {
	Breakpoints string `mapstructure:"breakpoints"` // compiled table CSV
	Catalog     string `mapstructure:"catalog"`     // compound classes + phenotype groups YAML
	Taxonomy    string `mapstructure:"taxonomy"`    // taxonomy node list YAML
	Rules       string `mapstructure:"rules"`       // directory of .cue rule files
	Database    string `mapstructure:"database"`    // SQLite store for compiled tables
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// SetDefaults registers default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_iterations", 1000)
	v.SetDefault("batch.workers", runtime.NumCPU())

	v.SetDefault("paths.breakpoints", "")
	v.SetDefault("paths.catalog", "")
	v.SetDefault("paths.taxonomy", "")
	v.SetDefault("paths.rules", "")
	v.SetDefault("paths.database", "micruler.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// New returns a viper instance with defaults and environment binding
// applied but no config file read.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration from path. An empty path looks for
// micruler.toml in the working directory and silently falls back to
// defaults when it is absent; an explicit path that cannot be read is an
// error.
func Load(path string) (*Config, error) {
	v := New()
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".toml"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper unmarshals and validates configuration from a prepared
// viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Engine.MaxIterations <= 0 {
		return fmt.Errorf("engine.max_iterations must be > 0, got %d", c.Engine.MaxIterations)
	}
	// 0 selects NumCPU at the ruler.
	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must be >= 0, got %d", c.Batch.Workers)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}
