// Package config holds the VM configuration: interpreter limits, class
// sources, the class archive store and the observability endpoints.
package config

import (
	"fmt"
	"time"

	"github.com/fluxorio/jvm/pkg/classfile"
)

// EnvPrefix is the environment variable prefix for overrides, e.g.
// JVM_MAX_CALL_DEPTH or JVM_STORE_DSN.
const EnvPrefix = "JVM"

// Config is the full VM configuration.
type Config struct {
	MaxCallDepth    int      `yaml:"max_call_depth" json:"max_call_depth"`
	MaxHeapObjects  int      `yaml:"max_heap_objects" json:"max_heap_objects"` // 0 is unbounded
	TrackLeaks      bool     `yaml:"track_leaks" json:"track_leaks"`
	SimulateSystem  bool     `yaml:"simulate_system" json:"simulate_system"`
	MinMajorVersion int      `yaml:"min_major_version" json:"min_major_version"`
	MaxMajorVersion int      `yaml:"max_major_version" json:"max_major_version"`
	ClassPath       []string `yaml:"class_path" json:"class_path"`

	Store   StoreConfig   `yaml:"store" json:"store"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Trace   TraceConfig   `yaml:"trace" json:"trace"`
}

// StoreConfig configures the SQL class archive. An empty DSN disables it.
type StoreConfig struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type TraceConfig struct {
	Exporter string `yaml:"exporter" json:"exporter"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MaxCallDepth:    1024,
		MaxHeapObjects:  1 << 20,
		TrackLeaks:      true,
		SimulateSystem:  true,
		MinMajorVersion: int(classfile.MinSupportedMajor),
		MaxMajorVersion: int(classfile.MaxSupportedMajor),
		Store: StoreConfig{
			Driver:          "sqlite3",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Addr: ":9102"},
		Trace:   TraceConfig{Exporter: "none"},
	}
}

// Load reads path over the defaults, applies JVM_* environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := Decode(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := ApplyEnvOverrides(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseOptions returns the class-file parser options for the configured
// version range.
func (c *Config) ParseOptions() []classfile.Option {
	return []classfile.Option{classfile.WithVersionRange(uint16(c.MinMajorVersion), uint16(c.MaxMajorVersion))}
}
