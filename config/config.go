// Package config loads the bidder configuration from a single YAML file.
//
// The file path comes from the --config flag or the BIDSTREAM_CONFIG
// environment variable. Values missing from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "BIDSTREAM_CONFIG"

// Config is the root configuration of the bidder process.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Format is the wire format used on the bus and for new storage rows:
	// json or binary.
	Format string `yaml:"format"`

	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Bus     BusConfig     `yaml:"bus"`
	Bidder  BidderConfig  `yaml:"bidder"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: console or json
	Format string `yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `yaml:"outputs"`

	Rotation RotationConfig `yaml:"rotation"`
	// Development enables caller-friendly console output and DPanic panics.
	Development bool `yaml:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool `yaml:"enable"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
	// Compression: none, lz4 or zstd
	Compression string `yaml:"compression"`
}

// BusConfig selects the message transport.
type BusConfig struct {
	// Kind: memory or nats
	Kind       string `yaml:"kind"`
	URL        string `yaml:"url"`
	Prefix     string `yaml:"prefix"`
	QueueGroup string `yaml:"queue_group"`
}

// BidderConfig configures the HTTP bidder.
type BidderConfig struct {
	// MaxBodyBytes bounds the size of a bid request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

const (
	BusMemory = "memory"
	BusNATS   = "nats"
)

// Default returns a Config populated with working defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Format: "binary",
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Storage: StorageConfig{
			Path:        "bidstream.db",
			Compression: "zstd",
		},
		Bus: BusConfig{
			Kind:   BusMemory,
			Prefix: "bidstream",
		},
		Bidder: BidderConfig{
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads the file named by BIDSTREAM_CONFIG, or returns the defaults
// when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are reported.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	switch strings.ToLower(c.Format) {
	case "json", "binary":
	default:
		errs = append(errs, fmt.Errorf("invalid format: %q", c.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %q", c.Log.Level))
	}
	if len(c.Log.Outputs) == 0 {
		errs = append(errs, errors.New("log.outputs must not be empty"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	switch strings.ToLower(c.Storage.Compression) {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("invalid storage.compression: %q", c.Storage.Compression))
	}
	switch c.Bus.Kind {
	case BusMemory:
	case BusNATS:
		if c.Bus.URL == "" {
			errs = append(errs, errors.New("bus.url is required for nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid bus.kind: %q", c.Bus.Kind))
	}
	if c.Bidder.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("bidder.max_body_bytes must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
