// Package config provides configuration types and defaults for connreg.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/tracing"
)

// Config holds all configuration options for connreg.
type Config struct {
	DBPath    string          `mapstructure:"db_path"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Search    SearchConfig    `mapstructure:"search"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// NotifyConfig controls how change notices travel between processes.
type NotifyConfig struct {
	// Debounce coalesces bursts of database file events before the change
	// log is read.
	// Default: 50ms
	Debounce time.Duration `mapstructure:"debounce"`

	// PollInterval also reads the change log on a timer, for filesystems
	// that drop change events. Zero disables polling.
	// Default: 0
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Retain is how many change notices are kept in the database.
	// Default: 256
	Retain int `mapstructure:"retain"`
}

// DiscoveryConfig controls the read-only discovered category.
type DiscoveryConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// File is the YAML file listing discovered services. Another program
	// (an mDNS browser, a script) keeps it up to date.
	// Default: ~/.config/connreg/discovered.yaml
	File string `mapstructure:"file"`

	// Debounce coalesces bursts of writes to File.
	// Default: 100ms
	Debounce time.Duration `mapstructure:"debounce"`
}

// SearchConfig controls the host filter.
type SearchConfig struct {
	// CacheTTL is how long a filtered host list is memoised per tree
	// generation. Zero disables the memo.
	// Default: 1m
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Debug bool   `mapstructure:"debug"`
	Level string `mapstructure:"level"` // "debug", "info", "warn" or "error"
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/connreg/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// ToTracing converts to the tracing package's config.
func (t TracingConfig) ToTracing() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = t.Enabled
	if t.Exporter != "" {
		cfg.Exporter = t.Exporter
	}
	cfg.FilePath = t.FilePath
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	if t.SampleRate > 0 {
		cfg.SampleRate = t.SampleRate
	}
	return cfg
}

// DefaultDir returns ~/.config/connreg, or "" when the home directory is
// unavailable.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "connreg")
}

func defaultPath(elem ...string) string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

// DefaultDBPath returns the registry database every application shares.
func DefaultDBPath() string {
	return defaultPath("registry.db")
}

// DefaultDiscoveryFile returns the default discovered-services file.
func DefaultDiscoveryFile() string {
	return defaultPath("discovered.yaml")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	return defaultPath("traces", "traces.jsonl")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return defaultPath("config.yaml")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DBPath: DefaultDBPath(),
		Notify: NotifyConfig{
			Debounce: 50 * time.Millisecond,
			Retain:   256,
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			File:     DefaultDiscoveryFile(),
			Debounce: 100 * time.Millisecond,
		},
		Search: SearchConfig{
			CacheTTL: time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if err := ValidateNotify(c.Notify); err != nil {
		return err
	}
	if err := ValidateDiscovery(c.Discovery); err != nil {
		return err
	}
	if c.Search.CacheTTL < 0 {
		return fmt.Errorf("search.cache_ttl must not be negative, got %v", c.Search.CacheTTL)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateNotify checks notifier configuration for errors.
func ValidateNotify(n NotifyConfig) error {
	if n.Debounce < 0 {
		return fmt.Errorf("notify.debounce must not be negative, got %v", n.Debounce)
	}
	if n.PollInterval < 0 {
		return fmt.Errorf("notify.poll_interval must not be negative, got %v", n.PollInterval)
	}
	if n.Retain < 0 {
		return fmt.Errorf("notify.retain must not be negative, got %d", n.Retain)
	}
	return nil
}

// ValidateDiscovery checks discovery configuration for errors. The file is
// only required when discovery is enabled.
func ValidateDiscovery(d DiscoveryConfig) error {
	if d.Enabled && d.File == "" {
		return fmt.Errorf("discovery.file is required when discovery is enabled")
	}
	if d.Debounce < 0 {
		return fmt.Errorf("discovery.debounce must not be negative, got %v", d.Debounce)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	// Validate SampleRate is in range [0.0, 1.0]
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# connreg configuration

# Registry database shared by every application on this machine
# db_path: ~/.config/connreg/registry.db

# Change notices between processes
notify:
  debounce: 50ms        # Coalesce database file events
  poll_interval: 0s     # Also poll the change log (0 disables)
  retain: 256           # Change notices kept in the database

# Read-only category filled from a discovered-services file
discovery:
  enabled: false
  # file: ~/.config/connreg/discovered.yaml
  debounce: 100ms

# Host filter
search:
  cache_ttl: 1m         # Memoise filtered lists per tree generation (0 disables)

# Debug log (also enabled with --debug or CONNREG_DEBUG=1)
log:
  # file: ~/.config/connreg/debug.log
  debug: false
  level: info

# Distributed tracing
# tracing:
#   enabled: true
#   exporter: file
#   file_path: ~/.config/connreg/traces/traces.jsonl
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
