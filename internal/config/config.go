// Package config loads and validates the YAML configuration that
// describes a quillgo process: the backend worker's tuning knobs, the
// set of loggers and sinks to create at startup, and the admin/metrics
// HTTP surfaces. Mirrors the teacher's own internal/config: a
// LoadConfig entry point that reads a file, fills in zero-valued
// fields via defaults, and runs a ConfigValidator that accumulates
// every problem before returning.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root of a quillgo process's YAML configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Backend BackendConfig `yaml:"backend"`
	Admin   AdminConfig   `yaml:"admin"`
	Metrics MetricsConfig `yaml:"metrics"`
	Loggers []LoggerConfig `yaml:"loggers"`
	Sinks   []SinkConfig   `yaml:"sinks"`
}

// AppConfig carries process-level metadata. When the YAML leaves
// LogLevel empty it is filled from the QUILL_LOG_LEVEL environment
// variable, or "INFO" if that is unset too.
type AppConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// BackendConfig maps directly onto backend.Options.
type BackendConfig struct {
	TransitHardLimit             int           `yaml:"transit_hard_limit"`
	TransitSoftLimit              int          `yaml:"transit_soft_limit"`
	TimestampOrderingGracePeriod time.Duration `yaml:"timestamp_ordering_grace_period"`
	SleepDuration                time.Duration `yaml:"sleep_duration"`
	MinFlushInterval             time.Duration `yaml:"min_flush_interval"`
	ResyncInterval               time.Duration `yaml:"resync_interval"`
	SanitizeNonPrintable         bool          `yaml:"sanitize_non_printable"`
	DrainRemainingOnStop         bool          `yaml:"drain_remaining_on_stop"`
	MaxFutureSkew                time.Duration `yaml:"max_future_skew"`
	MaxPastSkew                  time.Duration `yaml:"max_past_skew"`
}

// AdminConfig maps onto admin.Options.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggerConfig describes one logger to create at startup.
type LoggerConfig struct {
	Name                    string   `yaml:"name"`
	Level                   string   `yaml:"level"`
	BacktraceFlushLevel     string   `yaml:"backtrace_flush_level"`
	BacktraceCapacity       int      `yaml:"backtrace_capacity"`
	ImmediateFlushThreshold uint32   `yaml:"immediate_flush_threshold"`
	Pattern                 string   `yaml:"pattern"`
	Sinks                   []string `yaml:"sinks"`
}

// SinkConfig describes one sink to create at startup. Type selects
// between the two reference sinks (SPEC_FULL §5.4): "console" or "rotating_file".
type SinkConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`         // rotating_file only
	MaxBytes    int64  `yaml:"max_bytes"`    // rotating_file only
	MaxBackups  int    `yaml:"max_backups"`  // rotating_file only
	Compress    bool   `yaml:"compress"`     // rotating_file only, gzips rotated-out files
}

// LoadConfig reads configFile (if non-empty) into a Config, fills in
// zero-valued fields via applyDefaults, and validates the result.
// An empty configFile yields an all-defaults Config; a named file that
// cannot be read or parsed is returned as an error.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configFile, err)
		}
	}

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "quillgo"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = envOr("QUILL_LOG_LEVEL", "INFO")
	}

	if cfg.Backend.TransitHardLimit == 0 {
		cfg.Backend.TransitHardLimit = 800
	}
	if cfg.Backend.TransitSoftLimit == 0 {
		cfg.Backend.TransitSoftLimit = 100
	}
	if cfg.Backend.TimestampOrderingGracePeriod == 0 {
		cfg.Backend.TimestampOrderingGracePeriod = 200 * time.Microsecond
	}
	if cfg.Backend.SleepDuration == 0 {
		cfg.Backend.SleepDuration = time.Millisecond
	}
	if cfg.Backend.MinFlushInterval == 0 {
		cfg.Backend.MinFlushInterval = time.Second
	}
	if cfg.Backend.ResyncInterval == 0 {
		cfg.Backend.ResyncInterval = 500 * time.Millisecond
	}
	if cfg.Backend.MaxFutureSkew == 0 {
		cfg.Backend.MaxFutureSkew = time.Minute
	}
	if cfg.Backend.MaxPastSkew == 0 {
		cfg.Backend.MaxPastSkew = 6 * time.Hour
	}

	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = "127.0.0.1:7730"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:7731"
	}

	if len(cfg.Loggers) == 0 {
		cfg.Loggers = []LoggerConfig{{Name: "root", Level: "INFO", Sinks: []string{"console"}}}
	}
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []SinkConfig{{Name: "console", Type: "console"}}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ValidateConfig runs a ConfigValidator over cfg and returns every
// problem found, joined into one error.
func ValidateConfig(cfg *Config) error {
	v := &configValidator{cfg: cfg}
	v.validateBackend()
	v.validateLoggers()
	v.validateSinks()
	if len(v.errs) == 0 {
		return nil
	}
	msgs := make([]string, len(v.errs))
	for i, e := range v.errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("config: %d validation error(s): %s", len(v.errs), strings.Join(msgs, "; "))
}

type configValidator struct {
	cfg  *Config
	errs []error
}

func (v *configValidator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *configValidator) validateBackend() {
	b := v.cfg.Backend
	if b.TransitSoftLimit > b.TransitHardLimit {
		v.fail("backend.transit_soft_limit (%d) must not exceed transit_hard_limit (%d)", b.TransitSoftLimit, b.TransitHardLimit)
	}
	if b.SleepDuration < 0 {
		v.fail("backend.sleep_duration must not be negative")
	}
}

func (v *configValidator) validateLoggers() {
	seen := make(map[string]bool, len(v.cfg.Loggers))
	sinkNames := make(map[string]bool, len(v.cfg.Sinks))
	for _, s := range v.cfg.Sinks {
		sinkNames[s.Name] = true
	}
	for _, l := range v.cfg.Loggers {
		if l.Name == "" {
			v.fail("logger entry missing name")
			continue
		}
		if seen[l.Name] {
			v.fail("logger %q declared more than once", l.Name)
		}
		seen[l.Name] = true
		for _, sinkName := range l.Sinks {
			if !sinkNames[sinkName] {
				v.fail("logger %q references undeclared sink %q", l.Name, sinkName)
			}
		}
	}
}

func (v *configValidator) validateSinks() {
	seen := make(map[string]bool, len(v.cfg.Sinks))
	for _, s := range v.cfg.Sinks {
		if s.Name == "" {
			v.fail("sink entry missing name")
			continue
		}
		if seen[s.Name] {
			v.fail("sink %q declared more than once", s.Name)
		}
		seen[s.Name] = true
		switch s.Type {
		case "console":
		case "rotating_file":
			if s.Path == "" {
				v.fail("sink %q: rotating_file requires path", s.Name)
			}
		default:
			v.fail("sink %q: unknown type %q", s.Name, s.Type)
		}
	}
}
