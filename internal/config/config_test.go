package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_EmptyPathAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "quillgo", cfg.App.Name)
	require.Len(t, cfg.Loggers, 1)
	require.Len(t, cfg.Sinks, 1)
	require.Equal(t, "console", cfg.Sinks[0].Type)
}

func TestLoadConfig_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
app:
  name: myservice
loggers:
  - name: app
    level: DEBUG
    sinks: [console]
sinks:
  - name: console
    type: console
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "myservice", cfg.App.Name)
	require.Equal(t, "DEBUG", cfg.Loggers[0].Level)
}

func TestValidateConfig_RejectsLoggerReferencingUndeclaredSink(t *testing.T) {
	cfg := &Config{
		Loggers: []LoggerConfig{{Name: "app", Sinks: []string{"missing"}}},
		Sinks:   []SinkConfig{{Name: "console", Type: "console"}},
	}
	err := ValidateConfig(cfg)
	require.ErrorContains(t, err, "undeclared sink")
}

func TestValidateConfig_RejectsSoftLimitAboveHardLimit(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{TransitSoftLimit: 900, TransitHardLimit: 800},
		Loggers: []LoggerConfig{{Name: "app"}},
		Sinks:   []SinkConfig{{Name: "console", Type: "console"}},
	}
	err := ValidateConfig(cfg)
	require.ErrorContains(t, err, "transit_soft_limit")
}

func TestValidateConfig_RejectsUnknownSinkType(t *testing.T) {
	cfg := &Config{
		Loggers: []LoggerConfig{{Name: "app"}},
		Sinks:   []SinkConfig{{Name: "weird", Type: "carrier-pigeon"}},
	}
	err := ValidateConfig(cfg)
	require.ErrorContains(t, err, "unknown type")
}
