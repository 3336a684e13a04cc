package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestNew_DefaultsOnlyConfig(t *testing.T) {
	a, err := New("")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "quillgo", a.config.App.Name)
	assert.Equal(t, 1, len(a.config.Loggers))

	logger, ok := a.loggers.Get("root")
	require.True(t, ok)
	assert.True(t, logger.IsValid())
}

func TestNew_InvalidSinkReferenceFails(t *testing.T) {
	configFile := writeConfig(t, `
loggers:
  - name: root
    sinks: ["missing"]
sinks:
  - name: console
    type: console
`)
	a, err := New(configFile)
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestNew_RotatingFileSinkOpensConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	configFile := writeConfig(t, `
loggers:
  - name: root
    level: INFO
    sinks: ["file"]
sinks:
  - name: file
    type: rotating_file
    path: `+logPath+`
    max_bytes: 1048576
`)
	a, err := New(configFile)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Len(t, a.closers, 1)
	require.FileExists(t, logPath)
}

func TestApp_StartStopLifecycle(t *testing.T) {
	a, err := New("")
	require.NoError(t, err)

	require.NoError(t, a.Start())
	require.NoError(t, a.Stop())
}

func TestApp_StartStopWithAdminAndMetricsEnabled(t *testing.T) {
	configFile := writeConfig(t, `
admin:
  enabled: true
  addr: "127.0.0.1:0"
metrics:
  enabled: true
  addr: "127.0.0.1:0"
`)
	a, err := New(configFile)
	require.NoError(t, err)
	require.NotNil(t, a.admin)
	require.NotNil(t, a.metrics)

	require.NoError(t, a.Start())
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Stop())
}
