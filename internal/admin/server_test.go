package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	backendpkg "quillgo/internal/backend"
	"quillgo/internal/frontend"
	"quillgo/internal/registry"
	"quillgo/pkg/format"
	"quillgo/pkg/record"
)

func testServer(t *testing.T) (*Server, *registry.LoggerManager) {
	t.Helper()
	contexts := &registry.ContextManager{}
	loggers := registry.NewLoggerManager()
	sinks := registry.NewSinkManager()

	be := backendpkg.New(contexts, loggers, sinks, backendpkg.DefaultOptions())
	fe := frontend.New(contexts, loggers, sinks, frontend.DefaultOptions(), be.Notify)

	opts := DefaultOptions()
	opts.FlushTimeout = 500 * time.Millisecond
	s, err := New(fe, be, contexts, loggers, sinks, opts, nil)
	require.NoError(t, err)
	return s, loggers
}

func TestAdmin_ListLoggersReportsRegisteredLoggers(t *testing.T) {
	s, loggers := testServer(t)
	loggers.CreateOrGet("app", nil, format.DefaultOptions(), record.LevelInfo, nil)

	req := httptest.NewRequest(http.MethodGet, "/loggers", nil)
	rec := httptest.NewRecorder()
	s.listLoggersHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Loggers []map[string]any `json:"loggers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Loggers, 1)
	require.Equal(t, "app", body.Loggers[0]["name"])
	require.Equal(t, "INFO", body.Loggers[0]["effective_level"])
}

func TestAdmin_SetLoggerLevelChangesEffectiveLevel(t *testing.T) {
	s, loggers := testServer(t)
	logger := loggers.CreateOrGet("app", nil, format.DefaultOptions(), record.LevelInfo, nil)

	body, _ := json.Marshal(map[string]string{"level": "debug"})
	req := httptest.NewRequest(http.MethodPost, "/loggers/app/level", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"name": "app"})
	rec := httptest.NewRecorder()
	s.setLoggerLevelHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, record.LevelDebug, logger.EffectiveLevel())
}

func TestAdmin_SetLoggerLevelUnknownLoggerReturns404(t *testing.T) {
	s, _ := testServer(t)
	body, _ := json.Marshal(map[string]string{"level": "debug"})
	req := httptest.NewRequest(http.MethodPost, "/loggers/missing/level", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"name": "missing"})
	rec := httptest.NewRecorder()
	s.setLoggerLevelHandler(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_StatsReportsCountsAndBackendState(t *testing.T) {
	s, loggers := testServer(t)
	loggers.CreateOrGet("app", nil, format.DefaultOptions(), record.LevelInfo, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.statsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["logger_count"])
	backendStats := body["backend"].(map[string]any)
	require.Equal(t, false, backendStats["running"])
}

func TestAdmin_FlushTimesOutWhenBackendNotRunning(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/flush", nil)
	rec := httptest.NewRecorder()
	s.flushHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}
