package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"quillgo/internal/backend"
	"quillgo/pkg/record"
)

// listLoggersHandler returns every registered logger's name, effective
// level, backtrace-flush level, and validity.
func (s *Server) listLoggersHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.loggers.Snapshot()
	out := make([]map[string]any, 0, len(snapshot))
	for _, l := range snapshot {
		out = append(out, map[string]any{
			"name":                  l.Name(),
			"effective_level":       l.EffectiveLevel().String(),
			"backtrace_flush_level": l.BacktraceFlushLevel().String(),
			"valid":                 l.IsValid(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggers": out})
}

// setLoggerLevelHandler changes a logger's effective level at runtime.
//
// Request body: {"level": "DEBUG"}
func (s *Server) setLoggerLevelHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	logger, ok := s.loggers.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown logger %q", name), http.StatusNotFound)
		return
	}

	var body struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	lvl, ok := record.ParseLevel(body.Level)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown level %q", body.Level), http.StatusBadRequest)
		return
	}

	logger.SetEffectiveLevel(lvl)
	s.log.WithFields(map[string]any{"logger": name, "level": lvl.String()}).Info("admin: logger level changed")
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "effective_level": lvl.String()})
}

// flushHandler triggers a flush_log round trip and
// blocks until the backend has observed it or opts.FlushTimeout
// elapses, whichever comes first. A timeout is reported but does not
// cancel the in-flight flush: the caller's producer-owned flag is
// still set by the backend once it catches up.
func (s *Server) flushHandler(w http.ResponseWriter, r *http.Request) {
	done := make(chan error, 1)
	go func() {
		done <- s.fe.FlushBlocking(s.handle, time.Millisecond)
	}()

	select {
	case err := <-done:
		if err != nil {
			http.Error(w, fmt.Sprintf("flush failed: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "flushed"})
	case <-time.After(s.opts.FlushTimeout):
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "flush in progress, timed out waiting"})
	}
}

// statsHandler reports per-producer queue occupancy, logger/sink
// counts, and backend liveness.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	contexts := s.contexts.Snapshot()
	producerStats := make([]map[string]any, 0, len(contexts))
	for _, ctx := range contexts {
		empty := true
		if ctx.Bounded != nil {
			empty = ctx.Bounded.Empty()
		} else if ctx.Unbounded != nil {
			empty = ctx.Unbounded.Empty()
		}
		entry := map[string]any{
			"id":            ctx.ID,
			"name":          ctx.Name,
			"valid":         ctx.Valid(),
			"failures":      ctx.Failures(),
			"queue_empty":   empty,
		}
		if ctx.Headers != nil {
			entry["pending_headers"] = ctx.Headers.Len()
		}
		producerStats = append(producerStats, entry)
	}

	cpuPercent, numThreads := backend.CPUAffinityHint()
	stats := map[string]any{
		"producers":    producerStats,
		"logger_count": len(s.loggers.Snapshot()),
		"sink_count":   s.sinks.Len(),
		"backend": map[string]any{
			"running":   s.be.IsRunning(),
			"thread_id": s.be.GetBackendThreadID(),
		},
		"process": map[string]any{
			"pid":         backend.ProcessIDAttribute(),
			"name":        backend.ProcessName(),
			"cpu_percent": cpuPercent,
			"num_threads": numThreads,
		},
		"timestamp": time.Now().Unix(),
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
