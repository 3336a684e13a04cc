// Package admin implements the operational HTTP introspection surface:
// listing loggers and their levels, triggering a flush, and dumping
// queue/backend statistics. Not part of the source library's own
// surface; carried as the ambient ops posture a production async
// logger needs, mirroring the way the teacher's own internal/app runs
// a gorilla/mux-routed HTTP server alongside its core pipeline.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"quillgo/internal/backend"
	"quillgo/internal/frontend"
	"quillgo/internal/registry"
)

// Server is the introspection HTTP surface bound to one process's
// registries and backend. It owns a single ProducerHandle, used only
// for emitting the control events (flush) this surface triggers.
type Server struct {
	opts Options
	log  *logrus.Logger

	fe       *frontend.Frontend
	be       *backend.Backend
	contexts *registry.ContextManager
	loggers  *registry.LoggerManager
	sinks    *registry.SinkManager

	handle *frontend.ProducerHandle

	httpServer *http.Server
}

// New wires a Server; it does not start listening until Start is called.
func New(fe *frontend.Frontend, be *backend.Backend, contexts *registry.ContextManager, loggers *registry.LoggerManager, sinks *registry.SinkManager, opts Options, log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.New()
	}
	handle, err := fe.Handle()
	if err != nil {
		return nil, fmt.Errorf("admin: failed to acquire producer handle: %w", err)
	}

	s := &Server{
		opts:     opts,
		log:      log,
		fe:       fe,
		be:       be,
		contexts: contexts,
		loggers:  loggers,
		sinks:    sinks,
		handle:   handle,
	}

	router := mux.NewRouter()
	s.registerHandlers(router)
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s, nil
}

// Start launches the HTTP server in a background goroutine. Bind
// errors other than a clean shutdown are logged, mirroring the
// teacher's fire-and-forget ListenAndServe goroutine.
func (s *Server) Start() {
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("admin server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("admin server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts the HTTP server down within opts.ShutdownTimeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware records each request's method, path, status, and
// latency through the server's own logrus logger, matching the
// teacher's metricsMiddleware shape but logging instead of exporting a
// Prometheus histogram (that concern is already covered by
// internal/metrics for the hot dispatch path).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start).String(),
		}).Debug("admin request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) registerHandlers(router *mux.Router) {
	router.Handle("/loggers", s.loggingMiddleware(http.HandlerFunc(s.listLoggersHandler))).Methods("GET")
	router.Handle("/loggers/{name}/level", s.loggingMiddleware(http.HandlerFunc(s.setLoggerLevelHandler))).Methods("POST")
	router.Handle("/flush", s.loggingMiddleware(http.HandlerFunc(s.flushHandler))).Methods("POST")
	router.Handle("/stats", s.loggingMiddleware(http.HandlerFunc(s.statsHandler))).Methods("GET")
}
