// Package metrics exposes quillgo's Prometheus series and the HTTP
// server that serves them, grounded on the teacher's own
// internal/metrics: a package-level set of collectors registered once
// through a safeRegister guard, plus a MetricsServer wrapping
// promhttp.Handler on its own address.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// QueueDepth reports the current occupancy of a producer's byte
	// queue, sampled by the backend's periodic maintenance pass.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quillgo",
		Name:      "queue_depth_bytes",
		Help:      "Current occupancy of a producer's byte queue.",
	}, []string{"context"})

	// DroppedRecordsTotal counts records lost to PolicyDropping or a
	// hard failure, labeled by the reason (e.g. "queue_full").
	DroppedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillgo",
		Name:      "dropped_records_total",
		Help:      "Records that never reached a sink.",
	}, []string{"reason"})

	// DispatchLatencySeconds is the time from a record entering the
	// transit buffer to being handed to every one of its sinks.
	DispatchLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quillgo",
		Name:      "dispatch_latency_seconds",
		Help:      "Time from transit-buffer enqueue to sink dispatch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"logger"})

	// BackendTickDuration measures one full iteration of the worker's
	// drain/order/dispatch/maintenance loop.
	BackendTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quillgo",
		Name:      "backend_tick_duration_seconds",
		Help:      "Duration of one backend worker loop iteration.",
		Buckets:   prometheus.DefBuckets,
	})

	// SinkIOErrorsTotal counts failed WriteLog/FlushSink calls, labeled
	// by sink name.
	SinkIOErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillgo",
		Name:      "sink_io_errors_total",
		Help:      "Failed sink writes or flushes.",
	}, []string{"sink"})

	// ClampedTimestampsTotal counts records whose recorded timestamp fell
	// outside the configured clock-skew window and was clamped to the
	// backend's current clock reading before ordering.
	ClampedTimestampsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillgo",
		Name:      "clamped_timestamps_total",
		Help:      "Record timestamps clamped for falling outside the skew window.",
	}, []string{"direction"})
)

var registerOnce sync.Once

// safeRegister re-registers the package's collectors against reg,
// ignoring an AlreadyRegisteredError — promauto already registered
// them against the default registry at package init, so this only
// matters for a caller that passes a non-default prometheus.Registerer.
func safeRegister(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

// Server serves /metrics (Prometheus exposition) and /health on its
// own address, independent of the admin introspection server.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer constructs a metrics Server bound to addr.
func NewServer(addr string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	registerOnce.Do(func() {
		safeRegister(prometheus.DefaultRegisterer, QueueDepth, DroppedRecordsTotal, DispatchLatencySeconds, BackendTickDuration, SinkIOErrorsTotal, ClampedTimestampsTotal)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

// Start launches the metrics HTTP server in the background.
func (s *Server) Start() {
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("metrics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
}

// Stop closes the metrics HTTP server immediately; metrics scraping has
// no in-flight state worth draining.
func (s *Server) Stop() error {
	return s.httpServer.Close()
}
