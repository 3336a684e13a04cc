// Package app wires the engine's pieces into a runnable process: load
// configuration, stand up the registries, frontend, and backend
// worker, create the configured loggers and sinks, and optionally run
// the admin and metrics HTTP surfaces alongside them.
//
// App mirrors the teacher's own internal/app in shape (New loads and
// validates config then initializes components; Start/Stop/Run manage
// the process lifecycle) but every component it wires is quillgo's
// own: there is no dispatcher, no file/container monitor, no security
// or SLO manager here, because none of those have a place in an
// in-process logging engine.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"quillgo/internal/admin"
	"quillgo/internal/backend"
	"quillgo/internal/config"
	"quillgo/internal/frontend"
	"quillgo/internal/metrics"
	"quillgo/internal/registry"
	"quillgo/pkg/format"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

// App coordinates one process's worth of quillgo components.
type App struct {
	config *config.Config
	logger *logrus.Logger

	contexts *registry.ContextManager
	loggers  *registry.LoggerManager
	sinks    *registry.SinkManager

	frontend *frontend.Frontend
	backend  *backend.Backend

	admin   *admin.Server
	metrics *metrics.Server

	closers []func() error // rotating file sinks etc. closed on Stop
}

// New loads configFile (empty means defaults only), validates it, and
// builds every component named in it: the registries, the frontend,
// the backend worker (not yet started), the configured sinks and
// loggers, and the admin/metrics HTTP servers if enabled. It does not
// start the backend goroutine or bind any HTTP listener; call Start
// or Run for that.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("app: failed to load config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// No exporter is registered: spans are created (and the backend's
	// per-dispatch-batch span attributes are computed) but nothing
	// ships them anywhere, since no SPEC_FULL component is an exporter
	// destination. A caller embedding quillgo in a process that already
	// runs its own TracerProvider can call otel.SetTracerProvider
	// itself before App.New to override this.
	otel.SetTracerProvider(sdktrace.NewTracerProvider())

	a := &App{
		config:   cfg,
		logger:   logger,
		contexts: &registry.ContextManager{},
		loggers:  registry.NewLoggerManager(),
		sinks:    registry.NewSinkManager(),
	}

	backendOpts := backend.Options{
		TransitHardLimit:             cfg.Backend.TransitHardLimit,
		TransitSoftLimit:             cfg.Backend.TransitSoftLimit,
		TimestampOrderingGracePeriod: cfg.Backend.TimestampOrderingGracePeriod,
		SleepDuration:                cfg.Backend.SleepDuration,
		MinFlushInterval:             cfg.Backend.MinFlushInterval,
		ResyncInterval:               cfg.Backend.ResyncInterval,
		SanitizeNonPrintable:         cfg.Backend.SanitizeNonPrintable,
		DrainRemainingOnStop:         cfg.Backend.DrainRemainingOnStop,
		MaxFutureSkew:                cfg.Backend.MaxFutureSkew,
		MaxPastSkew:                  cfg.Backend.MaxPastSkew,
		Notifier:                     backend.NewLogrusNotifier(logger),
	}
	a.backend = backend.New(a.contexts, a.loggers, a.sinks, backendOpts)
	a.frontend = frontend.New(a.contexts, a.loggers, a.sinks, frontend.DefaultOptions(), a.backend.Notify)

	if err := a.initSinks(); err != nil {
		return nil, fmt.Errorf("app: failed to initialize sinks: %w", err)
	}
	if err := a.initLoggers(); err != nil {
		return nil, fmt.Errorf("app: failed to initialize loggers: %w", err)
	}
	if err := a.initAdmin(); err != nil {
		return nil, fmt.Errorf("app: failed to initialize admin server: %w", err)
	}
	a.initMetrics()

	return a, nil
}

// initSinks constructs one sink.Sink per configured SinkConfig and
// registers it with the frontend under its configured name.
func (a *App) initSinks() error {
	for _, sc := range a.config.Sinks {
		var s sink.Sink
		switch sc.Type {
		case "console":
			s = sink.NewConsoleSink(sc.Name, os.Stdout, int32(record.LevelBacktrace))
		case "rotating_file":
			rfs, err := sink.NewRotatingFileSink(sc.Name, sc.Path, sink.RotationPolicy{
				MaxSizeBytes: sc.MaxBytes,
				MaxFiles:     sc.MaxBackups,
				Compress:     sc.Compress,
			}, int32(record.LevelBacktrace))
			if err != nil {
				return fmt.Errorf("sink %q: %w", sc.Name, err)
			}
			s = rfs
			a.closers = append(a.closers, rfs.Close)
		default:
			return fmt.Errorf("sink %q: unknown type %q", sc.Name, sc.Type)
		}
		if _, err := a.frontend.CreateOrGetSink(sc.Name, s); err != nil {
			return fmt.Errorf("sink %q: %w", sc.Name, err)
		}
	}
	return nil
}

// initLoggers constructs one qlog.Logger per configured LoggerConfig,
// resolving its sink names to the handles initSinks already registered.
func (a *App) initLoggers() error {
	for _, lc := range a.config.Loggers {
		handles := make([]*sink.Handle, 0, len(lc.Sinks))
		for _, sinkName := range lc.Sinks {
			h, ok := a.sinks.Get(sinkName)
			if !ok {
				return fmt.Errorf("logger %q: sink %q not registered", lc.Name, sinkName)
			}
			handles = append(handles, h)
		}

		level := record.LevelInfo
		if lc.Level != "" {
			if lvl, ok := record.ParseLevel(lc.Level); ok {
				level = lvl
			}
		}

		opts := format.DefaultOptions()
		if lc.Pattern != "" {
			opts.Pattern = lc.Pattern
		}

		logger := a.frontend.CreateOrGetLogger(lc.Name, handles, opts, level, nil)

		if lc.ImmediateFlushThreshold > 0 {
			logger.SetImmediateFlushThreshold(lc.ImmediateFlushThreshold)
		}

		if lc.BacktraceCapacity > 0 {
			logger.InitBacktrace(lc.BacktraceCapacity)
			btLevel := record.LevelNone
			if lc.BacktraceFlushLevel != "" {
				if lvl, ok := record.ParseLevel(lc.BacktraceFlushLevel); ok {
					btLevel = lvl
				}
			}
			logger.SetBacktraceFlushLevel(btLevel)
		}
	}
	return nil
}

func (a *App) initAdmin() error {
	if !a.config.Admin.Enabled {
		return nil
	}
	opts := admin.DefaultOptions()
	opts.Addr = a.config.Admin.Addr
	srv, err := admin.New(a.frontend, a.backend, a.contexts, a.loggers, a.sinks, opts, a.logger)
	if err != nil {
		return err
	}
	a.admin = srv
	return nil
}

func (a *App) initMetrics() {
	if !a.config.Metrics.Enabled {
		return
	}
	a.metrics = metrics.NewServer(a.config.Metrics.Addr, a.logger)
}

// Start launches the backend worker and any enabled HTTP surfaces.
// Returns qerrors.ErrDuplicateBackend if another backend worker
// already holds the process lock.
func (a *App) Start() error {
	a.logger.WithField("app", a.config.App.Name).Info("starting quillgo")
	if err := a.backend.Start(); err != nil {
		return fmt.Errorf("app: failed to start backend: %w", err)
	}
	if a.admin != nil {
		a.admin.Start()
	}
	if a.metrics != nil {
		a.metrics.Start()
	}
	a.logger.Info("quillgo started")
	return nil
}

// Stop shuts the HTTP surfaces down, drains and stops the backend
// worker, and closes any sinks that own an OS resource (rotating file
// handles). Errors from individual components are logged but do not
// prevent the rest of shutdown from proceeding.
func (a *App) Stop() error {
	a.logger.Info("stopping quillgo")

	if a.admin != nil {
		if err := a.admin.Stop(); err != nil {
			a.logger.WithError(err).Error("failed to stop admin server")
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(); err != nil {
			a.logger.WithError(err).Error("failed to stop metrics server")
		}
	}

	a.backend.Stop()

	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.logger.WithError(err).Error("failed to close sink")
		}
	}

	a.logger.Info("quillgo stopped")
	return nil
}

// Run starts the application and blocks until SIGINT or SIGTERM is
// received, then performs a graceful Stop. This is the composition
// root's own shutdown path; it does not use backend.SignalHandler,
// which is a separate, lower-level safety net meant for flushing a
// single logger on a signal the process was not otherwise expecting to
// handle (see internal/backend/signal.go) rather than for orchestrating
// an orderly multi-component shutdown.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	a.logger.Info("shutdown signal received")
	return a.Stop()
}
