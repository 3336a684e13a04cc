package backend

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"quillgo/pkg/qerrors"
	"quillgo/pkg/qlog"
)

// SignalHandlerOptions configures SignalHandler (SPEC_FULL §5.14, C15).
type SignalHandlerOptions struct {
	Signals        []os.Signal
	LoggerName     string   // explicit logger whose sinks are flushed; empty picks the first valid one not excluded
	ExcludeSubstrs []string // logger names containing any of these are skipped when LoggerName is empty
	AlarmTimeout   time.Duration
	FlushTimeout   time.Duration
}

// DefaultSignalHandlerOptions matches common Unix termination signals.
func DefaultSignalHandlerOptions() SignalHandlerOptions {
	return SignalHandlerOptions{
		Signals:      []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		AlarmTimeout: 5 * time.Second,
		FlushTimeout: 2 * time.Second,
	}
}

// SignalHandler installs a process-wide handler over a configured
// signal set. The first goroutine to receive a signal wins; it picks a
// logger and, if one is found, reports the signal through the error
// notifier (INFO for SIGINT/SIGTERM, CRITICAL otherwise) and flushes
// that logger's sinks. The message is not written through the logger
// itself. It then either exits cleanly (SIGINT/SIGTERM) or re-raises
// the signal to the default handler.
type SignalHandler struct {
	opts     SignalHandlerOptions
	loggers  registryLoggerSource
	once     sync.Once
	ch       chan os.Signal
	notifier ErrorNotifier
}

// registryLoggerSource is the minimal surface SignalHandler needs to
// pick a logger, kept narrow so this file doesn't import the registry
// package's full API surface.
type registryLoggerSource interface {
	Snapshot() []*qlog.Logger
}

// NewSignalHandler installs handlers for opts.Signals and starts the
// goroutine that waits on them.
func NewSignalHandler(opts SignalHandlerOptions, loggers registryLoggerSource, notifier ErrorNotifier) *SignalHandler {
	if notifier == nil {
		notifier = defaultNotifier
	}
	h := &SignalHandler{opts: opts, loggers: loggers, notifier: notifier, ch: make(chan os.Signal, 1)}
	signal.Notify(h.ch, opts.Signals...)
	go h.loop()
	return h
}

func (h *SignalHandler) loop() {
	for sig := range h.ch {
		h.once.Do(func() { h.handle(sig) })
	}
}

func (h *SignalHandler) handle(sig os.Signal) {
	timer := time.AfterFunc(h.opts.AlarmTimeout, func() {
		h.notifier("CRITICAL", (&qerrors.SignalHandlerTimeout{Signal: sig.String()}).Error())
		h.reraise(sig)
	})
	defer timer.Stop()

	logger := h.pickLogger()
	terminal := isTerminalSignal(sig)

	if logger != nil {
		level := "INFO"
		msg := fmt.Sprintf("Received signal %s", sig)
		if !terminal {
			level = "CRITICAL"
			msg = fmt.Sprintf("Program terminated unexpectedly by signal %s", sig)
		}
		h.notifier(level, msg)
		h.flushLogger(logger)
	}

	if terminal {
		os.Exit(0)
	}
	h.reraise(sig)
}

func (h *SignalHandler) flushLogger(logger *qlog.Logger) {
	done := make(chan struct{})
	go func() {
		for _, s := range logger.Sinks() {
			s.FlushSink()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(h.opts.FlushTimeout):
	}
}

func (h *SignalHandler) pickLogger() *qlog.Logger {
	for _, l := range h.loggers.Snapshot() {
		if h.opts.LoggerName != "" {
			if l.Name() == h.opts.LoggerName {
				return l
			}
			continue
		}
		if !l.IsValid() {
			continue
		}
		excluded := false
		for _, sub := range h.opts.ExcludeSubstrs {
			if strings.Contains(l.Name(), sub) {
				excluded = true
				break
			}
		}
		if !excluded {
			return l
		}
	}
	return nil
}

func (h *SignalHandler) reraise(sig os.Signal) {
	signal.Reset(sig)
	pid := os.Getpid()
	if p, err := os.FindProcess(pid); err == nil {
		p.Signal(sig)
	}
}

func isTerminalSignal(sig os.Signal) bool {
	return sig == syscall.SIGINT || sig == syscall.SIGTERM
}
