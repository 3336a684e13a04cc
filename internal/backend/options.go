package backend

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorNotifier is the user-supplied callback every backend failure
// (a sink returning an error, a format failure, a dropped/blocking
// producer) is reported through instead of anywhere blocking dispatch.
type ErrorNotifier func(level_ string, message string)

func defaultNotifier(level_ string, message string) {}

// NewLogrusNotifier returns an ErrorNotifier that logs every backend
// failure through log, matching the severity in level_ to a logrus
// level (falling back to Info for an unrecognized string). This is
// the notifier a process composing a Backend normally wants in place
// of the silent defaultNotifier fallback.
func NewLogrusNotifier(log *logrus.Logger) ErrorNotifier {
	return func(level_ string, message string) {
		entry := log.WithField("component", "backend")
		switch level_ {
		case "CRITICAL":
			entry.Error(message)
		case "ERROR":
			entry.Error(message)
		case "WARNING":
			entry.Warn(message)
		default:
			entry.Info(message)
		}
	}
}

// Options configures a Worker/Backend (SPEC_FULL §5.12).
type Options struct {
	// TransitHardLimit caps how many decoded-but-undispatched events a
	// single context's transit buffer may hold before the drain step
	// stops pulling more out of that context's queue this pass. Rounded
	// up to a power of two.
	TransitHardLimit int

	// TransitSoftLimit is the threshold past which step 3 switches from
	// "emit one record, loop back to draining" to batch-emitting.
	TransitSoftLimit int

	// TimestampOrderingGracePeriod bounds how close to "now" a record's
	// timestamp may be before the worker must stop draining that
	// context this pass, to avoid emitting it ahead of an
	// earlier-timestamped record still in flight on another context.
	TimestampOrderingGracePeriod time.Duration

	// SleepDuration bounds how long the worker blocks on its doorbell
	// when there is nothing to drain, format, or dispatch.
	SleepDuration time.Duration

	// MinFlushInterval is the minimum spacing between two automatic
	// periodic sink flushes.
	MinFlushInterval time.Duration

	// ResyncInterval is how often the worker resyncs its clock anchor.
	ResyncInterval time.Duration

	// SanitizeNonPrintable enables the non-printable character escape
	// pass on formatted messages that contain a string argument.
	SanitizeNonPrintable bool

	// DrainRemainingOnStop, if true, makes Stop drain every queue to
	// empty before the final flush instead of exiting immediately.
	DrainRemainingOnStop bool

	// MaxFutureSkew and MaxPastSkew bound how far a decoded record's
	// timestamp may sit from the worker's clock before it is clamped to
	// "now" by the ClockSkewGuard. Zero disables that direction's check.
	MaxFutureSkew time.Duration
	MaxPastSkew   time.Duration

	Notifier ErrorNotifier
}

// DefaultOptions returns the engine's out-of-the-box backend tuning.
func DefaultOptions() Options {
	return Options{
		TransitHardLimit:             8192,
		TransitSoftLimit:             800,
		TimestampOrderingGracePeriod: 200 * time.Millisecond,
		SleepDuration:                1 * time.Second,
		MinFlushInterval:             1 * time.Second,
		ResyncInterval:               500 * time.Millisecond,
		SanitizeNonPrintable:         true,
		DrainRemainingOnStop:         true,
		MaxFutureSkew:                1 * time.Minute,
		MaxPastSkew:                  6 * time.Hour,
		Notifier:                     defaultNotifier,
	}
}
