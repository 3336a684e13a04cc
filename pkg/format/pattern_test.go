package format

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quillgo/pkg/qerrors"
	"quillgo/pkg/record"
)

func TestPatternFormatter_DefaultPatternRoundTrip(t *testing.T) {
	pf, err := NewPatternFormatter(DefaultOptions())
	require.NoError(t, err)

	meta := record.NewMacroMetadata("/src/app/main.go", "main.run", "", "", 42, record.LevelInfo, record.EventLog)
	out := pf.Format(Event{
		TimestampNanos: 1_700_000_000_123_456_789,
		Level:          record.LevelInfo,
		LoggerName:     "root",
		Meta:           meta,
		ThreadID:       "7",
		Message:        "hello world",
	})
	require.Len(t, out, 1)
	require.Contains(t, out[0], "main.go:42")
	require.Contains(t, out[0], "hello world")
	require.Contains(t, out[0], "[7]")
	require.Contains(t, out[0], "INFO")
}

func TestPatternFormatter_UnknownAttributeIsInvalid(t *testing.T) {
	_, err := NewPatternFormatter(Options{Pattern: "%(not_a_real_attribute)"})
	require.ErrorIs(t, err, qerrors.ErrInvalidPattern)
}

func TestPatternFormatter_UnbalancedParensIsInvalid(t *testing.T) {
	_, err := NewPatternFormatter(Options{Pattern: "%(time"})
	require.ErrorIs(t, err, qerrors.ErrInvalidPattern)
}

func TestPatternFormatter_AlignmentAndWidth(t *testing.T) {
	pf, err := NewPatternFormatter(Options{Pattern: "%(log_level:<9)|%(log_level:>9)|%(log_level:^9)"})
	require.NoError(t, err)

	out := pf.Format(Event{Level: record.LevelInfo})
	require.Len(t, out, 1)
	require.Equal(t, "INFO     |     INFO|  INFO   ", out[0])
}

func TestPatternFormatter_MultiLineSplitsWhenEnabled(t *testing.T) {
	pf, err := NewPatternFormatter(Options{
		Pattern:                    "%(message)",
		Suffix:                     SuffixNone,
		AddMetadataToMultiLineLogs: true,
	})
	require.NoError(t, err)

	out := pf.Format(Event{Message: "line1\nline2\nline3"})
	require.Equal(t, []string{"line1", "line2", "line3"}, out)
}

func TestPatternFormatter_NamedArgsPreserveInsertionOrder(t *testing.T) {
	pf, err := NewPatternFormatter(Options{Pattern: "%(named_args)", Suffix: SuffixNone})
	require.NoError(t, err)

	na := record.NewNamedArgs()
	na.Append("z", "1")
	na.Append("a", "2")
	na.Append("m", "3")

	out := pf.Format(Event{Named: na})
	require.Equal(t, []string{"z=1 a=2 m=3"}, out)
}

func TestPatternFormatter_UsesReflectsCompiledPattern(t *testing.T) {
	pf, err := NewPatternFormatter(Options{Pattern: "%(message)"})
	require.NoError(t, err)
	require.True(t, pf.Uses(AttrMessage))
	require.False(t, pf.Uses(AttrLogLevel))
}
