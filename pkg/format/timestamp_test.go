package format

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quillgo/pkg/qerrors"
)

func TestTimestampFormatter_SubsecondPrecisionVariants(t *testing.T) {
	const nanos = 1_700_000_000_123_456_789

	ms, err := NewTimestampFormatter("%H:%M:%S.%Qms", "GMT")
	require.NoError(t, err)
	require.Regexp(t, `^\d{2}:\d{2}:\d{2}\.123$`, ms.Format(nanos))

	us, err := NewTimestampFormatter("%H:%M:%S.%Qus", "GMT")
	require.NoError(t, err)
	require.Regexp(t, `^\d{2}:\d{2}:\d{2}\.123456$`, us.Format(nanos))

	ns, err := NewTimestampFormatter("%H:%M:%S.%Qns", "GMT")
	require.NoError(t, err)
	require.Regexp(t, `^\d{2}:\d{2}:\d{2}\.123456789$`, ns.Format(nanos))
}

func TestTimestampFormatter_StableWithinSameSecond(t *testing.T) {
	tf, err := NewTimestampFormatter("%Y-%m-%d %H:%M:%S.%Qns", "GMT")
	require.NoError(t, err)

	a := tf.Format(1_700_000_000_000_000_001)
	b := tf.Format(1_700_000_000_999_999_999)
	require.NotEqual(t, a, b)
	require.Equal(t, a[:19], b[:19]) // the whole-second prefix must match
}

func TestTimestampFormatter_RejectsPercentX(t *testing.T) {
	_, err := NewTimestampFormatter("%X", "GMT")
	require.ErrorIs(t, err, qerrors.ErrInvalidPattern)
}

func TestTimestampFormatter_ShorthandsExpandAtConstruction(t *testing.T) {
	tf, err := NewTimestampFormatter("%T", "GMT")
	require.NoError(t, err)
	require.Regexp(t, `^\d{2}:\d{2}:\d{2}$`, tf.Format(1_700_000_000_000_000_000))
}
