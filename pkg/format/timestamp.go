package format

import (
	"strconv"
	"strings"
	"time"

	"quillgo/pkg/qerrors"
)

// TimestampFormatter caches a formatted wall-clock string and
// incrementally updates only the sub-second digits on each call, only
// recomputing the full prefix/suffix when the whole-second bucket
// changes (SPEC_FULL §5.9 / spec.md §4.7). `%X` is unsupported; `%r`,
// `%R`, `%T` are expanded to their constituent directives at
// construction.
type TimestampFormatter struct {
	before    string // Go reference-time layout for the portion before the %Q token
	after     string // Go reference-time layout for the portion after it
	subUnit   byte   // 'm' (ms), 'u' (us), 'n' (ns), or 0 if the pattern has no %Q token
	loc       *time.Location

	cachedSecond  int64
	cachedPrefix  string
	cachedSuffix  string
	haveCache     bool
}

// NewTimestampFormatter compiles pattern for the given timezone name
// ("GMT"/"UTC" or "local"/"").
func NewTimestampFormatter(pattern, timezone string) (*TimestampFormatter, error) {
	if pattern == "" {
		pattern = "%H:%M:%S.%Qns"
	}
	pattern = expandShorthands(pattern)

	before, after, unit, err := splitSubsecondToken(pattern)
	if err != nil {
		return nil, err
	}

	beforeLayout, err := strftimeToGoLayout(before)
	if err != nil {
		return nil, err
	}
	afterLayout, err := strftimeToGoLayout(after)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	switch strings.ToLower(timezone) {
	case "", "gmt", "utc":
		loc = time.UTC
	case "local":
		loc = time.Local
	}

	return &TimestampFormatter{
		before:  beforeLayout,
		after:   afterLayout,
		subUnit: unit,
		loc:     loc,
	}, nil
}

func expandShorthands(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "%r", "%I:%M:%S %p")
	pattern = strings.ReplaceAll(pattern, "%R", "%H:%M")
	pattern = strings.ReplaceAll(pattern, "%T", "%H:%M:%S")
	return pattern
}

func splitSubsecondToken(pattern string) (before, after string, unit byte, err error) {
	for tok, u := range map[string]byte{"%Qms": 'm', "%Qus": 'u', "%Qns": 'n'} {
		if idx := strings.Index(pattern, tok); idx >= 0 {
			return pattern[:idx], pattern[idx+len(tok):], u, nil
		}
	}
	return pattern, "", 0, nil
}

var strftimeTable = map[byte]string{
	'Y': "2006", 'y': "06",
	'm': "01", 'd': "02",
	'H': "15", 'M': "04", 'S': "05",
	'I': "03", 'p': "PM",
	'k': "15", // space-padded 24h hour: approximated as zero-padded
	'l': "3",  // space-padded 12h hour: approximated as unpadded
	'a': "Mon", 'A': "Monday",
	'b': "Jan", 'B': "January",
	'Z': "MST", 'z': "-0700",
}

// strftimeToGoLayout translates a (subset of) strftime directives into
// a Go reference-time layout string. %X is explicitly unsupported and
// returns qerrors.ErrInvalidPattern, matching SPEC_FULL §5.9.
func strftimeToGoLayout(pattern string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' || i+1 >= len(pattern) {
			b.WriteByte(pattern[i])
			continue
		}
		code := pattern[i+1]
		if code == 'X' {
			return "", qerrors.ErrInvalidPattern
		}
		if code == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		if layout, ok := strftimeTable[code]; ok {
			b.WriteString(layout)
			i++
			continue
		}
		if code == 's' {
			// Unix seconds has no direct Go reference-time layout
			// token; callers using %s get it substituted at format
			// time instead of being baked into the cached layout.
			b.WriteString("\x00s")
			i++
			continue
		}
		// Unknown directive: pass through literally so a caller sees
		// their mistake in the output rather than a silent drop.
		b.WriteByte('%')
		b.WriteByte(code)
		i++
	}
	return b.String(), nil
}

// Format renders nanosSinceEpoch according to the compiled pattern.
func (tf *TimestampFormatter) Format(nanosSinceEpoch int64) string {
	sec := nanosSinceEpoch / 1e9
	frac := nanosSinceEpoch % 1e9
	if frac < 0 {
		frac += 1e9
		sec--
	}

	if !tf.haveCache || sec != tf.cachedSecond {
		t := time.Unix(sec, 0).In(tf.loc)
		tf.cachedPrefix = resolveUnixSeconds(t.Format(tf.before), sec)
		tf.cachedSuffix = resolveUnixSeconds(t.Format(tf.after), sec)
		tf.cachedSecond = sec
		tf.haveCache = true
	}

	if tf.subUnit == 0 {
		return tf.cachedPrefix + tf.cachedSuffix
	}
	return tf.cachedPrefix + subsecondDigits(frac, tf.subUnit) + tf.cachedSuffix
}

func resolveUnixSeconds(formatted string, sec int64) string {
	if !strings.Contains(formatted, "\x00s") {
		return formatted
	}
	return strings.ReplaceAll(formatted, "\x00s", strconv.FormatInt(sec, 10))
}

func subsecondDigits(frac int64, unit byte) string {
	switch unit {
	case 'm':
		return zeroPad(frac/1_000_000, 3)
	case 'u':
		return zeroPad(frac/1_000, 6)
	default: // 'n'
		return zeroPad(frac, 9)
	}
}

func zeroPad(v int64, width int) string {
	s := strconv.FormatInt(v, 10)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
