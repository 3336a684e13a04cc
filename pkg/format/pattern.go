// Package format implements the pattern compiler (C9) and the
// incremental timestamp formatter (C10) described in SPEC_FULL §5.8-5.9.
package format

import (
	"strconv"
	"strings"

	"quillgo/pkg/qerrors"
	"quillgo/pkg/record"
)

// Attribute enumerates the closed set of tokens a pattern may
// reference, exactly as listed in SPEC_FULL / spec.md §4.6.
type Attribute int

const (
	AttrTime Attribute = iota
	AttrFileName
	AttrCallerFunction
	AttrLogLevel
	AttrLogLevelShortCode
	AttrLineNumber
	AttrLogger
	AttrFullPath
	AttrThreadID
	AttrThreadName
	AttrProcessID
	AttrSourceLocation
	AttrShortSourceLocation
	AttrMessage
	AttrTags
	AttrNamedArgs
	attrCount
)

var attrNames = map[string]Attribute{
	"time":                  AttrTime,
	"file_name":             AttrFileName,
	"caller_function":       AttrCallerFunction,
	"log_level":             AttrLogLevel,
	"log_level_short_code":  AttrLogLevelShortCode,
	"line_number":           AttrLineNumber,
	"logger":                AttrLogger,
	"full_path":             AttrFullPath,
	"thread_id":             AttrThreadID,
	"thread_name":           AttrThreadName,
	"process_id":            AttrProcessID,
	"source_location":       AttrSourceLocation,
	"short_source_location": AttrShortSourceLocation,
	"message":               AttrMessage,
	"tags":                  AttrTags,
	"named_args":            AttrNamedArgs,
}

// PatternSuffix controls what, if anything, is appended after each
// formatted record.
type PatternSuffix int

const (
	SuffixNewline PatternSuffix = iota
	SuffixNone
	SuffixCustom
)

// Options configures a PatternFormatter.
type Options struct {
	Pattern                     string
	TimestampPattern             string
	Timezone                     string // "GMT" or "local"
	Suffix                       PatternSuffix
	CustomSuffix                 byte
	AddMetadataToMultiLineLogs   bool
	StripPathPrefix              string
	RemoveRelativePathSegments   bool
}

// DefaultOptions mirrors the source library's out-of-the-box pattern.
func DefaultOptions() Options {
	return Options{
		Pattern:          "%(time) [%(thread_id)] %(file_name):%(line_number) %(log_level) %(logger) - %(message)",
		TimestampPattern: "%H:%M:%S.%Qns",
		Timezone:         "GMT",
		Suffix:           SuffixNewline,
	}
}

type segment struct {
	literal string    // non-empty for literal pieces
	isAttr  bool
	attr    Attribute
	align   byte // '<', '>', '^', or 0
	width   int
}

// PatternFormatter compiles a pattern once and reuses the compiled
// segment list (and a single reusable strings.Builder) on every Format
// call, avoiding per-event allocation of the format plan.
type PatternFormatter struct {
	opts       Options
	segments   []segment
	used       [attrCount]bool
	ts         *TimestampFormatter
	buf        strings.Builder
}

// Event carries every value a pattern might reference. Callers fill in
// only the fields their pattern's attribute bitset actually needs;
// PatternFormatter's Uses method tells callers which fields matter, letting
// the backend skip populating attributes no pattern in play requires
// (SPEC_FULL §5.8).
type Event struct {
	TimestampNanos       int64
	Level                record.Level
	LoggerName           string
	Meta                 *record.MacroMetadata
	ThreadID             string
	ThreadName           string
	ProcessID             string
	Message              string
	Named                *record.NamedArgs
}

// NewPatternFormatter compiles pattern into a reusable formatter. It
// returns qerrors.ErrInvalidPattern if the pattern references an
// unknown attribute or has unbalanced "%(" / ")" delimiters.
func NewPatternFormatter(opts Options) (*PatternFormatter, error) {
	if opts.Pattern == "" {
		opts = DefaultOptions()
	}
	pf := &PatternFormatter{opts: opts}

	segs, used, err := compilePattern(opts.Pattern)
	if err != nil {
		return nil, err
	}
	pf.segments = segs
	pf.used = used

	ts, err := NewTimestampFormatter(opts.TimestampPattern, opts.Timezone)
	if err != nil {
		return nil, err
	}
	pf.ts = ts

	return pf, nil
}

// Uses reports whether the compiled pattern references attr, so the
// backend can skip computing fields no sink's pattern needs.
func (pf *PatternFormatter) Uses(attr Attribute) bool { return pf.used[attr] }

func compilePattern(pattern string) ([]segment, [attrCount]bool, error) {
	var segs []segment
	var used [attrCount]bool

	i := 0
	for i < len(pattern) {
		start := strings.Index(pattern[i:], "%(")
		if start < 0 {
			segs = append(segs, segment{literal: pattern[i:]})
			break
		}
		start += i
		if start > i {
			segs = append(segs, segment{literal: pattern[i:start]})
		}
		end := strings.IndexByte(pattern[start:], ')')
		if end < 0 {
			return nil, used, qerrors.ErrInvalidPattern
		}
		end += start
		inner := pattern[start+2 : end]

		name := inner
		spec := ""
		if idx := strings.IndexByte(inner, ':'); idx >= 0 {
			name = inner[:idx]
			spec = inner[idx+1:]
		}

		attr, ok := attrNames[name]
		if !ok {
			return nil, used, qerrors.ErrInvalidPattern
		}
		used[attr] = true

		sg := segment{isAttr: true, attr: attr}
		if spec != "" {
			align, width, err := parseSpec(spec)
			if err != nil {
				return nil, used, err
			}
			sg.align, sg.width = align, width
		}
		segs = append(segs, sg)

		i = end + 1
	}

	return segs, used, nil
}

func parseSpec(spec string) (align byte, width int, err error) {
	if len(spec) == 0 {
		return 0, 0, nil
	}
	if spec[0] == '<' || spec[0] == '>' || spec[0] == '^' {
		align = spec[0]
		spec = spec[1:]
	}
	if spec == "" {
		return align, 0, nil
	}
	w, convErr := strconv.Atoi(spec)
	if convErr != nil {
		return 0, 0, qerrors.ErrInvalidPattern
	}
	return align, w, nil
}

// Format renders ev according to the compiled pattern, returning one
// complete record including the configured suffix. If the pattern body
// contains embedded newlines and AddMetadataToMultiLineLogs is set (and
// no named args are present), each line is returned as its own
// formatted record.
func (pf *PatternFormatter) Format(ev Event) []string {
	if pf.opts.AddMetadataToMultiLineLogs && (ev.Named == nil || ev.Named.Len() == 0) && strings.Contains(ev.Message, "\n") {
		lines := strings.Split(ev.Message, "\n")
		out := make([]string, 0, len(lines))
		for _, line := range lines {
			sub := ev
			sub.Message = line
			out = append(out, pf.formatOne(sub))
		}
		return out
	}
	return []string{pf.formatOne(ev)}
}

func (pf *PatternFormatter) formatOne(ev Event) string {
	pf.buf.Reset()

	for _, sg := range pf.segments {
		if !sg.isAttr {
			pf.buf.WriteString(sg.literal)
			continue
		}
		val := pf.attrValue(sg.attr, ev)
		pf.buf.WriteString(applyAlign(val, sg.align, sg.width))
	}

	switch pf.opts.Suffix {
	case SuffixNewline:
		pf.buf.WriteByte('\n')
	case SuffixCustom:
		pf.buf.WriteByte(pf.opts.CustomSuffix)
	case SuffixNone:
	}

	return pf.buf.String()
}

func (pf *PatternFormatter) attrValue(attr Attribute, ev Event) string {
	meta := ev.Meta
	switch attr {
	case AttrTime:
		return pf.ts.Format(ev.TimestampNanos)
	case AttrFileName:
		if meta == nil {
			return ""
		}
		return stripPrefix(meta.FileName(), pf.opts)
	case AttrCallerFunction:
		if meta == nil {
			return ""
		}
		return meta.Function
	case AttrLogLevel:
		return ev.Level.String()
	case AttrLogLevelShortCode:
		return ev.Level.ShortCode()
	case AttrLineNumber:
		if meta == nil {
			return "0"
		}
		return strconv.FormatUint(uint64(meta.Line), 10)
	case AttrLogger:
		return ev.LoggerName
	case AttrFullPath:
		if meta == nil {
			return ""
		}
		return stripPrefix(meta.FullPath, pf.opts)
	case AttrThreadID:
		return ev.ThreadID
	case AttrThreadName:
		return ev.ThreadName
	case AttrProcessID:
		return ev.ProcessID
	case AttrSourceLocation:
		if meta == nil {
			return ""
		}
		return stripPrefix(meta.SourceLocation(), pf.opts)
	case AttrShortSourceLocation:
		if meta == nil {
			return ""
		}
		return stripPrefix(meta.ShortSourceLocation(), pf.opts)
	case AttrMessage:
		return ev.Message
	case AttrTags:
		if meta == nil {
			return ""
		}
		return meta.Tags
	case AttrNamedArgs:
		return formatNamedArgs(ev.Named)
	default:
		return ""
	}
}

func formatNamedArgs(na *record.NamedArgs) string {
	if na == nil || na.Len() == 0 {
		return ""
	}
	var b strings.Builder
	first := true
	na.Range(func(k, v string) bool {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		return true
	})
	return b.String()
}

func stripPrefix(path string, opts Options) string {
	if opts.StripPathPrefix != "" {
		path = strings.TrimPrefix(path, opts.StripPathPrefix)
	}
	if opts.RemoveRelativePathSegments {
		path = strings.ReplaceAll(path, "../", "")
	}
	return path
}

func applyAlign(val string, align byte, width int) string {
	if width <= len(val) {
		return val
	}
	pad := width - len(val)
	switch align {
	case '>':
		return strings.Repeat(" ", pad) + val
	case '^':
		left := pad / 2
		right := pad - left
		return strings.Repeat(" ", left) + val + strings.Repeat(" ", right)
	default: // '<' or unspecified: left align, same as the source library's default
		return val + strings.Repeat(" ", pad)
	}
}
