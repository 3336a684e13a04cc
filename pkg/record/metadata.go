// Package record defines the wire-level and backend-side representation
// of a single log call: the immutable per-call-site MacroMetadata, the
// Codec contract used to encode/decode arguments, and the backend's
// decoded TransitEvent.
package record

import (
	"strconv"
	"strings"
)

// EventKind distinguishes the different record shapes that can travel
// through a thread context's queue. Only Log carries user arguments;
// the others are control events the backend acts on directly.
type EventKind uint8

const (
	EventLog EventKind = iota
	EventInitBacktrace
	EventFlushBacktrace
	EventFlush
	EventLogWithRuntimeMetadataDeepCopy
	EventLogWithRuntimeMetadataHybridCopy
	EventLogWithRuntimeMetadataShallowCopy
	EventLoggerRemovalRequest
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "Log"
	case EventInitBacktrace:
		return "InitBacktrace"
	case EventFlushBacktrace:
		return "FlushBacktrace"
	case EventFlush:
		return "Flush"
	case EventLogWithRuntimeMetadataDeepCopy:
		return "LogWithRuntimeMetadataDeepCopy"
	case EventLogWithRuntimeMetadataHybridCopy:
		return "LogWithRuntimeMetadataHybridCopy"
	case EventLogWithRuntimeMetadataShallowCopy:
		return "LogWithRuntimeMetadataShallowCopy"
	case EventLoggerRemovalRequest:
		return "LoggerRemovalRequest"
	default:
		return "Unknown"
	}
}

// Level is the log severity. Backtrace is deliberately the lowest
// level: events logged at Backtrace never reach a sink directly, they
// are only ever replayed through a logger's backtrace storage.
type Level int32

const (
	LevelBacktrace Level = iota
	LevelTrace3
	LevelTrace2
	LevelTrace1
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
	LevelNone // filters everything; never emitted by a call site
)

var levelNames = [...]string{
	"BACKTRACE", "TRACE3", "TRACE2", "TRACE1", "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL", "NONE",
}

var levelShortCodes = [...]string{
	"BT", "T3", "T2", "T1", "D", "I", "W", "E", "C", "-",
}

func (l Level) String() string {
	if int(l) < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ShortCode returns the single/double letter code used by the default
// %(log_level_short_code) pattern attribute.
func (l Level) ShortCode() string {
	if int(l) < 0 || int(l) >= len(levelShortCodes) {
		return "?"
	}
	return levelShortCodes[l]
}

// ParseLevel maps a level's String() name (case-insensitively) back to
// a Level, for admin/config surfaces that accept level names as text.
func ParseLevel(name string) (Level, bool) {
	upper := strings.ToUpper(name)
	for i, n := range levelNames {
		if n == upper {
			return Level(i), true
		}
	}
	return LevelNone, false
}

// MacroMetadata is the immutable, per-call-site descriptor that in the
// source library is emitted by a macro at compile time. Since Go has no
// equivalent code-generation step in scope here, callers construct one
// value per call site (typically as a package-level var) and pass its
// pointer on every call; the frontend only ever copies the pointer into
// the queue.
type MacroMetadata struct {
	FullPath   string // full source file path
	Function   string
	Format     string // the format string/template, e.g. "user {} logged in from {}"
	Tags       string // free-form user tags, comma separated
	Line       uint32
	Default    Level
	Kind       EventKind
	fileOffset int // byte offset of the filename within FullPath
	colonPos   int // cached index equal to fileOffset; FullPath[colonPos:] is the base file name
}

// NewMacroMetadata precomputes the derived offsets the pattern formatter
// uses to slice the source location without re-scanning FullPath on
// every format call.
func NewMacroMetadata(fullPath, function, format, tags string, line uint32, level Level, kind EventKind) *MacroMetadata {
	m := &MacroMetadata{
		FullPath: fullPath,
		Function: function,
		Format:   format,
		Tags:     tags,
		Line:     line,
		Default:  level,
		Kind:     kind,
	}
	if idx := strings.LastIndexByte(fullPath, '/'); idx >= 0 {
		m.fileOffset = idx + 1
	}
	m.colonPos = m.fileOffset
	return m
}

// FileName returns the basename slice of FullPath using the precomputed
// offset (no re-scan).
func (m *MacroMetadata) FileName() string {
	return m.FullPath[m.fileOffset:]
}

// SourceLocation renders "file:line".
func (m *MacroMetadata) SourceLocation() string {
	return m.FileName() + ":" + itoa(m.Line)
}

// ShortSourceLocation is identical to SourceLocation for quillgo; the
// pattern formatter applies its configured prefix strip to the string
// this returns.
func (m *MacroMetadata) ShortSourceLocation() string {
	return m.SourceLocation()
}

// Runtime metadata keys carried in a NamedArgs bag for a call site whose
// source location or format string is only known at runtime (the
// EventLogWithRuntimeMetadata* kinds).
const (
	rtKeyFullPath = "full_path"
	rtKeyFunction = "function"
	rtKeyFormat   = "format"
	rtKeyTags     = "tags"
	rtKeyLine     = "line"
)

// NewRuntimeMetadata packs a runtime-discovered call site's strings into
// the NamedArgs bag Frontend.LogDynamic carries across the queue
// boundary, keyed by the fields ReconstructMacroMetadata reads back out.
func NewRuntimeMetadata(fullPath, function, format, tags string, line uint32) *NamedArgs {
	rt := NewNamedArgs()
	rt.Append(rtKeyFullPath, fullPath)
	rt.Append(rtKeyFunction, function)
	rt.Append(rtKeyFormat, format)
	rt.Append(rtKeyTags, tags)
	rt.Append(rtKeyLine, strconv.FormatUint(uint64(line), 10))
	return rt
}

// ReconstructMacroMetadata rebuilds a MacroMetadata from the NamedArgs
// bag a runtime-metadata event carried across the queue boundary; level
// and kind travel on the event itself rather than inside the bag.
func ReconstructMacroMetadata(rt *NamedArgs, level Level, kind EventKind) *MacroMetadata {
	if rt == nil {
		return nil
	}
	fields := make(map[string]string, 5)
	rt.Range(func(key, value string) bool {
		fields[key] = value
		return true
	})
	var line uint64
	if v, ok := fields[rtKeyLine]; ok {
		line, _ = strconv.ParseUint(v, 10, 32)
	}
	return NewMacroMetadata(fields[rtKeyFullPath], fields[rtKeyFunction], fields[rtKeyFormat], fields[rtKeyTags], uint32(line), level, kind)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
