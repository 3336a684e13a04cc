package record

// RecordHeader is what a producer hands the backend through a
// TypedRing alongside the byte-encoded argument payload in the
// companion BoundedRing/UnboundedQueue: the pointer fields a raw byte
// queue cannot safely carry (storing a pointer as integer bytes would
// hide it from the garbage collector), plus enough bookkeeping for the
// backend to know how many bytes of the paired byte queue belong to
// this record.
type RecordHeader struct {
	Timestamp int64
	Meta      *MacroMetadata
	Logger    LoggerHandle
	Named     *NamedArgs
	// RuntimeMeta carries a call site's file/function/format/tags/line
	// strings for one of the EventLogWithRuntimeMetadata* kinds, for a
	// caller that cannot supply a stable *MacroMetadata pointer because
	// those strings are only known at runtime. Nil for every other kind.
	RuntimeMeta *NamedArgs
	// RuntimeLevel is the log level for a RuntimeMeta-carrying record;
	// Meta.Default serves the same purpose for a regular Log record.
	RuntimeLevel Level
	Kind         EventKind
	ArgBytes    uint64  // length of this record's payload in the companion byte queue; 0 for control events
	Payload     string  // control-event payload (e.g. the logger name for EventLoggerRemovalRequest)
	FlushFlag   *uint32 // caller-owned flag for EventFlush; the backend sets it to 1 once dispatch completes
}
