package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// DecoderID stands in for the "pointer to a decoder function" the
// source library stores inline in the queue. Go cannot portably
// serialize a function pointer into a byte buffer, so the frontend
// instead writes a small integer key into a process-wide decoder
// table; the backend looks the function back up when it drains the
// record. The table is append-only and built at init time via
// RegisterCodec, so the id is stable for the life of the process.
type DecoderID uint32

// Codec is the per-argument-type contract the frontend and backend use
// to move one argument across the queue without reflection on the hot
// path. EncodedSize may use sizeCache to remember a size computed
// during a size-only pass (e.g. a string's length) so Encode does not
// need to recompute it.
type Codec interface {
	// EncodedSize returns the number of bytes Encode will write for v.
	EncodedSize(v any, sizeCache *SizeCache) int
	// Encode writes v's wire representation into dst, returning the
	// number of bytes written (must equal EncodedSize's answer).
	Encode(dst []byte, v any, sizeCache *SizeCache) int
	// Decode reads one value back out of src, returning the value and
	// the number of bytes consumed.
	Decode(src []byte) (v any, consumed int)
}

// SizeCache lets a size-computation pass (strlen, reflection, …) run
// once per argument list and be reused by the subsequent encode pass,
// matching the source library's compute_encoded_size/encode pairing.
type SizeCache struct {
	sizes []int
	next  int
}

func (c *SizeCache) push(n int) { c.sizes = append(c.sizes, n) }

func (c *SizeCache) pop() int {
	v := c.sizes[c.next]
	c.next++
	return v
}

// Reset clears the cache for reuse across log calls, avoiding an
// allocation per call on the hot path.
func (c *SizeCache) Reset() {
	c.sizes = c.sizes[:0]
	c.next = 0
}

var (
	registryMu sync.RWMutex
	registry   []Codec
)

// RegisterCodec adds a codec to the process-wide decoder table and
// returns the DecoderID future log calls must reference. Intended to
// be called from package init, not on the hot path.
func RegisterCodec(c Codec) DecoderID {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, c)
	return DecoderID(len(registry) - 1)
}

func codecFor(id DecoderID) Codec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[id]
}

// Built-in codecs, registered at package init so the zero-value
// DecoderID table is always populated for primitive argument types.
var (
	IDString  = RegisterCodec(stringCodec{})
	IDInt64   = RegisterCodec(int64Codec{})
	IDUint64  = RegisterCodec(uint64Codec{})
	IDFloat64 = RegisterCodec(float64Codec{})
	IDBool    = RegisterCodec(boolCodec{})
	IDError   = RegisterCodec(errorCodec{})
)

// DecodeAny looks up the codec for id and decodes one value from src.
func DecodeAny(id DecoderID, src []byte) (v any, consumed int) {
	return codecFor(id).Decode(src)
}

// EncodedSizeAny looks up the codec for id and measures v.
func EncodedSizeAny(id DecoderID, v any, sc *SizeCache) int {
	return codecFor(id).EncodedSize(v, sc)
}

// EncodeAny looks up the codec for id and encodes v into dst.
func EncodeAny(id DecoderID, dst []byte, v any, sc *SizeCache) int {
	return codecFor(id).Encode(dst, v, sc)
}

type stringCodec struct{}

func (stringCodec) EncodedSize(v any, sc *SizeCache) int {
	n := len(v.(string))
	sc.push(n)
	return 4 + n
}

func (stringCodec) Encode(dst []byte, v any, sc *SizeCache) int {
	n := sc.pop()
	binary.LittleEndian.PutUint32(dst, uint32(n))
	copy(dst[4:4+n], v.(string))
	return 4 + n
}

func (stringCodec) Decode(src []byte) (any, int) {
	n := int(binary.LittleEndian.Uint32(src))
	return string(src[4 : 4+n]), 4 + n
}

type int64Codec struct{}

func (int64Codec) EncodedSize(any, *SizeCache) int { return 8 }
func (int64Codec) Encode(dst []byte, v any, _ *SizeCache) int {
	binary.LittleEndian.PutUint64(dst, uint64(toInt64(v)))
	return 8
}
func (int64Codec) Decode(src []byte) (any, int) {
	return int64(binary.LittleEndian.Uint64(src)), 8
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		panic(fmt.Sprintf("record: not an integer argument: %T", v))
	}
}

type uint64Codec struct{}

func (uint64Codec) EncodedSize(any, *SizeCache) int { return 8 }
func (uint64Codec) Encode(dst []byte, v any, _ *SizeCache) int {
	binary.LittleEndian.PutUint64(dst, v.(uint64))
	return 8
}
func (uint64Codec) Decode(src []byte) (any, int) {
	return binary.LittleEndian.Uint64(src), 8
}

type float64Codec struct{}

func (float64Codec) EncodedSize(any, *SizeCache) int { return 8 }
func (float64Codec) Encode(dst []byte, v any, _ *SizeCache) int {
	var f float64
	switch n := v.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	}
	binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	return 8
}
func (float64Codec) Decode(src []byte) (any, int) {
	return math.Float64frombits(binary.LittleEndian.Uint64(src)), 8
}

type boolCodec struct{}

func (boolCodec) EncodedSize(any, *SizeCache) int { return 1 }
func (boolCodec) Encode(dst []byte, v any, _ *SizeCache) int {
	if v.(bool) {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	return 1
}
func (boolCodec) Decode(src []byte) (any, int) { return src[0] != 0, 1 }

// errorCodec encodes an error's message text; decoding always yields a
// string (the backend only ever needs the message for formatting).
type errorCodec struct{}

func (errorCodec) EncodedSize(v any, sc *SizeCache) int {
	n := len(v.(error).Error())
	sc.push(n)
	return 4 + n
}
func (errorCodec) Encode(dst []byte, v any, sc *SizeCache) int {
	n := sc.pop()
	binary.LittleEndian.PutUint32(dst, uint32(n))
	copy(dst[4:4+n], v.(error).Error())
	return 4 + n
}
func (errorCodec) Decode(src []byte) (any, int) {
	n := int(binary.LittleEndian.Uint32(src))
	return string(src[4 : 4+n]), 4 + n
}

// DecoderIDFor picks a built-in DecoderID for common argument types; it
// is used by the frontend when the caller did not register a custom
// Codec for the concrete type of an argument. Arguments of a type
// without a built-in codec are formatted via fmt.Sprint and stored
// using IDString by the caller-facing encode path.
func DecoderIDFor(v any) (DecoderID, bool) {
	switch v.(type) {
	case string:
		return IDString, true
	case int, int32, int64:
		return IDInt64, true
	case uint64:
		return IDUint64, true
	case float32, float64:
		return IDFloat64, true
	case bool:
		return IDBool, true
	case error:
		return IDError, true
	default:
		return 0, false
	}
}
