package frontend

import (
	"quillgo/internal/registry"
	"quillgo/pkg/queue"
)

// Options configures a producer's queue: bounded-and-blocking,
// bounded-and-dropping, or unbounded-and-growing (SPEC_FULL §5.1-5.2).
type Options struct {
	Capacity       int
	Unbounded      bool
	MaxCapacity    int // only meaningful when Unbounded
	Policy         queue.Policy
	HeaderCapacity int // capacity of the paired pointer-header ring; rounded up to a power of two
}

// DefaultOptions matches the source library's out-of-the-box producer
// queue: a growing unbounded queue so a burst of logging never blocks
// or drops by default.
func DefaultOptions() Options {
	return Options{
		Capacity:       64 * 1024,
		Unbounded:      true,
		MaxCapacity:    64 * 1024 * 1024,
		Policy:         queue.PolicyGrowing,
		HeaderCapacity: 8192,
	}
}

// ProducerHandle is the explicit stand-in for the implicit per-thread
// storage the source library gets for free from C++ TLS. A goroutine
// obtains one via Frontend.Preallocate (eagerly) or Frontend.Handle
// (lazily, caching the result itself — quillgo does not attempt to
// auto-detect "the calling goroutine" since Go exposes no such hook).
type ProducerHandle struct {
	ctx *registry.ThreadContext
}

func newHandle(ctx *registry.ThreadContext) *ProducerHandle {
	return &ProducerHandle{ctx: ctx}
}
