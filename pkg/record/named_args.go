package record

import "sync"

// NamedArgs is a copy-on-write ordered bag of key/value pairs attached
// to a TransitEvent: named-argument pairs for patterns using
// %(named_args), or the deep/shallow-copied call-site strings for
// runtime-metadata events (§4.4 of the design: Deep, Hybrid, and
// Shallow copy flavors all funnel through this type so the backend can
// treat them uniformly once decoded).
//
// Adapted from the teacher's LabelsCOW: here the producer goroutine
// that decodes the record and the admin HTTP surface that may sample
// outstanding transit events for diagnostics are different goroutines,
// so mutation still copies-on-write rather than assuming a single
// writer the way the rest of the backend-only types do.
type NamedArgs struct {
	mu       sync.RWMutex
	keys     []string
	values   []string
	readonly bool
}

// NewNamedArgs returns an empty NamedArgs ready for appends.
func NewNamedArgs() *NamedArgs {
	return &NamedArgs{}
}

// Append adds a key/value pair, preserving insertion order. If marked
// readonly it first clones its backing slices.
func (n *NamedArgs) Append(key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.copyOnWriteIfNeeded()
	n.keys = append(n.keys, key)
	n.values = append(n.values, value)
}

// Len returns the number of pairs.
func (n *NamedArgs) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.keys)
}

// Range calls f for every pair in insertion order. Iteration stops
// early if f returns false.
func (n *NamedArgs) Range(f func(key, value string) bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for i, k := range n.keys {
		if !f(k, n.values[i]) {
			return
		}
	}
}

// MarkReadOnly marks this NamedArgs as shared; the next mutation will
// copy-on-write rather than touch shared storage. Used by the
// Hybrid-copy runtime metadata mode, which carries the caller's own
// NamedArgs across the queue boundary.
func (n *NamedArgs) MarkReadOnly() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readonly = true
}

// ShallowCopy returns a new NamedArgs sharing this one's backing
// slices; both are marked readonly so a later mutation on either side
// triggers a private copy first.
func (n *NamedArgs) ShallowCopy() *NamedArgs {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readonly = true
	return &NamedArgs{keys: n.keys, values: n.values, readonly: true}
}

// Clone returns a fully independent deep copy.
func (n *NamedArgs) Clone() *NamedArgs {
	n.mu.RLock()
	defer n.mu.RUnlock()
	keys := make([]string, len(n.keys))
	values := make([]string, len(n.values))
	copy(keys, n.keys)
	copy(values, n.values)
	return &NamedArgs{keys: keys, values: values}
}

func (n *NamedArgs) copyOnWriteIfNeeded() {
	if !n.readonly {
		return
	}
	keys := make([]string, len(n.keys), len(n.keys)+1)
	values := make([]string, len(n.values), len(n.values)+1)
	copy(keys, n.keys)
	copy(values, n.values)
	n.keys, n.values = keys, values
	n.readonly = false
}
