package queue

// Policy selects what a producer does when PrepareWrite cannot find
// room. Blocking spins (optionally yielding) until space appears;
// Dropping returns immediately and lets the caller account the failure
// as a dropped message. Growing only applies to UnboundedQueue, which
// always "succeeds" by allocating a larger ring up to MaxCapacity.
type Policy int

const (
	PolicyBlocking Policy = iota
	PolicyDropping
	PolicyGrowing
)

func (p Policy) String() string {
	switch p {
	case PolicyBlocking:
		return "blocking"
	case PolicyDropping:
		return "dropping"
	case PolicyGrowing:
		return "growing"
	default:
		return "unknown"
	}
}
