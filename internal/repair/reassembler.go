package repair

// Record is an ordered sequence of exactly N fields.
type Record []string

// Fragment is an accumulation of fields that never resolved into a Record.
type Fragment []string

// Decision is the outcome of feeding one physical line to a Reassembler.
type Decision int

const (
	// Pending means the line was absorbed into the accumulation buffer.
	Pending Decision = iota
	// Accepted means Outcome.Fields holds a complete Record.
	Accepted
	// Rejected means Outcome.Fields holds a Fragment.
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Outcome is the decision for one line. Fields is nil for Pending.
type Outcome struct {
	Decision Decision
	Fields   []string
}

// Reassembler merges tokenized physical lines into records of a fixed width.
//
// Between calls to Feed the buffer length is always below N. Emitted slices are
// handed off to the caller and never reused by the Reassembler.
type Reassembler struct {
	n         int
	threshold int
	buffer    []string
}

// NewReassembler creates a Reassembler for records of n fields. Accumulations
// longer than n × overflowMultiplier are force-rejected.
func NewReassembler(n, overflowMultiplier int) *Reassembler {
	return &Reassembler{
		n:         n,
		threshold: n * overflowMultiplier,
	}
}

// Feed consumes the fields of one physical line and returns at most one decision.
func (r *Reassembler) Feed(parts []string) Outcome {
	// Well-formed lines never touch the buffer.
	if len(r.buffer) == 0 && len(parts) == r.n {
		return Outcome{Decision: Accepted, Fields: parts}
	}

	r.buffer = append(r.buffer, parts...)

	switch {
	case len(r.buffer) > r.threshold:
		return Outcome{Decision: Rejected, Fields: r.take()}
	case len(r.buffer) == r.n:
		return Outcome{Decision: Accepted, Fields: r.take()}
	case len(r.buffer) > r.n:
		return Outcome{Decision: Rejected, Fields: r.take()}
	default:
		return Outcome{Decision: Pending}
	}
}

// Drain resolves whatever is still accumulating as a final fragment.
// It reports false when the buffer is empty.
func (r *Reassembler) Drain() (Fragment, bool) {
	if len(r.buffer) == 0 {
		return nil, false
	}
	return Fragment(r.take()), true
}

// Pending returns the number of fields currently accumulated.
func (r *Reassembler) Pending() int {
	return len(r.buffer)
}

// Threshold returns the overflow threshold (N × overflow multiplier).
func (r *Reassembler) Threshold() int {
	return r.threshold
}

// take hands the buffer off and starts a fresh one.
func (r *Reassembler) take() []string {
	out := r.buffer
	r.buffer = nil
	return out
}
