package repair

import (
	"sync/atomic"
	"time"
)

// RunStats is a point-in-time view of a run's counters.
type RunStats struct {
	Accepted int64         `json:"accepted"`
	Rejected int64         `json:"rejected"`
	Lines    int64         `json:"lines"`
	Bytes    int64         `json:"bytes"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Throughput returns processed megabytes per second. Elapsed time is floored
// at one millisecond so a very short run does not divide by zero.
func (s RunStats) Throughput() float64 {
	elapsed := s.Elapsed.Seconds()
	if elapsed < 0.001 {
		elapsed = 0.001
	}
	return float64(s.Bytes) / (1024 * 1024) / elapsed
}

// Reporter aggregates counters for one run. Counters only increase.
//
// The driver updates it from a single goroutine; Snapshot may be called from
// any goroutine at any time.
type Reporter struct {
	accepted atomic.Int64
	rejected atomic.Int64
	lines    atomic.Int64
	bytes    atomic.Int64

	start    time.Time
	finished atomic.Int64 // elapsed nanoseconds once Finish is called, else 0

	now func() time.Time
}

// NewReporter creates a Reporter whose clock starts now.
func NewReporter() *Reporter {
	return newReporterWithClock(time.Now)
}

func newReporterWithClock(now func() time.Time) *Reporter {
	return &Reporter{start: now(), now: now}
}

// RecordAccepted counts one record written to the clean stream.
func (r *Reporter) RecordAccepted() { r.accepted.Add(1) }

// RecordRejected counts one fragment written to the reject stream.
func (r *Reporter) RecordRejected() { r.rejected.Add(1) }

// LineSeen counts one physical input line.
func (r *Reporter) LineSeen() { r.lines.Add(1) }

// SetBytes records the number of input bytes consumed so far.
func (r *Reporter) SetBytes(n int64) {
	if n > r.bytes.Load() {
		r.bytes.Store(n)
	}
}

// Finish freezes the elapsed time. Later snapshots report the same duration.
func (r *Reporter) Finish() {
	elapsed := r.now().Sub(r.start)
	if elapsed <= 0 {
		elapsed = 1
	}
	r.finished.CompareAndSwap(0, int64(elapsed))
}

// Snapshot returns the counters as of the last processed line.
func (r *Reporter) Snapshot() RunStats {
	elapsed := time.Duration(r.finished.Load())
	if elapsed == 0 {
		elapsed = r.now().Sub(r.start)
	}
	return RunStats{
		Accepted: r.accepted.Load(),
		Rejected: r.rejected.Load(),
		Lines:    r.lines.Load(),
		Bytes:    r.bytes.Load(),
		Elapsed:  elapsed,
	}
}
