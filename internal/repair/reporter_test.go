package repair

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestReporter_Counters(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := newReporterWithClock(clock.Now)

	r.LineSeen()
	r.LineSeen()
	r.LineSeen()
	r.RecordAccepted()
	r.RecordRejected()
	r.SetBytes(2 * 1024 * 1024)
	clock.Advance(2 * time.Second)

	s := r.Snapshot()
	if s.Lines != 3 || s.Accepted != 1 || s.Rejected != 1 {
		t.Errorf("Snapshot = %+v, want lines=3 accepted=1 rejected=1", s)
	}
	if s.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", s.Elapsed)
	}
	if got := s.Throughput(); got != 1 {
		t.Errorf("Throughput = %v, want 1 MB/s", got)
	}
}

func TestReporter_FinishFreezesElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	r := newReporterWithClock(clock.Now)

	clock.Advance(time.Second)
	r.Finish()
	clock.Advance(time.Hour)

	if got := r.Snapshot().Elapsed; got != time.Second {
		t.Errorf("Elapsed after Finish = %v, want 1s", got)
	}
}

func TestReporter_SetBytesIsMonotonic(t *testing.T) {
	r := NewReporter()
	r.SetBytes(100)
	r.SetBytes(50)
	if got := r.Snapshot().Bytes; got != 100 {
		t.Errorf("Bytes = %d, want 100", got)
	}
}

func TestRunStats_ThroughputFloorsElapsed(t *testing.T) {
	s := RunStats{Bytes: 1024 * 1024}
	if got := s.Throughput(); got != 1000 {
		t.Errorf("Throughput with zero elapsed = %v, want 1000", got)
	}
}

func TestReporter_ConcurrentSnapshot(t *testing.T) {
	r := NewReporter()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.LineSeen()
			r.RecordAccepted()
		}
	}()

	var last int64
	for i := 0; i < 100; i++ {
		s := r.Snapshot()
		if s.Lines < last {
			t.Fatalf("Lines decreased from %d to %d", last, s.Lines)
		}
		last = s.Lines
	}
	wg.Wait()

	if got := r.Snapshot().Accepted; got != 1000 {
		t.Errorf("Accepted = %d, want 1000", got)
	}
}
