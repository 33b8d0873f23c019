package repair

// sink.go turns reassembler decisions into the two output streams.
//
// Accepted records are collected into a batch of chunkSize records and written
// to the clean stream as one CSV-encoded write. Rejected fragments are joined
// with the input delimiter and written to the reject stream one per line, as
// soon as they occur.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// Sink is the sole writer of the clean and reject streams of one run.
type Sink struct {
	clean   io.Writer
	rejects io.Writer
	delim   string

	chunkSize int
	batch     [][]string

	// CSV encoding target; one batch is rendered here and written in one call.
	buf bytes.Buffer
	csv *csv.Writer

	flushes int
	written int64
}

// NewSink creates a Sink writing CSV to clean and delimiter-joined fragments to
// rejects. chunkSize must be at least 1.
func NewSink(clean, rejects io.Writer, delim string, chunkSize int) *Sink {
	s := &Sink{
		clean:     clean,
		rejects:   rejects,
		delim:     delim,
		chunkSize: chunkSize,
		batch:     make([][]string, 0, chunkSize),
	}
	// Rows end in "\n", not the RFC 4180 "\r\n".
	s.csv = csv.NewWriter(&s.buf)
	return s
}

// SubmitRecord appends an accepted record to the current batch, flushing the
// batch when it reaches chunkSize.
func (s *Sink) SubmitRecord(rec Record) error {
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.chunkSize {
		return s.flush()
	}
	return nil
}

// SubmitFragment writes a rejected fragment to the reject stream immediately.
func (s *Sink) SubmitFragment(frag Fragment) error {
	line := Join(frag, s.delim) + "\n"
	if _, err := io.WriteString(s.rejects, line); err != nil {
		return fmt.Errorf("write reject: %w", err)
	}
	return nil
}

// Close flushes any partial batch. It does not close the underlying writers.
func (s *Sink) Close() error {
	if len(s.batch) == 0 {
		return nil
	}
	return s.flush()
}

// Flushes returns the number of batch writes issued to the clean stream.
func (s *Sink) Flushes() int {
	return s.flushes
}

// Buffered returns the number of accepted records not yet written.
func (s *Sink) Buffered() int {
	return len(s.batch)
}

// Written returns the number of accepted records written to the clean stream.
func (s *Sink) Written() int64 {
	return s.written
}

func (s *Sink) flush() error {
	s.buf.Reset()
	if err := s.csv.WriteAll(s.batch); err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if _, err := s.clean.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("write batch of %d records: %w", len(s.batch), err)
	}

	s.flushes++
	s.written += int64(len(s.batch))

	// Records are owned by the sink until written; drop references for GC.
	clear(s.batch)
	s.batch = s.batch[:0]
	return nil
}
