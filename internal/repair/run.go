package repair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Default parameter values.
const (
	DefaultDelimiter          = "|"
	DefaultColumns            = 30
	DefaultChunkSize          = 10000
	DefaultOverflowMultiplier = 100
)

// ContextCheckInterval is how often (in lines) the driver checks for
// cancellation. Values below 1 check on every line.
var ContextCheckInterval = 100

// DefaultProgressInterval is how often (in lines) OnProgress is called when
// Options.ProgressInterval is zero.
const DefaultProgressInterval = 1000

var (
	// ErrInvalidParams is returned before any line is read when Params fail validation.
	ErrInvalidParams = errors.New("invalid repair parameters")

	// ErrCancelled is returned when the context ends mid-run. The outputs written
	// so far are a valid prefix of a complete run.
	ErrCancelled = errors.New("repair cancelled")
)

// Params are the scalar inputs of one run.
type Params struct {
	Delimiter          string `json:"delimiter"`
	Columns            int    `json:"columns"`
	ChunkSize          int    `json:"chunk_size"`
	OverflowMultiplier int    `json:"overflow_multiplier"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Delimiter:          DefaultDelimiter,
		Columns:            DefaultColumns,
		ChunkSize:          DefaultChunkSize,
		OverflowMultiplier: DefaultOverflowMultiplier,
	}
}

// Validate reports every precondition violation at once.
func (p Params) Validate() error {
	var errs []string
	if p.Delimiter == "" {
		errs = append(errs, "delimiter must not be empty")
	}
	if p.Columns < 1 {
		errs = append(errs, fmt.Sprintf("columns (%d) must be at least 1", p.Columns))
	}
	if p.ChunkSize < 1 {
		errs = append(errs, fmt.Sprintf("chunk size (%d) must be at least 1", p.ChunkSize))
	}
	if p.OverflowMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("overflow multiplier (%d) must be at least 1", p.OverflowMultiplier))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(errs, "; "))
	}
	return nil
}

// OverflowThreshold returns Columns × OverflowMultiplier.
func (p Params) OverflowThreshold() int {
	return p.Columns * p.OverflowMultiplier
}

// Options tune observation of a run. The zero value is valid.
type Options struct {
	// Logger receives run-level events. Defaults to slog.Default().
	Logger *slog.Logger

	// Reporter collects counters. A new one is created when nil; pass one in
	// to read Snapshot from another goroutine while the run is in progress.
	Reporter *Reporter

	// BytesRead, when set, is sampled to fill RunStats.Bytes.
	BytesRead func() int64

	// OnProgress is called every ProgressInterval lines and once at the end.
	OnProgress       func(RunStats)
	ProgressInterval int
}

// Run performs one sequential pass over lines, writing accepted records as CSV
// to clean and rejected fragments to rejects.
//
// Structural anomalies never produce an error. Run fails on invalid params
// (before reading anything), on a read error from lines and on a write error.
// On cancellation the partial batch is flushed, the in-flight accumulation is
// written as a fragment and the returned error wraps ErrCancelled.
func Run(ctx context.Context, lines LineSource, clean, rejects io.Writer, p Params, opts Options) (RunStats, error) {
	if err := p.Validate(); err != nil {
		return RunStats{}, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	rep := opts.Reporter
	if rep == nil {
		rep = NewReporter()
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	d := &driver{
		params:  p,
		re:      NewReassembler(p.Columns, p.OverflowMultiplier),
		sink:    NewSink(clean, rejects, p.Delimiter, p.ChunkSize),
		rep:     rep,
		bytesFn: opts.BytesRead,
	}

	log.Debug("repair started",
		"columns", p.Columns,
		"delimiter", p.Delimiter,
		"chunk_size", p.ChunkSize,
		"overflow_threshold", p.OverflowThreshold(),
	)

	checkEvery := int64(max(ContextCheckInterval, 1))
	var n int64
	for lines.Scan() {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				stats, finishErr := d.finish()
				if finishErr != nil {
					return stats, finishErr
				}
				log.Info("repair cancelled", "lines", stats.Lines, "error", err)
				return stats, fmt.Errorf("%w after %d lines: %w", ErrCancelled, n, err)
			}
		}
		n++

		if err := d.line(lines.Text()); err != nil {
			rep.Finish()
			return d.snapshot(), err
		}

		if opts.OnProgress != nil && n%int64(interval) == 0 {
			opts.OnProgress(d.snapshot())
		}
	}
	if err := lines.Err(); err != nil {
		rep.Finish()
		return d.snapshot(), fmt.Errorf("read line %d: %w", n+1, err)
	}

	stats, err := d.finish()
	if err != nil {
		return stats, err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(stats)
	}

	log.Debug("repair finished",
		"lines", stats.Lines,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"flushes", d.sink.Flushes(),
		"duration_ms", stats.Elapsed.Milliseconds(),
	)
	return stats, nil
}

// RunReader splits r into physical lines with NewLineScanner and calls Run.
func RunReader(ctx context.Context, r io.Reader, clean, rejects io.Writer, p Params, opts Options) (RunStats, error) {
	return Run(ctx, NewLineScanner(r, 0), clean, rejects, p, opts)
}

// driver wires tokenizer, reassembler, sink and reporter for one run.
type driver struct {
	params  Params
	re      *Reassembler
	sink    *Sink
	rep     *Reporter
	bytesFn func() int64
}

func (d *driver) line(text string) error {
	d.rep.LineSeen()
	out := d.re.Feed(Split(text, d.params.Delimiter))
	return d.apply(out)
}

func (d *driver) apply(out Outcome) error {
	switch out.Decision {
	case Accepted:
		if err := d.sink.SubmitRecord(Record(out.Fields)); err != nil {
			return err
		}
		d.rep.RecordAccepted()
	case Rejected:
		if err := d.sink.SubmitFragment(Fragment(out.Fields)); err != nil {
			return err
		}
		d.rep.RecordRejected()
	}
	return nil
}

// finish drains the reassembler and flushes the sink. It runs both at end of
// stream and on cancellation.
func (d *driver) finish() (RunStats, error) {
	defer d.rep.Finish()

	if frag, ok := d.re.Drain(); ok {
		if err := d.apply(Outcome{Decision: Rejected, Fields: frag}); err != nil {
			return d.snapshot(), err
		}
	}
	if err := d.sink.Close(); err != nil {
		return d.snapshot(), err
	}
	return d.snapshot(), nil
}

func (d *driver) snapshot() RunStats {
	if d.bytesFn != nil {
		d.rep.SetBytes(d.bytesFn())
	}
	return d.rep.Snapshot()
}
