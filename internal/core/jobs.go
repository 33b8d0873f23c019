package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/JonMunkholm/txtfix/internal/logging"
	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/store"
	"github.com/JonMunkholm/txtfix/internal/textenc"
	"github.com/google/uuid"
)

// failedJobRetention is how long a failed job stays queryable.
const failedJobRetention = 5 * time.Minute

// StartJob validates req, waits for a job slot and starts the repair in the
// background. It returns the job ID immediately; use SubscribeProgress or
// GetResult to follow it.
//
// Returns ErrTooManyJobs if no slot frees up within the configured wait.
func (s *Service) StartJob(ctx context.Context, req JobRequest) (string, error) {
	if req.Encodings.Input == "" {
		req.Encodings.Input = s.defaultEnc.Input
	}
	if req.Encodings.Output == "" {
		req.Encodings.Output = s.defaultEnc.Output
	}
	if err := req.Params.Validate(); err != nil {
		closeReader(req.Reader)
		return "", err
	}
	for _, charset := range []string{req.Encodings.Input, req.Encodings.Output} {
		if err := textenc.Validate(charset); err != nil {
			closeReader(req.Reader)
			return "", err
		}
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		closeReader(req.Reader)
		return "", err
	}

	jobID := uuid.New().String()
	art, err := s.createArtifacts(jobID, req.FileName)
	if err != nil {
		release()
		closeReader(req.Reader)
		return "", err
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	job := &activeJob{
		ID:          jobID,
		FileName:    req.FileName,
		Cancel:      cancel,
		Done:        make(chan struct{}),
		dir:         art.dir,
		cleanName:   art.cleanName,
		rejectsName: art.rejectsName,
		progress: JobProgress{
			JobID:      jobID,
			Phase:      PhaseStarting,
			FileName:   req.FileName,
			BytesTotal: req.Size,
		},
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	log := logging.WithFields(ctx, "job_id", jobID, "file", req.FileName)

	go func() {
		defer release()
		defer cancel()
		defer closeReader(req.Reader)
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in repair job", "panic", r)
				removeArtifacts(job.dir)
				res := &JobResult{
					JobID:     jobID,
					FileName:  req.FileName,
					Phase:     PhaseFailed,
					Params:    req.Params,
					Encodings: req.Encodings,
					Error:     fmt.Sprintf("internal error: %v", r),
					CreatedAt: time.Now(),
				}
				job.finish(res, func(p *JobProgress) {
					p.Phase = PhaseFailed
					p.Error = res.Error
				})
				s.forget(jobID, failedJobRetention)
			}
		}()
		s.processJob(jobCtx, job, req, art, log)
	}()

	return jobID, nil
}

// processJob runs the repair and records the outcome.
func (s *Service) processJob(ctx context.Context, job *activeJob, req JobRequest, art artifactFiles, log *slog.Logger) {
	createdAt := time.Now()
	log.Info("repair started",
		"columns", req.Params.Columns,
		"delimiter", req.Params.Delimiter,
		"input_encoding", req.Encodings.Input,
		"output_encoding", req.Encodings.Output,
		"size", req.Size,
	)

	res := &JobResult{
		JobID:     job.ID,
		FileName:  job.FileName,
		Params:    req.Params,
		Encodings: req.Encodings,
		CreatedAt: createdAt,
	}

	stats, compressed, runErr := s.runRepair(ctx, job, req, art, log)
	res.Stats = stats
	res.MBPerSec = stats.Throughput()
	res.Compressed = compressed

	retention := s.retention
	switch {
	case runErr == nil:
		res.Phase = PhaseComplete
	case errors.Is(runErr, repair.ErrCancelled):
		res.Phase = PhaseCancelled
	default:
		res.Phase = PhaseFailed
		retention = failedJobRetention
	}
	if runErr != nil {
		res.Error = runErr.Error()
		msg := MapError(runErr)
		res.UserError = &msg
	}
	if res.HasArtifacts() {
		res.CleanName = art.cleanName
		res.RejectsName = art.rejectsName
	} else {
		removeArtifacts(art.dir)
	}

	s.recordHistory(res, log)

	job.finish(res, func(p *JobProgress) {
		p.apply(stats)
		p.Phase = res.Phase
		p.Error = res.Error
	})

	log.Info("repair finished",
		"phase", res.Phase,
		"lines", stats.Lines,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"duration_ms", stats.Elapsed.Milliseconds(),
		"mb_per_sec", fmt.Sprintf("%.2f", res.MBPerSec),
		"error", res.Error,
	)

	s.forget(job.ID, retention)
}

// runRepair wires decoding, the repair driver and encoded outputs.
func (s *Service) runRepair(ctx context.Context, job *activeJob, req JobRequest, art artifactFiles, log *slog.Logger) (repair.RunStats, bool, error) {
	in, err := textenc.OpenInput(req.Reader, req.Size, req.Encodings.Input)
	if err != nil {
		return repair.RunStats{}, false, err
	}
	defer in.Close()

	out, err := openOutputs(art, req.Encodings.Output)
	if err != nil {
		return repair.RunStats{}, in.Compressed(), err
	}

	job.update(func(p *JobProgress) { p.Phase = PhaseProcessing })

	stats, runErr := repair.Run(ctx,
		repair.NewLineScanner(in, s.maxLineBytes),
		out.clean, out.rejects,
		req.Params,
		repair.Options{
			Logger:    log,
			BytesRead: in.BytesRead,
			OnProgress: func(st repair.RunStats) {
				job.update(func(p *JobProgress) { p.apply(st) })
			},
		},
	)

	// Outputs are closed even after a failed run so a cancelled job keeps
	// its valid prefix on disk.
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil && stats.Lines == 0 {
		log.Warn("repair input had no lines")
	}
	return stats, in.Compressed(), runErr
}

func (s *Service) recordHistory(res *JobResult, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := store.StatusComplete
	switch res.Phase {
	case PhaseFailed:
		status = store.StatusFailed
	case PhaseCancelled:
		status = store.StatusCancelled
	}

	err := s.store.Save(ctx, store.RunRecord{
		ID:                 res.JobID,
		FileName:           res.FileName,
		Delimiter:          res.Params.Delimiter,
		Columns:            res.Params.Columns,
		ChunkSize:          res.Params.ChunkSize,
		OverflowMultiplier: res.Params.OverflowMultiplier,
		InputEncoding:      res.Encodings.Input,
		OutputEncoding:     res.Encodings.Output,
		Accepted:           res.Stats.Accepted,
		Rejected:           res.Stats.Rejected,
		Lines:              res.Stats.Lines,
		Bytes:              res.Stats.Bytes,
		DurationMs:         res.Stats.Elapsed.Milliseconds(),
		Status:             status,
		Error:              res.Error,
		CreatedAt:          res.CreatedAt,
	})
	if err != nil {
		// History is best effort; the job result is still served from memory.
		log.Warn("failed to record run history", "error", err)
	}
}

// SubscribeProgress returns a channel that receives progress updates. The
// current state is sent first; the channel is closed after the final state.
func (s *Service) SubscribeProgress(jobID string) (<-chan JobProgress, error) {
	job, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return job.subscribe(), nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(jobID string) (JobProgress, error) {
	job, err := s.lookup(jobID)
	if err != nil {
		return JobProgress{}, err
	}
	return job.snapshot(), nil
}

// GetResult blocks until the job finishes or ctx ends.
func (s *Service) GetResult(ctx context.Context, jobID string) (*JobResult, error) {
	job, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done:
		return job.getResult(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelJob stops a running job. Outputs written so far stay downloadable.
// Cancelling a finished job is a no-op.
func (s *Service) CancelJob(jobID string) error {
	job, err := s.lookup(jobID)
	if err != nil {
		return err
	}
	job.Cancel()
	return nil
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

// outputs are the encoded writers over a job's artifact files.
type outputs struct {
	clean, rejects io.Writer
	closers        []func() error
}

func openOutputs(art artifactFiles, charset string) (*outputs, error) {
	out := &outputs{}

	open := func(path string) (io.Writer, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		buf := bufio.NewWriterSize(f, 64*1024)
		enc, err := textenc.NewWriter(buf, charset)
		if err != nil {
			f.Close()
			return nil, err
		}
		out.closers = append(out.closers, enc.Close, buf.Flush, f.Close)
		return enc, nil
	}

	var err error
	if out.clean, err = open(art.cleanPath); err != nil {
		return nil, err
	}
	if out.rejects, err = open(art.rejectsPath); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

// Close flushes and closes every layer in order, returning the first error.
func (o *outputs) Close() error {
	var first error
	for _, fn := range o.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	o.closers = nil
	return first
}
