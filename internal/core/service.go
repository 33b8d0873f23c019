package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JonMunkholm/txtfix/internal/config"
	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/store"
)

var (
	// ErrJobNotFound is returned for unknown or expired job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned when a finished job is required.
	ErrJobRunning = errors.New("job still running")
)

// Service runs repair jobs and keeps their outputs and history.
type Service struct {
	store        store.Store
	limiter      *JobLimiter
	artifactDir  string
	retention    time.Duration
	jobTimeout   time.Duration
	maxLineBytes int
	defaults     repair.Params
	defaultEnc   Encodings
	started      time.Time

	mu   sync.RWMutex
	jobs map[string]*activeJob
}

// NewService creates a Service. A nil store keeps history in memory.
func NewService(cfg *config.Config, st store.Store) (*Service, error) {
	if st == nil {
		st = store.NewMemory(cfg.Database.HistoryLimit)
	}

	dir := cfg.Storage.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "txtfix")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	return &Service{
		store:        st,
		limiter:      NewJobLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		artifactDir:  dir,
		retention:    cfg.Storage.Retention,
		jobTimeout:   cfg.Upload.Timeout,
		maxLineBytes: cfg.Repair.MaxLineBytes,
		defaults:     cfg.Repair.Params(),
		defaultEnc:   Encodings{Input: cfg.Repair.InputEncoding, Output: cfg.Repair.OutputEncoding},
		started:      time.Now(),
		jobs:         make(map[string]*activeJob),
	}, nil
}

// Defaults returns the configured repair parameters and encodings.
func (s *Service) Defaults() (repair.Params, Encodings) {
	return s.defaults, s.defaultEnc
}

// ArtifactDir returns the directory holding job outputs.
func (s *Service) ArtifactDir() string {
	return s.artifactDir
}

// LimiterStatus returns current job slot usage.
func (s *Service) LimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until running jobs finish or ctx ends.
func (s *Service) WaitForJobs(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// History returns up to limit finished runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]store.RunRecord, error) {
	return s.store.List(ctx, limit)
}

// Run returns one history entry.
func (s *Service) Run(ctx context.Context, id string) (store.RunRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) lookup(jobID string) (*activeJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// forget removes the job and its outputs after delay.
func (s *Service) forget(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		job, ok := s.jobs[jobID]
		delete(s.jobs, jobID)
		s.mu.Unlock()
		if ok {
			removeArtifacts(job.dir)
		}
	})
}

// activeJob is the in-memory state of one job. progress, result and
// listeners are guarded by mu.
type activeJob struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Done     chan struct{}

	dir         string
	cleanName   string
	rejectsName string

	mu        sync.Mutex
	progress  JobProgress
	result    *JobResult
	listeners []chan JobProgress
}

func (job *activeJob) snapshot() JobProgress {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress
}

// update applies fn to the progress and sends the new state to listeners.
// Slow listeners miss intermediate updates.
func (job *activeJob) update(fn func(*JobProgress)) {
	job.mu.Lock()
	defer job.mu.Unlock()

	fn(&job.progress)
	for _, ch := range job.listeners {
		select {
		case ch <- job.progress:
		default:
		}
	}
}

func (job *activeJob) subscribe() <-chan JobProgress {
	ch := make(chan JobProgress, 10)

	job.mu.Lock()
	defer job.mu.Unlock()

	ch <- job.progress
	if job.result != nil {
		close(ch)
		return ch
	}
	job.listeners = append(job.listeners, ch)
	return ch
}

// finish records the result, sends the final state and closes listeners.
// The final state is delivered even to a listener whose buffer is full.
func (job *activeJob) finish(res *JobResult, final func(*JobProgress)) {
	job.mu.Lock()
	final(&job.progress)
	job.result = res
	listeners := job.listeners
	job.listeners = nil
	progress := job.progress
	job.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- progress:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- progress
		}
		close(ch)
	}
	close(job.Done)
}

func (job *activeJob) getResult() *JobResult {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.result
}
