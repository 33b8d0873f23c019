package core

import (
	"io"
	"time"

	"github.com/JonMunkholm/txtfix/internal/repair"
)

// JobPhase indicates the current stage of a repair job.
type JobPhase string

const (
	PhaseStarting   JobPhase = "starting"
	PhaseProcessing JobPhase = "processing"
	PhaseComplete   JobPhase = "complete"
	PhaseFailed     JobPhase = "failed"
	PhaseCancelled  JobPhase = "cancelled"
)

// Finished reports whether the phase is terminal.
func (p JobPhase) Finished() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// Encodings names the input and output charsets of a job.
type Encodings struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// JobRequest describes a repair to run.
//
// The service takes ownership of Reader: if it implements io.Closer it is
// closed when the job ends.
type JobRequest struct {
	FileName  string
	Reader    io.Reader
	Size      int64 // raw size in bytes, 0 if unknown
	Params    repair.Params
	Encodings Encodings
}

// JobProgress is the live state of a job, as published to subscribers.
type JobProgress struct {
	JobID      string   `json:"job_id"`
	Phase      JobPhase `json:"phase"`
	FileName   string   `json:"file_name"`
	Lines      int64    `json:"lines"`
	Accepted   int64    `json:"accepted"`
	Rejected   int64    `json:"rejected"`
	BytesRead  int64    `json:"bytes_read"`
	BytesTotal int64    `json:"bytes_total"`
	ElapsedMs  int64    `json:"elapsed_ms"`
	MBPerSec   float64  `json:"mb_per_sec"`
	Error      string   `json:"error,omitempty"`
}

// Percent returns byte progress as 0-100, or 0 if the size is unknown.
func (p JobProgress) Percent() int {
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := int(p.BytesRead * 100 / p.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (p *JobProgress) apply(stats repair.RunStats) {
	p.Lines = stats.Lines
	p.Accepted = stats.Accepted
	p.Rejected = stats.Rejected
	p.BytesRead = stats.Bytes
	p.ElapsedMs = stats.Elapsed.Milliseconds()
	p.MBPerSec = stats.Throughput()
}

// JobResult is the summary of a finished job.
type JobResult struct {
	JobID       string          `json:"job_id"`
	FileName    string          `json:"file_name"`
	Phase       JobPhase        `json:"phase"`
	Params      repair.Params   `json:"params"`
	Encodings   Encodings       `json:"encodings"`
	Stats       repair.RunStats `json:"stats"`
	MBPerSec    float64         `json:"mb_per_sec"`
	Compressed  bool            `json:"compressed"`
	Error       string          `json:"error,omitempty"`
	UserError   *UserMessage    `json:"user_error,omitempty"`
	CleanName   string          `json:"clean_name,omitempty"`
	RejectsName string          `json:"rejects_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HasArtifacts reports whether outputs can be downloaded.
func (r *JobResult) HasArtifacts() bool {
	return r.Phase == PhaseComplete || r.Phase == PhaseCancelled
}
