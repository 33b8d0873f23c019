// Package store persists the history of repair runs.
//
// Postgres keeps history across restarts; Memory is used when no database
// is configured and in tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Run statuses recorded in history.
const (
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunRecord is one finished repair run.
type RunRecord struct {
	ID                 string    `json:"id"`
	FileName           string    `json:"file_name"`
	Delimiter          string    `json:"delimiter"`
	Columns            int       `json:"columns"`
	ChunkSize          int       `json:"chunk_size"`
	OverflowMultiplier int       `json:"overflow_multiplier"`
	InputEncoding      string    `json:"input_encoding"`
	OutputEncoding     string    `json:"output_encoding"`
	Accepted           int64     `json:"accepted"`
	Rejected           int64     `json:"rejected"`
	Lines              int64     `json:"lines"`
	Bytes              int64     `json:"bytes"`
	DurationMs         int64     `json:"duration_ms"`
	Status             string    `json:"status"`
	Error              string    `json:"error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Store saves and lists run records. Implementations are safe for
// concurrent use.
type Store interface {
	// Save inserts rec, replacing any record with the same ID.
	Save(ctx context.Context, rec RunRecord) error

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (RunRecord, error)

	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]RunRecord, error)

	Close()
}
