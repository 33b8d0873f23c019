package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS repair_runs (
	id                  UUID PRIMARY KEY,
	file_name           TEXT NOT NULL,
	delimiter           TEXT NOT NULL,
	column_count        INTEGER NOT NULL,
	chunk_size          INTEGER NOT NULL,
	overflow_multiplier INTEGER NOT NULL,
	input_encoding      TEXT NOT NULL,
	output_encoding     TEXT NOT NULL,
	accepted            BIGINT NOT NULL DEFAULT 0,
	rejected            BIGINT NOT NULL DEFAULT 0,
	lines               BIGINT NOT NULL DEFAULT 0,
	bytes               BIGINT NOT NULL DEFAULT 0,
	duration_ms         BIGINT NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	error               TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS repair_runs_created_at_idx ON repair_runs (created_at DESC);
`

const selectColumns = `id, file_name, delimiter, column_count, chunk_size, overflow_multiplier,
	input_encoding, output_encoding, accepted, rejected, lines, bytes, duration_ms,
	status, error, created_at`

// PoolOptions mirror the DB_* configuration settings.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and ensures the schema exists.
func OpenPostgres(ctx context.Context, url string, opts PoolOptions) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	poolConfig.MinConns = int32(opts.MinConns)
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := NewPostgres(pool)
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing pool. Call EnsureSchema before use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the repair_runs table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, rec RunRecord) error {
	id, err := toPgUUID(rec.ID)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO repair_runs (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			accepted = EXCLUDED.accepted,
			rejected = EXCLUDED.rejected,
			lines = EXCLUDED.lines,
			bytes = EXCLUDED.bytes,
			duration_ms = EXCLUDED.duration_ms,
			status = EXCLUDED.status,
			error = EXCLUDED.error`,
		id, rec.FileName, rec.Delimiter, rec.Columns, rec.ChunkSize, rec.OverflowMultiplier,
		rec.InputEncoding, rec.OutputEncoding, rec.Accepted, rec.Rejected, rec.Lines, rec.Bytes,
		rec.DurationMs, rec.Status, pgtype.Text{String: rec.Error, Valid: rec.Error != ""}, createdAt,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (RunRecord, error) {
	pgID, err := toPgUUID(id)
	if err != nil {
		return RunRecord{}, ErrNotFound
	}

	rows, err := p.pool.Query(ctx, `SELECT `+selectColumns+` FROM repair_runs WHERE id = $1`, pgID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	rec, err := pgx.CollectOneRow(rows, scanRun)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM repair_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return records, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func scanRun(row pgx.CollectableRow) (RunRecord, error) {
	var (
		rec       RunRecord
		id        pgtype.UUID
		errText   pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &rec.FileName, &rec.Delimiter, &rec.Columns, &rec.ChunkSize, &rec.OverflowMultiplier,
		&rec.InputEncoding, &rec.OutputEncoding, &rec.Accepted, &rec.Rejected, &rec.Lines, &rec.Bytes,
		&rec.DurationMs, &rec.Status, &errText, &createdAt,
	)
	if err != nil {
		return RunRecord{}, err
	}
	rec.ID = uuid.UUID(id.Bytes).String()
	rec.Error = errText.String
	rec.CreatedAt = createdAt.Time
	return rec, nil
}

func toPgUUID(s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}
