package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RunRecord 一次运行的持久化摘要
type RunRecord struct {
	RunID           string
	Status          string
	AbortedIn       string
	Error           string
	Fetched         int
	ParseSkipped    int
	CacheHit        bool
	Urgent          int
	HasAttachment   int
	Regular         int
	Attempted       int
	Sent            int
	Failed          int
	Duplicates      int
	FailedBranches  []string
	SkippedBranches []string
	Duration        time.Duration
	FinishedAt      time.Time
}

const createRunsTable = `
    CREATE TABLE IF NOT EXISTS mailflow_runs (
        run_id           TEXT PRIMARY KEY,
        status           TEXT NOT NULL,
        aborted_in       TEXT NOT NULL DEFAULT '',
        error            TEXT NOT NULL DEFAULT '',
        fetched          INT NOT NULL DEFAULT 0,
        parse_skipped    INT NOT NULL DEFAULT 0,
        cache_hit        BOOLEAN NOT NULL DEFAULT FALSE,
        urgent           INT NOT NULL DEFAULT 0,
        has_attachment   INT NOT NULL DEFAULT 0,
        regular          INT NOT NULL DEFAULT 0,
        attempted        INT NOT NULL DEFAULT 0,
        sent             INT NOT NULL DEFAULT 0,
        failed           INT NOT NULL DEFAULT 0,
        duplicates       INT NOT NULL DEFAULT 0,
        failed_branches  TEXT[] NOT NULL DEFAULT '{}',
        skipped_branches TEXT[] NOT NULL DEFAULT '{}',
        duration_ms      BIGINT NOT NULL DEFAULT 0,
        finished_at      TIMESTAMPTZ NOT NULL
    )
`

type RunRepository struct {
	db execer
}

func NewRunRepository(db execer) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the runs table when missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create mailflow_runs: %w", err)
	}
	return nil
}

// Insert 写入运行记录；同一 run_id 重复写入时保留第一条
func (r *RunRepository) Insert(ctx context.Context, rec *RunRecord) error {
	query := `
        INSERT INTO mailflow_runs (
            run_id, status, aborted_in, error,
            fetched, parse_skipped, cache_hit,
            urgent, has_attachment, regular,
            attempted, sent, failed, duplicates,
            failed_branches, skipped_branches, duration_ms, finished_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        ON CONFLICT (run_id) DO NOTHING
    `
	_, err := r.db.Exec(ctx, query,
		rec.RunID, rec.Status, rec.AbortedIn, rec.Error,
		rec.Fetched, rec.ParseSkipped, rec.CacheHit,
		rec.Urgent, rec.HasAttachment, rec.Regular,
		rec.Attempted, rec.Sent, rec.Failed, rec.Duplicates,
		nonNil(rec.FailedBranches), nonNil(rec.SkippedBranches),
		rec.Duration.Milliseconds(), rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
