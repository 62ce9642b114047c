// File: internal/runlog/pgstore.go
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised against
// pgxmock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore persists run records in Postgres. Optional backend for
// installations that want the history queryable alongside other data.
type PGStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPGStore verifies the connection and returns the store.
func NewPGStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PGStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PGStore{pool: pool, log: logger.Named("runlog_pg")}, nil
}

const sqlSameDayTotal = `
    SELECT COALESCE(SUM(given), 0)
    FROM runs
    WHERE recorded_at >= $1 AND recorded_at < $2 AND NOT dry_run;
`

const sqlInsertRun = `
    INSERT INTO runs (id, recorded_at, given, errors, rate_limited, dry_run, day_total)
    VALUES ($1, $2, $3, $4, $5, $6, $7);
`

// Append computes the same-day prefix total from rows already present
// and inserts rec. Rows are never updated after insertion.
func (s *PGStore) Append(ctx context.Context, rec Record) (Record, error) {
	recordedAt := rec.RecordedAt.UTC()
	dayStart := time.Date(recordedAt.Year(), recordedAt.Month(), recordedAt.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var prior int
	if err := s.pool.QueryRow(ctx, sqlSameDayTotal, dayStart, dayEnd).Scan(&prior); err != nil {
		return rec, fmt.Errorf("failed to sum same-day runs: %w", err)
	}
	rec.DayTotal = prior
	if !rec.DryRun {
		rec.DayTotal += rec.Given
	}

	if _, err := s.pool.Exec(ctx, sqlInsertRun,
		rec.ID, recordedAt, rec.Given, rec.Errors, rec.RateLimited, rec.DryRun, rec.DayTotal,
	); err != nil {
		return rec, fmt.Errorf("failed to insert run record: %w", err)
	}
	s.log.Debug("Run record inserted",
		zap.String("id", rec.ID), zap.Int("day_total", rec.DayTotal))
	return rec, nil
}

const sqlRecentRuns = `
    SELECT id, recorded_at, given, errors, rate_limited, dry_run, day_total
    FROM runs
    ORDER BY recorded_at DESC
    LIMIT $1;
`

// Recent returns up to n records in chronological order. n <= 0 means
// all records, matching FileStore.
func (s *PGStore) Recent(ctx context.Context, n int) ([]Record, error) {
	limit := any(n)
	if n <= 0 {
		limit = nil // LIMIT NULL disables the limit
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.RecordedAt, &rec.Given, &rec.Errors,
			&rec.RateLimited, &rec.DryRun, &rec.DayTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	// Newest last, matching the file store.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
