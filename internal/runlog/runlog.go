// File: internal/runlog/runlog.go
// Run history persistence. One immutable record is appended per run; a
// record carries a same-day cumulative total computed at append time.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one finished run. Records are immutable once appended: the
// DayTotal of record i sums the Given of all non-dry-run records on the
// same UTC calendar day at index <= i. It is a prefix sum, never a
// global sum, so historical totals stay correct as later runs land on
// the same day.
type Record struct {
	ID          string    `json:"id"`
	RecordedAt  time.Time `json:"recorded_at"`
	Given       int       `json:"given"`
	Errors      int       `json:"errors"`
	RateLimited bool      `json:"rate_limited"`
	DryRun      bool      `json:"dry_run"`
	DayTotal    int       `json:"day_total"`
}

// NewRecord stamps a fresh record with identity and a UTC timestamp.
// DayTotal is filled in by the store at append time.
func NewRecord(given, errors int, rateLimited, dryRun bool) Record {
	return Record{
		ID:          uuid.NewString(),
		RecordedAt:  time.Now().UTC(),
		Given:       given,
		Errors:      errors,
		RateLimited: rateLimited,
		DryRun:      dryRun,
	}
}

// SameUTCDay reports whether both timestamps fall on the same UTC
// calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// DayTotalFor computes the cumulative same-day total for rec given the
// history appended before it. Dry runs contribute nothing, including
// the record itself.
func DayTotalFor(history []Record, rec Record) int {
	total := 0
	for _, h := range history {
		if h.DryRun || !SameUTCDay(h.RecordedAt, rec.RecordedAt) {
			continue
		}
		total += h.Given
	}
	if !rec.DryRun {
		total += rec.Given
	}
	return total
}

// Store persists run records. Append must never be allowed to mask a
// completed run's results; callers log its error and move on.
type Store interface {
	// Append persists rec with its DayTotal filled in and returns the
	// stored record.
	Append(ctx context.Context, rec Record) (Record, error)
	// Recent returns up to n records, newest last.
	Recent(ctx context.Context, n int) ([]Record, error)
}
