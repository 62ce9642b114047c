// File: internal/runlog/runlog_test.go
package runlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recAt(ts time.Time, given int, dryRun bool) Record {
	return Record{ID: "r", RecordedAt: ts, Given: given, DryRun: dryRun}
}

func TestSameUTCDay(t *testing.T) {
	base := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

	assert.True(t, SameUTCDay(base, base.Add(29*time.Minute)))
	assert.False(t, SameUTCDay(base, base.Add(31*time.Minute)), "crossing UTC midnight starts a new day")

	// Local zones do not matter; only the UTC calendar day does.
	est := time.FixedZone("EST", -5*3600)
	assert.True(t, SameUTCDay(base, base.In(est)))
}

func TestDayTotalFor(t *testing.T) {
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	yesterday := day.Add(-24 * time.Hour)

	history := []Record{
		recAt(yesterday, 40, false), // different day, excluded
		recAt(day, 10, false),
		recAt(day.Add(time.Hour), 7, true), // dry run, excluded
		recAt(day.Add(2*time.Hour), 5, false),
	}

	t.Run("prefix sum includes the new record", func(t *testing.T) {
		rec := recAt(day.Add(3*time.Hour), 8, false)
		assert.Equal(t, 23, DayTotalFor(history, rec))
	})

	t.Run("dry run contributes nothing, not even itself", func(t *testing.T) {
		rec := recAt(day.Add(3*time.Hour), 8, true)
		assert.Equal(t, 15, DayTotalFor(history, rec))
	})

	t.Run("empty history", func(t *testing.T) {
		rec := recAt(day, 12, false)
		assert.Equal(t, 12, DayTotalFor(nil, rec))
	})
}

func TestNewRecordStampsIdentity(t *testing.T) {
	rec := NewRecord(5, 1, true, false)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, time.UTC, rec.RecordedAt.Location())
	assert.Equal(t, 5, rec.Given)
	assert.Equal(t, 1, rec.Errors)
	assert.True(t, rec.RateLimited)
	assert.Zero(t, rec.DayTotal, "the store fills the day total at append time")
}
