// File: internal/engage/batchloop_test.go
package engage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type snapResult struct {
	els []Element
	err error
}

// fakeMobile scripts the mobile surface collaborators: snapshots are
// consumed from a queue (stable content, or empty screens, once
// drained), feed checks from a queue (at the feed once drained).
type fakeMobile struct {
	snaps    []snapResult
	stable   []Element // returned forever once the queue is drained
	atFeed   []bool
	actCalls int
	scrolls  int
	backs    int
	resets   int
	resetErr error
}

func (f *fakeMobile) Snapshot(ctx context.Context) ([]Element, error) {
	if len(f.snaps) == 0 {
		return append([]Element{}, f.stable...), nil
	}
	r := f.snaps[0]
	f.snaps = f.snaps[1:]
	return r.els, r.err
}

func (f *fakeMobile) Act(ctx context.Context, el Element) error {
	f.actCalls++
	return nil
}

func (f *fakeMobile) Scroll(ctx context.Context, distance int) error {
	f.scrolls++
	return nil
}

func (f *fakeMobile) AtFeed(ctx context.Context) (bool, error) {
	if len(f.atFeed) == 0 {
		return true, nil
	}
	ok := f.atFeed[0]
	f.atFeed = f.atFeed[1:]
	return ok, nil
}

func (f *fakeMobile) Back(ctx context.Context) error {
	f.backs++
	return nil
}

func (f *fakeMobile) ResetEnvironment(ctx context.Context) error {
	f.resets++
	return f.resetErr
}

func screen(n int) []Element {
	var els []Element
	for i := 0; i < n; i++ {
		r := Rect{X: 60, Y: 300 + i*50, W: 48, H: 48}
		els = append(els, Element{Key: KeyFor(r), Bounds: r, Actionable: true})
	}
	return els
}

// filledCopy returns the screen with the given indexes still unfilled
// and everything else confirmed.
func filledCopy(els []Element, stillUnfilled ...int) []Element {
	keep := map[int]bool{}
	for _, i := range stillUnfilled {
		keep[i] = true
	}
	out := make([]Element, len(els))
	copy(out, els)
	for i := range out {
		out[i].Filled = !keep[i]
	}
	return out
}

func batchPolicy() Policy {
	p := DefaultPolicy()
	p.TapDelayMin = 0
	p.TapDelayMax = 0
	p.MinDelay = 0
	p.MaxDelay = 0
	p.VerifyTimeout = 10 * time.Millisecond
	p.VerifyInterval = time.Millisecond
	p.SafeTop = 0
	p.SafeBottom = 0
	p.ScrollDistance = 600
	return p
}

func newTestBatchLoop(p Policy, dev *fakeMobile, height int, dryRun bool) *BatchLoop {
	return NewBatchLoop(zap.NewNop(), p, dev, dev, dev, dev, dev, height, dryRun)
}

func TestBatchLoop_PartialReconciliation(t *testing.T) {
	batch := screen(10)
	dev := &fakeMobile{snaps: []snapResult{
		{els: batch},
		{els: filledCopy(batch, 3, 7)}, // two taps never registered
	}}

	loop := newTestBatchLoop(batchPolicy(), dev, 0, false)
	tracker := NewTracker(batchPolicy(), 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 10, dev.actCalls)
	assert.Equal(t, 8, res.Given, "optimistic counts rolled back for silent failures")
	assert.Equal(t, 2, tracker.Streak())
	assert.False(t, res.RateLimited)
	assert.Equal(t, StatusExhausted, res.Status, "empty screens after the batch exhaust the target")
}

func TestBatchLoop_FullRejectionIsRateLimit(t *testing.T) {
	batch := screen(5)
	dev := &fakeMobile{snaps: []snapResult{
		{els: batch},
		{els: batch}, // nothing registered
	}}

	loop := newTestBatchLoop(batchPolicy(), dev, 0, false)
	tracker := NewTracker(batchPolicy(), 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Given)
	assert.True(t, res.RateLimited)
	assert.Equal(t, StatusRateLimited, res.Status)
}

func TestBatchLoop_EnvironmentResetClearsTappedSet(t *testing.T) {
	p := batchPolicy()
	p.ResetEvery = 4
	batch := screen(5)
	dev := &fakeMobile{snaps: []snapResult{
		{els: batch},
		{els: filledCopy(batch)},
	}}

	loop := newTestBatchLoop(p, dev, 0, false)
	tracker := NewTracker(p, 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, StatusEnvReset, res.Status)
	assert.Equal(t, 5, res.Given)
	assert.Equal(t, 1, dev.resets)
	assert.Equal(t, 0, loop.Tapped().Len(), "positions do not survive a restart")
}

func TestBatchLoop_CapStopsMidBatch(t *testing.T) {
	p := batchPolicy()
	p.PerTargetCap = 3
	batch := screen(10)
	dev := &fakeMobile{snaps: []snapResult{
		{els: batch},
		{els: filledCopy(batch, 3, 4, 5, 6, 7, 8, 9)}, // only the first three were tapped
	}}

	loop := newTestBatchLoop(p, dev, 0, false)
	tracker := NewTracker(p, 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 3, dev.actCalls, "no taps past the cap")
	assert.Equal(t, 3, res.Given)
	assert.Equal(t, StatusCapReached, res.Status)
}

func TestBatchLoop_SafeRegionFiltersHeaderAndFooter(t *testing.T) {
	p := batchPolicy()
	p.SafeTop = 180
	p.SafeBottom = 140

	header := Element{Key: "hdr", Bounds: Rect{X: 60, Y: 40, W: 48, H: 48}, Actionable: true}
	footer := Element{Key: "ftr", Bounds: Rect{X: 60, Y: 930, W: 48, H: 48}, Actionable: true}
	mid := Element{Key: "mid", Bounds: Rect{X: 60, Y: 400, W: 48, H: 48}, Actionable: true}

	dev := &fakeMobile{snaps: []snapResult{
		{els: []Element{header, mid, footer}},
		{els: []Element{header, {Key: "mid", Bounds: mid.Bounds, Actionable: true, Filled: true}, footer}},
	}}

	loop := newTestBatchLoop(p, dev, 1000, false)
	tracker := NewTracker(p, 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 1, dev.actCalls, "only the mid-screen element is tappable")
	assert.Equal(t, 1, res.Given)
}

func TestBatchLoop_DryRunSkipsPrimitiveAndReconciliation(t *testing.T) {
	batch := screen(6)
	dev := &fakeMobile{snaps: []snapResult{{els: batch}}}

	loop := newTestBatchLoop(batchPolicy(), dev, 0, true)
	tracker := NewTracker(batchPolicy(), 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Zero(t, dev.actCalls)
	assert.Equal(t, 6, res.Given, "dry run counts candidates optimistically")
	assert.Equal(t, StatusExhausted, res.Status)
}

func TestBatchLoop_DryRunBoundedByObservedBacklog(t *testing.T) {
	// Without mutation the scrolled-back content re-enters every batch;
	// the run must stop at the first screen's backlog regardless.
	dev := &fakeMobile{stable: screen(4)}

	loop := newTestBatchLoop(batchPolicy(), dev, 0, true)
	tracker := NewTracker(batchPolicy(), 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Given)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Zero(t, dev.actCalls)
	assert.Zero(t, dev.resets, "a dry run must never tear down the emulator")
}

func TestBatchLoop_DryRunNeverResetsEnvironment(t *testing.T) {
	p := batchPolicy()
	p.PerTargetCap = 0 // unlimited: only the backlog may bound the run
	p.ResetEvery = 2
	dev := &fakeMobile{stable: screen(4)}

	loop := newTestBatchLoop(p, dev, 0, true)
	tracker := NewTracker(p, 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Given)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Zero(t, dev.resets)
}

func TestBatchLoop_BackRecoveryReturnsToFeed(t *testing.T) {
	batch := screen(2)
	dev := &fakeMobile{
		atFeed: []bool{false, false, true},
		snaps: []snapResult{
			{els: batch},
			{els: filledCopy(batch)},
		},
	}

	loop := newTestBatchLoop(batchPolicy(), dev, 0, false)
	tracker := NewTracker(batchPolicy(), 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err)

	assert.Equal(t, 2, dev.backs)
	assert.Equal(t, 2, res.Given)
}

func TestBatchLoop_SnapshotFailuresAbandonTarget(t *testing.T) {
	snapErr := assert.AnError
	dev := &fakeMobile{snaps: []snapResult{
		{err: snapErr}, {err: snapErr}, {err: snapErr},
	}}

	loop := newTestBatchLoop(batchPolicy(), dev, 0, false)
	tracker := NewTracker(batchPolicy(), 0)

	res, err := loop.Run(context.Background(), Target{ID: "club-9"}, tracker)
	require.NoError(t, err, "a single flaky target is not fatal for the surface")
	assert.Equal(t, StatusErrored, res.Status)
	assert.Equal(t, 1, res.Errors)
}
