// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/engage"
	"github.com/jalverson/ovation-cli/internal/runlog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedOutcome is one RunTarget invocation's result on a fake surface.
type scriptedOutcome struct {
	res engage.LoopResult
	err error
}

type fakeSurface struct {
	name     string
	targets  []engage.Target
	listErr  error
	script   []scriptedOutcome
	runCalls int
	budgets  []int // remaining allowance seen per RunTarget call
}

func (s *fakeSurface) Name() string { return s.name }

func (s *fakeSurface) ListTargets(ctx context.Context) ([]engage.Target, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]engage.Target{}, s.targets...), nil
}

func (s *fakeSurface) RunTarget(ctx context.Context, target engage.Target, tracker *engage.Tracker) (engage.LoopResult, error) {
	s.budgets = append(s.budgets, tracker.Budget())
	i := s.runCalls
	s.runCalls++
	if i >= len(s.script) {
		return engage.LoopResult{Status: engage.StatusExhausted}, nil
	}
	return s.script[i].res, s.script[i].err
}

type fakeStore struct {
	records []runlog.Record
	err     error
}

func (s *fakeStore) Append(ctx context.Context, rec runlog.Record) (runlog.Record, error) {
	if s.err != nil {
		return runlog.Record{}, s.err
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *fakeStore) Recent(ctx context.Context, n int) ([]runlog.Record, error) {
	return s.records, nil
}

func targets(ids ...string) []engage.Target {
	var out []engage.Target
	for _, id := range ids {
		out = append(out, engage.Target{ID: id})
	}
	return out
}

func exhausted(given int) scriptedOutcome {
	return scriptedOutcome{res: engage.LoopResult{Given: given, Status: engage.StatusExhausted}}
}

func newTestOrchestrator(t *testing.T, runCap int, store runlog.Store, surfaces ...Surface) *Orchestrator {
	t.Helper()
	o, err := New(zap.NewNop(), engage.DefaultPolicy(), runCap, false, false, store, surfaces...)
	require.NoError(t, err)
	return o
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, engage.DefaultPolicy(), 0, false, false, nil, &fakeSurface{name: "browser"})
	assert.Error(t, err)

	_, err = New(zap.NewNop(), engage.DefaultPolicy(), 0, false, false, nil)
	assert.Error(t, err)
}

func TestRun_HandoffOnRateLimit(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a", "b", "c"),
		script: []scriptedOutcome{
			exhausted(12),
			{res: engage.LoopResult{Given: 4, RateLimited: true, Status: engage.StatusRateLimited}},
		},
	}
	mobile := &fakeSurface{
		name:    "mobile",
		targets: targets("a", "b"),
		script:  []scriptedOutcome{exhausted(9), exhausted(2)},
	}

	o := newTestOrchestrator(t, 0, nil, browser, mobile)
	total, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, browser.runCalls, "no third target after the rate limit")
	assert.Equal(t, 2, mobile.runCalls)
	assert.Equal(t, 27, total.Given)
	assert.True(t, total.RateLimited)
}

func TestRun_NoHandoffAfterCleanFinish(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a", "b"),
		script:  []scriptedOutcome{exhausted(5), exhausted(7)},
	}
	mobile := &fakeSurface{name: "mobile", targets: targets("a")}

	o := newTestOrchestrator(t, 0, nil, browser, mobile)
	total, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, mobile.runCalls, "secondary surface is a rate-limit continuation only")
	assert.Equal(t, 12, total.Given)
	assert.False(t, total.RateLimited)
}

func TestRun_BudgetThreadedThroughTrackers(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a", "b", "c"),
		script: []scriptedOutcome{
			exhausted(6),
			{res: engage.LoopResult{Given: 4, Status: engage.StatusBudgetSpent}},
		},
	}

	o := newTestOrchestrator(t, 10, nil, browser)
	total, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{10, 4}, browser.budgets, "each tracker carries the remaining allowance")
	assert.Equal(t, 2, browser.runCalls)
	assert.Equal(t, 10, total.Given)
}

func TestRun_HandoffAfterSurfaceAbort(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a", "b"),
		script: []scriptedOutcome{
			exhausted(5),
			{res: engage.LoopResult{Errors: 3, Status: engage.StatusErrored}, err: engage.ErrSurfaceAborted},
		},
	}
	mobile := &fakeSurface{
		name:    "mobile",
		targets: targets("a"),
		script:  []scriptedOutcome{exhausted(6)},
	}

	o := newTestOrchestrator(t, 0, nil, browser, mobile)
	total, err := o.Run(context.Background())
	require.NoError(t, err, "an aborted primary ends that surface, not the run")

	assert.Equal(t, 1, mobile.runCalls, "an abnormally terminated primary still hands off")
	assert.Equal(t, 11, total.Given)
	assert.Equal(t, 3, total.Errors)
	assert.False(t, total.RateLimited)
}

func TestRun_SessionInvalidIsFatal(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a", "b"),
		script:  []scriptedOutcome{{err: engage.ErrSessionInvalid}},
	}
	store := &fakeStore{}

	o := newTestOrchestrator(t, 0, store, browser)
	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, engage.ErrSessionInvalid)
	assert.Equal(t, 1, browser.runCalls)
	assert.Len(t, store.records, 1, "totals are persisted even on a fatal exit")
}

func TestRun_DeviceUnavailableEndsSurfaceNotRun(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a"),
		script: []scriptedOutcome{
			{res: engage.LoopResult{Given: 3, RateLimited: true, Status: engage.StatusRateLimited}},
		},
	}
	mobile := &fakeSurface{
		name:    "mobile",
		targets: targets("a"),
		script:  []scriptedOutcome{{err: engage.ErrDeviceUnavailable}},
	}

	o := newTestOrchestrator(t, 0, nil, browser, mobile)
	total, err := o.Run(context.Background())
	require.NoError(t, err, "device trouble on the secondary surface is not fatal")
	assert.Equal(t, 3, total.Given)
}

func TestRun_EnvResetResumesRemainingTargets(t *testing.T) {
	mobile := &fakeSurface{
		name:    "mobile",
		targets: targets("a", "b", "c"),
		script: []scriptedOutcome{
			exhausted(4),
			{res: engage.LoopResult{Given: 5, Status: engage.StatusEnvReset}},
			exhausted(3),
			exhausted(2),
		},
	}

	o := newTestOrchestrator(t, 0, nil, mobile)
	total, err := o.Run(context.Background())
	require.NoError(t, err)

	// a, b(reset), then b and c again after the reset.
	assert.Equal(t, 4, mobile.runCalls)
	assert.Equal(t, 14, total.Given)
}

func TestRun_StoreFailureDoesNotMaskResult(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a"),
		script:  []scriptedOutcome{exhausted(8)},
	}

	o := newTestOrchestrator(t, 0, &fakeStore{err: assert.AnError}, browser)
	total, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, total.Given)
}

func TestRun_RunRecordCarriesTotals(t *testing.T) {
	browser := &fakeSurface{
		name:    "browser",
		targets: targets("a"),
		script: []scriptedOutcome{
			{res: engage.LoopResult{Given: 6, Errors: 1, RateLimited: true, Status: engage.StatusRateLimited}},
		},
	}
	store := &fakeStore{}

	o := newTestOrchestrator(t, 0, store, browser)
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, 6, rec.Given)
	assert.Equal(t, 1, rec.Errors)
	assert.True(t, rec.RateLimited)
	assert.False(t, rec.DryRun)
}
