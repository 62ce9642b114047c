// File: internal/orchestrator/orchestrator.go
// Drives a full run: enumerates targets per surface, hands each target
// to that surface's engagement loop, aggregates totals, and coordinates
// the browser-to-mobile handoff when the primary surface rate-limits or
// terminates abnormally.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/engage"
	"github.com/jalverson/ovation-cli/internal/runlog"
)

// Surface is one execution surface: its own session, target enumerator
// and action loop. The two surfaces are modeled as consuming independent
// limiter buckets; that is an empirical assumption carried from observed
// behavior, not a protocol guarantee, and the orchestrator encodes it
// only as sequencing (a fresh tracker per surface, no shared state).
type Surface interface {
	Name() string
	ListTargets(ctx context.Context) ([]engage.Target, error)
	RunTarget(ctx context.Context, target engage.Target, tracker *engage.Tracker) (engage.LoopResult, error)
}

// Orchestrator sequences surfaces and targets for one run.
type Orchestrator struct {
	log      *zap.Logger
	policy   engage.Policy
	runCap   int
	shuffle  bool
	dryRun   bool
	surfaces []Surface
	store    runlog.Store
	rng      *rand.Rand
}

// New builds an orchestrator. store may be nil to disable run history;
// surfaces run in the order given, secondary surfaces only after a
// primary that ended rate limited or terminated abnormally.
func New(
	log *zap.Logger,
	policy engage.Policy,
	runCap int,
	shuffle bool,
	dryRun bool,
	store runlog.Store,
	surfaces ...Surface,
) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil logger")
	}
	if len(surfaces) == 0 {
		return nil, fmt.Errorf("cannot initialize orchestrator with no surfaces")
	}
	return &Orchestrator{
		log:      log.Named("orchestrator"),
		policy:   policy,
		runCap:   runCap,
		shuffle:  shuffle,
		dryRun:   dryRun,
		surfaces: surfaces,
		store:    store,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run executes the whole session. Stopping because of a rate limit is
// the expected terminal condition of a normal run and is not an error;
// only authentication failure and cancellation propagate. Totals are
// always reported, and the run-log append can never mask them.
func (o *Orchestrator) Run(ctx context.Context) (engage.SessionResult, error) {
	var total engage.SessionResult

	// A surface that ended rate limited or terminated abnormally still
	// leaves unspent capacity on the next surface's limiter bucket; only
	// a cleanly finished surface means the run is done.
	handoff := true

	for _, surface := range o.surfaces {
		if !handoff || o.budgetSpent(total) {
			break
		}

		rateLimited, err := o.runSurface(ctx, surface, &total)
		if err != nil {
			if errors.Is(err, engage.ErrSessionInvalid) {
				o.appendRunLog(ctx, total)
				return total, err
			}
			if ctx.Err() != nil {
				o.appendRunLog(ctx, total)
				return total, err
			}
			// Surface-scoped failures (device unavailable, aborted after
			// primitive errors) end this surface but not the run.
			o.log.Warn("Surface terminated abnormally",
				zap.String("surface", surface.Name()), zap.Error(err))
			handoff = true
			continue
		}
		if rateLimited {
			total.RateLimited = true
		}
		handoff = rateLimited
	}

	o.log.Info("Run finished",
		zap.Int("given", total.Given),
		zap.Int("errors", total.Errors),
		zap.Bool("rate_limited", total.RateLimited))

	o.appendRunLog(ctx, total)
	return total, nil
}

// runSurface drives every target on one surface through the target state
// machine. It reports whether the surface ended rate limited.
func (o *Orchestrator) runSurface(ctx context.Context, surface Surface, total *engage.SessionResult) (bool, error) {
	log := o.log.With(zap.String("surface", surface.Name()))

	targets, err := surface.ListTargets(ctx)
	if err != nil {
		return false, fmt.Errorf("target enumeration failed: %w", err)
	}
	if o.shuffle {
		o.shuffleTargets(targets)
	}
	log.Info("Targets enumerated", zap.Int("count", len(targets)))

	for idx := 0; idx < len(targets); idx++ {
		if o.budgetSpent(*total) {
			log.Info("Run allowance spent, stopping surface")
			return false, nil
		}

		target := targets[idx]
		tracker := engage.NewTracker(o.policy, o.remaining(*total))

		res, err := surface.RunTarget(ctx, target, tracker)
		total.Add(res)

		if err != nil {
			if errors.Is(err, engage.ErrSessionInvalid) ||
				errors.Is(err, engage.ErrSurfaceAborted) ||
				errors.Is(err, engage.ErrDeviceUnavailable) ||
				ctx.Err() != nil {
				return res.RateLimited, err
			}
			// Target-scoped trouble never propagates past the target.
			log.Warn("Target failed, advancing",
				zap.String("target", target.ID), zap.Error(err))
			continue
		}

		log.Info("Target finished",
			zap.String("target", target.ID),
			zap.String("status", res.Status.String()),
			zap.Int("given", res.Given))

		switch res.Status {
		case engage.StatusRateLimited:
			return true, nil
		case engage.StatusBudgetSpent:
			return false, nil
		case engage.StatusEnvReset:
			// Fresh session identity: resume with the remaining targets
			// (current one included, it was not exhausted) re-shuffled.
			remaining := append([]engage.Target{}, targets[idx:]...)
			o.shuffleTargets(remaining)
			targets = remaining
			idx = -1
		}
	}
	return false, nil
}

// budgetSpent reports whether the per-run cap, if configured, is used up.
func (o *Orchestrator) budgetSpent(total engage.SessionResult) bool {
	return o.runCap > 0 && total.Given >= o.runCap
}

// remaining returns the allowance left for the next loop invocation.
func (o *Orchestrator) remaining(total engage.SessionResult) int {
	if o.runCap <= 0 {
		return 0
	}
	left := o.runCap - total.Given
	if left < 0 {
		return 0
	}
	return left
}

// shuffleTargets randomizes processing order so the limiter's attention
// and the daily totals spread evenly across a fixed target set.
func (o *Orchestrator) shuffleTargets(targets []engage.Target) {
	o.rng.Shuffle(len(targets), func(i, j int) {
		targets[i], targets[j] = targets[j], targets[i]
	})
}

// appendRunLog persists the run record on the side. A persistence
// failure is logged and swallowed; it must never mask the run's results.
func (o *Orchestrator) appendRunLog(ctx context.Context, total engage.SessionResult) {
	if o.store == nil {
		return
	}
	rec := runlog.NewRecord(total.Given, total.Errors, total.RateLimited, o.dryRun)
	stored, err := o.store.Append(ctx, rec)
	if err != nil {
		o.log.Warn("Failed to persist run record", zap.Error(err))
		return
	}
	o.log.Info("Run recorded",
		zap.String("id", stored.ID), zap.Int("day_total", stored.DayTotal))
}
