// File: internal/engage/syncloop.go
package engage

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// SyncLoop is the verify-after-each-action loop used on the browser
// surface, where a fresh snapshot is cheap enough to pay per action.
// Each iteration re-fetches the element list, acts on the first unfilled
// element, then polls until the unfilled count drops or the verify
// window closes; a window that closes without a drop is a silent
// rejection fed to the tracker as a failure.
type SyncLoop struct {
	log    *zap.Logger
	policy Policy
	snap   Snapshotter
	act    Actor
	dryRun bool
	rng    *rand.Rand
}

// NewSyncLoop builds the loop. In dry-run mode the primitive is never
// invoked; every attempt is counted as an optimistic success and the
// loop ends once the initially observed backlog is consumed.
func NewSyncLoop(log *zap.Logger, policy Policy, snap Snapshotter, act Actor, dryRun bool) *SyncLoop {
	return &SyncLoop{
		log:    log.Named("sync_loop"),
		policy: policy,
		snap:   snap,
		act:    act,
		dryRun: dryRun,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run processes one target to completion or until the tracker stops it.
// ErrSurfaceAborted is returned when consecutive primitive errors cross
// the policy threshold; every other terminal condition is reported
// through the LoopResult status.
func (l *SyncLoop) Run(ctx context.Context, target Target, tracker *Tracker) (LoopResult, error) {
	log := l.log.With(zap.String("target", target.ID))
	log.Info("Starting synchronous engagement loop", zap.Bool("dry_run", l.dryRun))

	backlog := -1 // observed on the first snapshot; bounds dry-run

	for {
		if err := ctx.Err(); err != nil {
			return tracker.Result(StatusErrored), err
		}

		// Always re-fetch: geometry from the previous iteration is stale
		// the moment the prior action registered.
		els, err := l.snap.Snapshot(ctx)
		if err != nil {
			log.Warn("Snapshot failed", zap.Error(err))
			if tracker.RecordError() {
				return tracker.Result(StatusErrored), ErrSurfaceAborted
			}
			if err := sleepCtx(ctx, l.policy.VerifyInterval); err != nil {
				return tracker.Result(StatusErrored), err
			}
			continue
		}

		before := UnfilledCount(els)
		if backlog < 0 {
			backlog = before
			log.Debug("Observed initial backlog", zap.Int("unfilled", backlog))
		}

		el, ok := FirstUnfilled(els)
		if !ok {
			log.Info("Target exhausted", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusExhausted), nil
		}

		var outcome bool
		if l.dryRun {
			// No mutation happens, so the observed list never shrinks;
			// the initial backlog is the only sound stopping point.
			outcome = true
		} else {
			if err := l.act.Act(ctx, el); err != nil {
				log.Warn("Action primitive failed", zap.String("position", string(el.Key)), zap.Error(err))
				if tracker.RecordError() {
					return tracker.Result(StatusErrored), ErrSurfaceAborted
				}
				if err := l.pause(ctx); err != nil {
					return tracker.Result(StatusErrored), err
				}
				continue
			}
			outcome = l.verify(ctx, before)
		}

		decision := tracker.RecordOutcome(outcome)
		if !outcome {
			log.Debug("Silent rejection detected",
				zap.Int("streak", tracker.Streak()),
				zap.String("decision", decision.String()))
		}

		switch decision {
		case DecisionRateLimited:
			log.Warn("Rate limit assumed, stopping target",
				zap.Int("given", tracker.Given()),
				zap.Int("streak", tracker.Streak()))
			return tracker.Result(StatusRateLimited), nil
		case DecisionSwitchTarget:
			log.Info("Per-target cap reached", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusCapReached), nil
		case DecisionStopRun:
			log.Info("Run allowance spent", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusBudgetSpent), nil
		}

		if l.dryRun && tracker.Given() >= backlog {
			log.Info("Dry run consumed observed backlog", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusExhausted), nil
		}

		if err := l.pause(ctx); err != nil {
			return tracker.Result(StatusErrored), err
		}
	}
}

// verify polls the snapshot until the unfilled count drops below before
// or the verify window elapses. Polling failures are folded into a
// negative verdict; the next iteration's snapshot will surface a real
// transport problem.
func (l *SyncLoop) verify(ctx context.Context, before int) bool {
	deadline := time.Now().Add(l.policy.VerifyTimeout)
	for {
		if ctx.Err() != nil {
			return false
		}
		els, err := l.snap.Snapshot(ctx)
		if err == nil && UnfilledCount(els) < before {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if sleepCtx(ctx, l.policy.VerifyInterval) != nil {
			return false
		}
	}
}

// pause inserts the randomized inter-action delay. The magnitude is a
// deliberate throughput/safety trade-off: the remote limiter forgives
// more at longer spacings.
func (l *SyncLoop) pause(ctx context.Context) error {
	return sleepCtx(ctx, delayBetween(l.rng, l.policy.MinDelay, l.policy.MaxDelay))
}
