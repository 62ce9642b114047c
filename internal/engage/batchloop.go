// File: internal/engage/batchloop.go
package engage

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// BatchLoop is the fire-and-forget loop used on the mobile surface,
// where a UI snapshot is expensive enough that per-tap verification
// would dominate the run time. One screen's worth of elements is tapped
// with only minimal spacing, counted optimistically, then settled
// against a single reconciliation snapshot. The blind window during
// which rate limiting can go undetected is bounded by one screen.
type BatchLoop struct {
	log    *zap.Logger
	policy Policy
	snap   Snapshotter
	act    Actor
	scroll Scroller
	nav    Navigator
	env    EnvResetter
	tapped *TappedSet
	rng    *rand.Rand
	dryRun bool

	// screenHeight anchors the safe-region filter; fixed header and
	// footer bands are excluded from tapping.
	screenHeight int

	// sinceReset counts confirmed successes across targets and drives
	// the periodic environment restart.
	sinceReset int
}

// NewBatchLoop builds the loop around the mobile surface collaborators.
func NewBatchLoop(
	log *zap.Logger,
	policy Policy,
	snap Snapshotter,
	act Actor,
	scroll Scroller,
	nav Navigator,
	env EnvResetter,
	screenHeight int,
	dryRun bool,
) *BatchLoop {
	return &BatchLoop{
		log:          log.Named("batch_loop"),
		policy:       policy,
		snap:         snap,
		act:          act,
		scroll:       scroll,
		nav:          nav,
		env:          env,
		tapped:       NewTappedSet(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		dryRun:       dryRun,
		screenHeight: screenHeight,
	}
}

// Tapped exposes the loop's position set. It is empty at the start of a
// new target and immediately after an environment reset.
func (l *BatchLoop) Tapped() *TappedSet { return l.tapped }

// Run processes one target screen by screen until it is exhausted or the
// tracker stops it. A failed environment reset returns
// ErrDeviceUnavailable; repeated primitive errors return
// ErrSurfaceAborted.
func (l *BatchLoop) Run(ctx context.Context, target Target, tracker *Tracker) (LoopResult, error) {
	log := l.log.With(zap.String("target", target.ID))
	log.Info("Starting batched engagement loop", zap.Bool("dry_run", l.dryRun))

	// Positions from a previous target occupy unrelated content.
	l.tapped.Advance()

	backlog := -1 // observed on the first snapshot; bounds dry-run
	emptyScreens := 0
	snapFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return tracker.Result(StatusErrored), err
		}

		if err := l.ensureFeed(ctx); err != nil {
			log.Warn("Could not recover the feed view, abandoning target", zap.Error(err))
			if tracker.RecordError() {
				return tracker.Result(StatusErrored), ErrSurfaceAborted
			}
			return tracker.Result(StatusErrored), nil
		}

		els, err := l.snap.Snapshot(ctx)
		if err != nil {
			snapFailures++
			log.Warn("Snapshot failed",
				zap.Int("consecutive", snapFailures), zap.Error(err))
			if snapFailures >= l.policy.MaxSnapshotFailures {
				if tracker.RecordError() {
					return tracker.Result(StatusErrored), ErrSurfaceAborted
				}
				return tracker.Result(StatusErrored), nil
			}
			// Unresponsive content is usually unstuck by a nudge.
			l.recoveryScroll(ctx)
			continue
		}
		snapFailures = 0

		if backlog < 0 {
			backlog = UnfilledCount(els)
			log.Debug("Observed initial backlog", zap.Int("unfilled", backlog))
		}

		batch := l.selectBatch(els)
		if len(batch) == 0 {
			emptyScreens++
			if emptyScreens >= l.policy.MaxEmptyScreens {
				log.Info("Target exhausted",
					zap.Int("given", tracker.Given()),
					zap.Int("empty_screens", emptyScreens))
				return tracker.Result(StatusExhausted), nil
			}
			if err := l.advanceScreen(ctx); err != nil {
				return tracker.Result(StatusErrored), err
			}
			continue
		}
		emptyScreens = 0

		tappedNow, pending, err := l.fireBatch(ctx, log, batch, tracker)
		if err != nil {
			return tracker.Result(StatusErrored), err
		}

		confirmed := len(tappedNow)
		if !l.dryRun && len(tappedNow) > 0 {
			failed, decision, rerr := l.settle(ctx, log, tappedNow, tracker)
			if rerr != nil {
				return tracker.Result(StatusErrored), rerr
			}
			confirmed = len(tappedNow) - failed
			if decision == DecisionRateLimited {
				log.Warn("Rate limit assumed, stopping target",
					zap.Int("given", tracker.Given()),
					zap.Int("streak", tracker.Streak()))
				return tracker.Result(StatusRateLimited), nil
			}
		}
		l.sinceReset += confirmed

		switch pending {
		case DecisionSwitchTarget:
			log.Info("Per-target cap reached", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusCapReached), nil
		case DecisionStopRun:
			log.Info("Run allowance spent", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusBudgetSpent), nil
		}

		if l.dryRun && tracker.Given() >= backlog {
			// No mutation happens, so scrolled-back content re-enters the
			// batch forever; the initial backlog is the only sound
			// stopping point. Nothing real may run, the reset included.
			log.Info("Dry run consumed observed backlog", zap.Int("given", tracker.Given()))
			return tracker.Result(StatusExhausted), nil
		}

		if !l.dryRun && l.env != nil && l.policy.ResetEvery > 0 && l.sinceReset >= l.policy.ResetEvery {
			log.Info("Restarting execution environment to reset the limiter bucket",
				zap.Int("successes_since_reset", l.sinceReset))
			if err := l.env.ResetEnvironment(ctx); err != nil {
				return tracker.Result(StatusErrored),
					fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
			}
			l.sinceReset = 0
			// Positions are screen relative and meaningless across a reset.
			l.tapped.Advance()
			return tracker.Result(StatusEnvReset), nil
		}

		if err := l.advanceScreen(ctx); err != nil {
			return tracker.Result(StatusErrored), err
		}
	}
}

// selectBatch filters a snapshot down to elements worth tapping: unfilled,
// actionable, inside the safe vertical band, and not yet tapped in the
// current generation.
func (l *BatchLoop) selectBatch(els []Element) []Element {
	var batch []Element
	for _, el := range els {
		if el.Filled || !el.Actionable {
			continue
		}
		if !l.inSafeRegion(el.Bounds) {
			continue
		}
		if l.tapped.Seen(el.Key) {
			continue
		}
		batch = append(batch, el)
	}
	return batch
}

// inSafeRegion excludes the fixed header and footer bands, which host
// controls that are easy to misidentify and expensive to mis-tap.
func (l *BatchLoop) inSafeRegion(r Rect) bool {
	if l.screenHeight <= 0 {
		return true
	}
	if r.Y < l.policy.SafeTop {
		return false
	}
	if r.Y+r.H > l.screenHeight-l.policy.SafeBottom {
		return false
	}
	return true
}

// fireBatch taps every candidate in immediate sequence, incrementing the
// tracker optimistically. It returns the elements actually tapped and
// any cap decision that must be honored after reconciliation.
func (l *BatchLoop) fireBatch(ctx context.Context, log *zap.Logger, batch []Element, tracker *Tracker) ([]Element, Decision, error) {
	var tappedNow []Element
	pending := DecisionContinue

	for _, el := range batch {
		if err := ctx.Err(); err != nil {
			return tappedNow, pending, err
		}
		if !l.dryRun {
			if err := l.act.Act(ctx, el); err != nil {
				log.Warn("Tap primitive failed",
					zap.String("position", string(el.Key)), zap.Error(err))
				if tracker.RecordError() {
					return tappedNow, pending, ErrSurfaceAborted
				}
				continue
			}
		}
		l.tapped.Mark(el.Key)
		tappedNow = append(tappedNow, el)

		// Optimistic: counted as success now, settled after the batch.
		switch tracker.RecordOutcome(true) {
		case DecisionSwitchTarget:
			return tappedNow, DecisionSwitchTarget, nil
		case DecisionStopRun:
			return tappedNow, DecisionStopRun, nil
		}

		if err := sleepCtx(ctx, delayBetween(l.rng, l.policy.TapDelayMin, l.policy.TapDelayMax)); err != nil {
			return tappedNow, pending, err
		}
	}
	return tappedNow, pending, nil
}

// settle takes the single post-batch snapshot, undoes the optimistic
// increment for every tap that did not register, and feeds one failure
// per such element into the tracker. It returns the failure count and
// the last decision.
func (l *BatchLoop) settle(ctx context.Context, log *zap.Logger, tappedNow []Element, tracker *Tracker) (int, Decision, error) {
	after, err := l.snap.Snapshot(ctx)
	if err != nil {
		// Without the follow-up snapshot the optimistic counts stand;
		// the next screen's accounting will catch a hard block.
		log.Warn("Reconciliation snapshot failed, keeping optimistic counts", zap.Error(err))
		if tracker.RecordError() {
			return 0, DecisionContinue, ErrSurfaceAborted
		}
		return 0, DecisionContinue, nil
	}

	failed := Reconcile(tappedNow, after)
	decision := DecisionContinue
	for range failed {
		tracker.RevokeSuccess()
		decision = tracker.RecordOutcome(false)
	}
	if len(failed) > 0 {
		log.Debug("Reconciliation found silent rejections",
			zap.Int("tapped", len(tappedNow)),
			zap.Int("failed", len(failed)),
			zap.Int("streak", tracker.Streak()))
	}
	return len(failed), decision, nil
}

// ensureFeed performs a bounded go-back recovery when the session was
// bounced into an unrelated detail view.
func (l *BatchLoop) ensureFeed(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		ok, err := l.nav.AtFeed(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= l.policy.MaxBackSteps {
			return fmt.Errorf("feed view not reachable after %d back steps", attempt)
		}
		if err := l.nav.Back(ctx); err != nil {
			return err
		}
		// Navigation shifts content under every recorded position.
		l.tapped.Advance()
	}
}

// advanceScreen scrolls forward by the fixed distance and invalidates
// position identity for the new layout.
func (l *BatchLoop) advanceScreen(ctx context.Context) error {
	if err := l.scroll.Scroll(ctx, l.policy.ScrollDistance); err != nil {
		return err
	}
	l.tapped.Advance()
	return nil
}

// recoveryScroll is a best-effort nudge applied between snapshot retries.
func (l *BatchLoop) recoveryScroll(ctx context.Context) {
	if err := l.scroll.Scroll(ctx, l.policy.ScrollDistance/3); err != nil {
		l.log.Debug("Recovery scroll failed", zap.Error(err))
		return
	}
	l.tapped.Advance()
}
