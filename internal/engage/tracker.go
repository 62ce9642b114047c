// File: internal/engage/tracker.go
package engage

// Decision is the state machine's verdict after one recorded outcome.
type Decision int

const (
	// DecisionContinue keeps acting against the current target.
	DecisionContinue Decision = iota
	// DecisionSwitchTarget stops the current target (per-target cap) but
	// leaves the surface healthy.
	DecisionSwitchTarget
	// DecisionRateLimited is terminal for this session segment: the
	// consecutive-failure streak crossed the policy threshold.
	DecisionRateLimited
	// DecisionStopRun means the per-run allowance is spent.
	DecisionStopRun
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionSwitchTarget:
		return "switch_target"
	case DecisionRateLimited:
		return "rate_limited"
	case DecisionStopRun:
		return "stop_run"
	}
	return "unknown"
}

// Tracker is the rate-limit state machine for one target's loop
// invocation. It classifies business outcomes (not primitive calls):
// isolated rejections are expected noise from a sliding, partially
// recoverable window; a full streak of them is read as a hard block.
//
// The tracker is not goroutine safe. A loop owns exactly one tracker
// and feeds it sequentially.
type Tracker struct {
	policy Policy
	// budget is the remaining per-run allowance for this invocation;
	// zero means unlimited.
	budget int

	given       int
	errors      int
	streak      int
	errStreak   int
	rateLimited bool
}

// NewTracker builds a tracker for one target. budget carries the
// remaining per-run allowance into this invocation (0 = unlimited).
func NewTracker(p Policy, budget int) *Tracker {
	return &Tracker{policy: p, budget: budget}
}

// RecordOutcome feeds one business outcome into the state machine and
// returns the decision the loop must act on. A success resets the
// consecutive-failure streak; a failure below the threshold is treated
// as sporadic. Once rate limited, the verdict is sticky.
func (t *Tracker) RecordOutcome(success bool) Decision {
	if t.rateLimited {
		return DecisionRateLimited
	}
	if success {
		t.streak = 0
		t.errStreak = 0
		t.given++
		if t.budget > 0 && t.given >= t.budget {
			return DecisionStopRun
		}
		if t.policy.PerTargetCap > 0 && t.given >= t.policy.PerTargetCap {
			return DecisionSwitchTarget
		}
		return DecisionContinue
	}
	t.streak++
	if t.streak >= t.policy.FailureThreshold {
		t.rateLimited = true
		return DecisionRateLimited
	}
	return DecisionContinue
}

// RevokeSuccess undoes one optimistic increment. The batched loop counts
// taps as successes up front and calls this for every element the
// reconciliation snapshot still reports unfilled.
func (t *Tracker) RevokeSuccess() {
	if t.given > 0 {
		t.given--
	}
}

// RecordError counts a primitive-level failure (transport, timeout),
// which is tracked separately from business rejections. It reports true
// when the consecutive-error threshold is reached and the surface must
// be abandoned.
func (t *Tracker) RecordError() bool {
	t.errors++
	t.errStreak++
	return t.errStreak >= t.policy.ErrorThreshold
}

// Given returns successful actions recorded by this invocation.
func (t *Tracker) Given() int { return t.given }

// Errors returns cumulative primitive-level failures.
func (t *Tracker) Errors() int { return t.errors }

// Streak returns the current consecutive business-failure streak.
func (t *Tracker) Streak() int { return t.streak }

// RateLimited reports whether the terminal rate-limited state was hit.
func (t *Tracker) RateLimited() bool { return t.rateLimited }

// Budget returns the remaining run allowance this tracker was built with,
// zero meaning unlimited.
func (t *Tracker) Budget() int { return t.budget }

// Result snapshots the tracker into a LoopResult with the given status.
func (t *Tracker) Result(status TargetStatus) LoopResult {
	return LoopResult{
		Given:       t.given,
		Errors:      t.errors,
		RateLimited: t.rateLimited,
		Status:      status,
	}
}
