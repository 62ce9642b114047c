// File: internal/engage/policy.go
package engage

import (
	"context"
	"math/rand"
	"time"
)

// Policy collects the empirically tuned heuristics that model the remote
// rate limiter. None of these values are derived from protocol evidence;
// they were observed against one uncontrolled external service and are
// expected to drift, so they live here as a swappable value object and
// never as literals inside the loops.
type Policy struct {
	// FailureThreshold is the consecutive silent-rejection count after
	// which the limiter is assumed hard-blocked for this session segment.
	FailureThreshold int
	// ErrorThreshold is the consecutive primitive-error count after which
	// the whole surface is abandoned.
	ErrorThreshold int
	// PerTargetCap forces a target switch after this many successes even
	// with a clean streak, spreading load across the target set.
	PerTargetCap int

	// MinDelay and MaxDelay bound the randomized pause between verified
	// actions on the synchronous loop. Longer pauses are observed to let
	// the limiter forgive more.
	MinDelay time.Duration
	MaxDelay time.Duration

	// TapDelayMin and TapDelayMax bound the much smaller pause between
	// fire-and-forget taps inside one batch.
	TapDelayMin time.Duration
	TapDelayMax time.Duration

	// VerifyTimeout and VerifyInterval bound the post-action polling that
	// distinguishes a registered action from a silent rejection.
	VerifyTimeout  time.Duration
	VerifyInterval time.Duration

	// MaxEmptyScreens is how many consecutive element-free screens the
	// batched loop scrolls through before concluding the target is done.
	MaxEmptyScreens int
	// MaxSnapshotFailures bounds consecutive snapshot timeouts before the
	// current target is abandoned.
	MaxSnapshotFailures int
	// MaxBackSteps bounds the go-back recovery out of an unexpected view.
	MaxBackSteps int

	// ResetEvery forces a full environment restart after this many
	// cumulative successes on the mobile surface. The remote bucket is
	// observed to follow the ephemeral session identity, not the account.
	ResetEvery int
	// ScrollDistance is the fixed per-screen scroll on the mobile surface.
	ScrollDistance int

	// SafeTop and SafeBottom exclude fixed header and footer bands from
	// tapping, in pixels from the respective screen edge.
	SafeTop    int
	SafeBottom int
}

// DefaultPolicy returns the tuned values used against the live service.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold:    3,
		ErrorThreshold:      3,
		PerTargetCap:        30,
		MinDelay:            800 * time.Millisecond,
		MaxDelay:            2500 * time.Millisecond,
		TapDelayMin:         120 * time.Millisecond,
		TapDelayMax:         350 * time.Millisecond,
		VerifyTimeout:       time.Second,
		VerifyInterval:      200 * time.Millisecond,
		MaxEmptyScreens:     3,
		MaxSnapshotFailures: 3,
		MaxBackSteps:        4,
		ResetEvery:          60,
		ScrollDistance:      900,
		SafeTop:             180,
		SafeBottom:          140,
	}
}

// delayBetween returns a uniformly random duration in [min, max].
func delayBetween(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

// sleepCtx pauses for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
