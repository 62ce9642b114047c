// File: internal/engage/interfaces.go
// Narrow contracts the engine consumes from a surface implementation.
// The engine owns the pacing, accounting and rate-limit decisions; the
// surface owns locator mechanics, transport and process lifecycle.
package engage

import "context"

// Snapshotter returns the current flat list of interactive elements.
// A timeout error is a transient condition the loops recover from.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]Element, error)
}

// Actor performs the platform primitive (click or tap) on one element.
// A returned error reports failure of the primitive call itself, never
// of the business effect; silent rejections surface only through a
// follow-up snapshot.
type Actor interface {
	Act(ctx context.Context, el Element) error
}

// Scroller shifts the visible content by a pixel distance. Positive
// distance reveals newer content further down the feed.
type Scroller interface {
	Scroll(ctx context.Context, distance int) error
}

// Navigator recovers from unexpected navigation states on the mobile
// surface.
type Navigator interface {
	// AtFeed reports whether a recognizable activity feed is on screen.
	AtFeed(ctx context.Context) (bool, error)
	// Back performs one platform back action.
	Back(ctx context.Context) error
}

// EnvResetter tears down and relaunches the execution environment to
// obtain a fresh session identity, then waits (bounded) for readiness.
type EnvResetter interface {
	ResetEnvironment(ctx context.Context) error
}

// TargetLister enumerates the clubs available to this surface's session.
// An unauthenticated session must surface ErrSessionInvalid, never a
// rate-limit condition.
type TargetLister interface {
	ListTargets(ctx context.Context) ([]Target, error)
}
