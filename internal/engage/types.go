// File: internal/engage/types.go
package engage

import "fmt"

// Target names one content collection (a club feed) the engine acts
// against. Targets are enumerated once per surface and are immutable.
type Target struct {
	ID   string
	Name string
}

func (t Target) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%s (%s)", t.Name, t.ID)
	}
	return t.ID
}

// Rect is the on-screen geometry of an element, in CSS pixels (browser)
// or physical pixels (device).
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the midpoint of the rectangle, the coordinate used for
// coordinate-based taps.
func (r Rect) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// PositionKey is a geometry-derived identity for an on-screen element.
// It is only a valid identity within one snapshot generation: two
// different pieces of content can occupy the same coordinates after a
// scroll or navigation. See TappedSet.
type PositionKey string

// KeyFor derives the position key from element geometry.
func KeyFor(r Rect) PositionKey {
	return PositionKey(fmt.Sprintf("%d,%d:%dx%d", r.X, r.Y, r.W, r.H))
}

// Element is a transient, snapshot-scoped descriptor of one interactive
// element in the UI.
type Element struct {
	Key        PositionKey
	Bounds     Rect
	Label      string
	Filled     bool // the action has already been performed on it
	Actionable bool
}

// TargetStatus is the terminal state of one target's processing.
type TargetStatus int

const (
	// StatusExhausted means no unfilled elements remain on the target.
	StatusExhausted TargetStatus = iota
	// StatusCapReached means the per-target or per-run cap stopped the loop.
	StatusCapReached
	// StatusRateLimited means the failure streak crossed the policy threshold.
	StatusRateLimited
	// StatusErrored means the target was abandoned after repeated
	// primitive or snapshot failures.
	StatusErrored
	// StatusEnvReset means the loop tore down and restarted its execution
	// environment mid-target; the caller should re-enumerate and resume.
	StatusEnvReset
	// StatusBudgetSpent means the remaining per-run allowance hit zero.
	StatusBudgetSpent
)

func (s TargetStatus) String() string {
	switch s {
	case StatusExhausted:
		return "exhausted"
	case StatusCapReached:
		return "cap_reached"
	case StatusRateLimited:
		return "rate_limited"
	case StatusErrored:
		return "errored"
	case StatusEnvReset:
		return "env_reset"
	case StatusBudgetSpent:
		return "budget_spent"
	}
	return "unknown"
}

// LoopResult is what one loop invocation reports back for one target.
type LoopResult struct {
	Given       int
	Errors      int
	RateLimited bool
	Status      TargetStatus
}

// SessionResult aggregates totals across all targets and both surfaces.
type SessionResult struct {
	Given       int
	Errors      int
	RateLimited bool
}

// Add folds one loop result into the session totals.
func (s *SessionResult) Add(r LoopResult) {
	s.Given += r.Given
	s.Errors += r.Errors
	if r.RateLimited {
		s.RateLimited = true
	}
}
