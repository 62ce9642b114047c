// File: internal/engage/snapshot.go
package engage

// TappedSet remembers which on-screen slots were already acted on, keyed
// by position. Position keys are only trustworthy identity while the
// underlying layout holds still, so the set is scoped to a snapshot
// generation: Advance invalidates everything whenever content shifts
// (scroll, target switch, navigation, environment reset). Callers never
// clear the map directly; bumping the generation is the one idiom.
type TappedSet struct {
	gen  uint64
	keys map[PositionKey]uint64
}

// NewTappedSet returns an empty set at generation zero.
func NewTappedSet() *TappedSet {
	return &TappedSet{keys: make(map[PositionKey]uint64)}
}

// Mark records the key as acted on within the current generation.
func (s *TappedSet) Mark(k PositionKey) {
	s.keys[k] = s.gen
}

// Seen reports whether the key was acted on in the current generation.
// Entries from older generations are dead and answered false.
func (s *TappedSet) Seen(k PositionKey) bool {
	g, ok := s.keys[k]
	return ok && g == s.gen
}

// Advance invalidates all recorded positions by moving to the next
// generation. Stale entries are dropped eagerly to keep the map small.
func (s *TappedSet) Advance() {
	s.gen++
	for k := range s.keys {
		delete(s.keys, k)
	}
}

// Len returns the number of live entries in the current generation.
func (s *TappedSet) Len() int {
	n := 0
	for _, g := range s.keys {
		if g == s.gen {
			n++
		}
	}
	return n
}

// Generation exposes the current generation counter.
func (s *TappedSet) Generation() uint64 { return s.gen }

// UnfilledCount counts elements the action has not been performed on yet.
func UnfilledCount(els []Element) int {
	n := 0
	for _, el := range els {
		if !el.Filled && el.Actionable {
			n++
		}
	}
	return n
}

// FirstUnfilled returns the first actionable, unfilled element, if any.
func FirstUnfilled(els []Element) (Element, bool) {
	for _, el := range els {
		if !el.Filled && el.Actionable {
			return el, true
		}
	}
	return Element{}, false
}
