// File: internal/engage/reconcile.go
package engage

// Reconcile is the batched loop's post-hoc accounting step. Given the
// elements tapped in the last batch and a single follow-up snapshot, it
// returns exactly those taps that did not take effect: elements whose
// position is still present and still unfilled. Positions that vanished
// from the snapshot (content re-rendered, element replaced by a filled
// control of different geometry) count as confirmed successes.
//
// Kept as a standalone function: exact accounting of which taps failed
// is the crux of the batched design and is tested independently of the
// loop mechanics.
func Reconcile(tapped []Element, after []Element) []Element {
	if len(tapped) == 0 {
		return nil
	}

	unfilled := make(map[PositionKey]struct{}, len(after))
	for _, el := range after {
		if !el.Filled && el.Actionable {
			unfilled[el.Key] = struct{}{}
		}
	}

	var failed []Element
	for _, el := range tapped {
		if _, still := unfilled[el.Key]; still {
			failed = append(failed, el)
		}
	}
	return failed
}
