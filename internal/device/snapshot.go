// File: internal/device/snapshot.go
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jalverson/ovation-cli/internal/engage"
)

// Accessibility labels the app puts on kudos controls. An unfilled
// control invites the action; any other kudos label means it already
// happened.
const (
	descGiveKudos  = "Give kudos"
	descKudosGiven = "Kudos given"
)

// Snapshot dumps the current UI hierarchy through uiautomator and
// returns the kudos controls it contains. The dump is the expensive
// operation on this surface, which is why the batched loop pays for it
// once per screen instead of once per tap.
func (b *Bridge) Snapshot(ctx context.Context) ([]engage.Element, error) {
	out, err := b.adb(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, fmt.Errorf("ui dump failed: %w", err)
	}
	return parseHierarchy(out)
}

// parseHierarchy extracts kudos controls from a uiautomator XML dump.
// The dump sometimes carries a status line after the document, so the
// XML is clipped at the closing hierarchy tag first.
func parseHierarchy(dump string) ([]engage.Element, error) {
	end := strings.LastIndex(dump, "</hierarchy>")
	if end < 0 {
		return nil, fmt.Errorf("ui dump contains no hierarchy document")
	}
	start := strings.Index(dump, "<?xml")
	if start < 0 {
		start = strings.Index(dump, "<hierarchy")
	}
	if start < 0 || start > end {
		return nil, fmt.Errorf("ui dump is malformed")
	}
	xml := dump[start : end+len("</hierarchy>")]

	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, fmt.Errorf("failed to parse ui hierarchy: %w", err)
	}

	var els []engage.Element
	for _, node := range doc.FindElements("//node") {
		desc := node.SelectAttrValue("content-desc", "")
		filled := strings.EqualFold(desc, descKudosGiven)
		if !strings.EqualFold(desc, descGiveKudos) && !filled {
			continue
		}
		bounds, err := parseBounds(node.SelectAttrValue("bounds", ""))
		if err != nil {
			continue
		}
		els = append(els, engage.Element{
			Key:        engage.KeyFor(bounds),
			Bounds:     bounds,
			Label:      desc,
			Filled:     filled,
			Actionable: node.SelectAttrValue("clickable", "") == "true" && bounds.W > 0 && bounds.H > 0,
		})
	}
	return els, nil
}

// parseBounds decodes the "[x1,y1][x2,y2]" attribute format.
func parseBounds(raw string) (engage.Rect, error) {
	var x1, y1, x2, y2 int
	if _, err := fmt.Sscanf(raw, "[%d,%d][%d,%d]", &x1, &y1, &x2, &y2); err != nil {
		return engage.Rect{}, fmt.Errorf("unparseable bounds %q: %w", raw, err)
	}
	if x2 < x1 || y2 < y1 {
		return engage.Rect{}, fmt.Errorf("inverted bounds %q", raw)
	}
	return engage.Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, nil
}

// hasFeedMarker reports whether the dump shows a recognizable activity
// feed, used for navigation recovery.
func hasFeedMarker(dump, appPackage string) bool {
	markers := []string{
		appPackage + ":id/feed",
		appPackage + ":id/club_feed",
		"resource-id=\"" + appPackage + ":id/recycler_view\"",
	}
	for _, m := range markers {
		if strings.Contains(dump, m) {
			return true
		}
	}
	return false
}

// AtFeed checks the live hierarchy for the feed marker.
func (b *Bridge) AtFeed(ctx context.Context) (bool, error) {
	out, err := b.adb(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return false, fmt.Errorf("ui dump failed: %w", err)
	}
	return hasFeedMarker(out, b.cfg.AppPackage), nil
}
