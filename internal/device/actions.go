// File: internal/device/actions.go
package device

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jalverson/ovation-cli/internal/engage"
)

// Act taps the center of the element. Success here means the input event
// was delivered; whether the kudo registered is the engine's business.
func (b *Bridge) Act(ctx context.Context, el engage.Element) error {
	x, y := el.Bounds.Center()
	if _, err := b.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return fmt.Errorf("tap failed at %s: %w", el.Key, err)
	}
	return nil
}

// Scroll swipes vertically by distance pixels. The swipe runs up the
// screen to reveal content further down the feed.
func (b *Bridge) Scroll(ctx context.Context, distance int) error {
	w := b.cfg.ScreenWidth
	h := b.cfg.ScreenHeight
	if w <= 0 || h <= 0 {
		w, h = 1080, 1920
	}
	x := w / 2
	startY := h * 2 / 3
	endY := startY - distance
	if endY < 0 {
		endY = 0
	}
	_, err := b.shell(ctx, "input", "swipe",
		strconv.Itoa(x), strconv.Itoa(startY),
		strconv.Itoa(x), strconv.Itoa(endY),
		"300")
	if err != nil {
		return fmt.Errorf("swipe failed: %w", err)
	}
	return nil
}

// Back sends the platform back key.
func (b *Bridge) Back(ctx context.Context) error {
	if _, err := b.shell(ctx, "input", "keyevent", "4"); err != nil {
		return fmt.Errorf("back failed: %w", err)
	}
	return nil
}

// OpenFeed deep-links into the club's feed inside the app.
func (b *Bridge) OpenFeed(ctx context.Context, target engage.Target) error {
	uri := "strava://clubs/" + target.ID
	_, err := b.shell(ctx, "am", "start",
		"-a", "android.intent.action.VIEW", "-d", uri, b.cfg.AppPackage)
	if err != nil {
		return fmt.Errorf("failed to open club %s: %w", target.ID, err)
	}
	return nil
}
