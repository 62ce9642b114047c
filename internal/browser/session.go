// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/config"
	"github.com/jalverson/ovation-cli/internal/engage"
)

// snapshotJS collects every kudos control currently rendered, with
// geometry and filled state. The filled check covers both the swapped
// icon and the title text the web app uses after a kudo registers.
const snapshotJS = `(() => {
    const out = [];
    const sel = 'button[data-testid="kudos_button"], button[title*="kudos" i]';
    for (const btn of document.querySelectorAll(sel)) {
        const r = btn.getBoundingClientRect();
        const filled = btn.querySelector('svg[data-testid="unfilled_kudos"]') === null;
        out.push({
            x: Math.round(r.x), y: Math.round(r.y),
            w: Math.round(r.width), h: Math.round(r.height),
            label: btn.getAttribute('title') || '',
            filled: filled,
            actionable: r.width > 0 && r.height > 0 && !btn.disabled,
        });
    }
    return out;
})()`

// loggedOutJS recognizes the logged-out state by the login form.
const loggedOutJS = `(() =>
    document.querySelector('#login_form, form[action*="/session"] input[type="password"]') !== null
)()`

// clubsJS scrapes the athlete's club memberships off the clubs page.
const clubsJS = `(() => {
    const seen = {};
    const out = [];
    for (const a of document.querySelectorAll('a[href*="/clubs/"]')) {
        const m = (a.getAttribute('href') || '').match(/\/clubs\/([A-Za-z0-9_-]+)/);
        if (!m || seen[m[1]]) continue;
        seen[m[1]] = true;
        out.push({ id: m[1], name: a.textContent.trim() });
    }
    return out;
})()`

type elementDTO struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	W          int    `json:"w"`
	H          int    `json:"h"`
	Label      string `json:"label"`
	Filled     bool   `json:"filled"`
	Actionable bool   `json:"actionable"`
}

type clubDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the authenticated browser tab. It implements the engine's
// Snapshotter, Actor and Scroller contracts plus target enumeration.
type Session struct {
	tab context.Context
	log *zap.Logger
	cfg *config.Config
}

func newSession(tab context.Context, logger *zap.Logger, cfg *config.Config) *Session {
	return &Session{
		tab: tab,
		log: logger.Named("browser_session"),
		cfg: cfg,
	}
}

// run executes chromedp actions on the tab, honoring the caller's
// cancellation and the configured navigation timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := s.cfg.Browser.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Snapshot returns the currently rendered kudos controls.
func (s *Session) Snapshot(ctx context.Context) ([]engage.Element, error) {
	var dtos []elementDTO
	if err := s.run(ctx, chromedp.Evaluate(snapshotJS, &dtos)); err != nil {
		return nil, fmt.Errorf("browser snapshot failed: %w", err)
	}

	els := make([]engage.Element, 0, len(dtos))
	for _, d := range dtos {
		bounds := engage.Rect{X: d.X, Y: d.Y, W: d.W, H: d.H}
		els = append(els, engage.Element{
			Key:        engage.KeyFor(bounds),
			Bounds:     bounds,
			Label:      d.Label,
			Filled:     d.Filled,
			Actionable: d.Actionable,
		})
	}
	return els, nil
}

// Act clicks the element at its center coordinate. The click is the
// primitive only; whether the kudo registered is decided by the engine's
// follow-up snapshot.
func (s *Session) Act(ctx context.Context, el engage.Element) error {
	x, y := el.Bounds.Center()
	if err := s.run(ctx, chromedp.MouseClickXY(float64(x), float64(y))); err != nil {
		return fmt.Errorf("click failed at %s: %w", el.Key, err)
	}
	return nil
}

// Scroll shifts the feed by distance pixels.
func (s *Session) Scroll(ctx context.Context, distance int) error {
	js := fmt.Sprintf("window.scrollBy(0, %d)", distance)
	if err := s.run(ctx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// openDashboard navigates to the logged-in dashboard and verifies the
// session is authenticated.
func (s *Session) openDashboard(ctx context.Context) error {
	url := s.cfg.Session.BaseURL + "/dashboard"
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("failed to open dashboard: %w", err)
	}
	return s.requireAuthenticated(ctx)
}

// OpenFeed navigates to the recent-activity feed of one club.
func (s *Session) OpenFeed(ctx context.Context, target engage.Target) error {
	url := fmt.Sprintf("%s/clubs/%s/recent_activity", s.cfg.Session.BaseURL, target.ID)
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("failed to open club feed %s: %w", target.ID, err)
	}
	return s.requireAuthenticated(ctx)
}

// ListTargets enumerates club memberships. Configured targets take
// precedence over scraping.
func (s *Session) ListTargets(ctx context.Context) ([]engage.Target, error) {
	if ids := s.cfg.Engage.Targets; len(ids) > 0 {
		targets := make([]engage.Target, 0, len(ids))
		for _, id := range ids {
			targets = append(targets, engage.Target{ID: id})
		}
		return targets, nil
	}

	url := s.cfg.Session.BaseURL + "/athlete/clubs"
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return nil, fmt.Errorf("failed to open clubs page: %w", err)
	}
	if err := s.requireAuthenticated(ctx); err != nil {
		return nil, err
	}

	var clubs []clubDTO
	if err := s.run(ctx, chromedp.Evaluate(clubsJS, &clubs)); err != nil {
		return nil, fmt.Errorf("failed to enumerate clubs: %w", err)
	}

	targets := make([]engage.Target, 0, len(clubs))
	for _, c := range clubs {
		targets = append(targets, engage.Target{ID: c.ID, Name: c.Name})
	}
	s.log.Info("Clubs enumerated", zap.Int("count", len(targets)))
	return targets, nil
}

// requireAuthenticated distinguishes an expired credential from every
// other failure mode; it must never be reported as a rate limit.
func (s *Session) requireAuthenticated(ctx context.Context) error {
	var loggedOut bool
	if err := s.run(ctx, chromedp.Evaluate(loggedOutJS, &loggedOut)); err != nil {
		return fmt.Errorf("login check failed: %w", err)
	}
	if loggedOut {
		return engage.ErrSessionInvalid
	}
	return nil
}
