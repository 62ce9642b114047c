// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/config"
)

// Manager owns the headless Chrome process for the browser surface. One
// authenticated tab is created from it and exclusively owned by the
// running loop; nothing else acts on the session concurrently.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	sessionCancel context.CancelFunc
}

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	probeCtx, cancelProbe := context.WithTimeout(allocCtx, 30*time.Second)
	probeCtx, cancelTab := chromedp.NewContext(probeCtx)
	defer cancelTab()
	defer cancelProbe()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched", zap.Bool("headless", cfg.Browser.Headless))
	return m, nil
}

// buildAllocatorOptions assembles launch flags, dropping the ones that
// advertise automation.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions[:] {
		if flag, ok := opt.(chromedp.Flag); ok && flag.Name == "enable-automation" {
			continue
		}
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Browser.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Browser.Headless),
	)

	for _, arg := range m.cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// OpenSession creates the authenticated tab: injects the session cookie
// and navigates to the dashboard. An expired cookie is detected here and
// surfaced as a session-invalid condition, never as a transport error.
func (m *Manager) OpenSession(ctx context.Context) (*Session, error) {
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx)
	m.sessionCancel = cancel

	s := newSession(tabCtx, m.logger, m.cfg)

	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie(m.cfg.Session.CookieName, m.cfg.Session.Cookie).
				WithDomain(m.cfg.Session.CookieDomain).
				WithPath("/").
				WithHTTPOnly(true).
				WithSecure(true).
				Do(ctx)
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to inject session cookie: %w", err)
	}

	if err := s.openDashboard(ctx); err != nil {
		cancel()
		return nil, err
	}

	m.logger.Info("Authenticated browser session established")
	return s, nil
}

// Shutdown terminates the tab and the browser process.
func (m *Manager) Shutdown() {
	if m.sessionCancel != nil {
		m.sessionCancel()
	}
	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down browser process")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
}
