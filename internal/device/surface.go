// File: internal/device/surface.go
package device

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/config"
	"github.com/jalverson/ovation-cli/internal/engage"
)

// Surface adapts the device bridge to the orchestrator's surface
// contract, pairing it with the batched fire-and-forget loop. One loop
// instance lives for the whole surface so the reset counter accumulates
// across targets. The emulator boots lazily on first use: as a handoff
// surface it often never runs at all.
type Surface struct {
	log     *zap.Logger
	bridge  *Bridge
	cfg     *config.Config
	loop    *engage.BatchLoop
	started bool
}

// NewSurface wires the loop around the bridge without booting anything.
func NewSurface(logger *zap.Logger, bridge *Bridge, cfg *config.Config, policy engage.Policy) *Surface {
	return &Surface{
		log:    logger.Named("device_surface"),
		bridge: bridge,
		cfg:    cfg,
		loop: engage.NewBatchLoop(
			logger, policy,
			bridge, bridge, bridge, bridge, bridge,
			cfg.Device.ScreenHeight,
			cfg.Engage.DryRun,
		),
	}
}

func (s *Surface) Name() string { return "mobile" }

// ensureStarted boots the emulator and launches the app once. A failure
// here is fatal to the mobile surface for the rest of the run.
func (s *Surface) ensureStarted(ctx context.Context) error {
	if s.started {
		return nil
	}
	if err := s.bridge.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", engage.ErrDeviceUnavailable, err)
	}
	if err := s.bridge.LaunchApp(ctx); err != nil {
		return fmt.Errorf("%w: %v", engage.ErrDeviceUnavailable, err)
	}
	s.started = true
	return nil
}

// ListTargets enumerates clubs for the mobile session. The device
// surface has no scrapeable club directory worth the snapshot cost, so
// the configured target set is required here.
func (s *Surface) ListTargets(ctx context.Context) ([]engage.Target, error) {
	if err := s.ensureStarted(ctx); err != nil {
		return nil, err
	}
	ids := s.cfg.Engage.Targets
	if len(ids) == 0 {
		return nil, fmt.Errorf("mobile surface requires engage.targets to be configured")
	}
	targets := make([]engage.Target, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, engage.Target{ID: id})
	}
	return targets, nil
}

// RunTarget opens the club feed and hands the target to the batched
// loop, holding exclusive device ownership for the duration.
func (s *Surface) RunTarget(ctx context.Context, target engage.Target, tracker *engage.Tracker) (engage.LoopResult, error) {
	if err := s.ensureStarted(ctx); err != nil {
		return engage.LoopResult{Status: engage.StatusErrored}, err
	}
	if err := s.bridge.Acquire(ctx); err != nil {
		return engage.LoopResult{Status: engage.StatusErrored}, err
	}
	defer s.bridge.Release()

	if err := s.bridge.OpenFeed(ctx, target); err != nil {
		return engage.LoopResult{Status: engage.StatusErrored}, err
	}
	return s.loop.Run(ctx, target, tracker)
}
