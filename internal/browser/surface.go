// File: internal/browser/surface.go
package browser

import (
	"context"

	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/engage"
)

// Surface adapts the authenticated session to the orchestrator's surface
// contract, pairing it with the synchronous verify-after-each loop.
type Surface struct {
	log     *zap.Logger
	session *Session
	policy  engage.Policy
	dryRun  bool
}

// NewSurface wraps an open session.
func NewSurface(logger *zap.Logger, session *Session, policy engage.Policy, dryRun bool) *Surface {
	return &Surface{
		log:     logger.Named("browser_surface"),
		session: session,
		policy:  policy,
		dryRun:  dryRun,
	}
}

func (s *Surface) Name() string { return "browser" }

// ListTargets enumerates clubs through the session.
func (s *Surface) ListTargets(ctx context.Context) ([]engage.Target, error) {
	return s.session.ListTargets(ctx)
}

// RunTarget opens the club feed and hands the target to a fresh
// synchronous loop instance.
func (s *Surface) RunTarget(ctx context.Context, target engage.Target, tracker *engage.Tracker) (engage.LoopResult, error) {
	if err := s.session.OpenFeed(ctx, target); err != nil {
		return engage.LoopResult{Status: engage.StatusErrored}, err
	}
	loop := engage.NewSyncLoop(s.log, s.policy, s.session, s.session, s.dryRun)
	return loop.Run(ctx, target, tracker)
}
