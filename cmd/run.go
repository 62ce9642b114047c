// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jalverson/ovation-cli/internal/browser"
	"github.com/jalverson/ovation-cli/internal/config"
	"github.com/jalverson/ovation-cli/internal/device"
	"github.com/jalverson/ovation-cli/internal/engage"
	"github.com/jalverson/ovation-cli/internal/observability"
	"github.com/jalverson/ovation-cli/internal/orchestrator"
	"github.com/jalverson/ovation-cli/internal/runlog"
)

var (
	flagDryRun      bool
	flagLimit       int
	flagBrowserOnly bool
	flagMobileOnly  bool
	flagNoShuffle   bool
	flagTargets     []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one engagement session across the configured surfaces",
	Long: `Run enumerates club feeds and gives kudos until each target is
exhausted, capped, or the remote rate limiter pushes back. Ending in a
rate limit is the expected terminal state of a normal run, not a
failure; the exit status reflects primitive-level errors only.`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "count actions without performing them")
	runCmd.Flags().IntVar(&flagLimit, "limit", 0, "per-run cap on successful actions (0 = unlimited)")
	runCmd.Flags().BoolVar(&flagBrowserOnly, "browser-only", false, "run only the browser surface")
	runCmd.Flags().BoolVar(&flagMobileOnly, "mobile-only", false, "run only the mobile surface")
	runCmd.Flags().BoolVar(&flagNoShuffle, "no-shuffle", false, "process targets in enumeration order")
	runCmd.Flags().StringSliceVar(&flagTargets, "targets", nil, "club IDs to process, overriding discovery")
	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	if flagBrowserOnly && flagMobileOnly {
		return fmt.Errorf("--browser-only and --mobile-only are mutually exclusive")
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyRunFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := observability.GetLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, log, cfg.RunLog)
	if err != nil {
		return err
	}
	defer closeStore()

	policy := buildPolicy(cfg.Engage)

	var surfaces []orchestrator.Surface
	if cfg.Browser.Enabled {
		mgr, err := browser.NewManager(ctx, log, &cfg)
		if err != nil {
			return err
		}
		defer mgr.Shutdown()
		session, err := mgr.OpenSession(ctx)
		if err != nil {
			return err
		}
		surfaces = append(surfaces, browser.NewSurface(log, session, policy, cfg.Engage.DryRun))
	}
	if cfg.Device.Enabled {
		bridge := device.NewBridge(log, cfg.Device)
		surfaces = append(surfaces, device.NewSurface(log, bridge, &cfg, policy))
	}

	orch, err := orchestrator.New(
		log, policy,
		cfg.Engage.RunCap, cfg.Engage.Shuffle, cfg.Engage.DryRun,
		store, surfaces...,
	)
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("given=%d errors=%d rate_limited=%t\n",
		result.Given, result.Errors, result.RateLimited)

	// Partial success is not clean success: any primitive error makes
	// the run exit non-zero, independent of kudos given.
	if result.Errors > 0 {
		return fmt.Errorf("run completed with %d primitive errors (given=%d)",
			result.Errors, result.Given)
	}
	return nil
}

// applyRunFlags folds command-line overrides into the loaded config.
func applyRunFlags(cfg *config.Config) {
	if flagDryRun {
		cfg.Engage.DryRun = true
	}
	if flagLimit > 0 {
		cfg.Engage.RunCap = flagLimit
	}
	if flagNoShuffle {
		cfg.Engage.Shuffle = false
	}
	if len(flagTargets) > 0 {
		cfg.Engage.Targets = flagTargets
	}
	if flagBrowserOnly {
		cfg.Device.Enabled = false
		cfg.Browser.Enabled = true
	}
	if flagMobileOnly {
		cfg.Browser.Enabled = false
		cfg.Device.Enabled = true
	}
}

// buildPolicy lifts the configured heuristics into the engine's policy
// value object.
func buildPolicy(e config.EngageConfig) engage.Policy {
	p := engage.DefaultPolicy()
	p.FailureThreshold = e.FailureThreshold
	p.ErrorThreshold = e.ErrorThreshold
	p.PerTargetCap = e.PerTargetCap
	p.MinDelay = e.MinDelay
	p.MaxDelay = e.MaxDelay
	p.TapDelayMin = e.TapDelayMin
	p.TapDelayMax = e.TapDelayMax
	p.VerifyTimeout = e.VerifyTimeout
	p.VerifyInterval = e.VerifyInterval
	p.MaxEmptyScreens = e.MaxEmptyScreens
	p.MaxSnapshotFailures = e.MaxSnapshotFailures
	p.MaxBackSteps = e.MaxBackSteps
	p.ResetEvery = e.ResetEvery
	p.ScrollDistance = e.ScrollDistance
	p.SafeTop = e.SafeTop
	p.SafeBottom = e.SafeBottom
	return p
}

// buildStore selects the run-log backend. The returned closer is a no-op
// for the file backend.
func buildStore(ctx context.Context, log *zap.Logger, cfg config.RunLogConfig) (runlog.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect run-log database: %w", err)
		}
		store, err := runlog.NewPGStore(ctx, pool, log)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store, pool.Close, nil
	default:
		path := cfg.Path
		if path == "" {
			p, err := runlog.DefaultPath()
			if err != nil {
				return nil, noop, err
			}
			path = p
		}
		store, err := runlog.NewFileStore(path, log)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}
