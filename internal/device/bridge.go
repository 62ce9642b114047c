// File: internal/device/bridge.go
// Process management for the emulated Android device. The bridge shells
// out to adb and the emulator binary; everything above it (what to tap,
// when to stop) lives in the engage package.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/jalverson/ovation-cli/internal/config"
)

// Bridge wraps one emulator/device. A weighted(1) semaphore enforces the
// exclusive-ownership rule: the currently running loop owns the device
// and no other component may act on it concurrently. A rate limiter
// spaces adb commands so bridge traffic itself never floods the device,
// independently of the engine's engagement delays.
type Bridge struct {
	log     *zap.Logger
	cfg     config.DeviceConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewBridge builds the bridge; it does not start anything.
func NewBridge(logger *zap.Logger, cfg config.DeviceConfig) *Bridge {
	interval := cfg.CommandInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Bridge{
		log:     logger.Named("device_bridge"),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		sem:     semaphore.NewWeighted(1),
	}
}

// Acquire takes exclusive ownership of the device for one loop.
func (b *Bridge) Acquire(ctx context.Context) error {
	return b.sem.Acquire(ctx, 1)
}

// Release returns ownership.
func (b *Bridge) Release() {
	b.sem.Release(1)
}

// adb runs one adb command against the configured device and returns its
// combined output.
func (b *Bridge) adb(ctx context.Context, args ...string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	full := args
	if b.cfg.Serial != "" {
		full = append([]string{"-s", b.cfg.Serial}, args...)
	}
	cmd := exec.CommandContext(ctx, b.cfg.ADBPath, full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("adb %s failed: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// shell runs a device shell command.
func (b *Bridge) shell(ctx context.Context, args ...string) (string, error) {
	return b.adb(ctx, append([]string{"shell"}, args...)...)
}

// Start boots the emulator (when an AVD is configured) and waits,
// bounded, for the device to report boot completion. With only a serial
// configured the device is assumed externally managed and Start just
// waits for readiness.
func (b *Bridge) Start(ctx context.Context) error {
	if b.cfg.AVD != "" {
		b.log.Info("Booting emulator", zap.String("avd", b.cfg.AVD))
		cmd := exec.Command(b.cfg.EmulatorPath,
			"-avd", b.cfg.AVD, "-no-snapshot-save", "-no-boot-anim")
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start emulator: %w", err)
		}
		// The emulator process outlives this call; readiness is polled
		// through adb rather than tracked through the process handle.
		go func() { _ = cmd.Wait() }()
	}
	return b.waitBoot(ctx)
}

// waitBoot polls sys.boot_completed until the boot timeout elapses.
// Device boot completion is polled, not event-driven.
func (b *Bridge) waitBoot(ctx context.Context) error {
	timeout := b.cfg.BootTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := b.shell(ctx, "getprop", "sys.boot_completed")
		if err == nil && strings.TrimSpace(out) == "1" {
			b.log.Info("Device boot completed")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("device did not finish booting within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// LaunchApp cold-starts the target application.
func (b *Bridge) LaunchApp(ctx context.Context) error {
	component := b.cfg.AppPackage + "/" + b.cfg.AppActivity
	if _, err := b.shell(ctx, "am", "start", "-n", component); err != nil {
		return fmt.Errorf("failed to launch %s: %w", component, err)
	}
	// Give the app a moment to render its first frame.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
	}
	return nil
}

// ResetEnvironment tears the emulator down and boots it fresh. The
// remote limiter's bucket follows the ephemeral session identity, so a
// fresh boot buys a fresh bucket.
func (b *Bridge) ResetEnvironment(ctx context.Context) error {
	b.log.Info("Resetting device environment")
	if _, err := b.adb(ctx, "emu", "kill"); err != nil {
		b.log.Warn("Emulator kill reported an error, continuing", zap.Error(err))
	}
	// Let the process and its adb registration drain.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	return b.LaunchApp(ctx)
}
