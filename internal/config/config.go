// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed
// once at process start and passed into the components that need it; no
// component reads ambient global state.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	Engage  EngageConfig  `mapstructure:"engage" yaml:"engage"`
	RunLog  RunLogConfig  `mapstructure:"runlog" yaml:"runlog"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the console color names for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// SessionConfig carries the authenticated identity shared by both
// surfaces. The session cookie is an opaque value copied out of a real
// logged-in browser; it is never decoded.
type SessionConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	Cookie       string `mapstructure:"cookie" yaml:"-"`
	CookieName   string `mapstructure:"cookie_name" yaml:"cookie_name"`
	CookieDomain string `mapstructure:"cookie_domain" yaml:"cookie_domain"`
}

// BrowserConfig holds settings for the primary (Chrome) surface.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// DeviceConfig holds settings for the secondary (emulator) surface.
type DeviceConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	ADBPath         string        `mapstructure:"adb_path" yaml:"adb_path"`
	EmulatorPath    string        `mapstructure:"emulator_path" yaml:"emulator_path"`
	AVD             string        `mapstructure:"avd" yaml:"avd"`
	Serial          string        `mapstructure:"serial" yaml:"serial"`
	AppPackage      string        `mapstructure:"app_package" yaml:"app_package"`
	AppActivity     string        `mapstructure:"app_activity" yaml:"app_activity"`
	BootTimeout     time.Duration `mapstructure:"boot_timeout" yaml:"boot_timeout"`
	CommandInterval time.Duration `mapstructure:"command_interval" yaml:"command_interval"`
	ScreenWidth     int           `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight    int           `mapstructure:"screen_height" yaml:"screen_height"`
}

// EngageConfig carries the run shape plus every heuristic the rate-limit
// policy is built from. The thresholds are empirically tuned against one
// uncontrolled external service; they belong in configuration, not code.
type EngageConfig struct {
	DryRun  bool     `mapstructure:"dry_run" yaml:"dry_run"`
	RunCap  int      `mapstructure:"run_cap" yaml:"run_cap"`
	Shuffle bool     `mapstructure:"shuffle" yaml:"shuffle"`
	Targets []string `mapstructure:"targets" yaml:"targets"`

	FailureThreshold    int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	ErrorThreshold      int           `mapstructure:"error_threshold" yaml:"error_threshold"`
	PerTargetCap        int           `mapstructure:"per_target_cap" yaml:"per_target_cap"`
	MinDelay            time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay            time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	TapDelayMin         time.Duration `mapstructure:"tap_delay_min" yaml:"tap_delay_min"`
	TapDelayMax         time.Duration `mapstructure:"tap_delay_max" yaml:"tap_delay_max"`
	VerifyTimeout       time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	VerifyInterval      time.Duration `mapstructure:"verify_interval" yaml:"verify_interval"`
	MaxEmptyScreens     int           `mapstructure:"max_empty_screens" yaml:"max_empty_screens"`
	MaxSnapshotFailures int           `mapstructure:"max_snapshot_failures" yaml:"max_snapshot_failures"`
	MaxBackSteps        int           `mapstructure:"max_back_steps" yaml:"max_back_steps"`
	ResetEvery          int           `mapstructure:"reset_every" yaml:"reset_every"`
	ScrollDistance      int           `mapstructure:"scroll_distance" yaml:"scroll_distance"`
	SafeTop             int           `mapstructure:"safe_top" yaml:"safe_top"`
	SafeBottom          int           `mapstructure:"safe_bottom" yaml:"safe_bottom"`
}

// RunLogConfig selects and parameterizes the run history backend.
type RunLogConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "file" or "postgres"
	Path        string `mapstructure:"path" yaml:"path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

// SetDefaults registers every default on the provided viper instance.
// The numeric defaults mirror the tuned policy in the engage package.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "ovation")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("session.base_url", "https://www.strava.com")
	v.SetDefault("session.cookie_name", "_strava4_session")
	v.SetDefault("session.cookie_domain", ".strava.com")

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)

	v.SetDefault("device.enabled", false)
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.emulator_path", "emulator")
	v.SetDefault("device.app_package", "com.strava")
	v.SetDefault("device.app_activity", ".SplashActivity")
	v.SetDefault("device.boot_timeout", 2*time.Minute)
	v.SetDefault("device.command_interval", 50*time.Millisecond)
	v.SetDefault("device.screen_width", 1080)
	v.SetDefault("device.screen_height", 1920)

	v.SetDefault("engage.shuffle", true)
	v.SetDefault("engage.failure_threshold", 3)
	v.SetDefault("engage.error_threshold", 3)
	v.SetDefault("engage.per_target_cap", 30)
	v.SetDefault("engage.min_delay", 800*time.Millisecond)
	v.SetDefault("engage.max_delay", 2500*time.Millisecond)
	v.SetDefault("engage.tap_delay_min", 120*time.Millisecond)
	v.SetDefault("engage.tap_delay_max", 350*time.Millisecond)
	v.SetDefault("engage.verify_timeout", time.Second)
	v.SetDefault("engage.verify_interval", 200*time.Millisecond)
	v.SetDefault("engage.max_empty_screens", 3)
	v.SetDefault("engage.max_snapshot_failures", 3)
	v.SetDefault("engage.max_back_steps", 4)
	v.SetDefault("engage.reset_every", 60)
	v.SetDefault("engage.scroll_distance", 900)
	v.SetDefault("engage.safe_top", 180)
	v.SetDefault("engage.safe_bottom", 140)

	v.SetDefault("runlog.backend", "file")
}

// Load unmarshals the viper state into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the handful of run-fatal configuration requirements.
// A missing credential is surfaced here with a distinguishing message so
// it is never mistaken for a rate-limit or transport condition.
func (c *Config) Validate() error {
	if !c.Browser.Enabled && !c.Device.Enabled {
		return fmt.Errorf("config: at least one surface must be enabled")
	}
	if c.Browser.Enabled && c.Session.Cookie == "" {
		return fmt.Errorf("config: session.cookie is required for the browser surface (set OVATION_SESSION_COOKIE)")
	}
	if c.Session.BaseURL == "" {
		return fmt.Errorf("config: session.base_url must not be empty")
	}
	if c.Device.Enabled && c.Device.AVD == "" && c.Device.Serial == "" {
		return fmt.Errorf("config: device.avd or device.serial is required for the device surface")
	}
	if c.Engage.FailureThreshold <= 0 || c.Engage.ErrorThreshold <= 0 {
		return fmt.Errorf("config: engage thresholds must be positive")
	}
	if c.Engage.MaxDelay < c.Engage.MinDelay {
		return fmt.Errorf("config: engage.max_delay must be >= engage.min_delay")
	}
	switch c.RunLog.Backend {
	case "", "file", "postgres":
	default:
		return fmt.Errorf("config: unknown runlog backend %q", c.RunLog.Backend)
	}
	if c.RunLog.Backend == "postgres" && c.RunLog.DatabaseURL == "" {
		return fmt.Errorf("config: runlog.database_url is required for the postgres backend")
	}
	return nil
}
