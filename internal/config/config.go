// Package config defines the framework configuration and its viper-backed
// loading. Configuration is an explicit value handed to the components that
// need it; there is no hidden global settings object.
package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root of the framework configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Locator     LocatorConfig     `mapstructure:"locator" yaml:"locator"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Wait        WaitConfig        `mapstructure:"wait" yaml:"wait"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds launch settings for one named browser profile.
type BrowserConfig struct {
	// Name is the Playwright browser type: chromium, firefox or webkit.
	Name string `mapstructure:"name" yaml:"name"`
	// Channel picks a system-installed Chromium build (chrome, chrome-beta,
	// msedge, ...). Empty means Playwright's bundled browser.
	Channel        string   `mapstructure:"channel" yaml:"channel"`
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	SlowMoMs       float64  `mapstructure:"slow_mo_ms" yaml:"slow_mo_ms"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Args           []string `mapstructure:"args" yaml:"args"`
	ExecutablePath string   `mapstructure:"executable_path" yaml:"executable_path"`
	// MaxSessions bounds how many live sessions the Manager hands out.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
}

// LocatorConfig tunes the smart locator resolution engine.
type LocatorConfig struct {
	// DefaultStrategyTimeout bounds one strategy attempt unless the strategy
	// carries its own override.
	DefaultStrategyTimeout time.Duration `mapstructure:"default_strategy_timeout" yaml:"default_strategy_timeout"`
	// MaxLocatorRetries is how many extra full sweeps over the strategy list
	// a resolution may make after the first one fails.
	MaxLocatorRetries int `mapstructure:"max_locator_retries" yaml:"max_locator_retries"`
	// OverallDeadline, when > 0, caps a whole resolution call.
	OverallDeadline time.Duration `mapstructure:"overall_deadline" yaml:"overall_deadline"`
	// ScreenshotOnFailure controls diagnostic capture on exhaustion.
	ScreenshotOnFailure bool `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
}

// RetryConfig parameterizes exponential backoff for action retries.
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// WaitConfig tunes page-level waits and adapter polling.
type WaitConfig struct {
	DefaultTimeout  time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	PollingInterval time.Duration `mapstructure:"polling_interval" yaml:"polling_interval"`
}

// DiagnosticsConfig controls where failure artifacts land.
type DiagnosticsConfig struct {
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lancet")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 5)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.name", "chromium")
	v.SetDefault("browser.channel", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo_ms", 0)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.args", []string{"--disable-blink-features=AutomationControlled"})
	v.SetDefault("browser.max_sessions", 4)

	// -- Locator --
	v.SetDefault("locator.default_strategy_timeout", "5s")
	v.SetDefault("locator.max_locator_retries", 0)
	v.SetDefault("locator.overall_deadline", "0s")
	v.SetDefault("locator.screenshot_on_failure", true)

	// -- Retry --
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "1s")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("retry.backoff_multiplier", 2.0)

	// -- Wait --
	v.SetDefault("wait.default_timeout", "30s")
	v.SetDefault("wait.page_load_timeout", "60s")
	v.SetDefault("wait.polling_interval", "500ms")

	// -- Diagnostics --
	v.SetDefault("diagnostics.screenshots_dir", "reports/screenshots")
}

// NewDefaultConfig returns a Config populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults unmarshal into their own struct; failure here is a bug.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a Config from a viper instance
// that has already read its sources.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if dir, err := homedir.Expand(cfg.Diagnostics.ScreenshotsDir); err == nil {
		cfg.Diagnostics.ScreenshotsDir = dir
	}
	return &cfg, nil
}

// Validate checks for values the framework cannot work with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Browser.Name) {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("browser.name must be chromium, firefox or webkit, got %q", c.Browser.Name)
	}
	if c.Browser.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be a positive integer")
	}
	if c.Locator.DefaultStrategyTimeout <= 0 {
		return fmt.Errorf("locator.default_strategy_timeout must be a positive duration")
	}
	if c.Locator.MaxLocatorRetries < 0 {
		return fmt.Errorf("locator.max_locator_retries must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("retry.backoff_multiplier must be greater than 1.0")
	}
	if c.Wait.PollingInterval <= 0 {
		return fmt.Errorf("wait.polling_interval must be a positive duration")
	}
	return nil
}
