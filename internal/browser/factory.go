// Package browser owns the Playwright lifecycle: launching a configured
// browser, handing out isolated sessions (context + page), and tearing
// everything down. Each test owns exactly one session at a time; sessions
// share a browser process but never a page.
package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
)

// Factory launches browsers according to one BrowserConfig profile.
type Factory struct {
	pw     *playwright.Playwright
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewFactory starts the Playwright driver. Callers must Close it.
func NewFactory(cfg config.BrowserConfig, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pwr, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	return &Factory{
		pw:     pwr,
		cfg:    cfg,
		logger: logger.Named("browser"),
	}, nil
}

// Install downloads the browsers Playwright needs. Used by the CLI, not by
// tests.
func Install() error {
	return playwright.Install()
}

// Launch starts a browser per the profile: engine, optional release channel
// (chrome, msedge, ...), headless mode, slow-mo and extra args.
func (f *Factory) Launch() (playwright.Browser, error) {
	var bt playwright.BrowserType
	switch strings.ToLower(f.cfg.Name) {
	case "chromium", "":
		bt = f.pw.Chromium
	case "firefox":
		bt = f.pw.Firefox
	case "webkit":
		bt = f.pw.WebKit
	default:
		return nil, fmt.Errorf("unsupported browser %q", f.cfg.Name)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.cfg.Headless),
		Args:     f.cfg.Args,
	}
	if f.cfg.SlowMoMs > 0 {
		opts.SlowMo = playwright.Float(f.cfg.SlowMoMs)
	}
	if f.cfg.Channel != "" {
		opts.Channel = playwright.String(f.cfg.Channel)
	}
	if f.cfg.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(f.cfg.ExecutablePath)
	}

	f.logger.Info("Launching browser.",
		zap.String("browser", f.cfg.Name),
		zap.String("channel", f.cfg.Channel),
		zap.Bool("headless", f.cfg.Headless))

	browser, err := bt.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("could not launch %s: %w", f.cfg.Name, err)
	}
	return browser, nil
}

// Close stops the Playwright driver.
func (f *Factory) Close() error {
	return f.pw.Stop()
}
