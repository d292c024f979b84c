// File: cmd/check.go
package cmd

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/diagnostics"
	"github.com/xkilldash9x/lancet/internal/driver/cdp"
	"github.com/xkilldash9x/lancet/internal/locator"
	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/page"
	"github.com/xkilldash9x/lancet/internal/testdata"
)

var (
	checkURL     string
	checkCatalog string
	checkDriver  string
)

// checkCmd resolves every element of a locator catalog against a live page.
// It is the fastest way to find out which fallback strategies in a catalog
// have rotted after a UI change.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every element in a locator catalog against a live page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		catalog, err := testdata.LoadCatalog(checkCatalog)
		if err != nil {
			return err
		}
		logger.Info("Catalog loaded.",
			zap.String("path", checkCatalog),
			zap.Int("elements", catalog.Len()))

		var failures int
		switch checkDriver {
		case "playwright":
			failures, err = checkWithPlaywright(cmd.Context(), catalog, logger)
		case "cdp":
			failures, err = checkWithCDP(cmd.Context(), catalog, logger)
		default:
			return fmt.Errorf("unknown driver %q (want playwright or cdp)", checkDriver)
		}
		if err != nil {
			return err
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d elements failed to resolve", failures, catalog.Len())
		}
		logger.Info("All elements resolved.", zap.Int("elements", catalog.Len()))
		return nil
	},
}

// checkWithPlaywright runs the catalog through the primary driver.
func checkWithPlaywright(ctx context.Context, catalog *testdata.Catalog, logger *zap.Logger) (int, error) {
	manager, err := browser.NewManager(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("Browser teardown failed.", zap.Error(err))
		}
	}()

	sess, err := manager.NewSession(ctx)
	if err != nil {
		return 0, err
	}
	if err := sess.Navigate(ctx, checkURL); err != nil {
		return 0, err
	}

	sink := diagnostics.NewCapturer(
		sess.Screenshotter(),
		cfg.Diagnostics.ScreenshotsDir,
		cfg.Locator.ScreenshotOnFailure,
		logger,
	)
	pg := page.New(sess.Surface(), sink, cfg, logger)
	return resolveCatalog(ctx, pg, catalog, logger)
}

// checkWithCDP runs the catalog over a raw DevTools connection instead of a
// Playwright server, for environments where only a Chrome binary exists.
func checkWithCDP(ctx context.Context, catalog *testdata.Catalog, logger *zap.Logger) (int, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Browser.Headless),
	)
	if cfg.Browser.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecutablePath))
	}
	opts = append(opts, chromedp.WindowSize(cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tab, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	logger.Info("Navigating.", zap.String("url", checkURL), zap.String("driver", "cdp"))
	navCtx, cancelNav := context.WithTimeout(tab, cfg.Wait.PageLoadTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(checkURL)); err != nil {
		return 0, fmt.Errorf("navigation to %s failed: %w", checkURL, err)
	}

	surface := cdp.NewSurface(tab, cfg.Wait.PollingInterval, cfg.Wait.DefaultTimeout, logger)
	sink := diagnostics.NewCapturer(
		surface,
		cfg.Diagnostics.ScreenshotsDir,
		cfg.Locator.ScreenshotOnFailure,
		logger,
	)
	pg := page.New(surface, sink, cfg, logger)
	return resolveCatalog(ctx, pg, catalog, logger)
}

// resolveCatalog resolves every element for reading and counts failures.
func resolveCatalog(ctx context.Context, pg *page.Page, catalog *testdata.Catalog, logger *zap.Logger) (int, error) {
	failures := 0
	for _, name := range catalog.Names() {
		spec, err := catalog.Spec(name)
		if err != nil {
			return failures, err
		}
		failures += checkElement(ctx, pg, spec, logger)
	}
	return failures, nil
}

// checkElement resolves one element for reading and reports 1 on failure.
func checkElement(ctx context.Context, pg *page.Page, spec *locator.Spec, logger *zap.Logger) int {
	el := pg.Element(spec)
	if !el.Present(ctx) {
		attempts := el.Attempts()
		logger.Error("Element did not resolve.",
			zap.String("element", spec.Name()),
			zap.Int("strategies_tried", len(attempts)))
		return 1
	}
	logger.Info("Element resolved.", zap.String("element", spec.Name()))
	return 0
}

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", "", "page URL to resolve against")
	checkCmd.Flags().StringVar(&checkCatalog, "catalog", "", "path to a locator catalog (.yaml or .json)")
	checkCmd.Flags().StringVar(&checkDriver, "driver", "playwright", "driver to resolve with (playwright or cdp)")
	_ = checkCmd.MarkFlagRequired("url")
	_ = checkCmd.MarkFlagRequired("catalog")
	rootCmd.AddCommand(checkCmd)
}
