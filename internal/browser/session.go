package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/driver"
	"github.com/xkilldash9x/lancet/internal/driver/pw"
)

// Session is one isolated browser context with a single page. It exposes the
// query surface the locator engine consumes plus the handful of page-level
// waits page objects need.
type Session struct {
	id      string
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	surface *pw.Surface
	cfg     *config.Config
	logger  *zap.Logger
	onClose func()

	mu     sync.Mutex
	closed bool
}

func newSession(browser playwright.Browser, cfg *config.Config, logger *zap.Logger, onClose func()) (*Session, error) {
	id := uuid.New().String()
	log := logger.With(zap.String("session_id", id))

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.Browser.ViewportWidth,
			Height: cfg.Browser.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	log.Debug("Session created.")
	return &Session{
		id:      id,
		browser: browser,
		bctx:    bctx,
		page:    page,
		surface: pw.NewSurface(page, cfg.Wait.PollingInterval, log),
		cfg:     cfg,
		logger:  log,
		onClose: onClose,
	}, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Page exposes the raw Playwright page.
func (s *Session) Page() playwright.Page { return s.page }

// Surface returns the query surface bound to this session's page.
func (s *Session) Surface() driver.Surface { return s.surface }

// Screenshotter returns the capture side of the session for diagnostics.
func (s *Session) Screenshotter() driver.Screenshotter { return s.surface }

// Navigate loads url and waits for the load event, bounded by the page-load
// timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("Navigating.", zap.String("url", url))
	waitUntil := playwright.WaitUntilStateLoad
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   playwright.Float(float64(s.cfg.Wait.PageLoadTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// WaitForLoad blocks until the page reaches the given load state: "load",
// "domcontentloaded" or "networkidle".
func (s *Session) WaitForLoad(state string) error {
	var ls *playwright.LoadState
	switch state {
	case "domcontentloaded":
		ls = playwright.LoadStateDomcontentloaded
	case "networkidle":
		ls = playwright.LoadStateNetworkidle
	default:
		ls = playwright.LoadStateLoad
	}
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   ls,
		Timeout: playwright.Float(float64(s.cfg.Wait.PageLoadTimeout.Milliseconds())),
	})
}

// WaitForURL blocks until the page URL matches the given pattern (glob or
// regexp, per Playwright semantics).
func (s *Session) WaitForURL(pattern string) error {
	return s.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(s.cfg.Wait.DefaultTimeout.Milliseconds())),
	})
}

// URL returns the page's current URL.
func (s *Session) URL() string { return s.page.URL() }

// Close tears down the page and context and releases the session's slot.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("Closing session.")
	err := s.bctx.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
