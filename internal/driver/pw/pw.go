// Package pw adapts a Playwright page to the driver query surface. It is the
// primary adapter: Playwright's auto-waiting WaitFor covers the attached and
// visible conditions natively, and the richer conditions (editable,
// interactable) are polled on top of a visible element.
package pw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/driver"
)

// Surface implements driver.Surface over one Playwright page.
type Surface struct {
	page   playwright.Page
	poll   time.Duration
	logger *zap.Logger
}

// NewSurface wraps a page. pollInterval paces the enabled/editable checks;
// values <= 0 fall back to 100ms.
func NewSurface(page playwright.Page, pollInterval time.Duration, logger *zap.Logger) *Surface {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		page:   page,
		poll:   pollInterval,
		logger: logger.Named("driver.pw"),
	}
}

// Page exposes the underlying Playwright page for session-level operations
// (navigation, load-state waits, screenshots).
func (s *Surface) Page() playwright.Page { return s.page }

// Query resolves sel to a Playwright locator, waits for cond up to timeout,
// and returns a handle bound to the first match.
func (s *Surface) Query(ctx context.Context, sel driver.Selector, cond driver.Condition, timeout time.Duration) (driver.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc, err := s.build(sel)
	if err != nil {
		return nil, err
	}
	loc = loc.First()

	deadline := time.Now().Add(timeout)

	// Visibility (or bare attachment) first; Playwright owns this wait.
	state := playwright.WaitForSelectorStateVisible
	if cond == driver.ConditionAttached {
		state = playwright.WaitForSelectorStateAttached
	}
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: playwright.Float(millis(timeout)),
	}); err != nil {
		return nil, classify(err)
	}

	// Editable/interactable need an extra check Playwright's WaitFor does
	// not express; poll until the deadline.
	switch cond {
	case driver.ConditionEditable:
		if err := s.pollUntil(ctx, deadline, func() (bool, error) { return loc.IsEditable() }); err != nil {
			return nil, err
		}
	case driver.ConditionInteractable:
		if err := s.pollUntil(ctx, deadline, func() (bool, error) { return loc.IsEnabled() }); err != nil {
			return nil, err
		}
	}

	return &handle{loc: loc, desc: fmt.Sprintf("%s=%s", sel.Kind, sel.Value)}, nil
}

// Screenshot implements driver.Screenshotter.
func (s *Surface) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
	})
}

// build maps the selector kind to Playwright's locator vocabulary.
func (s *Surface) build(sel driver.Selector) (playwright.Locator, error) {
	switch sel.Kind {
	case driver.KindXPath:
		return s.page.Locator("xpath=" + sel.Value), nil
	case driver.KindCSS:
		return s.page.Locator(sel.Value), nil
	case driver.KindText:
		return s.page.GetByText(sel.Value), nil
	case driver.KindTestID:
		return s.page.GetByTestId(sel.Value), nil
	case driver.KindLabel:
		return s.page.GetByLabel(sel.Value), nil
	case driver.KindPlaceholder:
		return s.page.GetByPlaceholder(sel.Value), nil
	case driver.KindAltText:
		return s.page.GetByAltText(sel.Value), nil
	case driver.KindRole:
		role, name := SplitRole(sel.Value)
		if name != "" {
			return s.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{Name: name}), nil
		}
		return s.page.GetByRole(playwright.AriaRole(role)), nil
	default:
		return nil, fmt.Errorf("unknown selector kind %q", sel.Kind)
	}
}

// SplitRole parses a role selector of the form "button" or
// "button[name=Submit]" into its role and accessible-name parts.
func SplitRole(value string) (role, name string) {
	open := strings.Index(value, "[")
	if open < 0 {
		return value, ""
	}
	role = value[:open]
	rest := strings.TrimSuffix(value[open+1:], "]")
	if eq := strings.Index(rest, "="); eq >= 0 && strings.EqualFold(rest[:eq], "name") {
		name = strings.Trim(rest[eq+1:], `"'`)
	}
	return role, name
}

// millis converts a duration to fractional milliseconds for Playwright,
// clamped to a minimum of 1. Playwright treats a zero timeout as "wait
// forever", so a positive sub-millisecond remainder of a deadline must not
// truncate to an unbounded wait.
func millis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 1 {
		return 1
	}
	return ms
}

// pollUntil re-checks a predicate until it holds, the deadline passes, or
// the context is cancelled. Predicate errors are tolerated and retried; the
// element may be mid-update.
func (s *Surface) pollUntil(ctx context.Context, deadline time.Time, check func() (bool, error)) error {
	for {
		ok, err := check()
		if err == nil && ok {
			return nil
		}
		if err != nil {
			s.logger.Debug("Condition check errored, retrying.", zap.Error(err))
		}
		if time.Now().Add(s.poll).After(deadline) {
			return driver.ErrConditionTimeout
		}
		t := time.NewTimer(s.poll)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// classify maps Playwright failures onto the driver error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) || strings.Contains(err.Error(), "Timeout") {
		return fmt.Errorf("%w: %v", driver.ErrConditionTimeout, err)
	}
	return err
}

// handle wraps one resolved Playwright locator for a single action.
type handle struct {
	loc  playwright.Locator
	desc string
}

var _ driver.Handle = (*handle)(nil)

func (h *handle) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.loc.Click()
}

func (h *handle) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.loc.Fill(value)
}

func (h *handle) SelectOption(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := h.loc.SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice(value),
	})
	return err
}

func (h *handle) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return h.loc.TextContent()
}

func (h *handle) Description() string { return h.desc }
