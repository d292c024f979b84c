// Package cdp adapts a chromedp tab to the driver query surface, for
// environments that talk raw Chrome DevTools Protocol instead of running a
// Playwright server. Chromedp has no auto-waiting locator object, so every
// selector kind is lowered to a CSS or XPath query and the readiness
// conditions map onto chromedp's Wait* actions plus a paced JS poll.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/lancet/internal/driver"
)

// Surface implements driver.Surface over one chromedp tab context.
type Surface struct {
	// tab is the chromedp context for the target tab. Chromedp's API couples
	// the tab identity to a context, so the surface has to hold it.
	tab    context.Context
	poll   time.Duration
	action time.Duration
	logger *zap.Logger
}

// NewSurface wraps an initialized chromedp tab context. actionTimeout bounds
// handle actions and screenshots; values <= 0 fall back to 10s.
func NewSurface(tab context.Context, pollInterval, actionTimeout time.Duration, logger *zap.Logger) *Surface {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if actionTimeout <= 0 {
		actionTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		tab:    tab,
		poll:   pollInterval,
		action: actionTimeout,
		logger: logger.Named("driver.cdp"),
	}
}

// lowered is a selector reduced to something chromedp can execute.
type lowered struct {
	sel string
	opt chromedp.QueryOption
	// xpath records which query language sel is in, for the JS poll.
	xpath bool
}

// lower translates the framework selector vocabulary into a chromedp query.
func lower(sel driver.Selector) (lowered, error) {
	switch sel.Kind {
	case driver.KindCSS:
		return lowered{sel: sel.Value, opt: chromedp.ByQuery}, nil
	case driver.KindXPath:
		return lowered{sel: sel.Value, opt: chromedp.BySearch, xpath: true}, nil
	case driver.KindText:
		expr := fmt.Sprintf(`//*[contains(normalize-space(.), %s)][not(.//*[contains(normalize-space(.), %s)])]`,
			xpathString(sel.Value), xpathString(sel.Value))
		return lowered{sel: expr, opt: chromedp.BySearch, xpath: true}, nil
	case driver.KindTestID:
		return lowered{sel: fmt.Sprintf(`[data-testid=%q]`, sel.Value), opt: chromedp.ByQuery}, nil
	case driver.KindRole:
		role, name := splitRole(sel.Value)
		if name == "" {
			return lowered{sel: fmt.Sprintf(`[role=%q]`, role), opt: chromedp.ByQuery}, nil
		}
		expr := fmt.Sprintf(`//*[@role=%s][normalize-space(.)=%s or @aria-label=%s]`,
			xpathString(role), xpathString(name), xpathString(name))
		return lowered{sel: expr, opt: chromedp.BySearch, xpath: true}, nil
	case driver.KindLabel:
		expr := fmt.Sprintf(`//*[@aria-label=%s] | //label[normalize-space(.)=%s]/following::input[1]`,
			xpathString(sel.Value), xpathString(sel.Value))
		return lowered{sel: expr, opt: chromedp.BySearch, xpath: true}, nil
	case driver.KindPlaceholder:
		return lowered{sel: fmt.Sprintf(`[placeholder=%q]`, sel.Value), opt: chromedp.ByQuery}, nil
	case driver.KindAltText:
		return lowered{sel: fmt.Sprintf(`[alt=%q]`, sel.Value), opt: chromedp.ByQuery}, nil
	default:
		return lowered{}, fmt.Errorf("unknown selector kind %q", sel.Kind)
	}
}

// Query waits for the first element matching sel to reach cond.
func (s *Surface) Query(ctx context.Context, sel driver.Selector, cond driver.Condition, timeout time.Duration) (driver.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	low, err := lower(sel)
	if err != nil {
		return nil, err
	}

	// The wait runs on the tab context so CDP traffic is routed to the right
	// target, but the attempt timeout and the caller's cancellation both
	// bound it.
	waitCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := propagateCancel(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{}
	switch cond {
	case driver.ConditionAttached:
		actions = append(actions, chromedp.WaitReady(low.sel, low.opt))
	case driver.ConditionVisible:
		actions = append(actions, chromedp.WaitVisible(low.sel, low.opt))
	case driver.ConditionInteractable:
		actions = append(actions, chromedp.WaitVisible(low.sel, low.opt), chromedp.WaitEnabled(low.sel, low.opt))
	case driver.ConditionEditable:
		actions = append(actions, chromedp.WaitVisible(low.sel, low.opt))
	default:
		actions = append(actions, chromedp.WaitVisible(low.sel, low.opt))
	}

	if err := chromedp.Run(waitCtx, actions...); err != nil {
		return nil, s.classify(ctx, waitCtx, err)
	}

	if cond == driver.ConditionEditable {
		if err := s.waitEditable(ctx, waitCtx, low); err != nil {
			return nil, err
		}
	}

	return &handle{surface: s, low: low, desc: fmt.Sprintf("%s=%s", sel.Kind, sel.Value)}, nil
}

// waitEditable polls a JS predicate because CDP has no editable wait. The
// poll is paced by a rate limiter rather than a tight loop.
func (s *Surface) waitEditable(ctx, waitCtx context.Context, low lowered) error {
	limiter := rate.NewLimiter(rate.Every(s.poll), 1)
	expr := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		if (el.isContentEditable) return true;
		return !el.disabled && !el.readOnly;
	})()`, jsLocate(low))

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return s.classify(ctx, waitCtx, err)
		}
		var ok bool
		if err := chromedp.Run(waitCtx, chromedp.Evaluate(expr, &ok)); err != nil {
			return s.classify(ctx, waitCtx, err)
		}
		if ok {
			return nil
		}
	}
}

// Screenshot implements driver.Screenshotter via the CDP page domain.
func (s *Surface) Screenshot(ctx context.Context) ([]byte, error) {
	shotCtx, cancel := context.WithTimeout(s.tab, s.action)
	defer cancel()
	stop := propagateCancel(ctx, cancel)
	defer stop()

	var buf []byte
	err := chromedp.Run(shotCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// classify distinguishes "the element never got there" from everything else.
// A deadline on the wait context is a condition timeout; cancellation coming
// from the caller stays a plain context error.
func (s *Surface) classify(callerCtx, waitCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", driver.ErrConditionTimeout, err)
	}
	return err
}

// propagateCancel cancels a chromedp-derived context when the caller's
// context is done, and returns a release func.
func propagateCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// jsLocate returns a JS expression evaluating to the first matching element.
func jsLocate(low lowered) string {
	if low.xpath {
		return fmt.Sprintf(`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, low.sel)
	}
	return fmt.Sprintf(`document.querySelector(%q)`, low.sel)
}

// xpathString quotes a literal for embedding in an XPath expression.
func xpathString(v string) string {
	if !strings.Contains(v, `'`) {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	// Mixed quotes need concat().
	parts := strings.Split(v, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func splitRole(value string) (role, name string) {
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

// handle executes actions against the element the query matched. Each action
// re-targets by selector; CDP node ids are not stable enough to cache.
type handle struct {
	surface *Surface
	low     lowered
	desc    string
}

var _ driver.Handle = (*handle)(nil)

func (h *handle) run(ctx context.Context, actions ...chromedp.Action) error {
	actCtx, cancel := context.WithTimeout(h.surface.tab, h.surface.action)
	defer cancel()
	stop := propagateCancel(ctx, cancel)
	defer stop()
	return chromedp.Run(actCtx, actions...)
}

func (h *handle) Click(ctx context.Context) error {
	return h.run(ctx, chromedp.Click(h.low.sel, h.low.opt))
}

func (h *handle) Fill(ctx context.Context, value string) error {
	return h.run(ctx,
		chromedp.SetValue(h.low.sel, "", h.low.opt),
		chromedp.SendKeys(h.low.sel, value, h.low.opt),
	)
}

func (h *handle) SelectOption(ctx context.Context, value string) error {
	return h.run(ctx, chromedp.SetValue(h.low.sel, value, h.low.opt))
}

func (h *handle) Text(ctx context.Context) (string, error) {
	var out string
	err := h.run(ctx, chromedp.Text(h.low.sel, &out, h.low.opt))
	return out, err
}

func (h *handle) Description() string { return h.desc }
