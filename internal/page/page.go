// Package page is the base layer page objects build on. Instead of a deep
// inheritance chain, a page object embeds *Page and declares its elements as
// locator specs; every interaction runs through the resolution engine, the
// intent-based wait policy and the action retry handler.
package page

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/driver"
	"github.com/xkilldash9x/lancet/internal/locator"
	"github.com/xkilldash9x/lancet/internal/retry"
)

// Page wires a query surface to the resolution engine.
type Page struct {
	resolver *locator.Resolver
	retrier  *retry.Handler
	logger   *zap.Logger
}

// New builds a Page over a live query surface. The sink receives failure
// diagnostics; pass nil to disable capture.
func New(surface driver.Surface, sink locator.DiagnosticSink, cfg *config.Config, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := locator.NewResolver(surface, sink, logger, locator.Options{
		DefaultTimeout:  cfg.Locator.DefaultStrategyTimeout,
		OverallDeadline: cfg.Locator.OverallDeadline,
		MaxSweeps:       1 + cfg.Locator.MaxLocatorRetries,
		Backoff: retry.Policy{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.BackoffMultiplier,
		},
	})
	retrier := retry.NewHandler(retry.Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.BackoffMultiplier,
	}, logger)

	return &Page{
		resolver: resolver,
		retrier:  retrier,
		logger:   logger.Named("page"),
	}
}

// Resolver exposes the underlying resolution engine, mainly for assertions
// on attempt logs.
func (p *Page) Resolver() *locator.Resolver { return p.resolver }

// Element binds a spec to this page.
func (p *Page) Element(spec *locator.Spec) *Element {
	return &Element{page: p, spec: spec}
}

// Element is one logical UI element on a Page. All methods resolve the
// element fresh; handles are never cached between actions because the
// underlying node may have detached.
type Element struct {
	page *Page
	spec *locator.Spec
}

// Spec returns the element's locator spec.
func (e *Element) Spec() *locator.Spec { return e.spec }

// Click resolves the element for clicking and clicks it. Transient action
// failures are retried with backoff; an element that cannot be located at
// all is structural and fails immediately.
func (e *Element) Click(ctx context.Context) error {
	return e.act(ctx, "click "+e.spec.Name(), locator.IntentClick, func(ctx context.Context, h driver.Handle) error {
		return h.Click(ctx)
	})
}

// Fill resolves the element for text input and replaces its value.
func (e *Element) Fill(ctx context.Context, value string) error {
	return e.act(ctx, "fill "+e.spec.Name(), locator.IntentFill, func(ctx context.Context, h driver.Handle) error {
		return h.Fill(ctx, value)
	})
}

// SelectOption resolves the element and selects the option with the given
// value.
func (e *Element) SelectOption(ctx context.Context, value string) error {
	return e.act(ctx, "select "+e.spec.Name(), locator.IntentSelect, func(ctx context.Context, h driver.Handle) error {
		return h.SelectOption(ctx, value)
	})
}

// Text resolves the element for reading (attached is enough, visibility is
// not required) and returns its text content.
func (e *Element) Text(ctx context.Context) (string, error) {
	var out string
	err := e.act(ctx, "read "+e.spec.Name(), locator.IntentRead, func(ctx context.Context, h driver.Handle) error {
		var err error
		out, err = h.Text(ctx)
		return err
	})
	return out, err
}

// Present reports whether the element exists in the DOM right now, without
// raising on absence.
func (e *Element) Present(ctx context.Context) bool {
	return e.page.resolver.ResolveSafe(ctx, e.spec, locator.IntentRead) != nil
}

// Visible reports whether the element is currently visible. The select
// intent maps to plain visibility, which is exactly the check wanted here.
func (e *Element) Visible(ctx context.Context) bool {
	return e.page.resolver.ResolveSafe(ctx, e.spec, locator.IntentSelect) != nil
}

// Attempts returns the attempt log of this page's most recent resolution.
func (e *Element) Attempts() []locator.Attempt {
	return e.page.resolver.LastAttempts()
}

// act resolves the element for the intent and runs the action under the
// retry handler. Each retry re-resolves: a fresh attempt gets a fresh
// handle.
func (e *Element) act(ctx context.Context, name string, intent locator.Intent, action func(context.Context, driver.Handle) error) error {
	_, err := e.page.retrier.Do(ctx, name, func(ctx context.Context) error {
		handle, err := e.page.resolver.Resolve(ctx, e.spec, intent)
		if err != nil {
			var nf *locator.NotFoundError
			if errors.As(err, &nf) {
				// Structural, not transient: retrying the sweep would just
				// repeat it.
				return retry.Permanent(err)
			}
			return err
		}
		return action(ctx, handle)
	})
	if err != nil {
		e.page.logger.Error("Element action failed.",
			zap.String("action", name),
			zap.Error(err))
	}
	return err
}
