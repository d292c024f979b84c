// Package driver defines the vocabulary the locator engine speaks to a live
// browser through. Concrete adapters live in driver/pw (Playwright) and
// driver/cdp (Chrome DevTools Protocol); the engine itself never imports a
// browser library.
package driver

import (
	"context"
	"errors"
	"time"
)

// Selector kinds understood by the adapters. They mirror the ways a page
// object can describe an element, not the syntax of any one driver.
const (
	KindXPath       = "xpath"
	KindCSS         = "css"
	KindRole        = "role"
	KindText        = "text"
	KindTestID      = "test_id"
	KindLabel       = "label"
	KindPlaceholder = "placeholder"
	KindAltText     = "alt_text"
)

// Selector is a single, concrete way to address an element.
type Selector struct {
	Kind  string
	Value string
}

// Condition is the readiness an element must reach before a query succeeds.
type Condition string

const (
	// ConditionAttached only requires presence in the DOM.
	ConditionAttached Condition = "attached"
	// ConditionVisible requires a rendered, non-hidden element.
	ConditionVisible Condition = "visible"
	// ConditionEditable requires a visible element accepting text input.
	ConditionEditable Condition = "editable"
	// ConditionInteractable requires a visible and enabled element.
	ConditionInteractable Condition = "interactable"
)

// ErrConditionTimeout reports that the element did not reach the requested
// condition before the query timeout elapsed. Adapters must wrap timeout
// failures with this sentinel so the engine can tell timeouts apart from
// structural query errors (bad selector syntax, closed target, ...).
var ErrConditionTimeout = errors.New("condition not satisfied before timeout")

// Handle is an opaque reference to one resolved element. It is valid for a
// single action; the underlying node may detach at any time, so handles must
// not be cached across actions.
type Handle interface {
	// Click performs a click on the element.
	Click(ctx context.Context) error
	// Fill replaces the element's value with the given text.
	Fill(ctx context.Context, value string) error
	// SelectOption selects the option with the given value.
	SelectOption(ctx context.Context, value string) error
	// Text returns the element's text content.
	Text(ctx context.Context) (string, error)
	// Description returns the selector the handle was resolved from, for logs.
	Description() string
}

// Surface is the read-only query side of a live page. Query blocks until the
// first element matching sel reaches cond, or the timeout expires
// (ErrConditionTimeout), or the query itself fails.
type Surface interface {
	Query(ctx context.Context, sel Selector, cond Condition, timeout time.Duration) (Handle, error)
}

// Screenshotter captures the current page as a PNG. Implemented by the same
// adapters that implement Surface; consumed by the diagnostics sink.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
