// Package locator implements the smart locator resolution engine: an element
// is described as an ordered list of alternative location strategies, and a
// Resolver tries them one by one against a live page until one produces a
// usable handle.
package locator

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/lancet/internal/driver"
)

// Kind identifies one family of selectors.
type Kind string

const (
	KindXPath       Kind = driver.KindXPath
	KindCSS         Kind = driver.KindCSS
	KindRole        Kind = driver.KindRole
	KindText        Kind = driver.KindText
	KindTestID      Kind = driver.KindTestID
	KindLabel       Kind = driver.KindLabel
	KindPlaceholder Kind = driver.KindPlaceholder
	KindAltText     Kind = driver.KindAltText
)

// Strategy is one way to locate an element. Values are immutable once added
// to a Spec.
type Strategy struct {
	Kind     Kind
	Selector string
	// Label is a short human-readable note for logs ("Primary XPath").
	Label string
	// Timeout overrides the configured per-strategy timeout when > 0.
	Timeout time.Duration
}

// String renders the strategy the way it appears in attempt logs.
func (s Strategy) String() string {
	if s.Label != "" {
		return fmt.Sprintf("%s=%q (%s)", s.Kind, s.Selector, s.Label)
	}
	return fmt.Sprintf("%s=%q", s.Kind, s.Selector)
}

func (s Strategy) selector() driver.Selector {
	return driver.Selector{Kind: string(s.Kind), Value: s.Selector}
}

// Spec is a named, ordered collection of strategies for one logical UI
// element. Insertion order is priority order and is never reordered; the
// engine deliberately does not adapt ordering to past success, so a resolved
// element is always attributable to the first matching declared strategy.
//
// Specs are built once during page-object setup and treated as read-only
// afterwards. That convention is not enforced.
type Spec struct {
	name       string
	strategies []Strategy
}

// New creates an empty Spec. The name shows up in every log line and error
// produced while resolving the element.
func New(name string) *Spec {
	return &Spec{name: name}
}

// Name returns the element name.
func (s *Spec) Name() string { return s.name }

// Add appends a strategy and returns the Spec for chaining. Duplicate
// selectors are allowed; they cost an extra attempt but are not an error.
func (s *Spec) Add(st Strategy) *Spec {
	s.strategies = append(s.strategies, st)
	return s
}

// XPath appends an XPath strategy.
func (s *Spec) XPath(expr, label string) *Spec {
	return s.Add(Strategy{Kind: KindXPath, Selector: expr, Label: label})
}

// CSS appends a CSS selector strategy.
func (s *Spec) CSS(sel, label string) *Spec {
	return s.Add(Strategy{Kind: KindCSS, Selector: sel, Label: label})
}

// Role appends a role-based strategy. The selector is either a bare role
// ("button") or role plus accessible name ("button[name=Submit]").
func (s *Spec) Role(role, label string) *Spec {
	return s.Add(Strategy{Kind: KindRole, Selector: role, Label: label})
}

// Text appends a text-match strategy.
func (s *Spec) Text(text, label string) *Spec {
	return s.Add(Strategy{Kind: KindText, Selector: text, Label: label})
}

// TestID appends a test-id strategy.
func (s *Spec) TestID(id, label string) *Spec {
	return s.Add(Strategy{Kind: KindTestID, Selector: id, Label: label})
}

// ByLabel appends a form-label strategy.
func (s *Spec) ByLabel(text, label string) *Spec {
	return s.Add(Strategy{Kind: KindLabel, Selector: text, Label: label})
}

// Placeholder appends a placeholder-text strategy.
func (s *Spec) Placeholder(text, label string) *Spec {
	return s.Add(Strategy{Kind: KindPlaceholder, Selector: text, Label: label})
}

// AltText appends an alt-text strategy.
func (s *Spec) AltText(text, label string) *Spec {
	return s.Add(Strategy{Kind: KindAltText, Selector: text, Label: label})
}

// Len returns the number of strategies.
func (s *Spec) Len() int { return len(s.strategies) }

// Strategies returns a copy of the strategies in priority order.
func (s *Spec) Strategies() []Strategy {
	out := make([]Strategy, len(s.strategies))
	copy(out, s.strategies)
	return out
}
