package locator

import (
	"context"
	"time"
)

// Outcome classifies how one strategy attempt ended.
type Outcome string

const (
	// OutcomeSuccess means the strategy produced a handle.
	OutcomeSuccess Outcome = "success"
	// OutcomeTimeout means the element never reached the required condition.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeError means the query surface reported a structural error,
	// e.g. invalid selector syntax. Treated like a timeout for fallback
	// purposes, but the detail is kept verbatim for debugging.
	OutcomeError Outcome = "error"
)

// Attempt records the outcome of trying one strategy during one resolution
// call. Attempts are append-only diagnostics; callers read them, log them,
// and throw them away.
type Attempt struct {
	// Strategy is the strategy that was tried.
	Strategy Strategy `json:"strategy"`
	// Index is the strategy's zero-based position within its Spec.
	Index int `json:"index"`
	// Sweep is the zero-based resolution sweep this attempt belongs to.
	Sweep int `json:"sweep"`
	// Outcome is success, timeout, or error.
	Outcome Outcome `json:"outcome"`
	// Elapsed is how long the attempt took.
	Elapsed time.Duration `json:"elapsed"`
	// Error holds the failure detail, empty on success.
	Error string `json:"error,omitempty"`
	// At is when the attempt started.
	At time.Time `json:"at"`
}

// DiagnosticSink receives the full attempt history when a resolution
// exhausts every strategy. Implementations capture screenshots or persist
// logs; they must never let a failure escape into the resolution flow, so
// Capture returns nothing.
type DiagnosticSink interface {
	Capture(ctx context.Context, tag string, attempts []Attempt)
}

// NopSink discards diagnostics. Useful in tests and headless tooling.
type NopSink struct{}

// Capture implements DiagnosticSink.
func (NopSink) Capture(context.Context, string, []Attempt) {}
