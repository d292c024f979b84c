package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/driver"
	"github.com/xkilldash9x/lancet/internal/retry"
)

// NotFoundError is returned when every strategy of a Spec has been tried
// (across every allowed sweep) without producing a handle. It carries the
// complete attempt history so a single error message is enough to diagnose
// the failure without re-running the test.
type NotFoundError struct {
	SpecName string
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "element %q not found after %d attempt(s)", e.SpecName, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, "; [%d] %s -> %s", a.Index, a.Strategy, a.Outcome)
		if a.Error != "" {
			fmt.Fprintf(&sb, " (%s)", a.Error)
		}
	}
	return sb.String()
}

// Options configures a Resolver. The zero value is not usable; build one
// from config with OptionsFromConfig or fill the fields directly in tests.
type Options struct {
	// DefaultTimeout bounds a single strategy attempt when the strategy
	// carries no override.
	DefaultTimeout time.Duration
	// OverallDeadline, when > 0, caps one whole resolution call (all sweeps).
	// Once exceeded, remaining strategies are skipped instead of being tried
	// with a zero timeout.
	OverallDeadline time.Duration
	// MaxSweeps is how many full passes over the strategy list one Resolve
	// call may make. Values below 1 are treated as 1. Sweeps after the first
	// are spaced by Backoff.
	MaxSweeps int
	// Backoff spaces resolution sweeps. Only its delay schedule is used here;
	// MaxRetries on the policy is ignored in favor of MaxSweeps.
	Backoff retry.Policy
}

// Resolver executes the strategy fallback algorithm against a query surface.
// It is read-only with respect to the page: the only mutation of application
// state happens later, when the caller acts on the returned handle.
//
// A Resolver is owned by one test's control flow; the attempt log of the
// most recent resolution is retained for inspection via LastAttempts.
type Resolver struct {
	surface driver.Surface
	sink    DiagnosticSink
	logger  *zap.Logger
	opts    Options

	mu           sync.Mutex
	lastAttempts []Attempt
}

// NewResolver builds a Resolver. A nil sink disables diagnostic capture.
func NewResolver(surface driver.Surface, sink DiagnosticSink, logger *zap.Logger, opts Options) *Resolver {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	if opts.MaxSweeps < 1 {
		opts.MaxSweeps = 1
	}
	if opts.Backoff == (retry.Policy{}) {
		opts.Backoff = retry.DefaultPolicy()
	}
	return &Resolver{
		surface: surface,
		sink:    sink,
		logger:  logger.Named("locator"),
		opts:    opts,
	}
}

// Resolve tries the spec's strategies in declaration order until one yields
// a handle satisfying the condition for the given intent. The first success
// wins and short-circuits the rest, even if a later strategy would also have
// matched. On exhaustion it triggers diagnostic capture and returns a
// *NotFoundError carrying every attempt.
func (r *Resolver) Resolve(ctx context.Context, spec *Spec, intent Intent) (driver.Handle, error) {
	handle, attempts, err := r.run(ctx, spec, intent)
	r.setLastAttempts(attempts)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// ResolveSafe runs the identical algorithm but reports exhaustion as a nil
// handle instead of an error. Diagnostics and the attempt log are produced
// exactly as for Resolve.
func (r *Resolver) ResolveSafe(ctx context.Context, spec *Spec, intent Intent) driver.Handle {
	handle, attempts, err := r.run(ctx, spec, intent)
	r.setLastAttempts(attempts)
	if err != nil {
		return nil
	}
	return handle
}

// LastAttempts returns the attempt log of the most recent Resolve or
// ResolveSafe call on this Resolver.
func (r *Resolver) LastAttempts() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.lastAttempts))
	copy(out, r.lastAttempts)
	return out
}

func (r *Resolver) setLastAttempts(attempts []Attempt) {
	r.mu.Lock()
	r.lastAttempts = attempts
	r.mu.Unlock()
}

// run drives the state machine over up to MaxSweeps passes.
func (r *Resolver) run(ctx context.Context, spec *Spec, intent Intent) (driver.Handle, []Attempt, error) {
	log := r.logger.With(zap.String("element", spec.Name()), zap.String("intent", string(intent)))

	if spec.Len() == 0 {
		err := &NotFoundError{SpecName: spec.Name()}
		log.Error("Locator spec has no strategies.")
		return nil, nil, err
	}

	cond := ConditionFor(intent, log)

	// The overall deadline covers the entire call, sweeps and backoff
	// included.
	if r.opts.OverallDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.OverallDeadline)
		defer cancel()
	}

	var attempts []Attempt

	for sweep := 0; sweep < r.opts.MaxSweeps; sweep++ {
		if sweep > 0 {
			delay := r.opts.Backoff.Delay(sweep - 1)
			log.Info("Resolution sweep exhausted, retrying.",
				zap.Int("sweep", sweep+1),
				zap.Duration("delay", delay))
			if err := sleepCtx(ctx, delay); err != nil {
				break
			}
		}

		handle, swept := r.sweep(ctx, spec, cond, sweep, &attempts, log)
		if handle != nil {
			return handle, attempts, nil
		}
		// A sweep cut short by the deadline means later sweeps would be too.
		if !swept {
			break
		}
	}

	log.Error("All locator strategies exhausted.",
		zap.Int("attempts", len(attempts)))
	r.capture(ctx, spec.Name(), attempts)
	return nil, attempts, &NotFoundError{SpecName: spec.Name(), Attempts: attempts}
}

// sweep performs one in-order pass over the strategies. It returns the
// resolved handle, if any, and whether the pass visited every strategy
// (false when the overall deadline cut it short).
func (r *Resolver) sweep(ctx context.Context, spec *Spec, cond driver.Condition, sweepNum int, attempts *[]Attempt, log *zap.Logger) (driver.Handle, bool) {
	strategies := spec.Strategies()
	for i, strat := range strategies {
		timeout, ok := r.attemptTimeout(ctx, strat)
		if !ok {
			log.Warn("Overall deadline exceeded, skipping remaining strategies.",
				zap.Int("skipped_from", i))
			return nil, false
		}

		log.Debug("Trying locator strategy.",
			zap.Int("index", i),
			zap.String("strategy", strat.String()),
			zap.Duration("timeout", timeout))

		started := time.Now()
		handle, err := r.surface.Query(ctx, strat.selector(), cond, timeout)
		elapsed := time.Since(started)

		attempt := Attempt{
			Strategy: strat,
			Index:    i,
			Sweep:    sweepNum,
			Elapsed:  elapsed,
			At:       started,
		}

		if err == nil {
			attempt.Outcome = OutcomeSuccess
			*attempts = append(*attempts, attempt)
			log.Info("Element resolved.",
				zap.Int("index", i),
				zap.String("strategy", strat.String()),
				zap.Duration("elapsed", elapsed))
			return handle, true
		}

		if errors.Is(err, driver.ErrConditionTimeout) {
			attempt.Outcome = OutcomeTimeout
		} else {
			attempt.Outcome = OutcomeError
		}
		attempt.Error = err.Error()
		*attempts = append(*attempts, attempt)

		log.Warn("Locator strategy failed.",
			zap.Int("index", i),
			zap.String("strategy", strat.String()),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Duration("elapsed", elapsed))

		if ctx.Err() != nil {
			return nil, false
		}
	}
	return nil, true
}

// attemptTimeout computes the bounded wait for one strategy: the strategy's
// override when set, else the configured default, further capped by whatever
// remains of the overall deadline. ok is false when nothing remains.
func (r *Resolver) attemptTimeout(ctx context.Context, strat Strategy) (time.Duration, bool) {
	timeout := strat.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	if deadline, has := ctx.Deadline(); has {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	return timeout, true
}

// capture hands the attempt history to the diagnostic sink. The sink
// contract is fire-and-forget, but a panicking sink must not take the
// resolution down with it.
func (r *Resolver) capture(ctx context.Context, tag string, attempts []Attempt) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Diagnostic sink panicked.", zap.Any("panic", rec))
		}
	}()
	r.sink.Capture(ctx, tag, attempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
