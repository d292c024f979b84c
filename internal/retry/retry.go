// Package retry provides the exponential-backoff policy shared by the
// locator engine (resolution sweeps) and the page layer (action retries).
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive retries. Must be > 1.0
	// for the schedule to actually back off.
	Multiplier float64
}

// DefaultPolicy mirrors the framework's configured defaults and is used when
// a caller passes a zero Policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff delay for the given zero-based attempt:
// min(InitialDelay * Multiplier^attempt, MaxDelay). The sequence is
// non-decreasing and capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// permanentError marks an error that must never be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Handler treats it as non-transient and stops
// retrying immediately. Structural failures (an element that does not exist
// at all) should be wrapped this way; flaky action failures should not.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// AttemptError records one failed attempt inside a Result.
type AttemptError struct {
	Attempt int
	Err     error
}

// Result summarizes a retried operation: how many attempts ran, how long the
// whole thing took, and what each failed attempt reported.
type Result struct {
	Attempts  int
	Elapsed   time.Duration
	Errors    []AttemptError
	Succeeded bool
}

// Handler executes operations under a Policy, retrying transient failures.
type Handler struct {
	policy    Policy
	retryable func(error) bool
	logger    *zap.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithRetryable replaces the transient-failure classifier. The default
// retries everything except context cancellation and Permanent errors.
func WithRetryable(fn func(error) bool) Option {
	return func(h *Handler) { h.retryable = fn }
}

// NewHandler builds a Handler. A zero policy falls back to DefaultPolicy.
func NewHandler(policy Policy, logger *zap.Logger, opts ...Option) *Handler {
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		policy: policy,
		logger: logger.Named("retry"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if h.retryable != nil {
		return h.retryable(err)
	}
	return true
}

// Do runs op, retrying per the policy. The name is only used for logging.
// On success the Result carries every failed attempt that preceded it; on
// exhaustion the last error is returned unwrapped, exactly as op produced it.
func (h *Handler) Do(ctx context.Context, name string, op func(ctx context.Context) error) (Result, error) {
	res := Result{}
	start := time.Now()
	log := h.logger.With(zap.String("operation", name))

	var lastErr error
	for attempt := 0; attempt <= h.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			if lastErr != nil {
				return res, lastErr
			}
			return res, err
		}

		res.Attempts = attempt + 1
		err := op(ctx)
		if err == nil {
			res.Succeeded = true
			res.Elapsed = time.Since(start)
			if attempt > 0 {
				log.Info("Operation succeeded after retries.", zap.Int("attempts", res.Attempts))
			}
			return res, nil
		}

		lastErr = err
		res.Errors = append(res.Errors, AttemptError{Attempt: attempt + 1, Err: err})

		if !h.isRetryable(err) {
			log.Debug("Failure is not retryable, giving up.", zap.Error(err))
			break
		}
		if attempt == h.policy.MaxRetries {
			break
		}

		delay := h.policy.Delay(attempt)
		log.Warn("Attempt failed, backing off.",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := sleep(ctx, delay); err != nil {
			res.Elapsed = time.Since(start)
			return res, lastErr
		}
	}

	res.Elapsed = time.Since(start)
	log.Error("Operation failed.",
		zap.Int("attempts", res.Attempts),
		zap.Error(lastErr))
	return res, lastErr
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
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
