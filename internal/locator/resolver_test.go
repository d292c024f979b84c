package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/driver"
	"github.com/xkilldash9x/lancet/internal/retry"
)

// -- Test doubles --

type fakeHandle struct {
	desc string
}

func (f *fakeHandle) Click(context.Context) error                 { return nil }
func (f *fakeHandle) Fill(context.Context, string) error          { return nil }
func (f *fakeHandle) SelectOption(context.Context, string) error  { return nil }
func (f *fakeHandle) Text(context.Context) (string, error)        { return "", nil }
func (f *fakeHandle) Description() string                         { return f.desc }

type queryCall struct {
	Sel     driver.Selector
	Cond    driver.Condition
	Timeout time.Duration
}

// fakeSurface replays a scripted sequence of query results.
type fakeSurface struct {
	mu      sync.Mutex
	calls   []queryCall
	results []func() (driver.Handle, error)
}

func (f *fakeSurface) Query(ctx context.Context, sel driver.Selector, cond driver.Condition, timeout time.Duration) (driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, queryCall{Sel: sel, Cond: cond, Timeout: timeout})
	if len(f.results) == 0 {
		return nil, fmt.Errorf("%w: unscripted query", driver.ErrConditionTimeout)
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next()
}

func (f *fakeSurface) script(results ...func() (driver.Handle, error)) {
	f.results = append(f.results, results...)
}

func succeed() func() (driver.Handle, error) {
	return func() (driver.Handle, error) { return &fakeHandle{desc: "found"}, nil }
}

func timeOut() func() (driver.Handle, error) {
	return func() (driver.Handle, error) {
		return nil, fmt.Errorf("%w: still hidden", driver.ErrConditionTimeout)
	}
}

func queryError(msg string) func() (driver.Handle, error) {
	return func() (driver.Handle, error) { return nil, errors.New(msg) }
}

type fakeSink struct {
	mu       sync.Mutex
	tags     []string
	attempts [][]Attempt
}

func (f *fakeSink) Capture(_ context.Context, tag string, attempts []Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tag)
	f.attempts = append(f.attempts, attempts)
}

func newTestResolver(surface driver.Surface, sink DiagnosticSink, opts Options) *Resolver {
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 50 * time.Millisecond
	}
	if opts.Backoff == (retry.Policy{}) {
		opts.Backoff = retry.Policy{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		}
	}
	return NewResolver(surface, sink, zap.NewNop(), opts)
}

func threeStrategySpec() *Spec {
	return New("search input").
		XPath(`//input[@id="q"]`, "Primary XPath").
		CSS("#q", "CSS fallback").
		TestID("search", "Test id fallback")
}

// -- Resolve --

func TestResolveFirstSuccessShortCircuits(t *testing.T) {
	tests := []struct {
		name         string
		winningIndex int
	}{
		{"first strategy wins", 0},
		{"second strategy wins", 1},
		{"third strategy wins", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := &fakeSurface{}
			for i := 0; i < tt.winningIndex; i++ {
				surface.script(timeOut())
			}
			surface.script(succeed())

			r := newTestResolver(surface, nil, Options{})
			handle, err := r.Resolve(context.Background(), threeStrategySpec(), IntentClick)

			require.NoError(t, err)
			require.NotNil(t, handle)

			// Exactly k+1 queries: one per failed strategy plus the winner.
			assert.Len(t, surface.calls, tt.winningIndex+1)

			attempts := r.LastAttempts()
			require.Len(t, attempts, tt.winningIndex+1)
			for i := 0; i < tt.winningIndex; i++ {
				assert.Equal(t, OutcomeTimeout, attempts[i].Outcome)
				assert.Equal(t, i, attempts[i].Index)
			}
			assert.Equal(t, OutcomeSuccess, attempts[tt.winningIndex].Outcome)
		})
	}
}

func TestResolveTriesStrategiesInDeclarationOrder(t *testing.T) {
	surface := &fakeSurface{}
	surface.script(timeOut(), timeOut(), succeed())

	r := newTestResolver(surface, nil, Options{})
	_, err := r.Resolve(context.Background(), threeStrategySpec(), IntentRead)
	require.NoError(t, err)

	require.Len(t, surface.calls, 3)
	assert.Equal(t, driver.KindXPath, surface.calls[0].Sel.Kind)
	assert.Equal(t, driver.KindCSS, surface.calls[1].Sel.Kind)
	assert.Equal(t, driver.KindTestID, surface.calls[2].Sel.Kind)

	// A second resolution starts from strategy 0 again; success history does
	// not reorder anything.
	surface.script(timeOut(), timeOut(), succeed())
	_, err = r.Resolve(context.Background(), threeStrategySpec(), IntentRead)
	require.NoError(t, err)
	require.Len(t, surface.calls, 6)
	assert.Equal(t, driver.KindXPath, surface.calls[3].Sel.Kind)
}

func TestResolveExhaustionReturnsNotFound(t *testing.T) {
	surface := &fakeSurface{}
	surface.script(timeOut(), queryError(`invalid selector "##"`), timeOut())
	sink := &fakeSink{}

	r := newTestResolver(surface, sink, Options{})
	handle, err := r.Resolve(context.Background(), threeStrategySpec(), IntentClick)

	require.Error(t, err)
	assert.Nil(t, handle)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "search input", nf.SpecName)
	require.Len(t, nf.Attempts, 3)

	// Query errors fall back like timeouts but keep their detail verbatim.
	assert.Equal(t, OutcomeTimeout, nf.Attempts[0].Outcome)
	assert.Equal(t, OutcomeError, nf.Attempts[1].Outcome)
	assert.Equal(t, `invalid selector "##"`, nf.Attempts[1].Error)

	// The error message names the element and every strategy tried.
	assert.Contains(t, err.Error(), "search input")
	assert.Contains(t, err.Error(), "Primary XPath")
	assert.Contains(t, err.Error(), `invalid selector "##"`)

	// Diagnostics fired once, tagged with the spec name.
	require.Len(t, sink.tags, 1)
	assert.Equal(t, "search input", sink.tags[0])
	assert.Len(t, sink.attempts[0], 3)
}

func TestResolveRetrySweeps(t *testing.T) {
	surface := &fakeSurface{}
	// Two full sweeps over three strategies, all failing.
	r := newTestResolver(surface, nil, Options{MaxSweeps: 2})

	_, err := r.Resolve(context.Background(), threeStrategySpec(), IntentRead)
	require.Error(t, err)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Len(t, nf.Attempts, 6, "N strategies x R sweeps")
	assert.Len(t, surface.calls, 6)

	assert.Equal(t, 0, nf.Attempts[0].Sweep)
	assert.Equal(t, 1, nf.Attempts[3].Sweep)
	assert.Equal(t, 0, nf.Attempts[3].Index, "each sweep restarts at strategy 0")
}

func TestResolveRetrySweepStopsOnSuccess(t *testing.T) {
	surface := &fakeSurface{}
	surface.script(timeOut(), timeOut(), timeOut(), timeOut(), succeed())

	r := newTestResolver(surface, nil, Options{MaxSweeps: 3})
	handle, err := r.Resolve(context.Background(), threeStrategySpec(), IntentRead)

	require.NoError(t, err)
	require.NotNil(t, handle)
	// Sweep 0 burns 3 attempts, sweep 1 fails once then succeeds.
	assert.Len(t, surface.calls, 5)
	attempts := r.LastAttempts()
	assert.Equal(t, OutcomeSuccess, attempts[len(attempts)-1].Outcome)
	assert.Equal(t, 1, attempts[len(attempts)-1].Sweep)
}

func TestResolveSafeNeverRaises(t *testing.T) {
	surface := &fakeSurface{}
	sink := &fakeSink{}
	r := newTestResolver(surface, sink, Options{})

	handle := r.ResolveSafe(context.Background(), threeStrategySpec(), IntentClick)
	assert.Nil(t, handle)

	// The attempt log and diagnostics match what Resolve would produce.
	assert.Len(t, r.LastAttempts(), 3)
	require.Len(t, sink.tags, 1)
	assert.Len(t, sink.attempts[0], 3)
}

func TestResolveSafeReturnsHandleOnSuccess(t *testing.T) {
	surface := &fakeSurface{}
	surface.script(succeed())

	r := newTestResolver(surface, nil, Options{})
	handle := r.ResolveSafe(context.Background(), threeStrategySpec(), IntentClick)
	require.NotNil(t, handle)
	assert.Equal(t, "found", handle.Description())
}

func TestResolveEmptySpec(t *testing.T) {
	r := newTestResolver(&fakeSurface{}, nil, Options{})
	_, err := r.Resolve(context.Background(), New("ghost"), IntentClick)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.SpecName)
	assert.Empty(t, nf.Attempts)
}

// -- Timeouts and deadlines --

func TestResolveTimeoutSelection(t *testing.T) {
	surface := &fakeSurface{}
	surface.script(timeOut(), succeed())

	spec := New("cart badge").
		Add(Strategy{Kind: KindCSS, Selector: ".cart", Timeout: 75 * time.Millisecond}).
		TestID("cart-badge", "")

	r := newTestResolver(surface, nil, Options{DefaultTimeout: 40 * time.Millisecond})
	_, err := r.Resolve(context.Background(), spec, IntentRead)
	require.NoError(t, err)

	require.Len(t, surface.calls, 2)
	assert.Equal(t, 75*time.Millisecond, surface.calls[0].Timeout, "per-strategy override wins")
	assert.Equal(t, 40*time.Millisecond, surface.calls[1].Timeout, "default applies without override")
}

func TestResolveOverallDeadlineSkipsRemainingStrategies(t *testing.T) {
	surface := &fakeSurface{}
	// The first strategy consumes the whole deadline.
	surface.script(func() (driver.Handle, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, fmt.Errorf("%w: slow page", driver.ErrConditionTimeout)
	})
	sink := &fakeSink{}

	r := newTestResolver(surface, sink, Options{
		DefaultTimeout:  20 * time.Millisecond,
		OverallDeadline: 25 * time.Millisecond,
		MaxSweeps:       3,
	})
	_, err := r.Resolve(context.Background(), threeStrategySpec(), IntentRead)
	require.Error(t, err)

	// Remaining strategies were skipped, not attempted with a zero timeout,
	// and no further sweeps ran.
	assert.Len(t, surface.calls, 1)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Len(t, nf.Attempts, 1)
}

func TestResolveDeadlineCapsAttemptTimeout(t *testing.T) {
	surface := &fakeSurface{}
	surface.script(succeed())

	r := newTestResolver(surface, nil, Options{
		DefaultTimeout:  10 * time.Second,
		OverallDeadline: 100 * time.Millisecond,
	})
	_, err := r.Resolve(context.Background(), threeStrategySpec(), IntentRead)
	require.NoError(t, err)

	require.Len(t, surface.calls, 1)
	assert.LessOrEqual(t, surface.calls[0].Timeout, 100*time.Millisecond,
		"attempt timeout is capped by the remaining overall deadline")
}

func TestResolveHonorsCallerCancellation(t *testing.T) {
	surface := &fakeSurface{}
	ctx, cancel := context.WithCancel(context.Background())
	surface.script(func() (driver.Handle, error) {
		cancel()
		return nil, fmt.Errorf("%w: cancelled mid-wait", driver.ErrConditionTimeout)
	})

	r := newTestResolver(surface, nil, Options{MaxSweeps: 5})
	_, err := r.Resolve(ctx, threeStrategySpec(), IntentRead)
	require.Error(t, err)
	// No further strategies or sweeps after cancellation.
	assert.Len(t, surface.calls, 1)
}

// -- Intent plumbing --

func TestResolvePassesIntentCondition(t *testing.T) {
	tests := []struct {
		intent Intent
		cond   driver.Condition
	}{
		{IntentClick, driver.ConditionInteractable},
		{IntentFill, driver.ConditionEditable},
		{IntentSelect, driver.ConditionVisible},
		{IntentRead, driver.ConditionAttached},
		{Intent("hover"), driver.ConditionVisible},
	}

	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			surface := &fakeSurface{}
			surface.script(succeed())
			r := newTestResolver(surface, nil, Options{})
			_, err := r.Resolve(context.Background(), threeStrategySpec(), tt.intent)
			require.NoError(t, err)
			require.Len(t, surface.calls, 1)
			assert.Equal(t, tt.cond, surface.calls[0].Cond)
		})
	}
}

// -- Diagnostics robustness --

type panickySink struct{}

func (panickySink) Capture(context.Context, string, []Attempt) { panic("sink exploded") }

func TestResolveSurvivesPanickingSink(t *testing.T) {
	r := newTestResolver(&fakeSurface{}, panickySink{}, Options{})
	assert.NotPanics(t, func() {
		_, err := r.Resolve(context.Background(), threeStrategySpec(), IntentRead)
		assert.Error(t, err)
	})
}
