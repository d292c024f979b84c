package page

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

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/driver"
	"github.com/xkilldash9x/lancet/internal/locator"
)

// fakeHandle counts actions and fails a scripted number of times first.
type fakeHandle struct {
	mu          sync.Mutex
	clicks      int
	fills       []string
	selects     []string
	text        string
	failActions int
}

func (f *fakeHandle) failOnce() error {
	if f.failActions > 0 {
		f.failActions--
		return errors.New("element detached during action")
	}
	return nil
}

func (f *fakeHandle) Click(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks++
	return f.failOnce()
}

func (f *fakeHandle) Fill(_ context.Context, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = append(f.fills, value)
	return f.failOnce()
}

func (f *fakeHandle) SelectOption(_ context.Context, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects = append(f.selects, value)
	return f.failOnce()
}

func (f *fakeHandle) Text(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOnce(); err != nil {
		return "", err
	}
	return f.text, nil
}

func (f *fakeHandle) Description() string { return "fake" }

// fakeSurface resolves every query to the same handle, or fails every query.
type fakeSurface struct {
	mu      sync.Mutex
	handle  *fakeHandle
	queries int
	found   bool
	conds   []driver.Condition
}

func (f *fakeSurface) Query(ctx context.Context, sel driver.Selector, cond driver.Condition, timeout time.Duration) (driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.conds = append(f.conds, cond)
	if !f.found {
		return nil, fmt.Errorf("%w: no such element", driver.ErrConditionTimeout)
	}
	return f.handle, nil
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Locator.DefaultStrategyTimeout = 10 * time.Millisecond
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	return cfg
}

func loginButton() *locator.Spec {
	return locator.New("login button").TestID("login", "").CSS("button.login", "")
}

func TestElementClick(t *testing.T) {
	surface := &fakeSurface{handle: &fakeHandle{}, found: true}
	pg := New(surface, nil, testConfig(), zap.NewNop())

	err := pg.Element(loginButton()).Click(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, surface.handle.clicks)
	assert.Equal(t, []driver.Condition{driver.ConditionInteractable}, surface.conds)
}

func TestElementFillAndSelectConditions(t *testing.T) {
	surface := &fakeSurface{handle: &fakeHandle{}, found: true}
	pg := New(surface, nil, testConfig(), zap.NewNop())
	el := pg.Element(loginButton())
	ctx := context.Background()

	require.NoError(t, el.Fill(ctx, "standard_user"))
	require.NoError(t, el.SelectOption(ctx, "usd"))

	assert.Equal(t, []string{"standard_user"}, surface.handle.fills)
	assert.Equal(t, []string{"usd"}, surface.handle.selects)
	assert.Equal(t, []driver.Condition{driver.ConditionEditable, driver.ConditionVisible}, surface.conds)
}

func TestElementText(t *testing.T) {
	surface := &fakeSurface{handle: &fakeHandle{text: "Welcome back"}, found: true}
	pg := New(surface, nil, testConfig(), zap.NewNop())

	got, err := pg.Element(loginButton()).Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Welcome back", got)
	assert.Equal(t, []driver.Condition{driver.ConditionAttached}, surface.conds)
}

func TestElementActionRetriesTransientFailure(t *testing.T) {
	surface := &fakeSurface{handle: &fakeHandle{failActions: 2}, found: true}
	pg := New(surface, nil, testConfig(), zap.NewNop())

	err := pg.Element(loginButton()).Click(context.Background())
	require.NoError(t, err)
	// Two failed clicks plus the success, each on a freshly resolved handle.
	assert.Equal(t, 3, surface.handle.clicks)
	assert.Equal(t, 3, surface.queries)
}

func TestElementActionExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxRetries = 2
	surface := &fakeSurface{handle: &fakeHandle{failActions: 10}, found: true}
	pg := New(surface, nil, cfg, zap.NewNop())

	err := pg.Element(loginButton()).Click(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, surface.handle.clicks, "initial attempt plus two retries")
}

func TestElementNotFoundIsNotRetried(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxRetries = 5
	surface := &fakeSurface{found: false}
	pg := New(surface, nil, cfg, zap.NewNop())

	err := pg.Element(loginButton()).Click(context.Background())
	require.Error(t, err)

	var nf *locator.NotFoundError
	assert.ErrorAs(t, err, &nf)
	// One resolution, two strategies. The action retry loop must not rerun a
	// structurally failed lookup five more times.
	assert.Equal(t, 2, surface.queries)
}

func TestElementPresentAndVisible(t *testing.T) {
	ctx := context.Background()

	found := &fakeSurface{handle: &fakeHandle{}, found: true}
	pg := New(found, nil, testConfig(), zap.NewNop())
	el := pg.Element(loginButton())
	assert.True(t, el.Present(ctx))
	assert.True(t, el.Visible(ctx))
	assert.Equal(t, []driver.Condition{driver.ConditionAttached, driver.ConditionVisible}, found.conds)

	missing := &fakeSurface{found: false}
	pg = New(missing, nil, testConfig(), zap.NewNop())
	el = pg.Element(loginButton())
	assert.False(t, el.Present(ctx))
	assert.NotEmpty(t, el.Attempts())
}

func TestPageLocatorRetriesMultiplySweeps(t *testing.T) {
	cfg := testConfig()
	cfg.Locator.MaxLocatorRetries = 2
	cfg.Retry.MaxRetries = 0
	surface := &fakeSurface{found: false}
	pg := New(surface, nil, cfg, zap.NewNop())

	assert.False(t, pg.Element(loginButton()).Present(context.Background()))
	// 2 strategies x (1 + 2 retry sweeps).
	assert.Equal(t, 6, surface.queries)
}
