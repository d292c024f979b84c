package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/lancet/internal/config"
)

// Manager hands out sessions over a shared browser process. The number of
// live sessions is bounded by browser.max_sessions; NewSession blocks until
// a slot frees up or the context is cancelled.
type Manager struct {
	factory *Factory
	cfg     *config.Config
	logger  *zap.Logger
	slots   *semaphore.Weighted

	mu       sync.Mutex
	browser  playwright.Browser
	sessions map[string]*Session
	closed   bool
}

// NewManager builds a Manager; the browser launches lazily on first use.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory, err := NewFactory(cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		factory:  factory,
		cfg:      cfg,
		logger:   logger.Named("browser.manager"),
		slots:    semaphore.NewWeighted(int64(cfg.Browser.MaxSessions)),
		sessions: make(map[string]*Session),
	}, nil
}

// NewSession acquires a slot and opens an isolated context + page.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for session slot: %w", err)
	}

	browser, err := m.ensureBrowser()
	if err != nil {
		m.slots.Release(1)
		return nil, err
	}

	var sess *Session
	sess, err = newSession(browser, m.cfg, m.logger, func() {
		m.unregister(sess)
		m.slots.Release(1)
	})
	if err != nil {
		m.slots.Release(1)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *Manager) ensureBrowser() (playwright.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}
	browser, err := m.factory.Launch()
	if err != nil {
		return nil, err
	}
	m.browser = browser
	return browser, nil
}

func (m *Manager) unregister(sess *Session) {
	if sess == nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, sess.ID())
	m.mu.Unlock()
}

// Close closes every live session, the browser and the Playwright driver.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	browser := m.browser
	m.mu.Unlock()

	for _, s := range open {
		if err := s.Close(); err != nil {
			m.logger.Warn("Failed to close session.", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			m.logger.Warn("Failed to close browser.", zap.Error(err))
		}
	}
	return m.factory.Close()
}
