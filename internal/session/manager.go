package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

const (
	defaultMaxTurns        = 50
	defaultTTL             = 30 * time.Minute
	defaultJanitorInterval = 5 * time.Minute
)

// Config bounds the in-memory store.
type Config struct {
	// MaxTurns caps retained turns per session; older turns are dropped.
	MaxTurns int
	// TTL is how long an idle session survives before the janitor evicts it.
	TTL time.Duration
	// JanitorInterval is how often the janitor scans for idle sessions.
	JanitorInterval time.Duration
}

// FromAppConfig converts the application session section.
func FromAppConfig(cfg config.SessionConfig) Config {
	return Config{
		MaxTurns:        cfg.MaxTurns,
		TTL:             cfg.TTL.Duration(),
		JanitorInterval: cfg.JanitorInterval.Duration(),
	}
}

func (c *Config) applyDefaults() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = defaultMaxTurns
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}
}

// state is one session's record. Its mutex serializes appends for that
// session only, so distinct sessions never contend with each other.
type state struct {
	mu         sync.Mutex
	turns      []Turn
	createdAt  time.Time
	lastActive time.Time
	evicted    bool
}

// Manager is the in-memory conversation store. Histories are bounded per
// session and idle sessions are evicted by the janitor.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*state

	cfg     Config
	logger  *logging.Logger
	onEvict func(sessionID string)
}

// NewManager creates a session store. Zero config fields fall back to
// defaults (50 turns, 30m TTL, 5m janitor interval).
func NewManager(cfg Config, logger *logging.Logger) (*Manager, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	cfg.applyDefaults()
	return &Manager{
		sessions: make(map[string]*state),
		cfg:      cfg,
		logger:   logger.Named("session"),
	}, nil
}

// SetEvictHook registers a callback invoked (outside all locks) for every
// session the janitor evicts. Used for metrics.
func (m *Manager) SetEvictHook(hook func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = hook
}

// Get returns a chronological snapshot of the session's turns. The slice
// is a copy; callers may retain or mutate it freely.
func (m *Manager) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	m.mu.RLock()
	st, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	snapshot := make([]Turn, len(st.turns))
	copy(snapshot, st.turns)
	return snapshot, nil
}

// Append atomically adds the given turns to the session, creating it on
// first use. Concurrent appends to the same session serialize: one call's
// turns are never interleaved with another's. If the history would exceed
// the per-session cap, the oldest turns are dropped so the newest fit.
func (m *Manager) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if sessionID == "" {
		return errors.New("session id cannot be empty")
	}
	if len(turns) == 0 {
		return nil
	}

	for {
		st := m.getOrCreate(sessionID)
		st.mu.Lock()
		if st.evicted {
			// Lost a race with the janitor; the id now maps to nothing.
			// Re-create and retry.
			st.mu.Unlock()
			continue
		}
		st.turns = append(st.turns, turns...)
		if over := len(st.turns) - m.cfg.MaxTurns; over > 0 {
			kept := make([]Turn, m.cfg.MaxTurns)
			copy(kept, st.turns[over:])
			st.turns = kept
		}
		st.lastActive = time.Now().UTC()
		st.mu.Unlock()
		return nil
	}
}

// Touch refreshes the session's activity clock without mutating history.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	st, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	st.mu.Lock()
	st.lastActive = time.Now().UTC()
	st.mu.Unlock()
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor launches the eviction loop. It stops when ctx is cancelled.
func (m *Manager) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Debug(ctx, "session janitor stopped")
				return
			case <-ticker.C:
				m.evictIdle(ctx)
			}
		}
	}()
	m.logger.Info(ctx, "session janitor started",
		zap.Duration("interval", m.cfg.JanitorInterval),
		zap.Duration("ttl", m.cfg.TTL),
	)
}

func (m *Manager) getOrCreate(sessionID string) *state {
	m.mu.RLock()
	st, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[sessionID]; ok {
		return st
	}
	now := time.Now().UTC()
	st = &state{createdAt: now, lastActive: now}
	m.sessions[sessionID] = st
	return st
}

func (m *Manager) evictIdle(ctx context.Context) {
	now := time.Now().UTC()
	var evicted []string

	m.mu.Lock()
	for id, st := range m.sessions {
		st.mu.Lock()
		if now.Sub(st.lastActive) >= m.cfg.TTL {
			st.evicted = true
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
		st.mu.Unlock()
	}
	hook := m.onEvict
	m.mu.Unlock()

	for _, id := range evicted {
		m.logger.Debug(ctx, "evicted idle session", zap.String("session_id", id))
		if hook != nil {
			hook(id)
		}
	}
}
