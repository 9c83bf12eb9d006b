package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
)

// Manager keeps one Session per user and tracks the registration runs those
// sessions dispatch.
type Manager struct {
	deps Deps

	opening singleflight.Group

	mu       sync.Mutex
	sessions map[id.UserID]*Session
	closed   bool
	runs     sync.WaitGroup
}

func NewManager(deps Deps) (*Manager, error) {
	if deps.Persistence == nil {
		return nil, errors.New("persistence is required")
	}
	if deps.Biometric == nil {
		return nil, errors.New("biometric provider is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps, sessions: make(map[id.UserID]*Session)}, nil
}

// Open returns the user's session, creating and subscribing it on first use.
// deviceLabel is only used when the session is created. Concurrent first
// opens for one user share a single subscription; other users are never held
// up by it.
func (m *Manager) Open(ctx context.Context, userID id.UserID, deviceLabel string) (*Session, error) {
	if s, ok, err := m.lookup(userID); ok || err != nil {
		return s, err
	}

	v, err, _ := m.opening.Do(userID.String(), func() (any, error) {
		if s, ok, err := m.lookup(userID); ok || err != nil {
			return s, err
		}
		s, err := newSession(ctx, userID, deviceLabel, m.deps, m.dispatch)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			s.Close(ctx)
			return nil, errClosed()
		}
		m.sessions[userID] = s
		m.deps.Metrics.SetActiveSessions(len(m.sessions))
		m.mu.Unlock()

		m.deps.Logger.InfoContext(ctx, "voice session opened", "user_id", userID.String(), "device", deviceLabel)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(userID id.UserID) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, errClosed()
	}
	s, ok := m.sessions[userID]
	return s, ok, nil
}

func (m *Manager) Get(userID id.UserID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close ends one user's session. Returns false if none was open.
func (m *Manager) Close(ctx context.Context, userID id.UserID) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.deps.Metrics.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close(ctx)
	m.deps.Logger.InfoContext(ctx, "voice session closed", "user_id", userID.String())
	return true
}

// CloseAll ends every session, refuses new ones and waits for confirmed runs
// to finish. It returns ctx's error if the runs outlast ctx.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[id.UserID]*Session)
	m.deps.Metrics.SetActiveSessions(0)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}

	done := make(chan struct{})
	go func() {
		m.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.deps.Logger.ErrorContext(ctx, "registration runs still in flight at shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// dispatch runs a confirmed registration on its own goroutine. Runs confirmed
// after CloseAll are dropped before they reach any provider.
func (m *Manager) dispatch(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.deps.Logger.Warn("registration confirmed after shutdown, dropping run")
		return
	}
	m.runs.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.runs.Done()
		fn()
	}()
}

func errClosed() error {
	return dErrors.New(dErrors.CodeUnavailable, "voice service is shutting down")
}
