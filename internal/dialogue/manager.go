package dialogue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dcode-agent/internal/usecase"
)

// Manager tracks live chat sessions by ID. Sessions exist only in
// memory for their screen's lifetime; there is no durability
// requirement, so an evicted or lost session simply restarts the chat.
type Manager struct {
	resolver Resolver
	handoff  Handoff

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(r Resolver, h Handoff) (*Manager, error) {
	if r == nil {
		return nil, errors.New("dialogue: resolver must not be nil")
	}
	if h == nil {
		return nil, errors.New("dialogue: handoff must not be nil")
	}
	return &Manager{
		resolver: r,
		handoff:  h,
		sessions: make(map[string]*Session),
	}, nil
}

// sessionIdleTTL bounds how long an abandoned session survives in a
// warm Lambda before the next Start evicts it.
var sessionIdleTTL = 30 * time.Minute

// Start creates a session for the given destination, seeds its
// greeting, and registers it. Abandoned sessions are pruned on the way
// in so the in-memory map stays bounded.
func (m *Manager) Start(destination, nickname, userID string) (*Session, error) {
	m.PruneIdle(sessionIdleTTL)

	s, err := newSession(newSessionID(), destination, nickname, userID, m.resolver, m.handoff)
	if err != nil {
		return nil, usecase.NewError(usecase.ErrorInvalidInput, "invalid_session_config", err)
	}
	if _, err := s.Start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		return nil, usecase.NewError(usecase.ErrorNotFound, "session_not_found", nil)
	}
	return s, nil
}

// Close tears down and forgets a session. Closing an unknown ID is a
// no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// PruneIdle closes sessions with no activity for maxAge and reports
// how many were evicted.
func (m *Manager) PruneIdle(maxAge time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.idle(now, maxAge) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

var newSessionID = func() string {
	return uuid.NewString()
}
