package api

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/kernel"
)

// KernelFactory creates the kernel of a new session
type KernelFactory func(sessionID string) *kernel.Kernel

// Session is one kernel reachable over HTTP
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Kernel    *kernel.Kernel
}

// SessionManager holds the live sessions of this process
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	factory     KernelFactory
	maxSessions int
	logger      *zap.Logger
}

// NewSessionManager creates a session manager. maxSessions <= 0 means no limit.
func NewSessionManager(factory KernelFactory, maxSessions int, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		factory:     factory,
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// Create starts a session with an empty chain
func (m *SessionManager) Create(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("session limit of %d reached", m.maxSessions)
	}

	id := uuid.NewString()
	session := &Session{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Kernel:    m.factory(id),
	}
	m.sessions[id] = session

	m.logger.Info("Session created", zap.String("session_id", id), zap.String("name", name))
	return session, nil
}

// Get returns a session by ID
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, celldockerrors.New(celldockerrors.ErrorCodeSessionNotFound, id)
	}
	return session, nil
}

// Delete drops a session. Its images stay in the engine.
func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return celldockerrors.New(celldockerrors.ErrorCodeSessionNotFound, id)
	}
	delete(m.sessions, id)

	m.logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

// List returns all sessions, oldest first
func (m *SessionManager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
