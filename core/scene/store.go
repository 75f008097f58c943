package scene

import (
	"context"
	"sync"
)

// Store persists session state. Get returns the zero State for unknown sessions.
type Store interface {
	Get(ctx context.Context, sessionID string) (State, error)
	Set(ctx context.Context, sessionID string, st State) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]State
}

// NewMemoryStore constructs an in-memory Store for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]State)}
}

// Get returns a copy of the stored state.
func (m *memoryStore) Get(_ context.Context, sessionID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.sessions[sessionID]; ok {
		return st.Clone(), nil
	}
	return State{}, nil
}

// Set stores a copy of st.
func (m *memoryStore) Set(_ context.Context, sessionID string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = st.Clone()
	return nil
}
