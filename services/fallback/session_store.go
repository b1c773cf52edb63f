package fallback

import (
	"context"
	"sync"
)

// SessionStore persists a monitor's event log per session.
type SessionStore interface {
	Save(ctx context.Context, sessionID string, events []Event) error
	Load(ctx context.Context, sessionID string) ([]Event, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemorySessionStore keeps logs in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]Event
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string][]Event)}
}

func (s *MemorySessionStore) Save(_ context.Context, sessionID string, events []Event) error {
	cp := make([]Event, len(events))
	copy(cp, events)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cp
	return nil
}

// Load returns an empty log for an unknown session.
func (s *MemorySessionStore) Load(_ context.Context, sessionID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.sessions[sessionID]
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemorySessionStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
