package session

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store used in tests and when running without
// Postgres. Sessions are copied on load so callers never alias store state.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*Session)}
}

func (s *MemStore) Load(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *stored
	out.Turns = make([]Turn, len(stored.Turns))
	copy(out.Turns, stored.Turns)
	return &out, nil
}

func (s *MemStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemStore) AppendTurn(ctx context.Context, sessionID string, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	stored.Turns = append(stored.Turns, t)
	stored.LastActivity = t.CreatedAt
	return nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}
