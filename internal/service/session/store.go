package session

import (
	"context"
	"sync"

	"github.com/RamonAndres1967/tutor-backend/internal/model/session"
)

// Store owns all Session objects and is their sole writer.
type Store interface {
	Get(ctx context.Context, identity string) (session.Session, bool)
	Put(ctx context.Context, sess session.Session) error
}

// MemoryStore keeps sessions in a process-wide map guarded by a RWMutex.
// Sessions do not survive a restart, which matches the lesson lifecycle:
// a returning learner simply starts a fresh warmup.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

// NewMemoryStore bootstraps the in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]session.Session)}
}

// Get retrieves the session for an identity.
func (s *MemoryStore) Get(_ context.Context, identity string) (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[identity]
	return sess, ok
}

// Put stores the session under its identity key.
func (s *MemoryStore) Put(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Identity] = sess
	return nil
}
