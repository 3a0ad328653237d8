package billing

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore mirrors the redis store's semantics for tests:
// create-if-absent, delete-and-report, expiring end-pending markers.

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	pending  map[string]time.Time

	clock func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[string]Session{},
		pending:  map[string]time.Time{},
		clock:    time.Now,
	}
}

func (s *MemorySessionStore) Open(ctx context.Context, sess Session, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.CallID]; ok {
		return false, nil
	}
	s.sessions[sess.CallID] = sess
	return true, nil
}

func (s *MemorySessionStore) Get(ctx context.Context, callID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	return sess, ok, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.CallID] = sess
	return nil
}

func (s *MemorySessionStore) Consume(ctx context.Context, callID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, false, nil
	}
	delete(s.sessions, callID)
	return sess, true, nil
}

func (s *MemorySessionStore) SetEndPending(ctx context.Context, callID string, grace time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[callID] = s.clock().Add(grace)
	return nil
}

func (s *MemorySessionStore) TakeEndPending(ctx context.Context, callID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.pending[callID]
	if !ok {
		return false, nil
	}
	delete(s.pending, callID)
	if s.clock().After(deadline) {
		return false, nil
	}
	return true, nil
}
