package session

import (
	"context"
	"sync"
	"time"

	"github.com/certlab/engine/internal/errs"
)

// Store persists study sessions. UpdateState is compare-and-swap on
// the current state: a lost race surfaces as CONCURRENCY_CONFLICT.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	UpdateState(ctx context.Context, id string, from, to State) error
	// AbandonExpired marks every non-terminal session past its expiry
	// as abandoned and returns how many it changed.
	AbandonExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is an in-memory Store for tests and single-node use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return errs.New(errs.CodeConcurrencyConflict, "session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, errs.New(errs.CodeNotFound, "session %s not found", id)
	}
	return sess, nil
}

func (s *MemoryStore) UpdateState(_ context.Context, id string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errs.New(errs.CodeNotFound, "session %s not found", id)
	}
	if sess.State != from {
		return errs.New(errs.CodeConcurrencyConflict,
			"session %s is %s, expected %s", id, sess.State, from)
	}
	sess.State = to
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) AbandonExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if !sess.State.Terminal() && sess.Expired(now) {
			sess.State = StateAbandoned
			s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}
