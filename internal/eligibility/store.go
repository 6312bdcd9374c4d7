package eligibility

import (
	"context"
	"sync"

	"github.com/certlab/engine/internal/errs"
)

// Store persists question exposure records keyed by (userID, questionID).
type Store interface {
	// Get returns the exposure for a pair, or a NOT_FOUND domain error
	// if the question was never served.
	Get(ctx context.Context, userID, questionID string) (Exposure, error)

	// Put upserts an exposure record.
	Put(ctx context.Context, exp Exposure) error

	// GetAll returns the exposures a user has for the given questions.
	// Questions never served are simply absent from the result.
	GetAll(ctx context.Context, userID string, questionIDs []string) (map[string]Exposure, error)
}

// MemoryStore is an in-memory Store for tests and single-node use.
type MemoryStore struct {
	exposures map[string]Exposure
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty in-memory exposure store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{exposures: make(map[string]Exposure)}
}

func key(userID, questionID string) string {
	return userID + "\x00" + questionID
}

func (s *MemoryStore) Get(_ context.Context, userID, questionID string) (Exposure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.exposures[key(userID, questionID)]
	if !ok {
		return Exposure{}, errs.New(errs.CodeNotFound, "no exposure for user %s question %s", userID, questionID)
	}
	return exp, nil
}

func (s *MemoryStore) Put(_ context.Context, exp Exposure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposures[key(exp.UserID, exp.QuestionID)] = exp
	return nil
}

func (s *MemoryStore) GetAll(_ context.Context, userID string, questionIDs []string) (map[string]Exposure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Exposure)
	for _, id := range questionIDs {
		if exp, ok := s.exposures[key(userID, id)]; ok {
			out[id] = exp
		}
	}
	return out, nil
}
