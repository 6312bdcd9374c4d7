package mastery

import (
	"context"
	"sync"

	"github.com/certlab/engine/internal/errs"
)

// Store persists mastery records keyed by (userID, objectiveID).
type Store interface {
	// Get returns the record for a pair, or a NOT_FOUND domain error
	// if the pair has never answered.
	Get(ctx context.Context, userID, objectiveID string) (Record, error)

	// Save writes a record. expectedVersion is the version the caller
	// read (0 for a first write). A mismatch returns a
	// CONCURRENCY_CONFLICT domain error and writes nothing; on success
	// the stored version is expectedVersion+1.
	Save(ctx context.Context, rec Record, expectedVersion int) error

	// ForUser returns all records for one user, keyed by objective.
	ForUser(ctx context.Context, userID string) (map[string]Record, error)
}

// MemoryStore is an in-memory Store for tests and single-node use.
type MemoryStore struct {
	records map[string]Record
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory mastery store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func key(userID, objectiveID string) string {
	return userID + "\x00" + objectiveID
}

func (s *MemoryStore) Get(_ context.Context, userID, objectiveID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(userID, objectiveID)]
	if !ok {
		return Record{}, errs.New(errs.CodeNotFound, "no mastery record for user %s objective %s", userID, objectiveID)
	}
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.UserID, rec.ObjectiveID)
	current, exists := s.records[k]

	if exists && current.Version != expectedVersion {
		return errs.New(errs.CodeConcurrencyConflict, "mastery version %d is stale (stored %d)", expectedVersion, current.Version)
	}
	if !exists && expectedVersion != 0 {
		return errs.New(errs.CodeConcurrencyConflict, "mastery version %d is stale (record missing)", expectedVersion)
	}

	rec.Version = expectedVersion + 1
	s.records[k] = rec
	return nil
}

func (s *MemoryStore) ForUser(_ context.Context, userID string) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record)
	for _, rec := range s.records {
		if rec.UserID == userID {
			out[rec.ObjectiveID] = rec
		}
	}
	return out, nil
}
