package attempt

import (
	"context"
	"sort"
	"sync"

	"github.com/certlab/engine/internal/errs"
)

// Store persists test attempts. UpdateState is compare-and-swap on the
// current state; SaveAnswer only succeeds while the attempt is in
// progress.
type Store interface {
	Create(ctx context.Context, a Attempt) error
	Get(ctx context.Context, id string) (Attempt, error)
	SaveAnswer(ctx context.Context, id, questionID, answer string) error
	UpdateState(ctx context.Context, id string, from, to State) error
	// ForExam returns up to limit completed attempts for an exam,
	// newest first. Feeds the item-quality analysis.
	ForExam(ctx context.Context, examID string, limit int) ([]Attempt, error)
}

// ScoreStore persists finalized attempt scores, which feed the
// readiness predictor's test trend. SaveScore is idempotent per
// attempt: a score, once written, is never replaced.
type ScoreStore interface {
	SaveScore(ctx context.Context, res Result) error
	// HasScore reports whether the attempt already has a persisted
	// score.
	HasScore(ctx context.Context, attemptID string) (bool, error)
	// ScoresFor returns up to limit of the user's most recent scores
	// for an exam, ordered oldest first.
	ScoresFor(ctx context.Context, userID, examID string, limit int) ([]float64, error)
}

// MemoryStore is an in-memory attempt Store for tests and single-node
// use.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]Attempt)}
}

func (s *MemoryStore) Create(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; ok {
		return errs.New(errs.CodeConcurrencyConflict, "attempt %s already exists", a.ID)
	}
	s.attempts[a.ID] = copyAttempt(a)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, errs.New(errs.CodeNotFound, "attempt %s not found", id)
	}
	return copyAttempt(a), nil
}

func (s *MemoryStore) SaveAnswer(_ context.Context, id, questionID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return errs.New(errs.CodeNotFound, "attempt %s not found", id)
	}
	if a.State != StateInProgress {
		return errs.New(errs.CodeConcurrencyConflict, "attempt %s is %s", id, a.State)
	}
	a.Answers[questionID] = answer
	return nil
}

func (s *MemoryStore) UpdateState(_ context.Context, id string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return errs.New(errs.CodeNotFound, "attempt %s not found", id)
	}
	if a.State != from {
		return errs.New(errs.CodeConcurrencyConflict,
			"attempt %s is %s, expected %s", id, a.State, from)
	}
	a.State = to
	s.attempts[id] = a
	return nil
}

func (s *MemoryStore) ForExam(_ context.Context, examID string, limit int) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if a.ExamID == examID && a.State == StateCompleted {
			out = append(out, copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyAttempt(a Attempt) Attempt {
	out := a
	out.QuestionIDs = append([]string(nil), a.QuestionIDs...)
	out.Answers = make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	return out
}

// MemoryScoreStore is an in-memory ScoreStore.
type MemoryScoreStore struct {
	mu      sync.RWMutex
	results []Result
}

func NewMemoryScoreStore() *MemoryScoreStore {
	return &MemoryScoreStore{}
}

func (s *MemoryScoreStore) SaveScore(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.AttemptID == res.AttemptID {
			return nil
		}
	}
	s.results = append(s.results, res)
	return nil
}

func (s *MemoryScoreStore) HasScore(_ context.Context, attemptID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.AttemptID == attemptID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryScoreStore) ScoresFor(_ context.Context, userID, examID string, limit int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Result
	for _, r := range s.results {
		if r.UserID == userID && r.ExamID == examID {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].FinalizedAt.Before(matched[j].FinalizedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	scores := make([]float64, len(matched))
	for i, r := range matched {
		scores[i] = r.Score
	}
	return scores, nil
}
