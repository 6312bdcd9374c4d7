// Package attempt manages timed test attempts: a fixed, ordered
// question set answered under a server-authoritative time box, scored
// once on finalize.
package attempt

import (
	"time"

	"github.com/google/uuid"
)

// State is a test attempt lifecycle state.
type State string

const (
	StateInProgress  State = "in_progress"
	StateCompleted   State = "completed"
	StateAbandoned   State = "abandoned"
	StateInvalidated State = "invalidated"
)

// Terminal reports whether the attempt accepts no more answers.
func (s State) Terminal() bool {
	return s != StateInProgress
}

// CanTransition reports whether moving to next is legal. The only edge
// out of a terminal state is completed to invalidated, taken when a
// duplicate submission is detected against an already-scored attempt.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateInProgress:
		return next == StateCompleted || next == StateAbandoned || next == StateInvalidated
	case StateCompleted:
		return next == StateInvalidated
	}
	return false
}

// Attempt is one timed run through a fixed question set. QuestionIDs
// is ordered and immutable after creation; Answers records the latest
// submission per question.
type Attempt struct {
	ID          string
	UserID      string
	ExamID      string
	QuestionIDs []string
	Answers     map[string]string
	State       State
	StartedAt   time.Time
	ExpiresAt   time.Time
}

// New creates an in-progress attempt with a server-assigned expiry.
func New(userID, examID string, questionIDs []string, now time.Time, limit time.Duration) Attempt {
	return Attempt{
		ID:          uuid.NewString(),
		UserID:      userID,
		ExamID:      examID,
		QuestionIDs: questionIDs,
		Answers:     make(map[string]string),
		State:       StateInProgress,
		StartedAt:   now,
		ExpiresAt:   now.Add(limit),
	}
}

// Expired reports whether the time box has elapsed. The stored expiry
// is authoritative; client-reported time is never consulted.
func (a Attempt) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// HasQuestion reports whether the question belongs to this attempt's
// fixed set.
func (a Attempt) HasQuestion(questionID string) bool {
	for _, id := range a.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}
