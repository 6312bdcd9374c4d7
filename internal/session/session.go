// Package session manages the study session lifecycle: a time-boxed
// container for question batches with an explicit state machine.
package session

import (
	"time"

	"github.com/google/uuid"
)

// State is a study session lifecycle state.
type State string

const (
	StateCreated   State = "created"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// CanTransition reports whether moving to next is a legal lifecycle
// step. Terminal states admit nothing; paused sessions may resume or
// be abandoned by the expiry sweep.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateCreated:
		return next == StateActive || next == StateAbandoned
	case StateActive:
		return next == StatePaused || next == StateCompleted || next == StateAbandoned
	case StatePaused:
		return next == StateActive || next == StateAbandoned
	}
	return false
}

// Session is one user's study run against one exam.
type Session struct {
	ID        string
	UserID    string
	ExamID    string
	State     State
	CreatedAt time.Time
	ExpiresAt time.Time
}

// New creates a session in the created state with a server-assigned
// expiry.
func New(userID, examID string, now time.Time, ttl time.Duration) Session {
	return Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExamID:    examID,
		State:     StateCreated,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session's time box has elapsed. Expiry
// is checked server-side on every batch request; clients hold no
// authority over it.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
