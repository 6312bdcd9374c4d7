package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/certlab/engine/internal/errs"
)

// Manager runs session lifecycle operations against a store. State
// transitions are compare-and-swap on the current state, so two racing
// callers cannot both complete the same session.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a manager. clock may be nil, defaulting to
// time.Now.
func NewManager(store Store, ttl time.Duration, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{store: store, ttl: ttl, now: clock}
}

// Start creates a new session for the user and exam.
func (m *Manager) Start(ctx context.Context, userID, examID string) (Session, error) {
	s := New(userID, examID, m.now(), m.ttl)
	if err := m.store.Create(ctx, s); err != nil {
		return Session{}, err
	}
	slog.Info("study session started",
		"session_id", s.ID,
		"user_id", userID,
		"exam_id", examID,
		"expires_at", s.ExpiresAt,
	)
	return s, nil
}

// Get returns a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	return m.store.Get(ctx, id)
}

// EnsureActive loads a session and makes sure it can serve a batch:
// created and paused sessions are activated, expired ones are
// abandoned and rejected, terminal ones are rejected outright.
func (m *Manager) EnsureActive(ctx context.Context, id string) (Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}

	if s.State.Terminal() {
		return Session{}, errs.New(errs.CodeValidation, "session %s is %s", id, s.State)
	}

	if s.Expired(m.now()) {
		if err := m.transition(ctx, &s, StateAbandoned); err != nil {
			return Session{}, err
		}
		return Session{}, errs.New(errs.CodeValidation, "session %s expired at %s", id, s.ExpiresAt.Format(time.RFC3339))
	}

	if s.State != StateActive {
		if err := m.transition(ctx, &s, StateActive); err != nil {
			return Session{}, err
		}
	}
	return s, nil
}

// Pause suspends an active session.
func (m *Manager) Pause(ctx context.Context, id string) (Session, error) {
	return m.move(ctx, id, StatePaused)
}

// Resume reactivates a paused session, subject to its expiry.
func (m *Manager) Resume(ctx context.Context, id string) (Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(m.now()) {
		return Session{}, errs.New(errs.CodeValidation, "session %s expired at %s", id, s.ExpiresAt.Format(time.RFC3339))
	}
	if err := m.transition(ctx, &s, StateActive); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Complete finishes a session.
func (m *Manager) Complete(ctx context.Context, id string) (Session, error) {
	return m.move(ctx, id, StateCompleted)
}

// Abandon discards a session.
func (m *Manager) Abandon(ctx context.Context, id string) (Session, error) {
	return m.move(ctx, id, StateAbandoned)
}

// SweepExpired abandons every non-terminal session whose expiry has
// passed. Intended to run periodically from the server loop.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	n, err := m.store.AbandonExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("expired study sessions abandoned", "count", n)
	}
	return n, nil
}

func (m *Manager) move(ctx context.Context, id string, to State) (Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := m.transition(ctx, &s, to); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (m *Manager) transition(ctx context.Context, s *Session, to State) error {
	if !s.State.CanTransition(to) {
		return errs.New(errs.CodeValidation, "session %s cannot go from %s to %s", s.ID, s.State, to)
	}
	if err := m.store.UpdateState(ctx, s.ID, s.State, to); err != nil {
		return err
	}
	s.State = to
	return nil
}
