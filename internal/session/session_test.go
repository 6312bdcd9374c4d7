package session_test

import (
	"testing"
	"time"

	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/session"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newManager(now *time.Time) (*session.Manager, *session.MemoryStore) {
	store := session.NewMemoryStore()
	mgr := session.NewManager(store, 4*time.Hour, func() time.Time { return *now })
	return mgr, store
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		from session.State
		to   session.State
		ok   bool
	}{
		{session.StateCreated, session.StateActive, true},
		{session.StateCreated, session.StateAbandoned, true},
		{session.StateCreated, session.StateCompleted, false},
		{session.StateActive, session.StatePaused, true},
		{session.StateActive, session.StateCompleted, true},
		{session.StateActive, session.StateAbandoned, true},
		{session.StatePaused, session.StateActive, true},
		{session.StatePaused, session.StateAbandoned, true},
		{session.StatePaused, session.StateCompleted, false},
		{session.StateCompleted, session.StateActive, false},
		{session.StateAbandoned, session.StateActive, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestLifecycle(t *testing.T) {
	now := t0
	mgr, _ := newManager(&now)
	ctx := t.Context()

	s, err := mgr.Start(ctx, "u1", "cloud-arch")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State != session.StateCreated {
		t.Fatalf("State = %s, want created", s.State)
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != 4*time.Hour {
		t.Errorf("time box = %v, want 4h", got)
	}

	s, err = mgr.EnsureActive(ctx, s.ID)
	if err != nil {
		t.Fatalf("EnsureActive() error = %v", err)
	}
	if s.State != session.StateActive {
		t.Fatalf("State = %s, want active", s.State)
	}

	if _, err := mgr.Pause(ctx, s.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if _, err := mgr.Resume(ctx, s.ID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if _, err := mgr.Complete(ctx, s.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// Completed is terminal.
	if _, err := mgr.Resume(ctx, s.ID); !errs.IsCode(err, errs.CodeValidation) {
		t.Errorf("Resume() after complete: error = %v, want VALIDATION_ERROR", err)
	}
	if _, err := mgr.EnsureActive(ctx, s.ID); !errs.IsCode(err, errs.CodeValidation) {
		t.Errorf("EnsureActive() after complete: error = %v, want VALIDATION_ERROR", err)
	}
}

func TestEnsureActive_ExpiredSessionIsAbandoned(t *testing.T) {
	now := t0
	mgr, _ := newManager(&now)
	ctx := t.Context()

	s, err := mgr.Start(ctx, "u1", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}

	now = t0.Add(4*time.Hour + time.Minute)
	if _, err := mgr.EnsureActive(ctx, s.ID); !errs.IsCode(err, errs.CodeValidation) {
		t.Fatalf("EnsureActive() error = %v, want VALIDATION_ERROR", err)
	}

	got, err := mgr.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != session.StateAbandoned {
		t.Errorf("State = %s, want abandoned after expiry", got.State)
	}
}

func TestSweepExpired(t *testing.T) {
	now := t0
	mgr, _ := newManager(&now)
	ctx := t.Context()

	expired, err := mgr.Start(ctx, "u1", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.EnsureActive(ctx, expired.ID); err != nil {
		t.Fatal(err)
	}

	done, err := mgr.Start(ctx, "u2", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.EnsureActive(ctx, done.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Complete(ctx, done.ID); err != nil {
		t.Fatal(err)
	}

	now = t0.Add(5 * time.Hour)
	fresh, err := mgr.Start(ctx, "u3", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}

	n, err := mgr.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}

	if got, _ := mgr.Get(ctx, expired.ID); got.State != session.StateAbandoned {
		t.Errorf("expired session state = %s, want abandoned", got.State)
	}
	if got, _ := mgr.Get(ctx, done.ID); got.State != session.StateCompleted {
		t.Errorf("completed session state = %s, want completed (sweep must not touch terminal states)", got.State)
	}
	if got, _ := mgr.Get(ctx, fresh.ID); got.State != session.StateCreated {
		t.Errorf("fresh session state = %s, want created", got.State)
	}
}

func TestUpdateState_LostRace(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := t.Context()

	s := session.New("u1", "cloud-arch", t0, time.Hour)
	if err := store.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateState(ctx, s.ID, session.StateCreated, session.StateActive); err != nil {
		t.Fatal(err)
	}

	err := store.UpdateState(ctx, s.ID, session.StateCreated, session.StateActive)
	if !errs.IsCode(err, errs.CodeConcurrencyConflict) {
		t.Errorf("stale transition: error = %v, want CONCURRENCY_CONFLICT", err)
	}
}
