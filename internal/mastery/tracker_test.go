package mastery_test

import (
	"context"
	"testing"
	"time"

	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/mastery"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestTracker_Update_CreatesRecordLazily(t *testing.T) {
	store := mastery.NewMemoryStore()
	tracker := mastery.NewTracker(store, fixedClock)

	rec, err := tracker.Update(t.Context(), "u1", "o1", true, 0)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rec.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", rec.QuestionsAnswered)
	}
	if rec.Version != 1 {
		t.Errorf("Version = %d, want 1", rec.Version)
	}
	if !rec.LastAnsweredAt.Equal(fixedClock()) {
		t.Errorf("LastAnsweredAt = %v, want clock time", rec.LastAnsweredAt)
	}

	stored, err := store.Get(t.Context(), "u1", "o1")
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("stored Version = %d, want 1", stored.Version)
	}
}

func TestTracker_Update_StaleCallerVersionFailsFast(t *testing.T) {
	store := mastery.NewMemoryStore()
	tracker := mastery.NewTracker(store, fixedClock)

	if _, err := tracker.Update(t.Context(), "u1", "o1", true, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.Update(t.Context(), "u1", "o1", true, 0); err != nil {
		t.Fatal(err)
	}

	// Caller still holds version 1; the stored record is at 2.
	_, err := tracker.Update(t.Context(), "u1", "o1", true, 1)
	if !errs.IsCode(err, errs.CodeConcurrencyConflict) {
		t.Errorf("Update() with stale caller version: err = %v, want CONCURRENCY_CONFLICT", err)
	}
}

// conflictingStore wraps a Store and forces the first N saves to
// conflict, simulating a concurrent writer between read and write.
type conflictingStore struct {
	mastery.Store
	remaining int
	saves     int
}

func (s *conflictingStore) Save(ctx context.Context, rec mastery.Record, expectedVersion int) error {
	s.saves++
	if s.remaining > 0 {
		s.remaining--
		return errs.New(errs.CodeConcurrencyConflict, "injected conflict")
	}
	return s.Store.Save(ctx, rec, expectedVersion)
}

func TestTracker_Update_RetriesOnWriteRace(t *testing.T) {
	store := &conflictingStore{Store: mastery.NewMemoryStore(), remaining: 2}
	tracker := mastery.NewTracker(store, fixedClock)

	rec, err := tracker.Update(t.Context(), "u1", "o1", true, 0)
	if err != nil {
		t.Fatalf("Update() should survive two conflicts, got error = %v", err)
	}
	if store.saves != 3 {
		t.Errorf("saves = %d, want 3 (initial + 2 retries)", store.saves)
	}
	if rec.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", rec.QuestionsAnswered)
	}
}

func TestTracker_Update_SurfacesConflictAfterRetriesExhausted(t *testing.T) {
	store := &conflictingStore{Store: mastery.NewMemoryStore(), remaining: 3}
	tracker := mastery.NewTracker(store, fixedClock)

	_, err := tracker.Update(t.Context(), "u1", "o1", true, 0)
	if !errs.IsCode(err, errs.CodeConcurrencyConflict) {
		t.Errorf("err = %v, want CONCURRENCY_CONFLICT after retries exhausted", err)
	}
}

func TestTracker_Levels_DefaultsToZero(t *testing.T) {
	store := mastery.NewMemoryStore()
	tracker := mastery.NewTracker(store, fixedClock)

	if _, err := tracker.Update(t.Context(), "u1", "o1", true, 0); err != nil {
		t.Fatal(err)
	}

	levels, err := tracker.Levels(t.Context(), "u1", []string{"o1", "o2"})
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	if levels["o1"] <= 0 {
		t.Errorf("levels[o1] = %v, want > 0", levels["o1"])
	}
	if levels["o2"] != 0 {
		t.Errorf("levels[o2] = %v, want 0 for unseen objective", levels["o2"])
	}
}
