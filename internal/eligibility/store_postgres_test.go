package eligibility_test

import (
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/certlab/engine/internal/eligibility"
	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/platform/database"
)

func startPostgresStore(t *testing.T) *eligibility.PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("engine"),
		postgres.WithUsername("engine"),
		postgres.WithPassword("engine"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	db, err := database.New(ctx, url, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	store, err := eligibility.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestPostgresStore_UpsertAndGet(t *testing.T) {
	store := startPostgresStore(t)
	ctx := t.Context()

	exp := eligibility.Exposure{
		UserID:         "u1",
		QuestionID:     "q-01",
		LastSeenAt:     t0,
		LastCorrect:    true,
		CorrectStreak:  1,
		NextEligibleAt: t0.Add(time.Hour),
	}
	if err := store.Put(ctx, exp); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// A second exposure on the same pair updates in place.
	exp.CorrectStreak = 2
	exp.NextEligibleAt = t0.Add(24 * time.Hour)
	if err := store.Put(ctx, exp); err != nil {
		t.Fatalf("Put() upsert error = %v", err)
	}

	got, err := store.Get(ctx, "u1", "q-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CorrectStreak != 2 {
		t.Errorf("CorrectStreak = %d, want 2", got.CorrectStreak)
	}
	if !got.NextEligibleAt.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("NextEligibleAt = %v, want %v", got.NextEligibleAt, t0.Add(24*time.Hour))
	}

	if _, err := store.Get(ctx, "u1", "never-seen"); !errs.IsCode(err, errs.CodeNotFound) {
		t.Errorf("unseen question: error = %v, want NOT_FOUND", err)
	}
}

func TestPostgresStore_GetAll(t *testing.T) {
	store := startPostgresStore(t)
	ctx := t.Context()

	for _, qid := range []string{"q-01", "q-02"} {
		err := store.Put(ctx, eligibility.Exposure{
			UserID:         "u1",
			QuestionID:     qid,
			LastSeenAt:     t0,
			LastCorrect:    true,
			CorrectStreak:  1,
			NextEligibleAt: t0.Add(time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetAll(ctx, "u1", []string{"q-01", "q-02", "q-03"})
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 (unseen questions have no row)", len(got))
	}
	if _, ok := got["q-03"]; ok {
		t.Error("GetAll() must not fabricate exposures for unseen questions")
	}
}
