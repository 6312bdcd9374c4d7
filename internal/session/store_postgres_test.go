package session_test

import (
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/platform/database"
	"github.com/certlab/engine/internal/session"
)

func startPostgresStore(t *testing.T) *session.PostgresStore {
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

	store, err := session.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	store := startPostgresStore(t)
	ctx := t.Context()

	s := session.New("u1", "cloud-arch", t0, 4*time.Hour)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != session.StateCreated || got.UserID != "u1" {
		t.Errorf("session = %+v, want created for u1", got)
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, s.ExpiresAt)
	}

	if err := store.UpdateState(ctx, s.ID, session.StateCreated, session.StateActive); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	err = store.UpdateState(ctx, s.ID, session.StateCreated, session.StateActive)
	if !errs.IsCode(err, errs.CodeConcurrencyConflict) {
		t.Errorf("stale CAS: error = %v, want CONCURRENCY_CONFLICT", err)
	}

	if _, err := store.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errs.IsCode(err, errs.CodeNotFound) {
		t.Errorf("unknown ID: error = %v, want NOT_FOUND", err)
	}
}

func TestPostgresStore_AbandonExpired(t *testing.T) {
	store := startPostgresStore(t)
	ctx := t.Context()

	stale := session.New("u1", "cloud-arch", t0, time.Hour)
	fresh := session.New("u2", "cloud-arch", t0, 24*time.Hour)
	finished := session.New("u3", "cloud-arch", t0, time.Hour)
	for _, s := range []session.Session{stale, fresh, finished} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateState(ctx, finished.ID, session.StateCreated, session.StateActive); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateState(ctx, finished.ID, session.StateActive, session.StateCompleted); err != nil {
		t.Fatal(err)
	}

	n, err := store.AbandonExpired(ctx, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("AbandonExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("abandoned %d sessions, want 1", n)
	}

	if got, _ := store.Get(ctx, stale.ID); got.State != session.StateAbandoned {
		t.Errorf("stale session state = %s, want abandoned", got.State)
	}
	if got, _ := store.Get(ctx, finished.ID); got.State != session.StateCompleted {
		t.Errorf("finished session state = %s, want untouched", got.State)
	}
}
