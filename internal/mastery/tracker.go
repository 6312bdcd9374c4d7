package mastery

import (
	"context"
	"log/slog"
	"time"

	"github.com/certlab/engine/internal/errs"
)

// conflictRetries is how many fresh-read retries Update performs before
// surfacing a CONCURRENCY_CONFLICT to the caller.
const conflictRetries = 2

// Tracker applies answer outcomes to mastery records through the
// backing store's optimistic-concurrency protocol.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker creates a tracker. clock may be nil, defaulting to
// time.Now; tests inject a fixed clock.
func NewTracker(store Store, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{store: store, now: clock}
}

// Update is the single mutation path for mastery records. It performs a
// read-modify-write: load (or lazily create) the record, apply the
// bounded update for the answer, and save against the read version.
//
// expectedVersion, when nonzero, is the caller's own concurrency token;
// if it no longer matches the stored record the call fails immediately
// with CONCURRENCY_CONFLICT and nothing is written. Store-level write
// races are retried internally with fresh reads.
func (t *Tracker) Update(ctx context.Context, userID, objectiveID string, correct bool, expectedVersion int) (Record, error) {
	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		rec, err := t.store.Get(ctx, userID, objectiveID)
		switch {
		case errs.IsCode(err, errs.CodeNotFound):
			rec = NewRecord(userID, objectiveID)
		case err != nil:
			return Record{}, err
		}

		if expectedVersion != 0 && rec.Version != expectedVersion {
			return Record{}, errs.New(errs.CodeConcurrencyConflict,
				"caller version %d is stale (stored %d)", expectedVersion, rec.Version)
		}

		readVersion := rec.Version
		rec.Apply(correct, t.now())

		err = t.store.Save(ctx, rec, readVersion)
		if err == nil {
			rec.Version = readVersion + 1
			return rec, nil
		}
		if !errs.IsCode(err, errs.CodeConcurrencyConflict) {
			return Record{}, err
		}

		lastErr = err
		slog.Debug("mastery write conflict, retrying with fresh read",
			"user_id", userID,
			"objective_id", objectiveID,
			"attempt", attempt+1,
		)
	}
	return Record{}, lastErr
}

// Levels returns the current mastery level per objective for a user.
// Objectives with no record report level 0.
func (t *Tracker) Levels(ctx context.Context, userID string, objectiveIDs []string) (map[string]float64, error) {
	records, err := t.store.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]float64, len(objectiveIDs))
	for _, id := range objectiveIDs {
		levels[id] = records[id].Level
	}
	return levels, nil
}

// Get returns the record for a pair, or the lazily-created initial
// state if none exists. The zero-state record is not persisted.
func (t *Tracker) Get(ctx context.Context, userID, objectiveID string) (Record, error) {
	rec, err := t.store.Get(ctx, userID, objectiveID)
	if errs.IsCode(err, errs.CodeNotFound) {
		return NewRecord(userID, objectiveID), nil
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
