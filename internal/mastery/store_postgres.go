package mastery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/errs"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed mastery Store. The version
// column is the optimistic concurrency token: updates are guarded by
// WHERE version = expected and report a conflict on zero rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed mastery store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, objectiveID string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var rec Record
	var band int
	var bits int
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, objective_id, level, questions_answered, correct_streak,
		        target_band, window_bits, window_len, last_answered_at, version
		 FROM mastery_records
		 WHERE user_id = $1 AND objective_id = $2`,
		userID, objectiveID,
	).Scan(
		&rec.UserID,
		&rec.ObjectiveID,
		&rec.Level,
		&rec.QuestionsAnswered,
		&rec.CorrectStreak,
		&band,
		&bits,
		&rec.Window.N,
		&rec.LastAnsweredAt,
		&rec.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, errs.New(errs.CodeNotFound, "no mastery record for user %s objective %s", userID, objectiveID)
	}
	if err != nil {
		return Record{}, wrapDBErr(err, "get mastery record")
	}

	rec.TargetBand = content.Band(band)
	rec.Window.Bits = uint16(bits)
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record, expectedVersion int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if expectedVersion == 0 {
		cmd, err := s.pool.Exec(ctx,
			`INSERT INTO mastery_records
			   (user_id, objective_id, level, questions_answered, correct_streak,
			    target_band, window_bits, window_len, last_answered_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
			 ON CONFLICT (user_id, objective_id) DO NOTHING`,
			rec.UserID, rec.ObjectiveID, rec.Level, rec.QuestionsAnswered, rec.CorrectStreak,
			int(rec.TargetBand), int(rec.Window.Bits), rec.Window.N, rec.LastAnsweredAt,
		)
		if err != nil {
			return wrapDBErr(err, "insert mastery record")
		}
		if cmd.RowsAffected() == 0 {
			return errs.New(errs.CodeConcurrencyConflict, "mastery record for user %s objective %s was created concurrently", rec.UserID, rec.ObjectiveID)
		}
		return nil
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE mastery_records
		 SET level = $3, questions_answered = $4, correct_streak = $5,
		     target_band = $6, window_bits = $7, window_len = $8,
		     last_answered_at = $9, version = version + 1
		 WHERE user_id = $1 AND objective_id = $2 AND version = $10`,
		rec.UserID, rec.ObjectiveID, rec.Level, rec.QuestionsAnswered, rec.CorrectStreak,
		int(rec.TargetBand), int(rec.Window.Bits), rec.Window.N, rec.LastAnsweredAt,
		expectedVersion,
	)
	if err != nil {
		return wrapDBErr(err, "update mastery record")
	}
	if cmd.RowsAffected() == 0 {
		return errs.New(errs.CodeConcurrencyConflict, "mastery version %d is stale", expectedVersion)
	}
	return nil
}

func (s *PostgresStore) ForUser(ctx context.Context, userID string) (map[string]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, objective_id, level, questions_answered, correct_streak,
		        target_band, window_bits, window_len, last_answered_at, version
		 FROM mastery_records
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(err, "query mastery records")
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var rec Record
		var band, bits int
		if err := rows.Scan(
			&rec.UserID, &rec.ObjectiveID, &rec.Level, &rec.QuestionsAnswered,
			&rec.CorrectStreak, &band, &bits, &rec.Window.N,
			&rec.LastAnsweredAt, &rec.Version,
		); err != nil {
			return nil, fmt.Errorf("scan mastery record: %w", err)
		}
		rec.TargetBand = content.Band(band)
		rec.Window.Bits = uint16(bits)
		out[rec.ObjectiveID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mastery records: %w", err)
	}
	return out, nil
}

// wrapDBErr classifies store failures: context deadline overruns become
// UPSTREAM_TIMEOUT domain errors, everything else is wrapped as-is.
func wrapDBErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.CodeUpstreamTimeout, err, "%s", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
