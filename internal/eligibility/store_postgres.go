package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certlab/engine/internal/errs"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed exposure Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed exposure store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, questionID string) (Exposure, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exp Exposure
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, question_id, last_seen_at, last_correct, correct_streak, next_eligible_at
		 FROM question_exposures
		 WHERE user_id = $1 AND question_id = $2`,
		userID, questionID,
	).Scan(&exp.UserID, &exp.QuestionID, &exp.LastSeenAt, &exp.LastCorrect, &exp.CorrectStreak, &exp.NextEligibleAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Exposure{}, errs.New(errs.CodeNotFound, "no exposure for user %s question %s", userID, questionID)
	}
	if err != nil {
		return Exposure{}, wrapDBErr(err, "get exposure")
	}
	return exp, nil
}

func (s *PostgresStore) Put(ctx context.Context, exp Exposure) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO question_exposures
		   (user_id, question_id, last_seen_at, last_correct, correct_streak, next_eligible_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, question_id) DO UPDATE
		 SET last_seen_at = EXCLUDED.last_seen_at,
		     last_correct = EXCLUDED.last_correct,
		     correct_streak = EXCLUDED.correct_streak,
		     next_eligible_at = EXCLUDED.next_eligible_at`,
		exp.UserID, exp.QuestionID, exp.LastSeenAt, exp.LastCorrect, exp.CorrectStreak, exp.NextEligibleAt,
	)
	if err != nil {
		return wrapDBErr(err, "upsert exposure")
	}
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context, userID string, questionIDs []string) (map[string]Exposure, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, question_id, last_seen_at, last_correct, correct_streak, next_eligible_at
		 FROM question_exposures
		 WHERE user_id = $1 AND question_id = ANY($2)`,
		userID, questionIDs,
	)
	if err != nil {
		return nil, wrapDBErr(err, "query exposures")
	}
	defer rows.Close()

	out := make(map[string]Exposure)
	for rows.Next() {
		var exp Exposure
		if err := rows.Scan(&exp.UserID, &exp.QuestionID, &exp.LastSeenAt, &exp.LastCorrect, &exp.CorrectStreak, &exp.NextEligibleAt); err != nil {
			return nil, fmt.Errorf("scan exposure: %w", err)
		}
		out[exp.QuestionID] = exp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exposures: %w", err)
	}
	return out, nil
}

func wrapDBErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.CodeUpstreamTimeout, err, "%s", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
