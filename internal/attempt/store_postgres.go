package attempt

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

// PostgresStore is a PostgreSQL-backed attempt Store. The question set
// and answer map live in JSONB columns; state changes are
// compare-and-swap on the state column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed attempt store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO test_attempts
		   (id, user_id, exam_id, question_ids, answers, state, started_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.ExamID, a.QuestionIDs, a.Answers, string(a.State), a.StartedAt, a.ExpiresAt,
	)
	if err != nil {
		return wrapDBErr(err, "insert attempt")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var a Attempt
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_id, question_ids, answers, state, started_at, expires_at
		 FROM test_attempts
		 WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.UserID, &a.ExamID, &a.QuestionIDs, &a.Answers, &state, &a.StartedAt, &a.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, errs.New(errs.CodeNotFound, "attempt %s not found", id)
	}
	if err != nil {
		return Attempt{}, wrapDBErr(err, "get attempt")
	}

	a.State = State(state)
	if a.Answers == nil {
		a.Answers = make(map[string]string)
	}
	return a, nil
}

func (s *PostgresStore) SaveAnswer(ctx context.Context, id, questionID, answer string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE test_attempts
		 SET answers = jsonb_set(answers, ARRAY[$2], to_jsonb($3::text))
		 WHERE id = $1 AND state = $4`,
		id, questionID, answer, string(StateInProgress),
	)
	if err != nil {
		return wrapDBErr(err, "save answer")
	}
	if cmd.RowsAffected() == 0 {
		return errs.New(errs.CodeConcurrencyConflict, "attempt %s is no longer in progress", id)
	}
	return nil
}

func (s *PostgresStore) UpdateState(ctx context.Context, id string, from, to State) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE test_attempts SET state = $3 WHERE id = $1 AND state = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return wrapDBErr(err, "update attempt state")
	}
	if cmd.RowsAffected() == 0 {
		return errs.New(errs.CodeConcurrencyConflict,
			"attempt %s is no longer %s", id, from)
	}
	return nil
}

func (s *PostgresStore) ForExam(ctx context.Context, examID string, limit int) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, exam_id, question_ids, answers, state, started_at, expires_at
		 FROM test_attempts
		 WHERE exam_id = $1 AND state = $2
		 ORDER BY started_at DESC
		 LIMIT $3`,
		examID, string(StateCompleted), limit,
	)
	if err != nil {
		return nil, wrapDBErr(err, "query attempts")
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var state string
		if err := rows.Scan(&a.ID, &a.UserID, &a.ExamID, &a.QuestionIDs, &a.Answers,
			&state, &a.StartedAt, &a.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.State = State(state)
		if a.Answers == nil {
			a.Answers = make(map[string]string)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// PostgresScoreStore persists finalized scores in attempt_scores.
type PostgresScoreStore struct {
	pool *pgxpool.Pool
}

// NewPostgresScoreStore creates a Postgres-backed score store.
func NewPostgresScoreStore(pool *pgxpool.Pool) (*PostgresScoreStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresScoreStore{pool: pool}, nil
}

func (s *PostgresScoreStore) SaveScore(ctx context.Context, res Result) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempt_scores
		   (attempt_id, user_id, exam_id, score, passed, breakdown, finalized_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		res.AttemptID, res.UserID, res.ExamID, res.Score, res.Passed, res.Breakdown, res.FinalizedAt,
	)
	if err != nil {
		return wrapDBErr(err, "insert score")
	}
	return nil
}

func (s *PostgresScoreStore) HasScore(ctx context.Context, attemptID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attempt_scores WHERE attempt_id = $1)`,
		attemptID,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(err, "check score")
	}
	return exists, nil
}

func (s *PostgresScoreStore) ScoresFor(ctx context.Context, userID, examID string, limit int) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT score FROM (
		   SELECT score, finalized_at FROM attempt_scores
		   WHERE user_id = $1 AND exam_id = $2
		   ORDER BY finalized_at DESC
		   LIMIT $3
		 ) recent
		 ORDER BY finalized_at ASC`,
		userID, examID, limit,
	)
	if err != nil {
		return nil, wrapDBErr(err, "query scores")
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return scores, nil
}

func wrapDBErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.CodeUpstreamTimeout, err, "%s", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
