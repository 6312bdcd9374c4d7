package session

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

// PostgresStore is a PostgreSQL-backed session Store. State changes
// are compare-and-swap on the current state column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_sessions (id, user_id, exam_id, state, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, sess.ExamID, string(sess.State), sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return wrapDBErr(err, "insert session")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var sess Session
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_id, state, created_at, expires_at
		 FROM study_sessions
		 WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.UserID, &sess.ExamID, &state, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, errs.New(errs.CodeNotFound, "session %s not found", id)
	}
	if err != nil {
		return Session{}, wrapDBErr(err, "get session")
	}

	sess.State = State(state)
	return sess, nil
}

func (s *PostgresStore) UpdateState(ctx context.Context, id string, from, to State) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE study_sessions SET state = $3 WHERE id = $1 AND state = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return wrapDBErr(err, "update session state")
	}
	if cmd.RowsAffected() == 0 {
		return errs.New(errs.CodeConcurrencyConflict,
			"session %s is no longer %s", id, from)
	}
	return nil
}

func (s *PostgresStore) AbandonExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE study_sessions
		 SET state = $1
		 WHERE expires_at <= $2 AND state IN ($3, $4, $5)`,
		string(StateAbandoned), now,
		string(StateCreated), string(StateActive), string(StatePaused),
	)
	if err != nil {
		return 0, wrapDBErr(err, "abandon expired sessions")
	}
	return int(cmd.RowsAffected()), nil
}

func wrapDBErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.CodeUpstreamTimeout, err, "%s", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
