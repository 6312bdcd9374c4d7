// Package database provides PostgreSQL connection management via pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	return cfg, nil
}

// New creates a new database connection pool.
func New(ctx context.Context, url string, maxConns, minConns int) (*DB, error) {
	cfg, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = int32(minConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// migrations is the idempotent schema for the engine's user-state
// tables. Exam content never touches the database; it is read-only
// pack data served by the content loader.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS mastery_records (
		user_id            TEXT NOT NULL,
		objective_id       TEXT NOT NULL,
		level              DOUBLE PRECISION NOT NULL DEFAULT 0,
		questions_answered INTEGER NOT NULL DEFAULT 0,
		correct_streak     INTEGER NOT NULL DEFAULT 0,
		target_band        INTEGER NOT NULL DEFAULT 3,
		window_bits        INTEGER NOT NULL DEFAULT 0,
		window_len         INTEGER NOT NULL DEFAULT 0,
		last_answered_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		version            INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, objective_id)
	)`,
	`CREATE TABLE IF NOT EXISTS question_exposures (
		user_id          TEXT NOT NULL,
		question_id      TEXT NOT NULL,
		last_seen_at     TIMESTAMPTZ NOT NULL,
		last_correct     BOOLEAN NOT NULL,
		correct_streak   INTEGER NOT NULL DEFAULT 0,
		next_eligible_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS study_sessions (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		exam_id    TEXT NOT NULL,
		state      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_study_sessions_user ON study_sessions (user_id, state)`,
	`CREATE TABLE IF NOT EXISTS test_attempts (
		id           UUID PRIMARY KEY,
		user_id      TEXT NOT NULL,
		exam_id      TEXT NOT NULL,
		question_ids JSONB NOT NULL,
		answers      JSONB NOT NULL DEFAULT '{}'::jsonb,
		state        TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_test_attempts_user ON test_attempts (user_id, exam_id)`,
	`CREATE TABLE IF NOT EXISTS attempt_scores (
		attempt_id   UUID PRIMARY KEY,
		user_id      TEXT NOT NULL,
		exam_id      TEXT NOT NULL,
		score        DOUBLE PRECISION NOT NULL,
		passed       BOOLEAN NOT NULL,
		breakdown    JSONB NOT NULL,
		finalized_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempt_scores_user ON attempt_scores (user_id, exam_id, finalized_at)`,
}

// Migrate applies the engine schema. Statements are idempotent, so
// repeated startups are safe.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration: %w", err)
		}
	}
	return nil
}
