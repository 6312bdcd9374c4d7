package attempt

import (
	"context"
	"log/slog"
	"time"

	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/errs"
)

// Runner executes the attempt lifecycle against a store. Every
// state-mutating call revalidates the time box against the server
// clock before touching the attempt.
type Runner struct {
	store  Store
	scores ScoreStore
	now    func() time.Time
}

// NewRunner creates a runner. clock may be nil, defaulting to
// time.Now.
func NewRunner(store Store, scores ScoreStore, clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{store: store, scores: scores, now: clock}
}

// Start creates an in-progress attempt over a fixed, ordered question
// set.
func (r *Runner) Start(ctx context.Context, userID, examID string, questionIDs []string, limit time.Duration) (Attempt, error) {
	if len(questionIDs) == 0 {
		return Attempt{}, errs.New(errs.CodeValidation, "attempt needs at least one question")
	}
	if limit <= 0 {
		return Attempt{}, errs.New(errs.CodeValidation, "time limit %v must be positive", limit)
	}

	a := New(userID, examID, questionIDs, r.now(), limit)
	if err := r.store.Create(ctx, a); err != nil {
		return Attempt{}, err
	}
	slog.Info("test attempt started",
		"attempt_id", a.ID,
		"user_id", userID,
		"exam_id", examID,
		"questions", len(questionIDs),
		"expires_at", a.ExpiresAt,
	)
	return a, nil
}

// Get returns an attempt by ID.
func (r *Runner) Get(ctx context.Context, id string) (Attempt, error) {
	return r.store.Get(ctx, id)
}

// SubmitAnswer records an answer, overwriting any prior answer for the
// same question. Submitting past the expiry force-completes the
// attempt with the answers already recorded and fails with
// TIME_EXPIRED; submitting against a terminal attempt invalidates it
// and fails with ALREADY_SUBMITTED.
func (r *Runner) SubmitAnswer(ctx context.Context, attemptID, questionID, answer string) error {
	a, err := r.store.Get(ctx, attemptID)
	if err != nil {
		return err
	}

	if a.State.Terminal() {
		return r.rejectDuplicate(ctx, a)
	}

	if a.Expired(r.now()) {
		if err := r.store.UpdateState(ctx, a.ID, StateInProgress, StateCompleted); err != nil {
			return err
		}
		slog.Info("attempt force-completed on late submission", "attempt_id", a.ID)
		return errs.New(errs.CodeTimeExpired,
			"attempt %s expired at %s", a.ID, a.ExpiresAt.Format(time.RFC3339))
	}

	if !a.HasQuestion(questionID) {
		return errs.New(errs.CodeValidation,
			"question %q is not part of attempt %s", questionID, attemptID)
	}

	return r.store.SaveAnswer(ctx, attemptID, questionID, answer)
}

// Finalize scores the attempt and persists the result. An expired
// attempt still finalizes, using only the answers recorded before the
// cutoff. A completed attempt that has no persisted score yet — force-
// completed by a late submission, or left behind by a failed score
// write — may be finalized exactly once; finalizing a scored attempt
// invalidates it and fails with ALREADY_SUBMITTED without re-scoring.
func (r *Runner) Finalize(ctx context.Context, attemptID string, exam content.Exam, grade GradeFunc) (Result, error) {
	a, err := r.store.Get(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}

	switch a.State {
	case StateInProgress:
		if err := r.store.UpdateState(ctx, a.ID, StateInProgress, StateCompleted); err != nil {
			return Result{}, err
		}
	case StateCompleted:
		scored, err := r.scores.HasScore(ctx, a.ID)
		if err != nil {
			return Result{}, err
		}
		if scored {
			return Result{}, r.rejectDuplicate(ctx, a)
		}
	default:
		return Result{}, r.rejectDuplicate(ctx, a)
	}

	result, err := Score(exam, a, grade, r.now())
	if err != nil {
		return Result{}, err
	}
	if err := r.scores.SaveScore(ctx, result); err != nil {
		return Result{}, err
	}

	slog.Info("test attempt finalized",
		"attempt_id", a.ID,
		"user_id", a.UserID,
		"exam_id", a.ExamID,
		"score", result.Score,
		"passed", result.Passed,
	)
	return result, nil
}

// Abandon discards an in-progress attempt without scoring it.
func (r *Runner) Abandon(ctx context.Context, attemptID string) error {
	a, err := r.store.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.State.Terminal() {
		return errs.New(errs.CodeValidation, "attempt %s is already %s", attemptID, a.State)
	}
	return r.store.UpdateState(ctx, a.ID, StateInProgress, StateAbandoned)
}

// rejectDuplicate handles any mutation aimed at a terminal attempt. A
// scored attempt receiving further traffic is treated as tampering and
// demoted to invalidated before the call fails.
func (r *Runner) rejectDuplicate(ctx context.Context, a Attempt) error {
	if a.State == StateCompleted {
		if err := r.store.UpdateState(ctx, a.ID, StateCompleted, StateInvalidated); err != nil &&
			!errs.IsCode(err, errs.CodeConcurrencyConflict) {
			return err
		}
		slog.Warn("duplicate submission invalidated attempt", "attempt_id", a.ID)
	}
	return errs.New(errs.CodeAlreadySubmitted, "attempt %s is already %s", a.ID, a.State)
}
