// Package engine is the assessment core's facade: study sessions,
// adaptive question batches, timed test attempts, and readiness
// estimates, exposed as plain function calls for a gateway to wrap.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/certlab/engine/internal/attempt"
	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/eligibility"
	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/mastery"
	"github.com/certlab/engine/internal/platform/cache"
	"github.com/certlab/engine/internal/quality"
	"github.com/certlab/engine/internal/readiness"
	"github.com/certlab/engine/internal/selector"
	"github.com/certlab/engine/internal/session"
)

const (
	defaultSessionTTL  = 4 * time.Hour
	defaultTestLimit   = 90 * time.Minute
	qualityDepth       = 200
	defaultEstimateTTL = 10 * time.Minute
)

// Deps are the engine's collaborators. Content and the four stores are
// required; Cache, Clock, and Rand are optional.
type Deps struct {
	Content   *content.Loader
	Mastery   mastery.Store
	Exposures eligibility.Store
	Sessions  session.Store
	Attempts  attempt.Store
	Scores    attempt.ScoreStore

	// Cache, when set, memoizes readiness estimates.
	Cache    *cache.Cache
	CacheTTL time.Duration

	SessionTTL time.Duration
	Readiness  readiness.Config

	Clock func() time.Time
	Rand  *rand.Rand
}

// Engine wires the assessment components behind one API.
type Engine struct {
	content   *content.Loader
	tracker   *mastery.Tracker
	filter    *eligibility.Filter
	selector  *selector.Selector
	sessions  *session.Manager
	attempts  *attempt.Runner
	attemptDB attempt.Store
	predictor *readiness.Predictor

	cache    *cache.Cache
	cacheTTL time.Duration
	now      func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New assembles an engine from its dependencies.
func New(d Deps) (*Engine, error) {
	if d.Content == nil {
		return nil, fmt.Errorf("content loader is required")
	}
	if d.Mastery == nil || d.Exposures == nil || d.Sessions == nil || d.Attempts == nil || d.Scores == nil {
		return nil, fmt.Errorf("all stores are required")
	}

	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = defaultSessionTTL
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = defaultEstimateTTL
	}
	fillReadinessDefaults(&d.Readiness)

	tracker := mastery.NewTracker(d.Mastery, clock)
	filter := eligibility.NewFilter(d.Exposures)

	return &Engine{
		content:   d.Content,
		tracker:   tracker,
		filter:    filter,
		selector:  selector.New(d.Content, tracker, filter, rng, clock),
		sessions:  session.NewManager(d.Sessions, d.SessionTTL, clock),
		attempts:  attempt.NewRunner(d.Attempts, d.Scores, clock),
		attemptDB: d.Attempts,
		predictor: readiness.NewPredictor(d.Readiness, d.Content, tracker, d.Scores, clock),
		cache:     d.Cache,
		cacheTTL:  d.CacheTTL,
		now:       clock,
		rng:       rand.New(rand.NewSource(rng.Int63())),
	}, nil
}

func fillReadinessDefaults(cfg *readiness.Config) {
	if cfg.MasteryBlend <= 0 {
		cfg.MasteryBlend = 0.6
	}
	if cfg.TrendAlpha <= 0 {
		cfg.TrendAlpha = 0.3
	}
	if cfg.PriorVariance <= 0 {
		cfg.PriorVariance = 0.04
	}
	if cfg.TrendDepth <= 0 {
		cfg.TrendDepth = 10
	}
}

// StartSession opens a study session against an exam.
func (e *Engine) StartSession(ctx context.Context, userID, examID string) (session.Session, error) {
	if userID == "" {
		return session.Session{}, errs.New(errs.CodeValidation, "user ID is required")
	}
	if _, ok := e.content.Exam(examID); !ok {
		return session.Session{}, errs.New(errs.CodeNotFound, "exam %q not found", examID)
	}
	return e.sessions.Start(ctx, userID, examID)
}

// PauseSession suspends an active session.
func (e *Engine) PauseSession(ctx context.Context, sessionID string) (session.Session, error) {
	return e.sessions.Pause(ctx, sessionID)
}

// ResumeSession reactivates a paused session.
func (e *Engine) ResumeSession(ctx context.Context, sessionID string) (session.Session, error) {
	return e.sessions.Resume(ctx, sessionID)
}

// CompleteSession finishes a session.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (session.Session, error) {
	return e.sessions.Complete(ctx, sessionID)
}

// SweepExpiredSessions abandons sessions past their expiry. Called by
// the server's periodic job, never by a timer inside the engine.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	return e.sessions.SweepExpired(ctx)
}

// NextBatch returns the next adaptive question batch for a session.
func (e *Engine) NextBatch(ctx context.Context, sessionID string, count int) ([]content.Question, error) {
	s, err := e.sessions.EnsureActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.selector.NextBatch(ctx, s.UserID, s.ExamID, count)
}

// AnswerResult is the outcome of one study answer.
type AnswerResult struct {
	Correct     bool
	Explanation string
	Mastery     mastery.Record
}

// SubmitAnswer grades a study answer and applies its consequences:
// mastery moves, the question enters (or resets) its cooldown, and the
// cached readiness estimate is dropped.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, questionID, answer string) (AnswerResult, error) {
	s, err := e.sessions.EnsureActive(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}

	q, ok := e.content.Question(s.ExamID, questionID)
	if !ok {
		return AnswerResult{}, errs.New(errs.CodeNotFound,
			"question %q not found in exam %q", questionID, s.ExamID)
	}

	correct := Grade(q, answer)

	rec, err := e.tracker.Update(ctx, s.UserID, q.ObjectiveID, correct, 0)
	if err != nil {
		return AnswerResult{}, err
	}
	if _, err := e.filter.RecordExposure(ctx, s.UserID, questionID, correct, e.now()); err != nil {
		return AnswerResult{}, err
	}
	e.dropEstimate(ctx, s.UserID, s.ExamID)

	return AnswerResult{
		Correct:     correct,
		Explanation: q.Explanation,
		Mastery:     rec,
	}, nil
}

// StartTestAttempt opens a timed attempt over the exam's full active
// question set, shuffled once and fixed for the attempt's lifetime.
func (e *Engine) StartTestAttempt(ctx context.Context, userID, examID string) (attempt.Attempt, error) {
	if userID == "" {
		return attempt.Attempt{}, errs.New(errs.CodeValidation, "user ID is required")
	}
	exam, ok := e.content.Exam(examID)
	if !ok {
		return attempt.Attempt{}, errs.New(errs.CodeNotFound, "exam %q not found", examID)
	}

	var questionIDs []string
	for _, q := range exam.Questions {
		if q.Active {
			questionIDs = append(questionIDs, q.ID)
		}
	}
	e.mu.Lock()
	e.rng.Shuffle(len(questionIDs), func(i, j int) {
		questionIDs[i], questionIDs[j] = questionIDs[j], questionIDs[i]
	})
	e.mu.Unlock()

	limit := exam.TimeLimit()
	if limit <= 0 {
		limit = defaultTestLimit
	}
	return e.attempts.Start(ctx, userID, examID, questionIDs, limit)
}

// SubmitTestAnswer records one test answer under the attempt's time
// box.
func (e *Engine) SubmitTestAnswer(ctx context.Context, attemptID, questionID, answer string) error {
	return e.attempts.SubmitAnswer(ctx, attemptID, questionID, answer)
}

// FinalizeTest scores an attempt and stores the result.
func (e *Engine) FinalizeTest(ctx context.Context, attemptID string) (attempt.Result, error) {
	a, err := e.attempts.Get(ctx, attemptID)
	if err != nil {
		return attempt.Result{}, err
	}
	exam, ok := e.content.Exam(a.ExamID)
	if !ok {
		return attempt.Result{}, errs.New(errs.CodeNotFound, "exam %q not found", a.ExamID)
	}

	res, err := e.attempts.Finalize(ctx, attemptID, exam, Grade)
	if err != nil {
		return attempt.Result{}, err
	}
	e.dropEstimate(ctx, a.UserID, a.ExamID)
	return res, nil
}

// GetReadiness returns the user's predicted exam outcome, served from
// cache when one is configured.
func (e *Engine) GetReadiness(ctx context.Context, userID, examID string) (readiness.Estimate, error) {
	key := estimateKey(userID, examID)
	if e.cache != nil {
		var est readiness.Estimate
		hit, err := e.cache.GetJSON(ctx, key, &est)
		if err != nil {
			slog.Warn("readiness cache read failed", "error", err)
		} else if hit {
			return est, nil
		}
	}

	est, err := e.predictor.Predict(ctx, userID, examID)
	if err != nil {
		return readiness.Estimate{}, err
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, est, e.cacheTTL); err != nil {
			slog.Warn("readiness cache write failed", "error", err)
		}
	}
	return est, nil
}

// QualityReport computes item statistics across recent completed
// attempts of an exam.
func (e *Engine) QualityReport(ctx context.Context, examID string) ([]quality.ItemStats, error) {
	exam, ok := e.content.Exam(examID)
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "exam %q not found", examID)
	}
	attempts, err := e.attemptDB.ForExam(ctx, examID, qualityDepth)
	if err != nil {
		return nil, err
	}
	return quality.Analyze(exam, attempts, Grade), nil
}

// dropEstimate invalidates a cached readiness estimate. Cache failures
// are logged, not surfaced: a stale estimate expires on its own TTL.
func (e *Engine) dropEstimate(ctx context.Context, userID, examID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, estimateKey(userID, examID)); err != nil {
		slog.Warn("readiness cache invalidation failed", "error", err)
	}
}

func estimateKey(userID, examID string) string {
	return fmt.Sprintf("readiness:%s:%s", userID, examID)
}
