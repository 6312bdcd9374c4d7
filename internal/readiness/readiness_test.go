package readiness_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/certlab/engine/internal/attempt"
	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/mastery"
	"github.com/certlab/engine/internal/readiness"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testPack = `id: cloud-arch
name: Cloud Architecture
passing_score: 0.65
objectives:
  - id: resilient
    name: Design Resilient Architectures
    weight: 0.6
  - id: secure
    name: Design Secure Architectures
    weight: 0.4
questions:
  - id: q-01
    objective_id: resilient
    type: true_false
    prompt: placeholder
    answer: ["true"]
`

var testConfig = readiness.Config{
	MasteryBlend:  0.6,
	TrendAlpha:    0.3,
	PriorVariance: 0.04,
	TrendDepth:    10,
}

type fixture struct {
	predictor *readiness.Predictor
	mastery   mastery.Store
	scores    *attempt.MemoryScoreStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "exam.yaml"), []byte(testPack), 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatal(err)
	}

	clock := func() time.Time { return t0 }
	ms := mastery.NewMemoryStore()
	scores := attempt.NewMemoryScoreStore()
	tracker := mastery.NewTracker(ms, clock)

	return &fixture{
		predictor: readiness.NewPredictor(testConfig, loader, tracker, scores, clock),
		mastery:   ms,
		scores:    scores,
	}
}

func (f *fixture) setLevel(t *testing.T, objectiveID string, level float64) {
	t.Helper()
	rec := mastery.NewRecord("u1", objectiveID)
	rec.Level = level
	if err := f.mastery.Save(t.Context(), rec, 0); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addScore(t *testing.T, score float64, at time.Time) {
	t.Helper()
	err := f.scores.SaveScore(t.Context(), attempt.Result{
		AttemptID:   "a-" + at.Format("150405"),
		UserID:      "u1",
		ExamID:      "cloud-arch",
		Score:       score,
		FinalizedAt: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPredict_NoHistoryFallsBackToMastery(t *testing.T) {
	f := newFixture(t)
	f.setLevel(t, "resilient", 0.8)
	f.setLevel(t, "secure", 0.5)

	est, err := f.predictor.Predict(t.Context(), "u1", "cloud-arch")
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	// masteryComponent = 0.6*0.8 + 0.4*0.5 = 0.68; with no tests the
	// trend equals it, so the blend collapses to it too.
	if math.Abs(est.PredictedScore-0.68) > 1e-9 {
		t.Errorf("PredictedScore = %v, want 0.68", est.PredictedScore)
	}

	// Interval from the prior variance with N = 1: ± 1.96*0.2.
	margin := 1.96 * math.Sqrt(0.04)
	if math.Abs(est.ConfidenceLow-(0.68-margin)) > 1e-9 {
		t.Errorf("ConfidenceLow = %v, want %v", est.ConfidenceLow, 0.68-margin)
	}
	if math.Abs(est.ConfidenceHigh-(0.68+margin)) > 1e-9 {
		t.Errorf("ConfidenceHigh = %v, want %v", est.ConfidenceHigh, 0.68+margin)
	}
}

func TestPredict_BlendsScoreTrend(t *testing.T) {
	f := newFixture(t)
	f.setLevel(t, "resilient", 1.0)
	f.setLevel(t, "secure", 1.0)
	f.addScore(t, 0.5, t0.Add(-2*time.Hour))
	f.addScore(t, 0.7, t0.Add(-time.Hour))

	est, err := f.predictor.Predict(t.Context(), "u1", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}

	// EMA = 0.3*0.7 + 0.7*0.5 = 0.56; predicted = 0.6*1.0 + 0.4*0.56.
	want := 0.6 + 0.4*0.56
	if math.Abs(est.PredictedScore-want) > 1e-9 {
		t.Errorf("PredictedScore = %v, want %v", est.PredictedScore, want)
	}

	// Two scores: sample variance replaces the prior.
	variance := 0.02 // ((0.5-0.6)^2 + (0.7-0.6)^2) / 1
	margin := 1.96 * math.Sqrt(variance/2)
	if math.Abs((est.ConfidenceHigh-est.ConfidenceLow)-2*margin) > 1e-9 {
		t.Errorf("interval width = %v, want %v", est.ConfidenceHigh-est.ConfidenceLow, 2*margin)
	}
}

func TestPredict_IntervalClamped(t *testing.T) {
	f := newFixture(t)
	// Zero mastery, no history: predicted 0, lower bound would be
	// negative without clamping.
	est, err := f.predictor.Predict(t.Context(), "u1", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}
	if est.ConfidenceLow != 0 {
		t.Errorf("ConfidenceLow = %v, want 0 (clamped)", est.ConfidenceLow)
	}
	if est.ConfidenceHigh < 0 || est.ConfidenceHigh > 1 {
		t.Errorf("ConfidenceHigh = %v outside [0,1]", est.ConfidenceHigh)
	}
}

func TestPredict_TrendDepthLimitsHistory(t *testing.T) {
	f := newFixture(t)
	f.setLevel(t, "resilient", 1.0)
	f.setLevel(t, "secure", 1.0)

	// An ancient outlier beyond the depth window must not drag the
	// trend; only the most recent TrendDepth scores count.
	f.addScore(t, 0.0, t0.Add(-100*time.Hour))
	for i := 0; i < 10; i++ {
		f.addScore(t, 0.9, t0.Add(time.Duration(i-50)*time.Hour))
	}

	est, err := f.predictor.Predict(t.Context(), "u1", "cloud-arch")
	if err != nil {
		t.Fatal(err)
	}

	want := 0.6*1.0 + 0.4*0.9
	if math.Abs(est.PredictedScore-want) > 1e-9 {
		t.Errorf("PredictedScore = %v, want %v", est.PredictedScore, want)
	}
}

func TestPredict_UnknownExam(t *testing.T) {
	f := newFixture(t)
	_, err := f.predictor.Predict(context.Background(), "u1", "no-such-exam")
	if !errs.IsCode(err, errs.CodeNotFound) {
		t.Errorf("Predict() error = %v, want NOT_FOUND", err)
	}
}
