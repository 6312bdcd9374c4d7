// Package readiness predicts exam outcomes by blending current mastery
// with the trend of recent test scores. The output is a statistical
// estimate with a confidence interval, not a guarantee.
package readiness

import (
	"context"
	"math"
	"time"

	"github.com/certlab/engine/internal/attempt"
	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/mastery"
)

// zScore95 is the two-sided 95% normal quantile used for the interval.
const zScore95 = 1.96

// Config holds the blend coefficients. Defaults mirror the engine
// configuration; tests override them directly.
type Config struct {
	// MasteryBlend is the weight of current mastery in the prediction;
	// the remainder goes to the test-score trend.
	MasteryBlend float64
	// TrendAlpha is the smoothing factor of the score EMA.
	TrendAlpha float64
	// PriorVariance stands in for sample variance when fewer than two
	// scores exist.
	PriorVariance float64
	// TrendDepth caps how many recent scores feed the trend.
	TrendDepth int
}

// Estimate is a predicted exam outcome.
type Estimate struct {
	PredictedScore float64   `json:"predictedScore"`
	ConfidenceLow  float64   `json:"confidenceLow"`
	ConfidenceHigh float64   `json:"confidenceHigh"`
	ComputedAt     time.Time `json:"computedAt"`
}

// Predictor computes readiness estimates from mastery state and score
// history. It holds read-only dependencies and is safe for concurrent
// use.
type Predictor struct {
	cfg     Config
	content *content.Loader
	tracker *mastery.Tracker
	scores  attempt.ScoreStore
	now     func() time.Time
}

// NewPredictor creates a predictor. clock may be nil, defaulting to
// time.Now.
func NewPredictor(cfg Config, loader *content.Loader, tracker *mastery.Tracker, scores attempt.ScoreStore, clock func() time.Time) *Predictor {
	if clock == nil {
		clock = time.Now
	}
	return &Predictor{cfg: cfg, content: loader, tracker: tracker, scores: scores, now: clock}
}

// Predict estimates the user's exam outcome.
//
// The point estimate blends the objective-weighted mastery component
// with an EMA of recent test scores; a user with no prior tests falls
// back to mastery alone. The interval is the normal approximation over
// the score sample, widened to the prior variance when fewer than two
// scores exist.
func (p *Predictor) Predict(ctx context.Context, userID, examID string) (Estimate, error) {
	weights, ok := p.content.ObjectiveWeights(examID)
	if !ok {
		return Estimate{}, errs.New(errs.CodeNotFound, "exam %q not found", examID)
	}

	objectiveIDs := make([]string, 0, len(weights))
	for id := range weights {
		objectiveIDs = append(objectiveIDs, id)
	}
	levels, err := p.tracker.Levels(ctx, userID, objectiveIDs)
	if err != nil {
		return Estimate{}, err
	}

	masteryComponent := 0.0
	for id, w := range weights {
		masteryComponent += w * levels[id]
	}

	scores, err := p.scores.ScoresFor(ctx, userID, examID, p.cfg.TrendDepth)
	if err != nil {
		return Estimate{}, err
	}

	trend := masteryComponent
	if len(scores) > 0 {
		trend = ema(scores, p.cfg.TrendAlpha)
	}

	predicted := p.cfg.MasteryBlend*masteryComponent + (1-p.cfg.MasteryBlend)*trend

	variance := p.cfg.PriorVariance
	if len(scores) >= 2 {
		variance = sampleVariance(scores)
	}
	n := float64(len(scores))
	if n < 1 {
		n = 1
	}

	margin := zScore95 * math.Sqrt(variance/n)
	return Estimate{
		PredictedScore: predicted,
		ConfidenceLow:  clamp01(predicted - margin),
		ConfidenceHigh: clamp01(predicted + margin),
		ComputedAt:     p.now(),
	}, nil
}

// ema folds scores oldest-first into an exponential moving average
// seeded with the oldest score.
func ema(scores []float64, alpha float64) float64 {
	avg := scores[0]
	for _, s := range scores[1:] {
		avg = alpha*s + (1-alpha)*avg
	}
	return avg
}

func sampleVariance(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
