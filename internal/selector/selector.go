// Package selector produces weighted question batches for study
// sessions, combining objective weights, mastery gaps, and
// spaced-repetition eligibility.
package selector

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/eligibility"
	"github.com/certlab/engine/internal/errs"
	"github.com/certlab/engine/internal/mastery"
)

// maxRedistributions bounds how many exhausted objectives may have
// their probability mass folded back into the distribution within a
// single batch before the pool is declared insufficient.
const maxRedistributions = 3

// Selector draws question batches. It reads mastery state and exposure
// state but never writes either; answer submission flows through the
// engine, not through here.
type Selector struct {
	content *content.Loader
	tracker *mastery.Tracker
	filter  *eligibility.Filter
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a selector. rng and clock may be nil; tests inject a
// seeded source and a fixed clock for reproducible draws.
func New(loader *content.Loader, tracker *mastery.Tracker, filter *eligibility.Filter, rng *rand.Rand, clock func() time.Time) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if clock == nil {
		clock = time.Now
	}
	return &Selector{
		content: loader,
		tracker: tracker,
		filter:  filter,
		now:     clock,
		rng:     rng,
	}
}

// candidate is one objective's sampling state for a batch in progress.
type candidate struct {
	objectiveID string
	priority    float64
	pool        []content.Question
}

// NextBatch returns count questions for the user, sampled from the
// objective distribution priority = weight * (1 - mastery). Draws are
// with replacement across objectives and without replacement within
// the batch. Exhausted objectives have their mass redistributed to the
// rest, at most maxRedistributions times, after which the call fails
// with INSUFFICIENT_QUESTION_POOL.
func (s *Selector) NextBatch(ctx context.Context, userID, examID string, count int) ([]content.Question, error) {
	if count <= 0 {
		return nil, errs.New(errs.CodeValidation, "batch size %d must be positive", count)
	}

	weights, ok := s.content.ObjectiveWeights(examID)
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "exam %q not found", examID)
	}

	candidates, total, err := s.buildCandidates(ctx, userID, examID, weights)
	if err != nil {
		return nil, err
	}
	if total < count {
		return nil, errs.New(errs.CodeInsufficientPool,
			"%d eligible questions available for exam %q, need %d", total, examID, count)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]content.Question, 0, count)
	redistributions := 0
	for len(batch) < count {
		i := s.drawObjective(candidates)
		if i < 0 || len(candidates[i].pool) == 0 {
			// The drawn objective (or the whole distribution) has run
			// dry; fold its mass into the remaining objectives.
			redistributions++
			if redistributions > maxRedistributions {
				return nil, errs.New(errs.CodeInsufficientPool,
					"question pool for exam %q exhausted after %d questions", examID, len(batch))
			}
			if i >= 0 {
				candidates = append(candidates[:i], candidates[i+1:]...)
			}
			if len(candidates) == 0 {
				return nil, errs.New(errs.CodeInsufficientPool,
					"question pool for exam %q exhausted after %d questions", examID, len(batch))
			}
			continue
		}

		c := &candidates[i]
		j := s.rng.Intn(len(c.pool))
		batch = append(batch, c.pool[j])
		c.pool[j] = c.pool[len(c.pool)-1]
		c.pool = c.pool[:len(c.pool)-1]
	}

	return batch, nil
}

// buildCandidates assembles the per-objective sampling state: priority
// from the mastery gap, and the pool filtered to active, eligible
// questions within the user's current difficulty band.
func (s *Selector) buildCandidates(ctx context.Context, userID, examID string, weights map[string]float64) ([]candidate, int, error) {
	// Stable objective order before shuffling decisions; map iteration
	// order must not influence which question a given seed draws.
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	candidates := make([]candidate, 0, len(ids))
	total := 0
	for _, objectiveID := range ids {
		rec, err := s.tracker.Get(ctx, userID, objectiveID)
		if err != nil {
			return nil, 0, err
		}

		pool := s.content.QuestionPool(examID, objectiveID, rec.EffectiveBand())
		if len(pool) == 0 {
			continue
		}

		qids := make([]string, len(pool))
		for i, q := range pool {
			qids[i] = q.ID
		}
		eligible, err := s.filter.EligibleSet(ctx, userID, qids, now)
		if err != nil {
			return nil, 0, err
		}

		filtered := pool[:0]
		for _, q := range pool {
			if eligible[q.ID] {
				filtered = append(filtered, q)
			}
		}
		if len(filtered) == 0 {
			continue
		}

		candidates = append(candidates, candidate{
			objectiveID: objectiveID,
			priority:    weights[objectiveID] * (1 - rec.Level),
			pool:        filtered,
		})
		total += len(filtered)
	}
	return candidates, total, nil
}

// drawObjective samples one candidate index proportionally to
// priority. When every priority is zero (all objectives fully
// mastered) the draw falls back to uniform, which also gives ties
// between equal priorities a uniform-random break.
func (s *Selector) drawObjective(candidates []candidate) int {
	if len(candidates) == 0 {
		return -1
	}

	sum := 0.0
	for _, c := range candidates {
		sum += c.priority
	}
	if sum <= 0 {
		return s.rng.Intn(len(candidates))
	}

	r := s.rng.Float64() * sum
	for i, c := range candidates {
		r -= c.priority
		if r < 0 {
			return i
		}
	}
	return len(candidates) - 1
}
