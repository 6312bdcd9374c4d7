package eligibility

import (
	"context"

	"time"

	"github.com/certlab/engine/internal/errs"
)

// Filter answers eligibility queries and owns the single write path
// for exposure records.
type Filter struct {
	store Store
}

// NewFilter creates an eligibility filter over a store.
func NewFilter(store Store) *Filter {
	return &Filter{store: store}
}

// IsEligible reports whether a question may currently be served to a
// user. A question with no exposure record is always eligible.
func (f *Filter) IsEligible(ctx context.Context, userID, questionID string, now time.Time) (bool, error) {
	exp, err := f.store.Get(ctx, userID, questionID)
	if errs.IsCode(err, errs.CodeNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return exp.Eligible(now), nil
}

// RecordExposure applies one answer outcome. It is called by the
// answer-submission flow, never directly by a session.
func (f *Filter) RecordExposure(ctx context.Context, userID, questionID string, correct bool, now time.Time) (Exposure, error) {
	exp, err := f.store.Get(ctx, userID, questionID)
	if errs.IsCode(err, errs.CodeNotFound) {
		exp = Exposure{UserID: userID, QuestionID: questionID}
	} else if err != nil {
		return Exposure{}, err
	}

	exp.record(correct, now)

	if err := f.store.Put(ctx, exp); err != nil {
		return Exposure{}, err
	}
	return exp, nil
}

// EligibleSet filters questionIDs down to those servable at now.
// One bulk read keeps batch selection off the per-question query path.
func (f *Filter) EligibleSet(ctx context.Context, userID string, questionIDs []string, now time.Time) (map[string]bool, error) {
	exposures, err := f.store.GetAll(ctx, userID, questionIDs)
	if err != nil {
		return nil, err
	}

	eligible := make(map[string]bool, len(questionIDs))
	for _, id := range questionIDs {
		exp, seen := exposures[id]
		eligible[id] = !seen || exp.Eligible(now)
	}
	return eligible, nil
}
