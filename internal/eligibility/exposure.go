// Package eligibility implements spaced-repetition cooldowns that
// govern how soon a previously answered question may be re-served.
package eligibility

import "time"

// Exposure tracks one user's history with one question. It is written
// only through Filter.RecordExposure.
type Exposure struct {
	UserID         string
	QuestionID     string
	LastSeenAt     time.Time
	LastCorrect    bool
	CorrectStreak  int // consecutive correct exposures of this question
	NextEligibleAt time.Time
}

// cooldowns maps the consecutive-correct streak after an answer to the
// interval before the question may be served again. A miss resets the
// streak to zero, so weak points resurface immediately.
var cooldowns = []struct {
	streak   int
	interval time.Duration
}{
	{1, time.Hour},
	{2, 24 * time.Hour},
	{3, 4 * 24 * time.Hour},
	{4, 10 * 24 * time.Hour},
}

// CooldownFor returns the re-serve interval for a consecutive-correct
// streak. Zero streak means immediately eligible.
func CooldownFor(streak int) time.Duration {
	if streak <= 0 {
		return 0
	}
	for _, c := range cooldowns {
		if streak == c.streak {
			return c.interval
		}
	}
	return cooldowns[len(cooldowns)-1].interval
}

// Eligible reports whether the question may be served at now.
func (e Exposure) Eligible(now time.Time) bool {
	return !now.Before(e.NextEligibleAt)
}

// record applies one answer outcome to the exposure state.
func (e *Exposure) record(correct bool, now time.Time) {
	e.LastSeenAt = now
	e.LastCorrect = correct
	if correct {
		e.CorrectStreak++
	} else {
		e.CorrectStreak = 0
	}
	e.NextEligibleAt = now.Add(CooldownFor(e.CorrectStreak))
}
