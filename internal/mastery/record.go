// Package mastery tracks per-(user, objective) proficiency with bounded
// incremental updates.
package mastery

import (
	"math"
	"time"

	"github.com/certlab/engine/internal/content"
)

const (
	// windowSize is the trailing-correctness window used for the
	// achieved check and the difficulty band shift.
	windowSize = 10

	// achievedLevel and achievedAccuracy gate "achieved" status:
	// level at or above 0.9 AND trailing-10 accuracy at or above 0.9.
	achievedLevel    = 0.9
	achievedAccuracy = 0.9

	// bandWindow is how many trailing answers feed the band shift.
	bandWindow  = 5
	bandShiftUp = 0.85
	bandShiftDn = 0.5
)

// Window is a bounded ring of the most recent correctness bits.
// Bit 0 is the most recent answer.
type Window struct {
	Bits uint16
	N    int
}

// Push records one answer, evicting the oldest once full.
func (w *Window) Push(correct bool) {
	w.Bits <<= 1
	if correct {
		w.Bits |= 1
	}
	w.Bits &= (1 << windowSize) - 1
	if w.N < windowSize {
		w.N++
	}
}

// Len returns how many answers the window holds.
func (w Window) Len() int { return w.N }

// Accuracy returns the fraction correct over the most recent k answers.
// Returns 0 when the window is empty.
func (w Window) Accuracy(k int) float64 {
	if k > w.N {
		k = w.N
	}
	if k == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < k; i++ {
		if w.Bits&(1<<i) != 0 {
			correct++
		}
	}
	return float64(correct) / float64(k)
}

// Record is the mastery state for one (user, objective) pair. It is
// created lazily on first answer and mutated only through Apply; the
// Version field is the optimistic concurrency token, incremented by the
// store on every write.
type Record struct {
	UserID            string
	ObjectiveID       string
	Level             float64
	QuestionsAnswered int
	CorrectStreak     int
	TargetBand        content.Band
	Window            Window
	LastAnsweredAt    time.Time
	Version           int
}

// NewRecord returns the initial state for a pair that has never answered.
func NewRecord(userID, objectiveID string) Record {
	return Record{
		UserID:      userID,
		ObjectiveID: objectiveID,
		TargetBand:  content.BandDefault,
	}
}

// LearningRate decays with evidence: early answers move the level
// quickly, later answers refine it. Floored so mastery never freezes.
func LearningRate(questionsAnswered int) float64 {
	return math.Max(0.05, 0.3/math.Sqrt(float64(questionsAnswered+1)))
}

// Apply performs the bounded incremental update for one answer.
// A correct answer moves the level toward 1 by rate*(1-level); an
// incorrect one moves it toward 0 by rate*level, so the level can never
// leave [0,1].
func (r *Record) Apply(correct bool, now time.Time) {
	rate := LearningRate(r.QuestionsAnswered)

	var delta float64
	if correct {
		delta = rate * (1 - r.Level)
	} else {
		delta = -rate * r.Level
	}
	r.Level = clamp01(r.Level + delta)

	r.QuestionsAnswered++
	if correct {
		r.CorrectStreak++
	} else {
		r.CorrectStreak = 0
	}
	r.Window.Push(correct)
	r.LastAnsweredAt = now
}

// Achieved reports whether the objective counts as mastered. The
// trailing window, not the streak, decides: one miss does not erase
// achieved status if the last ten answers still qualify.
func (r Record) Achieved() bool {
	if r.Level < achievedLevel {
		return false
	}
	if r.Window.Len() < windowSize {
		return false
	}
	return r.Window.Accuracy(windowSize) >= achievedAccuracy
}

// EffectiveBand derives the difficulty band to serve next. The stored
// target is the baseline; hot or cold streaks over the last five
// answers shift it one band, clamped to the valid range. Fewer than
// five answers leave the target unchanged.
func (r Record) EffectiveBand() content.Band {
	target := r.TargetBand
	if target == 0 {
		target = content.BandDefault
	}
	if r.Window.Len() < bandWindow {
		return target
	}

	acc := r.Window.Accuracy(bandWindow)
	switch {
	case acc > bandShiftUp:
		return (target + 1).Clamp()
	case acc < bandShiftDn:
		return (target - 1).Clamp()
	}
	return target
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
