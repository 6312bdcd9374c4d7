package eligibility_test

import (
	"testing"
	"time"

	"github.com/certlab/engine/internal/eligibility"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCooldownFor(t *testing.T) {
	tests := []struct {
		streak int
		want   time.Duration
	}{
		{0, 0},
		{1, time.Hour},
		{2, 24 * time.Hour},
		{3, 4 * 24 * time.Hour},
		{4, 10 * 24 * time.Hour},
		{7, 10 * 24 * time.Hour},
	}

	for _, tt := range tests {
		if got := eligibility.CooldownFor(tt.streak); got != tt.want {
			t.Errorf("CooldownFor(%d) = %v, want %v", tt.streak, got, tt.want)
		}
	}
}

func TestFilter_UnseenQuestionIsEligible(t *testing.T) {
	f := eligibility.NewFilter(eligibility.NewMemoryStore())

	ok, err := f.IsEligible(t.Context(), "u1", "q1", t0)
	if err != nil {
		t.Fatalf("IsEligible() error = %v", err)
	}
	if !ok {
		t.Error("a never-served question should be eligible")
	}
}

func TestFilter_CorrectAnswerStartsCooldown(t *testing.T) {
	f := eligibility.NewFilter(eligibility.NewMemoryStore())

	exp, err := f.RecordExposure(t.Context(), "u1", "q1", true, t0)
	if err != nil {
		t.Fatalf("RecordExposure() error = %v", err)
	}
	if exp.CorrectStreak != 1 {
		t.Errorf("CorrectStreak = %d, want 1", exp.CorrectStreak)
	}

	ok, _ := f.IsEligible(t.Context(), "u1", "q1", t0.Add(59*time.Minute))
	if ok {
		t.Error("question should be on cooldown before the hour elapses")
	}

	ok, _ = f.IsEligible(t.Context(), "u1", "q1", t0.Add(time.Hour))
	if !ok {
		t.Error("question should be eligible once the interval elapses")
	}
}

func TestFilter_StreakEscalatesIntervals(t *testing.T) {
	f := eligibility.NewFilter(eligibility.NewMemoryStore())
	ctx := t.Context()

	now := t0
	wants := []time.Duration{time.Hour, 24 * time.Hour, 4 * 24 * time.Hour, 10 * 24 * time.Hour, 10 * 24 * time.Hour}
	for i, want := range wants {
		exp, err := f.RecordExposure(ctx, "u1", "q1", true, now)
		if err != nil {
			t.Fatal(err)
		}
		if got := exp.NextEligibleAt.Sub(now); got != want {
			t.Errorf("exposure %d: interval = %v, want %v", i+1, got, want)
		}
		now = exp.NextEligibleAt
	}
}

func TestFilter_MissResetsStreakAndEligibility(t *testing.T) {
	f := eligibility.NewFilter(eligibility.NewMemoryStore())
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		if _, err := f.RecordExposure(ctx, "u1", "q1", true, t0); err != nil {
			t.Fatal(err)
		}
	}

	exp, err := f.RecordExposure(ctx, "u1", "q1", false, t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if exp.CorrectStreak != 0 {
		t.Errorf("CorrectStreak = %d, want 0 after a miss", exp.CorrectStreak)
	}

	ok, _ := f.IsEligible(ctx, "u1", "q1", t0.Add(time.Minute))
	if !ok {
		t.Error("a missed question must be immediately eligible again")
	}
}

func TestFilter_EligibleSet(t *testing.T) {
	f := eligibility.NewFilter(eligibility.NewMemoryStore())
	ctx := t.Context()

	if _, err := f.RecordExposure(ctx, "u1", "q1", true, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.RecordExposure(ctx, "u1", "q2", false, t0); err != nil {
		t.Fatal(err)
	}

	set, err := f.EligibleSet(ctx, "u1", []string{"q1", "q2", "q3"}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("EligibleSet() error = %v", err)
	}

	if set["q1"] {
		t.Error("q1 should be on cooldown")
	}
	if !set["q2"] {
		t.Error("q2 was missed and should be eligible")
	}
	if !set["q3"] {
		t.Error("q3 was never served and should be eligible")
	}
}
