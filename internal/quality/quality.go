// Package quality computes item statistics over finalized attempts:
// per-question difficulty and discrimination, for flagging questions
// that fail to separate strong candidates from weak ones.
package quality

import (
	"math"
	"sort"

	"github.com/certlab/engine/internal/attempt"
	"github.com/certlab/engine/internal/content"
)

// ItemStats summarizes one question's performance across attempts.
type ItemStats struct {
	QuestionID string `json:"questionId"`
	// Exposures is how many attempts included the question.
	Exposures int `json:"exposures"`
	// CorrectRate is the fraction of exposures answered correctly,
	// the classical difficulty p-value.
	CorrectRate float64 `json:"correctRate"`
	// Discrimination is the corrected point-biserial correlation
	// between item correctness and the attempt's rest score, the
	// fraction correct on the other items. Near zero or negative
	// values mark items that do not separate candidates.
	Discrimination float64 `json:"discrimination"`
}

// minExposures is the sample floor below which discrimination is
// reported as zero rather than as noise.
const minExposures = 5

// Analyze computes item statistics for every question that appeared in
// at least one attempt. Attempts are rescored with the supplied grader
// so the analysis reflects current answer keys, not historical ones.
func Analyze(exam content.Exam, attempts []attempt.Attempt, grade attempt.GradeFunc) []ItemStats {
	questions := make(map[string]content.Question, len(exam.Questions))
	for _, q := range exam.Questions {
		questions[q.ID] = q
	}

	type sample struct {
		exposures int
		hits      int
		// correct and rests are the paired correlation sample; they
		// skip attempts too small to yield a rest score.
		correct []bool
		rests   []float64
	}
	samples := make(map[string]*sample)

	for _, a := range attempts {
		total := 0
		graded := make(map[string]bool, len(a.QuestionIDs))
		for _, qid := range a.QuestionIDs {
			q, ok := questions[qid]
			if !ok {
				continue
			}
			answer, answered := a.Answers[qid]
			correct := answered && grade(q, answer)
			graded[qid] = correct
			if correct {
				total++
			}
		}
		if len(graded) == 0 {
			continue
		}

		for qid, correct := range graded {
			s := samples[qid]
			if s == nil {
				s = &sample{}
				samples[qid] = s
			}
			s.exposures++
			if correct {
				s.hits++
			}
			// The criterion excludes the item itself so it cannot
			// correlate with its own contribution. Single-item
			// attempts have no rest score and drop out of the
			// correlation sample.
			if len(graded) < 2 {
				continue
			}
			rest := total
			if correct {
				rest--
			}
			s.correct = append(s.correct, correct)
			s.rests = append(s.rests, float64(rest)/float64(len(graded)-1))
		}
	}

	stats := make([]ItemStats, 0, len(samples))
	for qid, s := range samples {
		item := ItemStats{
			QuestionID:  qid,
			Exposures:   s.exposures,
			CorrectRate: float64(s.hits) / float64(s.exposures),
		}
		if len(s.correct) >= minExposures {
			item.Discrimination = pointBiserial(s.correct, s.rests)
		}
		stats = append(stats, item)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].QuestionID < stats[j].QuestionID })
	return stats
}

// pointBiserial is the correlation between a binary item outcome and a
// continuous criterion score: (M1 - M0) / s * sqrt(p * (1-p)), with s
// the population standard deviation of the criterion. Degenerate
// samples (all correct, all incorrect, or a constant criterion) report
// zero.
func pointBiserial(correct []bool, totals []float64) float64 {
	n := float64(len(totals))
	p := 0.0
	m1, m0 := 0.0, 0.0
	n1, n0 := 0, 0
	for i, c := range correct {
		if c {
			m1 += totals[i]
			n1++
		} else {
			m0 += totals[i]
			n0++
		}
	}
	if n1 == 0 || n0 == 0 {
		return 0
	}
	p = float64(n1) / n
	m1 /= float64(n1)
	m0 /= float64(n0)

	mean := 0.0
	for _, t := range totals {
		mean += t
	}
	mean /= n
	ss := 0.0
	for _, t := range totals {
		d := t - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / n)
	if sd == 0 {
		return 0
	}

	return (m1 - m0) / sd * math.Sqrt(p*(1-p))
}
