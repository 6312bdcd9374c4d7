package attempt

import (
	"time"

	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/errs"
)

// GradeFunc decides whether a submitted answer is correct for a
// question. Grading policy (normalization, multi-answer matching)
// lives with the caller, keeping the scorer itself pure.
type GradeFunc func(q content.Question, answer string) bool

// ObjectiveResult is one objective's slice of a scored attempt.
type ObjectiveResult struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Result is a finalized attempt score.
type Result struct {
	AttemptID   string
	UserID      string
	ExamID      string
	Score       float64
	Passed      bool
	Breakdown   map[string]ObjectiveResult
	FinalizedAt time.Time
}

// Score computes the objective-weighted score of an attempt. Per
// objective, accuracy is correct over total questions in the attempt;
// unanswered questions count as incorrect. The weighted sum is
// renormalized over the objectives actually represented, so an attempt
// whose fixed set omitted a low-weight objective is not penalized for
// it. Pure: no state is read or written beyond the arguments.
func Score(exam content.Exam, a Attempt, grade GradeFunc, now time.Time) (Result, error) {
	questions := make(map[string]content.Question, len(exam.Questions))
	for _, q := range exam.Questions {
		questions[q.ID] = q
	}

	breakdown := make(map[string]ObjectiveResult, len(exam.Objectives))
	for _, qid := range a.QuestionIDs {
		q, ok := questions[qid]
		if !ok {
			return Result{}, errs.New(errs.CodeValidation,
				"attempt %s references question %q not in exam %q", a.ID, qid, exam.ID)
		}

		res := breakdown[q.ObjectiveID]
		res.Total++
		if answer, answered := a.Answers[qid]; answered && grade(q, answer) {
			res.Correct++
		}
		breakdown[q.ObjectiveID] = res
	}

	score := 0.0
	weightSum := 0.0
	for _, o := range exam.Objectives {
		res, represented := breakdown[o.ID]
		if !represented {
			continue
		}
		res.Accuracy = float64(res.Correct) / float64(res.Total)
		breakdown[o.ID] = res
		score += o.Weight * res.Accuracy
		weightSum += o.Weight
	}
	if weightSum == 0 {
		return Result{}, errs.New(errs.CodeValidation, "attempt %s has no scorable questions", a.ID)
	}
	score /= weightSum

	return Result{
		AttemptID:   a.ID,
		UserID:      a.UserID,
		ExamID:      a.ExamID,
		Score:       score,
		Passed:      score >= exam.PassingScore,
		Breakdown:   breakdown,
		FinalizedAt: now,
	}, nil
}
