package content

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// QuestionType is the closed set of supported question formats.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

// ParseQuestionType validates a question type string.
func ParseQuestionType(s string) (QuestionType, error) {
	switch QuestionType(s) {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return QuestionType(s), nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// Band is a difficulty band from 1 (easiest) to 5 (hardest).
type Band int

const (
	BandMin     Band = 1
	BandMax     Band = 5
	BandDefault Band = 3
)

// Valid reports whether the band is within the closed range.
func (b Band) Valid() bool {
	return b >= BandMin && b <= BandMax
}

// Clamp returns the band forced into the valid range.
func (b Band) Clamp() Band {
	if b < BandMin {
		return BandMin
	}
	if b > BandMax {
		return BandMax
	}
	return b
}

// Exam is a certification exam definition loaded from a content pack.
type Exam struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	PassingScore float64     `yaml:"passing_score"`
	TimeLimitMin int         `yaml:"time_limit_minutes"`
	Objectives   []Objective `yaml:"objectives"`
	Questions    []Question  `yaml:"questions"`
}

// TimeLimit returns the attempt duration for this exam.
func (e Exam) TimeLimit() time.Duration {
	return time.Duration(e.TimeLimitMin) * time.Minute
}

// Objective is one weighted content area of an exam.
type Objective struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// Choice is one selectable option of a multiple-choice question.
type Choice struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Question is a single assessment item.
type Question struct {
	ID          string
	ObjectiveID string
	Type        QuestionType
	Difficulty  Band
	Prompt      string
	Choices     []Choice
	Answer      StringList
	Explanation string
	Active      bool
}

// UnmarshalYAML applies pack defaults: difficulty 3, active true.
func (q *Question) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		ID          string       `yaml:"id"`
		ObjectiveID string       `yaml:"objective_id"`
		Type        QuestionType `yaml:"type"`
		Difficulty  Band         `yaml:"difficulty"`
		Prompt      string       `yaml:"prompt"`
		Choices     []Choice     `yaml:"choices"`
		Answer      StringList   `yaml:"answer"`
		Explanation string       `yaml:"explanation"`
		Active      *bool        `yaml:"active"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	q.ID = raw.ID
	q.ObjectiveID = raw.ObjectiveID
	q.Type = raw.Type
	q.Difficulty = raw.Difficulty
	q.Prompt = raw.Prompt
	q.Choices = raw.Choices
	q.Answer = raw.Answer
	q.Explanation = raw.Explanation
	q.Active = raw.Active == nil || *raw.Active
	if q.Difficulty == 0 {
		q.Difficulty = BandDefault
	}
	return nil
}

// StringList decodes either a single YAML scalar or a sequence of
// scalars. Question banks spell single answers as a bare string.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = StringList(ss)
		return nil
	}
	return fmt.Errorf("answer must be a string or list of strings")
}
