package engine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/certlab/engine/internal/content"
)

// Grade decides whether a submitted answer is correct. Multiple-choice
// answers are compared as choice-ID sets, so "a,c" and "c, a" are the
// same selection. Everything else matches any accepted answer after
// Unicode normalization and case folding, which keeps short answers
// tolerant of composed characters and casing without fuzzy matching.
func Grade(q content.Question, answer string) bool {
	switch q.Type {
	case content.MultipleChoice:
		return sameSelection(q.Answer, answer)
	default:
		got := normalizeAnswer(answer)
		for _, want := range q.Answer {
			if normalizeAnswer(want) == got {
				return true
			}
		}
		return false
	}
}

// sameSelection compares a comma-separated selection against the
// accepted choice IDs as sets.
func sameSelection(want content.StringList, answer string) bool {
	selected := make(map[string]bool)
	for _, part := range strings.Split(answer, ",") {
		if id := normalizeAnswer(part); id != "" {
			selected[id] = true
		}
	}
	if len(selected) != len(want) {
		return false
	}
	for _, id := range want {
		if !selected[normalizeAnswer(id)] {
			return false
		}
	}
	return true
}

func normalizeAnswer(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}
