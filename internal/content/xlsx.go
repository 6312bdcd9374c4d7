package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook column layout, one question per row:
//
//	A: id  B: objective_id  C: type  D: difficulty  E: prompt
//	F: choices ("a=text|b=text")  G: answer ("a" or "a|b")
//	H: explanation  I: active ("true"/"false", default true)
const workbookSheet = "Questions"

// ImportWorkbook reads a question bank from an XLSX workbook.
// Authoring teams deliver banks as spreadsheets; the loader merges them
// into the matching exam pack.
func ImportWorkbook(path string) ([]Question, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(workbookSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", workbookSheet, err)
	}

	var questions []Question
	for i, row := range rows {
		if i == 0 {
			continue // header row
		}
		if len(row) == 0 || strings.TrimSpace(cell(row, 0)) == "" {
			continue
		}

		q, err := questionFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}

	return questions, nil
}

func questionFromRow(row []string) (Question, error) {
	qtype, err := ParseQuestionType(strings.TrimSpace(cell(row, 2)))
	if err != nil {
		return Question{}, err
	}

	difficulty := BandDefault
	if s := strings.TrimSpace(cell(row, 3)); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Question{}, fmt.Errorf("difficulty %q: %w", s, err)
		}
		difficulty = Band(n)
	}

	choices, err := parseChoices(cell(row, 5))
	if err != nil {
		return Question{}, err
	}

	answer := splitPipe(cell(row, 6))
	if len(answer) == 0 {
		return Question{}, fmt.Errorf("missing answer")
	}

	active := true
	if s := strings.TrimSpace(cell(row, 8)); s != "" {
		active = strings.EqualFold(s, "true") || s == "1"
	}

	return Question{
		ID:          strings.TrimSpace(cell(row, 0)),
		ObjectiveID: strings.TrimSpace(cell(row, 1)),
		Type:        qtype,
		Difficulty:  difficulty,
		Prompt:      cell(row, 4),
		Choices:     choices,
		Answer:      answer,
		Explanation: cell(row, 7),
		Active:      active,
	}, nil
}

func parseChoices(s string) ([]Choice, error) {
	var choices []Choice
	for _, part := range splitPipe(s) {
		id, text, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("choice %q: want id=text", part)
		}
		choices = append(choices, Choice{ID: strings.TrimSpace(id), Text: strings.TrimSpace(text)})
	}
	return choices, nil
}

func splitPipe(s string) StringList {
	var out StringList
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
