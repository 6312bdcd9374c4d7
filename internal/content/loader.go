// Package content is the read-only content store: exam definitions,
// weighted objectives, and question banks loaded from the filesystem.
package content

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// WeightEpsilon is the tolerance for the sum-to-one objective weight
// invariant, enforced at load time rather than per request.
const WeightEpsilon = 1e-6

// Loader loads and caches exam content packs from the filesystem.
// Exams are YAML pack files; question banks may additionally arrive as
// XLSX workbooks named <examID>.questions.xlsx next to the pack.
type Loader struct {
	rootDir string
	exams   map[string]*Exam
	// byObjective indexes active questions per (examID, objectiveID).
	byObjective map[string]map[string][]Question
	mu          sync.RWMutex
}

// NewLoader creates a loader and reads all content under rootDir.
// A pack that fails validation aborts the load: serving an exam with a
// broken weight table would corrupt every downstream computation.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:     rootDir,
		exams:       make(map[string]*Exam),
		byObjective: make(map[string]map[string][]Question),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded", "exams", len(l.exams))
	return l, nil
}

func (l *Loader) loadAll() error {
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadPack(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// XLSX banks merge into already-loaded exams, so they go second.
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if strings.HasSuffix(path, ".questions.xlsx") {
			return l.loadWorkbook(path)
		}
		return nil
	})
}

func (l *Loader) loadPack(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Schema check runs against the generic document so error positions
	// refer to the pack, not to Go struct internals.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := checkSchema(doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var exam Exam
	if err := yaml.Unmarshal(data, &exam); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := validateExam(&exam); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	l.mu.Lock()
	l.exams[exam.ID] = &exam
	l.reindexLocked(&exam)
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadWorkbook(path string) error {
	examID := strings.TrimSuffix(filepath.Base(path), ".questions.xlsx")

	l.mu.Lock()
	defer l.mu.Unlock()

	exam, ok := l.exams[examID]
	if !ok {
		slog.Warn("skipping workbook with no matching exam pack", "path", path)
		return nil
	}

	questions, err := ImportWorkbook(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	exam.Questions = append(exam.Questions, questions...)
	if err := validateExam(exam); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	l.reindexLocked(exam)

	slog.Info("question bank imported", "exam_id", examID, "questions", len(questions))
	return nil
}

func (l *Loader) reindexLocked(exam *Exam) {
	idx := make(map[string][]Question)
	for _, q := range exam.Questions {
		if !q.Active {
			continue
		}
		idx[q.ObjectiveID] = append(idx[q.ObjectiveID], q)
	}
	l.byObjective[exam.ID] = idx
}

// validateExam enforces the semantic invariants the JSON schema cannot:
// the sum-to-one weight rule, unique IDs, and objective references.
func validateExam(exam *Exam) error {
	sum := 0.0
	objectives := make(map[string]bool, len(exam.Objectives))
	for _, o := range exam.Objectives {
		if objectives[o.ID] {
			return fmt.Errorf("duplicate objective %q", o.ID)
		}
		objectives[o.ID] = true
		if o.Weight <= 0 || o.Weight > 1 {
			return fmt.Errorf("objective %q weight %v outside (0,1]", o.ID, o.Weight)
		}
		sum += o.Weight
	}
	if math.Abs(sum-1.0) > WeightEpsilon {
		return fmt.Errorf("objective weights sum to %v, want 1.0 ±%v", sum, WeightEpsilon)
	}

	seen := make(map[string]bool, len(exam.Questions))
	for _, q := range exam.Questions {
		if seen[q.ID] {
			return fmt.Errorf("duplicate question %q", q.ID)
		}
		seen[q.ID] = true
		if !objectives[q.ObjectiveID] {
			return fmt.Errorf("question %q references unknown objective %q", q.ID, q.ObjectiveID)
		}
		if _, err := ParseQuestionType(string(q.Type)); err != nil {
			return fmt.Errorf("question %q: %w", q.ID, err)
		}
		if !q.Difficulty.Valid() {
			return fmt.Errorf("question %q difficulty %d outside [1,5]", q.ID, q.Difficulty)
		}
		if len(q.Answer) == 0 {
			return fmt.Errorf("question %q has no answer", q.ID)
		}
	}
	return nil
}

// Exam returns an exam definition by ID.
func (l *Loader) Exam(id string) (Exam, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.exams[id]
	if !ok {
		return Exam{}, false
	}
	return *e, true
}

// ObjectiveWeights returns the weight table for an exam.
func (l *Loader) ObjectiveWeights(examID string) (map[string]float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.exams[examID]
	if !ok {
		return nil, false
	}
	weights := make(map[string]float64, len(e.Objectives))
	for _, o := range e.Objectives {
		weights[o.ID] = o.Weight
	}
	return weights, true
}

// QuestionPool returns the active questions for one objective whose
// difficulty falls within one band of the target. A band is a window,
// not an exact level: a learner targeting 4 still sees 3s and 5s.
func (l *Loader) QuestionPool(examID, objectiveID string, target Band) []Question {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byObjective[examID]
	if !ok {
		return nil
	}

	var pool []Question
	for _, q := range idx[objectiveID] {
		d := q.Difficulty - target
		if d >= -1 && d <= 1 {
			pool = append(pool, q)
		}
	}
	return pool
}

// Question looks up a single question within an exam.
func (l *Loader) Question(examID, questionID string) (Question, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.exams[examID]
	if !ok {
		return Question{}, false
	}
	for _, q := range e.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// AllExams returns the IDs of every loaded exam.
func (l *Loader) AllExams() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.exams))
	for id := range l.exams {
		ids = append(ids, id)
	}
	return ids
}
