// Package quiz defines the data model for quiz questions and validates
// quiz definitions handed to the session runtime by external callers.
package quiz

import "fmt"

// Kind distinguishes single-answer from multi-select questions.
type Kind string

const (
	Single   Kind = "single"
	Multiple Kind = "multiple"
)

const (
	minAnswers = 2
	maxAnswers = 12

	minTimeLimit     = 5
	maxTimeLimit     = 120
	defaultTimeLimit = 20

	minQuestions = 1
	maxQuestions = 50
)

// Question is an immutable quiz question plus its scoring key.
type Question struct {
	Prompt     string
	Answers    []string
	Correct    []int // indexes into Answers; single-choice carries exactly one
	TimeLimit  int   // seconds, clamped 5..120
	Kind       Kind
	ImageURL   string
}

// Quiz is an ordered, non-empty sequence of questions.
type Quiz struct {
	Questions []Question
}

// Normalize fills in defaults (time limit, kind) the same way the
// sanitized ingestion pipeline is assumed to, so a quiz built by tests
// or by a minimal caller behaves per spec even if it omits optional
// fields.
func (q Quiz) Normalize() Quiz {
	out := Quiz{Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		if question.Kind == "" {
			question.Kind = Single
		}
		if question.TimeLimit == 0 {
			question.TimeLimit = defaultTimeLimit
		}
		if question.TimeLimit < minTimeLimit {
			question.TimeLimit = minTimeLimit
		}
		if question.TimeLimit > maxTimeLimit {
			question.TimeLimit = maxTimeLimit
		}
		out.Questions[i] = question
	}
	return out
}

// Validate checks the structural invariants a sanitized quiz should
// already satisfy (the core treats Quiz as opaque input, but validating
// defensively here keeps test fixtures honest).
func (q Quiz) Validate() error {
	if len(q.Questions) < minQuestions || len(q.Questions) > maxQuestions {
		return fmt.Errorf("quiz must have between %d and %d questions, got %d", minQuestions, maxQuestions, len(q.Questions))
	}

	for i, question := range q.Questions {
		if err := question.validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}

	return nil
}

func (q Question) validate() error {
	if len(q.Answers) < minAnswers || len(q.Answers) > maxAnswers {
		return fmt.Errorf("must have between %d and %d answer choices, got %d", minAnswers, maxAnswers, len(q.Answers))
	}

	if len(q.Correct) == 0 {
		return fmt.Errorf("must specify at least one correct answer index")
	}

	seen := make(map[int]bool, len(q.Correct))
	for _, idx := range q.Correct {
		if idx < 0 || idx >= len(q.Answers) {
			return fmt.Errorf("correct index %d out of range", idx)
		}
		if seen[idx] {
			return fmt.Errorf("duplicate correct index %d", idx)
		}
		seen[idx] = true
	}

	switch q.Kind {
	case Single:
		if len(q.Correct) != 1 {
			return fmt.Errorf("single-choice question must have exactly one correct index")
		}
	case Multiple:
		// any non-empty subset is valid
	default:
		return fmt.Errorf("unknown question kind %q", q.Kind)
	}

	if q.TimeLimit < minTimeLimit || q.TimeLimit > maxTimeLimit {
		return fmt.Errorf("time limit %d out of range %d..%d", q.TimeLimit, minTimeLimit, maxTimeLimit)
	}

	return nil
}

// CorrectSet returns the correct indexes as a set, for multi-choice
// scoring comparisons.
func (q Question) CorrectSet() map[int]bool {
	set := make(map[int]bool, len(q.Correct))
	for _, idx := range q.Correct {
		set[idx] = true
	}
	return set
}
