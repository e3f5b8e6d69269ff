package quiz

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	q := Quiz{Questions: []Question{
		{Prompt: "p", Answers: []string{"a", "b"}, Correct: []int{0}},
	}}

	norm := q.Normalize()

	if norm.Questions[0].Kind != Single {
		t.Fatalf("expected default kind single, got %q", norm.Questions[0].Kind)
	}
	if norm.Questions[0].TimeLimit != defaultTimeLimit {
		t.Fatalf("expected default time limit %d, got %d", defaultTimeLimit, norm.Questions[0].TimeLimit)
	}
}

func TestNormalizeClampsTimeLimit(t *testing.T) {
	q := Quiz{Questions: []Question{
		{Prompt: "p", Answers: []string{"a", "b"}, Correct: []int{0}, TimeLimit: 1000},
	}}

	norm := q.Normalize()
	if norm.Questions[0].TimeLimit != maxTimeLimit {
		t.Fatalf("expected clamp to %d, got %d", maxTimeLimit, norm.Questions[0].TimeLimit)
	}
}

func TestValidateRejectsEmptyQuiz(t *testing.T) {
	if err := (Quiz{}).Validate(); err == nil {
		t.Fatal("expected error for empty quiz")
	}
}

func TestValidateRejectsTooFewAnswers(t *testing.T) {
	q := Quiz{Questions: []Question{
		{Prompt: "p", Answers: []string{"only one"}, Correct: []int{0}, Kind: Single, TimeLimit: 20},
	}}
	if err := q.Validate(); err == nil {
		t.Fatal("expected error for question with < 2 answers")
	}
}

func TestValidateRejectsSingleWithMultipleCorrect(t *testing.T) {
	q := Quiz{Questions: []Question{
		{Prompt: "p", Answers: []string{"a", "b", "c"}, Correct: []int{0, 1}, Kind: Single, TimeLimit: 20},
	}}
	if err := q.Validate(); err == nil {
		t.Fatal("expected error for single-choice with 2 correct indexes")
	}
}

func TestValidateAcceptsWellFormedQuiz(t *testing.T) {
	q := Quiz{Questions: []Question{
		{Prompt: "2+2?", Answers: []string{"3", "4", "5", "6"}, Correct: []int{1}, Kind: Single, TimeLimit: 20},
		{Prompt: "primes", Answers: []string{"2", "3", "4"}, Correct: []int{0, 1}, Kind: Multiple, TimeLimit: 20},
	}}
	if err := q.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
