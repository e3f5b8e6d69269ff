package quiz

import "math"

// Selection is a participant's submitted selection for the current
// question: exactly one of Single/Multi is meaningful, depending on
// the question's Kind.
type Selection struct {
	Single int
	Multi  []int
}

// Score is a pure function: given a question, a submitted selection,
// and the elapsed time since the question started (seconds), it
// returns whether the submission was correct and how many points it
// earns. It never mutates anything and has no knowledge of sessions,
// participants, or timers.
func Score(q Question, sel Selection, elapsedSeconds float64) (correct bool, points int) {
	ratio := timeRatio(elapsedSeconds, float64(q.TimeLimit))

	switch q.Kind {
	case Multiple:
		return scoreMultiple(q, sel.Multi, ratio)
	default:
		return scoreSingle(q, sel.Single, ratio)
	}
}

func timeRatio(elapsed, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	r := (limit - elapsed) / limit
	if r < 0 {
		return 0
	}
	return r
}

func scoreSingle(q Question, selected int, ratio float64) (bool, int) {
	correctIdx := q.Correct[0]
	if selected == correctIdx {
		return true, round(500 + 500*ratio)
	}
	return false, 0
}

func scoreMultiple(q Question, selected []int, ratio float64) (bool, int) {
	if len(selected) == 0 {
		return false, 0
	}

	correctSet := q.CorrectSet()
	selectedSet := make(map[int]bool, len(selected))
	for _, idx := range selected {
		selectedSet[idx] = true
	}

	for idx := range selectedSet {
		if !correctSet[idx] {
			return false, 0
		}
	}

	if len(selectedSet) == len(correctSet) {
		return true, round(500 + 500*ratio)
	}

	// partial credit: every selected index was correct, but not all
	// correct indexes were selected. No time bonus.
	fraction := float64(len(selectedSet)) / float64(len(correctSet))
	return false, round(fraction * 300)
}

func round(v float64) int {
	return int(math.Round(v))
}
