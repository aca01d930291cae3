package app

import (
	"fmt"
	"math/rand"
	"strings"

	"studyquiz/internal/domain"
)

// Evaluate reports whether a submitted answer is correct for q. Out of range
// values and answers of the wrong kind evaluate to false.
func Evaluate(q domain.Question, a domain.Answer) bool {
	if a.Kind != q.Type {
		return false
	}
	switch q.Type {
	case domain.TypeMultipleChoice:
		return a.Choice != nil && *a.Choice >= 0 && *a.Choice < len(q.Options) && *a.Choice == q.CorrectAnswer
	case domain.TypeShortAnswer:
		submitted := normalize(a.Text)
		if submitted == "" {
			return false
		}
		for _, accepted := range q.Answers {
			if normalize(accepted) == submitted {
				return true
			}
		}
		return false
	case domain.TypeMatching:
		return matchingCorrect(q.Pairs, a)
	case domain.TypePuzzle:
		if len(q.Steps) == 0 || len(a.Steps) != len(q.Steps) {
			return false
		}
		for _, ok := range a.Steps {
			if !ok {
				return false
			}
		}
		return true
	}
	return false
}

// matchingCorrect requires one entry per term, each pointing at the slot
// that displays that term's original definition.
func matchingCorrect(pairs []domain.MatchPair, a domain.Answer) bool {
	n := len(pairs)
	if n == 0 || len(a.Slots) != n || len(a.Matches) != n {
		return false
	}
	for term := 0; term < n; term++ {
		slot, ok := a.Matches[term]
		if !ok || slot < 0 || slot >= n {
			return false
		}
		if a.Slots[slot] != term {
			return false
		}
	}
	return true
}

// CheckSubmission rejects answers that may not be recorded yet.
func CheckSubmission(q domain.Question, a domain.Answer) error {
	if a.Kind != q.Type {
		return fmt.Errorf("%w: got %q for %q question", domain.ErrInvalidAnswer, a.Kind, q.Type)
	}
	switch q.Type {
	case domain.TypeMultipleChoice:
		if a.Choice == nil {
			return fmt.Errorf("%w: no option chosen", domain.ErrIncompleteSubmission)
		}
	case domain.TypeShortAnswer:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("%w: empty answer", domain.ErrIncompleteSubmission)
		}
	case domain.TypeMatching:
		if len(a.Slots) != len(q.Pairs) {
			return fmt.Errorf("%w: %d definition slots for %d pairs", domain.ErrIncompleteSubmission, len(a.Slots), len(q.Pairs))
		}
		if len(a.Matches) != len(q.Pairs) {
			return fmt.Errorf("%w: %d of %d terms matched", domain.ErrIncompleteSubmission, len(a.Matches), len(q.Pairs))
		}
	case domain.TypePuzzle:
		if len(a.Steps) != len(q.Steps) {
			return fmt.Errorf("%w: %d of %d steps reported", domain.ErrIncompleteSubmission, len(a.Steps), len(q.Steps))
		}
	}
	return nil
}

// ShuffleSlots returns a presentation order for n definitions: slot i shows
// the definition of pair order[i].
func ShuffleSlots(n int, rnd *rand.Rand) []int {
	return rnd.Perm(n)
}

// PuzzleAttempt walks the steps of a puzzle. Each step gets a single graded
// try: a correct answer advances, an incorrect one ends the attempt.
type PuzzleAttempt struct {
	steps   []domain.PuzzleStep
	results []bool
	current int
	done    bool
}

func NewPuzzleAttempt(q domain.Question) *PuzzleAttempt {
	return &PuzzleAttempt{
		steps:   q.Steps,
		results: make([]bool, len(q.Steps)),
		done:    len(q.Steps) == 0,
	}
}

// Try grades text against the current step. Tries after the attempt ended are ignored.
func (p *PuzzleAttempt) Try(text string) bool {
	if p.done {
		return false
	}
	correct := normalize(text) != "" && normalize(text) == normalize(p.steps[p.current].Answer)
	p.results[p.current] = correct
	if !correct || p.current == len(p.steps)-1 {
		p.done = true
		return correct
	}
	p.current++
	return true
}

// Current returns the index of the step awaiting an answer.
func (p *PuzzleAttempt) Current() int { return p.current }

// Hint returns the hint of the current step, if any.
func (p *PuzzleAttempt) Hint() string {
	if p.current >= len(p.steps) {
		return ""
	}
	return p.steps[p.current].Hint
}

func (p *PuzzleAttempt) Done() bool { return p.done }

// Answer returns the per-step results to submit to the session.
func (p *PuzzleAttempt) Answer() domain.Answer {
	steps := make([]bool, len(p.results))
	copy(steps, p.results)
	return domain.PuzzleAnswer(steps)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
