package app

import (
	"fmt"
	"sort"
	"time"

	"studyquiz/internal/domain"
)

// Ledger maps question index to the submitted answer of one attempt.
// It is not safe for concurrent use; Session guards it.
type Ledger struct {
	questions []domain.Question
	now       func() time.Time
	entries   map[int]domain.AnswerRecord
}

func NewLedger(questions []domain.Question, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		questions: questions,
		now:       now,
		entries:   make(map[int]domain.AnswerRecord),
	}
}

// Record inserts or replaces the answer for index and marks it unevaluated.
// Recording an identical value leaves the entry untouched.
func (l *Ledger) Record(index int, answer domain.Answer) error {
	if index < 0 || index >= len(l.questions) {
		return fmt.Errorf("%w: %d", domain.ErrQuestionOutOfRange, index)
	}
	if existing, ok := l.entries[index]; ok && existing.Answer.Equal(answer) {
		return nil
	}
	l.entries[index] = domain.AnswerRecord{
		QuestionIndex: index,
		Answer:        answer,
		UpdatedAt:     l.now(),
	}
	return nil
}

func (l *Ledger) Get(index int) (domain.AnswerRecord, bool) {
	rec, ok := l.entries[index]
	return rec, ok
}

// EvaluateAll sets every entry's correctness flag, recomputing from scratch,
// and returns the entries in index order.
func (l *Ledger) EvaluateAll() []domain.AnswerRecord {
	for idx, rec := range l.entries {
		correct := Evaluate(l.questions[idx], rec.Answer)
		rec.Correct = &correct
		l.entries[idx] = rec
	}
	return l.Records()
}

// IsComplete reports whether there is exactly one entry per index in [0, total).
func (l *Ledger) IsComplete(total int) bool {
	if total <= 0 || len(l.entries) != total {
		return false
	}
	for i := 0; i < total; i++ {
		if _, ok := l.entries[i]; !ok {
			return false
		}
	}
	return true
}

func (l *Ledger) Len() int { return len(l.entries) }

// Records returns a copy of the entries sorted by question index.
func (l *Ledger) Records() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(l.entries))
	for _, rec := range l.entries {
		if rec.Correct != nil {
			c := *rec.Correct
			rec.Correct = &c
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out
}

// Restore loads persisted records, dropping indices outside the question set.
// Later duplicates of an index win.
func (l *Ledger) Restore(records []domain.AnswerRecord) {
	for _, rec := range records {
		if rec.QuestionIndex < 0 || rec.QuestionIndex >= len(l.questions) {
			continue
		}
		rec.Correct = nil
		l.entries[rec.QuestionIndex] = rec
	}
}
