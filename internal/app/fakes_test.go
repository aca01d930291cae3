package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"studyquiz/internal/domain"
	"studyquiz/internal/infra/memory"
)

var errStoreDown = errors.New("store unavailable")

// flakyStore wraps the memory document store and fails writes while down.
type flakyStore struct {
	*memory.DocumentStore

	mu    sync.Mutex
	down  bool
	puts  int
	fails int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{DocumentStore: memory.NewDocumentStore()}
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		s.fails++
	}
	return s.down
}

func (s *flakyStore) PutProgress(ctx context.Context, key string, snapshot domain.ProgressSnapshot) error {
	if s.failing() {
		return errStoreDown
	}
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.DocumentStore.PutProgress(ctx, key, snapshot)
}

func (s *flakyStore) AppendResult(ctx context.Context, result domain.QuizResult) error {
	if s.failing() {
		return errStoreDown
	}
	return s.DocumentStore.AppendResult(ctx, result)
}

func (s *flakyStore) MarkCompleted(ctx context.Context, quizID string, result domain.QuizResult) error {
	if s.failing() {
		return errStoreDown
	}
	return s.DocumentStore.MarkCompleted(ctx, quizID, result)
}

func (s *flakyStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *flakyStore) failCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fails
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mixedQuiz has one question of every type.
func mixedQuiz(id string) domain.Quiz {
	return domain.Quiz{
		ID:     id,
		UserID: "u1",
		Title:  "Mixed",
		Questions: []domain.Question{
			{Type: domain.TypeMultipleChoice, Prompt: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1, Explanation: "basic addition"},
			{Type: domain.TypeShortAnswer, Prompt: "Capital of France?", Answers: []string{"Paris"}},
			{Type: domain.TypeMatching, Prompt: "Match", Pairs: []domain.MatchPair{{Term: "A", Definition: "1"}, {Term: "B", Definition: "2"}}},
			{Type: domain.TypePuzzle, Prompt: "Solve", Steps: []domain.PuzzleStep{{Prompt: "1+1", Answer: "2"}, {Prompt: "2*3", Answer: "6"}}},
			{Type: domain.TypeMultipleChoice, Prompt: "Sky?", Options: []string{"blue", "green"}, CorrectAnswer: 0},
		},
	}
}
