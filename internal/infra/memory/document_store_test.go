package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyquiz/internal/domain"
)

func TestDocumentStoreProgressOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	if _, err := store.GetProgress(ctx, "u1_quiz-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	first := domain.ProgressSnapshot{QuizID: "quiz-1", CurrentQuestionIndex: 0, LastUpdated: 1}
	second := domain.ProgressSnapshot{QuizID: "quiz-1", CurrentQuestionIndex: 2, LastUpdated: 2}
	_ = store.PutProgress(ctx, "u1_quiz-1", first)
	_ = store.PutProgress(ctx, "u1_quiz-1", second)

	got, err := store.GetProgress(ctx, "u1_quiz-1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if got.CurrentQuestionIndex != 2 || got.LastUpdated != 2 {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestDocumentStoreResultsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()
	for i, id := range []string{"r1", "r2", "r3"} {
		_ = store.AppendResult(ctx, domain.QuizResult{ID: id, UserID: "u1", Score: i})
	}
	_ = store.AppendResult(ctx, domain.QuizResult{ID: "other", UserID: "u2"})

	results, _ := store.ListResults(ctx, "u1", 2)
	if len(results) != 2 || results[0].ID != "r3" || results[1].ID != "r2" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestDocumentStoreFeedDeliversChanges(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()
	quiz := sampleQuiz()
	_ = store.PutQuiz(ctx, quiz)

	updates, cancel, err := store.Subscribe(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := store.MarkCompleted(ctx, quiz.ID, domain.QuizResult{Score: 1, TotalQuestions: 1}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	select {
	case got := <-updates:
		if !got.Completed || got.Results == nil || got.Results.Score != 1 {
			t.Fatalf("expected completed quiz, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a quiz update")
	}

	stored, _ := store.ListQuizzes(ctx, "u1")
	if len(stored) != 1 || !stored[0].Completed {
		t.Fatalf("expected the completed quiz listed, got %+v", stored)
	}
	if err := store.MarkCompleted(ctx, "missing", domain.QuizResult{}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}
