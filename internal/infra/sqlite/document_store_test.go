package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"studyquiz/internal/domain"
)

func openTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "quiz.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testQuiz(id string, created time.Time) domain.Quiz {
	return domain.Quiz{
		ID:     id,
		UserID: "u1",
		Title:  "Capitals",
		Questions: []domain.Question{
			{Type: domain.TypeShortAnswer, Prompt: "Capital of France?", Answers: []string{"Paris"}},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestQuizzesRoundTripAndComplete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if _, err := store.LoadQuiz(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if err := store.PutQuiz(ctx, testQuiz("q1", base)); err != nil {
		t.Fatalf("put q1: %v", err)
	}
	if err := store.PutQuiz(ctx, testQuiz("q2", base.Add(time.Hour))); err != nil {
		t.Fatalf("put q2: %v", err)
	}

	result := domain.QuizResult{ID: "r1", UserID: "u1", QuizID: "q1", Score: 1, TotalQuestions: 1, CreatedAt: base.Add(2 * time.Hour)}
	if err := store.MarkCompleted(ctx, "q1", result); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := store.MarkCompleted(ctx, "missing", result); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}

	got, err := store.LoadQuiz(ctx, "q1")
	if err != nil {
		t.Fatalf("load q1: %v", err)
	}
	if !got.Completed || got.Results == nil || got.Results.Score != 1 {
		t.Fatalf("expected completed quiz with result, got %+v", got)
	}
	if got.Questions[0].Answers[0] != "Paris" {
		t.Fatalf("expected questions preserved, got %+v", got.Questions)
	}

	list, err := store.ListQuizzes(ctx, "u1")
	if err != nil {
		t.Fatalf("list quizzes: %v", err)
	}
	if len(list) != 2 || list[0].ID != "q2" {
		t.Fatalf("expected newest first, got %+v", list)
	}
}

func TestProgressAndResults(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.GetProgress(ctx, "u1_q1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	snapshot := domain.ProgressSnapshot{
		QuizID:               "q1",
		Answers:              []domain.AnswerRecord{{QuestionIndex: 0, Answer: domain.TextAnswer("paris")}},
		LastUpdated:          1000,
		CurrentQuestionIndex: 0,
	}
	if err := store.PutProgress(ctx, "u1_q1", snapshot); err != nil {
		t.Fatalf("put progress: %v", err)
	}
	snapshot.LastUpdated = 2000
	snapshot.CurrentQuestionIndex = 1
	if err := store.PutProgress(ctx, "u1_q1", snapshot); err != nil {
		t.Fatalf("overwrite progress: %v", err)
	}
	got, err := store.GetProgress(ctx, "u1_q1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if got.LastUpdated != 2000 || got.CurrentQuestionIndex != 1 || got.Answers[0].Answer.Text != "paris" {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		res := domain.QuizResult{ID: id, UserID: "u1", QuizID: "q1", Score: i, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.AppendResult(ctx, res); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	// a retried append is ignored
	if err := store.AppendResult(ctx, domain.QuizResult{ID: "r1", UserID: "u1", Score: 99, CreatedAt: base}); err != nil {
		t.Fatalf("repeat append: %v", err)
	}

	results, err := store.ListResults(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 || results[0].ID != "r3" || results[1].ID != "r2" {
		t.Fatalf("expected two newest results, got %+v", results)
	}
	all, _ := store.ListResults(ctx, "u1", 0)
	if len(all) != 3 {
		t.Fatalf("expected three results, got %d", len(all))
	}
	for _, r := range all {
		if r.ID == "r1" && r.Score != 0 {
			t.Fatalf("expected original r1 kept, got score %d", r.Score)
		}
	}
}
