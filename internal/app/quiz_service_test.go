package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studyquiz/internal/app"
	"studyquiz/internal/domain"
	"studyquiz/internal/infra/memory"
)

type stubSource struct {
	quiz  domain.Quiz
	err   error
	calls int
}

func (s *stubSource) Generate(_ context.Context, _ domain.GenerationRequest) (domain.Quiz, error) {
	s.calls++
	return s.quiz, s.err
}

type recordingArchive struct {
	stored map[string]string
}

func (a *recordingArchive) Store(_ context.Context, quizID, content string) error {
	if a.stored == nil {
		a.stored = make(map[string]string)
	}
	a.stored[quizID] = content
	return nil
}

type testEnv struct {
	service  *app.QuizService
	store    *memory.DocumentStore
	sessions *memory.SessionStore
	source   *stubSource
	archive  *recordingArchive
	clock    *fakeClock
}

func newTestService() testEnv {
	clock := newFakeClock()
	store := memory.NewDocumentStore()
	sessions := memory.NewSessionStore()
	source := &stubSource{quiz: domain.Quiz{Title: "Cells", Questions: choiceQuestions(3)}}
	archive := &recordingArchive{}
	tracker := app.NewProgressTrackerWithClock(store, 24*time.Hour, fastPersist(), nil, nil, clock.Now)
	service := app.NewQuizService(app.Deps{
		Sessions: sessions,
		Quizzes:  memory.NewQuizRepository(store, time.Minute),
		Store:    store,
		Results:  store,
		Progress: tracker,
		Source:   source,
		Archive:  archive,
		Feed:     store,
		Persist:  fastPersist(),
		Now:      clock.Now,
	})
	return testEnv{service: service, store: store, sessions: sessions, source: source, archive: archive, clock: clock}
}

func TestGenerateStoresQuizForSignedInUser(t *testing.T) {
	ctx := context.Background()
	env := newTestService()

	quiz, err := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "Mitochondria are the powerhouse"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if quiz.ID == "" || quiz.UserID != "u1" || quiz.Difficulty != domain.DifficultyMedium {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if _, err := env.store.LoadQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("expected stored quiz: %v", err)
	}
	if env.archive.stored[quiz.ID] != "Mitochondria are the powerhouse" {
		t.Fatalf("expected archived material")
	}

	guest, err := env.service.Generate(ctx, "", domain.GenerationRequest{Content: "notes"})
	if err != nil {
		t.Fatalf("generate guest: %v", err)
	}
	if _, err := env.store.LoadQuiz(ctx, guest.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected guest quiz not stored, got %v", err)
	}
}

func TestGenerateFailureSubstitutesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestService()

	env.source.err = errors.New("model overloaded")
	quiz, err := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected generation failed, got %v", err)
	}
	if len(quiz.Questions) != 0 {
		t.Fatalf("expected no questions, got %d", len(quiz.Questions))
	}

	env.source.err = nil
	env.source.quiz = domain.Quiz{Title: "Bad", Questions: []domain.Question{{Type: "essay", Prompt: "Discuss"}}}
	_, err = env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	if !errors.Is(err, domain.ErrGenerationFailed) || !errors.Is(err, domain.ErrMalformedQuestion) {
		t.Fatalf("expected malformed generation to fail, got %v", err)
	}

	calls := env.source.calls
	if _, err := env.service.Generate(ctx, "u1", domain.GenerationRequest{}); err == nil {
		t.Fatalf("expected invalid request to fail")
	}
	if env.source.calls != calls {
		t.Fatalf("expected no source call for an invalid request")
	}
}

func TestStartResumesProgress(t *testing.T) {
	ctx := context.Background()
	env := newTestService()
	quiz, err := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	session, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = session.SubmitAnswer(ctx, 0, domain.ChoiceAnswer(0))
	_, _ = session.Next(ctx)

	same, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil || same != session {
		t.Fatalf("expected the live session to be returned")
	}

	env.service.Leave(same)
	if _, ok := env.sessions.Get(session.Key()); !ok {
		t.Fatalf("expected the session kept while followed")
	}
	env.service.Leave(session)
	if env.sessions.Len() != 0 {
		t.Fatalf("expected the session ended with its last follower")
	}
	resumed, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed == session || resumed.Cursor() != 1 || len(resumed.Records()) != 1 {
		t.Fatalf("expected resumed progress, got %+v", resumed.View())
	}

	env.service.Leave(resumed)
	env.clock.Advance(25 * time.Hour)
	fresh, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start after staleness: %v", err)
	}
	if fresh.Cursor() != 0 || len(fresh.Records()) != 0 {
		t.Fatalf("expected stale progress ignored, got %+v", fresh.View())
	}

	if _, err := env.service.Start(ctx, "u1", "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestStartReplacesIdleLiveSession(t *testing.T) {
	ctx := context.Background()
	env := newTestService()
	quiz, err := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	session, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	views, cancel := session.Subscribe()
	defer cancel()

	answerAll(t, session, []bool{true, true, false})
	if _, err := session.FinalizeAndSummarize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := session.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	env.clock.Advance(25 * time.Hour)
	fresh, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if fresh == session {
		t.Fatalf("expected a new session after the staleness window")
	}
	if fresh.State() != app.StateInProgress || len(fresh.Records()) != 0 || fresh.Cursor() != 0 {
		t.Fatalf("expected a fresh attempt, got %+v", fresh.View())
	}
	if current, ok := env.sessions.Get(fresh.Key()); !ok || current != fresh || env.sessions.Len() != 1 {
		t.Fatalf("expected only the new session registered, len=%d", env.sessions.Len())
	}

	// the old session's subscribers are released
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-views:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected the old session closed")
		}
	}
}

func TestSubscribeRacingEndDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	env := newTestService()
	quiz, _ := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	session, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			views, cancel := session.Subscribe()
			defer cancel()
			for range views {
			}
		}()
	}
	env.service.End(session.Key())
	wg.Wait()

	views, _ := session.Subscribe()
	if _, ok := <-views; ok {
		t.Fatalf("expected a closed channel from an ended session")
	}
}

func TestRemediateStartsFreshSession(t *testing.T) {
	ctx := context.Background()
	env := newTestService()
	quiz, _ := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	session, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answerAll(t, session, []bool{true, false, false})
	if _, err := session.FinalizeAndSummarize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	practice, err := env.service.Remediate(ctx, session)
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if practice.State() != app.StateInProgress || len(practice.Quiz().Questions) != 2 || len(practice.Records()) != 0 {
		t.Fatalf("unexpected practice session %+v", practice.View())
	}
	if _, err := env.store.LoadQuiz(ctx, practice.Quiz().ID); err != nil {
		t.Fatalf("expected practice quiz stored: %v", err)
	}

	history, err := env.service.History(ctx, "u1", 10)
	if err != nil || len(history) != 1 || history[0].Score != 1 {
		t.Fatalf("unexpected history %+v err=%v", history, err)
	}
	stats, err := env.service.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzes != 2 || stats.CompletedQuizzes != 1 || stats.CompletionRate != 50 || stats.AverageScore != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSessionFollowsQuizFeed(t *testing.T) {
	ctx := context.Background()
	env := newTestService()
	quiz, _ := env.service.Generate(ctx, "u1", domain.GenerationRequest{Content: "notes"})
	session, err := env.service.Start(ctx, "u1", quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	views, cancel := session.Subscribe()
	defer cancel()
	<-views

	// the watcher subscribes asynchronously; republish until the view changes
	updated := quiz
	updated.Title = "Cells revised"
	deadline := time.After(2 * time.Second)
	for {
		env.clock.Advance(time.Second)
		updated.UpdatedAt = env.clock.Now()
		_ = env.store.PutQuiz(ctx, updated)
		select {
		case view := <-views:
			if view.Title == "Cells revised" {
				env.service.End(session.Key())
				return
			}
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("expected quiz update to reach the session")
		}
	}
}

func TestStartEphemeralForGuest(t *testing.T) {
	ctx := context.Background()
	env := newTestService()
	session, err := env.service.StartEphemeral(ctx, "", domain.Quiz{Title: "Local", Questions: choiceQuestions(1)})
	if err != nil {
		t.Fatalf("start ephemeral: %v", err)
	}
	if _, err := env.service.Session(session.Key()); err != nil {
		t.Fatalf("expected registered session: %v", err)
	}
	if _, err := env.service.StartEphemeral(ctx, "", domain.Quiz{Title: "Empty"}); !errors.Is(err, domain.ErrMalformedQuestion) {
		t.Fatalf("expected malformed question for empty quiz, got %v", err)
	}
	if _, err := env.service.Session("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}
