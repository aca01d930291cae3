package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"studyquiz/internal/app"
	"studyquiz/internal/domain"
	"studyquiz/internal/infra/memory"
)

type testEnv struct {
	store    *memory.DocumentStore
	sessions *memory.SessionStore
	service  *app.QuizService
	server   *httptest.Server
}

func newTestEnv(t *testing.T, source app.QuestionSource) *testEnv {
	t.Helper()
	store := memory.NewDocumentStore()
	if err := store.PutQuiz(context.Background(), sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	persist := app.PersistOptions{Timeout: time.Second, Retries: 0, Backoff: time.Millisecond}
	sessions := memory.NewSessionStore()
	service := app.NewQuizService(app.Deps{
		Sessions: sessions,
		Quizzes:  memory.NewQuizRepository(store, time.Minute),
		Store:    store,
		Results:  store,
		Progress: app.NewProgressTracker(store, app.DefaultStaleAfter, persist, nil, nil),
		Source:   source,
		Feed:     store,
		Persist:  persist,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, nil).ServeWS)
	NewAPIHandler(service, nil).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testEnv{store: store, sessions: sessions, service: service, server: server}
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketQuizFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "?quizId=quiz-1&userId=u1")

	readUntil(t, conn, "quizUpdated")
	state := readUntil(t, conn, "state")
	if state["state"] != "inProgress" {
		t.Fatalf("expected inProgress, got %v", state["state"])
	}

	send(t, conn, "answer", map[string]any{
		"questionIndex": 0,
		"answer":        map[string]any{"kind": "multipleChoice", "choice": 1},
	})
	feedback := readUntil(t, conn, "feedback")
	if feedback["isCorrect"] != true || feedback["completed"] != false {
		t.Fatalf("unexpected feedback %v", feedback)
	}

	send(t, conn, "finalize", nil)
	failure := readUntil(t, conn, "error")
	if failure["code"] != "quizIncomplete" {
		t.Fatalf("expected quizIncomplete, got %v", failure)
	}

	send(t, conn, "next", nil)
	send(t, conn, "answer", map[string]any{
		"questionIndex": 1,
		"answer":        map[string]any{"kind": "shortAnswer", "text": " paris "},
	})
	feedback = readUntil(t, conn, "feedback")
	if feedback["completed"] != true {
		t.Fatalf("expected quiz completed, got %v", feedback)
	}

	send(t, conn, "finalize", nil)
	result := readUntil(t, conn, "result")
	if result["score"] != float64(2) || result["totalQuestions"] != float64(2) {
		t.Fatalf("unexpected result %v", result)
	}

	results, err := env.store.ListResults(context.Background(), "u1", 0)
	if err != nil || len(results) != 1 {
		t.Fatalf("expected one stored result, got %d (%v)", len(results), err)
	}
	quiz, _ := env.store.LoadQuiz(context.Background(), "quiz-1")
	if !quiz.Completed {
		t.Fatalf("expected quiz marked completed")
	}
}

func TestWebSocketRejectsDifferentSecondAnswer(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "?quizId=quiz-1&userId=u2")
	readUntil(t, conn, "state")

	send(t, conn, "answer", map[string]any{
		"questionIndex": 0,
		"answer":        map[string]any{"kind": "multipleChoice", "choice": 0},
	})
	readUntil(t, conn, "feedback")
	send(t, conn, "answer", map[string]any{
		"questionIndex": 0,
		"answer":        map[string]any{"kind": "multipleChoice", "choice": 1},
	})
	failure := readUntil(t, conn, "error")
	if failure["code"] != "alreadyAnswered" {
		t.Fatalf("expected alreadyAnswered, got %v", failure)
	}
}

func TestWebSocketRejectsAnswerWithoutChoice(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "?quizId=quiz-1&userId=u4")
	readUntil(t, conn, "state")

	send(t, conn, "answer", map[string]any{
		"questionIndex": 0,
		"answer":        map[string]any{"kind": "multipleChoice"},
	})
	failure := readUntil(t, conn, "error")
	if failure["code"] != "incompleteSubmission" {
		t.Fatalf("expected incompleteSubmission, got %v", failure)
	}
	session, err := env.service.Session(domain.ProgressKey("u4", "quiz-1"))
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if len(session.Records()) != 0 {
		t.Fatalf("expected nothing recorded, got %+v", session.Records())
	}
}

func TestWebSocketLastDisconnectEndsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.dial(t, "?quizId=quiz-1&userId=u3")
	readUntil(t, first, "state")
	second := env.dial(t, "?quizId=quiz-1&userId=u3")
	readUntil(t, second, "state")

	send(t, first, "next", nil)
	readUntil(t, first, "state")
	first.Close()
	time.Sleep(100 * time.Millisecond)
	if _, ok := env.sessions.Get(domain.ProgressKey("u3", "quiz-1")); !ok {
		t.Fatalf("expected session kept while a socket follows it")
	}

	second.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected session ended after the last socket closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap, err := env.store.GetProgress(context.Background(), domain.ProgressKey("u3", "quiz-1"))
	if err != nil || snap.CurrentQuestionIndex != 1 {
		t.Fatalf("expected progress saved on session end, got %+v (%v)", snap, err)
	}
}

func TestWebSocketEphemeralRemediation(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "")

	quiz := sampleQuiz()
	quiz.ID = ""
	send(t, conn, "start", quiz)
	readUntil(t, conn, "state")

	send(t, conn, "answer", map[string]any{
		"questionIndex": 0,
		"answer":        map[string]any{"kind": "multipleChoice", "choice": 0},
	})
	readUntil(t, conn, "feedback")
	send(t, conn, "answer", map[string]any{
		"questionIndex": 1,
		"answer":        map[string]any{"kind": "shortAnswer", "text": "Paris"},
	})
	readUntil(t, conn, "feedback")
	send(t, conn, "finalize", nil)
	result := readUntil(t, conn, "result")
	if result["score"] != float64(1) {
		t.Fatalf("expected one correct answer, got %v", result)
	}

	send(t, conn, "remediate", nil)
	practice := readUntil(t, conn, "quizUpdated")
	title, _ := practice["title"].(string)
	if !strings.HasPrefix(title, app.RemediationTitlePrefix) {
		t.Fatalf("expected practice quiz, got title %q", title)
	}
	questions, _ := practice["questions"].([]any)
	if len(questions) != 1 {
		t.Fatalf("expected only the missed question, got %d", len(questions))
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg.Payload
		}
		if msg.Type == "error" && typ != "error" {
			t.Fatalf("unexpected error while waiting for %s: %v", typ, msg.Payload)
		}
	}
	t.Fatalf("no %s message", typ)
	return nil
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "quiz-1",
		UserID: "u1",
		Title:  "Basics",
		Questions: []domain.Question{
			{
				Type:          domain.TypeMultipleChoice,
				Prompt:        "What is 2 + 2?",
				Options:       []string{"3", "4", "5"},
				CorrectAnswer: 1,
				Explanation:   "Two plus two is four.",
			},
			{
				Type:    domain.TypeShortAnswer,
				Prompt:  "Capital of France?",
				Answers: []string{"Paris"},
			},
		},
	}
}
