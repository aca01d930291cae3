package app

import (
	"context"

	"studyquiz/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizStore is the quizzes collection of the document store.
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	PutQuiz(ctx context.Context, quiz domain.Quiz) error
	// MarkCompleted sets completed and results on the quiz document.
	MarkCompleted(ctx context.Context, quizID string, result domain.QuizResult) error
	ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error)
}

// ProgressStore is the progress collection. GetProgress returns
// domain.ErrNotFound when the key has no document.
type ProgressStore interface {
	PutProgress(ctx context.Context, key string, snapshot domain.ProgressSnapshot) error
	GetProgress(ctx context.Context, key string) (domain.ProgressSnapshot, error)
}

// ResultStore is the append-only results collection.
type ResultStore interface {
	AppendResult(ctx context.Context, result domain.QuizResult) error
	// ListResults returns a user's results, newest first. limit <= 0 means all.
	ListResults(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error)
}

// QuizFeed delivers full quiz documents whenever a quiz changes.
// The caller must invoke the returned cancel function to avoid leaks.
type QuizFeed interface {
	Subscribe(ctx context.Context, quizID string) (<-chan domain.Quiz, func(), error)
}

// QuestionSource produces a titled question list from study material.
type QuestionSource interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Quiz, error)
}

// MaterialArchive keeps the study material a quiz was generated from.
type MaterialArchive interface {
	Store(ctx context.Context, quizID, content string) error
}

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	// GetOrCreate returns the session under key, registering create() if absent.
	GetOrCreate(key string, create func() *Session) (*Session, bool)
	Get(key string) (*Session, bool)
	// Delete unregisters key while it still maps to session.
	Delete(key string, session *Session)
}
