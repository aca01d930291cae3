package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"studyquiz/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_owner_idx ON documents (collection, owner, created_at DESC);
`

const (
	collectionQuizzes  = "quizzes"
	collectionProgress = "progress"
	collectionResults  = "results"
)

// DocumentStore is a single-file store for quizzes, progress snapshots and
// results, used when no Postgres or Redis is configured.
type DocumentStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

func (s *DocumentStore) Close() error {
	return s.db.Close()
}

func (s *DocumentStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := s.get(ctx, s.db, collectionQuizzes, quizID, &quiz); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (s *DocumentStore) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.put(ctx, s.db, collectionQuizzes, quiz.ID, quiz.UserID, quiz.CreatedAt.UnixNano(), quiz)
}

// MarkCompleted rewrites the stored quiz inside a transaction.
func (s *DocumentStore) MarkCompleted(ctx context.Context, quizID string, result domain.QuizResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var quiz domain.Quiz
	if err := s.get(ctx, tx, collectionQuizzes, quizID, &quiz); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrQuizNotFound
		}
		return err
	}
	quiz.Completed = true
	quiz.Results = &result
	quiz.UpdatedAt = result.CreatedAt
	if err := s.put(ctx, tx, collectionQuizzes, quiz.ID, quiz.UserID, quiz.CreatedAt.UnixNano(), quiz); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DocumentStore) ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	err := s.list(ctx, collectionQuizzes, userID, 0, func(raw []byte) error {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return err
		}
		quizzes = append(quizzes, quiz)
		return nil
	})
	return quizzes, err
}

func (s *DocumentStore) PutProgress(ctx context.Context, key string, snapshot domain.ProgressSnapshot) error {
	return s.put(ctx, s.db, collectionProgress, key, "", snapshot.LastUpdated, snapshot)
}

func (s *DocumentStore) GetProgress(ctx context.Context, key string) (domain.ProgressSnapshot, error) {
	var snapshot domain.ProgressSnapshot
	if err := s.get(ctx, s.db, collectionProgress, key, &snapshot); err != nil {
		return domain.ProgressSnapshot{}, err
	}
	return snapshot, nil
}

// AppendResult inserts a result once; a repeated ID is ignored.
func (s *DocumentStore) AppendResult(ctx context.Context, result domain.QuizResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, owner, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO NOTHING`,
		collectionResults, result.ID, result.UserID, string(raw), result.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

func (s *DocumentStore) ListResults(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	var results []domain.QuizResult
	err := s.list(ctx, collectionResults, userID, limit, func(raw []byte) error {
		var result domain.QuizResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return err
		}
		results = append(results, result)
		return nil
	})
	return results, err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *DocumentStore) put(ctx context.Context, q querier, collection, id, owner string, createdAt int64, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (collection, id, owner, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
		collection, id, owner, string(raw), createdAt)
	if err != nil {
		return fmt.Errorf("put %s: %w", collection, err)
	}
	return nil
}

func (s *DocumentStore) get(ctx context.Context, q querier, collection, id string, dest any) error {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", collection, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", collection, err)
	}
	return nil
}

func (s *DocumentStore) list(ctx context.Context, collection, owner string, limit int, fn func([]byte) error) error {
	query := `SELECT data FROM documents WHERE collection = ? AND owner = ? ORDER BY created_at DESC`
	args := []any{collection, owner}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan %s: %w", collection, err)
		}
		if err := fn([]byte(raw)); err != nil {
			return fmt.Errorf("unmarshal %s: %w", collection, err)
		}
	}
	return rows.Err()
}
