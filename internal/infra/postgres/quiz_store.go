package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studyquiz/internal/domain"
)

// QuizStore keeps quiz documents as JSONB rows in the quizzes table.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// PutQuiz inserts the quiz or replaces the stored document.
func (s *QuizStore) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, user_id, data, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at`,
		quiz.ID, quiz.UserID, raw, quiz.Completed, quiz.CreatedAt, quiz.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put quiz: %w", err)
	}
	return nil
}

// MarkCompleted flags the quiz and embeds its result in one statement.
func (s *QuizStore) MarkCompleted(ctx context.Context, quizID string, result domain.QuizResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE quizzes
		SET completed = TRUE,
		    data = jsonb_set(jsonb_set(data, '{completed}', 'true'::jsonb), '{results}', $2::jsonb),
		    updated_at = $3
		WHERE id = $1`,
		quizID, raw, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// ListQuizzes returns the user's quizzes, newest first.
func (s *QuizStore) ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM quizzes WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}
