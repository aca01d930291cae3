package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"studyquiz/internal/domain"
)

// ResultStore appends finished attempts to quiz_results. Rows are never
// updated.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) AppendResult(ctx context.Context, result domain.QuizResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_results (id, user_id, quiz_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		result.ID, result.UserID, result.QuizID, raw, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// ListResults returns up to limit results of the user, newest first. A
// non-positive limit returns all of them.
func (s *ResultStore) ListResults(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	query := `SELECT data FROM quiz_results WHERE user_id=$1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.QuizResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var result domain.QuizResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
