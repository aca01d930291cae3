package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"studyquiz/internal/domain"
	"studyquiz/internal/observability"
)

// DefaultStaleAfter is how long a progress snapshot stays resumable.
const DefaultStaleAfter = 24 * time.Hour

// ProgressTracker mirrors the ledger and cursor of an attempt to a ProgressStore.
// Every operation is a no-op for anonymous users (empty user id).
type ProgressTracker struct {
	store      ProgressStore
	staleAfter time.Duration
	now        func() time.Time
	persist    persister
}

func NewProgressTracker(store ProgressStore, staleAfter time.Duration, opts PersistOptions, logger *zap.Logger, metrics *observability.Metrics) *ProgressTracker {
	return NewProgressTrackerWithClock(store, staleAfter, opts, logger, metrics, time.Now)
}

// NewProgressTrackerWithClock allows deterministic staleness checks in tests.
func NewProgressTrackerWithClock(store ProgressStore, staleAfter time.Duration, opts PersistOptions, logger *zap.Logger, metrics *observability.Metrics, now func() time.Time) *ProgressTracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &ProgressTracker{
		store:      store,
		staleAfter: staleAfter,
		now:        now,
		persist:    newPersister(opts, logger, metrics),
	}
}

// StaleAfter is the window within which an attempt can be resumed.
func (p *ProgressTracker) StaleAfter() time.Duration {
	return p.staleAfter
}

// Save overwrites the snapshot for (userID, quizID).
func (p *ProgressTracker) Save(ctx context.Context, userID, quizID string, records []domain.AnswerRecord, cursor int) error {
	if userID == "" || quizID == "" {
		return nil
	}
	key := domain.ProgressKey(userID, quizID)
	snapshot := domain.ProgressSnapshot{
		QuizID:               quizID,
		Answers:              records,
		LastUpdated:          p.now().UnixMilli(),
		CurrentQuestionIndex: cursor,
	}
	return p.persist.do(ctx, "save_progress", key, func(ctx context.Context) error {
		return p.store.PutProgress(ctx, key, snapshot)
	})
}

// Load returns the snapshot for (userID, quizID), or nil when there is none,
// it fails shape validation, or it is older than the staleness window.
func (p *ProgressTracker) Load(ctx context.Context, userID, quizID string) (*domain.ProgressSnapshot, error) {
	if userID == "" || quizID == "" {
		return nil, nil
	}
	key := domain.ProgressKey(userID, quizID)

	var snapshot domain.ProgressSnapshot
	missing := false
	err := p.persist.do(ctx, "load_progress", key, func(ctx context.Context) error {
		s, err := p.store.GetProgress(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			missing = true
			return nil
		}
		if err != nil {
			return err
		}
		snapshot = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, nil
	}
	if err := checkSnapshot(snapshot, quizID); err != nil {
		p.persist.log.Info("ignoring invalid progress snapshot", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	age := p.now().Sub(time.UnixMilli(snapshot.LastUpdated))
	if age > p.staleAfter {
		p.persist.log.Debug("ignoring stale progress snapshot", zap.String("key", key), zap.Duration("age", age))
		return nil, nil
	}
	return &snapshot, nil
}

func checkSnapshot(s domain.ProgressSnapshot, quizID string) error {
	if s.QuizID != quizID {
		return fmt.Errorf("snapshot for quiz %q", s.QuizID)
	}
	if s.LastUpdated <= 0 {
		return errors.New("missing lastUpdated")
	}
	if s.CurrentQuestionIndex < 0 {
		return fmt.Errorf("negative cursor %d", s.CurrentQuestionIndex)
	}
	seen := make(map[int]struct{}, len(s.Answers))
	for _, rec := range s.Answers {
		if rec.QuestionIndex < 0 {
			return fmt.Errorf("negative question index %d", rec.QuestionIndex)
		}
		if _, dup := seen[rec.QuestionIndex]; dup {
			return fmt.Errorf("duplicate question index %d", rec.QuestionIndex)
		}
		seen[rec.QuestionIndex] = struct{}{}
		switch rec.Answer.Kind {
		case domain.TypeMultipleChoice, domain.TypeShortAnswer, domain.TypeMatching, domain.TypePuzzle:
		default:
			return fmt.Errorf("unknown answer kind %q", rec.Answer.Kind)
		}
	}
	return nil
}
