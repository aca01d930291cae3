package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"studyquiz/internal/domain"
)

// DocumentStore is an in-process document store with quiz, progress and
// result collections and a per-quiz change feed.
type DocumentStore struct {
	now func() time.Time

	mu          sync.RWMutex
	quizzes     map[string]domain.Quiz
	progress    map[string]domain.ProgressSnapshot
	results     []domain.QuizResult
	subscribers map[string]map[chan domain.Quiz]struct{}
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		now:         time.Now,
		quizzes:     make(map[string]domain.Quiz),
		progress:    make(map[string]domain.ProgressSnapshot),
		subscribers: make(map[string]map[chan domain.Quiz]struct{}),
	}
}

func (s *DocumentStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *DocumentStore) PutQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quiz.UpdatedAt.IsZero() {
		quiz.UpdatedAt = s.now()
	}
	s.quizzes[quiz.ID] = quiz
	s.broadcastLocked(quiz)
	return nil
}

func (s *DocumentStore) MarkCompleted(_ context.Context, quizID string, result domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Completed = true
	quiz.Results = &result
	quiz.UpdatedAt = s.now()
	s.quizzes[quizID] = quiz
	s.broadcastLocked(quiz)
	return nil
}

// ListQuizzes returns the user's quizzes, newest first.
func (s *DocumentStore) ListQuizzes(_ context.Context, userID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Quiz
	for _, q := range s.quizzes {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *DocumentStore) PutProgress(_ context.Context, key string, snapshot domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[key] = snapshot
	return nil
}

func (s *DocumentStore) GetProgress(_ context.Context, key string) (domain.ProgressSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.progress[key]
	if !ok {
		return domain.ProgressSnapshot{}, domain.ErrNotFound
	}
	return snapshot, nil
}

func (s *DocumentStore) AppendResult(_ context.Context, result domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *DocumentStore) ListResults(_ context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QuizResult
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].UserID != userID {
			continue
		}
		out = append(out, s.results[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Subscribe returns a channel of quiz documents for every later change of quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *DocumentStore) Subscribe(_ context.Context, quizID string) (<-chan domain.Quiz, func(), error) {
	ch := make(chan domain.Quiz, 8)

	s.mu.Lock()
	subs, ok := s.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Quiz]struct{})
		s.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(s.subscribers, quizID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *DocumentStore) broadcastLocked(quiz domain.Quiz) {
	for ch := range s.subscribers[quiz.ID] {
		select {
		case ch <- quiz:
		default:
			// drop the oldest document; only the latest state matters
			select {
			case <-ch:
			default:
			}
			ch <- quiz
		}
	}
}
