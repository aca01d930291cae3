package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"studyquiz/internal/domain"
)

// QuizStore is the subset of the document store the publisher wraps.
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	PutQuiz(ctx context.Context, quiz domain.Quiz) error
	MarkCompleted(ctx context.Context, quizID string, result domain.QuizResult) error
	ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error)
}

// QuizFeed fans quiz changes out across instances over Redis pub/sub.
// Every message is the full quiz document on channel quiz:{quizID}:updates.
type QuizFeed struct {
	client *redis.Client
}

func NewQuizFeed(client *redis.Client) *QuizFeed {
	return &QuizFeed{client: client}
}

func (f *QuizFeed) Publish(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, updatesChannel(quiz.ID), data).Err()
}

// Subscribe returns decoded quiz documents published for quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *QuizFeed) Subscribe(ctx context.Context, quizID string) (<-chan domain.Quiz, func(), error) {
	pubsub := f.client.Subscribe(ctx, updatesChannel(quizID))
	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Quiz, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var quiz domain.Quiz
				if err := json.Unmarshal([]byte(msg.Payload), &quiz); err != nil {
					continue
				}
				select {
				case out <- quiz:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func updatesChannel(quizID string) string {
	return "quiz:" + quizID + ":updates"
}

// PublishingStore publishes every quiz write of the wrapped store to the feed.
type PublishingStore struct {
	QuizStore
	feed *QuizFeed
}

func NewPublishingStore(store QuizStore, feed *QuizFeed) *PublishingStore {
	return &PublishingStore{QuizStore: store, feed: feed}
}

func (s *PublishingStore) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := s.QuizStore.PutQuiz(ctx, quiz); err != nil {
		return err
	}
	// readers fall back to the store; a lost notification is not an error
	_ = s.feed.Publish(ctx, quiz)
	return nil
}

func (s *PublishingStore) MarkCompleted(ctx context.Context, quizID string, result domain.QuizResult) error {
	if err := s.QuizStore.MarkCompleted(ctx, quizID, result); err != nil {
		return err
	}
	quiz, err := s.QuizStore.LoadQuiz(ctx, quizID)
	if err != nil {
		return nil
	}
	_ = s.feed.Publish(ctx, quiz)
	return nil
}
