package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studyquiz/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in process; Redis holds a liveness marker per session.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(key string, create func() *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, true
	}
	session := create()
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), "1", s.ttl).Err()
	return session, false
}

func (s *SessionStore) Get(key string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(key string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[key]; !ok || current != session {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), s.key(key)).Err()
}

func (s *SessionStore) key(key string) string {
	return "quiz:session:" + key
}
