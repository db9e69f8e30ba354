package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"vexcel-xp-service/internal/app"
)

// ChallengeStore is a Redis-aware implementation of app.ChallengeRepository.
// Notes:
//   - Sessions themselves live in a local map; their countdown goroutines cannot
//     move between instances.
//   - Redis holds a liveness marker per user so other instances (and operators)
//     can see who is mid-challenge. The marker expires on its own if the
//     instance dies.
type ChallengeStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.ChallengeSession
}

func NewChallengeStore(client *redis.Client, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.ChallengeSession),
	}
}

func (s *ChallengeStore) Put(userID string, session *app.ChallengeSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(userID), session.ID(), s.ttl).Err()
}

func (s *ChallengeStore) Get(userID string) (*app.ChallengeSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

func (s *ChallengeStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
}

func (s *ChallengeStore) key(userID string) string {
	return "challenge:session:" + userID
}
