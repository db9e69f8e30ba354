package memory

import (
	"sync"

	"vexcel-xp-service/internal/app"
)

// ChallengeStore is an in-memory implementation of app.ChallengeRepository.
type ChallengeStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.ChallengeSession
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		sessions: make(map[string]*app.ChallengeSession),
	}
}

func (s *ChallengeStore) Put(userID string, session *app.ChallengeSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session
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
}
