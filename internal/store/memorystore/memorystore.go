// Package memorystore provides the default volatile session store. Sessions
// live in process memory and vanish on restart, matching the original
// deployment's behavior.
package memorystore

import (
	"context"
	"sync"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func New() *Store {
	return &Store{sessions: make(map[string]*domain.Session)}
}

func (s *Store) Get(_ context.Context, code string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *Store) Put(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.LinkCode] = session.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, code)
	return nil
}

func (s *Store) Codes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	return codes, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
