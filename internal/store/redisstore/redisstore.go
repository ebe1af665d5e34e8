// Package redisstore provides the Redis-backed session store used when
// sessions must survive process restarts. Each session is stored as one JSON
// value; the relay service serializes read-modify-write cycles per link code,
// so no optimistic locking is needed here.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
)

const keyPrefix = "tou:session:"

type Store struct {
	rdb *goredis.Client
}

func New(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

func sessionKey(code string) string {
	return keyPrefix + code
}

func (s *Store) Get(ctx context.Context, code string) (*domain.Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(code)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %q: %w", code, err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %q: %w", code, err)
	}
	return &session, nil
}

func (s *Store) Put(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %q: %w", session.LinkCode, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.LinkCode), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session %q: %w", session.LinkCode, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, sessionKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %q: %w", code, err)
	}
	return nil
}

func (s *Store) Codes(ctx context.Context) ([]string, error) {
	var codes []string
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		codes = append(codes, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan session keys: %w", err)
	}
	return codes, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	codes, err := s.Codes(ctx)
	if err != nil {
		return 0, err
	}
	return len(codes), nil
}
