package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "legion:session:"
	stateKeyPrefix   = "legion:oauth_state:"
)

// RedisSessionStore persists organization sessions in Redis so a restart
// does not drop active connections.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Get(ctx context.Context, orgID string) (Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+orgID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.OrgID, payload, 0).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, orgID string) error {
	n, err := s.client.Del(ctx, sessionKeyPrefix+orgID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisSessionStore) List(ctx context.Context) ([]Session, error) {
	var sessions []Session

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("load session: %w", err)
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}

// RedisStateStore keeps pending OAuth states with a native TTL, so the
// periodic sweep has nothing to do for this implementation.
type RedisStateStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ StateStore = (*RedisStateStore)(nil)

func NewRedisStateStore(client redis.UniversalClient, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func (s *RedisStateStore) Put(ctx context.Context, state string, st State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+state, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (State, error) {
	raw, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if err != nil {
		if err == redis.Nil {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("consume state: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

// DeleteExpired is a no-op: Redis expires state keys on its own.
func (s *RedisStateStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
