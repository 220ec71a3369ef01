package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store tracks issued publisher tokens and revoked identities. Provider
// tokens are stateless credentials, so revocation means refusing future
// mints for the identity (the moderation controller separately kicks the
// live connection).
type Store interface {
	SavePublisher(ctx context.Context, sessionID uuid.UUID, identity string, ttl time.Duration) error
	HasPublisher(ctx context.Context, sessionID uuid.UUID) (bool, error)
	ClearPublisher(ctx context.Context, sessionID uuid.UUID) error
	Revoke(ctx context.Context, sessionID uuid.UUID, identity string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID uuid.UUID, identity string) (bool, error)
}

func publisherKey(sessionID uuid.UUID) string {
	return "live:token:pub:" + sessionID.String()
}

func revokedKey(sessionID uuid.UUID, identity string) string {
	return "live:token:revoked:" + sessionID.String() + ":" + identity
}

// RedisStore is the Redis-backed token store; entries expire with the
// tokens they describe.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis token store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SavePublisher(ctx context.Context, sessionID uuid.UUID, identity string, ttl time.Duration) error {
	return s.client.Set(ctx, publisherKey(sessionID), identity, ttl).Err()
}

func (s *RedisStore) HasPublisher(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	_, err := s.client.Get(ctx, publisherKey(sessionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) ClearPublisher(ctx context.Context, sessionID uuid.UUID) error {
	return s.client.Del(ctx, publisherKey(sessionID)).Err()
}

func (s *RedisStore) Revoke(ctx context.Context, sessionID uuid.UUID, identity string, ttl time.Duration) error {
	return s.client.Set(ctx, revokedKey(sessionID, identity), "1", ttl).Err()
}

func (s *RedisStore) IsRevoked(ctx context.Context, sessionID uuid.UUID, identity string) (bool, error) {
	_, err := s.client.Get(ctx, revokedKey(sessionID, identity)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type memoryEntry struct {
	value  string
	expiry time.Time
}

// MemoryStore is a process-local token store for tests and single-instance
// deployments without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiry: time.Now().Add(ttl)}
}

func (s *MemoryStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiry) {
		delete(s.entries, key)
		return "", false
	}
	return e.value, true
}

func (s *MemoryStore) SavePublisher(_ context.Context, sessionID uuid.UUID, identity string, ttl time.Duration) error {
	s.set(publisherKey(sessionID), identity, ttl)
	return nil
}

func (s *MemoryStore) HasPublisher(_ context.Context, sessionID uuid.UUID) (bool, error) {
	_, ok := s.get(publisherKey(sessionID))
	return ok, nil
}

func (s *MemoryStore) ClearPublisher(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, publisherKey(sessionID))
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, sessionID uuid.UUID, identity string, ttl time.Duration) error {
	s.set(revokedKey(sessionID, identity), "1", ttl)
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, sessionID uuid.UUID, identity string) (bool, error) {
	_, ok := s.get(revokedKey(sessionID, identity))
	return ok, nil
}
