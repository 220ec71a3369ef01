package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

const resultTTL = 24 * time.Hour

// CommandResult is the applied outcome of a lifecycle command. A retried
// command with the same transition id observes this instead of
// double-applying.
type CommandResult struct {
	Status    models.SessionStatus `json:"status"`
	AppliedAt time.Time            `json:"applied_at"`
	ErrCode   string               `json:"err_code,omitempty"`
	ErrMsg    string               `json:"err_msg,omitempty"`
}

// ResultStore records command outcomes keyed by (sessionID, transitionID).
type ResultStore interface {
	Get(ctx context.Context, sessionID uuid.UUID, transitionID string) (*CommandResult, error)
	Put(ctx context.Context, sessionID uuid.UUID, transitionID string, res CommandResult) error
}

// RedisResultStore keeps command results in Redis so retries are safe
// across instances.
type RedisResultStore struct {
	client *redis.Client
}

// NewRedisResultStore creates a Redis-backed result store.
func NewRedisResultStore(client *redis.Client) *RedisResultStore {
	return &RedisResultStore{client: client}
}

func resultKey(sessionID uuid.UUID, transitionID string) string {
	return "live:cmd:" + sessionID.String() + ":" + transitionID
}

// Get returns the stored result, or nil when the command has not run.
func (s *RedisResultStore) Get(ctx context.Context, sessionID uuid.UUID, transitionID string) (*CommandResult, error) {
	raw, err := s.client.Get(ctx, resultKey(sessionID, transitionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res CommandResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Put stores the result with a bounded TTL.
func (s *RedisResultStore) Put(ctx context.Context, sessionID uuid.UUID, transitionID string, res CommandResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, resultKey(sessionID, transitionID), raw, resultTTL).Err()
}

// MemoryResultStore is a process-local ResultStore for single-instance
// deployments and tests.
type MemoryResultStore struct {
	mu      sync.Mutex
	results map[string]CommandResult
}

// NewMemoryResultStore creates an in-memory result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string]CommandResult)}
}

// Get implements ResultStore.
func (s *MemoryResultStore) Get(_ context.Context, sessionID uuid.UUID, transitionID string) (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[resultKey(sessionID, transitionID)]; ok {
		r := res
		return &r, nil
	}
	return nil, nil
}

// Put implements ResultStore.
func (s *MemoryResultStore) Put(_ context.Context, sessionID uuid.UUID, transitionID string, res CommandResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resultKey(sessionID, transitionID)] = res
	return nil
}
