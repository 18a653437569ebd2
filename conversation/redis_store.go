package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ctxgw:conversation:"

// RedisStore is the SharedStore backing Redis implementation, grounded on
// the namespaced, TTL-based key operations of the framework's Redis client
// wrapper, adapted to go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-constructed client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func storeKey(id string) string { return keyPrefix + id }

type wireState struct {
	ID        string                 `json:"id"`
	Round     int                    `json:"round"`
	MaxRounds int                    `json:"max_rounds"`
	Phase     string                 `json:"phase"`
	Context   map[string]interface{} `json:"context"`
	Query     string                 `json:"query"`
	Created   time.Time              `json:"created"`
	Updated   time.Time              `json:"updated"`
}

func toWire(s State) wireState {
	return wireState{
		ID: s.ID, Round: s.Round, MaxRounds: s.MaxRounds, Phase: string(s.Phase),
		Context: s.Context, Query: s.Query, Created: s.Created, Updated: s.Updated,
	}
}

func (w wireState) toState() State {
	return State{
		ID: w.ID, Round: w.Round, MaxRounds: w.MaxRounds, Phase: Phase(w.Phase),
		Context: w.Context, Query: w.Query, Created: w.Created, Updated: w.Updated,
	}
}

func (r *RedisStore) Save(ctx context.Context, s State, ttl time.Duration) error {
	data, err := json.Marshal(toWire(s))
	if err != nil {
		return fmt.Errorf("conversation: marshal state: %w", err)
	}
	if err := r.client.Set(ctx, storeKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("conversation: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (State, bool, error) {
	data, err := r.client.Get(ctx, storeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("conversation: redis get: %w", err)
	}

	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return State{}, false, fmt.Errorf("conversation: unmarshal state: %w", err)
	}
	return w.toState(), true, nil
}

func (r *RedisStore) Refresh(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, storeKey(id), ttl).Result()
	if err != nil {
		return fmt.Errorf("conversation: redis expire: %w", err)
	}
	if !ok {
		return fmt.Errorf("conversation: key %s not found for refresh", id)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, storeKey(id)).Err(); err != nil {
		return fmt.Errorf("conversation: redis del: %w", err)
	}
	return nil
}
