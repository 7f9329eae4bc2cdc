package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
)

// StateRepository provides the TTL key-value store backing the rollback
// flags, cached snapshots and notification dedup keys.
type StateRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStateRepository constructs a state repository.
func NewStateRepository(client *redis.Client, logger *zap.Logger) *StateRepository {
	return &StateRepository{client: client, logger: logger}
}

// Set marshals and stores a value with the given TTL.
func (r *StateRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal state value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get retrieves and unmarshals the stored value into dest.
func (r *StateRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal state value for %s: %w", key, err)
	}
	return nil
}

// Exists reports whether the key is present and unexpired.
func (r *StateRepository) Exists(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return false, nil
	}

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return count > 0, nil
}

// Delete removes the key.
func (r *StateRepository) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of the key, zero when absent.
func (r *StateRepository) TTL(ctx context.Context, key string) (time.Duration, error) {
	if r.client == nil {
		return 0, nil
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Close releases the underlying Redis connection if present.
func (r *StateRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
