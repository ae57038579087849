// Package statusstore persists job progress snapshots in Redis with a
// per-key TTL.
package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/book-expert/narration-service/internal/core"
)

const keyPrefix = "narration:status:"

// RedisStore implements core.StatusStore on a Redis string per job. Entries
// expire on their own, so terminal snapshots need no explicit delete.
type RedisStore struct {
	client *redis.Client
}

// New creates a store on an existing Redis client.
func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Set writes the latest snapshot for a job, resetting its TTL. Each job is
// written by exactly one worker, so a plain SET is sufficient.
func (s *RedisStore) Set(ctx context.Context, key string, snapshot core.ProgressSnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}

	err = s.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store progress snapshot for job '%s': %w", key, err)
	}

	return nil
}

// Get returns the latest snapshot for a job, or core.ErrStatusNotFound once
// the entry has expired or was never written.
func (s *RedisStore) Get(ctx context.Context, key string) (core.ProgressSnapshot, error) {
	var snapshot core.ProgressSnapshot

	payload, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot, core.ErrStatusNotFound
	}

	if err != nil {
		return snapshot, fmt.Errorf("failed to read progress snapshot for job '%s': %w", key, err)
	}

	err = json.Unmarshal(payload, &snapshot)
	if err != nil {
		return snapshot, fmt.Errorf("failed to unmarshal progress snapshot for job '%s': %w", key, err)
	}

	return snapshot, nil
}
