package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabepages/botkit/internal/metrics"
	"github.com/gabepages/botkit/internal/models"
)

// RedisStore persists profiles as JSON values in Redis.
type RedisStore struct {
	client *redis.Client
	saves  *keyLock
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, saves: newKeyLock()}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// profileKey returns the key for an identity's profile record.
func profileKey(id models.Identity) string {
	return fmt.Sprintf("profile:%s", id)
}

// Get retrieves a profile by identity.
func (s *RedisStore) Get(ctx context.Context, id models.Identity) (*models.Profile, error) {
	start := time.Now()
	defer func() { metrics.StoreLatency.WithLabelValues("redis", "get").Observe(time.Since(start).Seconds()) }()

	data, err := s.client.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	profile := &models.Profile{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Save upserts the full profile record. Profiles do not expire: unlike
// messages, a nickname learned once should survive restarts and idle users.
func (s *RedisStore) Save(ctx context.Context, profile *models.Profile) (models.Identity, error) {
	if profile == nil || profile.ID == "" {
		return "", ErrMissingIdentity
	}

	start := time.Now()
	defer func() { metrics.StoreLatency.WithLabelValues("redis", "save").Observe(time.Since(start).Seconds()) }()

	s.saves.Lock(profile.ID)
	defer s.saves.Unlock(profile.ID)

	data, err := json.Marshal(profile)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, profileKey(profile.ID), data, 0).Err(); err != nil {
		return "", err
	}

	return profile.ID, nil
}
