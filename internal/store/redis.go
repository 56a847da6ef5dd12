package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/city-weather-poster/internal/logger"
)

// DefaultRedisKey holds the state document when no key is configured.
const DefaultRedisKey = "city-weather-poster:state"

// RedisStore keeps the state document under a single key. SET replaces the
// value in one step, so readers never see a partial document.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to redisURL and verifies connectivity.
func NewRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if key == "" {
		key = DefaultRedisKey
	}

	logger.FromContext(ctx).InfoContext(ctx, "redis state store ready", "addr", opt.Addr, "db", opt.DB, "key", key)
	return &RedisStore{client: rc, key: key}, nil
}

func (s *RedisStore) Load(ctx context.Context) (RecentSelections, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RecentSelections{}, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return Decode(b)
}

func (s *RedisStore) Save(ctx context.Context, records RecentSelections) error {
	b, err := Encode(records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %v", ErrPersistence, s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
