package idempotency

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	pendingMarker   = "pending"
	committedMarker = "committed"

	// A claim that is neither committed nor released within this window is
	// assumed crashed and expires so redelivery can retry it.
	pendingTTL = 2 * time.Minute
)

const releasePendingScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisStore is the multi-instance dedup ledger. Claims use SET NX so only
// one instance processes a delivery; committed markers expire after the
// configured TTL instead of FIFO eviction.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	script *redis.Script
}

func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		script: redis.NewScript(releasePendingScript),
	}, nil
}

func (s *RedisStore) TryBegin(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, s.redisKey(key), pendingMarker, pendingTTL).Result()
}

func (s *RedisStore) Commit(ctx context.Context, key string) error {
	return s.client.Set(ctx, s.redisKey(key), committedMarker, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.script.Run(ctx, s.client, []string{s.redisKey(key)}, pendingMarker).Err()
}

func (s *RedisStore) redisKey(key string) string {
	return "payhook:webhook:" + key
}
