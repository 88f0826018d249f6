package idempotency

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payhook/internal/config"
	"go.uber.org/zap"
)

// New picks the backend from configuration: redis when an address is set,
// otherwise the bounded in-process store.
func New(cfg config.Config, log *zap.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Named("idempotency").Info("using in-memory dedup store",
			zap.Int("capacity", cfg.IdempotencyCapacity),
		)
		return NewMemoryStore(cfg.IdempotencyCapacity), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})
	log.Named("idempotency").Info("using redis dedup store", zap.String("addr", addr))
	return NewRedisStore(client, cfg.IdempotencyTTL)
}
