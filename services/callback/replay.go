package callback

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"leadbroker/pkg/config"
	"leadbroker/pkg/rediskey"
)

// ReplayGuard flags a (timestamp, signature) pair the second time it is
// presented within the replay window. Orthogonal to signature correctness: a
// valid signature seen twice is still a replay.
type ReplayGuard interface {
	Seen(ctx context.Context, timestamp int64, sig string) (bool, error)
}

type redisReplayGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReplayGuard(rdb *redis.Client, cfg *config.Config) ReplayGuard {
	ttl := cfg.Signature.ReplayTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisReplayGuard{rdb: rdb, ttl: ttl}
}

// Seen claims the key atomically; first use stores it and reports false.
func (g *redisReplayGuard) Seen(ctx context.Context, timestamp int64, sig string) (bool, error) {
	stored, err := g.rdb.SetNX(ctx, rediskey.BuildReplayKey(timestamp, sig), 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return !stored, nil
}

// RateLimiter bounds inbound callbacks per advertiser.
type RateLimiter interface {
	Allow(ctx context.Context, advertiserID string) (bool, error)
}

type redisRateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, cfg *config.Config) RateLimiter {
	limit := int64(cfg.Callback.RateLimit)
	if limit <= 0 {
		limit = 120
	}
	window := cfg.Callback.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return &redisRateLimiter{rdb: rdb, limit: limit, window: window}
}

func (r *redisRateLimiter) Allow(ctx context.Context, advertiserID string) (bool, error) {
	key := rediskey.BuildCallbackRateLimitKey(advertiserID)

	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, key, r.window).Err(); err != nil {
			zap.L().Warn("failed to set rate limit window", zap.String("key", key), zap.Error(err))
		}
	}

	return n <= r.limit, nil
}
