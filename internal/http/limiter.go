package httpapi

import (
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/zalagh/plancher-backend/internal/config"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
)

// NewLimiter picks the rate limiter for cfg: a Redis fixed window shared by
// every replica when RATE_REDIS_ADDR is set, process-local token buckets
// otherwise, and none when RATE_RPS is 0. The returned close func releases
// the Redis client and is never nil.
func NewLimiter(cfg config.Config) (middleware.Limiter, func() error) {
	noop := func() error { return nil }
	if cfg.RateRPS <= 0 {
		return nil, noop
	}
	if cfg.RateRedisAddr == "" {
		return middleware.NewMemoryLimiter(cfg.RateRPS, cfg.RateBurst), noop
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RateRedisAddr})
	return middleware.NewRedisLimiter(client, windowLimit(cfg), cfg.RateWindow), client.Close
}

// windowLimit converts the token-bucket settings into a per-window count:
// the sustained rate over one window, never below the burst.
func windowLimit(cfg config.Config) int {
	n := int(math.Ceil(cfg.RateRPS * cfg.RateWindow.Seconds()))
	if n < cfg.RateBurst {
		n = cfg.RateBurst
	}
	return n
}
