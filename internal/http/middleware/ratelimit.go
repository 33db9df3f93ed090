// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements per-caller rate limiting behind a small Limiter
// interface with two implementations:
//
//   - MemoryLimiter: process-local token buckets (golang.org/x/time/rate) with
//     opportunistic eviction of idle buckets.
//   - RedisLimiter: a fixed-window counter in Redis (INCR + PEXPIRE), shared by
//     every replica pointed at the same Redis.
//
// RateLimit turns a Limiter into Gin middleware. Idempotent replays flagged by
// Idempotency are never limited. When the limiter itself fails (Redis down)
// the request is let through and the failure logged.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated actor ("user:admin:<id>",
// "user:employee:<id>") when RequireRole ran first, else by client IP.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyUserID); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-key token-bucket limiter. Safe for concurrent use.
type MemoryLimiter struct {
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewMemoryLimiter returns a MemoryLimiter refilling rps tokens per second up
// to burst (coerced to at least 1).
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &MemoryLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// Allow implements Limiter. It never fails.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return m.bucket(key).Allow(), nil
}

// bucket returns the limiter for key. Idle buckets are evicted every 5000
// lookups, before the requested one is touched so a stale bucket for key is
// replaced too.
func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupN++
	if m.cleanupN >= 5000 {
		for k, v := range m.visitors {
			if now.Sub(v.lastSeen) >= m.ttl {
				delete(m.visitors, k)
			}
		}
		m.cleanupN = 0
	}

	if v, ok := m.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(m.rps, m.burst)
	m.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// RedisLimiter allows Limit requests per key per Window.
type RedisLimiter struct {
	Client redis.Cmdable
	Limit  int
	Window time.Duration
	Prefix string

	now func() time.Time
}

// NewRedisLimiter returns a RedisLimiter on client. The key prefix is
// "plancher:rl:".
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{Client: client, Limit: limit, Window: window, Prefix: "plancher:rl:", now: time.Now}
}

// Allow implements Limiter. The counter key embeds the window index so every
// window starts from zero; the expiry only garbage-collects old windows.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	window := now().UnixNano() / int64(r.Window)
	k := r.Prefix + key + ":" + strconv.FormatInt(window, 10)

	pipe := r.Client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, r.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= int64(r.Limit), nil
}

// IsRateBypass reports whether Idempotency marked the request as a replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RateLimit enforces l per keyFn. Rejected requests get:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	{"request_id": "...", "code": "rate_limited", "message": "rate limit exceeded"}
func RateLimit(l Limiter, keyFn keyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return func(c *gin.Context) {
		if l == nil || IsRateBypass(c) {
			c.Next()
			return
		}
		allowed, err := l.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if allowed {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
