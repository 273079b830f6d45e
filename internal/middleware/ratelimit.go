package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dora/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Count     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a fixed-window request limiter keyed by client. Counters
// live in Redis when a client is given and in process memory otherwise.
// Redis errors let the request through.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	counts map[string]int
	bucket int64
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
		counts: make(map[string]int),
	}
}

// Allow counts one request for key and reports whether it is within the limit
func (rl *RateLimiter) Allow(ctx context.Context, key string) RateLimitResult {
	now := rl.now()
	start := now.Truncate(rl.window)
	resetAt := start.Add(rl.window)

	count, err := rl.increment(ctx, key, start)
	if err != nil {
		rl.logger.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
		return RateLimitResult{Allowed: true, Remaining: -1, ResetAt: resetAt}
	}

	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= rl.limit,
		Count:     count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (rl *RateLimiter) increment(ctx context.Context, key string, start time.Time) (int, error) {
	if rl.redis == nil {
		return rl.incrementLocal(key, start), nil
	}

	rkey := fmt.Sprintf("dora:ratelimit:%s:%d", key, start.Unix())
	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (rl *RateLimiter) incrementLocal(key string, start time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	// A new window drops every counter of the previous one
	if b := start.Unix(); b != rl.bucket {
		rl.bucket = b
		rl.counts = make(map[string]int)
	}
	rl.counts[key]++
	return rl.counts[key]
}

// Middleware rejects clients over the limit with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := rl.Allow(c.Request.Context(), c.ClientIP())
		if res.Remaining >= 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		}
		if !res.Allowed {
			metrics.RateLimited.Inc()
			retryAfter := int(res.ResetAt.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests from this IP, please try again later.",
			})
			return
		}
		c.Next()
	}
}
