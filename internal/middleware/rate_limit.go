package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"secretcontest/internal/models"
)

// RequestLimiter is a per-IP fixed window counter in Redis. It sits in front
// of the per-actor attempt lock so that rotating device tokens from one
// address cannot buy unlimited guesses.
type RequestLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRequestLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RequestLimiter {
	if prefix == "" {
		prefix = "contest_rl"
	}
	return &RequestLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts one request for key and reports whether it fits in the current
// window, together with the window end.
func (l *RequestLimiter) Allow(ctx context.Context, key string) (bool, time.Time, error) {
	if l.client == nil {
		return false, time.Time{}, errors.New("rate limiter redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	windowStart := l.now().Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, resetAt, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val() <= int64(l.limit), resetAt, nil
}

// Middleware rejects over-limit requests with the same "blocked" shape the
// attempt lock uses. Redis trouble lets the request through.
func (l *RequestLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.limit <= 0 {
			c.Next()
			return
		}
		allowed, resetAt, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Printf("[ratelimit] backend unavailable, allowing request: %v", err)
			c.Next()
			return
		}
		if !allowed {
			retry := int(time.Until(resetAt).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":           false,
				"reason":       models.ReasonBlocked,
				"remaining":    0,
				"blockedUntil": resetAt.UTC().Format(time.RFC3339Nano),
			})
			return
		}
		c.Next()
	}
}
