package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/telemetry"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter implements a simple in-process token bucket rate limiter.
// Buckets that have refilled completely are dropped once per refill period.
type RateLimiter struct {
	mu           sync.Mutex
	tokens       map[string]int
	lastRefill   map[string]time.Time
	lastSweep    time.Time
	maxTokens    int
	refillRate   int           // tokens per refill
	refillPeriod time.Duration // how often to refill
	now          func() time.Time
}

// NewRateLimiter creates a new rate limiter
// maxTokens: maximum tokens per client
// refillRate: how many tokens to add per refill period
// refillPeriod: how often to refill tokens
func NewRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       make(map[string]int),
		lastRefill:   make(map[string]time.Time),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

// NewPerMinuteLimiter allows perMinute requests per client per minute.
func NewPerMinuteLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(perMinute, perMinute, time.Minute)
}

// Allow checks if a request should be allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.refillPeriod {
		rl.sweep(now)
		rl.lastSweep = now
	}

	if _, exists := rl.tokens[key]; !exists {
		rl.tokens[key] = rl.maxTokens
		rl.lastRefill[key] = now
	}

	elapsed := now.Sub(rl.lastRefill[key])
	refills := int(elapsed / rl.refillPeriod)
	if refills > 0 {
		rl.tokens[key] += refills * rl.refillRate
		if rl.tokens[key] > rl.maxTokens {
			rl.tokens[key] = rl.maxTokens
		}
		rl.lastRefill[key] = rl.lastRefill[key].Add(time.Duration(refills) * rl.refillPeriod)
	}

	decision := Decision{Limit: rl.maxTokens}
	if rl.tokens[key] > 0 {
		rl.tokens[key]--
		decision.Allowed = true
	} else {
		decision.RetryAfter = rl.refillPeriod - now.Sub(rl.lastRefill[key])
	}
	decision.Remaining = rl.tokens[key]
	return decision, nil
}

// sweep forgets clients whose bucket would be full again. A new bucket starts
// full, so forgetting them does not change any decision.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, last := range rl.lastRefill {
		refills := int(now.Sub(last) / rl.refillPeriod)
		if rl.tokens[key]+refills*rl.refillRate >= rl.maxTokens {
			delete(rl.tokens, key)
			delete(rl.lastRefill, key)
		}
	}
}

// Len returns the number of clients currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.tokens)
}

// RateLimitMiddleware rejects clients over their limit, keyed by client IP.
// Limiter errors let the request through.
func RateLimitMiddleware(l Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			telemetry.RateLimited.WithLabelValues("rate_limit").Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			RespondError(c, http.StatusTooManyRequests, ErrTypeRateLimited, "請求過於頻繁，請稍後再試")
			return
		}

		c.Next()
	}
}
