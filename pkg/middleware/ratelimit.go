package middleware

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoginRateLimiter throttles login attempts per source address. A source
// that keeps failing burns tokens twice as fast.
type LoginRateLimiter struct {
	maxAttempts   int
	windowSeconds int
	logger        *zap.Logger

	mu       sync.Mutex
	limiters map[string]*sourceLimiter

	cleanupInterval time.Duration
	lastCleanup     time.Time
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginRateLimiter creates a rate limiter allowing maxAttempts per
// windowSeconds for each source address.
func NewLoginRateLimiter(maxAttempts, windowSeconds int, logger *zap.Logger) *LoginRateLimiter {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	if windowSeconds < 1 {
		windowSeconds = 60
	}
	return &LoginRateLimiter{
		maxAttempts:     maxAttempts,
		windowSeconds:   windowSeconds,
		logger:          logger.Named("login-ratelimit"),
		limiters:        make(map[string]*sourceLimiter),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

func (r *LoginRateLimiter) getLimiter(source string) *sourceLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastCleanup) > r.cleanupInterval {
		r.cleanup()
	}

	l, ok := r.limiters[source]
	if ok {
		l.lastSeen = time.Now()
		return l
	}

	limit := rate.Limit(float64(r.maxAttempts) / float64(r.windowSeconds))
	burst := int(math.Ceil(float64(r.maxAttempts) / 2.0))
	if burst < 1 {
		burst = 1
	}

	l = &sourceLimiter{
		limiter:  rate.NewLimiter(limit, burst),
		lastSeen: time.Now(),
	}
	r.limiters[source] = l
	return l
}

// cleanup removes limiters that have not been used recently. Caller holds
// the lock.
func (r *LoginRateLimiter) cleanup() {
	cutoff := time.Now().Add(-30 * time.Minute)
	for source, l := range r.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(r.limiters, source)
		}
	}
	r.lastCleanup = time.Now()
}

// Allow reports whether a login attempt from the source may proceed.
func (r *LoginRateLimiter) Allow(source string) bool {
	if source == "" {
		source = "_unknown"
	}
	if !r.getLimiter(source).limiter.Allow() {
		r.logger.Warn("Login rate limit exceeded", zap.String("source", source))
		return false
	}
	return true
}

// RecordFailure makes a failed attempt cost an extra token.
func (r *LoginRateLimiter) RecordFailure(source string) {
	if source == "" {
		source = "_unknown"
	}
	r.getLimiter(source).limiter.AllowN(time.Now(), 1)
}
