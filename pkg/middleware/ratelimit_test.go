package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoginRateLimiter_BurstExhaustion(t *testing.T) {
	// 4 attempts per hour allows a burst of 2, then throttles.
	r := NewLoginRateLimiter(4, 3600, zap.NewNop())

	assert.True(t, r.Allow("10.0.0.1"))
	assert.True(t, r.Allow("10.0.0.1"))
	assert.False(t, r.Allow("10.0.0.1"))
}

func TestLoginRateLimiter_SourcesIndependent(t *testing.T) {
	r := NewLoginRateLimiter(4, 3600, zap.NewNop())

	assert.True(t, r.Allow("10.0.0.1"))
	assert.True(t, r.Allow("10.0.0.1"))
	assert.False(t, r.Allow("10.0.0.1"))

	assert.True(t, r.Allow("10.0.0.2"))
}

func TestLoginRateLimiter_FailuresBurnTokens(t *testing.T) {
	r := NewLoginRateLimiter(4, 3600, zap.NewNop())

	assert.True(t, r.Allow("10.0.0.1"))
	r.RecordFailure("10.0.0.1")
	assert.False(t, r.Allow("10.0.0.1"))
}

func TestLoginRateLimiter_DefaultsApplied(t *testing.T) {
	r := NewLoginRateLimiter(0, 0, zap.NewNop())
	assert.Equal(t, 5, r.maxAttempts)
	assert.Equal(t, 60, r.windowSeconds)
}

func TestLoginRateLimiter_EmptySourceBucketed(t *testing.T) {
	r := NewLoginRateLimiter(4, 3600, zap.NewNop())

	assert.True(t, r.Allow(""))
	assert.True(t, r.Allow(""))
	assert.False(t, r.Allow(""))
}
