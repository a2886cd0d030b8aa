package httpx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Cooldown(t *testing.T) {
	r := NewRateLimiter(0)
	assert.False(t, r.CoolingDown())

	r.RecordRateLimit(30 * time.Millisecond)
	assert.True(t, r.CoolingDown())

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.False(t, r.CoolingDown())
}

func TestRateLimiter_ShorterCooldownDoesNotShrink(t *testing.T) {
	r := NewRateLimiter(0)
	r.RecordRateLimit(time.Hour)
	r.RecordRateLimit(time.Millisecond)
	assert.True(t, r.CoolingDown())
}

func TestRateLimiter_MinDelay(t *testing.T) {
	r := NewRateLimiter(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	r := NewRateLimiter(0)
	r.RecordRateLimit(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}
