package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

func TestPriorityLimiter_ImmediateBypasses(t *testing.T) {
	l := NewPriorityLimiter(0.001, 1)

	assert.True(t, l.Allow(types.PriorityNormal))
	assert.False(t, l.Allow(types.PriorityNormal), "burst exhausted")
	assert.False(t, l.Allow(types.PriorityLow))

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(types.PriorityImmediate))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Wait(ctx, types.PriorityImmediate))
}

func TestPriorityLimiter_WaitHonorsContext(t *testing.T) {
	l := NewPriorityLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), types.PriorityHigh))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, types.PriorityHigh))

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.ErrorIs(t, l.Wait(canceled, types.PriorityImmediate), context.Canceled)
}

func TestPriorityLimiter_Unlimited(t *testing.T) {
	l := NewPriorityLimiter(0, 0)
	assert.Equal(t, rate.Inf, l.Limit())
	assert.Equal(t, 1, l.Burst())
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(types.PriorityLow))
	}
}

func TestPriorityLimiter_Nil(t *testing.T) {
	var l *PriorityLimiter
	assert.True(t, l.Allow(types.PriorityLow))
	assert.NoError(t, l.Wait(context.Background(), types.PriorityLow))
}

func TestNewPerMinuteLimiter(t *testing.T) {
	l := NewPerMinuteLimiter(60)
	assert.Equal(t, rate.Every(time.Second), l.Limit())
	assert.Equal(t, 60, l.Burst())

	unlimited := NewPerMinuteLimiter(0)
	assert.Equal(t, rate.Inf, unlimited.Limit())
}
