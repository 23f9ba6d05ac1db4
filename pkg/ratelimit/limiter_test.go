package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSetDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 60.0, c.RequestsPerSecond)
	assert.Equal(t, 60, c.Burst)
	assert.NoError(t, c.Validate())
}

func TestConfigValidateRejectsNonPositive(t *testing.T) {
	assert.Error(t, (&Config{RequestsPerSecond: 0, Burst: 1}).Validate())
	assert.Error(t, (&Config{RequestsPerSecond: 1, Burst: 0}).Validate())
}

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 10, Burst: 2}, nil)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestWaitInvokesOnThrottleWhenBlocking(t *testing.T) {
	var throttled bool
	l := New(Config{RequestsPerSecond: 1000, Burst: 1}, func() { throttled = true })

	require.NoError(t, l.Wait(context.Background())) // consumes the only burst token
	require.NoError(t, l.Wait(context.Background())) // must wait for refill

	assert.True(t, throttled)
}

func TestWaitRespectsCancellation(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.001, Burst: 1}, nil)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.Error(t, err)
}

func TestReserveReturnsZeroWhenTokenAvailable(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 5}, nil)
	assert.Equal(t, time.Duration(0), l.Reserve())
}
