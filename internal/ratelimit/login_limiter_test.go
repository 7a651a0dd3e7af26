package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLoginLimiterBlocksAfterMaxAttempts(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewLoginLimiter(client, LoginLimiterConfig{Enabled: true, MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		reached, err := limiter.RecordFailure(ctx, "20520001")
		require.NoError(t, err)
		assert.False(t, reached, "attempt %d", i)
	}

	blocked, err := limiter.Blocked(ctx, "20520001")
	require.NoError(t, err)
	assert.False(t, blocked)

	reached, err := limiter.RecordFailure(ctx, "20520001")
	require.NoError(t, err)
	assert.True(t, reached)

	blocked, err = limiter.Blocked(ctx, "20520001")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = limiter.Blocked(ctx, "20520002")
	require.NoError(t, err)
	assert.False(t, blocked, "counters are per student code")
}

func TestLoginLimiterWindowExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLoginLimiter(client, LoginLimiterConfig{Enabled: true, MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	_, err := limiter.RecordFailure(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("login:s1"))

	mr.FastForward(2 * time.Minute)

	blocked, err := limiter.Blocked(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestLoginLimiterReset(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLoginLimiter(client, LoginLimiterConfig{Enabled: true, MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	_, err := limiter.RecordFailure(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, limiter.Reset(ctx, "s1"))
	assert.False(t, mr.Exists("login:s1"))
}

func TestLoginLimiterDisabled(t *testing.T) {
	limiter := NewLoginLimiter(nil, LoginLimiterConfig{Enabled: true, MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	reached, err := limiter.RecordFailure(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, reached)

	blocked, err := limiter.Blocked(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.NoError(t, limiter.Reset(ctx, "s1"))
}

func TestLoginLimiterBackendDown(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLoginLimiter(client, LoginLimiterConfig{Enabled: true, MaxAttempts: 1, Window: time.Minute})
	mr.Close()

	_, err := limiter.RecordFailure(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrLimiterUnavailable)
}

func TestLoginLimiterWindowIsFixedFromFirstFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLoginLimiter(client, LoginLimiterConfig{Enabled: true, MaxAttempts: 5, Window: time.Minute})
	ctx := context.Background()

	_, err := limiter.RecordFailure(ctx, "s1")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)

	_, err = limiter.RecordFailure(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, mr.TTL("login:s1"))

	count, err := mr.Get("login:s1")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
}

func TestLoginLimiterCounterAlwaysCarriesTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLoginLimiter(client, LoginLimiterConfig{Enabled: true, MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.RecordFailure(ctx, "s1")
		require.NoError(t, err)
		assert.Greater(t, mr.TTL("login:s1"), time.Duration(0), "failure %d", i+1)
	}
}
