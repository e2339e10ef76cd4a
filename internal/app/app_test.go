package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-auth/internal/config"
	"go-admin-auth/internal/ratelimit"
)

func limiterConfig() *config.Config {
	return &config.Config{
		LoginRateLimitAttempts:   2,
		LoginRateLimitWindow:     time.Minute,
		RefreshRateLimitAttempts: 3,
		RefreshRateLimitWindow:   time.Minute,
	}
}

func TestNewLimitersInMemory(t *testing.T) {
	login, refresh, err := newLimiters(limiterConfig(), nil)
	require.NoError(t, err)

	assert.IsType(t, &ratelimit.Memory{}, login)
	assert.IsType(t, &ratelimit.Memory{}, refresh)
}

func TestNewLimitersShareRedisWithoutCollisions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	login, refresh, err := newLimiters(limiterConfig(), client)
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.Redis{}, login)

	ctx := context.Background()
	for range 2 {
		d, err := login.CheckAndRecordAttempt(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := login.CheckAndRecordAttempt(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = refresh.CheckAndRecordAttempt(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestNewLimitersRejectsInvalidConfig(t *testing.T) {
	cfg := limiterConfig()
	cfg.RefreshRateLimitWindow = 0

	_, _, err := newLimiters(cfg, nil)
	assert.ErrorContains(t, err, "refresh limiter")
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := connectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = connectRedis(context.Background(), "not-a-url")
	assert.ErrorContains(t, err, "invalid REDIS_URL")
}
