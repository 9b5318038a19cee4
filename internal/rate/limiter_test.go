package rate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aungmyo/thazin/internal/cache"
	"github.com/aungmyo/thazin/internal/config"
	"github.com/aungmyo/thazin/internal/rate"
)

func setupLimiter(t *testing.T, interval time.Duration) (*rate.Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	c := cache.NewRedisCache(cfg)

	return rate.NewLimiter(c, c.KeyForThrottle, interval), mr
}

func TestAllowFirstBlockSecond(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setupLimiter(t, time.Second)

	_, ok, err := limiter.Allow(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	retryAfter, ok, err := limiter.Allow(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, retryAfter, int64(1))
}

func TestUsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setupLimiter(t, time.Second)

	_, ok, err := limiter.Allow(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = limiter.Allow(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	limiter, mr := setupLimiter(t, time.Second)

	_, ok, err := limiter.Allow(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = limiter.Allow(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrphanedCounterRecovers(t *testing.T) {
	ctx := context.Background()
	limiter, mr := setupLimiter(t, time.Second)

	// counter left behind with no TTL, as after a crash mid-update
	require.NoError(t, mr.Set("throttle:user:1", "5"))

	_, ok, err := limiter.Allow(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	// the increment re-armed the window, so the key expires normally
	mr.FastForward(2 * time.Second)

	_, ok, err = limiter.Allow(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRejectZeroUser(t *testing.T) {
	limiter, _ := setupLimiter(t, time.Second)
	_, _, err := limiter.Allow(context.Background(), 0)
	assert.Error(t, err)
}
