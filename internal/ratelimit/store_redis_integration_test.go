//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster/pkg/testutil/containers"
)

func TestRedisFixedWindow(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))
	store := NewRedis(rc.Client)

	for want := 1; want >= 0; want-- {
		res, err := store.Allow(ctx, "user:a", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
	}

	res, err := store.Allow(ctx, "user:a", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.GreaterOrEqual(t, res.RetryAfter, 1)
	assert.LessOrEqual(t, res.RetryAfter, 60)

	ttl, err := rc.Client.PTTL(ctx, keyPrefix+"user:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	res, err = store.Allow(ctx, "user:b", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
