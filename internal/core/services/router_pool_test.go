package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouterPool_WarmsAtStartup(t *testing.T) {
	engine := newFakeEngine()
	pool, err := NewRouterPool(context.Background(), engine, 3, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 3, pool.Size())
	assert.EqualValues(t, 3, engine.routerCalls.Load())
}

func TestRouterPool_TakeBackfills(t *testing.T) {
	engine := newFakeEngine()
	pool, err := NewRouterPool(context.Background(), engine, 2, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer pool.Close()

	router, err := pool.Take(context.Background())
	require.NoError(t, err)
	require.NotNil(t, router)

	// The slot handed out is replaced asynchronously.
	assert.Eventually(t, func() bool { return pool.Size() == 2 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, engine.routerCalls.Load())
}

func TestRouterPool_CloseDestroysPooledRouters(t *testing.T) {
	engine := newFakeEngine()
	pool, err := NewRouterPool(context.Background(), engine, 2, zap.NewNop().Sugar())
	require.NoError(t, err)

	taken, err := pool.Take(context.Background())
	require.NoError(t, err)
	// Let the backfill settle so Close observes a quiet pool.
	require.Eventually(t, func() bool { return pool.Size() == 2 }, time.Second, 5*time.Millisecond)
	pool.Close()

	assert.Zero(t, pool.Size())
	// The router already taken belongs to its room and stays open.
	assert.False(t, taken.(*fakeRouter).closed.Load())

	// Take keeps working after Close by allocating directly.
	direct, err := pool.Take(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, direct)
}

func TestRouterPool_MinimumSize(t *testing.T) {
	engine := newFakeEngine()
	pool, err := NewRouterPool(context.Background(), engine, 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 1, pool.Size())
}
