package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrSet_CachesLoaderResult(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return []string{"rec_1.webm"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet(context.Background(), "standup", loader, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"rec_1.webm"}, v)
	}
	assert.Equal(t, 1, calls)
}

func TestGetOrSet_ExpiredEntryReloads(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	v, err := c.GetOrSet(context.Background(), "standup", loader, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	time.Sleep(5 * time.Millisecond)
	v, err = c.GetOrSet(context.Background(), "standup", loader, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetOrSet_LoaderFailureServesStale(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	_, err := c.GetOrSet(context.Background(), "standup", func(context.Context) (interface{}, error) {
		return "fresh", nil
	}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	v, err := c.GetOrSet(context.Background(), "standup", func(context.Context) (interface{}, error) {
		return nil, errors.New("redis down")
	}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestGetOrSet_LoaderFailureWithoutStalePropagates(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	_, err := c.GetOrSet(context.Background(), "standup", func(context.Context) (interface{}, error) {
		return nil, errors.New("redis down")
	}, 0)
	assert.EqualError(t, err, "redis down")
}

func TestInvalidate_ForcesReload(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	_, err := c.GetOrSet(context.Background(), "standup", loader, 0)
	require.NoError(t, err)
	c.Invalidate("standup")
	v, err := c.GetOrSet(context.Background(), "standup", loader, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
