package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "pair:1", entry{Name: "CAKE", Price: 2.5}, time.Minute))

	var got entry
	require.NoError(t, c.Get(ctx, "pair:1", &got))
	assert.Equal(t, entry{Name: "CAKE", Price: 2.5}, got)

	ok, err := c.Exists(ctx, "pair:1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "pair:1"))
	assert.ErrorIs(t, c.Get(ctx, "pair:1", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", 1, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	keys, err := c.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryCacheKeysAndMGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, GenerateKey("monitor", "0xb"), entry{Name: "b"}, time.Minute))
	require.NoError(t, c.Set(ctx, GenerateKey("monitor", "0xa"), entry{Name: "a"}, time.Minute))
	require.NoError(t, c.Set(ctx, GenerateKey("other", "0xc"), entry{Name: "c"}, time.Minute))

	keys, err := c.Keys(ctx, BuildPattern("monitor"))
	require.NoError(t, err)
	assert.Equal(t, []string{"monitor:0xa", "monitor:0xb"}, keys)

	typed, err := MGetTyped[entry](ctx, c, append(keys, "monitor:missing")...)
	require.NoError(t, err)
	assert.Len(t, typed, 2)
	assert.Equal(t, "a", typed["monitor:0xa"].Name)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)

	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	assert.NoError(t, c.Get(ctx, "a", &v))
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "c", &v))
}
