package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedisRegistry(mr.Addr(), "", 0, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRegistries_ReserveFilterRelease(t *testing.T) {
	redisRegistry, _ := newTestRedis(t, time.Minute)
	registries := map[string]Registry{
		"memory": NewMemoryRegistry(time.Minute),
		"redis":  redisRegistry,
	}

	for name, r := range registries {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			all := []string{"a", "b", "c", "d"}

			got, err := r.Filter(ctx, all)
			require.NoError(t, err)
			assert.Equal(t, all, got)

			ok, err := r.TryReserve(ctx, "b", "d")
			require.NoError(t, err)
			require.True(t, ok)
			got, err = r.Filter(ctx, all)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c"}, got)

			require.NoError(t, r.Release(ctx, "b"))
			got, err = r.Filter(ctx, all)
			require.NoError(t, err)
			assert.Equal(t, all, got)

			got, err = r.Filter(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, got)
			ok, err = r.TryReserve(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			require.NoError(t, r.Release(ctx))
		})
	}
}

func TestRegistries_TryReserveConflict(t *testing.T) {
	redisRegistry, _ := newTestRedis(t, time.Minute)
	registries := map[string]Registry{
		"memory": NewMemoryRegistry(time.Minute),
		"redis":  redisRegistry,
	}

	for name, r := range registries {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := r.TryReserve(ctx, "a", "b")
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = r.TryReserve(ctx, "b", "c")
			require.NoError(t, err)
			assert.False(t, ok)

			// The rejected group must not have reserved c
			got, err := r.Filter(ctx, []string{"a", "b", "c"})
			require.NoError(t, err)
			assert.Equal(t, []string{"c"}, got)

			ok, err = r.TryReserve(ctx, "c", "d")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRegistries_ReleaseFreesPartners(t *testing.T) {
	redisRegistry, _ := newTestRedis(t, time.Minute)
	registries := map[string]Registry{
		"memory": NewMemoryRegistry(time.Minute),
		"redis":  redisRegistry,
	}

	for name, r := range registries {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			all := []string{"a", "b", "c", "d"}
			for _, pair := range [][]string{{"a", "b"}, {"c", "d"}} {
				ok, err := r.TryReserve(ctx, pair...)
				require.NoError(t, err)
				require.True(t, ok)
			}

			require.NoError(t, r.Release(ctx, "a"))
			got, err := r.Filter(ctx, all)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, got)

			// Releasing an id that is not reserved leaves other groups alone
			require.NoError(t, r.Release(ctx, "a", "zzz"))
			got, err = r.Filter(ctx, all)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, got)
		})
	}
}

func TestRegistries_ConcurrentTryReserve(t *testing.T) {
	redisRegistry, _ := newTestRedis(t, time.Minute)
	registries := map[string]Registry{
		"memory": NewMemoryRegistry(time.Minute),
		"redis":  redisRegistry,
	}

	for name, r := range registries {
		t.Run(name, func(t *testing.T) {
			const callers = 8
			var (
				wg  sync.WaitGroup
				won atomic.Int32
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := r.TryReserve(context.Background(), "a", "b")
					assert.NoError(t, err)
					if ok {
						won.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), won.Load())
		})
	}
}

func TestMemoryRegistry_Expires(t *testing.T) {
	r := NewMemoryRegistry(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := r.TryReserve(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := r.Filter(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)

	now = now.Add(time.Minute)
	got, err = r.Filter(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	assert.Empty(t, r.reserved)

	ok, err = r.TryReserve(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRegistry_Expires(t *testing.T) {
	r, mr := newTestRedis(t, 30*time.Second)
	ctx := context.Background()

	ok, err := r.TryReserve(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"a"))
	assert.Equal(t, 30*time.Second, mr.TTL(keyPrefix+"a"))

	mr.FastForward(31 * time.Second)
	got, err := r.Filter(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(Config{})
	require.NoError(t, err)
	mem, ok := r.(*MemoryRegistry)
	require.True(t, ok)
	assert.Equal(t, DefaultTTL, mem.ttl)

	mr := miniredis.RunT(t)
	r, err = NewRegistry(Config{Type: "redis", Address: mr.Addr(), TTL: time.Second})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = NewRegistry(Config{Type: "redis"})
	assert.Error(t, err)
	_, err = NewRegistry(Config{Type: "etcd"})
	assert.Error(t, err)
}
