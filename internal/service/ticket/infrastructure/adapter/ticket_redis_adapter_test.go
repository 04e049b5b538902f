package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketrush/internal/pkg/redis"
)

func newTestAdapter(t *testing.T) (*TicketRedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a, err := NewTicketRedisAdapter(redis.NewClientFromUniversal(rdb), time.Hour)
	require.NoError(t, err)
	return a, mr
}

func TestTryDecrementStopsAtZero(t *testing.T) {
	a, mr := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Initialize(ctx, 1, 2))

	for i := 0; i < 2; i++ {
		ok, err := a.TryDecrement(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := a.TryDecrement(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := mr.Get(StockKey(1))
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestTryDecrementMissingCounter(t *testing.T) {
	a, mr := newTestAdapter(t)

	ok, err := a.TryDecrement(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(StockKey(9)))
}

func TestTryDecrementConcurrent(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Initialize(ctx, 3, 10))

	var won int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := a.TryDecrement(ctx, 3)
			if err == nil && ok {
				atomic.AddInt64(&won, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, won)
	stock, err := a.Read(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stock)
}

func TestReadAndIncrement(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	stock, err := a.Read(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stock)

	require.NoError(t, a.Increment(ctx, 5, 3))
	stock, err = a.Read(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stock)

	assert.Error(t, a.Initialize(ctx, 5, -1))
}

func TestClaimLock(t *testing.T) {
	a, mr := newTestAdapter(t)
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, "u1", 1, "req-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, mr.TTL(ClaimKey(1, "u1")))

	ok, err = a.TryAcquire(ctx, "u1", 1, "req-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// 其他票种互不影响
	ok, err = a.TryAcquire(ctx, "u1", 2, "req-3", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Release(ctx, "u1", 1, "req-1"))
	require.NoError(t, a.Release(ctx, "u1", 1, "req-1"))
	ok, err = a.TryAcquire(ctx, "u1", 1, "req-4", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseKeepsLockOfOtherRequest(t *testing.T) {
	a, mr := newTestAdapter(t)
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, "u1", 1, "req-1", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Release(ctx, "u1", 1, "req-2"))
	assert.True(t, mr.Exists(ClaimKey(1, "u1")))

	require.NoError(t, a.Release(ctx, "u1", 1, "req-1"))
	assert.False(t, mr.Exists(ClaimKey(1, "u1")))
}

func TestClaimLockExpires(t *testing.T) {
	a, mr := newTestAdapter(t)
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, "u1", 1, "req-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = a.TryAcquire(ctx, "u1", 1, "req-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReclaimIsIdempotent(t *testing.T) {
	a, mr := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Initialize(ctx, 1, 0))
	_, err := a.TryAcquire(ctx, "u1", 1, "req-1", time.Hour)
	require.NoError(t, err)

	restored, err := a.Reclaim(ctx, "o-1", "u1", 1, 1)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.False(t, mr.Exists(ClaimKey(1, "u1")))
	assert.Equal(t, time.Hour, mr.TTL(RestoredKey(1, "o-1")))

	// 用户重新抢到了锁，重复投递不能删掉新锁也不能再次回补
	_, err = a.TryAcquire(ctx, "u1", 1, "req-2", time.Hour)
	require.NoError(t, err)
	restored, err = a.Reclaim(ctx, "o-1", "u1", 1, 1)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.True(t, mr.Exists(ClaimKey(1, "u1")))

	stock, err := a.Read(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stock)
}

func TestKeysShareHashTag(t *testing.T) {
	assert.Equal(t, "ticket:{42}:stock", StockKey(42))
	assert.Equal(t, "ticket:{42}:claim:alice", ClaimKey(42, "alice"))
	assert.Equal(t, "ticket:{42}:restored:o-9", RestoredKey(42, "o-9"))
}
