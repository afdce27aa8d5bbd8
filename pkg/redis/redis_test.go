package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *rd.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestIdempotency(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	owner, ok, err := AcquireIdempotency(ctx, rdb, 7, "k1", "req-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "req-a", owner)

	owner, ok, err = AcquireIdempotency(ctx, rdb, 7, "k1", "req-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "req-a", owner)

	// 不同买家互不影响
	_, ok, err = AcquireIdempotency(ctx, rdb, 8, "k1", "req-c", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	// 非持有者释放无效
	require.NoError(t, ReleaseIdempotencyIfMatch(ctx, rdb, 7, "k1", "req-b"))
	assert.True(t, mr.Exists(IdempotencyKey(7, "k1")))

	require.NoError(t, ReleaseIdempotencyIfMatch(ctx, rdb, 7, "k1", "req-a"))
	assert.False(t, mr.Exists(IdempotencyKey(7, "k1")))

	_, ok, err = AcquireIdempotency(ctx, rdb, 7, "k1", "req-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(IdempotencyKey(7, "k1")))
}

func TestRequestState(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	_, found, err := GetRequestState(ctx, rdb, "req-a")
	require.NoError(t, err)
	assert.False(t, found)

	st := RequestState{RequestID: "req-a", Status: RequestSuccess, OrderNo: "NM-1", PaymentURL: "https://pay/x"}
	require.NoError(t, PutRequestState(ctx, rdb, st, time.Minute))

	got, found, err := GetRequestState(ctx, rdb, "req-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, st, got)

	mr.FastForward(2 * time.Minute)
	_, found, err = GetRequestState(ctx, rdb, "req-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDiscountCache(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	c := NewDiscountCache(rdb, time.Minute)

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, 1, decimal.RequireFromString("12.5")))
	require.NoError(t, c.Set(ctx, 2, decimal.Zero))

	pct, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "12.5", pct.String())

	pct, ok, err = c.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, pct.IsZero())

	require.NoError(t, c.Invalidate(ctx, 1, 2, 3))
	_, ok, err = c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Invalidate(ctx))
}

func TestDiscountCacheDisabled(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	c := NewDiscountCache(rdb, 0)

	require.NoError(t, c.Set(ctx, 1, decimal.NewFromInt(10)))
	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimNotification(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	ok, err := ClaimNotification(ctx, rdb, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ClaimNotification(ctx, rdb, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ReleaseNotification(ctx, rdb, "evt-1"))
	ok, err = ClaimNotification(ctx, rdb, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
