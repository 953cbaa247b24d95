package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	payload := []byte(`{"funds":[]}`)
	require.NoError(t, c.Set(ctx, "screener:debt", payload, time.Minute))

	got, found, err := c.Get(ctx, "screener:debt")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, got)

	// stored and returned slices are copies
	payload[0] = 'x'
	got[1] = 'y'
	again, _, _ := c.Get(ctx, "screener:debt")
	assert.Equal(t, []byte(`{"funds":[]}`), again)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(2 * time.Second)

	_, found, _ := c.Get(ctx, "short")
	assert.False(t, found)
	_, found, _ = c.Get(ctx, "forever")
	assert.True(t, found)
	assert.Equal(t, 1, c.Len())
}

func TestMemory_MaxEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, found, _ := c.Get(ctx, "a")
	assert.False(t, found, "entry closest to expiry is evicted")

	// overwriting an existing key never evicts
	require.NoError(t, c.Set(ctx, "b", []byte("22"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestNew_WithoutRedisAddr(t *testing.T) {
	c := New(context.Background(), Options{MaxEntries: 4})
	_, ok := c.(*Memory)
	assert.True(t, ok)
}

func TestRedisCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, "fundrank:")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("fundrank:screener:debt").SetVal(`{"funds":[]}`)

		value, found, err := c.Get(ctx, "screener:debt")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"funds":[]}`, string(value))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("fundrank:missing").RedisNil()

		value, found, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("fundrank:broken").SetErr(redis.TxFailedErr)

		_, found, err := c.Get(ctx, "broken")
		require.Error(t, err)
		assert.False(t, found)
		assert.Contains(t, err.Error(), "redis get")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisCache_SetDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, "fundrank:")
	ctx := context.Background()

	mock.ExpectSet("fundrank:k", []byte("v"), time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	mock.ExpectSet("fundrank:bad", []byte("v"), time.Minute).SetErr(errors.New("oom"))
	err := c.Set(ctx, "bad", []byte("v"), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set")

	mock.ExpectDel("fundrank:k").SetVal(1)
	require.NoError(t, c.Delete(ctx, "k"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
