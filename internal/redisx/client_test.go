package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(context.Background(), rdb))
	return rdb
}

func TestDeduperFirstSeen(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	d := &Deduper{RDB: rdb, Consumer: "test-" + uuid.NewString(), TTL: time.Minute}

	id := uuid.NewString()
	first, err := d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	other := &Deduper{RDB: rdb, Consumer: "test-" + uuid.NewString(), TTL: time.Minute}
	first, err = other.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.True(t, first, "each consumer keeps its own set")
}

func TestIdempotencyKeepsFirstOrder(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	idem := &Idempotency{RDB: rdb, TTL: time.Minute}
	key := uuid.NewString()

	_, ok, err := idem.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idem.Remember(ctx, key, "order-1"))
	require.NoError(t, idem.Remember(ctx, key, "order-2"))

	id, ok, err := idem.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "order-1", id)
}
