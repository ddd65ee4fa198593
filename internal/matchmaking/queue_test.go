package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func entry(uid, category string) Entry {
	return Entry{UID: uid, Category: category, Variant: engine.VariantAsync, EnqueuedAt: t0}
}

// exerciseQueue runs the same contract against every Queue implementation.
func exerciseQueue(t *testing.T, q Queue) {
	ctx := context.Background()

	_, paired, pos, err := q.PairOrEnqueue(ctx, entry("A", "GENERAL"))
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Equal(t, 1, pos)

	_, _, _, err = q.PairOrEnqueue(ctx, entry("A", "GENERAL"))
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	// different category lives in its own pool
	_, paired, pos, err = q.PairOrEnqueue(ctx, entry("B", "TARIH"))
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Equal(t, 1, pos)

	opp, paired, _, err := q.PairOrEnqueue(ctx, entry("C", "GENERAL"))
	require.NoError(t, err)
	require.True(t, paired)
	assert.Equal(t, "A", opp.UID)

	ok, err := q.Contains(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = q.Contains(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok, "a paired caller is never enqueued")

	require.NoError(t, q.PushFront(ctx, opp))
	ok, err = q.Contains(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := q.Remove(ctx, "B")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = q.Remove(ctx, "B")
	require.NoError(t, err)
	assert.False(t, removed)

	_, paired, _, err = q.PairOrEnqueue(ctx, entry("D", "TARIH"))
	require.NoError(t, err)
	assert.False(t, paired)

	opp, paired, _, err = q.PairOrEnqueue(ctx, entry("E", "GENERAL"))
	require.NoError(t, err)
	require.True(t, paired)
	assert.Equal(t, "A", opp.UID)
}

func TestMemoryQueue(t *testing.T) {
	exerciseQueue(t, NewMemoryQueue())
}

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for i, uid := range []string{"A", "B", "C"} {
		e := entry(uid, "GENERAL")
		e.Variant = engine.VariantSync
		_, paired, pos, err := q.PairOrEnqueue(ctx, e)
		require.NoError(t, err)
		if i == 0 {
			assert.False(t, paired)
			assert.Equal(t, 1, pos)
		}
	}
	// A and B paired, C waits alone
	ok, _ := q.Contains(ctx, "C")
	assert.True(t, ok)

	// async pool is separate from the sync one
	_, paired, _, err := q.PairOrEnqueue(ctx, entry("D", "GENERAL"))
	require.NoError(t, err)
	assert.False(t, paired)
}

func TestRedisQueue(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}
	defer client.Close()
	client.FlushDB(ctx)

	exerciseQueue(t, NewRedisQueue(client, "test"))
}
