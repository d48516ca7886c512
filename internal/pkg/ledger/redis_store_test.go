package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisTestClient connects to a local Redis or skips the test when none is
// reachable, so the suite stays runnable without infrastructure.
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test that requires a Redis connection: %v", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		client.Del(ctx, eventsKey, revenueKey)
		_ = client.Close()
	})
	client.Del(context.Background(), eventsKey, revenueKey)
	return client
}

func TestRedisStoreAppendAndReadEvents(t *testing.T) {
	store := NewRedisStore(redisTestClient(t), 10)

	require.NoError(t, store.AppendEvent(Entry{ID: "1", EventType: "message.received", Status: StatusSuccess}))
	require.NoError(t, store.AppendEvent(Entry{ID: "2", EventType: "tip.received", Status: StatusError, Error: "boom"}))

	entries, err := store.Events()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].ID)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, "1", entries[1].ID)
}

func TestRedisStoreTrimsToCapacity(t *testing.T) {
	capacity := 3
	store := NewRedisStore(redisTestClient(t), capacity)

	for i := 0; i < capacity+2; i++ {
		require.NoError(t, store.AppendEvent(Entry{ID: fmt.Sprintf("%d", i), EventType: "e", Status: StatusSuccess}))
	}

	entries, err := store.Events()
	require.NoError(t, err)
	require.Len(t, entries, capacity)
	assert.Equal(t, "4", entries[0].ID)
	assert.Equal(t, "2", entries[len(entries)-1].ID)
}

func TestRedisStoreRevenueRoundTrip(t *testing.T) {
	store := NewRedisStore(redisTestClient(t), 10)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.AppendRevenue(RevenueEvent{Type: RevenueTip, Amount: 25, Currency: "USD", UserID: "fan-1", Timestamp: now}))

	events, err := store.Revenue()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, RevenueTip, events[0].Type)
	assert.Equal(t, 25.0, events[0].Amount)
	assert.True(t, events[0].Timestamp.Equal(now))
}
