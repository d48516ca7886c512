package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	eventsKey  = "ledger:events"
	revenueKey = "ledger:revenue"
)

// RedisStore keeps the ledger in Redis so the retained window survives a
// process restart. LPUSH+LTRIM inside one pipeline keeps the ring-buffer
// bound atomic with respect to concurrent deliveries.
type RedisStore struct {
	client   *redis.Client
	capacity int
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client, capacity int) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisStore{client: client, capacity: capacity}
}

func (s *RedisStore) AppendEvent(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	ctx := context.Background()
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, eventsKey, data)
	pipe.LTrim(ctx, eventsKey, 0, int64(s.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Events() ([]Entry, error) {
	raw, err := s.client.LRange(context.Background(), eventsKey, 0, int64(s.capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) AppendRevenue(ev RevenueEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal revenue event: %w", err)
	}
	if err := s.client.LPush(context.Background(), revenueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to append revenue event: %w", err)
	}
	return nil
}

func (s *RedisStore) Revenue() ([]RevenueEvent, error) {
	raw, err := s.client.LRange(context.Background(), revenueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read revenue events: %w", err)
	}

	events := make([]RevenueEvent, 0, len(raw))
	for _, item := range raw {
		var ev RevenueEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal revenue event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
