package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog is the durable decision log (§3 DecisionItem, §4.8 steps 7-8):
// one Redis list per meeting holding JSON-encoded Items, with the TTL
// refreshed on every append so an active meeting's log never expires
// mid-session.
type RedisLog struct {
	client *redis.Client
}

func NewRedisLog(client *redis.Client) *RedisLog {
	return &RedisLog{client: client}
}

func (l *RedisLog) key(meetingID string) string {
	return fmt.Sprintf("tc:meeting:%s:decisions", meetingID)
}

// Summaries returns every stored item's summary text for meetingID, used
// by the dedup check (§4.8 step 7).
func (l *RedisLog) Summaries(ctx context.Context, meetingID string) ([]string, error) {
	items, err := l.All(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Summary
	}
	return out, nil
}

// Append pushes item onto the meeting's log and refreshes the TTL.
func (l *RedisLog) Append(ctx context.Context, meetingID string, item Item, ttl time.Duration) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("decision: marshal item: %w", err)
	}
	key := l.key(meetingID)
	pipe := l.client.Pipeline()
	pipe.RPush(ctx, key, payload)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("decision: append to log: %w", err)
	}
	return nil
}

// All returns every item in append order (§4.8: "items within a meeting
// are totally ordered by append time").
func (l *RedisLog) All(ctx context.Context, meetingID string) ([]Item, error) {
	raw, err := l.client.LRange(ctx, l.key(meetingID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("decision: read log: %w", err)
	}
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		var item Item
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
