package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events as JSON over Redis pub/sub. The socket layer
// subscribes to the per-user channels and relays to connected clients.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Publish(ctx context.Context, channel string, ev Event) error {
	if channel == "" || ev.Type == "" {
		return fmt.Errorf("notify: channel and event type are required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// RedisPresence reports whether a user currently has a live transport
// connection. The socket layer maintains the presence keys; we only read them.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func presenceKey(userID string) string {
	return "vibemeet:presence:" + userID
}

func (p *RedisPresence) IsReachable(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
