package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 90 * time.Second

// RedisPresence implements notify.Presence with a per-account key that
// expires unless periodically refreshed, so a crashed connection's
// presence entry self-heals without an explicit disconnect hook.
type RedisPresence struct {
	client *redis.Client
	prefix string
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client, prefix: "presence:"}
}

func (p *RedisPresence) MarkOnline(ctx context.Context, accountID string) error {
	return p.client.Set(ctx, p.prefix+accountID, "1", presenceTTL).Err()
}

func (p *RedisPresence) MarkOffline(ctx context.Context, accountID string) error {
	return p.client.Del(ctx, p.prefix+accountID).Err()
}

func (p *RedisPresence) IsOnline(ctx context.Context, accountID string) (bool, error) {
	n, err := p.client.Exists(ctx, p.prefix+accountID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Refresh extends accountID's presence TTL, called on each received pong.
func (p *RedisPresence) Refresh(ctx context.Context, accountID string) error {
	return p.client.Expire(ctx, p.prefix+accountID, presenceTTL).Err()
}
