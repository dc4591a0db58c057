package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the pub/sub channels, e.g. gold:goldPriceUpdate
const DefaultChannelPrefix = "gold:"

// RedisPublisher relays events over Redis pub/sub so other instances can serve observers
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPublisher creates a publisher on rdb
func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel is the Redis channel a topic is published on
func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + topic
}

// Publish implements broadcast.Publisher
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	if p.rdb == nil {
		return errors.New("redis publisher has no client")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.Channel(topic), b).Err()
}
