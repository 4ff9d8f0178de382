package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.vocdoni.io/dvote/log"
)

// DefaultRedisPrefix namespaces the keys written by RedisCache.
const DefaultRedisPrefix = "payments:dedup:"

// RedisCache shares processed ids between instances. Each id is a key holding
// the unix time it was marked, with the window as TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db)
// and checks it answers.
func NewRedisCache(ctx context.Context, url string, window time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if window == 0 {
		window = DefaultWindow
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}
	log.Infow("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return &RedisCache{
		client: client,
		prefix: DefaultRedisPrefix,
		window: window,
	}, nil
}

func (c *RedisCache) key(id string) string {
	return c.prefix + id
}

// Seen reports whether id is stored.
func (c *RedisCache) Seen(ctx context.Context, id string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark stores id with SETNX and reports whether it was absent.
func (c *RedisCache) Mark(ctx context.Context, id string) (bool, error) {
	return c.client.SetNX(ctx, c.key(id), time.Now().Unix(), c.window).Result()
}

// Forget deletes id.
func (c *RedisCache) Forget(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

// ExpireOlderThan deletes the ids marked more than age ago. Redis already
// drops keys after the window; this is only needed for a shorter age.
func (c *RedisCache) ExpireOlderThan(ctx context.Context, age time.Duration) error {
	cutoff := time.Now().Add(-age).Unix()
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := c.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		markedAt, err := strconv.ParseInt(val, 10, 64)
		if err != nil || markedAt < cutoff {
			if err := c.client.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
