package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/plugin"

	"github.com/redis/go-redis/v9"
)

// pluginCacheKeyPrefix namespaces every key plugins store, keeping plugin
// state apart from the feed's own keys.
const pluginCacheKeyPrefix = "tronrelic:plugincache"

// pluginCacheKey builds the namespaced Redis key for a plugin cache entry.
func pluginCacheKey(key string) string {
	return fmt.Sprintf("%s:%s", pluginCacheKeyPrefix, key)
}

// Get returns the value stored under key. A missing key maps to
// plugin.ErrCacheMiss.
func (c *client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.conn.Get(ctx, pluginCacheKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = plugin.ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

// Set stores value under key with the given time-to-live. A zero ttl stores
// the value without expiration.
func (c *client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.conn.Set(ctx, pluginCacheKey(key), value, ttl).Err()
}

// Compile-time assertion that client implements the plugin Cache interface.
var _ plugin.Cache = new(client)
