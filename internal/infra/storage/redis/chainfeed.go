package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/delphian/tronrelic-sub011/internal/chainfeed"

	"github.com/redis/go-redis/v9"
)

// chainfeedCheckpointKey is the Redis key storing the height of the last
// fully dispatched block.
const chainfeedCheckpointKey = "tronrelic:chainfeed:checkpoint"

// SaveCheckpoint persists the height of the last fully dispatched block so a
// restarted feed resumes from the right position. The checkpoint is stored
// without expiration.
func (c *client) SaveCheckpoint(ctx context.Context, height int64) error {
	return c.conn.Set(ctx, chainfeedCheckpointKey, height, 0).Err()
}

// LoadLatestCheckpoint retrieves the most recently saved block height. A
// missing key maps to chainfeed.ErrNoCheckpointFound.
func (c *client) LoadLatestCheckpoint(ctx context.Context) (int64, error) {
	val, err := c.conn.Get(ctx, chainfeedCheckpointKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = chainfeed.ErrNoCheckpointFound
		}
		return 0, err
	}

	return strconv.ParseInt(val, 10, 64)
}

// Compile-time assertion that client implements the CheckpointStorage interface.
var _ chainfeed.CheckpointStorage = new(client)
