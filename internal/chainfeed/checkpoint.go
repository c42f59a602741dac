package chainfeed

import (
	"context"
	"errors"
)

// ErrNoCheckpointFound is returned by LoadLatestCheckpoint when no checkpoint
// has been saved yet.
var ErrNoCheckpointFound = errors.New("no checkpoint found")

// CheckpointStorage persists the height of the last fully dispatched block so
// the feed can resume from the right position after a restart.
type CheckpointStorage interface {
	// SaveCheckpoint records height as the latest fully dispatched block.
	// Saving repeatedly overwrites the previous checkpoint.
	SaveCheckpoint(ctx context.Context, height int64) error

	// LoadLatestCheckpoint returns the most recently saved height, or
	// ErrNoCheckpointFound when nothing has been saved yet.
	LoadLatestCheckpoint(ctx context.Context) (int64, error)
}

// nopCheckpoint is the default CheckpointStorage when none is configured: it
// never finds a checkpoint and discards saves, so the feed always starts from
// the chain head.
type nopCheckpoint struct{}

var _ CheckpointStorage = nopCheckpoint{}

func (nopCheckpoint) SaveCheckpoint(ctx context.Context, height int64) error {
	return nil
}

func (nopCheckpoint) LoadLatestCheckpoint(ctx context.Context) (int64, error) {
	return 0, ErrNoCheckpointFound
}
