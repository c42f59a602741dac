package dispatch

import (
	"context"

	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
)

// BlockObserver is the whole-block observer variant: one queue item is one
// complete block with all of its enriched transactions. Block observers are
// always subscribed to every block; there is no per-type filtering.
type BlockObserver struct {
	w *worker[*BlockData]
}

var _ Observer = (*BlockObserver)(nil)

// NewBlockObserver creates a block observer named name whose drain loop
// invokes process once per dequeued block.
//
// The default queue capacity is 16 blocks.
func NewBlockObserver(name string, process BlockProcessFunc, opts ...ObserverOption) *BlockObserver {
	cfg := observerConfig{capacity: defaultBlockQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Named("observer." + name)
	}

	return &BlockObserver{
		w: &worker[*BlockData]{
			name:     name,
			capacity: cfg.capacity,
			log:      cfg.log,
			process: func(ctx context.Context, block *BlockData) error {
				return process(ctx, block)
			},
			measure: func(rec *statsRecord, block *BlockData) {
				count := len(block.Transactions)

				rec.blocksProcessed++
				rec.blockTxTotal += uint64(count)
				if count > rec.maxBlockTxCount {
					rec.maxBlockTxCount = count
				}
			},
		},
	}
}

// Name returns the observer's name.
func (o *BlockObserver) Name() string { return o.w.name }

// Stats returns a snapshot of the observer's counters, including the
// per-block transaction count extras.
func (o *BlockObserver) Stats() ObserverStats { return o.w.snapshot() }

// EnqueueBlock accepts one whole block into the observer's queue and returns
// immediately.
func (o *BlockObserver) EnqueueBlock(ctx context.Context, block *BlockData) {
	o.w.enqueue(ctx, block)
}

func (o *BlockObserver) closeQueue() { o.w.close() }
func (o *BlockObserver) waitQueue(ctx context.Context) error { return o.w.awaitDrain(ctx) }
