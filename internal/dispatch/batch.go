package dispatch

import (
	"context"
	"slices"

	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
)

// BatchObserver is the batched-by-type observer variant: one queue item is one
// block's worth of transactions grouped by contract type. Each batch observer
// declares up front which contract types it wants grouped; the registry hands
// it only those groups.
type BatchObserver struct {
	w     *worker[TransactionBatches]
	types []string
}

var _ Observer = (*BatchObserver)(nil)

// NewBatchObserver creates a batch observer named name that is interested in
// the given contract types. The drain loop invokes process once per dequeued
// batch group.
//
// The default queue capacity is 128 batch groups.
func NewBatchObserver(name string, types []string, process BatchProcessFunc, opts ...ObserverOption) *BatchObserver {
	cfg := observerConfig{capacity: defaultBatchQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Named("observer." + name)
	}

	return &BatchObserver{
		types: slices.Clone(types),
		w: &worker[TransactionBatches]{
			name:     name,
			capacity: cfg.capacity,
			log:      cfg.log,
			process: func(ctx context.Context, batches TransactionBatches) error {
				return process(ctx, batches)
			},
			measure: func(rec *statsRecord, batches TransactionBatches) {
				size := batches.Flatten()

				rec.batchesProcessed++
				rec.batchTxTotal += uint64(size)
				if size > rec.maxBatchSize {
					rec.maxBatchSize = size
				}
			},
		},
	}
}

// Name returns the observer's name.
func (o *BatchObserver) Name() string { return o.w.name }

// Stats returns a snapshot of the observer's counters, including the
// batch-size distribution extras.
func (o *BatchObserver) Stats() ObserverStats { return o.w.snapshot() }

// Types returns a copy of the contract types this observer declared interest in.
func (o *BatchObserver) Types() []string { return slices.Clone(o.types) }

// EnqueueBatch accepts one block's worth of grouped transactions into the
// observer's queue and returns immediately. Callers must never pass types the
// observer did not declare, nor empty groups; the registry enforces both.
func (o *BatchObserver) EnqueueBatch(ctx context.Context, batches TransactionBatches) {
	o.w.enqueue(ctx, batches)
}

func (o *BatchObserver) closeQueue() { o.w.close() }
func (o *BatchObserver) waitQueue(ctx context.Context) error { return o.w.awaitDrain(ctx) }
