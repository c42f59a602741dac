package dispatch

import (
	"context"

	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
)

// SimpleObserver is the per-transaction observer variant: one queue item is
// one enriched transaction. It is the variant plugins register against
// individual contract types.
type SimpleObserver struct {
	w *worker[*Transaction]
}

// Compile-time assertion that SimpleObserver satisfies the Observer surface.
var _ Observer = (*SimpleObserver)(nil)

// NewSimpleObserver creates a simple observer named name whose drain loop
// invokes process for every dequeued transaction.
//
// By default the queue holds up to 1024 transactions and the observer logs
// through a scope derived from its name; both can be overridden with
// WithQueueCapacity and WithObserverLogger.
func NewSimpleObserver(name string, process ProcessFunc, opts ...ObserverOption) *SimpleObserver {
	cfg := observerConfig{capacity: defaultSimpleQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Named("observer." + name)
	}

	return &SimpleObserver{
		w: &worker[*Transaction]{
			name:     name,
			capacity: cfg.capacity,
			log:      cfg.log,
			process: func(ctx context.Context, tx *Transaction) error {
				return process(ctx, tx)
			},
		},
	}
}

// Name returns the observer's name.
func (o *SimpleObserver) Name() string { return o.w.name }

// Stats returns a snapshot of the observer's counters.
func (o *SimpleObserver) Stats() ObserverStats { return o.w.snapshot() }

// Enqueue accepts one transaction into the observer's queue and returns
// immediately; processing happens on the observer's own drain loop. The queue
// overflow policy documented on the worker applies.
func (o *SimpleObserver) Enqueue(ctx context.Context, tx *Transaction) {
	o.w.enqueue(ctx, tx)
}

func (o *SimpleObserver) closeQueue() { o.w.close() }
func (o *SimpleObserver) waitQueue(ctx context.Context) error { return o.w.awaitDrain(ctx) }
