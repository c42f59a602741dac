package dispatch

import (
	"context"
	"sync"

	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
	"github.com/delphian/tronrelic-sub011/internal/pkg/types"
)

// registeredObserver is the internal surface the registry needs from every
// variant: the public Observer contract plus lifecycle hooks for shutdown.
type registeredObserver interface {
	Observer
	closeQueue()
	waitQueue(ctx context.Context) error
}

// Registry owns the subscription table and performs fan-out of inbound
// transactions, batch groups, and blocks to all matching observers.
//
// Every fan-out call is fire-into-queue: it returns as soon as all matching
// observers have accepted the item into their own bounded queues, and never
// waits for any observer's processing. Completion is observable only through
// the statistics surface.
//
// The subscription table is written during plugin initialization and read on
// every dispatch, so all table access is guarded by a read/write mutex;
// initialization and first traffic may safely overlap.
type Registry struct {
	mu             sync.RWMutex
	subscriptions  map[string][]*SimpleObserver
	batchObservers []*BatchObserver
	blockObservers []*BlockObserver

	// observers lists every distinct registered instance in registration
	// order, across all variants, for the stats surface.
	observers []registeredObserver
	known     types.Set[Observer]

	closed bool
}

// NewRegistry creates an empty registry. One registry instance is constructed
// at process startup, handed to plugins through the plugin context, and closed
// at shutdown; there is no ambient global instance.
func NewRegistry() *Registry {
	return &Registry{
		subscriptions: make(map[string][]*SimpleObserver),
		known:         types.NewSet[Observer](),
	}
}

// track records a distinct observer instance for the stats surface. Callers
// must hold the write lock.
func (r *Registry) track(o registeredObserver) {
	if _, ok := r.known[o]; ok {
		return
	}
	r.known.Add(o)
	r.observers = append(r.observers, o)
}

// SubscribeTransactionType adds observer to the subscriber set for txType.
//
// Multiple observers per type and multiple types per observer are both legal.
// Registering the same observer instance twice for the same type is an
// idempotent no-op; the duplicate attempt is logged at debug level so plugin
// authors can spot redundant registrations.
func (r *Registry) SubscribeTransactionType(ctx context.Context, txType string, observer *SimpleObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subscriptions[txType] {
		if existing == observer {
			logger.Debug(ctx, "duplicate transaction type subscription ignored",
				"observer", observer.Name(),
				"transaction.type", txType,
			)
			return
		}
	}

	r.subscriptions[txType] = append(r.subscriptions[txType], observer)
	r.track(observer)

	logger.Info(ctx, "observer subscribed to transaction type",
		"observer", observer.Name(),
		"transaction.type", txType,
	)
}

// RegisterBatchObserver adds a batch observer to the fan-out set. Registering
// the same instance twice is an idempotent no-op.
func (r *Registry) RegisterBatchObserver(ctx context.Context, observer *BatchObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[observer]; ok {
		return
	}

	r.batchObservers = append(r.batchObservers, observer)
	r.track(observer)

	logger.Info(ctx, "batch observer registered",
		"observer", observer.Name(),
		"transaction.types", observer.Types(),
	)
}

// RegisterBlockObserver adds a block observer to the fan-out set. Block
// observers receive every block; there is no type filtering. Registering the
// same instance twice is an idempotent no-op.
func (r *Registry) RegisterBlockObserver(ctx context.Context, observer *BlockObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[observer]; ok {
		return
	}

	r.blockObservers = append(r.blockObservers, observer)
	r.track(observer)

	logger.Info(ctx, "block observer registered", "observer", observer.Name())
}

// NotifyTransaction fans one enriched transaction out to every simple observer
// subscribed to its contract type.
//
// The call returns once all matching observers have accepted the transaction
// into their queues; it never blocks on a slow observer. A transaction whose
// type has zero subscribers is silently dropped from dispatch — a valid,
// common state for any type no plugin has claimed yet, discoverable through
// SubscriptionStats.
func (r *Registry) NotifyTransaction(ctx context.Context, tx *Transaction) {
	r.mu.RLock()
	observers := r.subscriptions[tx.Payload.ContractType]
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return
	}

	for _, observer := range observers {
		observer.Enqueue(ctx, tx)
	}
}

// EnqueueBatch fans one block's worth of grouped transactions out to the batch
// observer set. Each observer receives a view restricted to the contract types
// it declared; observers with no matching groups in this block are skipped
// entirely rather than handed an empty item.
func (r *Registry) EnqueueBatch(ctx context.Context, batches TransactionBatches) {
	r.mu.RLock()
	observers := r.batchObservers
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return
	}

	for _, observer := range observers {
		view := make(TransactionBatches)
		for _, txType := range observer.types {
			if txs, ok := batches[txType]; ok {
				view[txType] = txs
			}
		}

		if len(view) == 0 {
			continue
		}
		observer.EnqueueBatch(ctx, view)
	}
}

// EnqueueBlock fans one whole block out to every registered block observer.
func (r *Registry) EnqueueBlock(ctx context.Context, block *BlockData) {
	r.mu.RLock()
	observers := r.blockObservers
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return
	}

	for _, observer := range observers {
		observer.EnqueueBlock(ctx, block)
	}
}

// BatchTypeInterest returns the union of contract types declared by all
// registered batch observers. The pipeline uses it to skip batch grouping
// entirely when no batch observer cares about a block's types.
func (r *Registry) BatchTypeInterest() types.Set[string] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	interest := types.NewSet[string]()
	for _, observer := range r.batchObservers {
		interest.Add(observer.types...)
	}
	return interest
}

// SubscriptionStats returns the number of simple observers subscribed per
// transaction type. A type with a zero count never appears; its absence is the
// signal.
func (r *Registry) SubscriptionStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int, len(r.subscriptions))
	for txType, observers := range r.subscriptions {
		stats[txType] = len(observers)
	}
	return stats
}

// AllObserverStats snapshots every registered observer's statistics, in
// registration order, without disturbing any observer's internal state.
func (r *Registry) AllObserverStats() []ObserverStats {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	all := make([]ObserverStats, 0, len(observers))
	for _, observer := range observers {
		all = append(all, observer.Stats())
	}
	return all
}

// AggregateStats computes the cross-observer rollup fresh on every call; it is
// never cached, since it feeds monitoring dashboards that must see current
// values.
func (r *Registry) AggregateStats() AggregateStats {
	return aggregate(r.AllObserverStats())
}

// Close stops the registry and every registered observer from accepting new
// items. In-flight drains keep running; use Wait to let them finish.
// Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	observers := r.observers
	r.mu.Unlock()

	for _, observer := range observers {
		observer.closeQueue()
	}
}

// Wait blocks until every observer's drain loop has finished its remaining
// queued work, or until ctx is done, whichever comes first. Call it after
// Close for a graceful shutdown with a caller-supplied deadline.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	for _, observer := range observers {
		if err := observer.waitQueue(ctx); err != nil {
			return err
		}
	}
	return nil
}
