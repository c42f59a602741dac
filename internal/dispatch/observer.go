package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default queue capacities per observer variant. A queue item is one
// transaction for simple observers, one block's worth of grouped batches for
// batch observers, and one whole block for block observers, which is why the
// defaults shrink as the item size grows.
const (
	defaultSimpleQueueCapacity = 1024
	defaultBatchQueueCapacity  = 128
	defaultBlockQueueCapacity  = 16
)

// Observer is the capability surface shared by all observer variants. The
// enqueue operation is variant-specific and therefore not part of this
// interface.
type Observer interface {
	// Name returns the observer's unique display name, used in logs and stats.
	Name() string

	// Stats returns a point-in-time snapshot of the observer's counters
	// without disturbing its internal state.
	Stats() ObserverStats
}

// ProcessFunc handles one transaction dequeued by a simple observer.
type ProcessFunc func(ctx context.Context, tx *Transaction) error

// BatchProcessFunc handles one block's worth of transactions grouped by
// contract type, dequeued by a batch observer.
type BatchProcessFunc func(ctx context.Context, batches TransactionBatches) error

// BlockProcessFunc handles one whole block dequeued by a block observer.
type BlockProcessFunc func(ctx context.Context, block *BlockData) error

// observerConfig holds construction-time settings shared by all variants.
type observerConfig struct {
	capacity int                // maximum queue length before the overflow policy kicks in
	log      *zap.SugaredLogger // scoped logger for overflow and processing errors
}

// ObserverOption configures an observer at construction time.
type ObserverOption func(*observerConfig)

// WithQueueCapacity overrides the variant's default queue capacity. Values
// below 1 are ignored.
func WithQueueCapacity(n int) ObserverOption {
	return func(c *observerConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithObserverLogger sets the scoped logger the observer uses for overflow and
// processing-error reports. The plugin context uses this to pre-bind each
// plugin's observers to that plugin's logger scope.
func WithObserverLogger(l *zap.SugaredLogger) ObserverOption {
	return func(c *observerConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// worker is the queue/backpressure/statistics skeleton shared by the three
// observer variants. It owns a capacity-bounded FIFO queue, a single-flight
// drain loop, and the statistics record.
//
// Concurrency discipline: queue, drain gate, and stats are guarded by mu.
// At most one drain goroutine runs per worker at any time (the draining flag),
// and the user callback is invoked outside the lock, so different observers
// drain fully concurrently with each other and with the producer.
type worker[T any] struct {
	name     string
	capacity int
	process  func(ctx context.Context, item T) error
	measure  func(rec *statsRecord, item T) // variant hook for batch/block extras, may be nil
	log      *zap.SugaredLogger

	mu       sync.Mutex
	queue    []T
	draining bool
	closed   bool
	stats    statsRecord
	wg       sync.WaitGroup
}

// statsRecord is the mutable backing store behind ObserverStats snapshots.
// It is only ever touched under the owning worker's mutex.
type statsRecord struct {
	totalProcessed uint64
	totalErrors    uint64
	totalDropped   uint64

	latencyMin   time.Duration
	latencyMax   time.Duration
	latencyTotal time.Duration

	lastProcessedAt time.Time
	lastErrorAt     time.Time

	batchesProcessed uint64
	batchTxTotal     uint64
	maxBatchSize     int

	blocksProcessed uint64
	blockTxTotal    uint64
	maxBlockTxCount int
}

// recordSuccess folds one successful callback invocation into the record.
func (r *statsRecord) recordSuccess(elapsed time.Duration) {
	r.totalProcessed++
	r.lastProcessedAt = time.Now()

	r.latencyTotal += elapsed
	if r.totalProcessed == 1 || elapsed < r.latencyMin {
		r.latencyMin = elapsed
	}
	if elapsed > r.latencyMax {
		r.latencyMax = elapsed
	}
}

// enqueue appends an item to the queue and returns immediately. It never
// blocks the caller and never suspends.
//
// Overflow policy: when the queue is already at capacity, the entire queue is
// cleared (not just the oldest entry), the discarded count is added to
// totalDropped, and the new item is enqueued into the now-empty queue. This
// favors forward progress with fresh data over completeness for an overloaded
// consumer.
//
// The first enqueue into an empty, idle queue starts the drain goroutine. The
// drain runs detached from the producer's context so that in-flight items are
// still processed after the producing call returns.
func (w *worker[T]) enqueue(ctx context.Context, item T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if len(w.queue) >= w.capacity {
		dropped := len(w.queue)
		w.queue = w.queue[:0]
		w.stats.totalDropped += uint64(dropped)

		w.log.Errorw("observer queue overflow, queue cleared",
			"observer", w.name,
			"dropped", dropped,
			"capacity", w.capacity,
		)
	}

	w.queue = append(w.queue, item)

	if !w.draining {
		w.draining = true
		w.wg.Add(1)
		go w.drain(context.WithoutCancel(ctx))
	}
}

// drain pulls items off the head of the queue one at a time and invokes the
// user callback until the queue is observed empty. A failing item is counted
// and logged, and the loop continues with the next item.
func (w *worker[T]) drain(ctx context.Context) {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.draining = false
			w.mu.Unlock()
			return
		}
		item := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		start := time.Now()
		err := w.invoke(ctx, item)
		elapsed := time.Since(start)

		w.mu.Lock()
		if err != nil {
			w.stats.totalErrors++
			w.stats.lastErrorAt = time.Now()
			w.mu.Unlock()

			w.log.Errorw("observer processing failed",
				"observer", w.name,
				"error", err,
			)
			continue
		}

		w.stats.recordSuccess(elapsed)
		if w.measure != nil {
			w.measure(&w.stats, item)
		}
		w.mu.Unlock()
	}
}

// invoke runs the user callback for one item, converting a panic in
// plugin-supplied code into an ordinary processing error so that one bad item
// can never take down the drain loop or the process.
func (w *worker[T]) invoke(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer callback panicked: %v", r)
		}
	}()

	return w.process(ctx, item)
}

// close stops the worker from accepting further items. The in-flight drain,
// if any, keeps running until its queue is empty.
func (w *worker[T]) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// awaitDrain blocks until the drain loop has finished all queued work or the
// context is done, whichever comes first. It is only meaningful after close.
func (w *worker[T]) awaitDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// durationToMillis converts a duration to fractional milliseconds.
func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// snapshot builds an ObserverStats copy of the current counters.
func (w *worker[T]) snapshot() ObserverStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := ObserverStats{
		Name:            w.name,
		QueueDepth:      len(w.queue),
		TotalProcessed:  w.stats.totalProcessed,
		TotalErrors:     w.stats.totalErrors,
		TotalDropped:    w.stats.totalDropped,
		MinLatencyMs:    durationToMillis(w.stats.latencyMin),
		MaxLatencyMs:    durationToMillis(w.stats.latencyMax),
		LastProcessedAt: w.stats.lastProcessedAt,
		LastErrorAt:     w.stats.lastErrorAt,

		BatchesProcessed: w.stats.batchesProcessed,
		MaxBatchSize:     w.stats.maxBatchSize,
		BlocksProcessed:  w.stats.blocksProcessed,
		MaxBlockTxCount:  w.stats.maxBlockTxCount,
	}

	if w.stats.totalProcessed > 0 {
		st.AvgLatencyMs = durationToMillis(w.stats.latencyTotal) / float64(w.stats.totalProcessed)
		st.ErrorRate = float64(w.stats.totalErrors) / float64(w.stats.totalProcessed)
	}
	if w.stats.batchesProcessed > 0 {
		st.AvgBatchSize = float64(w.stats.batchTxTotal) / float64(w.stats.batchesProcessed)
	}
	if w.stats.blocksProcessed > 0 {
		st.AvgBlockTxCount = float64(w.stats.blockTxTotal) / float64(w.stats.blocksProcessed)
	}

	return st
}
