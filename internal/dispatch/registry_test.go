package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver collects processed transaction IDs behind a mutex.
type recordingObserver struct {
	observer *SimpleObserver

	mu  sync.Mutex
	ids []string
}

func newRecordingObserver(name string, opts ...ObserverOption) *recordingObserver {
	rec := new(recordingObserver)
	rec.observer = NewSimpleObserver(name, func(ctx context.Context, tx *Transaction) error {
		rec.mu.Lock()
		rec.ids = append(rec.ids, tx.Payload.TxID)
		rec.mu.Unlock()
		return nil
	}, opts...)
	return rec
}

func (r *recordingObserver) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestRegistry_NotifyTransaction(t *testing.T) {
	t.Run("routes transactions to observers of the matching type only", func(t *testing.T) {
		registry := NewRegistry()
		transfers := newRecordingObserver("transfers")
		delegations := newRecordingObserver("delegations")

		registry.SubscribeTransactionType(t.Context(), ContractTransfer, transfers.observer)
		registry.SubscribeTransactionType(t.Context(), ContractDelegateResource, delegations.observer)

		registry.NotifyTransaction(t.Context(), testTx("tx-1", ContractTransfer))
		registry.NotifyTransaction(t.Context(), testTx("tx-2", ContractDelegateResource))
		registry.NotifyTransaction(t.Context(), testTx("tx-3", ContractTransfer))

		require.Eventually(t, func() bool {
			return transfers.observer.Stats().TotalProcessed == 2 &&
				delegations.observer.Stats().TotalProcessed == 1
		}, time.Second, time.Millisecond)

		assert.Equal(t, []string{"tx-1", "tx-3"}, transfers.seen())
		assert.Equal(t, []string{"tx-2"}, delegations.seen())
	})

	t.Run("fans a single transaction out to every subscriber of its type", func(t *testing.T) {
		registry := NewRegistry()
		first := newRecordingObserver("first")
		second := newRecordingObserver("second")

		registry.SubscribeTransactionType(t.Context(), ContractTransfer, first.observer)
		registry.SubscribeTransactionType(t.Context(), ContractTransfer, second.observer)

		registry.NotifyTransaction(t.Context(), testTx("tx-1", ContractTransfer))

		require.Eventually(t, func() bool {
			return first.observer.Stats().TotalProcessed == 1 &&
				second.observer.Stats().TotalProcessed == 1
		}, time.Second, time.Millisecond)
	})

	t.Run("a type with no subscribers is a silent no-op", func(t *testing.T) {
		registry := NewRegistry()

		registry.NotifyTransaction(t.Context(), testTx("tx-1", ContractTriggerSmart))

		assert.Empty(t, registry.SubscriptionStats())
		assert.Zero(t, registry.AggregateStats().TotalProcessed)
	})

	t.Run("a slow observer does not delay a fast one", func(t *testing.T) {
		registry := NewRegistry()
		gate := make(chan struct{})
		defer close(gate)

		slow := NewSimpleObserver("slow", func(ctx context.Context, tx *Transaction) error {
			<-gate
			return nil
		})
		fast := newRecordingObserver("fast")

		registry.SubscribeTransactionType(t.Context(), ContractTransfer, slow)
		registry.SubscribeTransactionType(t.Context(), ContractTransfer, fast.observer)

		for i := range 10 {
			registry.NotifyTransaction(t.Context(), testTx(fmt.Sprintf("tx-%d", i), ContractTransfer))
		}

		require.Eventually(t, func() bool {
			return fast.observer.Stats().TotalProcessed == 10
		}, time.Second, time.Millisecond)

		assert.Less(t, slow.Stats().TotalProcessed, uint64(10))
	})
}

func TestRegistry_RoutingIgnoresThresholds(t *testing.T) {
	t.Run("below-threshold delegations are still delivered, just unflagged", func(t *testing.T) {
		registry := NewRegistry()
		thresholds := Thresholds{DelegationAmountTRX: 1000}

		type received struct {
			txID         string
			isDelegation bool
		}
		seen := make(chan received, 2)

		observer := NewSimpleObserver("delegations", func(ctx context.Context, tx *Transaction) error {
			seen <- received{txID: tx.Payload.TxID, isDelegation: tx.Categories.IsDelegation}
			return nil
		})
		registry.SubscribeTransactionType(t.Context(), ContractDelegateResource, observer)

		notify := func(txID string, amountTRX float64) {
			payload := TransactionPayload{
				TxID:         txID,
				ContractType: ContractDelegateResource,
				AmountTRX:    amountTRX,
			}
			registry.NotifyTransaction(t.Context(), &Transaction{
				Payload:    payload,
				Categories: Classify(payload, thresholds),
			})
		}

		notify("tx-below", 999)
		notify("tx-at", 1000)

		first := <-seen
		second := <-seen
		assert.Equal(t, received{txID: "tx-below", isDelegation: false}, first)
		assert.Equal(t, received{txID: "tx-at", isDelegation: true}, second)
	})
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	t.Run("subscribing the same observer twice for one type is a no-op", func(t *testing.T) {
		registry := NewRegistry()
		rec := newRecordingObserver("dupe")

		registry.SubscribeTransactionType(t.Context(), ContractTransfer, rec.observer)
		registry.SubscribeTransactionType(t.Context(), ContractTransfer, rec.observer)

		assert.Equal(t, map[string]int{ContractTransfer: 1}, registry.SubscriptionStats())

		registry.NotifyTransaction(t.Context(), testTx("tx-1", ContractTransfer))

		require.Eventually(t, func() bool {
			return rec.observer.Stats().TotalProcessed == 1
		}, time.Second, time.Millisecond)
		assert.Equal(t, []string{"tx-1"}, rec.seen())
	})

	t.Run("one observer may subscribe to several types and is counted once", func(t *testing.T) {
		registry := NewRegistry()
		rec := newRecordingObserver("multi")

		registry.SubscribeTransactionType(t.Context(), ContractTransfer, rec.observer)
		registry.SubscribeTransactionType(t.Context(), ContractDelegateResource, rec.observer)

		assert.Len(t, registry.AllObserverStats(), 1)
		assert.Equal(t, map[string]int{
			ContractTransfer:         1,
			ContractDelegateResource: 1,
		}, registry.SubscriptionStats())
	})

	t.Run("registering the same batch observer twice is a no-op", func(t *testing.T) {
		registry := NewRegistry()
		observer := NewBatchObserver("batch", []string{ContractTransfer},
			func(ctx context.Context, batches TransactionBatches) error { return nil },
		)

		registry.RegisterBatchObserver(t.Context(), observer)
		registry.RegisterBatchObserver(t.Context(), observer)

		assert.Len(t, registry.AllObserverStats(), 1)
	})
}

func TestRegistry_EnqueueBatch(t *testing.T) {
	t.Run("each batch observer sees only its declared types", func(t *testing.T) {
		registry := NewRegistry()

		var (
			mu   sync.Mutex
			seen []TransactionBatches
		)
		observer := NewBatchObserver("transfer-only", []string{ContractTransfer},
			func(ctx context.Context, batches TransactionBatches) error {
				mu.Lock()
				seen = append(seen, batches)
				mu.Unlock()
				return nil
			},
		)
		registry.RegisterBatchObserver(t.Context(), observer)

		registry.EnqueueBatch(t.Context(), TransactionBatches{
			ContractTransfer:         {testTx("a", ContractTransfer)},
			ContractDelegateResource: {testTx("b", ContractDelegateResource)},
		})

		require.Eventually(t, func() bool {
			return observer.Stats().TotalProcessed == 1
		}, time.Second, time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, seen, 1)
		assert.Contains(t, seen[0], ContractTransfer)
		assert.NotContains(t, seen[0], ContractDelegateResource)
	})

	t.Run("an observer with no matching groups is skipped", func(t *testing.T) {
		registry := NewRegistry()
		observer := NewBatchObserver("stake-only", []string{ContractFreezeBalanceV2},
			func(ctx context.Context, batches TransactionBatches) error { return nil },
		)
		registry.RegisterBatchObserver(t.Context(), observer)

		registry.EnqueueBatch(t.Context(), TransactionBatches{
			ContractTransfer: {testTx("a", ContractTransfer)},
		})

		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, observer.Stats().TotalProcessed)
	})

	t.Run("type interest is the union across batch observers", func(t *testing.T) {
		registry := NewRegistry()
		registry.RegisterBatchObserver(t.Context(), NewBatchObserver("a", []string{ContractTransfer},
			func(ctx context.Context, batches TransactionBatches) error { return nil },
		))
		registry.RegisterBatchObserver(t.Context(), NewBatchObserver("b", []string{ContractTransfer, ContractFreezeBalanceV2},
			func(ctx context.Context, batches TransactionBatches) error { return nil },
		))

		interest := registry.BatchTypeInterest()
		assert.Len(t, interest, 2)
		assert.Contains(t, interest, ContractTransfer)
		assert.Contains(t, interest, ContractFreezeBalanceV2)
	})
}

func TestRegistry_EnqueueBlock(t *testing.T) {
	t.Run("every block observer receives every block", func(t *testing.T) {
		registry := NewRegistry()

		observers := make([]*BlockObserver, 2)
		for i := range observers {
			observers[i] = NewBlockObserver(fmt.Sprintf("block-%d", i),
				func(ctx context.Context, block *BlockData) error { return nil },
			)
			registry.RegisterBlockObserver(t.Context(), observers[i])
		}

		registry.EnqueueBlock(t.Context(), &BlockData{Number: 1})
		registry.EnqueueBlock(t.Context(), &BlockData{Number: 2})

		require.Eventually(t, func() bool {
			for _, observer := range observers {
				if observer.Stats().TotalProcessed != 2 {
					return false
				}
			}
			return true
		}, time.Second, time.Millisecond)
	})
}

func TestRegistry_Stats(t *testing.T) {
	t.Run("aggregate totals equal the per-observer sums", func(t *testing.T) {
		registry := NewRegistry()
		transfers := newRecordingObserver("transfers")
		failing := NewSimpleObserver("failing", func(ctx context.Context, tx *Transaction) error {
			return fmt.Errorf("reject %s", tx.Payload.TxID)
		})

		registry.SubscribeTransactionType(t.Context(), ContractTransfer, transfers.observer)
		registry.SubscribeTransactionType(t.Context(), ContractDelegateResource, failing)

		for i := range 4 {
			registry.NotifyTransaction(t.Context(), testTx(fmt.Sprintf("ok-%d", i), ContractTransfer))
		}
		registry.NotifyTransaction(t.Context(), testTx("bad-0", ContractDelegateResource))

		require.Eventually(t, func() bool {
			agg := registry.AggregateStats()
			return agg.TotalProcessed == 4 && agg.TotalErrors == 1
		}, time.Second, time.Millisecond)

		agg := registry.AggregateStats()
		assert.Equal(t, 2, agg.ObserverCount)
		assert.Equal(t, 1, agg.ObserversWithErrors)
		assert.Equal(t, float64(1), agg.HighestErrorRate)
		assert.Zero(t, agg.TotalQueueDepth)

		var processed, errs uint64
		for _, st := range registry.AllObserverStats() {
			processed += st.TotalProcessed
			errs += st.TotalErrors
		}
		assert.Equal(t, processed, agg.TotalProcessed)
		assert.Equal(t, errs, agg.TotalErrors)
	})
}

func TestRegistry_Lifecycle(t *testing.T) {
	t.Run("close stops fan-out and wait drains the remainder", func(t *testing.T) {
		registry := NewRegistry()
		rec := newRecordingObserver("draining")
		registry.SubscribeTransactionType(t.Context(), ContractTransfer, rec.observer)

		for i := range 20 {
			registry.NotifyTransaction(t.Context(), testTx(fmt.Sprintf("tx-%d", i), ContractTransfer))
		}

		registry.Close()
		require.NoError(t, registry.Wait(t.Context()))

		processed := rec.observer.Stats().TotalProcessed

		// Fan-out after close must not reach any observer.
		registry.NotifyTransaction(t.Context(), testTx("late", ContractTransfer))
		registry.EnqueueBlock(t.Context(), &BlockData{Number: 99})

		assert.Equal(t, processed, rec.observer.Stats().TotalProcessed)
		assert.NotContains(t, rec.seen(), "late")
	})

	t.Run("wait honors its context deadline", func(t *testing.T) {
		registry := NewRegistry()
		gate := make(chan struct{})
		defer close(gate)

		stuck := NewSimpleObserver("stuck", func(ctx context.Context, tx *Transaction) error {
			<-gate
			return nil
		})
		registry.SubscribeTransactionType(t.Context(), ContractTransfer, stuck)
		registry.NotifyTransaction(t.Context(), testTx("tx-1", ContractTransfer))

		registry.Close()

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, registry.Wait(ctx), context.DeadlineExceeded)
	})
}
