package chainfeed

import (
	"context"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/pkg/types"
)

// Dispatcher is the downstream boundary the feed pushes into. It is satisfied
// by *dispatch.Registry; the indirection exists so feed tests can record
// fan-out calls without spinning up real observers.
//
// All three enqueue methods follow the acceptance-not-completion contract:
// they return once the item has been taken into the matching observers'
// queues.
type Dispatcher interface {
	// NotifyTransaction routes one enriched transaction by contract type.
	NotifyTransaction(ctx context.Context, tx *dispatch.Transaction)

	// EnqueueBatch hands one block's worth of grouped transactions to the
	// batch observer set.
	EnqueueBatch(ctx context.Context, batches dispatch.TransactionBatches)

	// EnqueueBlock hands one whole block to the block observer set.
	EnqueueBlock(ctx context.Context, block *dispatch.BlockData)

	// BatchTypeInterest reports the union of contract types batch observers
	// declared, letting the feed skip batch grouping when nobody cares.
	BatchTypeInterest() types.Set[string]
}

// PriceSource supplies the TRX/USD conversion rate used to enrich payload
// amounts. Implementations may cache aggressively; the feed asks once per
// block.
type PriceSource interface {
	// TRXPriceUSD returns the current USD price of one TRX. A zero price with
	// a nil error means the source has no quote right now; enrichment then
	// leaves AmountUSD at zero.
	TRXPriceUSD(ctx context.Context) (float64, error)
}

// nopPriceSource is the default PriceSource: it never has a quote.
type nopPriceSource struct{}

var _ PriceSource = nopPriceSource{}

func (nopPriceSource) TRXPriceUSD(ctx context.Context) (float64, error) {
	return 0, nil
}
