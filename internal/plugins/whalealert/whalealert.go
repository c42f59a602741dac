// Package whalealert is a built-in plugin that watches for large TRX
// movements. It subscribes a single simple observer to transfer and delegation
// contract types and logs an alert for every transaction at or above its
// configured minimum amount, de-duplicating through the plugin cache so a
// re-dispatched block never alerts twice.
package whalealert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/plugin"
)

// dedupeTTL bounds how long an alerted transaction hash is remembered. Blocks
// are only ever re-dispatched shortly after a restart, so a day is plenty.
const dedupeTTL = 24 * time.Hour

// watchedTypes are the contract types the plugin subscribes to.
var watchedTypes = []string{
	dispatch.ContractTransfer,
	dispatch.ContractDelegateResource,
}

// Plugin implements plugin.Plugin.
type Plugin struct {
	minAmountTRX float64
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates a whale-alert plugin that alerts on transactions moving at least
// minAmountTRX.
func New(minAmountTRX float64) *Plugin {
	return &Plugin{
		minAmountTRX: minAmountTRX,
	}
}

// Name returns the plugin name used for logger scoping.
func (p *Plugin) Name() string {
	return "whale-alert"
}

// Init registers the plugin's observer for every watched contract type.
func (p *Plugin) Init(ctx context.Context, pctx *plugin.Context) error {
	observer := pctx.NewObserver("whale-alert", p.processFunc(pctx))

	for _, txType := range watchedTypes {
		pctx.Registry.SubscribeTransactionType(ctx, txType, observer)
	}
	return nil
}

// dedupeKey builds the cache key marking a transaction as already alerted.
func dedupeKey(txID string) string {
	return "whalealert:alerted:" + txID
}

// processFunc returns the observer callback bound to the plugin's context.
func (p *Plugin) processFunc(pctx *plugin.Context) dispatch.ProcessFunc {
	return func(ctx context.Context, tx *dispatch.Transaction) error {
		if tx.Payload.AmountTRX < p.minAmountTRX {
			return nil
		}

		key := dedupeKey(tx.Payload.TxID)
		if _, err := pctx.Cache.Get(ctx, key); err == nil {
			return nil
		} else if !errors.Is(err, plugin.ErrCacheMiss) {
			return fmt.Errorf("checking alert dedupe mark: %w", err)
		}

		pctx.Logger.Infow("whale movement detected",
			"tx.id", tx.Payload.TxID,
			"tx.type", tx.Payload.ContractType,
			"tx.from", tx.Payload.From.Address,
			"tx.to", tx.Payload.To.Address,
			"tx.amount_trx", tx.Payload.AmountTRX,
			"tx.amount_usd", tx.Payload.AmountUSD,
			"tx.is_delegation", tx.Categories.IsDelegation,
			"block.height", tx.Payload.BlockNumber,
		)

		if err := pctx.Cache.Set(ctx, key, "1", dedupeTTL); err != nil {
			return fmt.Errorf("storing alert dedupe mark: %w", err)
		}
		return nil
	}
}
