package chainfeed

import (
	"context"
	"encoding/json"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
	"github.com/delphian/tronrelic-sub011/internal/pkg/types"

	"github.com/google/uuid"
)

// txSnapshot is the compact real-time broadcast shape attached to every
// enriched transaction. The dispatch core never interprets it; it exists for
// broadcast-style consumers sitting behind observers.
type txSnapshot struct {
	TxID      string  `json:"txId"`
	Block     int64   `json:"block"`
	Type      string  `json:"type"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	AmountTRX float64 `json:"amountTrx"`
	AmountUSD float64 `json:"amountUsd,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// enrichTransaction converts one raw node transaction into the immutable
// dispatch model: canonical payload, broadcast snapshot, derived category
// flags, and the untouched raw contract value and receipt.
func (s *service) enrichTransaction(raw RawBlock, rtx RawTransaction, trxPriceUSD float64) *dispatch.Transaction {
	amountTRX := float64(rtx.AmountSun) / dispatch.SunPerTRX

	payload := dispatch.TransactionPayload{
		TxID:         rtx.TxID,
		BlockNumber:  raw.Number,
		Timestamp:    rtx.Timestamp,
		ContractType: rtx.ContractType,
		From:         dispatch.AddressInfo{Address: rtx.FromAddress},
		To:           dispatch.AddressInfo{Address: rtx.ToAddress},
		AmountSun:    rtx.AmountSun,
		AmountTRX:    amountTRX,
		AmountUSD:    amountTRX * trxPriceUSD,
		ContractData: rtx.RawContract,
		Memo:         rtx.Memo,
	}

	// Snapshot marshaling cannot fail for this plain struct.
	snapshot, _ := json.Marshal(txSnapshot{
		TxID:      payload.TxID,
		Block:     payload.BlockNumber,
		Type:      payload.ContractType,
		From:      payload.From.Address,
		To:        payload.To.Address,
		AmountTRX: payload.AmountTRX,
		AmountUSD: payload.AmountUSD,
		Timestamp: payload.Timestamp.UnixMilli(),
	})

	return &dispatch.Transaction{
		Payload:    payload,
		Snapshot:   snapshot,
		Categories: dispatch.Classify(payload, s.thresholds),
		RawValue:   rtx.RawContract,
		Info:       rtx.Receipt,
	}
}

// groupBatches builds the per-type batch groups for one block, restricted to
// the contract types at least one batch observer declared. Types with zero
// matching transactions never appear in the result.
func groupBatches(txs []*dispatch.Transaction, interest types.Set[string]) dispatch.TransactionBatches {
	groups := types.NewDefaultMap[string](func() []*dispatch.Transaction {
		return make([]*dispatch.Transaction, 0)
	})

	for _, tx := range txs {
		txType := tx.Payload.ContractType
		if _, ok := interest[txType]; !ok {
			continue
		}
		groups.Set(txType, append(groups.Get(txType), tx))
	}

	return dispatch.TransactionBatches(groups.ToMap())
}

// dispatchBlock enriches every transaction of one raw block and drives the
// dispatcher: NotifyTransaction per transaction, one EnqueueBatch when any
// batch observer cares about this block's types, and one EnqueueBlock. Each
// block cycle carries a correlation ID so the fan-out of a single block can be
// traced across log lines.
func (s *service) dispatchBlock(ctx context.Context, raw RawBlock) {
	cycleID := uuid.NewString()

	trxPriceUSD, err := s.priceSource.TRXPriceUSD(ctx)
	if err != nil {
		logger.Warn(ctx, "trx price unavailable, dispatching without usd amounts",
			"cycle.id", cycleID,
			"block.height", raw.Number,
			"error", err,
		)
		trxPriceUSD = 0
	}

	txs := make([]*dispatch.Transaction, 0, len(raw.Transactions))
	for _, rtx := range raw.Transactions {
		tx := s.enrichTransaction(raw, rtx, trxPriceUSD)
		txs = append(txs, tx)

		s.dispatcher.NotifyTransaction(ctx, tx)
	}

	if interest := s.dispatcher.BatchTypeInterest(); len(interest) > 0 {
		if batches := groupBatches(txs, interest); len(batches) > 0 {
			s.dispatcher.EnqueueBatch(ctx, batches)
		}
	}

	s.dispatcher.EnqueueBlock(ctx, &dispatch.BlockData{
		Number:           raw.Number,
		ID:               raw.ID,
		ParentID:         raw.ParentID,
		Producer:         raw.Producer,
		Timestamp:        raw.Timestamp,
		TransactionCount: len(raw.Transactions),
		Size:             raw.Size,
		Transactions:     txs,
	})

	logger.Debug(ctx, "block dispatched",
		"cycle.id", cycleID,
		"block.height", raw.Number,
		"block.transactions", len(txs),
	)
}
