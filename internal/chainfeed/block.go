// Package chainfeed ingests blocks from a TRON node, enriches each raw
// transaction into the dispatch model, and drives the observer registry: one
// NotifyTransaction call per transaction, at most one EnqueueBatch and one
// EnqueueBlock call per block.
//
// The package is the single logical producer in front of the dispatch runtime.
// It follows the fan-out contract strictly: it hands items to the registry and
// moves on, never waiting for any observer's processing.
package chainfeed

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrBlockNotProduced is returned by Blockchain implementations when the
// requested height does not exist yet. The feed treats it as a signal to wait
// for the next polling round rather than as a failure.
var ErrBlockNotProduced = errors.New("block not yet produced")

// RawTransaction is one transaction exactly as the node reported it, before
// enrichment. RawContract preserves the original contract parameter value and
// Receipt the provider-specific execution info (nil when absent).
type RawTransaction struct {
	TxID         string          // Transaction hash
	ContractType string          // TRON contract type discriminant
	FromAddress  string          // Owner address
	ToAddress    string          // Recipient address, empty for self-directed contracts
	AmountSun    int64           // Moved amount in sun, 0 when the contract moves nothing
	Timestamp    time.Time       // Transaction timestamp
	Memo         string          // Decoded memo, empty when absent
	RawContract  json.RawMessage // Original contract parameter value
	Receipt      json.RawMessage // Provider receipt info, nil when absent
}

// RawBlock is one block exactly as the node reported it.
type RawBlock struct {
	Number       int64
	ID           string
	ParentID     string
	Producer     string
	Timestamp    time.Time
	Size         int64 // 0 when the node did not report a size
	Transactions []RawTransaction
}

// Blockchain is the source of TRON blocks.
type Blockchain interface {
	// FetchLatestBlock retrieves the most recent block the node knows about.
	FetchLatestBlock(ctx context.Context) (RawBlock, error)

	// FetchBlockByNumber retrieves the block at the given height. It returns
	// ErrBlockNotProduced when the chain has not reached that height yet.
	FetchBlockByNumber(ctx context.Context, number int64) (RawBlock, error)
}
