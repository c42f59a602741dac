// Package dispatch implements the transaction/block observer dispatch runtime:
// the subscription registry, the bounded-queue observer variants (simple,
// batch, block), the categorization logic used for routing decisions, and the
// statistics surface exposed for monitoring.
//
// The package sits between the block ingestion pipeline (the single producer)
// and a dynamic set of independently paced consumers. Its contract to the
// producer is acceptance, not completion: every fan-out call returns as soon as
// all matching observers have taken the item into their own queues.
package dispatch

import (
	"encoding/json"
	"time"
)

// TRON contract type discriminants used for routing and categorization.
// Observers may subscribe to any type string; these constants only cover the
// types the categorizer and the built-in plugins care about.
const (
	ContractTransfer           = "TransferContract"
	ContractTransferAsset      = "TransferAssetContract"
	ContractTriggerSmart       = "TriggerSmartContract"
	ContractDelegateResource   = "DelegateResourceContract"
	ContractUnDelegateResource = "UnDelegateResourceContract"
	ContractFreezeBalanceV2    = "FreezeBalanceV2Contract"
	ContractUnfreezeBalanceV2  = "UnfreezeBalanceV2Contract"
	ContractAssetIssue         = "AssetIssueContract"
)

// SunPerTRX is the number of sun (the base unit) in one TRX.
const SunPerTRX = 1_000_000

// AddressInfo is a blockchain address together with the metadata the upstream
// enrichment pipeline attached to it (a human-readable label and a coarse tag
// such as "exchange" or "contract"). Label and Tag are empty for unknown
// addresses.
type AddressInfo struct {
	Address string // Base58 TRON address
	Label   string // Human-readable owner label, if known
	Tag     string // Coarse classification tag, if known
}

// TransactionPayload is the canonical, persisted shape of an enriched
// transaction. It is the only part of a Transaction the dispatch core ever
// interprets: routing reads ContractType and categorization reads ContractType
// plus AmountTRX. Everything else is carried through untouched for observers.
type TransactionPayload struct {
	TxID          string          // Transaction hash
	BlockNumber   int64           // Height of the containing block
	Timestamp     time.Time       // Block-assigned transaction timestamp
	ContractType  string          // TRON contract type discriminant (e.g. "TransferContract")
	From          AddressInfo     // Sender with enrichment metadata
	To            AddressInfo     // Recipient with enrichment metadata
	AmountSun     int64           // Amount in base units (sun)
	AmountTRX     float64         // Amount converted to TRX
	AmountUSD     float64         // Amount converted to USD at dispatch time, 0 when no price was available
	EnergyUsed    int64           // Energy consumed, 0 when unknown
	BandwidthUsed int64           // Bandwidth consumed, 0 when unknown
	ContractData  json.RawMessage // Decoded contract call details, opaque to the dispatch core
	Memo          string          // Transaction memo, decoded to UTF-8 when present
	RiskScore     float64         // Upstream risk analysis score, 0 when not computed
	Patterns      []string        // Upstream pattern analysis hits, nil when not computed
}

// Categories holds the boolean semantic flags derived by Classify. They are
// computed once at enrichment time and never recomputed by the dispatch core,
// so a threshold change can never retroactively alter an already-dispatched
// decision.
type Categories struct {
	IsDelegation    bool // Resource delegation meeting the configured amount threshold
	IsStake         bool // Stake/unstake meeting the configured amount threshold
	IsTokenCreation bool // Token creation (no amount threshold)
}

// Transaction is the immutable, provider-agnostic transaction value flowing
// through the dispatch core. It is constructed once upstream, read-only from
// that point on, and discarded after every subscribed observer has drained it.
//
// Snapshot, RawValue, and Info are opaque to this package: Snapshot is the
// real-time broadcast shape, RawValue holds the original provider contract
// parameters, and Info carries the optional provider receipt (nil when the
// provider returned none).
type Transaction struct {
	Payload    TransactionPayload
	Snapshot   json.RawMessage
	Categories Categories
	RawValue   json.RawMessage
	Info       json.RawMessage
}

// TransactionBatches groups one block's transactions by contract type. Types
// with zero matching transactions are never present as empty slices; they are
// simply absent from the map.
type TransactionBatches map[string][]*Transaction

// Flatten returns the total number of transactions across all types in the
// batch group.
func (b TransactionBatches) Flatten() int {
	var n int
	for _, txs := range b {
		n += len(txs)
	}
	return n
}

// BlockData is one whole block after all per-transaction processing completed:
// block identity plus the complete ordered list of enriched transactions.
// It is immutable and owned solely by the pipeline until handed to block
// observers' queues.
type BlockData struct {
	Number           int64          // Block height
	ID               string         // Block hash
	ParentID         string         // Parent block hash
	Producer         string         // Witness address that produced the block
	Timestamp        time.Time      // Block timestamp
	TransactionCount int            // Declared transaction count
	Size             int64          // Block size in bytes, 0 when unknown
	Transactions     []*Transaction // Ordered enriched transactions
}
