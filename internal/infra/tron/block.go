package tron

import (
	"encoding/hex"
	"errors"
	"time"
	"unicode/utf8"

	"encoding/json"

	"github.com/delphian/tronrelic-sub011/internal/chainfeed"
)

// ErrMalformedBlock indicates the node returned block JSON missing required
// header fields.
var ErrMalformedBlock = errors.New("malformed block response")

// blockResponse mirrors the wallet API's block JSON. Only the fields the feed
// needs are mapped; contract parameter values stay raw.
type blockResponse struct {
	BlockID     string `json:"blockID"`
	BlockHeader struct {
		RawData struct {
			Number         int64  `json:"number"`
			ParentHash     string `json:"parentHash"`
			WitnessAddress string `json:"witness_address"`
			Timestamp      int64  `json:"timestamp"`
		} `json:"raw_data"`
	} `json:"block_header"`
	Transactions []transactionResponse `json:"transactions"`
}

// transactionResponse mirrors one transaction inside a block response.
type transactionResponse struct {
	TxID    string `json:"txID"`
	RawData struct {
		Timestamp int64  `json:"timestamp"`
		Data      string `json:"data"` // hex-encoded memo
		Contract  []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value json.RawMessage `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
	Ret []json.RawMessage `json:"ret"`
}

// contractValue extracts the address and amount fields shared across TRON
// contract types. A given contract type populates only a subset of them.
type contractValue struct {
	OwnerAddress    string `json:"owner_address"`
	ToAddress       string `json:"to_address"`
	ReceiverAddress string `json:"receiver_address"`
	ContractAddress string `json:"contract_address"`
	Amount          int64  `json:"amount"`
	Balance         int64  `json:"balance"`
	FrozenBalance   int64  `json:"frozen_balance"`
}

// recipient picks the address this contract directs value or resources to.
func (v contractValue) recipient() string {
	switch {
	case v.ToAddress != "":
		return v.ToAddress
	case v.ReceiverAddress != "":
		return v.ReceiverAddress
	default:
		return v.ContractAddress
	}
}

// amountSun picks the moved amount in sun; contract types name the field
// differently.
func (v contractValue) amountSun() int64 {
	switch {
	case v.Amount != 0:
		return v.Amount
	case v.Balance != 0:
		return v.Balance
	default:
		return v.FrozenBalance
	}
}

// decodeMemo converts the hex-encoded raw_data.data field into UTF-8. Invalid
// hex or non-text payloads yield an empty memo rather than an error.
func decodeMemo(data string) string {
	if data == "" {
		return ""
	}

	decoded, err := hex.DecodeString(data)
	if err != nil || !utf8.Valid(decoded) {
		return ""
	}
	return string(decoded)
}

// toRawTransaction converts one node transaction. TRON allows multiple
// contracts per transaction in theory but never produces them in practice; the
// first contract is authoritative.
func (t transactionResponse) toRawTransaction() chainfeed.RawTransaction {
	raw := chainfeed.RawTransaction{
		TxID:      t.TxID,
		Timestamp: time.UnixMilli(t.RawData.Timestamp),
		Memo:      decodeMemo(t.RawData.Data),
	}

	if len(t.RawData.Contract) > 0 {
		contract := t.RawData.Contract[0]
		raw.ContractType = contract.Type
		raw.RawContract = contract.Parameter.Value

		var value contractValue
		if err := json.Unmarshal(contract.Parameter.Value, &value); err == nil {
			raw.FromAddress = value.OwnerAddress
			raw.ToAddress = value.recipient()
			raw.AmountSun = value.amountSun()
		}
	}

	if len(t.Ret) > 0 {
		raw.Receipt = t.Ret[0]
	}

	return raw
}

// toRawBlock converts a full block response into the feed's raw model.
func (r blockResponse) toRawBlock() (chainfeed.RawBlock, error) {
	if r.BlockID == "" {
		return chainfeed.RawBlock{}, ErrMalformedBlock
	}

	block := chainfeed.RawBlock{
		Number:       r.BlockHeader.RawData.Number,
		ID:           r.BlockID,
		ParentID:     r.BlockHeader.RawData.ParentHash,
		Producer:     r.BlockHeader.RawData.WitnessAddress,
		Timestamp:    time.UnixMilli(r.BlockHeader.RawData.Timestamp),
		Transactions: make([]chainfeed.RawTransaction, 0, len(r.Transactions)),
	}

	for _, tx := range r.Transactions {
		block.Transactions = append(block.Transactions, tx.toRawTransaction())
	}

	return block, nil
}
