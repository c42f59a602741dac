package dispatch

// Thresholds holds the minimum TRX-equivalent amounts a transaction must move
// for the amount-gated categories to apply. Thresholds are injected once at
// construction of the enrichment pipeline and are immutable for the lifetime
// of a dispatch cycle.
//
// The comparison is inclusive: an amount exactly at the threshold qualifies.
type Thresholds struct {
	DelegationAmountTRX float64 `validate:"gte=0"` // Minimum TRX for IsDelegation
	StakeAmountTRX      float64 `validate:"gte=0"` // Minimum TRX for IsStake
}

// Classify derives the category flags for a transaction payload against the
// given thresholds.
//
// Classify is pure and total: it never fails, and identical inputs always
// yield identical flags. A payload with a missing amount is treated as moving
// 0 TRX, which fails every amount-gated category.
//
// Delegation and stake require both a contract-type match and an amount at or
// above the corresponding threshold. Token creation is decided by contract
// type alone.
func Classify(payload TransactionPayload, thresholds Thresholds) Categories {
	switch payload.ContractType {
	case ContractDelegateResource, ContractUnDelegateResource:
		return Categories{IsDelegation: payload.AmountTRX >= thresholds.DelegationAmountTRX}
	case ContractFreezeBalanceV2, ContractUnfreezeBalanceV2:
		return Categories{IsStake: payload.AmountTRX >= thresholds.StakeAmountTRX}
	case ContractAssetIssue:
		return Categories{IsTokenCreation: true}
	default:
		return Categories{}
	}
}
