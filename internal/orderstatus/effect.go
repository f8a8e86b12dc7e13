package orderstatus

import "github.com/angelmondragon/marginledger-backend/pkg/enums"

// Effect is what a status does to the store wallet.
type Effect string

const (
	EffectNone   Effect = "none"
	EffectCredit Effect = "credit_margin"
	EffectDebit  Effect = "debit_rto_penalty"
)

// EffectFor maps a canonical status to its ledger effect.
func EffectFor(status enums.OrderStatus) Effect {
	switch status {
	case enums.OrderStatusConfirmed, enums.OrderStatusConfirmedFulfilled, enums.OrderStatusConfirmedPartial:
		return EffectCredit
	case enums.OrderStatusCancelled, enums.OrderStatusRTO:
		return EffectDebit
	default:
		return EffectNone
	}
}

// TransactionType is the wallet transaction recorded for an effect.
func (e Effect) TransactionType() (enums.WalletTransactionType, bool) {
	switch e {
	case EffectCredit:
		return enums.WalletTransactionTypeMarginEarned, true
	case EffectDebit:
		return enums.WalletTransactionTypeRTOPenalty, true
	default:
		return "", false
	}
}

// LedgerOutcome reports what happened to the wallet after a status observation.
type LedgerOutcome string

const (
	// OutcomeApplied means a new wallet transaction was recorded.
	OutcomeApplied LedgerOutcome = "applied"
	// OutcomeSkipped means the status has no effect or the amount was zero or NA.
	OutcomeSkipped LedgerOutcome = "skipped"
	// OutcomeDuplicate means the transaction already existed.
	OutcomeDuplicate LedgerOutcome = "duplicate"
	// OutcomeQueued means application failed and a retry was queued.
	OutcomeQueued LedgerOutcome = "queued"
	// OutcomeFailed means application failed and could not be queued.
	OutcomeFailed LedgerOutcome = "failed"
)
