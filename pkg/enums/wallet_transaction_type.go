package enums

import "fmt"

// WalletTransactionType maps to the wallet_transaction_type enum in Postgres.
type WalletTransactionType string

const (
	WalletTransactionTypeMarginEarned WalletTransactionType = "margin_earned"
	WalletTransactionTypeRTOPenalty   WalletTransactionType = "rto_penalty"
	WalletTransactionTypeWithdrawal   WalletTransactionType = "withdrawal"
	WalletTransactionTypeRefund       WalletTransactionType = "refund"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeMarginEarned,
	WalletTransactionTypeRTOPenalty,
	WalletTransactionTypeWithdrawal,
	WalletTransactionTypeRefund,
}

// IsValid reports whether the value matches the canonical wallet transaction enum.
func (t WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsOrderDriven reports whether the type is produced by an order status transition.
func (t WalletTransactionType) IsOrderDriven() bool {
	return t == WalletTransactionTypeMarginEarned || t == WalletTransactionTypeRTOPenalty
}

// ParseWalletTransactionType converts raw input into WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
