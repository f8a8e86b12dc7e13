package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/enums"
)

// WalletTransaction is an immutable balance-affecting record. Rows are never
// updated or deleted.
type WalletTransaction struct {
	ID             uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StoreDomain    string                      `gorm:"column:store_domain;not null" json:"store"`
	OrderID        *string                     `gorm:"column:order_id" json:"order_id,omitempty"`
	OrderNumber    *string                     `gorm:"column:order_number" json:"order_number,omitempty"`
	Type           enums.WalletTransactionType `gorm:"column:type;type:wallet_transaction_type_enum;not null" json:"type"`
	Amount         decimal.Decimal             `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	BalanceBefore  decimal.Decimal             `gorm:"column:balance_before;type:numeric(14,2);not null" json:"balance_before"`
	BalanceAfter   decimal.Decimal             `gorm:"column:balance_after;type:numeric(14,2);not null" json:"balance_after"`
	Description    string                      `gorm:"column:description;not null;default:''" json:"description"`
	IdempotencyKey *string                     `gorm:"column:idempotency_key;uniqueIndex:ux_wallet_transactions_idempotency_key" json:"-"`
	CreatedAt      time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	CreatedBy      string                      `gorm:"column:created_by;not null" json:"created_by"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// StoreWallet is the materialized balance of a store. Version increments on
// every balance write and backs the compare-and-swap update.
type StoreWallet struct {
	StoreDomain string          `gorm:"column:store_domain;primaryKey"`
	Balance     decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0"`
	Version     int64           `gorm:"column:version;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
