package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/enums"
)

// OrderMargin stores the computed margin of an order. A NULL amount means the
// order's catalog was entirely unknown to the store ("NA").
type OrderMargin struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreDomain     string              `gorm:"column:store_domain;not null;uniqueIndex:ux_order_margins_order"`
	PlatformOrderID string              `gorm:"column:platform_order_id;not null;uniqueIndex:ux_order_margins_order"`
	Amount          decimal.NullDecimal `gorm:"column:amount;type:numeric(14,2)"`
	State           enums.MarginState   `gorm:"column:state;type:margin_state_enum;not null"`
	UnresolvedItems int                 `gorm:"column:unresolved_items;not null;default:0"`
	ComputedAt      time.Time           `gorm:"column:computed_at;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *OrderMargin) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// IsSettled reports a final margin with a known amount. NA rows stay open
// until the catalog can price them.
func (m *OrderMargin) IsSettled() bool {
	return m != nil && m.State == enums.MarginStateFinal && m.Amount.Valid
}
