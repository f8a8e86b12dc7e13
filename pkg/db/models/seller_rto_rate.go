package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SellerRTORate is the fixed penalty charged per RTO order for a seller/store pair.
type SellerRTORate struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID    uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	StoreDomain string          `gorm:"column:store_domain;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Active      bool            `gorm:"column:active;not null;default:true"`
	CreatedBy   string          `gorm:"column:created_by;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *SellerRTORate) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
