package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductMarginMapping is maintained by suppliers/admins; this service only reads it.
type ProductMarginMapping struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreDomain       string          `gorm:"column:store_domain;not null"`
	PlatformProductID *string         `gorm:"column:platform_product_id"`
	ProductName       string          `gorm:"column:product_name;not null;default:''"`
	MarginPerUnit     decimal.Decimal `gorm:"column:margin_per_unit;type:numeric(14,2);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
