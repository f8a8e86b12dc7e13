package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/enums"
)

// OrderStatusOverride is the manually-set business status of an order.
type OrderStatusOverride struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreDomain     string            `gorm:"column:store_domain;not null;uniqueIndex:ux_order_status_overrides_order"`
	PlatformOrderID string            `gorm:"column:platform_order_id;not null;uniqueIndex:ux_order_status_overrides_order"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null"`
	UpdatedBy       string            `gorm:"column:updated_by;not null"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *OrderStatusOverride) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
