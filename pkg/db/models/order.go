package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order mirrors a storefront order. Platform fields are stored verbatim so the
// status resolver can be re-run without refetching.
type Order struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreDomain       string          `gorm:"column:store_domain;not null;uniqueIndex:ux_orders_store_platform_order"`
	PlatformOrderID   string          `gorm:"column:platform_order_id;not null;uniqueIndex:ux_orders_store_platform_order"`
	OrderNumber       string          `gorm:"column:order_number;not null"`
	Customer          CustomerSummary `gorm:"column:customer;type:jsonb;serializer:json"`
	Currency          string          `gorm:"column:currency;not null;default:'INR'"`
	TotalAmount       decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`
	LineItems         []OrderLineItem `gorm:"column:line_items;type:jsonb;serializer:json"`
	Confirmed         bool            `gorm:"column:confirmed;not null;default:false"`
	CancelledAt       *time.Time      `gorm:"column:cancelled_at"`
	FulfillmentStatus string          `gorm:"column:fulfillment_status;not null;default:''"`
	FinancialStatus   string          `gorm:"column:financial_status;not null;default:''"`
	ShippingAddress   json.RawMessage `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress    json.RawMessage `gorm:"column:billing_address;type:jsonb;serializer:json"`
	PlatformCreatedAt *time.Time      `gorm:"column:platform_created_at"`
	PlatformUpdatedAt *time.Time      `gorm:"column:platform_updated_at"`
	SyncedAt          time.Time       `gorm:"column:synced_at;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	if o.SyncedAt.IsZero() {
		o.SyncedAt = time.Now().UTC()
	}
	return nil
}

// CustomerSummary is the subset of customer data kept on the mirror.
type CustomerSummary struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrderLineItem is embedded in Order and only drives margin computation.
type OrderLineItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
