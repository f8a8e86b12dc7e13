package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoreConnection links a seller to a storefront installation.
type StoreConnection struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      uuid.UUID  `gorm:"column:seller_id;type:uuid;not null"`
	StoreDomain   string     `gorm:"column:store_domain;not null;uniqueIndex:ux_store_connections_store"`
	AccessToken   string     `gorm:"column:access_token;not null;default:''"`
	Active        bool       `gorm:"column:active;not null;default:true"`
	InstalledAt   time.Time  `gorm:"column:installed_at;not null"`
	UninstalledAt *time.Time `gorm:"column:uninstalled_at"`
	LastSyncedAt  *time.Time `gorm:"column:last_synced_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *StoreConnection) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	if c.InstalledAt.IsZero() {
		c.InstalledAt = time.Now().UTC()
	}
	return nil
}
