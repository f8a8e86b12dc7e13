// Package dbtest opens in-memory SQLite databases carrying the service schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Schema mirrors the postgres migrations with SQLite types. Money columns are
// TEXT so decimals round-trip exactly.
var Schema = []string{
	`CREATE TABLE store_connections (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  store_domain TEXT NOT NULL,
  access_token TEXT NOT NULL DEFAULT '',
  active INTEGER NOT NULL DEFAULT 1,
  installed_at DATETIME NOT NULL,
  uninstalled_at DATETIME,
  last_synced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_store_connections_store ON store_connections (store_domain)`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  store_domain TEXT NOT NULL,
  platform_order_id TEXT NOT NULL,
  order_number TEXT NOT NULL,
  customer TEXT,
  currency TEXT NOT NULL DEFAULT 'INR',
  total_amount TEXT NOT NULL DEFAULT '0',
  line_items TEXT,
  confirmed INTEGER NOT NULL DEFAULT 0,
  cancelled_at DATETIME,
  fulfillment_status TEXT NOT NULL DEFAULT '',
  financial_status TEXT NOT NULL DEFAULT '',
  shipping_address TEXT,
  billing_address TEXT,
  platform_created_at DATETIME,
  platform_updated_at DATETIME,
  synced_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_orders_store_platform_order ON orders (store_domain, platform_order_id)`,
	`CREATE TABLE order_status_overrides (
  id TEXT PRIMARY KEY,
  store_domain TEXT NOT NULL,
  platform_order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  updated_by TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_order_status_overrides_order ON order_status_overrides (store_domain, platform_order_id)`,
	`CREATE TABLE product_margin_mappings (
  id TEXT PRIMARY KEY,
  store_domain TEXT NOT NULL,
  platform_product_id TEXT,
  product_name TEXT NOT NULL DEFAULT '',
  margin_per_unit TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE order_margins (
  id TEXT PRIMARY KEY,
  store_domain TEXT NOT NULL,
  platform_order_id TEXT NOT NULL,
  amount TEXT,
  state TEXT NOT NULL,
  unresolved_items INTEGER NOT NULL DEFAULT 0,
  computed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_order_margins_order ON order_margins (store_domain, platform_order_id)`,
	`CREATE TABLE seller_rto_rates (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  store_domain TEXT NOT NULL,
  amount TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_by TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_seller_rto_rates_active ON seller_rto_rates (seller_id, store_domain) WHERE active = 1`,
	`CREATE TABLE store_wallets (
  store_domain TEXT PRIMARY KEY,
  balance TEXT NOT NULL DEFAULT '0',
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE wallet_transactions (
  id TEXT PRIMARY KEY,
  store_domain TEXT NOT NULL,
  order_id TEXT,
  order_number TEXT,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  balance_before TEXT NOT NULL,
  balance_after TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  idempotency_key TEXT,
  created_at DATETIME,
  created_by TEXT NOT NULL
)`,
	`CREATE UNIQUE INDEX ux_wallet_transactions_idempotency_key ON wallet_transactions (idempotency_key)`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
}

// Open returns a private in-memory database with the full schema. The pool is
// pinned to a single connection so transactions serialize like row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
