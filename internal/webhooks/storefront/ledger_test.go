package storefrontwebhook

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marginledger-backend/internal/dbtest"
	"github.com/angelmondragon/marginledger-backend/internal/margins"
	"github.com/angelmondragon/marginledger-backend/internal/orders"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/internal/rtorates"
	"github.com/angelmondragon/marginledger-backend/internal/stores"
	"github.com/angelmondragon/marginledger-backend/internal/wallet"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox"
	"github.com/angelmondragon/marginledger-backend/pkg/storefront"
)

const ledgerStore = "ledger.myshopify.com"

type noopPlatform struct{}

func (noopPlatform) UpdateOrderStatus(context.Context, storefront.Credentials, string, enums.OrderStatus) error {
	return nil
}

type ledgerFixture struct {
	svc     *Service
	wallet  wallet.Service
	margins margins.Service
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), client, config.WalletConfig{CASRetries: 3})
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.NewRepository(conn), walletSvc)
	require.NoError(t, err)
	marginSvc, err := margins.NewService(margins.NewRepository(conn))
	require.NoError(t, err)
	storeSvc, err := stores.NewService(stores.NewRepository(conn))
	require.NoError(t, err)
	rateSvc, err := rtorates.NewService(rtorates.NewRepository(conn), storeSvc, client)
	require.NoError(t, err)
	orderWallet, err := wallet.NewOrderWallet(walletSvc, marginSvc, rateSvc, nil, logg)
	require.NoError(t, err)
	statusSvc, err := orderstatus.NewService(orderstatus.ServiceParams{
		Overrides:   orderstatus.NewRepository(conn),
		Orders:      orderSvc,
		Connections: storeSvc,
		Platform:    noopPlatform{},
		Ledger:      orderWallet,
		Retries:     outbox.NewService(outbox.NewRepository(conn), logg),
		Tx:          client,
		Logger:      logg,
	})
	require.NoError(t, err)

	product := "11"
	require.NoError(t, conn.Create(&models.ProductMarginMapping{
		ID:                uuid.New(),
		StoreDomain:       ledgerStore,
		PlatformProductID: &product,
		ProductName:       "Tee",
		MarginPerUnit:     decimal.NewFromInt(50),
	}).Error)

	svc, err := NewService(ServiceParams{
		Orders:   orderSvc,
		Margins:  marginSvc,
		Statuses: statusSvc,
		Stores:   storeSvc,
		Logger:   logg,
	})
	require.NoError(t, err)
	return ledgerFixture{svc: svc, wallet: walletSvc, margins: marginSvc}
}

func updated(body string) Event {
	return Event{Topic: enums.WebhookTopicOrdersUpdated, Store: ledgerStore, Body: []byte(body)}
}

func TestOrdersUpdatedCreditsOnlyOncePaid(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	unpaid := `{"id": 9001, "name": "#9001", "confirmed": true, "financial_status": "pending",
	  "line_items": [{"product_id": 11, "title": "Tee", "quantity": 2, "price": "249.50"}]}`
	_, err := f.svc.HandleEvent(ctx, updated(unpaid))
	require.NoError(t, err)

	balance, err := f.wallet.GetBalance(ctx, ledgerStore)
	require.NoError(t, err)
	require.True(t, balance.IsZero(), "unpaid confirm credited %s", balance)
	_, err = f.margins.Stored(ctx, ledgerStore, "9001")
	require.Error(t, err, "unpaid update must not write a margin row")

	paid := `{"id": 9001, "name": "#9001", "confirmed": true, "financial_status": "paid",
	  "line_items": [{"product_id": 11, "title": "Tee", "quantity": 2, "price": "249.50"}]}`
	_, err = f.svc.HandleEvent(ctx, updated(paid))
	require.NoError(t, err)
	_, err = f.svc.HandleEvent(ctx, updated(paid))
	require.NoError(t, err)

	balance, err = f.wallet.GetBalance(ctx, ledgerStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(100)), "got %s", balance)

	stored, err := f.margins.Stored(ctx, ledgerStore, "9001")
	require.NoError(t, err)
	require.Equal(t, enums.MarginStateFinal, stored.State)
}
