package wallet

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/internal/dbtest"
	"github.com/angelmondragon/marginledger-backend/internal/margins"
	"github.com/angelmondragon/marginledger-backend/internal/orders"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/internal/rtorates"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/pagination"
)

type stubSellers struct {
	seller uuid.UUID
}

func (s stubSellers) SellerFor(context.Context, string) (uuid.UUID, error) {
	return s.seller, nil
}

type countingMetrics struct {
	counts map[string]int
}

func (c *countingMetrics) IncWallet(txType, outcome string) {
	c.counts[txType+":"+outcome]++
}

type orderWalletFixture struct {
	conn    *gorm.DB
	ledger  Service
	margins margins.Service
	rates   rtorates.Service
	wallet  *OrderWallet
	metrics *countingMetrics
	seller  uuid.UUID
}

func newOrderWalletFixture(t *testing.T) orderWalletFixture {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.NewFromConn(conn)

	ledger, err := NewService(NewRepository(conn), tx, testWalletConfig)
	require.NoError(t, err)
	marginSvc, err := margins.NewService(margins.NewRepository(conn))
	require.NoError(t, err)
	seller := uuid.New()
	rateSvc, err := rtorates.NewService(rtorates.NewRepository(conn), stubSellers{seller: seller}, tx)
	require.NoError(t, err)

	product := "P"
	require.NoError(t, conn.Create(&models.ProductMarginMapping{
		ID:                uuid.New(),
		StoreDomain:       testStore,
		PlatformProductID: &product,
		ProductName:       "Product P",
		MarginPerUnit:     decimal.NewFromInt(50),
	}).Error)

	metrics := &countingMetrics{counts: map[string]int{}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ow, err := NewOrderWallet(ledger, marginSvc, rateSvc, metrics, logg)
	require.NoError(t, err)

	return orderWalletFixture{conn: conn, ledger: ledger, margins: marginSvc, rates: rateSvc, wallet: ow, metrics: metrics, seller: seller}
}

func mappedOrder(id string, qty int) models.Order {
	return models.Order{
		StoreDomain:     testStore,
		PlatformOrderID: id,
		OrderNumber:     "#" + id,
		LineItems:       []models.OrderLineItem{{ProductID: "P", Name: "Product P", Quantity: qty}},
	}
}

func TestConfirmCreditsMarginOnce(t *testing.T) {
	ctx := context.Background()
	f := newOrderWalletFixture(t)
	order := mappedOrder("O1", 2)

	outcome, err := f.wallet.ApplyForStatus(ctx, order, enums.OrderStatusConfirmed, "admin-1")
	require.NoError(t, err)
	require.Equal(t, orderstatus.OutcomeApplied, outcome)

	balance, err := f.ledger.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(100)))

	for _, status := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusConfirmedFulfilled} {
		outcome, err = f.wallet.ApplyForStatus(ctx, order, status, "sync")
		require.NoError(t, err)
		require.Equal(t, orderstatus.OutcomeDuplicate, outcome)
	}

	balance, err = f.ledger.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(100)), "re-confirm must not change the balance")

	stored, err := f.margins.Stored(ctx, testStore, "O1")
	require.NoError(t, err)
	require.Equal(t, enums.MarginStateFinal, stored.State)
	require.Equal(t, 1, f.metrics.counts["margin_earned:applied"])
	require.Equal(t, 2, f.metrics.counts["margin_earned:duplicate"])
}

func TestCancelDebitsRTOPenaltyOnce(t *testing.T) {
	ctx := context.Background()
	f := newOrderWalletFixture(t)
	_, err := f.rates.Create(ctx, rtorates.CreateInput{SellerID: f.seller, Store: testStore, Amount: decimal.NewFromInt(75)})
	require.NoError(t, err)

	_, err = f.ledger.ApplyTransaction(ctx, credit("seed", 200))
	require.NoError(t, err)

	outcome, err := f.wallet.ApplyForStatus(ctx, mappedOrder("O2", 1), enums.OrderStatusCancelled, "admin-1")
	require.NoError(t, err)
	require.Equal(t, orderstatus.OutcomeApplied, outcome)

	balance, err := f.ledger.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(125)), "balance decreases by exactly the rate")

	for _, status := range []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusRTO} {
		outcome, err = f.wallet.ApplyForStatus(ctx, mappedOrder("O2", 1), status, "sync")
		require.NoError(t, err)
		require.Equal(t, orderstatus.OutcomeDuplicate, outcome)
	}
	balance, err = f.ledger.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(125)))
	requireConsistent(t, f.ledger, testStore)
}

func TestSkipsNAAndZeroAmounts(t *testing.T) {
	ctx := context.Background()
	f := newOrderWalletFixture(t)

	unmapped := models.Order{
		StoreDomain:     testStore,
		PlatformOrderID: "O3",
		LineItems:       []models.OrderLineItem{{ProductID: "unknown", Name: "Unknown", Quantity: 3}},
	}
	outcome, err := f.wallet.ApplyForStatus(ctx, unmapped, enums.OrderStatusConfirmed, "admin-1")
	require.NoError(t, err)
	require.Equal(t, orderstatus.OutcomeSkipped, outcome)

	stored, err := f.margins.Stored(ctx, testStore, "O3")
	require.NoError(t, err)
	require.False(t, stored.Amount.Valid, "NA margin is stored as NULL, not zero")

	outcome, err = f.wallet.ApplyForStatus(ctx, mappedOrder("O4", 1), enums.OrderStatusRTO, "admin-1")
	require.NoError(t, err)
	require.Equal(t, orderstatus.OutcomeSkipped, outcome, "no configured rate means no penalty row")

	outcome, err = f.wallet.ApplyForStatus(ctx, mappedOrder("O5", 1), enums.OrderStatusInTransit, "admin-1")
	require.NoError(t, err)
	require.Equal(t, orderstatus.OutcomeSkipped, outcome)

	has, err := f.ledger.HasOrderEntries(ctx, testStore, "O3")
	require.NoError(t, err)
	require.False(t, has)
}

func TestUsesFinalStoredMargin(t *testing.T) {
	ctx := context.Background()
	f := newOrderWalletFixture(t)

	order := mappedOrder("O6", 3)
	_, err := f.margins.Finalize(ctx, order)
	require.NoError(t, err)

	order.LineItems[0].Quantity = 1
	_, err = f.wallet.ApplyForStatus(ctx, order, enums.OrderStatusConfirmedPartial, "sync")
	require.NoError(t, err)

	balance, err := f.ledger.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(150)), "final margin recorded earlier wins")
}

func TestFinalNAMarginIsRecomputedOnceMapped(t *testing.T) {
	ctx := context.Background()
	f := newOrderWalletFixture(t)

	order := models.Order{
		StoreDomain:     testStore,
		PlatformOrderID: "O8",
		OrderNumber:     "#O8",
		LineItems:       []models.OrderLineItem{{ProductID: "Q", Name: "Product Q", Quantity: 2}},
	}
	res, err := f.margins.Finalize(ctx, order)
	require.NoError(t, err)
	require.False(t, res.Computable)

	product := "Q"
	require.NoError(t, f.conn.Create(&models.ProductMarginMapping{
		ID:                uuid.New(),
		StoreDomain:       testStore,
		PlatformProductID: &product,
		ProductName:       "Product Q",
		MarginPerUnit:     decimal.NewFromInt(40),
	}).Error)

	outcome, err := f.wallet.ApplyForStatus(ctx, order, enums.OrderStatusConfirmed, "sync")
	require.NoError(t, err)
	require.Equal(t, orderstatus.OutcomeApplied, outcome)

	balance, err := f.ledger.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(80)), "got %s", balance)

	stored, err := f.margins.Stored(ctx, testStore, "O8")
	require.NoError(t, err)
	require.True(t, stored.IsSettled())
}

type failingRates struct{}

func (failingRates) Resolve(context.Context, *uuid.UUID, string) (decimal.Decimal, error) {
	return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodePersistence, errors.New("db down"), "load rto rate")
}

func TestApplyForStatusSurfacesFailures(t *testing.T) {
	f := newOrderWalletFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ow, err := NewOrderWallet(f.ledger, f.margins, failingRates{}, f.metrics, logg)
	require.NoError(t, err)

	_, err = ow.ApplyForStatus(context.Background(), mappedOrder("O7", 1), enums.OrderStatusCancelled, "sync")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))
	require.Equal(t, 1, f.metrics.counts["rto_penalty:error"])
}

type platformStatuses struct{}

func (platformStatuses) ResolveMany(_ context.Context, _ string, list []models.Order) (map[string]orderstatus.Resolution, error) {
	out := make(map[string]orderstatus.Resolution, len(list))
	for _, o := range list {
		out[o.PlatformOrderID] = orderstatus.ResolveOrder(o, nil)
	}
	return out, nil
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	f := newOrderWalletFixture(t)
	_, err := f.rates.Create(ctx, rtorates.CreateInput{SellerID: f.seller, Store: testStore, Amount: decimal.NewFromInt(75)})
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.NewRepository(f.conn), f.ledger)
	require.NoError(t, err)

	confirmed := mappedOrder("O1", 2)
	confirmed.Confirmed = true
	unmapped := models.Order{
		StoreDomain: testStore, PlatformOrderID: "O3", Confirmed: true,
		LineItems: []models.OrderLineItem{{ProductID: "zzz", Quantity: 1}},
	}
	pending := mappedOrder("O8", 1)
	for _, o := range []models.Order{confirmed, unmapped, pending} {
		_, err := orderSvc.Mirror(ctx, o)
		require.NoError(t, err)
	}

	for _, o := range []models.Order{confirmed, unmapped} {
		_, err := f.wallet.ApplyForStatus(ctx, o, enums.OrderStatusConfirmed, "sync")
		require.NoError(t, err)
	}

	reader, err := NewOverviewReader(f.ledger, orderSvc, platformStatuses{}, f.margins, f.rates)
	require.NoError(t, err)
	view, err := reader.Overview(ctx, testStore, pagination.Params{Limit: 10})
	require.NoError(t, err)

	require.Equal(t, "100.00", view.Balance)
	require.Len(t, view.Orders, 3)
	byID := map[string]OrderImpact{}
	for _, impact := range view.Orders {
		byID[impact.OrderID] = impact
	}
	require.Equal(t, "100.00", byID["O1"].Margin)
	require.True(t, byID["O1"].Applied)
	require.Equal(t, "100.00", byID["O1"].Recorded)
	require.Equal(t, margins.NotComputable, byID["O3"].Margin, "unknown catalog renders NA, never 0")
	require.False(t, byID["O3"].Applied)
	require.Equal(t, orderstatus.EffectNone, byID["O8"].Effect)

	require.Equal(t, 3, view.Summary.TotalOrders)
	require.Equal(t, 2, view.Summary.ConfirmedOrders)
	require.Equal(t, 1, view.Summary.UncomputableCount)
	require.EqualValues(t, 1, view.Summary.TransactionCount)
	require.Equal(t, "100.00", view.Summary.MarginEarned)
	require.Len(t, view.History.Items, 1)
}
