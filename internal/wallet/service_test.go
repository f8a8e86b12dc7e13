package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/internal/dbtest"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/pagination"
)

const testStore = "demo.myshop.com"

var testWalletConfig = config.WalletConfig{CASRetries: 3, CASRetryBase: time.Millisecond}

func newLedger(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn), testWalletConfig)
	require.NoError(t, err)
	return svc, conn
}

func credit(orderID string, amount int64) ApplyInput {
	return ApplyInput{
		Store:          testStore,
		OrderID:        orderID,
		OrderNumber:    "#" + orderID,
		Type:           enums.WalletTransactionTypeMarginEarned,
		Amount:         decimal.NewFromInt(amount),
		IdempotencyKey: IdempotencyKey(testStore, orderID, enums.WalletTransactionTypeMarginEarned),
	}
}

func debit(orderID string, amount int64) ApplyInput {
	return ApplyInput{
		Store:          testStore,
		OrderID:        orderID,
		Type:           enums.WalletTransactionTypeRTOPenalty,
		Amount:         decimal.NewFromInt(-amount),
		IdempotencyKey: IdempotencyKey(testStore, orderID, enums.WalletTransactionTypeRTOPenalty),
	}
}

func requireConsistent(t *testing.T, svc Service, store string) *Reconciliation {
	t.Helper()
	rec, err := svc.Reconcile(context.Background(), store)
	require.NoError(t, err)
	require.True(t, rec.Consistent, "balance %s != transaction sum %s", rec.Balance, rec.TransactionSum)
	return rec
}

func TestGetBalanceWithoutWallet(t *testing.T) {
	svc, _ := newLedger(t)
	balance, err := svc.GetBalance(context.Background(), testStore)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	requireConsistent(t, svc, testStore)
}

func TestApplyTransactionBalanceInvariant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	first, err := svc.ApplyTransaction(ctx, credit("1001", 100))
	require.NoError(t, err)
	require.True(t, first.BalanceBefore.IsZero())
	require.True(t, first.BalanceAfter.Equal(decimal.NewFromInt(100)))

	second, err := svc.ApplyTransaction(ctx, debit("1002", 75))
	require.NoError(t, err)
	require.True(t, second.BalanceBefore.Equal(first.BalanceAfter))
	require.True(t, second.BalanceAfter.Equal(decimal.NewFromInt(25)))

	_, err = svc.ApplyTransaction(ctx, ApplyInput{
		Store:  testStore,
		Type:   enums.WalletTransactionTypeRefund,
		Amount: decimal.RequireFromString("10.555"),
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("35.56")), "amounts round to two places, got %s", balance)

	rec := requireConsistent(t, svc, testStore)
	require.EqualValues(t, 3, rec.TransactionCount)
}

func TestApplyTransactionAtMostOnce(t *testing.T) {
	ctx := context.Background()
	svc, conn := newLedger(t)

	_, err := svc.ApplyTransaction(ctx, credit("1001", 100))
	require.NoError(t, err)

	_, err = svc.ApplyTransaction(ctx, credit("1001", 100))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, conn.Model(&models.WalletTransaction{}).Where("order_id = ?", "1001").Count(&count).Error)
	require.EqualValues(t, 1, count)

	balance, err := svc.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(100)))

	has, err := svc.HasOrderEntries(ctx, testStore, "1001")
	require.NoError(t, err)
	require.True(t, has)
}

func TestApplyTransactionUniqueIndexBackstop(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := &blindRepo{Repository: NewRepository(conn)}
	svc, err := NewService(repo, db.NewFromConn(conn), testWalletConfig)
	require.NoError(t, err)

	_, err = svc.ApplyTransaction(ctx, credit("1001", 100))
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, credit("1001", 100))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "unique index must reject what the pre-check missed, got %v", err)

	requireConsistent(t, svc, testStore)
	balance, err := svc.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(100)), "failed insert rolls back the balance update")
}

func TestApplyTransactionConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, conn := newLedger(t)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := decimal.NewFromInt(int64(i)).String()
			if _, err := svc.ApplyTransaction(ctx, credit("c-"+id, 10)); err != nil {
				errs <- err
			}
			// every order is also confirmed a second time by a racing trigger
			if _, err := svc.ApplyTransaction(ctx, credit("c-"+id, 10)); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := svc.GetBalance(ctx, testStore)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(10*workers)))
	requireConsistent(t, svc, testStore)

	var rows []models.WalletTransaction
	require.NoError(t, conn.Where("store_domain = ?", testStore).Find(&rows).Error)
	require.Len(t, rows, workers)
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		key := row.BalanceBefore.StringFixed(2)
		require.False(t, seen[key], "two transactions read the same balance_before %s", key)
		seen[key] = true
	}
}

func TestApplyTransactionRetriesLostSwap(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := &flakyRepo{Repository: NewRepository(conn), failures: 2}
	svc, err := NewService(repo, db.NewFromConn(conn), testWalletConfig)
	require.NoError(t, err)

	txn, err := svc.ApplyTransaction(ctx, credit("1001", 50))
	require.NoError(t, err)
	require.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(50)))
	require.Equal(t, 3, repo.attempts)

	exhausted := &flakyRepo{Repository: NewRepository(conn), failures: 10}
	svc, err = NewService(exhausted, db.NewFromConn(conn), testWalletConfig)
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, credit("1002", 50))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence), "exhausted swaps are not duplicates")
	requireConsistent(t, svc, testStore)
}

func TestApplyTransactionValidation(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	cases := []ApplyInput{
		{Type: enums.WalletTransactionTypeRefund, Amount: decimal.NewFromInt(1)},
		{Store: testStore, Type: "bonus", Amount: decimal.NewFromInt(1)},
		{Store: testStore, Type: enums.WalletTransactionTypeMarginEarned, Amount: decimal.NewFromInt(1)},
		{Store: testStore, OrderID: "1", Type: enums.WalletTransactionTypeMarginEarned, Amount: decimal.Zero},
		{Store: testStore, OrderID: "1", Type: enums.WalletTransactionTypeMarginEarned, Amount: decimal.NewFromInt(-5)},
		{Store: testStore, OrderID: "1", Type: enums.WalletTransactionTypeRTOPenalty, Amount: decimal.NewFromInt(5)},
	}
	for _, input := range cases {
		_, err := svc.ApplyTransaction(ctx, input)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %+v should be rejected", input)
	}
}

func TestAdjust(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	refund, err := svc.Adjust(ctx, AdjustmentInput{Store: testStore, Type: enums.WalletTransactionTypeRefund, Amount: decimal.NewFromInt(40), ActorID: "admin-1"})
	require.NoError(t, err)
	require.Equal(t, "admin-1", refund.CreatedBy)
	require.Nil(t, refund.OrderID)

	withdrawal, err := svc.Adjust(ctx, AdjustmentInput{Store: testStore, Type: enums.WalletTransactionTypeWithdrawal, Amount: decimal.NewFromInt(15)})
	require.NoError(t, err)
	require.True(t, withdrawal.Amount.Equal(decimal.NewFromInt(-15)))
	require.Equal(t, "Manual withdrawal", withdrawal.Description)

	_, err = svc.Adjust(ctx, AdjustmentInput{Store: testStore, Type: enums.WalletTransactionTypeMarginEarned, Amount: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Adjust(ctx, AdjustmentInput{Store: testStore, Type: enums.WalletTransactionTypeRefund, Amount: decimal.NewFromInt(-1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	rec := requireConsistent(t, svc, testStore)
	require.True(t, rec.Balance.Equal(decimal.NewFromInt(25)))
}

func TestGetHistoryPagination(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	for i := 1; i <= 5; i++ {
		_, err := svc.ApplyTransaction(ctx, credit(decimal.NewFromInt(int64(i)).String(), int64(i)))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	params := pagination.Params{Limit: 2}
	var previous *models.WalletTransaction
	for pages := 0; pages < 5; pages++ {
		page, err := svc.GetHistory(ctx, testStore, params)
		require.NoError(t, err)
		for i := range page.Items {
			item := page.Items[i]
			require.False(t, seen[item.ID.String()], "rows must not repeat across pages")
			seen[item.ID.String()] = true
			if previous != nil {
				require.False(t, item.CreatedAt.After(previous.CreatedAt), "history is newest first")
			}
			previous = &item
		}
		if page.Cursor == "" {
			break
		}
		params.Cursor = page.Cursor
	}
	require.Len(t, seen, 5)

	_, err := svc.GetHistory(ctx, testStore, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTotalsAndStores(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	_, err := svc.ApplyTransaction(ctx, credit("1", 100))
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, credit("2", 50))
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, debit("3", 30))
	require.NoError(t, err)

	totals, err := svc.Totals(ctx, testStore)
	require.NoError(t, err)
	byType := map[enums.WalletTransactionType]TypeTotal{}
	for _, row := range totals {
		byType[row.Type] = row
	}
	require.EqualValues(t, 2, byType[enums.WalletTransactionTypeMarginEarned].Count)
	require.True(t, byType[enums.WalletTransactionTypeMarginEarned].Total.Equal(decimal.NewFromInt(150)))
	require.True(t, byType[enums.WalletTransactionTypeRTOPenalty].Total.Equal(decimal.NewFromInt(-30)))

	stores, err := svc.Stores(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{testStore}, stores)
}

// flakyRepo loses the first n balance swaps.
type flakyRepo struct {
	Repository
	failures int
	attempts int
}

func (f *flakyRepo) WithTx(tx *gorm.DB) Repository {
	return &flakyTxRepo{Repository: f.Repository.WithTx(tx), parent: f}
}

type flakyTxRepo struct {
	Repository
	parent *flakyRepo
}

func (f *flakyTxRepo) CompareAndSwapBalance(ctx context.Context, store string, version int64, balance decimal.Decimal) (bool, error) {
	f.parent.attempts++
	if f.parent.failures > 0 {
		f.parent.failures--
		return false, nil
	}
	return f.Repository.CompareAndSwapBalance(ctx, store, version, balance)
}

// blindRepo never finds an idempotency key so only the unique index can reject.
type blindRepo struct {
	Repository
}

func (b *blindRepo) ExistsByIdempotencyKey(context.Context, string) (bool, error) {
	return false, nil
}
