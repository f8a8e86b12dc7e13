package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/pagination"
)

const idempotencyConstraint = "ux_wallet_transactions_idempotency_key"

var errVersionConflict = errors.New("wallet version changed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of store balances.
type Service interface {
	ApplyTransaction(ctx context.Context, input ApplyInput) (*models.WalletTransaction, error)
	Adjust(ctx context.Context, input AdjustmentInput) (*models.WalletTransaction, error)
	GetBalance(ctx context.Context, store string) (decimal.Decimal, error)
	GetHistory(ctx context.Context, store string, params pagination.Params) (*HistoryPage, error)
	Reconcile(ctx context.Context, store string) (*Reconciliation, error)
	HasOrderEntries(ctx context.Context, store, orderID string) (bool, error)
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)
	OrderEntries(ctx context.Context, store string, orderIDs []string) ([]models.WalletTransaction, error)
	Totals(ctx context.Context, store string) ([]TypeTotal, error)
	Stores(ctx context.Context) ([]string, error)
}

// ApplyInput describes one balance-affecting entry. Amount is signed.
type ApplyInput struct {
	Store          string
	OrderID        string
	OrderNumber    string
	Type           enums.WalletTransactionType
	Amount         decimal.Decimal
	Description    string
	CreatedBy      string
	IdempotencyKey string
}

// AdjustmentInput is a manual withdrawal or refund. Amount is the positive magnitude.
type AdjustmentInput struct {
	Store       string
	Type        enums.WalletTransactionType
	Amount      decimal.Decimal
	Description string
	ActorID     string
}

// HistoryPage is one page of transactions, newest first.
type HistoryPage struct {
	Items  []models.WalletTransaction `json:"items"`
	Cursor string                     `json:"cursor,omitempty"`
}

// Reconciliation compares the materialized balance with the transaction sum.
type Reconciliation struct {
	Store            string          `json:"store"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionSum   decimal.Decimal `json:"transaction_sum"`
	TransactionCount int64           `json:"transaction_count"`
	Drift            decimal.Decimal `json:"drift"`
	Consistent       bool            `json:"consistent"`
	CheckedAt        time.Time       `json:"checked_at"`
}

type service struct {
	repo      Repository
	tx        txRunner
	retries   uint64
	retryBase time.Duration
}

// NewService wires the wallet ledger.
func NewService(repo Repository, tx txRunner, cfg config.WalletConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	base := cfg.CASRetryBase
	if base <= 0 {
		base = 20 * time.Millisecond
	}
	return &service{repo: repo, tx: tx, retries: cfg.CASRetries, retryBase: base}, nil
}

// IdempotencyKey identifies the single order-driven entry of a type.
func IdempotencyKey(store, orderID string, typ enums.WalletTransactionType) string {
	return store + ":" + orderID + ":" + string(typ)
}

// ApplyTransaction locks the store wallet, swaps the balance on its version and
// appends the transaction in one database transaction. A lost swap retries the
// whole unit. An already recorded idempotency key yields CodeConflict.
func (s *service) ApplyTransaction(ctx context.Context, input ApplyInput) (*models.WalletTransaction, error) {
	input.Store = strings.ToLower(strings.TrimSpace(input.Store))
	if err := validateApply(input); err != nil {
		return nil, err
	}
	amount := input.Amount.Round(2)
	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		createdBy = "system"
	}

	if input.IdempotencyKey != "" {
		exists, err := s.repo.ExistsByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check wallet idempotency")
		}
		if exists {
			return nil, duplicateError(input)
		}
	}

	var recorded *models.WalletTransaction
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.EnsureWallet(ctx, input.Store); err != nil {
				return err
			}
			current, err := repo.LockWallet(ctx, input.Store)
			if err != nil {
				return err
			}

			next := current.Balance.Add(amount)
			swapped, err := repo.CompareAndSwapBalance(ctx, input.Store, current.Version, next)
			if err != nil {
				return err
			}
			if !swapped {
				return errVersionConflict
			}

			txn := &models.WalletTransaction{
				ID:            uuid.New(),
				StoreDomain:   input.Store,
				OrderID:       optional(input.OrderID),
				OrderNumber:   optional(input.OrderNumber),
				Type:          input.Type,
				Amount:        amount,
				BalanceBefore: current.Balance,
				BalanceAfter:  next,
				Description:   input.Description,
				CreatedBy:     createdBy,
			}
			if input.IdempotencyKey != "" {
				key := input.IdempotencyKey
				txn.IdempotencyKey = &key
			}
			if err := repo.InsertTransaction(ctx, txn); err != nil {
				return err
			}
			recorded = txn
			return nil
		})
		if errors.Is(err, errVersionConflict) || pkgerrors.IsSerializationFailure(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		switch {
		case pkgerrors.IsUniqueViolation(err, idempotencyConstraint):
			return nil, duplicateError(input)
		case errors.Is(err, errVersionConflict):
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "wallet busy, retries exhausted")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "apply wallet transaction")
		}
	}
	return recorded, nil
}

// Adjust records a manual withdrawal (debit) or refund (credit).
func (s *service) Adjust(ctx context.Context, input AdjustmentInput) (*models.WalletTransaction, error) {
	if input.Type != enums.WalletTransactionTypeWithdrawal && input.Type != enums.WalletTransactionTypeRefund {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustments must be withdrawal or refund")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be positive")
	}
	amount := input.Amount
	if input.Type == enums.WalletTransactionTypeWithdrawal {
		amount = amount.Neg()
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = fmt.Sprintf("Manual %s", input.Type)
	}
	return s.ApplyTransaction(ctx, ApplyInput{
		Store:       input.Store,
		Type:        input.Type,
		Amount:      amount,
		Description: description,
		CreatedBy:   input.ActorID,
	})
}

// GetBalance returns the materialized balance, 0 when the store has no wallet yet.
func (s *service) GetBalance(ctx context.Context, store string) (decimal.Decimal, error) {
	store = strings.ToLower(strings.TrimSpace(store))
	if store == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	w, err := s.repo.FindWallet(ctx, store)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load wallet balance")
	}
	return w.Balance, nil
}

func (s *service) GetHistory(ctx context.Context, store string, params pagination.Params) (*HistoryPage, error) {
	store = strings.ToLower(strings.TrimSpace(store))
	if store == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, store, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list wallet transactions")
	}
	items, next := pagination.Trim(rows, params.Limit, func(t models.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &HistoryPage{Items: items, Cursor: next}, nil
}

func (s *service) Reconcile(ctx context.Context, store string) (*Reconciliation, error) {
	balance, err := s.GetBalance(ctx, store)
	if err != nil {
		return nil, err
	}
	store = strings.ToLower(strings.TrimSpace(store))
	sum, count, err := s.repo.SumTransactions(ctx, store)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "sum wallet transactions")
	}
	drift := balance.Sub(sum)
	return &Reconciliation{
		Store:            store,
		Balance:          balance,
		TransactionSum:   sum,
		TransactionCount: count,
		Drift:            drift,
		Consistent:       drift.IsZero(),
		CheckedAt:        time.Now().UTC(),
	}, nil
}

func (s *service) HasOrderEntries(ctx context.Context, store, orderID string) (bool, error) {
	has, err := s.repo.HasOrderEntries(ctx, strings.ToLower(strings.TrimSpace(store)), orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check order wallet entries")
	}
	return has, nil
}

func (s *service) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	exists, err := s.repo.ExistsByIdempotencyKey(ctx, key)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check wallet idempotency")
	}
	return exists, nil
}

func (s *service) OrderEntries(ctx context.Context, store string, orderIDs []string) ([]models.WalletTransaction, error) {
	rows, err := s.repo.ListOrderTransactions(ctx, strings.ToLower(strings.TrimSpace(store)), orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list order wallet transactions")
	}
	return rows, nil
}

func (s *service) Totals(ctx context.Context, store string) ([]TypeTotal, error) {
	rows, err := s.repo.TotalsByType(ctx, strings.ToLower(strings.TrimSpace(store)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "aggregate wallet transactions")
	}
	return rows, nil
}

func (s *service) Stores(ctx context.Context) ([]string, error) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list wallets")
	}
	return stores, nil
}

func validateApply(input ApplyInput) error {
	if input.Store == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet transaction type").
			WithDetails(map[string]any{"type": input.Type})
	}
	if input.Type.IsOrderDriven() && strings.TrimSpace(input.OrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Amount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	credit := input.Type == enums.WalletTransactionTypeMarginEarned || input.Type == enums.WalletTransactionTypeRefund
	if credit != input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount sign does not match transaction type").
			WithDetails(map[string]any{"type": input.Type, "amount": input.Amount.String()})
	}
	return nil
}

func duplicateError(input ApplyInput) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "wallet transaction already recorded").
		WithDetails(map[string]any{"store": input.Store, "order_id": input.OrderID, "type": input.Type})
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
