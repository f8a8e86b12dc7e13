package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/internal/margins"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

type marginSource interface {
	Stored(ctx context.Context, store, orderID string) (*models.OrderMargin, error)
	StoredFor(ctx context.Context, store string, orderIDs []string) (map[string]models.OrderMargin, error)
	Finalize(ctx context.Context, order models.Order) (margins.Result, error)
}

type rateResolver interface {
	Resolve(ctx context.Context, sellerID *uuid.UUID, store string) (decimal.Decimal, error)
}

type walletRecorder interface {
	IncWallet(txType, outcome string)
}

// OrderWallet turns order status observations into at most one wallet entry
// per order and transaction type.
type OrderWallet struct {
	ledger  Service
	margins marginSource
	rates   rateResolver
	metrics walletRecorder
	logg    *logger.Logger
}

// NewOrderWallet wires the order-driven wallet gate. metrics may be nil.
func NewOrderWallet(ledger Service, margins marginSource, rates rateResolver, metrics walletRecorder, logg *logger.Logger) (*OrderWallet, error) {
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if margins == nil {
		return nil, fmt.Errorf("margin source required")
	}
	if rates == nil {
		return nil, fmt.Errorf("rto rate resolver required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &OrderWallet{ledger: ledger, margins: margins, rates: rates, metrics: metrics, logg: logg}, nil
}

// ApplyForStatus credits margin for confirmed statuses and debits the RTO
// penalty for cancelled/rto. Zero and NA amounts record nothing. Duplicates are
// reported as OutcomeDuplicate, never as an error.
func (w *OrderWallet) ApplyForStatus(ctx context.Context, order models.Order, status enums.OrderStatus, actor string) (orderstatus.LedgerOutcome, error) {
	effect := orderstatus.EffectFor(status)
	typ, ok := effect.TransactionType()
	if !ok {
		return orderstatus.OutcomeSkipped, nil
	}
	if order.StoreDomain == "" || order.PlatformOrderID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "store and order id are required")
	}
	ctx = w.logg.WithOrderID(w.logg.WithStoreID(ctx, order.StoreDomain), order.PlatformOrderID)

	key := IdempotencyKey(order.StoreDomain, order.PlatformOrderID, typ)
	exists, err := w.ledger.HasIdempotencyKey(ctx, key)
	if err != nil {
		return w.record(typ, "", err)
	}
	if exists {
		return w.record(typ, orderstatus.OutcomeDuplicate, nil)
	}

	amount, description, err := w.amountFor(ctx, order, effect)
	if err != nil {
		return w.record(typ, "", err)
	}
	if amount.IsZero() {
		return w.record(typ, orderstatus.OutcomeSkipped, nil)
	}

	txn, err := w.ledger.ApplyTransaction(ctx, ApplyInput{
		Store:          order.StoreDomain,
		OrderID:        order.PlatformOrderID,
		OrderNumber:    order.OrderNumber,
		Type:           typ,
		Amount:         amount,
		Description:    description,
		CreatedBy:      actor,
		IdempotencyKey: key,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return w.record(typ, orderstatus.OutcomeDuplicate, nil)
		}
		return w.record(typ, "", err)
	}

	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"type":          typ,
		"amount":        txn.Amount.String(),
		"balance_after": txn.BalanceAfter.String(),
	}), "wallet transaction applied")
	return w.record(typ, orderstatus.OutcomeApplied, nil)
}

func (w *OrderWallet) amountFor(ctx context.Context, order models.Order, effect orderstatus.Effect) (decimal.Decimal, string, error) {
	label := order.OrderNumber
	if label == "" {
		label = order.PlatformOrderID
	}

	switch effect {
	case orderstatus.EffectCredit:
		res, err := w.marginFor(ctx, order)
		if err != nil {
			return decimal.Zero, "", err
		}
		if !res.Computable {
			w.logg.Warn(ctx, "margin not computable, no wallet credit")
			return decimal.Zero, "", nil
		}
		return res.Amount, fmt.Sprintf("Margin earned for order %s", label), nil
	case orderstatus.EffectDebit:
		rate, err := w.rates.Resolve(ctx, nil, order.StoreDomain)
		if err != nil {
			return decimal.Zero, "", err
		}
		return rate.Neg(), fmt.Sprintf("RTO penalty for order %s", label), nil
	default:
		return decimal.Zero, "", nil
	}
}

// marginFor prefers a final stored amount. A missing, preliminary or NA row is
// finalized again so mappings added later still count.
func (w *OrderWallet) marginFor(ctx context.Context, order models.Order) (margins.Result, error) {
	stored, err := w.margins.Stored(ctx, order.StoreDomain, order.PlatformOrderID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return margins.Result{}, err
	}
	if stored.IsSettled() {
		return margins.FromStored(stored), nil
	}
	return w.margins.Finalize(ctx, order)
}

func (w *OrderWallet) record(typ enums.WalletTransactionType, outcome orderstatus.LedgerOutcome, err error) (orderstatus.LedgerOutcome, error) {
	if w.metrics != nil {
		label := string(outcome)
		if err != nil {
			label = "error"
		}
		w.metrics.IncWallet(string(typ), label)
	}
	return outcome, err
}
