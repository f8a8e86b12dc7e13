package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/internal/margins"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/pagination"
)

const overviewOrderLimit = 200

type orderLister interface {
	ListRecent(ctx context.Context, store string, since *time.Time, limit int) ([]models.Order, error)
}

type statusResolver interface {
	ResolveMany(ctx context.Context, store string, orders []models.Order) (map[string]orderstatus.Resolution, error)
}

// Overview is the wallet view of a store.
type Overview struct {
	Store   string          `json:"store"`
	Balance string          `json:"balance"`
	Orders  []OrderImpact   `json:"orders"`
	History *HistoryPage    `json:"history"`
	Summary OverviewSummary `json:"summary"`
}

// OrderImpact is the expected and recorded ledger effect of one order. Expected
// is "NA" when the order's margin cannot be computed.
type OrderImpact struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Status      enums.OrderStatus  `json:"status"`
	StatusLabel string             `json:"status_label"`
	Effect      orderstatus.Effect `json:"effect"`
	Margin      string             `json:"margin"`
	Expected    string             `json:"expected"`
	Recorded    string             `json:"recorded"`
	Applied     bool               `json:"applied"`
}

// OverviewSummary aggregates counts and totals for the store.
type OverviewSummary struct {
	TotalOrders       int    `json:"total_orders"`
	ConfirmedOrders   int    `json:"confirmed_orders"`
	RTOOrders         int    `json:"rto_orders"`
	OtherOrders       int    `json:"other_orders"`
	UncomputableCount int    `json:"uncomputable_orders"`
	TransactionCount  int64  `json:"transaction_count"`
	MarginEarned      string `json:"margin_earned"`
	RTOPenalties      string `json:"rto_penalties"`
	Adjustments       string `json:"adjustments"`
}

// OverviewReader assembles the wallet query response.
type OverviewReader struct {
	ledger   Service
	orders   orderLister
	statuses statusResolver
	margins  marginSource
	rates    rateResolver
}

// NewOverviewReader wires the wallet overview.
func NewOverviewReader(ledger Service, orders orderLister, statuses statusResolver, margins marginSource, rates rateResolver) (*OverviewReader, error) {
	if ledger == nil || orders == nil || statuses == nil || margins == nil || rates == nil {
		return nil, fmt.Errorf("wallet overview dependencies required")
	}
	return &OverviewReader{ledger: ledger, orders: orders, statuses: statuses, margins: margins, rates: rates}, nil
}

// Overview returns balance, per-order impact, the first history page and a summary.
func (r *OverviewReader) Overview(ctx context.Context, store string, history pagination.Params) (*Overview, error) {
	store = strings.ToLower(strings.TrimSpace(store))
	if store == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}

	balance, err := r.ledger.GetBalance(ctx, store)
	if err != nil {
		return nil, err
	}
	page, err := r.ledger.GetHistory(ctx, store, history)
	if err != nil {
		return nil, err
	}
	orders, err := r.orders.ListRecent(ctx, store, nil, overviewOrderLimit)
	if err != nil {
		return nil, err
	}
	resolutions, err := r.statuses.ResolveMany(ctx, store, orders)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.PlatformOrderID)
	}
	stored, err := r.margins.StoredFor(ctx, store, ids)
	if err != nil {
		return nil, err
	}
	recorded, err := r.recordedByOrder(ctx, store, ids)
	if err != nil {
		return nil, err
	}
	penalty, err := r.rates.Resolve(ctx, nil, store)
	if err != nil {
		return nil, err
	}

	out := &Overview{
		Store:   store,
		Balance: balance.StringFixed(2),
		Orders:  make([]OrderImpact, 0, len(orders)),
		History: page,
	}
	for _, o := range orders {
		res := resolutions[o.PlatformOrderID]
		impact := OrderImpact{
			OrderID:     o.PlatformOrderID,
			OrderNumber: o.OrderNumber,
			Status:      res.Status,
			StatusLabel: res.Label,
			Effect:      orderstatus.EffectFor(res.Status),
			Margin:      marginDisplay(stored, o.PlatformOrderID),
		}
		amount, applied := recorded[o.PlatformOrderID]
		impact.Recorded = amount.StringFixed(2)
		impact.Applied = applied

		switch impact.Effect {
		case orderstatus.EffectCredit:
			impact.Expected = impact.Margin
			out.Summary.ConfirmedOrders++
		case orderstatus.EffectDebit:
			impact.Expected = penalty.Neg().StringFixed(2)
			out.Summary.RTOOrders++
		default:
			impact.Expected = decimal.Zero.StringFixed(2)
			out.Summary.OtherOrders++
		}
		if impact.Margin == margins.NotComputable {
			out.Summary.UncomputableCount++
		}
		out.Orders = append(out.Orders, impact)
	}
	out.Summary.TotalOrders = len(orders)

	totals, err := r.ledger.Totals(ctx, store)
	if err != nil {
		return nil, err
	}
	earned, penalties, adjustments := decimal.Zero, decimal.Zero, decimal.Zero
	for _, t := range totals {
		out.Summary.TransactionCount += t.Count
		switch t.Type {
		case enums.WalletTransactionTypeMarginEarned:
			earned = earned.Add(t.Total)
		case enums.WalletTransactionTypeRTOPenalty:
			penalties = penalties.Add(t.Total)
		default:
			adjustments = adjustments.Add(t.Total)
		}
	}
	out.Summary.MarginEarned = earned.StringFixed(2)
	out.Summary.RTOPenalties = penalties.StringFixed(2)
	out.Summary.Adjustments = adjustments.StringFixed(2)
	return out, nil
}

func (r *OverviewReader) recordedByOrder(ctx context.Context, store string, ids []string) (map[string]decimal.Decimal, error) {
	rows, err := r.ledger.OrderEntries(ctx, store, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		if row.OrderID == nil {
			continue
		}
		out[*row.OrderID] = out[*row.OrderID].Add(row.Amount)
	}
	return out, nil
}

// marginDisplay renders a stored margin, "NA" for uncomputable and "" when
// nothing was computed yet.
func marginDisplay(stored map[string]models.OrderMargin, orderID string) string {
	row, ok := stored[orderID]
	if !ok {
		return ""
	}
	return margins.FromStored(&row).Display()
}
