package margins

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// NotComputable is how an unknown margin is rendered.
const NotComputable = "NA"

// Result is the outcome of a margin computation. When Computable is false the
// order's catalog is unknown to the store and Amount carries no meaning.
type Result struct {
	Amount          decimal.Decimal
	Computable      bool
	ResolvedItems   int
	UnresolvedItems []string
}

// Calculate sums margin per unit times quantity across line items. Unmapped
// items contribute 0 and are recorded as unresolved; if none resolve the result
// is not computable. An empty item list is a computable 0.
func Calculate(items []models.OrderLineItem, index *Index) Result {
	res := Result{Amount: decimal.Zero, Computable: true}
	if len(items) == 0 {
		return res
	}

	for _, item := range items {
		perUnit, ok := index.Lookup(item.ProductID, item.Name)
		if !ok {
			res.UnresolvedItems = append(res.UnresolvedItems, unresolvedLabel(item))
			continue
		}
		qty := item.Quantity
		if qty < 0 {
			qty = 0
		}
		res.Amount = res.Amount.Add(perUnit.Mul(decimal.NewFromInt(int64(qty))))
		res.ResolvedItems++
	}

	if res.ResolvedItems == 0 {
		res.Computable = false
		res.Amount = decimal.Zero
		return res
	}
	res.Amount = res.Amount.Round(2)
	return res
}

// Display renders the amount or the NA sentinel.
func (r Result) Display() string {
	if !r.Computable {
		return NotComputable
	}
	return r.Amount.StringFixed(2)
}

// NullAmount converts the result into its persisted form.
func (r Result) NullAmount() decimal.NullDecimal {
	if !r.Computable {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(r.Amount)
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount          string   `json:"amount"`
		Computable      bool     `json:"computable"`
		ResolvedItems   int      `json:"resolved_items"`
		UnresolvedItems []string `json:"unresolved_items,omitempty"`
	}{
		Amount:          r.Display(),
		Computable:      r.Computable,
		ResolvedItems:   r.ResolvedItems,
		UnresolvedItems: r.UnresolvedItems,
	})
}

// FromStored rebuilds a result from a persisted margin row.
func FromStored(row *models.OrderMargin) Result {
	if row == nil || !row.Amount.Valid {
		return Result{Amount: decimal.Zero}
	}
	return Result{Amount: row.Amount.Decimal, Computable: true}
}

func unresolvedLabel(item models.OrderLineItem) string {
	if id := strings.TrimSpace(item.ProductID); id != "" {
		return id
	}
	return strings.TrimSpace(item.Name)
}
