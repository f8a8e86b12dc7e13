package margins

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

func strPtr(v string) *string { return &v }

func testIndex() *Index {
	return NewIndex([]models.ProductMarginMapping{
		{PlatformProductID: strPtr("p-1"), ProductName: "Cotton Kurta", MarginPerUnit: decimal.NewFromInt(50)},
		{ProductName: "  Silk   SAREE ", MarginPerUnit: decimal.RequireFromString("120.50")},
		{PlatformProductID: strPtr("p-free"), ProductName: "Sample Pack", MarginPerUnit: decimal.Zero},
	})
}

func TestCalculateByProductID(t *testing.T) {
	res := Calculate([]models.OrderLineItem{{ProductID: "p-1", Name: "whatever", Quantity: 2}}, testIndex())
	if !res.Computable {
		t.Fatalf("expected computable result")
	}
	if !res.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100, got %s", res.Amount)
	}
	if res.ResolvedItems != 1 || len(res.UnresolvedItems) != 0 {
		t.Fatalf("unexpected resolution counts: %+v", res)
	}
}

func TestCalculateNameFallback(t *testing.T) {
	res := Calculate([]models.OrderLineItem{{ProductID: "unknown-9", Name: "silk saree", Quantity: 1}}, testIndex())
	if !res.Computable || !res.Amount.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("expected name fallback margin 120.50, got %+v", res)
	}

	res = Calculate([]models.OrderLineItem{{Name: "  COTTON\tkurta ", Quantity: 3}}, testIndex())
	if !res.Amount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected whitespace/case-insensitive match, got %s", res.Amount)
	}
}

func TestCalculateNotComputable(t *testing.T) {
	res := Calculate([]models.OrderLineItem{
		{ProductID: "x-1", Name: "Mystery", Quantity: 1},
		{ProductID: "x-2", Quantity: 4},
	}, testIndex())
	if res.Computable {
		t.Fatalf("expected NA result, got %+v", res)
	}
	if res.Display() != NotComputable {
		t.Fatalf("expected NA display, got %q", res.Display())
	}
	if len(res.UnresolvedItems) != 2 || res.UnresolvedItems[0] != "x-1" {
		t.Fatalf("unexpected unresolved items: %v", res.UnresolvedItems)
	}
	if res.NullAmount().Valid {
		t.Fatalf("NA must persist as NULL")
	}
}

func TestCalculateZeroIsDistinctFromNA(t *testing.T) {
	res := Calculate([]models.OrderLineItem{{ProductID: "p-free", Quantity: 5}}, testIndex())
	if !res.Computable {
		t.Fatalf("mapped zero margin must stay computable")
	}
	if res.Display() != "0.00" {
		t.Fatalf("expected 0.00, got %q", res.Display())
	}
}

func TestCalculateEmptyAndPartial(t *testing.T) {
	empty := Calculate(nil, testIndex())
	if !empty.Computable || !empty.Amount.IsZero() {
		t.Fatalf("empty order should be computable zero, got %+v", empty)
	}

	partial := Calculate([]models.OrderLineItem{
		{ProductID: "p-1", Quantity: 1},
		{ProductID: "x-1", Name: "Unknown", Quantity: 9},
		{ProductID: "p-1", Quantity: -3},
	}, testIndex())
	if !partial.Computable || !partial.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50 from the single mapped unit, got %+v", partial)
	}
	if len(partial.UnresolvedItems) != 1 {
		t.Fatalf("expected one unresolved item, got %v", partial.UnresolvedItems)
	}
}

func TestResultJSON(t *testing.T) {
	na, err := json.Marshal(Result{Computable: false})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(na, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["amount"] != "NA" {
		t.Fatalf("expected NA amount, got %v", decoded["amount"])
	}

	ok, _ := json.Marshal(Result{Computable: true, Amount: decimal.NewFromInt(100)})
	if err := json.Unmarshal(ok, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["amount"] != "100.00" {
		t.Fatalf("expected 100.00, got %v", decoded["amount"])
	}
}

func TestNilIndexLookup(t *testing.T) {
	var idx *Index
	if _, ok := idx.Lookup("p-1", "Cotton Kurta"); ok {
		t.Fatalf("nil index should never resolve")
	}
	if idx.Len() != 0 {
		t.Fatalf("nil index should be empty")
	}
}
