package margins

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// Index resolves a store's per-unit margin by platform product id with a
// normalized product-name fallback.
type Index struct {
	byProductID map[string]decimal.Decimal
	byName      map[string]decimal.Decimal
}

// NewIndex builds an index from mapping rows. Later rows win on key collisions.
func NewIndex(mappings []models.ProductMarginMapping) *Index {
	idx := &Index{
		byProductID: make(map[string]decimal.Decimal, len(mappings)),
		byName:      make(map[string]decimal.Decimal, len(mappings)),
	}
	for _, m := range mappings {
		if m.PlatformProductID != nil {
			if id := strings.TrimSpace(*m.PlatformProductID); id != "" {
				idx.byProductID[id] = m.MarginPerUnit
			}
		}
		if name := NormalizeName(m.ProductName); name != "" {
			idx.byName[name] = m.MarginPerUnit
		}
	}
	return idx
}

// Lookup returns the margin per unit for a line item.
func (i *Index) Lookup(productID, name string) (decimal.Decimal, bool) {
	if i == nil {
		return decimal.Zero, false
	}
	if id := strings.TrimSpace(productID); id != "" {
		if margin, ok := i.byProductID[id]; ok {
			return margin, true
		}
	}
	if key := NormalizeName(name); key != "" {
		if margin, ok := i.byName[key]; ok {
			return margin, true
		}
	}
	return decimal.Zero, false
}

// Len reports the number of distinct keys in the index.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byProductID) + len(i.byName)
}

// NormalizeName lowercases, trims and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
