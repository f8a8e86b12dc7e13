package enums

// MarginState records how far an order's margin has progressed.
type MarginState string

const (
	// MarginStatePreliminary is computed eagerly at order creation.
	MarginStatePreliminary MarginState = "preliminary"
	// MarginStateFinal is computed once the order is confirmed and paid.
	MarginStateFinal MarginState = "final"
)

func (m MarginState) IsValid() bool {
	return m == MarginStatePreliminary || m == MarginStateFinal
}
