package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of decimal places the store keeps for every
// stock quantity, snapshot and recipe amount.
const QuantityScale = 4

// CheckScale rejects a quantity the store could not hold without rounding.
func CheckScale(field string, q decimal.Decimal) error {
	if !q.Equal(q.Round(QuantityScale)) {
		return NewValidationError(field, fmt.Sprintf("must have at most %d decimal places", QuantityScale), ErrInvalidQuantity)
	}
	return nil
}
