package domain

import "github.com/shopspring/decimal"

type RecipeComponent struct {
	RawMaterialID   string
	QuantityPerUnit decimal.Decimal
}

// Recipe is the bill of materials for one unit of a finished good.
type Recipe struct {
	FinishedGoodID string
	Components     []RecipeComponent
}

func (r Recipe) Usable() bool {
	return len(r.Components) > 0
}

// RecipeRow is a component row as stored. RawMaterialID is nil when the
// row lost its raw material reference.
type RecipeRow struct {
	FinishedGoodID  string
	RawMaterialID   *string
	QuantityPerUnit decimal.Decimal
}
