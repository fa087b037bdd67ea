package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementKind string

const (
	MovementRawMaterialIntake      MovementKind = "RAW_MATERIAL_INTAKE"
	MovementFinishedGoodWithdrawal MovementKind = "FINISHED_GOOD_WITHDRAWAL"
	MovementAdjustment             MovementKind = "ADJUSTMENT"
	MovementProduction             MovementKind = "PRODUCTION"
	MovementProductionConsumption  MovementKind = "PRODUCTION_CONSUMPTION"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementRawMaterialIntake, MovementFinishedGoodWithdrawal, MovementAdjustment,
		MovementProduction, MovementProductionConsumption:
		return true
	}
	return false
}

// ConsumedComponent records one raw material drawn down by a production posting.
type ConsumedComponent struct {
	ItemID   string
	ItemCode string
	Quantity decimal.Decimal
}

// Movement is an immutable ledger entry. Quantity is the signed stock delta.
type Movement struct {
	ID          string
	Sequence    int64 // ledger order, assigned by the store
	ItemID      string
	Kind        MovementKind
	Quantity    decimal.Decimal
	UserID      string
	Note        string
	StockBefore decimal.Decimal
	StockAfter  decimal.Decimal
	Components  []ConsumedComponent
	CreatedAt   time.Time
}

// Consistent reports whether the stock snapshots agree with the delta.
func (m Movement) Consistent() bool {
	return m.StockBefore.Add(m.Quantity).Equal(m.StockAfter)
}

const MaxMovementListLimit = 100

type MovementFilter struct {
	ItemID string
	Kind   MovementKind
	Limit  int
}

func (f MovementFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxMovementListLimit {
		return MaxMovementListLimit
	}
	return f.Limit
}
