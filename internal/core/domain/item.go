package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemKind string

const (
	ItemKindRawMaterial  ItemKind = "RAW_MATERIAL"
	ItemKindFinishedGood ItemKind = "FINISHED_GOOD"
)

func (k ItemKind) Valid() bool {
	return k == ItemKindRawMaterial || k == ItemKindFinishedGood
}

type Item struct {
	ID          string
	Code        string
	Description string
	Kind        ItemKind
	Unit        string
	MinStock    decimal.Decimal
	Stock       decimal.Decimal
	UnitValue   decimal.Decimal
	Version     int // optimistic locking
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (i Item) BelowMinimum() bool {
	return i.Stock.LessThan(i.MinStock)
}

// NewItem carries the administrative fields of an item. Stock always starts at zero.
type NewItem struct {
	Code        string          `json:"code" validate:"required,max=50"`
	Description string          `json:"description" validate:"required,max=255"`
	Kind        ItemKind        `json:"kind" validate:"required,oneof=RAW_MATERIAL FINISHED_GOOD"`
	Unit        string          `json:"unit" validate:"required,max=20"`
	MinStock    decimal.Decimal `json:"min_stock"`
	UnitValue   decimal.Decimal `json:"unit_value"`
}

// ItemPatch updates descriptive fields only; nil fields are left untouched.
type ItemPatch struct {
	Code        *string          `json:"code" validate:"omitempty,min=1,max=50"`
	Description *string          `json:"description" validate:"omitempty,min=1,max=255"`
	Unit        *string          `json:"unit" validate:"omitempty,min=1,max=20"`
	MinStock    *decimal.Decimal `json:"min_stock"`
	UnitValue   *decimal.Decimal `json:"unit_value"`
}

func (p ItemPatch) Apply(item *Item) {
	if p.Code != nil {
		item.Code = *p.Code
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.MinStock != nil {
		item.MinStock = *p.MinStock
	}
	if p.UnitValue != nil {
		item.UnitValue = *p.UnitValue
	}
}

type InventorySummary struct {
	TotalItems    int
	RawMaterials  int
	FinishedGoods int
	LowStock      []Item
}
