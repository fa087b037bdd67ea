package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type ItemResponse struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Description  string          `json:"description"`
	Kind         domain.ItemKind `json:"kind"`
	Unit         string          `json:"unit"`
	MinStock     decimal.Decimal `json:"min_stock"`
	Stock        decimal.Decimal `json:"stock"`
	UnitValue    decimal.Decimal `json:"unit_value"`
	BelowMinimum bool            `json:"below_minimum"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type SummaryResponse struct {
	TotalItems    int            `json:"total_items"`
	RawMaterials  int            `json:"raw_materials"`
	FinishedGoods int            `json:"finished_goods"`
	LowStock      []ItemResponse `json:"low_stock"`
}

type ConsumedComponentResponse struct {
	ItemID   string          `json:"item_id"`
	ItemCode string          `json:"item_code"`
	Quantity decimal.Decimal `json:"quantity"`
}

type MovementResponse struct {
	ID          string                      `json:"id"`
	ItemID      string                      `json:"item_id"`
	Kind        domain.MovementKind         `json:"kind"`
	Quantity    decimal.Decimal             `json:"quantity"`
	UserID      string                      `json:"user_id"`
	Note        string                      `json:"note,omitempty"`
	StockBefore decimal.Decimal             `json:"stock_before"`
	StockAfter  decimal.Decimal             `json:"stock_after"`
	Components  []ConsumedComponentResponse `json:"components,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
}

type RecipeComponentResponse struct {
	RawMaterialID string          `json:"raw_material_id"`
	Quantity      decimal.Decimal `json:"quantity"`
}

type RecipeResponse struct {
	FinishedGoodID string                    `json:"finished_good_id"`
	Components     []RecipeComponentResponse `json:"components"`
}

type ShortfallResponse struct {
	ItemID    string          `json:"item_id"`
	ItemCode  string          `json:"item_code"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
}

type DiscrepancyResponse struct {
	ItemID          string          `json:"item_id"`
	ItemCode        string          `json:"item_code"`
	CurrentStock    decimal.Decimal `json:"current_stock"`
	ReplayedStock   decimal.Decimal `json:"replayed_stock"`
	BrokenMovements []string        `json:"broken_movements,omitempty"`
}

func toItemResponse(item domain.Item) ItemResponse {
	return ItemResponse{
		ID:           item.ID,
		Code:         item.Code,
		Description:  item.Description,
		Kind:         item.Kind,
		Unit:         item.Unit,
		MinStock:     item.MinStock,
		Stock:        item.Stock,
		UnitValue:    item.UnitValue,
		BelowMinimum: item.BelowMinimum(),
		UpdatedAt:    item.UpdatedAt,
	}
}

func toItemResponses(items []domain.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}

// postedMessage describes a successful posting; an adjustment to the
// current stock posts nothing.
func postedMessage(movements []domain.Movement) string {
	if len(movements) == 0 {
		return "stock already at target; nothing posted"
	}
	return "movement posted"
}

func toMovementResponses(movements []domain.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		resp := MovementResponse{
			ID:          m.ID,
			ItemID:      m.ItemID,
			Kind:        m.Kind,
			Quantity:    m.Quantity,
			UserID:      m.UserID,
			Note:        m.Note,
			StockBefore: m.StockBefore,
			StockAfter:  m.StockAfter,
			CreatedAt:   m.CreatedAt,
		}
		for _, c := range m.Components {
			resp.Components = append(resp.Components, ConsumedComponentResponse{
				ItemID:   c.ItemID,
				ItemCode: c.ItemCode,
				Quantity: c.Quantity,
			})
		}
		out = append(out, resp)
	}
	return out
}

func toRecipeResponse(r domain.Recipe) RecipeResponse {
	resp := RecipeResponse{FinishedGoodID: r.FinishedGoodID, Components: []RecipeComponentResponse{}}
	for _, c := range r.Components {
		resp.Components = append(resp.Components, RecipeComponentResponse{
			RawMaterialID: c.RawMaterialID,
			Quantity:      c.QuantityPerUnit,
		})
	}
	return resp
}

func toShortfallResponses(shortfalls []domain.Shortfall) []ShortfallResponse {
	out := make([]ShortfallResponse, 0, len(shortfalls))
	for _, s := range shortfalls {
		out = append(out, ShortfallResponse{
			ItemID:    s.ItemID,
			ItemCode:  s.ItemCode,
			Required:  s.Required,
			Available: s.Available,
		})
	}
	return out
}
