package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func newCatalogFixture(t *testing.T) (*storage.MemoryStore, *CatalogService) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger, _ := nullLogger()
	return store, NewCatalogService(store, logger)
}

func validNewItem(code string) domain.NewItem {
	return domain.NewItem{
		Code:        code,
		Description: "Flour",
		Kind:        domain.ItemKindRawMaterial,
		Unit:        "kg",
		MinStock:    dec("10"),
		UnitValue:   dec("1.25"),
	}
}

func TestCatalog_CreateItem(t *testing.T) {
	_, svc := newCatalogFixture(t)

	item, err := svc.CreateItem(context.Background(), validNewItem("  MP-001 "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID == "" {
		t.Error("expected an id")
	}
	if item.Code != "MP-001" {
		t.Errorf("expected trimmed code, got %q", item.Code)
	}
	if !item.Stock.IsZero() {
		t.Errorf("expected zero stock, got %s", item.Stock)
	}

	got, err := svc.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Code != "MP-001" {
		t.Errorf("expected stored item, got %+v", got)
	}
}

func TestCatalog_CreateItemValidation(t *testing.T) {
	_, svc := newCatalogFixture(t)

	noCode := validNewItem("")
	badKind := validNewItem("X-1")
	badKind.Kind = "SERVICE"
	negative := validNewItem("X-2")
	negative.MinStock = dec("-1")
	fineValue := validNewItem("X-3")
	fineValue.UnitValue = dec("1.23456")

	for name, input := range map[string]domain.NewItem{"no code": noCode, "bad kind": badKind, "negative min": negative, "value beyond scale": fineValue} {
		_, err := svc.CreateItem(context.Background(), input)
		if domain.KindOf(err) != domain.KindValidation {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCatalog_DuplicateCode(t *testing.T) {
	_, svc := newCatalogFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, validNewItem("MP-001")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateItem(ctx, validNewItem("mp-001"))
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestCatalog_UpdateItemLeavesStock(t *testing.T) {
	store, svc := newCatalogFixture(t)
	seedItem(t, store, "A", "A", domain.ItemKindRawMaterial, "42")

	desc := "Wheat flour"
	minStock := decimal.NewFromInt(5)
	item, err := svc.UpdateItem(context.Background(), "A", domain.ItemPatch{Description: &desc, MinStock: &minStock})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Description != desc || !item.MinStock.Equal(minStock) {
		t.Errorf("patch not applied: %+v", item)
	}
	if got := stockOf(t, store, "A"); !got.Equal(dec("42")) {
		t.Errorf("expected stock 42, got %s", got)
	}

	if _, err := svc.UpdateItem(context.Background(), "missing", domain.ItemPatch{Description: &desc}); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCatalog_DeleteItem(t *testing.T) {
	store, svc := newCatalogFixture(t)
	ctx := context.Background()
	seedItem(t, store, "A", "A", domain.ItemKindRawMaterial, "0")
	seedItem(t, store, "B", "B", domain.ItemKindRawMaterial, "0")
	seedItem(t, store, "F", "F", domain.ItemKindFinishedGood, "0")
	store.PutRecipeRows("F", []domain.RecipeRow{{FinishedGoodID: "F", RawMaterialID: strPtr("A"), QuantityPerUnit: dec("1")}})

	if err := svc.DeleteItem(ctx, "A"); !errors.Is(err, domain.ErrItemInUse) {
		t.Errorf("expected ErrItemInUse, got %v", err)
	}
	if err := svc.DeleteItem(ctx, "B"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := svc.GetItem(ctx, "B"); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected B to be gone, got %v", err)
	}
}

func TestCatalog_Summary(t *testing.T) {
	store, svc := newCatalogFixture(t)
	ctx := context.Background()

	low, err := svc.CreateItem(ctx, validNewItem("MP-LOW"))
	if err != nil {
		t.Fatal(err)
	}
	seedItem(t, store, "F", "F", domain.ItemKindFinishedGood, "3")

	summary, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalItems != 2 || summary.RawMaterials != 1 || summary.FinishedGoods != 1 {
		t.Errorf("unexpected counts %+v", summary)
	}
	if len(summary.LowStock) != 1 || summary.LowStock[0].ID != low.ID {
		t.Errorf("expected only %s below minimum, got %+v", low.Code, summary.LowStock)
	}
}
