package service

import (
	"context"
	"testing"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func TestReconciliation_CleanLedger(t *testing.T) {
	f := newPostingFixture(t, false)
	seedItem(t, f.store, "A", "A", domain.ItemKindRawMaterial, "0")
	seedItem(t, f.store, "B", "B", domain.ItemKindRawMaterial, "0")
	seedItem(t, f.store, "F", "F", domain.ItemKindFinishedGood, "0")
	seedRecipe(f.store)

	for _, req := range []domain.PostingRequest{
		domain.IntakeRequest{ItemID: "A", Quantity: dec("10")},
		domain.IntakeRequest{ItemID: "B", Quantity: dec("9")},
		domain.ProductionRequest{ItemID: "F", Quantity: dec("2")},
		domain.WithdrawalRequest{ItemID: "F", Quantity: dec("1")},
	} {
		if _, err := f.post(t, req); err != nil {
			t.Fatal(err)
		}
	}

	logger, _ := nullLogger()
	svc := NewReconciliationService(f.store, f.store, logger)
	discrepancies, err := svc.Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discrepancies == nil || len(discrepancies) != 0 {
		t.Errorf("expected empty result, got %+v", discrepancies)
	}
}

func TestReconciliation_StockWithoutHistory(t *testing.T) {
	f := newPostingFixture(t, false)
	seedItem(t, f.store, "A", "A", domain.ItemKindRawMaterial, "5")

	logger, _ := nullLogger()
	discrepancies, err := NewReconciliationService(f.store, f.store, logger).Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(discrepancies))
	}
	d := discrepancies[0]
	if d.ItemID != "A" || !d.CurrentStock.Equal(dec("5")) || !d.ReplayedStock.IsZero() {
		t.Errorf("unexpected discrepancy %+v", d)
	}
}

func TestReplay_BrokenChain(t *testing.T) {
	item := domain.Item{ID: "A", Code: "A", Stock: dec("7")}
	movements := []domain.Movement{
		{ID: "m1", Quantity: dec("5"), StockBefore: dec("0"), StockAfter: dec("5")},
		{ID: "m2", Quantity: dec("2"), StockBefore: dec("4"), StockAfter: dec("6")},
		{ID: "m3", Quantity: dec("0"), StockBefore: dec("7"), StockAfter: dec("8")},
	}

	d, ok := replay(item, movements)
	if ok {
		t.Fatal("expected a discrepancy")
	}
	if !d.ReplayedStock.Equal(dec("7")) {
		t.Errorf("expected replayed 7, got %s", d.ReplayedStock)
	}
	if len(d.BrokenMovements) != 2 || d.BrokenMovements[0] != "m2" || d.BrokenMovements[1] != "m3" {
		t.Errorf("expected m2 and m3 broken, got %v", d.BrokenMovements)
	}
}
