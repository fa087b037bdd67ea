package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return adapter, db
}

// createTestItem inserts an item with a unique code and brings it to stock
// through an adjustment so the ledger stays consistent.
func createTestItem(t *testing.T, adapter *MySQLAdapter, kind domain.ItemKind, stock int64) domain.Item {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	item := domain.Item{
		ID:          id,
		Code:        "T-" + id[:8],
		Description: "test item",
		Kind:        kind,
		Unit:        "u",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := adapter.CreateItem(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	if stock > 0 {
		logger, _ := logrustest.NewNullLogger()
		svc := service.NewPostingService(adapter, adapter, nil, logger)
		if _, err := svc.Post(ctx, domain.PostingCommand{
			ActorID: "test",
			Request: domain.AdjustmentRequest{ItemID: id, TargetStock: decimal.NewFromInt(stock)},
		}); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
	got, err := adapter.GetItem(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("reload item: %v", err)
	}
	return *got
}

func TestPlaceholders(t *testing.T) {
	for n, want := range map[int]string{1: "?", 3: "?, ?, ?"} {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d): expected %q, got %q", n, want, got)
		}
	}
}

func TestClassify(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: errDeadlockDetected, Message: "Deadlock found"}
	if !errors.Is(classify(deadlock), domain.ErrConflict) {
		t.Error("expected deadlock to classify as conflict")
	}
	lockWait := fmt.Errorf("exec: %w", &mysql.MySQLError{Number: errLockWaitTimeout})
	if !errors.Is(classify(lockWait), domain.ErrConflict) {
		t.Error("expected lock wait timeout to classify as conflict")
	}
	dup := &mysql.MySQLError{Number: errDuplicateEntry}
	if errors.Is(classify(dup), domain.ErrConflict) {
		t.Error("expected duplicate entry to pass through")
	}
}

func TestMySQL_ItemCRUD(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	item := createTestItem(t, adapter, domain.ItemKindRawMaterial, 0)

	dup := item
	dup.ID = uuid.NewString()
	if err := adapter.CreateItem(ctx, dup); !errors.Is(err, domain.ErrDuplicateCode) {
		t.Errorf("expected ErrDuplicateCode, got %v", err)
	}

	item.Description = "renamed"
	if err := adapter.UpdateItem(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := adapter.UpdateItem(ctx, item); err != nil {
		t.Errorf("unchanged update should succeed, got %v", err)
	}
	missing := item
	missing.ID = uuid.NewString()
	missing.Code = "T-missing-" + missing.ID[:8]
	if err := adapter.UpdateItem(ctx, missing); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}

	if err := adapter.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, err := adapter.GetItem(ctx, item.ID); got != nil || err != nil {
		t.Errorf("expected item to be gone, got %v %v", got, err)
	}
	if err := adapter.DeleteItem(ctx, item.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestMySQL_LedgerIsAppendOnly(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	ctx := context.Background()

	item := createTestItem(t, adapter, domain.ItemKindRawMaterial, 5)

	if _, err := db.ExecContext(ctx, `UPDATE movements SET quantity = 0 WHERE item_id = ?`, item.ID); err == nil {
		t.Error("expected update of a movement to be rejected")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM movements WHERE item_id = ?`, item.ID); err == nil {
		t.Error("expected delete of a movement to be rejected")
	}
	err := adapter.DeleteItem(ctx, item.ID)
	if !errors.Is(err, domain.ErrItemInUse) || err.Error() != "id is referenced by the ledger" {
		t.Errorf("expected ledger reference error, got %v", err)
	}
}

func TestMySQL_RecipeReplacement(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	a := createTestItem(t, adapter, domain.ItemKindRawMaterial, 0)
	b := createTestItem(t, adapter, domain.ItemKindRawMaterial, 0)
	f := createTestItem(t, adapter, domain.ItemKindFinishedGood, 0)

	prior := []domain.RecipeComponent{
		{RawMaterialID: b.ID, QuantityPerUnit: decimal.NewFromInt(3)},
		{RawMaterialID: a.ID, QuantityPerUnit: decimal.NewFromInt(2)},
	}
	if err := adapter.ReplaceRecipe(ctx, f.ID, prior); err != nil {
		t.Fatalf("replace: %v", err)
	}

	err := adapter.ReplaceRecipe(ctx, f.ID, []domain.RecipeComponent{
		{RawMaterialID: a.ID, QuantityPerUnit: decimal.NewFromInt(1)},
		{RawMaterialID: uuid.NewString(), QuantityPerUnit: decimal.NewFromInt(1)},
	})
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	rows, err := adapter.RecipeRows(ctx, f.ID)
	if err != nil {
		t.Fatalf("recipe rows: %v", err)
	}
	if len(rows) != 2 || *rows[0].RawMaterialID != b.ID || *rows[1].RawMaterialID != a.ID {
		t.Errorf("expected prior recipe in order, got %+v", rows)
	}

	for _, id := range []string{a.ID, f.ID} {
		err := adapter.DeleteItem(ctx, id)
		if !errors.Is(err, domain.ErrItemInUse) || err.Error() != "id is used by a recipe" {
			t.Errorf("%s: expected recipe reference error, got %v", id, err)
		}
	}

	if err := adapter.ReplaceRecipe(ctx, f.ID, nil); err != nil {
		t.Fatalf("clear recipe: %v", err)
	}
	if rows, _ := adapter.RecipeRows(ctx, f.ID); len(rows) != 0 {
		t.Errorf("expected empty recipe, got %+v", rows)
	}
}

func TestMySQL_ProductionPosting(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()
	logger, _ := logrustest.NewNullLogger()
	svc := service.NewPostingService(adapter, adapter, nil, logger)

	a := createTestItem(t, adapter, domain.ItemKindRawMaterial, 20)
	b := createTestItem(t, adapter, domain.ItemKindRawMaterial, 20)
	f := createTestItem(t, adapter, domain.ItemKindFinishedGood, 0)
	if err := adapter.ReplaceRecipe(ctx, f.ID, []domain.RecipeComponent{
		{RawMaterialID: a.ID, QuantityPerUnit: decimal.NewFromInt(2)},
		{RawMaterialID: b.ID, QuantityPerUnit: decimal.NewFromInt(3)},
	}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Post(ctx, domain.PostingCommand{
		ActorID: "test",
		Request: domain.ProductionRequest{ItemID: f.ID, Quantity: decimal.NewFromInt(7)},
	})
	if domain.KindOf(err) != domain.KindInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	movements, err := svc.Post(ctx, domain.PostingCommand{
		ActorID: "test",
		Request: domain.ProductionRequest{ItemID: f.ID, Quantity: decimal.NewFromInt(4)},
	})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(movements))
	}

	for id, want := range map[string]int64{f.ID: 4, a.ID: 12, b.ID: 8} {
		item, _ := adapter.GetItem(ctx, id)
		if !item.Stock.Equal(decimal.NewFromInt(want)) {
			t.Errorf("%s: expected stock %d, got %s", item.Code, want, item.Stock)
		}
	}

	listed, err := adapter.ListMovements(ctx, domain.MovementFilter{ItemID: f.ID, Kind: domain.MovementProduction})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Components) != 2 {
		t.Errorf("expected production row with 2 components, got %+v", listed)
	}
}

func TestMySQL_FractionalProductionKeepsChain(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()
	logger, _ := logrustest.NewNullLogger()
	svc := service.NewPostingService(adapter, adapter, nil, logger)

	a := createTestItem(t, adapter, domain.ItemKindRawMaterial, 1)
	f := createTestItem(t, adapter, domain.ItemKindFinishedGood, 0)
	if err := adapter.ReplaceRecipe(ctx, f.ID, []domain.RecipeComponent{
		{RawMaterialID: a.ID, QuantityPerUnit: decimal.RequireFromString("0.0003")},
	}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Post(ctx, domain.PostingCommand{
			ActorID: "test",
			Request: domain.ProductionRequest{ItemID: f.ID, Quantity: decimal.RequireFromString("0.5")},
		}); err != nil {
			t.Fatalf("produce: %v", err)
		}
	}

	for _, item := range []domain.Item{a, f} {
		replay, err := adapter.ReplayMovements(ctx, item.ID)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		running := decimal.Zero
		for _, m := range replay {
			if !m.StockBefore.Equal(running) || !m.Consistent() {
				t.Errorf("%s: broken chain at %s", item.Code, m.ID)
			}
			running = running.Add(m.Quantity)
		}
		got, _ := adapter.GetItem(ctx, item.ID)
		if !got.Stock.Equal(running) {
			t.Errorf("%s: replay gives %s, stock is %s", item.Code, running, got.Stock)
		}
	}

	got, _ := adapter.GetItem(ctx, a.ID)
	if want := decimal.RequireFromString("0.9994"); !got.Stock.Equal(want) {
		t.Errorf("expected raw material stock %s, got %s", want, got.Stock)
	}
}

func TestMySQL_ConcurrentWithdrawals(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()
	logger, _ := logrustest.NewNullLogger()
	svc := service.NewPostingService(adapter, adapter, nil, logger, service.WithMaxRetries(5))

	const initialStock, totalRequests = 10, 20
	item := createTestItem(t, adapter, domain.ItemKindFinishedGood, initialStock)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		success      int
		insufficient int
	)
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Post(ctx, domain.PostingCommand{
				ActorID: "test",
				Request: domain.WithdrawalRequest{ItemID: item.ID, Quantity: decimal.NewFromInt(1)},
			})
			mu.Lock()
			defer mu.Unlock()
			switch domain.KindOf(err) {
			case "":
				success++
			case domain.KindInsufficientStock:
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != initialStock || insufficient != totalRequests-initialStock {
		t.Errorf("expected %d/%d, got %d/%d", initialStock, totalRequests-initialStock, success, insufficient)
	}

	got, _ := adapter.GetItem(ctx, item.ID)
	if !got.Stock.IsZero() {
		t.Errorf("expected stock 0, got %s", got.Stock)
	}

	replay, err := adapter.ReplayMovements(ctx, item.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	running := decimal.Zero
	for _, m := range replay {
		if !m.StockBefore.Equal(running) || !m.Consistent() {
			t.Errorf("broken chain at %s", m.ID)
		}
		running = running.Add(m.Quantity)
	}
	if !running.Equal(got.Stock) {
		t.Errorf("replay gives %s, stock is %s", running, got.Stock)
	}
}
