package handler

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type testServices struct {
	store          *storage.MemoryStore
	posting        *service.PostingService
	recipe         *service.RecipeService
	catalog        *service.CatalogService
	reconciliation *service.ReconciliationService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	store := storage.NewMemoryStore()
	logger, _ := logrustest.NewNullLogger()
	return &testServices{
		store:          store,
		posting:        service.NewPostingService(store, store, nil, logger),
		recipe:         service.NewRecipeService(store, store, logger),
		catalog:        service.NewCatalogService(store, logger),
		reconciliation: service.NewReconciliationService(store, store, logger),
	}
}

func (s *testServices) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHTTPHandler(s.posting, s.recipe, s.catalog, s.reconciliation).Register(r)
	return r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (s *testServices) seed(t *testing.T, id string, kind domain.ItemKind, stock int64) {
	t.Helper()
	err := s.store.CreateItem(context.Background(), domain.Item{
		ID:          id,
		Code:        id,
		Description: id,
		Kind:        kind,
		Unit:        "u",
		Stock:       decimal.NewFromInt(stock),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}
