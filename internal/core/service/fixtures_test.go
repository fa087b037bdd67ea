package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var fixedNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

func nullLogger() (logrus.FieldLogger, *logrustest.Hook) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// seedItem stores an item with the given stock directly, bypassing the catalog.
func seedItem(t *testing.T, store *storage.MemoryStore, id, code string, kind domain.ItemKind, stock string) domain.Item {
	t.Helper()
	item := domain.Item{
		ID:          id,
		Code:        code,
		Description: code,
		Kind:        kind,
		Unit:        "kg",
		Stock:       dec(stock),
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
	if err := store.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("seed item %s: %v", id, err)
	}
	return item
}

func stockOf(t *testing.T, store *storage.MemoryStore, id string) decimal.Decimal {
	t.Helper()
	item, err := store.GetItem(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item.Stock
}

func ledgerSize(t *testing.T, store *storage.MemoryStore) int {
	t.Helper()
	movements, err := store.ListMovements(context.Background(), domain.MovementFilter{})
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	return len(movements)
}

// mockCache is an in-memory CacheRepository.
type mockCache struct {
	mu      sync.Mutex
	keys    map[string]bool
	locks   map[string]bool
	lockErr error
	cleared []string
}

func newMockCache() *mockCache {
	return &mockCache{keys: make(map[string]bool), locks: make(map[string]bool)}
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockCache) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.cleared = append(m.cleared, key)
	return nil
}

func (m *mockCache) ObtainLock(ctx context.Context, key string) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.locks[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, key)
		return nil
	}, nil
}

func (m *mockCache) heldLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

var _ port.CacheRepository = (*mockCache)(nil)

// faultyStore wraps a memory store so tests can fail a posting at the
// point a movement would be applied, or act just before a recipe replacement.
type faultyStore struct {
	*storage.MemoryStore
	beforeApply   func(m domain.Movement) error
	beforeReplace func(ctx context.Context) error
}

func (s *faultyStore) WithinPostingTx(ctx context.Context, fn func(ctx context.Context, tx port.PostingTx) error) error {
	return s.MemoryStore.WithinPostingTx(ctx, func(ctx context.Context, tx port.PostingTx) error {
		return fn(ctx, &faultyTx{PostingTx: tx, store: s})
	})
}

func (s *faultyStore) ReplaceRecipe(ctx context.Context, finishedGoodID string, components []domain.RecipeComponent) error {
	if s.beforeReplace != nil {
		if err := s.beforeReplace(ctx); err != nil {
			return err
		}
	}
	return s.MemoryStore.ReplaceRecipe(ctx, finishedGoodID, components)
}

type faultyTx struct {
	port.PostingTx
	store *faultyStore
}

func (t *faultyTx) ApplyMovement(ctx context.Context, item domain.Item, m *domain.Movement) error {
	if t.store.beforeApply != nil {
		if err := t.store.beforeApply(*m); err != nil {
			return err
		}
	}
	return t.PostingTx.ApplyMovement(ctx, item, m)
}

var (
	_ port.PostingRepository = (*faultyStore)(nil)
	_ port.RecipeRepository  = (*faultyStore)(nil)
)

// postingFixture builds a posting service over a fresh memory store with
// raw materials A and B and finished good F.
type postingFixture struct {
	store   *storage.MemoryStore
	faults  *faultyStore
	cache   *mockCache
	service *PostingService
	hook    *logrustest.Hook
}

func newPostingFixture(t *testing.T, withCache bool, opts ...PostingOption) *postingFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	faults := &faultyStore{MemoryStore: store}
	logger, hook := nullLogger()

	var cache port.CacheRepository
	mc := newMockCache()
	if withCache {
		cache = mc
	}

	opts = append([]PostingOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &postingFixture{
		store:   store,
		faults:  faults,
		cache:   mc,
		service: NewPostingService(faults, store, cache, logger, opts...),
		hook:    hook,
	}
}

func (f *postingFixture) post(t *testing.T, req domain.PostingRequest) ([]domain.Movement, error) {
	t.Helper()
	return f.service.Post(context.Background(), domain.PostingCommand{ActorID: "user-1", Request: req})
}

// seedRecipe stores F = 2 A + 3 B.
func seedRecipe(store *storage.MemoryStore) {
	store.PutRecipeRows("F", []domain.RecipeRow{
		{FinishedGoodID: "F", RawMaterialID: strPtr("A"), QuantityPerUnit: dec("2")},
		{FinishedGoodID: "F", RawMaterialID: strPtr("B"), QuantityPerUnit: dec("3")},
	})
}
