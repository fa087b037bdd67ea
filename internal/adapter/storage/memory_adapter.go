package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// MemoryStore keeps items, ledger and recipes in process memory. A posting
// transaction holds the store lock from start to commit, so postings are
// fully serialized.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]domain.Item
	movements []domain.Movement
	recipes   map[string][]domain.RecipeRow
	seq       int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]domain.Item),
		recipes: make(map[string][]domain.RecipeRow),
	}
}

func (s *MemoryStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Description == items[j].Description {
			return items[i].Code < items[j].Code
		}
		return items[i].Description < items[j].Description
	})
	return items, nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *MemoryStore) CreateItem(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(item.Code, "") {
		return domain.NewValidationError("code", "is already used by another item", domain.ErrDuplicateCode)
	}
	s.items[item.ID] = item
	return nil
}

func (s *MemoryStore) UpdateItem(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[item.ID]
	if !ok {
		return domain.NewItemNotFound(item.ID)
	}
	if s.codeTaken(item.Code, item.ID) {
		return domain.NewValidationError("code", "is already used by another item", domain.ErrDuplicateCode)
	}
	current.Code = item.Code
	current.Description = item.Description
	current.Unit = item.Unit
	current.MinStock = item.MinStock
	current.UnitValue = item.UnitValue
	current.UpdatedAt = item.UpdatedAt
	s.items[item.ID] = current
	return nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return domain.NewItemNotFound(id)
	}
	for _, m := range s.movements {
		if m.ItemID == id {
			return domain.NewValidationError("id", "is referenced by the ledger", domain.ErrItemInUse)
		}
	}
	for fg, rows := range s.recipes {
		if fg == id && len(rows) > 0 {
			return domain.NewValidationError("id", "has a recipe", domain.ErrItemInUse)
		}
		for _, row := range rows {
			if row.RawMaterialID != nil && *row.RawMaterialID == id {
				return domain.NewValidationError("id", "is used by a recipe", domain.ErrItemInUse)
			}
		}
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) codeTaken(code, exceptID string) bool {
	for _, other := range s.items {
		if other.ID != exceptID && strings.EqualFold(other.Code, code) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.EffectiveLimit()
	var out []domain.Movement
	for i := len(s.movements) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.movements[i]
		if filter.ItemID != "" && m.ItemID != filter.ItemID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		out = append(out, copyMovement(m))
	}
	return out, nil
}

func (s *MemoryStore) ReplayMovements(ctx context.Context, itemID string) ([]domain.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Movement
	for _, m := range s.movements {
		if m.ItemID == itemID {
			out = append(out, copyMovement(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) RecipeRows(ctx context.Context, finishedGoodID string) ([]domain.RecipeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipeRows(finishedGoodID), nil
}

func (s *MemoryStore) recipeRows(finishedGoodID string) []domain.RecipeRow {
	return append([]domain.RecipeRow(nil), s.recipes[finishedGoodID]...)
}

func (s *MemoryStore) AllRecipeRows(ctx context.Context) ([]domain.RecipeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.recipes))
	for id := range s.recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rows []domain.RecipeRow
	for _, id := range ids {
		rows = append(rows, s.recipes[id]...)
	}
	return rows, nil
}

// PutRecipeRows stores raw component rows as they are, including rows a
// replacement would reject. Used to load legacy data.
func (s *MemoryStore) PutRecipeRows(finishedGoodID string, rows []domain.RecipeRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[finishedGoodID] = append([]domain.RecipeRow(nil), rows...)
}

func (s *MemoryStore) ReplaceRecipe(ctx context.Context, finishedGoodID string, components []domain.RecipeComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]domain.RecipeRow, 0, len(components))
	for _, c := range components {
		if _, ok := s.items[c.RawMaterialID]; !ok {
			return domain.NewItemNotFound(c.RawMaterialID)
		}
		id := c.RawMaterialID
		staged = append(staged, domain.RecipeRow{
			FinishedGoodID:  finishedGoodID,
			RawMaterialID:   &id,
			QuantityPerUnit: c.QuantityPerUnit,
		})
	}

	if len(staged) == 0 {
		delete(s.recipes, finishedGoodID)
		return nil
	}
	s.recipes[finishedGoodID] = staged
	return nil
}

func (s *MemoryStore) WithinPostingTx(ctx context.Context, fn func(ctx context.Context, tx port.PostingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, items: make(map[string]domain.Item)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewPersistenceError("commit posting", err)
	}

	for id, item := range tx.items {
		s.items[id] = item
	}
	for _, m := range tx.movements {
		s.movements = append(s.movements, m)
	}
	return nil
}

type memoryTx struct {
	store     *MemoryStore
	items     map[string]domain.Item
	movements []domain.Movement
}

func (t *memoryTx) current(id string) (domain.Item, bool) {
	if item, ok := t.items[id]; ok {
		return item, true
	}
	item, ok := t.store.items[id]
	return item, ok
}

func (t *memoryTx) LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := t.current(id); ok {
			out[id] = item
		}
	}
	return out, nil
}

func (t *memoryTx) RecipeRows(ctx context.Context, finishedGoodID string) ([]domain.RecipeRow, error) {
	return t.store.recipeRows(finishedGoodID), nil
}

func (t *memoryTx) ApplyMovement(ctx context.Context, item domain.Item, m *domain.Movement) error {
	current, ok := t.current(item.ID)
	if !ok {
		return domain.NewItemNotFound(item.ID)
	}
	if current.Version != item.Version {
		return domain.ErrConflict
	}

	t.store.seq++
	m.Sequence = t.store.seq
	current.Stock = m.StockAfter
	current.Version++
	current.UpdatedAt = m.CreatedAt
	t.items[item.ID] = current
	t.movements = append(t.movements, copyMovement(*m))
	return nil
}

func copyMovement(m domain.Movement) domain.Movement {
	if m.Components != nil {
		m.Components = append([]domain.ConsumedComponent(nil), m.Components...)
	}
	return m
}
