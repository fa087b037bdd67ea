package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type ItemRepository interface {
	// ListItems returns every item ordered by description
	ListItems(ctx context.Context) ([]domain.Item, error)

	// GetItem returns nil when no item has the given id
	GetItem(ctx context.Context, id string) (*domain.Item, error)

	// CreateItem inserts a new item with zero stock
	CreateItem(ctx context.Context, item domain.Item) error

	// UpdateItem writes descriptive fields only; stock is owned by postings
	UpdateItem(ctx context.Context, item domain.Item) error

	// DeleteItem removes an item that no movement or recipe references
	DeleteItem(ctx context.Context, id string) error
}
