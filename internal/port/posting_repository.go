package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type PostingRepository interface {
	// WithinPostingTx runs fn inside one store transaction. Everything fn
	// writes commits together, or nothing does when fn returns an error.
	WithinPostingTx(ctx context.Context, fn func(ctx context.Context, tx PostingTx) error) error
}

type PostingTx interface {
	RecipeReader

	// LockItems reads the given items and holds them locked until the
	// transaction ends. Unknown ids are absent from the result.
	LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error)

	// ApplyMovement appends m to the ledger and moves item's stock to
	// m.StockAfter. It fails with domain.ErrConflict when item.Version is stale.
	ApplyMovement(ctx context.Context, item domain.Item, m *domain.Movement) error
}
