package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type LedgerRepository interface {
	// ListMovements returns movements newest first, bounded by filter.EffectiveLimit()
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error)

	// ReplayMovements returns all movements of one item in ledger order
	ReplayMovements(ctx context.Context, itemID string) ([]domain.Movement, error)
}
