package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// ReconciliationService replays the ledger of every item from zero and
// compares the result with the item's current stock.
type ReconciliationService struct {
	items  port.ItemRepository
	ledger port.LedgerRepository
	logger logrus.FieldLogger
}

func NewReconciliationService(items port.ItemRepository, ledger port.LedgerRepository, logger logrus.FieldLogger) *ReconciliationService {
	return &ReconciliationService{
		items:  items,
		ledger: ledger,
		logger: logger.WithField("module", "reconciliation"),
	}
}

func (s *ReconciliationService) Check(ctx context.Context) ([]domain.Discrepancy, error) {
	items, err := s.items.ListItems(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("list items", err)
	}

	discrepancies := []domain.Discrepancy{}
	for _, item := range items {
		movements, err := s.ledger.ReplayMovements(ctx, item.ID)
		if err != nil {
			return nil, domain.NewPersistenceError("replay movements", err)
		}
		if d, ok := replay(item, movements); !ok {
			discrepancies = append(discrepancies, d)
		}
	}

	entry := s.logger.WithFields(logrus.Fields{
		"func":          "Check",
		"items":         len(items),
		"discrepancies": len(discrepancies),
	})
	if len(discrepancies) > 0 {
		entry.Warn("ledger replay does not match stock")
	} else {
		entry.Info("ledger replay matches stock")
	}
	return discrepancies, nil
}

// replay sums deltas in ledger order and checks that every snapshot chains
// from the previous one.
func replay(item domain.Item, movements []domain.Movement) (domain.Discrepancy, bool) {
	running := decimal.Zero
	var broken []string
	for _, m := range movements {
		if !m.StockBefore.Equal(running) || !m.Consistent() {
			broken = append(broken, m.ID)
		}
		running = running.Add(m.Quantity)
	}

	if running.Equal(item.Stock) && len(broken) == 0 {
		return domain.Discrepancy{}, true
	}
	return domain.Discrepancy{
		ItemID:          item.ID,
		ItemCode:        item.Code,
		CurrentStock:    item.Stock,
		ReplayedStock:   running,
		BrokenMovements: broken,
	}, false
}
