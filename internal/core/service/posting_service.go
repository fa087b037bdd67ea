package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	idempotencyKeyPrefix = "posting:"
	postingLockPrefix    = "item:"
	defaultMaxRetries    = 3
)

type PostingService struct {
	repo       port.PostingRepository
	ledger     port.LedgerRepository
	cache      port.CacheRepository
	logger     logrus.FieldLogger
	maxRetries int
	now        func() time.Time
	newID      func() string
}

type PostingOption func(*PostingService)

// WithMaxRetries bounds how often a posting is retried after a store conflict.
func WithMaxRetries(n int) PostingOption {
	return func(s *PostingService) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) PostingOption {
	return func(s *PostingService) { s.now = now }
}

// NewPostingService wires the posting engine. cache may be nil, in which
// case idempotency keys and the posting gate are skipped.
func NewPostingService(repo port.PostingRepository, ledger port.LedgerRepository, cache port.CacheRepository, logger logrus.FieldLogger, opts ...PostingOption) *PostingService {
	s := &PostingService{
		repo:       repo,
		ledger:     ledger,
		cache:      cache,
		logger:     logger.WithField("module", "posting"),
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post validates cmd and commits the resulting movements. An adjustment to
// the current stock succeeds with no movements.
func (s *PostingService) Post(ctx context.Context, cmd domain.PostingCommand) ([]domain.Movement, error) {
	if cmd.Request == nil {
		return nil, domain.NewValidationError("request", "is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return nil, domain.NewValidationError("actor_id", "is required", domain.ErrInvalidRequest)
	}
	if err := cmd.Request.Validate(); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"func":       "Post",
		"kind":       cmd.Request.Kind(),
		"item_id":    cmd.Request.TargetItemID(),
		"actor_id":   cmd.ActorID,
		"request_id": cmd.RequestID,
	})

	if cmd.RequestID != "" && s.cache != nil {
		key := idempotencyKeyPrefix + cmd.RequestID
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return nil, domain.NewPersistenceError("idempotency check", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		movements, err := s.postGated(ctx, log, cmd)
		if err != nil {
			if clearErr := s.cache.ClearIdempotency(context.WithoutCancel(ctx), key); clearErr != nil {
				log.WithError(clearErr).Warn("failed to release idempotency key")
			}
		}
		return movements, err
	}

	return s.postGated(ctx, log, cmd)
}

func (s *PostingService) postGated(ctx context.Context, log logrus.FieldLogger, cmd domain.PostingCommand) ([]domain.Movement, error) {
	release := s.obtainGate(ctx, log, cmd.Request.TargetItemID())
	defer release()

	movements, err := s.postWithRetry(ctx, log, cmd)
	if err != nil {
		entry := log.WithField("error_kind", domain.KindOf(err))
		if domain.KindOf(err) == domain.KindPersistence {
			entry.Error(err.Error())
		} else {
			entry.Warn(err.Error())
		}
		return nil, err
	}

	log.WithField("movements", len(movements)).Info("posting committed")
	return movements, nil
}

// obtainGate takes the per-item lock when a cache is configured. The lock
// only reduces contention; the store transaction is what serializes postings,
// so failure to obtain it is logged and ignored.
func (s *PostingService) obtainGate(ctx context.Context, log logrus.FieldLogger, itemID string) func() {
	if s.cache == nil {
		return func() {}
	}
	release, err := s.cache.ObtainLock(ctx, postingLockPrefix+itemID)
	if err != nil {
		if errors.Is(err, port.ErrLockNotObtained) {
			log.Warn("could not obtain posting lock; proceeding without it")
		} else {
			log.WithError(err).Warn("error obtaining posting lock; proceeding without it")
		}
		return func() {}
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("failed to release posting lock")
		}
	}
}

func (s *PostingService) postWithRetry(ctx context.Context, log logrus.FieldLogger, cmd domain.PostingCommand) ([]domain.Movement, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var posted []domain.Movement
		err := s.repo.WithinPostingTx(ctx, func(ctx context.Context, tx port.PostingTx) error {
			var err error
			posted, err = s.apply(ctx, tx, cmd)
			return err
		})
		if err == nil {
			return posted, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		log.WithField("attempt", attempt).Warn("posting conflict; retrying")
	}
	return nil, domain.NewPersistenceError(fmt.Sprintf("posting gave up after %d attempts", s.maxRetries), lastErr)
}

func (s *PostingService) apply(ctx context.Context, tx port.PostingTx, cmd domain.PostingCommand) ([]domain.Movement, error) {
	switch req := cmd.Request.(type) {
	case domain.IntakeRequest:
		return s.postIntake(ctx, tx, cmd.ActorID, req)
	case domain.WithdrawalRequest:
		return s.postWithdrawal(ctx, tx, cmd.ActorID, req)
	case domain.AdjustmentRequest:
		return s.postAdjustment(ctx, tx, cmd.ActorID, req)
	case domain.ProductionRequest:
		return s.postProduction(ctx, tx, cmd.ActorID, req)
	}
	return nil, domain.NewValidationError("request", fmt.Sprintf("unsupported request %T", cmd.Request), domain.ErrInvalidRequest)
}

func (s *PostingService) postIntake(ctx context.Context, tx port.PostingTx, actorID string, req domain.IntakeRequest) ([]domain.Movement, error) {
	items, err := s.lockItems(ctx, tx, req.ItemID)
	if err != nil {
		return nil, err
	}
	item := items[req.ItemID]
	if item.Kind != domain.ItemKindRawMaterial {
		return nil, domain.NewWrongItemKind(item, domain.ItemKindRawMaterial)
	}

	m := s.newMovement(item, domain.MovementRawMaterialIntake, req.Quantity, actorID, req.Note)
	if err := s.applyMovement(ctx, tx, items, &m); err != nil {
		return nil, err
	}
	return []domain.Movement{m}, nil
}

func (s *PostingService) postWithdrawal(ctx context.Context, tx port.PostingTx, actorID string, req domain.WithdrawalRequest) ([]domain.Movement, error) {
	items, err := s.lockItems(ctx, tx, req.ItemID)
	if err != nil {
		return nil, err
	}
	item := items[req.ItemID]
	if item.Kind != domain.ItemKindFinishedGood {
		return nil, domain.NewWrongItemKind(item, domain.ItemKindFinishedGood)
	}
	if item.Stock.LessThan(req.Quantity) {
		return nil, &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{{
			ItemID:    item.ID,
			ItemCode:  item.Code,
			Required:  req.Quantity,
			Available: item.Stock,
		}}}
	}

	m := s.newMovement(item, domain.MovementFinishedGoodWithdrawal, req.Quantity.Neg(), actorID, req.Note)
	if err := s.applyMovement(ctx, tx, items, &m); err != nil {
		return nil, err
	}
	return []domain.Movement{m}, nil
}

func (s *PostingService) postAdjustment(ctx context.Context, tx port.PostingTx, actorID string, req domain.AdjustmentRequest) ([]domain.Movement, error) {
	items, err := s.lockItems(ctx, tx, req.ItemID)
	if err != nil {
		return nil, err
	}
	item := items[req.ItemID]

	delta := req.TargetStock.Sub(item.Stock)
	if delta.IsZero() {
		return []domain.Movement{}, nil
	}

	m := s.newMovement(item, domain.MovementAdjustment, delta, actorID, req.Note)
	if err := s.applyMovement(ctx, tx, items, &m); err != nil {
		return nil, err
	}
	return []domain.Movement{m}, nil
}

// postProduction explodes the recipe of the finished good. Every component
// is checked before anything is written so that all shortfalls are reported
// together, and the N+1 movements commit in the caller's transaction.
func (s *PostingService) postProduction(ctx context.Context, tx port.PostingTx, actorID string, req domain.ProductionRequest) ([]domain.Movement, error) {
	recipe, err := ResolveFrom(ctx, tx, req.ItemID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recipe.Components)+1)
	ids = append(ids, req.ItemID)
	for _, c := range recipe.Components {
		ids = append(ids, c.RawMaterialID)
	}
	items, err := tx.LockItems(ctx, ids)
	if err != nil {
		return nil, domain.NewPersistenceError("lock items", err)
	}

	finished, ok := items[req.ItemID]
	if !ok {
		return nil, domain.NewItemNotFound(req.ItemID)
	}
	if finished.Kind != domain.ItemKindFinishedGood {
		return nil, domain.NewWrongItemKind(finished, domain.ItemKindFinishedGood)
	}
	if !recipe.Usable() {
		return nil, &domain.NoRecipeError{FinishedGoodID: finished.ID, FinishedGoodCode: finished.Code}
	}

	required := make([]decimal.Decimal, len(recipe.Components))
	var shortfalls []domain.Shortfall
	for i, c := range recipe.Components {
		material, ok := items[c.RawMaterialID]
		if !ok {
			return nil, domain.NewItemNotFound(c.RawMaterialID)
		}
		// Legacy recipe rows and fractional batches can exceed the stored scale.
		required[i] = req.Quantity.Mul(c.QuantityPerUnit).Round(domain.QuantityScale)
		if material.Stock.LessThan(required[i]) {
			shortfalls = append(shortfalls, domain.Shortfall{
				ItemID:    material.ID,
				ItemCode:  material.Code,
				Required:  required[i],
				Available: material.Stock,
			})
		}
	}
	if len(shortfalls) > 0 {
		return nil, &domain.InsufficientStockError{Shortfalls: shortfalls}
	}

	consumed := make([]domain.ConsumedComponent, len(recipe.Components))
	for i, c := range recipe.Components {
		consumed[i] = domain.ConsumedComponent{
			ItemID:   c.RawMaterialID,
			ItemCode: items[c.RawMaterialID].Code,
			Quantity: required[i],
		}
	}

	production := s.newMovement(finished, domain.MovementProduction, req.Quantity, actorID, req.Note)
	production.Components = consumed
	if err := s.applyMovement(ctx, tx, items, &production); err != nil {
		return nil, err
	}

	posted := []domain.Movement{production}
	note := "production of " + finished.Code
	if req.Note != "" {
		note += ": " + req.Note
	}
	for i, c := range recipe.Components {
		m := s.newMovement(items[c.RawMaterialID], domain.MovementProductionConsumption, required[i].Neg(), actorID, note)
		if err := s.applyMovement(ctx, tx, items, &m); err != nil {
			return nil, err
		}
		posted = append(posted, m)
	}
	return posted, nil
}

func (s *PostingService) lockItems(ctx context.Context, tx port.PostingTx, itemID string) (map[string]domain.Item, error) {
	items, err := tx.LockItems(ctx, []string{itemID})
	if err != nil {
		return nil, domain.NewPersistenceError("lock items", err)
	}
	if _, ok := items[itemID]; !ok {
		return nil, domain.NewItemNotFound(itemID)
	}
	return items, nil
}

func (s *PostingService) newMovement(item domain.Item, kind domain.MovementKind, delta decimal.Decimal, actorID, note string) domain.Movement {
	return domain.Movement{
		ID:          s.newID(),
		ItemID:      item.ID,
		Kind:        kind,
		Quantity:    delta,
		UserID:      actorID,
		Note:        note,
		StockBefore: item.Stock,
		StockAfter:  item.Stock.Add(delta),
		CreatedAt:   s.now().UTC(),
	}
}

// applyMovement writes m and advances the locked snapshot of its item so a
// later movement on the same item chains from the new stock.
func (s *PostingService) applyMovement(ctx context.Context, tx port.PostingTx, items map[string]domain.Item, m *domain.Movement) error {
	item := items[m.ItemID]
	if err := tx.ApplyMovement(ctx, item, m); err != nil {
		return domain.NewPersistenceError("apply movement", err)
	}
	item.Stock = m.StockAfter
	item.Version++
	items[m.ItemID] = item
	return nil
}

// ListMovements returns the most recent ledger entries matching filter.
func (s *PostingService) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.NewValidationError("kind", "unknown movement kind "+string(filter.Kind), domain.ErrInvalidRequest)
	}
	filter.Limit = filter.EffectiveLimit()

	movements, err := s.ledger.ListMovements(ctx, filter)
	if err != nil {
		return nil, domain.NewPersistenceError("list movements", err)
	}
	return movements, nil
}
