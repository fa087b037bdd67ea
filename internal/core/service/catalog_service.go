package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// CatalogService administers items. It never changes stock.
type CatalogService struct {
	items    port.ItemRepository
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewCatalogService(items port.ItemRepository, logger logrus.FieldLogger) *CatalogService {
	return &CatalogService{
		items:    items,
		validate: validator.New(),
		logger:   logger.WithField("module", "catalog"),
		now:      time.Now,
	}
}

func (s *CatalogService) ListItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.items.ListItems(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("list items", err)
	}
	return items, nil
}

func (s *CatalogService) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, domain.NewPersistenceError("get item", err)
	}
	if item == nil {
		return domain.Item{}, domain.NewItemNotFound(id)
	}
	return *item, nil
}

func (s *CatalogService) CreateItem(ctx context.Context, input domain.NewItem) (domain.Item, error) {
	input.Code = strings.TrimSpace(input.Code)
	if err := s.validateStruct(input); err != nil {
		return domain.Item{}, err
	}
	if err := validateAmounts(input.MinStock, input.UnitValue); err != nil {
		return domain.Item{}, err
	}

	now := s.now().UTC()
	item := domain.Item{
		ID:          uuid.NewString(),
		Code:        input.Code,
		Description: input.Description,
		Kind:        input.Kind,
		Unit:        input.Unit,
		MinStock:    input.MinStock,
		Stock:       decimal.Zero,
		UnitValue:   input.UnitValue,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		return domain.Item{}, s.storeError("CreateItem", "create item", item.Code, err)
	}

	s.logger.WithFields(logrus.Fields{"func": "CreateItem", "item_id": item.ID, "code": item.Code}).Info("item created")
	return item, nil
}

func (s *CatalogService) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	if patch.Code != nil {
		code := strings.TrimSpace(*patch.Code)
		patch.Code = &code
	}
	if err := s.validateStruct(patch); err != nil {
		return domain.Item{}, err
	}

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	patch.Apply(&item)
	if err := validateAmounts(item.MinStock, item.UnitValue); err != nil {
		return domain.Item{}, err
	}
	item.UpdatedAt = s.now().UTC()

	if err := s.items.UpdateItem(ctx, item); err != nil {
		return domain.Item{}, s.storeError("UpdateItem", "update item", id, err)
	}
	return item, nil
}

func (s *CatalogService) DeleteItem(ctx context.Context, id string) error {
	if err := s.items.DeleteItem(ctx, id); err != nil {
		return s.storeError("DeleteItem", "delete item", id, err)
	}
	s.logger.WithFields(logrus.Fields{"func": "DeleteItem", "item_id": id}).Info("item deleted")
	return nil
}

// Summary aggregates item counts and the items below their minimum stock.
func (s *CatalogService) Summary(ctx context.Context) (domain.InventorySummary, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return domain.InventorySummary{}, err
	}

	summary := domain.InventorySummary{TotalItems: len(items), LowStock: []domain.Item{}}
	for _, item := range items {
		switch item.Kind {
		case domain.ItemKindRawMaterial:
			summary.RawMaterials++
		case domain.ItemKindFinishedGood:
			summary.FinishedGoods++
		}
		if item.BelowMinimum() {
			summary.LowStock = append(summary.LowStock, item)
		}
	}
	return summary, nil
}

func (s *CatalogService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(strings.ToLower(fe.Field()), "failed on "+fe.Tag(), domain.ErrInvalidRequest)
	}
	return domain.NewValidationError("", err.Error(), domain.ErrInvalidRequest)
}

// storeError passes domain errors through and wraps everything else.
func (s *CatalogService) storeError(funcName, op, subject string, err error) error {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) {
		return err
	}
	s.logger.WithFields(logrus.Fields{"func": funcName, "subject": subject}).Error(err.Error())
	return domain.NewPersistenceError(op, err)
}

func validateAmounts(minStock, unitValue decimal.Decimal) error {
	if minStock.IsNegative() {
		return domain.NewValidationError("min_stock", "must not be negative", domain.ErrInvalidQuantity)
	}
	if unitValue.IsNegative() {
		return domain.NewValidationError("unit_value", "must not be negative", domain.ErrInvalidQuantity)
	}
	if err := domain.CheckScale("min_stock", minStock); err != nil {
		return err
	}
	return domain.CheckScale("unit_value", unitValue)
}
