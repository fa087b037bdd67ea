package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type RecipeService struct {
	recipes port.RecipeRepository
	items   port.ItemRepository
	logger  logrus.FieldLogger
}

func NewRecipeService(recipes port.RecipeRepository, items port.ItemRepository, logger logrus.FieldLogger) *RecipeService {
	return &RecipeService{
		recipes: recipes,
		items:   items,
		logger:  logger.WithField("module", "recipe"),
	}
}

// NormalizeRecipe drops rows without a raw material or with a non-positive
// quantity and merges repeated raw materials by summing their quantities.
// Component order follows the first appearance of each raw material.
func NormalizeRecipe(finishedGoodID string, rows []domain.RecipeRow) domain.Recipe {
	recipe := domain.Recipe{FinishedGoodID: finishedGoodID}
	index := make(map[string]int, len(rows))

	for _, row := range rows {
		if row.RawMaterialID == nil || strings.TrimSpace(*row.RawMaterialID) == "" {
			continue
		}
		if !row.QuantityPerUnit.IsPositive() {
			continue
		}
		id := *row.RawMaterialID
		if i, ok := index[id]; ok {
			recipe.Components[i].QuantityPerUnit = recipe.Components[i].QuantityPerUnit.Add(row.QuantityPerUnit)
			continue
		}
		index[id] = len(recipe.Components)
		recipe.Components = append(recipe.Components, domain.RecipeComponent{
			RawMaterialID:   id,
			QuantityPerUnit: row.QuantityPerUnit,
		})
	}

	return recipe
}

// ResolveFrom loads and normalizes a recipe through reader. A recipe with no
// usable component is returned empty rather than as an error.
func ResolveFrom(ctx context.Context, reader port.RecipeReader, finishedGoodID string) (domain.Recipe, error) {
	rows, err := reader.RecipeRows(ctx, finishedGoodID)
	if err != nil {
		return domain.Recipe{}, domain.NewPersistenceError("load recipe", err)
	}
	return NormalizeRecipe(finishedGoodID, rows), nil
}

// Resolve returns the usable recipe of a finished good or a NotFoundError.
func (s *RecipeService) Resolve(ctx context.Context, finishedGoodID string) (domain.Recipe, error) {
	recipe, err := ResolveFrom(ctx, s.recipes, finishedGoodID)
	if err != nil {
		return domain.Recipe{}, err
	}
	if !recipe.Usable() {
		return domain.Recipe{}, &domain.NotFoundError{Entity: "recipe", ID: finishedGoodID}
	}
	return recipe, nil
}

func (s *RecipeService) HasUsableRecipe(ctx context.Context, finishedGoodID string) (bool, error) {
	recipe, err := ResolveFrom(ctx, s.recipes, finishedGoodID)
	if err != nil {
		return false, err
	}
	return recipe.Usable(), nil
}

// List returns every usable recipe, grouped by finished good.
func (s *RecipeService) List(ctx context.Context) ([]domain.Recipe, error) {
	rows, err := s.recipes.AllRecipeRows(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("list recipes", err)
	}

	var order []string
	grouped := make(map[string][]domain.RecipeRow)
	for _, row := range rows {
		if _, ok := grouped[row.FinishedGoodID]; !ok {
			order = append(order, row.FinishedGoodID)
		}
		grouped[row.FinishedGoodID] = append(grouped[row.FinishedGoodID], row)
	}

	recipes := make([]domain.Recipe, 0, len(order))
	for _, id := range order {
		recipe := NormalizeRecipe(id, grouped[id])
		if recipe.Usable() {
			recipes = append(recipes, recipe)
		}
	}
	return recipes, nil
}

// Upsert replaces the recipe of a finished good. All components are
// validated before the store is touched; an empty set deletes the recipe.
func (s *RecipeService) Upsert(ctx context.Context, finishedGoodID string, components []domain.RecipeComponent) error {
	if err := s.validateRecipe(ctx, finishedGoodID, components); err != nil {
		return err
	}

	if err := s.recipes.ReplaceRecipe(ctx, finishedGoodID, components); err != nil {
		s.logger.WithFields(logrus.Fields{
			"func":             "Upsert",
			"finished_good_id": finishedGoodID,
		}).Error(err.Error())
		return domain.NewPersistenceError("replace recipe", err)
	}

	s.logger.WithFields(logrus.Fields{
		"func":             "Upsert",
		"finished_good_id": finishedGoodID,
		"components":       len(components),
	}).Info("recipe replaced")
	return nil
}

func (s *RecipeService) Delete(ctx context.Context, finishedGoodID string) error {
	return s.Upsert(ctx, finishedGoodID, nil)
}

func (s *RecipeService) validateRecipe(ctx context.Context, finishedGoodID string, components []domain.RecipeComponent) error {
	finished, err := s.items.GetItem(ctx, finishedGoodID)
	if err != nil {
		return domain.NewPersistenceError("get finished good", err)
	}
	if finished == nil {
		return domain.NewItemNotFound(finishedGoodID)
	}
	if finished.Kind != domain.ItemKindFinishedGood {
		return domain.NewWrongItemKind(*finished, domain.ItemKindFinishedGood)
	}

	seen := make(map[string]bool, len(components))
	for i, c := range components {
		field := fmt.Sprintf("components[%d]", i)
		if strings.TrimSpace(c.RawMaterialID) == "" {
			return domain.NewValidationError(field+".raw_material_id", "is required", domain.ErrInvalidRequest)
		}
		if c.RawMaterialID == finishedGoodID {
			return domain.NewValidationError(field+".raw_material_id", "cannot be the finished good itself", domain.ErrInvalidRequest)
		}
		if seen[c.RawMaterialID] {
			return domain.NewValidationError(field+".raw_material_id", "is listed more than once", domain.ErrInvalidRequest)
		}
		seen[c.RawMaterialID] = true
		if !c.QuantityPerUnit.GreaterThan(decimal.Zero) {
			return domain.NewValidationError(field+".quantity", "must be greater than zero", domain.ErrInvalidQuantity)
		}
		if err := domain.CheckScale(field+".quantity", c.QuantityPerUnit); err != nil {
			return err
		}

		material, err := s.items.GetItem(ctx, c.RawMaterialID)
		if err != nil {
			return domain.NewPersistenceError("get raw material", err)
		}
		if material == nil {
			return domain.NewItemNotFound(c.RawMaterialID)
		}
		if material.Kind != domain.ItemKindRawMaterial {
			return domain.NewWrongItemKind(*material, domain.ItemKindRawMaterial)
		}
	}
	return nil
}
