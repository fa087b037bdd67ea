package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type RecipeReader interface {
	// RecipeRows returns the stored component rows of one finished good, unfiltered
	RecipeRows(ctx context.Context, finishedGoodID string) ([]domain.RecipeRow, error)
}

type RecipeRepository interface {
	RecipeReader

	// AllRecipeRows returns the component rows of every recipe
	AllRecipeRows(ctx context.Context) ([]domain.RecipeRow, error)

	// ReplaceRecipe swaps the component set of a finished good atomically.
	// An empty set deletes the recipe.
	ReplaceRecipe(ctx context.Context, finishedGoodID string, components []domain.RecipeComponent) error
}
