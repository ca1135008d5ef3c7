package usecase

import (
	"context"
	"errors"
	"log/slog"

	"flanner/internal/domain"
	"flanner/internal/recipetext"
)

// maxRecordsPerSubmission keeps one submission inside a single DynamoDB transaction.
const maxRecordsPerSubmission = 100

type RecipeWriter interface {
	InsertRecipes(ctx context.Context, recipes []domain.Recipe) error
	InsertIngredients(ctx context.Context, ingredients []domain.Ingredient) error
}

type RecipeReader interface {
	FindRecipes(ctx context.Context) ([]domain.Recipe, error)
	FindIngredients(ctx context.Context) ([]domain.Ingredient, error)
}

// CatalogStore is the storage collaborator holding the recipes and
// ingredients collections.
type CatalogStore interface {
	RecipeWriter
	RecipeReader
}

// CatalogService turns free-text submissions into stored records.
// Submissions are append-only; storing the same text twice stores two copies.
type CatalogService struct {
	store  RecipeWriter
	logger *slog.Logger
}

func NewCatalogService(store RecipeWriter, logger *slog.Logger) (*CatalogService, error) {
	if store == nil {
		return nil, errors.New("usecase: catalog store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{store: store, logger: logger}, nil
}

func (s *CatalogService) SubmitRecipes(ctx context.Context, text string) ([]domain.Recipe, error) {
	recipes, err := recipetext.ParseRecipes(text)
	if err != nil {
		return nil, newError(ErrorParse, "recipe_parse_error", err)
	}
	if len(recipes) > maxRecordsPerSubmission {
		return nil, newError(ErrorInvalidInput, "submission_too_large", nil)
	}
	if err := s.store.InsertRecipes(ctx, recipes); err != nil {
		return nil, newError(ErrorStorageUnavailable, "recipes_insert_error", err)
	}
	s.logger.InfoContext(ctx, "recipes stored", "count", len(recipes))
	return recipes, nil
}

func (s *CatalogService) SubmitIngredients(ctx context.Context, text string) ([]domain.Ingredient, error) {
	ingredients, err := recipetext.ParseIngredients(text)
	if err != nil {
		return nil, newError(ErrorParse, "ingredient_parse_error", err)
	}
	if len(ingredients) > maxRecordsPerSubmission {
		return nil, newError(ErrorInvalidInput, "submission_too_large", nil)
	}
	if err := s.store.InsertIngredients(ctx, ingredients); err != nil {
		return nil, newError(ErrorStorageUnavailable, "ingredients_insert_error", err)
	}
	s.logger.InfoContext(ctx, "ingredients stored", "count", len(ingredients))
	return ingredients, nil
}
