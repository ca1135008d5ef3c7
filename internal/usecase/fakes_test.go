package usecase

import (
	"context"
	"sync"

	"flanner/internal/domain"
)

type fakeCatalog struct {
	mu             sync.Mutex
	recipes        []domain.Recipe
	ingredients    []domain.Ingredient
	insertErr      error
	findRecipesErr error
	findIngrErr    error
	recipeInserts  int
	ingrInserts    int
}

func (f *fakeCatalog) InsertRecipes(_ context.Context, recipes []domain.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipeInserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.recipes = append(f.recipes, recipes...)
	return nil
}

func (f *fakeCatalog) InsertIngredients(_ context.Context, ingredients []domain.Ingredient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingrInserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.ingredients = append(f.ingredients, ingredients...)
	return nil
}

func (f *fakeCatalog) FindRecipes(_ context.Context) ([]domain.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findRecipesErr != nil {
		return nil, f.findRecipesErr
	}
	return append([]domain.Recipe(nil), f.recipes...), nil
}

func (f *fakeCatalog) FindIngredients(_ context.Context) ([]domain.Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findIngrErr != nil {
		return nil, f.findIngrErr
	}
	return append([]domain.Ingredient(nil), f.ingredients...), nil
}

type mockLLM struct {
	answer       string
	err          error
	block        bool
	callCount    int
	lastModel    string
	lastMessages []domain.ChatMessage
}

func (m *mockLLM) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	m.callCount++
	m.lastModel = model
	m.lastMessages = messages
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.answer, m.err
}
