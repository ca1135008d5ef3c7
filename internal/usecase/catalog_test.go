package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"flanner/internal/domain"
	"flanner/internal/recipetext"
)

func mustNewCatalog(t *testing.T, store *fakeCatalog) *CatalogService {
	t.Helper()
	svc, err := NewCatalogService(store, nil)
	require.NoError(t, err)
	return svc
}

func TestNewCatalogService_NilStore(t *testing.T) {
	_, err := NewCatalogService(nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestSubmitRecipes_StoresParsedRecipes(t *testing.T) {
	store := &fakeCatalog{}
	svc := mustNewCatalog(t, store)

	got, err := svc.SubmitRecipes(context.Background(), "Eggs in Purgatory\nEggs - 4\nTomatoes - 400 g\nSalt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, got, store.recipes)
	require.Equal(t, "Eggs in Purgatory", store.recipes[0].Name)
	require.Len(t, store.recipes[0].Ingredients, 3)
	require.Equal(t, &domain.Amount{Unit: domain.UnitMassGrams, Value: 400}, store.recipes[0].Ingredients[1].Amount)
}

func TestSubmitRecipes_SameTextTwiceStoresTwoCopies(t *testing.T) {
	store := &fakeCatalog{}
	svc := mustNewCatalog(t, store)
	text := "Toast\nBread - 2"

	_, err := svc.SubmitRecipes(context.Background(), text)
	require.NoError(t, err)
	_, err = svc.SubmitRecipes(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, store.recipes, 2)
	require.Equal(t, store.recipes[0], store.recipes[1])
}

func TestSubmitRecipes_ParseErrorWritesNothing(t *testing.T) {
	store := &fakeCatalog{}
	svc := mustNewCatalog(t, store)

	_, err := svc.SubmitRecipes(context.Background(), "Soup\nCarrot - 2#Salad\nLettuce - 1.5")
	require.Error(t, err)
	require.Equal(t, ErrorParse, CodeOf(err))
	require.True(t, errors.Is(err, recipetext.ErrInvalidValue))
	require.Zero(t, store.recipeInserts)
}

func TestSubmitRecipes_TooLarge(t *testing.T) {
	store := &fakeCatalog{}
	svc := mustNewCatalog(t, store)
	var b strings.Builder
	for i := 0; i <= maxRecordsPerSubmission; i++ {
		b.WriteString("Dish\n#")
	}

	_, err := svc.SubmitRecipes(context.Background(), b.String())
	require.Error(t, err)
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
	require.Zero(t, store.recipeInserts)
}

func TestSubmitRecipes_StorageError(t *testing.T) {
	store := &fakeCatalog{insertErr: errors.New("connection refused")}
	svc := mustNewCatalog(t, store)

	_, err := svc.SubmitRecipes(context.Background(), "Toast\nBread - 2")
	require.Error(t, err)
	require.Equal(t, ErrorStorageUnavailable, CodeOf(err))
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, "recipes_insert_error", uerr.Reason)
}

func TestSubmitIngredients_StoresParsedIngredients(t *testing.T) {
	store := &fakeCatalog{}
	svc := mustNewCatalog(t, store)

	got, err := svc.SubmitIngredients(context.Background(), "Eggs - 6\nMilk - 500 ml\n\nOlive oil, 2 tbsp")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, got, store.ingredients)
	require.Equal(t, &domain.Amount{Unit: domain.UnitTablespoon, Value: 2}, store.ingredients[2].Amount)
}

func TestSubmitIngredients_Empty(t *testing.T) {
	store := &fakeCatalog{}
	svc := mustNewCatalog(t, store)

	_, err := svc.SubmitIngredients(context.Background(), "  \n ")
	require.Error(t, err)
	require.Equal(t, ErrorParse, CodeOf(err))
	require.Zero(t, store.ingrInserts)
}

func TestSubmitIngredients_StorageError(t *testing.T) {
	store := &fakeCatalog{insertErr: errors.New("timeout")}
	svc := mustNewCatalog(t, store)

	_, err := svc.SubmitIngredients(context.Background(), "Eggs - 6")
	require.Error(t, err)
	require.Equal(t, ErrorStorageUnavailable, CodeOf(err))
}
