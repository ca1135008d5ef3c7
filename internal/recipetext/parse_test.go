package recipetext

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"flanner/internal/domain"
)

func amount(unit domain.Unit, v uint64) *domain.Amount {
	return &domain.Amount{Unit: unit, Value: v}
}

func TestParseRecipes_SingleRecipe(t *testing.T) {
	recipes, err := ParseRecipes("Eggs in Purgatory\nEggs - 2\nTomatoes - 400 g")
	require.NoError(t, err)
	require.Equal(t, []domain.Recipe{{
		Name: "Eggs in Purgatory",
		Ingredients: []domain.Ingredient{
			{Name: "Eggs", Amount: amount(domain.UnitCount, 2)},
			{Name: "Tomatoes", Amount: amount(domain.UnitMassGrams, 400)},
		},
	}}, recipes)
}

func TestParseRecipes_SegmentCountMatchesRecipeCount(t *testing.T) {
	cases := []struct {
		text  string
		names []string
	}{
		{"Soup", []string{"Soup"}},
		{"Soup\nCarrot - 2#Salad\nLettuce", []string{"Soup", "Salad"}},
		{"# Soup\n- carrot\n# Salad\n- lettuce, 1\n# Pancakes\nMilk - 250 ml", []string{"Soup", "Salad", "Pancakes"}},
		{"#\n\n# Soup\n#   \n", []string{"Soup"}},
	}
	for _, tc := range cases {
		recipes, err := ParseRecipes(tc.text)
		require.NoError(t, err, "text=%q", tc.text)
		require.Len(t, recipes, len(tc.names))
		for i, name := range tc.names {
			require.Equal(t, name, recipes[i].Name)
		}
	}
}

func TestParseRecipes_BulletedIngredientsWithoutAmounts(t *testing.T) {
	recipes, err := ParseRecipes("# Eggs in purgatory\n    - eggs\n    - olive oil\n    - chili flakes\n")
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	require.Equal(t, []domain.Ingredient{{Name: "eggs"}, {Name: "olive oil"}, {Name: "chili flakes"}}, recipes[0].Ingredients)
}

func TestParseRecipes_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "#", "#\n#\n"} {
		_, err := ParseRecipes(text)
		require.ErrorIs(t, err, ErrEmptySubmission, "text=%q", text)
	}
}

func TestParseRecipes_ErrorNamesSegmentAndLine(t *testing.T) {
	_, err := ParseRecipes("Soup\nCarrot - 2#Salad\nLettuce - 2.5 g")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 2, perr.Segment)
	require.Equal(t, 2, perr.Line)
	require.Equal(t, "Lettuce - 2.5 g", perr.Text)
	require.ErrorIs(t, err, ErrInvalidValue)
	require.Contains(t, err.Error(), "recipe 2, line 2")
}

func TestParseRecipes_RejectsWholeSubmission(t *testing.T) {
	recipes, err := ParseRecipes("Soup\nCarrot - 2#Salad\n, 3")
	require.Error(t, err)
	require.Nil(t, recipes)
	require.ErrorIs(t, err, ErrEmptyName)
}

func TestParseIngredient_UnitMapping(t *testing.T) {
	cases := []struct {
		line string
		want domain.Unit
	}{
		{"Milk - 250 ml", domain.UnitVolumeML},
		{"Flour - 500 g", domain.UnitMassGrams},
		{"Sugar - 2 tbsp", domain.UnitTablespoon},
		{"Eggs - 3", domain.UnitCount},
		{"Eggs - 3 pcs", domain.UnitCount},
		{"Butter - 3 cups", domain.UnitCount},
		{"Milk, 250 ML", domain.UnitVolumeML},
		{"Flour - 500g", domain.UnitMassGrams},
	}
	for _, tc := range cases {
		ing, err := ParseIngredient(tc.line)
		require.NoError(t, err, "line=%q", tc.line)
		require.NotNil(t, ing.Amount, "line=%q", tc.line)
		require.Equal(t, tc.want, ing.Amount.Unit, "line=%q", tc.line)
	}
}

func TestParseIngredient_HyphenatedName(t *testing.T) {
	ing, err := ParseIngredient("stir-fry sauce - 2 tbsp")
	require.NoError(t, err)
	require.Equal(t, "stir-fry sauce", ing.Name)
	require.Equal(t, amount(domain.UnitTablespoon, 2), ing.Amount)

	for _, line := range []string{"Extra-virgin olive oil", "Sun-dried tomatoes", "- Sun-dried tomatoes", "Salt, to taste"} {
		ing, err := ParseIngredient(line)
		require.NoError(t, err, "line=%q", line)
		require.Equal(t, strings.TrimPrefix(line, "- "), ing.Name)
		require.Nil(t, ing.Amount)
	}

	ing, err = ParseIngredient("Extra-virgin olive oil - 3 tbsp")
	require.NoError(t, err)
	require.Equal(t, "Extra-virgin olive oil", ing.Name)
	require.Equal(t, amount(domain.UnitTablespoon, 3), ing.Amount)

	recipes, err := ParseRecipes("Salad\nLettuce - 1\nExtra-virgin olive oil")
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	require.Equal(t, domain.Ingredient{Name: "Extra-virgin olive oil"}, recipes[0].Ingredients[1])
}

func TestParseIngredient_NoAmount(t *testing.T) {
	for _, line := range []string{"Salt", "Salt -", "Salt, ", "* Salt"} {
		ing, err := ParseIngredient(line)
		require.NoError(t, err, "line=%q", line)
		require.Equal(t, "Salt", ing.Name)
		require.Nil(t, ing.Amount)
	}
}

func TestParseIngredient_Errors(t *testing.T) {
	cases := []struct {
		line string
		want error
	}{
		{", 2 g", ErrEmptyName},
		{"Flour - 2kg extra", ErrInvalidValue},
		{"Flour - 3 g extra", ErrInvalidAmount},
		{"Flour - 2 big g", ErrInvalidAmount},
		{"Flour - 2.5 g", ErrInvalidValue},
	}
	for _, tc := range cases {
		_, err := ParseIngredient(tc.line)
		require.True(t, errors.Is(err, tc.want), "line=%q err=%v", tc.line, err)
	}
}

func TestParseIngredients(t *testing.T) {
	ings, err := ParseIngredients("Carrot - 3\n\nLettuce\nRice - 1000 g\n")
	require.NoError(t, err)
	require.Equal(t, []domain.Ingredient{
		{Name: "Carrot", Amount: amount(domain.UnitCount, 3)},
		{Name: "Lettuce"},
		{Name: "Rice", Amount: amount(domain.UnitMassGrams, 1000)},
	}, ings)

	_, err = ParseIngredients("Carrot - 3\nRice - 1 x g")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 2, perr.Line)
	require.Zero(t, perr.Segment)

	_, err = ParseIngredients(strings.Repeat("\n", 3))
	require.ErrorIs(t, err, ErrEmptySubmission)
}
