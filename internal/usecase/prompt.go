package usecase

import (
	"fmt"
	"strings"

	"flanner/internal/domain"
)

// buildRationQuestion joins every name followed by a single space, so the
// question keeps a space before "from" and before "?".
func buildRationQuestion(recipes []domain.Recipe, ingredients []domain.Ingredient) string {
	var recipeNames, ingredientNames strings.Builder
	for _, r := range recipes {
		recipeNames.WriteString(r.Name)
		recipeNames.WriteString(" ")
	}
	for _, i := range ingredients {
		ingredientNames.WriteString(i.Name)
		ingredientNames.WriteString(" ")
	}
	return fmt.Sprintf("What is the best ration for %s from %s?", recipeNames.String(), ingredientNames.String())
}

func buildPromptMessages(question string) []domain.ChatMessage {
	return []domain.ChatMessage{{Role: "user", Content: question}}
}
