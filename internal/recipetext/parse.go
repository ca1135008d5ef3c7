// Package recipetext parses free-text recipe and ingredient submissions.
//
// A recipe submission holds one or more recipes separated by '#'. The first
// non-blank line of each recipe is its name and every following line is an
// ingredient. An ingredient line is a name optionally followed by ',' or '-'
// and an amount such as "2", "400 g" or "3 tbsp".
package recipetext

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"flanner/internal/domain"
)

const recipeDelimiter = "#"

var (
	ErrEmptySubmission = errors.New("submission is empty")
	ErrEmptyName       = errors.New("name is empty")
	ErrInvalidValue    = errors.New("amount value is not a non-negative integer")
	ErrInvalidAmount   = errors.New("amount has unexpected text")
)

// ParseError identifies the part of a submission that could not be parsed.
// Segment and Line are 1-based; zero means not applicable.
type ParseError struct {
	Segment int
	Line    int
	Text    string
	Err     error
}

func (e *ParseError) Error() string {
	var loc []string
	if e.Segment > 0 {
		loc = append(loc, fmt.Sprintf("recipe %d", e.Segment))
	}
	if e.Line > 0 {
		loc = append(loc, fmt.Sprintf("line %d", e.Line))
	}
	msg := e.Err.Error()
	if e.Text != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Text)
	}
	if len(loc) == 0 {
		return "recipetext: " + msg
	}
	return fmt.Sprintf("recipetext: %s: %s", strings.Join(loc, ", "), msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRecipes parses a whole recipe submission. Either every recipe parses
// or an error is returned and no recipes are.
func ParseRecipes(text string) ([]domain.Recipe, error) {
	var recipes []domain.Recipe
	segment := 0
	for _, raw := range strings.Split(text, recipeDelimiter) {
		lines := nonBlankLines(raw)
		if len(lines) == 0 {
			continue
		}
		segment++
		recipe, err := parseRecipe(lines)
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				perr.Segment = segment
				return nil, perr
			}
			return nil, &ParseError{Segment: segment, Err: err}
		}
		recipes = append(recipes, recipe)
	}
	if len(recipes) == 0 {
		return nil, &ParseError{Err: ErrEmptySubmission}
	}
	return recipes, nil
}

func parseRecipe(lines []string) (domain.Recipe, error) {
	name := strings.TrimSpace(stripBullet(lines[0]))
	if name == "" {
		return domain.Recipe{}, &ParseError{Line: 1, Text: lines[0], Err: ErrEmptyName}
	}
	ingredients := make([]domain.Ingredient, 0, len(lines)-1)
	for i, line := range lines[1:] {
		ing, err := ParseIngredient(line)
		if err != nil {
			return domain.Recipe{}, &ParseError{Line: i + 2, Text: line, Err: errors.Unwrap(err)}
		}
		ingredients = append(ingredients, ing)
	}
	return domain.Recipe{Name: name, Ingredients: ingredients}, nil
}

// ParseIngredients parses an ingredient submission, one ingredient per line.
func ParseIngredients(text string) ([]domain.Ingredient, error) {
	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return nil, &ParseError{Err: ErrEmptySubmission}
	}
	out := make([]domain.Ingredient, 0, len(lines))
	for i, line := range lines {
		ing, err := ParseIngredient(line)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: errors.Unwrap(err)}
		}
		out = append(out, ing)
	}
	return out, nil
}

// ParseIngredient parses a single ingredient line such as "Tomatoes - 400 g".
// The line is split at the last ',' or '-' only when an amount follows it,
// so names such as "Extra-virgin olive oil" stay whole.
func ParseIngredient(line string) (domain.Ingredient, error) {
	body := stripBullet(strings.TrimSpace(line))
	name, amountText := body, ""
	if idx := strings.LastIndexAny(body, ",-"); idx >= 0 {
		rest := strings.TrimSpace(body[idx+1:])
		if rest == "" || startsWithDigit(rest) {
			name, amountText = body[:idx], rest
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Ingredient{}, &ParseError{Text: line, Err: ErrEmptyName}
	}
	ing := domain.Ingredient{Name: name}
	if strings.TrimSpace(amountText) == "" {
		return ing, nil
	}
	amount, err := ParseAmount(amountText)
	if err != nil {
		return domain.Ingredient{}, &ParseError{Text: line, Err: errors.Unwrap(err)}
	}
	ing.Amount = &amount
	return ing, nil
}

// ParseAmount parses "<value> [unit]". The unit may also be glued to the
// value ("400g"). A missing or unknown unit yields domain.UnitCount.
func ParseAmount(text string) (domain.Amount, error) {
	fields := strings.Fields(text)
	switch len(fields) {
	case 0:
		return domain.Amount{}, &ParseError{Text: text, Err: ErrInvalidValue}
	case 1:
		digits, unit := splitGlued(fields[0])
		fields = []string{digits}
		if unit != "" {
			fields = append(fields, unit)
		}
	case 2:
	default:
		return domain.Amount{}, &ParseError{Text: text, Err: ErrInvalidAmount}
	}

	value, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return domain.Amount{}, &ParseError{Text: text, Err: ErrInvalidValue}
	}
	token := ""
	if len(fields) == 2 {
		token = strings.ToLower(fields[1])
	}
	return domain.Amount{Unit: domain.UnitFromToken(token), Value: value}, nil
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// splitGlued splits "400g" into "400" and "g". Tokens that do not start
// with a digit are returned unchanged so the value check rejects them.
func splitGlued(token string) (string, string) {
	i := 0
	for i < len(token) && token[i] >= '0' && token[i] <= '9' {
		i++
	}
	if i == 0 || i == len(token) {
		return token, ""
	}
	return token[:i], token[i:]
}

func stripBullet(line string) string {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	for _, bullet := range []string{"-", "*", "•"} {
		if strings.HasPrefix(trimmed, bullet) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, bullet))
		}
	}
	return line
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
