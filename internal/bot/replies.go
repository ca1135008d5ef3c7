package bot

import (
	"errors"
	"fmt"
	"strings"

	"flanner/internal/recipetext"
	"flanner/internal/usecase"
)

const (
	replySendRecipes = "Send me recipes!\n\n" +
		"Separate recipes with #. The first line is the recipe name, every next line is an ingredient:\n" +
		"Eggs in Purgatory\nEggs - 4\nTomatoes - 400 g\n#\nToast\nBread - 2"
	replySendIngredients = "Send me ingredients!\n\n" +
		"One ingredient per line, optionally with an amount:\n" +
		"Eggs - 6\nMilk - 500 ml\nOlive oil - 2 tbsp"
	replyNotYetAvailable = "Saving selected recipes is not yet available."
	replyNotUnderstood   = "Sorry, I did not understand that. Send /help to see what I can do."
	replyFeedbackThanks  = "Thanks for the feedback!"
)

func recipesSavedReply(n int) string {
	if n == 1 {
		return "Thanks! Saved 1 recipe."
	}
	return fmt.Sprintf("Thanks! Saved %d recipes.", n)
}

func ingredientsSavedReply(n int) string {
	if n == 1 {
		return "Thanks! Saved 1 ingredient."
	}
	return fmt.Sprintf("Thanks! Saved %d ingredients.", n)
}

// errorReply turns a handler error into a short message for the user.
func errorReply(err error) string {
	switch usecase.CodeOf(err) {
	case usecase.ErrorParse:
		var perr *recipetext.ParseError
		if errors.As(err, &perr) {
			return "I could not read that: " + strings.TrimPrefix(perr.Error(), "recipetext: ") + ". Nothing was saved."
		}
		return "I could not read that. Nothing was saved."
	case usecase.ErrorInvalidInput:
		var uerr *usecase.Error
		if errors.As(err, &uerr) {
			switch uerr.Reason {
			case "no_recipes":
				return "There are no recipes yet. Send /update_recipes first."
			case "submission_too_large":
				return "That is too much at once. Please split it into smaller messages."
			}
		}
		return "That request is not valid."
	case usecase.ErrorStorageUnavailable:
		return "Storage is unavailable right now. Please try again later."
	case usecase.ErrorRateLimited:
		return "The suggestion service is busy. Please try again in a minute."
	case usecase.ErrorUpstreamAuth:
		return "The suggestion service is not configured correctly."
	case usecase.ErrorUpstreamProtocol, usecase.ErrorUpstream:
		return "The suggestion service failed. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}
