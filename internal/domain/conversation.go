package domain

import "time"

// State is the position of a conversation in the dialogue.
type State string

const (
	StateStart                      State = "start"
	StateAwaitingRecipeText         State = "awaiting_recipe_text"
	StateAwaitingIngredientText     State = "awaiting_ingredient_text"
	StateAwaitingSuggestionFeedback State = "awaiting_suggestion_feedback"
)

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateStart, StateAwaitingRecipeText, StateAwaitingIngredientText, StateAwaitingSuggestionFeedback:
		return true
	}
	return false
}

// Conversation is the tracked dialogue state for one chat.
type Conversation struct {
	ChatID       int64
	State        State
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// NewConversation returns a conversation in the initial state.
func NewConversation(chatID int64, now time.Time) Conversation {
	return Conversation{
		ChatID:       chatID,
		State:        StateStart,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}
