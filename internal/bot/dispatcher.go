package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flanner/internal/domain"
	"flanner/internal/usecase"
)

// StateStore tracks the dialogue state of each chat.
type StateStore interface {
	Get(ctx context.Context, chatID int64) (domain.Conversation, error)
	Set(ctx context.Context, chatID int64, state domain.State) error
}

// Sender delivers a text reply to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Catalog interface {
	SubmitRecipes(ctx context.Context, text string) ([]domain.Recipe, error)
	SubmitIngredients(ctx context.Context, text string) ([]domain.Ingredient, error)
}

type Suggester interface {
	Suggest(ctx context.Context) (domain.Suggestion, error)
}

// outcome is what a handler decided: the reply text and the state to commit.
type outcome struct {
	reply string
	next  domain.State
}

type commandHandler func(ctx context.Context, conv domain.Conversation, in domain.Inbound) outcome

// Dispatcher routes one inbound message at a time. Callers must not run two
// messages of the same chat concurrently; Serializer provides that ordering.
type Dispatcher struct {
	states    StateStore
	sender    Sender
	catalog   Catalog
	suggester Suggester
	logger    *slog.Logger
	handlers  map[Command]commandHandler
	now       func() time.Time
}

func NewDispatcher(states StateStore, sender Sender, catalog Catalog, suggester Suggester, logger *slog.Logger) (*Dispatcher, error) {
	if states == nil {
		return nil, errors.New("bot: state store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("bot: sender must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("bot: catalog must not be nil")
	}
	if suggester == nil {
		return nil, errors.New("bot: suggester must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		states:    states,
		sender:    sender,
		catalog:   catalog,
		suggester: suggester,
		logger:    logger,
		now:       time.Now,
	}
	d.handlers = map[Command]commandHandler{
		CommandHelp:                d.help,
		CommandUpdateRecipes:       d.updateRecipes,
		CommandUpdateIngredients:   d.updateIngredients,
		CommandMakeSuggestion:      d.makeSuggestion,
		CommandSaveSelectedRecipes: d.saveSelectedRecipes,
	}
	for _, c := range Commands() {
		if d.handlers[c] == nil {
			return nil, fmt.Errorf("bot: no handler for command %s", c)
		}
	}
	return d, nil
}

// Handle processes one inbound message: it reads the chat state, runs the
// matching handler, commits the next state and sends the reply. Handler
// failures become replies; only a failed send is returned.
func (d *Dispatcher) Handle(ctx context.Context, in domain.Inbound) error {
	logger := d.logger.With("chat_id", in.ChatID)

	conv, err := d.states.Get(ctx, in.ChatID)
	if err != nil {
		logger.ErrorContext(ctx, "load conversation state", "err", err)
		conv = domain.NewConversation(in.ChatID, d.now())
	}

	out := d.route(ctx, conv, in)
	if !out.next.Valid() {
		out.next = domain.StateStart
	}

	if err := d.states.Set(ctx, in.ChatID, out.next); err != nil {
		logger.ErrorContext(ctx, "store conversation state", "state", out.next, "err", err)
	}
	if out.next != conv.State {
		logger.InfoContext(ctx, "state changed", "from", conv.State, "to", out.next)
	}

	if err := d.sender.Send(ctx, in.ChatID, out.reply); err != nil {
		return fmt.Errorf("bot: send reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, conv domain.Conversation, in domain.Inbound) outcome {
	if in.Command != "" {
		if cmd, ok := ParseCommand(in.Command); ok {
			d.logger.DebugContext(ctx, "command", "chat_id", in.ChatID, "command", cmd.String())
			return d.handlers[cmd](ctx, conv, in)
		}
	}
	switch conv.State {
	case domain.StateAwaitingRecipeText:
		return d.receiveRecipes(ctx, in)
	case domain.StateAwaitingIngredientText:
		return d.receiveIngredients(ctx, in)
	case domain.StateAwaitingSuggestionFeedback:
		return d.receiveFeedback(ctx, in)
	default:
		return outcome{reply: replyNotUnderstood, next: domain.StateStart}
	}
}

func (d *Dispatcher) help(_ context.Context, conv domain.Conversation, _ domain.Inbound) outcome {
	return outcome{reply: HelpText(), next: conv.State}
}

func (d *Dispatcher) updateRecipes(_ context.Context, _ domain.Conversation, _ domain.Inbound) outcome {
	return outcome{reply: replySendRecipes, next: domain.StateAwaitingRecipeText}
}

func (d *Dispatcher) updateIngredients(_ context.Context, _ domain.Conversation, _ domain.Inbound) outcome {
	return outcome{reply: replySendIngredients, next: domain.StateAwaitingIngredientText}
}

func (d *Dispatcher) makeSuggestion(ctx context.Context, _ domain.Conversation, in domain.Inbound) outcome {
	s, err := d.suggester.Suggest(ctx)
	if err != nil {
		return d.failure(ctx, in, "make suggestion", err)
	}
	return outcome{reply: s.Answer, next: domain.StateAwaitingSuggestionFeedback}
}

func (d *Dispatcher) saveSelectedRecipes(_ context.Context, conv domain.Conversation, _ domain.Inbound) outcome {
	return outcome{reply: replyNotYetAvailable, next: conv.State}
}

func (d *Dispatcher) receiveRecipes(ctx context.Context, in domain.Inbound) outcome {
	recipes, err := d.catalog.SubmitRecipes(ctx, in.Text)
	if err != nil {
		return d.failure(ctx, in, "submit recipes", err)
	}
	return outcome{reply: recipesSavedReply(len(recipes)), next: domain.StateStart}
}

func (d *Dispatcher) receiveIngredients(ctx context.Context, in domain.Inbound) outcome {
	ingredients, err := d.catalog.SubmitIngredients(ctx, in.Text)
	if err != nil {
		return d.failure(ctx, in, "submit ingredients", err)
	}
	return outcome{reply: ingredientsSavedReply(len(ingredients)), next: domain.StateStart}
}

func (d *Dispatcher) receiveFeedback(ctx context.Context, in domain.Inbound) outcome {
	d.logger.InfoContext(ctx, "suggestion feedback", "chat_id", in.ChatID, "feedback", in.Text)
	return outcome{reply: replyFeedbackThanks, next: domain.StateStart}
}

// failure logs err and resets the conversation to Start.
func (d *Dispatcher) failure(ctx context.Context, in domain.Inbound, op string, err error) outcome {
	code := usecase.CodeOf(err)
	attrs := []any{"chat_id", in.ChatID, "op", op, "code", code, "err", err}
	var uerr *usecase.Error
	switch {
	case errors.As(err, &uerr) && uerr.Fatal():
		d.logger.ErrorContext(ctx, "upstream rejected credentials", attrs...)
	case code == usecase.ErrorParse || code == usecase.ErrorInvalidInput:
		d.logger.InfoContext(ctx, "request rejected", attrs...)
	default:
		d.logger.WarnContext(ctx, "request failed", attrs...)
	}
	return outcome{reply: errorReply(err), next: domain.StateStart}
}
