package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"flanner/internal/domain"
)

const (
	DefaultModel             = "gpt-3.5-turbo"
	defaultSuggestionTimeout = 30 * time.Second
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// malformedResponder is implemented by LLM errors for a 2xx response whose
// body did not have the expected shape.
type malformedResponder interface {
	MalformedResponse() bool
}

// SuggestService asks the language model for a ration built from every
// stored recipe and ingredient.
type SuggestService struct {
	store   RecipeReader
	llm     LLMClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewSuggestService(store RecipeReader, llm LLMClient, model string, timeout time.Duration, logger *slog.Logger) (*SuggestService, error) {
	if store == nil {
		return nil, errors.New("usecase: recipe reader must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = defaultSuggestionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestService{
		store:   store,
		llm:     llm,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Suggest asks the model for a ration built from the stored catalog. An empty
// recipe catalog fails with INVALID_INPUT/no_recipes before the model is called.
func (s *SuggestService) Suggest(ctx context.Context) (domain.Suggestion, error) {
	var (
		recipes     []domain.Recipe
		ingredients []domain.Ingredient
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recipes, err = s.store.FindRecipes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		ingredients, err = s.store.FindIngredients(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Suggestion{}, newError(ErrorStorageUnavailable, "catalog_read_error", err)
	}
	if len(recipes) == 0 {
		return domain.Suggestion{}, newError(ErrorInvalidInput, "no_recipes", nil)
	}

	question := buildRationQuestion(recipes, ingredients)
	s.logger.DebugContext(ctx, "requesting ration", "recipes", len(recipes), "ingredients", len(ingredients), "question", question)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.llm.Chat(callCtx, s.model, buildPromptMessages(question))
	if err != nil {
		return domain.Suggestion{Question: question}, classifyLLMError(callCtx, err)
	}
	if strings.TrimSpace(answer) == "" {
		return domain.Suggestion{Question: question}, newError(ErrorUpstreamProtocol, "openai_empty_answer", nil)
	}
	return domain.Suggestion{Question: question, Answer: answer}, nil
}

func classifyLLMError(ctx context.Context, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok {
		switch status {
		case http.StatusTooManyRequests:
			return newError(ErrorRateLimited, "openai_rate_limited", err)
		case http.StatusUnauthorized:
			return newError(ErrorUpstreamAuth, "openai_unauthorized", err)
		default:
			return newError(ErrorUpstream, "openai_error", err)
		}
	}
	var malformed malformedResponder
	if errors.As(err, &malformed) && malformed.MalformedResponse() {
		return newError(ErrorUpstreamProtocol, "openai_malformed_response", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(ErrorUpstream, "openai_timeout", err)
	}
	return newError(ErrorUpstream, "openai_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
