package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"flanner/handler"
	"flanner/internal/app"
	"flanner/internal/config"
	"flanner/internal/integrations/telegram"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create clients", "err", err)
		os.Exit(1)
	}

	token, err := a.TelegramToken(ctx)
	if err != nil {
		logger.Error("failed to resolve telegram token", "err", err)
		os.Exit(1)
	}
	tg, err := telegram.NewFromToken(token, logger)
	if err != nil {
		logger.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}

	// Lambda instances do not share memory, so state lives in DynamoDB.
	states, err := a.ChatStates(ctx)
	if err != nil {
		logger.Error("failed to create state store", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	dispatcher, err := a.Dispatcher(states, tg)
	if err != nil {
		logger.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}

	// The lease outlives the slowest dispatch so a live holder is never taken over.
	lease := cfg.SuggestionTimeout + time.Minute
	h, err := handler.NewHandler(dispatcher, cfg.WebhookSecret, logger,
		handler.WithChatLock(states, lease, 10*time.Second))
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
