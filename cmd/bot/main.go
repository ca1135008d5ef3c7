package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"flanner/internal/app"
	"flanner/internal/bot"
	"flanner/internal/config"
	"flanner/internal/domain"
	"flanner/internal/integrations/telegram"
	"flanner/internal/state"
)

// shutdownGrace bounds how long queued messages may keep running after a
// stop signal before their contexts are cancelled.
const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("bot stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Clients ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("close clients", "err", err)
		}
	}()

	token, err := a.TelegramToken(ctx)
	if err != nil {
		return err
	}
	tg, err := telegram.NewFromToken(token, logger)
	if err != nil {
		return err
	}
	if err := tg.RegisterCommands(ctx, app.TelegramCommands()); err != nil {
		logger.Warn("register bot commands", "err", err)
	}

	states := state.NewMemoryStore(state.WithIdleTTL(cfg.StateIdleTTL))
	defer func() { _ = states.Close() }()

	dispatcher, err := a.Dispatcher(states, tg)
	if err != nil {
		return err
	}

	// ---- Run ----
	// Work contexts outlive the stop signal so queued messages can finish.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	serializer := bot.NewSerializer(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("polling for updates")
		return tg.Poll(gctx, func(in domain.Inbound) {
			err := serializer.Submit(in.ChatID, func() {
				if err := dispatcher.Handle(workCtx, in); err != nil {
					logger.Error("handle message", "chat_id", in.ChatID, "err", err)
				}
			})
			if err != nil {
				logger.Warn("message dropped", "chat_id", in.ChatID, "err", err)
			}
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining conversations", "pending_chats", serializer.Pending())
		drained := make(chan struct{})
		go func() {
			serializer.Close()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(shutdownGrace):
			logger.Warn("drain timed out, cancelling in-flight work")
			cancelWork()
			<-drained
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bot stopped cleanly")
	return nil
}
