// Package handler serves the Telegram webhook behind API Gateway.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"flanner/internal/domain"
	"flanner/internal/integrations/telegram"
	"flanner/internal/repository"
	"flanner/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	// headerSecretToken carries the secret_token given to setWebhook.
	headerSecretToken = "X-Telegram-Bot-Api-Secret-Token"
)

type Dispatcher interface {
	Handle(ctx context.Context, in domain.Inbound) error
}

// ChatLocker serializes updates of one chat across concurrent invocations.
type ChatLocker interface {
	Lock(ctx context.Context, chatID int64, owner string, lease time.Duration) error
	Unlock(ctx context.Context, chatID int64, owner string) error
}

type Handler struct {
	dispatcher Dispatcher
	secret     string
	logger     *slog.Logger

	locker    ChatLocker
	lease     time.Duration
	lockWait  time.Duration
	lockRetry time.Duration
}

type Option func(*Handler)

// WithChatLock makes Handle hold a per-chat lease while dispatching. When the
// lease cannot be taken within wait the update is answered 503 so Telegram
// redelivers it later.
func WithChatLock(locker ChatLocker, lease, wait time.Duration) Option {
	return func(h *Handler) {
		h.locker = locker
		h.lease = lease
		h.lockWait = wait
	}
}

type okResponse struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// NewHandler builds the webhook handler. An empty secret disables the
// secret-token check.
func NewHandler(dispatcher Dispatcher, secret string, logger *slog.Logger, opts ...Option) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{dispatcher: dispatcher, secret: secret, logger: logger, lockRetry: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(h)
	}
	if h.locker != nil && h.lease <= 0 {
		return nil, errors.New("handler: chat lock lease must be positive")
	}
	return h, nil
}

// Handle processes one Telegram update. Once the update has been dispatched
// it always answers 200 so Telegram does not redeliver an update whose state
// change was already committed. A busy chat lock answers 503 before dispatch.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(event.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	if h.secret != "" {
		got := header(event.Headers, headerSecretToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			logger.WarnContext(ctx, "webhook secret mismatch")
			return jsonResponse(http.StatusUnauthorized, correlationID, errorResponse{
				Error:         "UNAUTHORIZED",
				Reason:        "secret_token_mismatch",
				CorrelationID: correlationID,
			}), nil
		}
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return h.badRequest(ctx, logger, correlationID, err), nil
		}
		body = decoded
	}
	update, err := telegram.DecodeUpdate(body)
	if err != nil {
		return h.badRequest(ctx, logger, correlationID, err), nil
	}

	in, ok := telegram.InboundFromUpdate(update)
	if !ok {
		logger.DebugContext(ctx, "ignoring non-text update", "update_id", update.UpdateID)
		return jsonResponse(http.StatusOK, correlationID, okResponse{Status: "ignored", CorrelationID: correlationID}), nil
	}

	logger.InfoContext(ctx, "update received", "update_id", update.UpdateID, "chat_id", in.ChatID, "command", in.Command)
	if h.locker != nil {
		owner := uuid.NewString()
		if err := h.acquire(ctx, in.ChatID, owner); err != nil {
			logger.WarnContext(ctx, "chat lock not acquired", "chat_id", in.ChatID, "err", err)
			return jsonResponse(http.StatusServiceUnavailable, correlationID, errorResponse{
				Error:         "CHAT_BUSY",
				Reason:        "chat_locked",
				CorrelationID: correlationID,
			}), nil
		}
		defer func() {
			if err := h.locker.Unlock(context.WithoutCancel(ctx), in.ChatID, owner); err != nil {
				logger.WarnContext(ctx, "chat unlock failed", "chat_id", in.ChatID, "err", err)
			}
		}()
	}
	if err := h.dispatcher.Handle(ctx, in); err != nil {
		logger.ErrorContext(ctx, "dispatch failed", "chat_id", in.ChatID, "err", err)
		return jsonResponse(http.StatusOK, correlationID, okResponse{Status: "failed", CorrelationID: correlationID}), nil
	}
	return jsonResponse(http.StatusOK, correlationID, okResponse{Status: "ok", CorrelationID: correlationID}), nil
}

// acquire retries Lock while the chat is held elsewhere, up to lockWait.
func (h *Handler) acquire(ctx context.Context, chatID int64, owner string) error {
	deadline := time.Now().Add(h.lockWait)
	for {
		err := h.locker.Lock(ctx, chatID, owner, h.lease)
		if err == nil || !errors.Is(err, repository.ErrChatLocked) || !time.Now().Before(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.lockRetry):
		}
	}
}

func (h *Handler) badRequest(ctx context.Context, logger *slog.Logger, correlationID string, err error) events.APIGatewayProxyResponse {
	logger.WarnContext(ctx, "invalid webhook body", "err", err)
	return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{
		Error:         string(usecase.ErrorInvalidInput),
		Reason:        "invalid_update",
		CorrelationID: correlationID,
	})
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}

// header looks up key case-insensitively; API Gateway may lowercase names.
func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
