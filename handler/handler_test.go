package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"flanner/internal/domain"
	"flanner/internal/repository"
	"flanner/internal/usecase"
)

const helpUpdate = `{"update_id":10,"message":{"message_id":1,"date":0,"chat":{"id":77,"type":"private"},"text":"/help","entities":[{"type":"bot_command","offset":0,"length":5}]}}`

type stubDispatcher struct {
	calls []domain.Inbound
	err   error
}

func (s *stubDispatcher) Handle(_ context.Context, in domain.Inbound) error {
	s.calls = append(s.calls, in)
	return s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/telegram",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, "", nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(helpUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []domain.Inbound{{ChatID: 77, Text: "/help", Command: "help"}}, d.calls)

	out := parseBody[okResponse](t, resp.Body)
	require.Equal(t, "ok", out.Status)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, resp.Headers["X-Correlation-Id"], out.CorrelationID)
}

func TestHandle_Base64Body(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "", nil)
	require.NoError(t, err)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(helpUpdate)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.calls, 1)
}

func TestHandle_InvalidBody(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, d.calls)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_IgnoresNonTextUpdates(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"update_id":11,"edited_message":{"message_id":2,"date":0,"chat":{"id":1,"type":"private"},"text":"x"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ignored", parseBody[okResponse](t, resp.Body).Status)
	require.Empty(t, d.calls)
}

func TestHandle_SecretToken(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "s3cret", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(helpUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, d.calls)

	event := makeEvent(helpUpdate)
	event.Headers["x-telegram-bot-api-secret-token"] = "wrong"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	event.Headers["x-telegram-bot-api-secret-token"] = "s3cret"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.calls, 1)
}

func TestHandle_DispatchErrorStillAcknowledges(t *testing.T) {
	d := &stubDispatcher{err: errors.New("telegram down")}
	h, err := NewHandler(d, "", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(helpUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "failed", parseBody[okResponse](t, resp.Body).Status)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{}, "", nil)
	require.NoError(t, err)

	event := makeEvent(helpUpdate)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

type fakeLocker struct {
	busy     int
	lockErr  error
	locks    []string
	unlocks  []string
	leases   []time.Duration
	unlockCh int64
}

func (f *fakeLocker) Lock(_ context.Context, _ int64, owner string, lease time.Duration) error {
	f.locks = append(f.locks, owner)
	f.leases = append(f.leases, lease)
	if f.lockErr != nil {
		return f.lockErr
	}
	if f.busy > 0 {
		f.busy--
		return repository.ErrChatLocked
	}
	return nil
}

func (f *fakeLocker) Unlock(_ context.Context, chatID int64, owner string) error {
	f.unlocks = append(f.unlocks, owner)
	f.unlockCh = chatID
	return nil
}

func TestHandle_ChatLockWrapsDispatch(t *testing.T) {
	d := &stubDispatcher{}
	l := &fakeLocker{busy: 2}
	h, err := NewHandler(d, "", nil, WithChatLock(l, time.Minute, time.Second))
	require.NoError(t, err)
	h.lockRetry = time.Millisecond

	resp, err := h.Handle(context.Background(), makeEvent(helpUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.calls, 1)
	require.Len(t, l.locks, 3)
	require.Equal(t, time.Minute, l.leases[0])
	require.Equal(t, []string{l.locks[2]}, l.unlocks)
	require.Equal(t, int64(77), l.unlockCh)
}

func TestHandle_ChatLockBusyAnswers503(t *testing.T) {
	d := &stubDispatcher{}
	l := &fakeLocker{busy: 1000}
	h, err := NewHandler(d, "", nil, WithChatLock(l, time.Minute, 20*time.Millisecond))
	require.NoError(t, err)
	h.lockRetry = time.Millisecond

	resp, err := h.Handle(context.Background(), makeEvent(helpUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Empty(t, d.calls)
	require.Empty(t, l.unlocks)
	require.Equal(t, "chat_locked", parseBody[errorResponse](t, resp.Body).Reason)
}

func TestHandle_ChatLockStoreErrorDoesNotRetry(t *testing.T) {
	d := &stubDispatcher{}
	l := &fakeLocker{lockErr: errors.New("throttled")}
	h, err := NewHandler(d, "", nil, WithChatLock(l, time.Minute, time.Second))
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(helpUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Len(t, l.locks, 1)
	require.Empty(t, d.calls)
}

func TestNewHandler_ChatLockNeedsLease(t *testing.T) {
	_, err := NewHandler(&stubDispatcher{}, "", nil, WithChatLock(&fakeLocker{}, 0, time.Second))
	require.Error(t, err)
}
