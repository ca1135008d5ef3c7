// Package telegram adapts the Telegram Bot API to the bot's inbound and
// outbound message shapes.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flanner/internal/domain"
)

// MaxMessageLength is Telegram's limit on the text of one message, in characters.
const MaxMessageLength = 4096

const pollTimeoutSeconds = 60

// botAPI is the subset of *tgbotapi.BotAPI used by Client.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Command is a bot command as shown in the Telegram client menu.
type Command struct {
	Name        string
	Description string
}

type Client struct {
	api    botAPI
	logger *slog.Logger
}

func New(api botAPI, logger *slog.Logger) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}, nil
}

// NewFromToken authenticates against the Bot API with token.
func NewFromToken(token string, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: token must not be empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate: %w", err)
	}
	c, err := New(api, logger)
	if err != nil {
		return nil, err
	}
	c.logger.Info("authorized on telegram", "bot", api.Self.UserName)
	return c, nil
}

// Send delivers text to chatID, split into several messages when it is
// longer than MaxMessageLength.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("telegram: message text must not be empty")
	}
	for i, part := range splitText(text, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("telegram: send part %d: %w", i+1, err)
		}
		if _, err := c.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("telegram: send part %d: %w", i+1, err)
		}
	}
	return nil
}

// RegisterCommands publishes the command menu (setMyCommands).
func (c *Client) RegisterCommands(ctx context.Context, commands []Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	botCommands := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		botCommands = append(botCommands, tgbotapi.BotCommand{Command: cmd.Name, Description: cmd.Description})
	}
	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	return nil
}

// Poll long-polls for updates and calls handle for every text message until
// ctx is cancelled.
func (c *Client) Poll(ctx context.Context, handle func(domain.Inbound)) error {
	if handle == nil {
		return errors.New("telegram: handle must not be nil")
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := c.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram: updates channel closed")
			}
			in, ok := InboundFromUpdate(update)
			if !ok {
				c.logger.Debug("ignoring non-text update", "update_id", update.UpdateID)
				continue
			}
			handle(in)
		}
	}
}

// InboundFromUpdate extracts a text message from update. It reports false for
// updates that carry no text message.
func InboundFromUpdate(update tgbotapi.Update) (domain.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return domain.Inbound{}, false
	}
	return domain.Inbound{
		ChatID:  msg.Chat.ID,
		Text:    msg.Text,
		Command: msg.Command(),
	}, true
}

// DecodeUpdate parses a webhook request body.
func DecodeUpdate(body []byte) (tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return tgbotapi.Update{}, fmt.Errorf("telegram: decode update: %w", err)
	}
	return update, nil
}

// splitText cuts text into parts of at most limit characters, preferring to
// cut after a newline.
func splitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
