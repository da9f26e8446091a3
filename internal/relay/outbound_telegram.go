package relay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
)

type TelegramConfig struct {
	Token     string
	APIServer string
	Timeout   time.Duration
}

// TelegramOutbound delivers visitor messages through the Telegram bot API.
type TelegramOutbound struct {
	bot *telego.Bot
}

func NewTelegramOutbound(cfg TelegramConfig) (*TelegramOutbound, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, &ConfigurationError{Missing: []string{"TELEGRAM_BOT_TOKEN"}}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := []telego.BotOption{
		telego.WithHTTPClient(&http.Client{Timeout: timeout}),
		telego.WithDiscardLogger(),
	}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(strings.TrimRight(cfg.APIServer, "/")))
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("relay: telegram bot: %w", err)
	}
	return &TelegramOutbound{bot: bot}, nil
}

// Send posts text to destination once. Any failure, including a timeout, is
// returned as *UpstreamRejected.
func (t *TelegramOutbound) Send(ctx context.Context, destination string, text string) (*Delivery, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             chatRef(destination),
		Text:               html.EscapeString(text),
		ParseMode:          telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		return nil, &UpstreamRejected{Details: upstreamDetails(err), Err: err}
	}

	log.Printf("[telegram] delivered message_id=%d chat=%d", msg.MessageID, msg.Chat.ID)

	return &Delivery{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: int64(msg.MessageID),
	}, nil
}

// SetWebhook points the bot's updates at url. secret is echoed back by
// Telegram in SecretHeader on every delivery.
func (t *TelegramOutbound) SetWebhook(ctx context.Context, url, secret string) error {
	return t.bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	})
}

func (t *TelegramOutbound) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return t.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{
		DropPendingUpdates: dropPending,
	})
}

func (t *TelegramOutbound) WebhookInfo(ctx context.Context) (*telego.WebhookInfo, error) {
	return t.bot.GetWebhookInfo(ctx)
}

// chatRef accepts a numeric chat id or a public @username.
func chatRef(destination string) telego.ChatID {
	destination = strings.TrimSpace(destination)
	if id, err := strconv.ParseInt(destination, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(destination, "@") {
		destination = "@" + destination
	}
	return tu.Username(destination)
}

func upstreamDetails(err error) string {
	var apiErr *ta.Error
	if errors.As(err, &apiErr) && apiErr.Description != "" {
		return apiErr.Description
	}
	return err.Error()
}
