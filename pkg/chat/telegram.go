package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/congruity-bot/congruity/pkg/dialogue"
	"github.com/congruity-bot/congruity/pkg/retry"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramOpts configures the Telegram transport.
type TelegramOpts struct {
	Token string
	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for tests.
	APIEndpoint string
	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int
}

// Telegram sends and receives messages through the Telegram Bot API.
type Telegram struct {
	bot         *tgbotapi.BotAPI
	logger      *zap.Logger
	pollTimeout int
}

// NewTelegram authenticates the bot token (getMe), retrying with backoff.
func NewTelegram(ctx context.Context, logger *zap.Logger, opts TelegramOpts) (*Telegram, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}

	var bot *tgbotapi.BotAPI
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "telegram_get_me", func() error {
		var err error
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(opts.Token, opts.APIEndpoint)
		if err != nil && strings.Contains(err.Error(), "Unauthorized") {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}

	logger.Info("Connected to Telegram", zap.String("bot", bot.Self.UserName))
	return &Telegram{bot: bot, logger: logger, pollTimeout: opts.PollTimeout}, nil
}

// UserName returns the bot's username.
func (t *Telegram) UserName() string {
	return t.bot.Self.UserName
}

// Send delivers msg with HTML formatting and no link previews.
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true

	switch {
	case len(msg.Keyboard) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(msg.Keyboard))
		for _, label := range msg.Keyboard {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.OneTimeKeyboard = true
		keyboard.ResizeKeyboard = true
		cfg.ReplyMarkup = keyboard
	case msg.RemoveKeyboard:
		cfg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}

	if _, err := t.bot.Send(cfg); err != nil {
		return fmt.Errorf("send message to %d: %w", msg.ChatID, err)
	}
	return nil
}

// SendText delivers a notification text.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	return t.Send(ctx, Message{ChatID: chatID, Text: text})
}

// RegisterCommands publishes the command menu.
func (t *Telegram) RegisterCommands() error {
	commands := make([]tgbotapi.BotCommand, 0, len(dialogue.Commands))
	for _, c := range dialogue.Commands {
		commands = append(commands, tgbotapi.BotCommand{Command: string(c.Command), Description: c.Description})
	}
	if _, err := t.bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// Poll long-polls for updates and calls handle for each text message, one at a
// time, until ctx is done.
func (t *Telegram) Poll(ctx context.Context, handle HandlerFunc) error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	t.logger.Info("Polling Telegram for updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if in, ok := incomingFrom(update); ok {
				handle(ctx, in)
			}
		}
	}
}

// SetWebhook points Telegram at url.
func (t *Telegram) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := t.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	t.logger.Info("Telegram webhook registered")
	return nil
}

// WebhookPath is the HTTP path Telegram posts updates to.
func WebhookPath(token string) string {
	return "/bot" + token + "/"
}

// WebhookHandler decodes webhook updates and passes text messages to handle.
func (t *Telegram) WebhookHandler(ctx context.Context, handle HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := t.bot.HandleUpdate(r)
		if err != nil {
			t.logger.Warn("Invalid webhook update", zap.Error(err))
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}
		if in, ok := incomingFrom(*update); ok {
			handle(ctx, in)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func incomingFrom(update tgbotapi.Update) (Incoming, bool) {
	if update.Message == nil || update.Message.Chat == nil {
		return Incoming{}, false
	}
	return Incoming{ChatID: update.Message.Chat.ID, Text: update.Message.Text}, true
}
