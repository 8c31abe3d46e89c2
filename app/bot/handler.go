package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/congruity-bot/congruity/pkg/chat"
	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/congruity-bot/congruity/pkg/dialogue"
	"github.com/congruity-bot/congruity/pkg/rpc"
	"go.uber.org/zap"
)

// Replies sent to users.
const (
	ReplyPromptAddress     = "OK, send me address of the account"
	ReplySubscribed        = "Subscribed successfully"
	ReplyAlreadySubscribed = "You're already subscribed for this address"
	ReplyUnsubscribed      = "Unsubscribed successfully"
	ReplyNotSubscribed     = "You're not subscribed for this address"
	ReplyNoSubscriptions   = "No subscriptions were found"
	ReplyInvalidAddress    = "Invalid account address"
	ReplyNotUnderstood     = "Don't understand 🤷‍♂️"
	ReplySendCommand       = "Send me a command"
	ReplyAccountNotFound   = "Account address not found"
	ReplyDatabaseError     = "A database query error has occurred 😐"
)

// Subscriptions is the part of the subscription store used by chat commands.
type Subscriptions interface {
	Subscribe(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error)
	Unsubscribe(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error)
	UnsubscribeAll(ctx context.Context, userID int64) (bool, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]concordium.AccountAddress, error)
}

// Handler executes the actions of the dialogue machine and replies to the user.
type Handler struct {
	machine       *dialogue.Machine
	subscriptions Subscriptions
	balances      rpc.BalanceClient
	sender        chat.Sender
	logger        *zap.Logger
}

// NewHandler builds a chat handler. balances may be nil when no RPC is configured.
func NewHandler(machine *dialogue.Machine, subscriptions Subscriptions, balances rpc.BalanceClient, sender chat.Sender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		machine:       machine,
		subscriptions: subscriptions,
		balances:      balances,
		sender:        sender,
		logger:        logger,
	}
}

// Handle processes one incoming message. Failures are logged.
func (h *Handler) Handle(ctx context.Context, in chat.Incoming) {
	if err := h.handle(ctx, in); err != nil {
		h.logger.Error("Failed to handle message", zap.Int64("chat_id", in.ChatID), zap.Error(err))
	}
}

func (h *Handler) handle(ctx context.Context, in chat.Incoming) error {
	_, action, err := h.machine.Apply(ctx, in.ChatID, in.Text)
	if err != nil {
		h.logger.Error("Dialogue state unavailable", zap.Int64("chat_id", in.ChatID), zap.Error(err))
		return h.reply(ctx, in.ChatID, ReplyDatabaseError)
	}

	switch action.Kind {
	case dialogue.ActionHelp:
		return h.reply(ctx, in.ChatID, HelpText())
	case dialogue.ActionPromptAddress:
		return h.reply(ctx, in.ChatID, ReplyPromptAddress)
	case dialogue.ActionPromptUnsubscribe:
		return h.promptUnsubscribe(ctx, in.ChatID)
	case dialogue.ActionListSubscriptions:
		return h.listSubscriptions(ctx, in.ChatID)
	case dialogue.ActionBalance:
		return h.balance(ctx, in.ChatID, action.Address)
	case dialogue.ActionSubscribe:
		return h.subscribe(ctx, in.ChatID, action.Address)
	case dialogue.ActionUnsubscribe:
		applied, err := h.subscriptions.Unsubscribe(ctx, in.ChatID, action.Address)
		return h.afterUnsubscribe(ctx, in.ChatID, applied, err, ReplyNotSubscribed)
	case dialogue.ActionUnsubscribeAll:
		applied, err := h.subscriptions.UnsubscribeAll(ctx, in.ChatID)
		return h.afterUnsubscribe(ctx, in.ChatID, applied, err, ReplyNoSubscriptions)
	case dialogue.ActionInvalidAddress:
		return h.send(ctx, chat.Message{ChatID: in.ChatID, Text: ReplyInvalidAddress, RemoveKeyboard: true})
	case dialogue.ActionSendCommand:
		return h.reply(ctx, in.ChatID, ReplySendCommand)
	default:
		return h.reply(ctx, in.ChatID, ReplyNotUnderstood)
	}
}

func (h *Handler) subscribe(ctx context.Context, chatID int64, account concordium.AccountAddress) error {
	applied, err := h.subscriptions.Subscribe(ctx, chatID, account)
	if err != nil {
		h.logger.Error("Subscribe failed", zap.Int64("chat_id", chatID), zap.Stringer("account", account), zap.Error(err))
		return h.reply(ctx, chatID, ReplyDatabaseError)
	}
	if applied {
		h.logger.Info("Subscribed", zap.Int64("chat_id", chatID), zap.Stringer("account", account))
		return h.reply(ctx, chatID, ReplySubscribed)
	}
	return h.reply(ctx, chatID, ReplyAlreadySubscribed)
}

// afterUnsubscribe answers an unsubscribe and removes the address keyboard.
func (h *Handler) afterUnsubscribe(ctx context.Context, chatID int64, applied bool, err error, notApplied string) error {
	text := ReplyUnsubscribed
	switch {
	case err != nil:
		h.logger.Error("Unsubscribe failed", zap.Int64("chat_id", chatID), zap.Error(err))
		text = ReplyDatabaseError
	case !applied:
		text = notApplied
	}
	return h.send(ctx, chat.Message{ChatID: chatID, Text: text, RemoveKeyboard: true})
}

// promptUnsubscribe offers the user's subscriptions as a keyboard, plus "all"
// when there is more than one. Without subscriptions the prompt is dropped.
func (h *Handler) promptUnsubscribe(ctx context.Context, chatID int64) error {
	accounts, err := h.subscriptions.ListSubscriptions(ctx, chatID)
	if err != nil || len(accounts) == 0 {
		if resetErr := h.machine.Reset(ctx, chatID); resetErr != nil {
			h.logger.Warn("Failed to reset dialogue", zap.Int64("chat_id", chatID), zap.Error(resetErr))
		}
		if err != nil {
			h.logger.Error("List subscriptions failed", zap.Int64("chat_id", chatID), zap.Error(err))
			return h.reply(ctx, chatID, ReplyDatabaseError)
		}
		return h.reply(ctx, chatID, ReplyNoSubscriptions)
	}

	keyboard := make([]string, 0, len(accounts)+1)
	for _, acc := range accounts {
		keyboard = append(keyboard, acc.String())
	}
	if len(accounts) > 1 {
		keyboard = append(keyboard, dialogue.AllKeyword)
	}
	return h.send(ctx, chat.Message{ChatID: chatID, Text: ReplyPromptAddress, Keyboard: keyboard})
}

func (h *Handler) listSubscriptions(ctx context.Context, chatID int64) error {
	accounts, err := h.subscriptions.ListSubscriptions(ctx, chatID)
	if err != nil {
		h.logger.Error("List subscriptions failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, ReplyDatabaseError)
	}
	if len(accounts) == 0 {
		return h.reply(ctx, chatID, ReplyNoSubscriptions)
	}
	lines := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		lines = append(lines, acc.String())
	}
	return h.reply(ctx, chatID, strings.Join(lines, "\n"))
}

func (h *Handler) balance(ctx context.Context, chatID int64, account concordium.AccountAddress) error {
	if h.balances == nil {
		return h.reply(ctx, chatID, "Error: balance lookups are not configured")
	}
	amount, found, err := h.balances.AccountBalance(ctx, account)
	if err != nil {
		h.logger.Warn("Balance lookup failed", zap.Stringer("account", account), zap.Error(err))
		return h.reply(ctx, chatID, "Error: "+html.EscapeString(err.Error()))
	}
	if !found {
		return h.reply(ctx, chatID, ReplyAccountNotFound)
	}
	return h.reply(ctx, chatID, amount.CCD())
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) error {
	return h.send(ctx, chat.Message{ChatID: chatID, Text: text})
}

func (h *Handler) send(ctx context.Context, msg chat.Message) error {
	if err := h.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// HelpText lists the supported commands.
func HelpText() string {
	var b strings.Builder
	b.WriteString("These commands are supported:")
	for _, c := range dialogue.Commands {
		fmt.Fprintf(&b, "\n/%s - %s", c.Command, c.Description)
	}
	return b.String()
}
