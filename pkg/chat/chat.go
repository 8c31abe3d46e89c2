package chat

import "context"

// Message is an outgoing chat message. Text is HTML.
type Message struct {
	ChatID int64
	Text   string
	// Keyboard, when set, is offered as a one-time reply keyboard, one button per row.
	Keyboard       []string
	RemoveKeyboard bool
}

// Incoming is a text received from a user.
type Incoming struct {
	ChatID int64
	Text   string
}

// Sender delivers messages to users.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HandlerFunc processes one incoming message.
type HandlerFunc func(ctx context.Context, in Incoming)
