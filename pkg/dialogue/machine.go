package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/congruity-bot/congruity/pkg/concordium"
)

// Command is a slash command understood by the bot.
type Command string

const (
	CmdStart         Command = "start"
	CmdHelp          Command = "help"
	CmdBalance       Command = "balance"
	CmdSubscribe     Command = "subscribe"
	CmdSubscriptions Command = "subscriptions"
	CmdUnsubscribe   Command = "unsubscribe"
)

// CommandInfo describes a command for the transport's command menu.
type CommandInfo struct {
	Command     Command
	Description string
}

// Commands lists the commands registered with the chat transport.
var Commands = []CommandInfo{
	{Command: CmdHelp, Description: "show help"},
	{Command: CmdBalance, Description: "get current balance for an address"},
	{Command: CmdSubscribe, Description: "subscribe to on-chain events for an address"},
	{Command: CmdSubscriptions, Description: "list subscribed addresses"},
	{Command: CmdUnsubscribe, Description: "unsubscribe from on-chain events"},
}

// AllKeyword selects every subscription when unsubscribing.
const AllKeyword = "all"

// ActionKind tells the front-end what to do after a transition.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionHelp
	ActionPromptAddress
	ActionPromptUnsubscribe
	ActionListSubscriptions
	ActionBalance
	ActionSubscribe
	ActionUnsubscribe
	ActionUnsubscribeAll
	ActionInvalidAddress
	ActionNotUnderstood
	ActionSendCommand
)

// Action is the side effect requested by a transition.
type Action struct {
	Kind    ActionKind
	Address concordium.AccountAddress
}

// ParseCommand extracts a command from text such as "/subscribe" or "/subscribe@congruity_bot".
// ok is false when text is not a slash command; known is false for unknown commands.
func ParseCommand(text string) (cmd Command, ok bool, known bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false, false
	}
	word := strings.Fields(text[1:])
	if len(word) == 0 {
		return "", true, false
	}
	name, _, _ := strings.Cut(word[0], "@")
	cmd = Command(strings.ToLower(name))
	switch cmd {
	case CmdStart, CmdHelp, CmdBalance, CmdSubscribe, CmdSubscriptions, CmdUnsubscribe:
		return cmd, true, true
	}
	return cmd, true, false
}

// Transition is the pure state machine. A command always starts from Idle,
// abandoning any pending prompt.
func Transition(state State, text string) (State, Action) {
	text = strings.TrimSpace(text)
	if text == "" {
		return state, Action{Kind: ActionSendCommand}
	}

	if cmd, isCommand, known := ParseCommand(text); isCommand {
		if !known {
			return Idle(), Action{Kind: ActionNotUnderstood}
		}
		switch cmd {
		case CmdStart, CmdHelp:
			return Idle(), Action{Kind: ActionHelp}
		case CmdBalance:
			return AwaitingAddress(PurposeBalance), Action{Kind: ActionPromptAddress}
		case CmdSubscribe:
			return AwaitingAddress(PurposeSubscribe), Action{Kind: ActionPromptAddress}
		case CmdSubscriptions:
			return Idle(), Action{Kind: ActionListSubscriptions}
		case CmdUnsubscribe:
			return AwaitingAddress(PurposeUnsubscribe), Action{Kind: ActionPromptUnsubscribe}
		}
	}

	if state.IsIdle() {
		return Idle(), Action{Kind: ActionNotUnderstood}
	}

	if state.Purpose == PurposeUnsubscribe && strings.EqualFold(text, AllKeyword) {
		return Idle(), Action{Kind: ActionUnsubscribeAll}
	}

	address, err := concordium.ParseAccountAddress(text)
	if err != nil {
		return Idle(), Action{Kind: ActionInvalidAddress}
	}

	switch state.Purpose {
	case PurposeBalance:
		return Idle(), Action{Kind: ActionBalance, Address: address}
	case PurposeSubscribe:
		return Idle(), Action{Kind: ActionSubscribe, Address: address}
	case PurposeUnsubscribe:
		return Idle(), Action{Kind: ActionUnsubscribe, Address: address}
	}
	return Idle(), Action{Kind: ActionNotUnderstood}
}

// Machine applies Transition to externally persisted per-user state.
type Machine struct {
	storage Storage
}

// NewMachine returns a Machine over storage.
func NewMachine(storage Storage) *Machine {
	return &Machine{storage: storage}
}

// CurrentState returns the user's state, Idle when none was persisted.
func (m *Machine) CurrentState(ctx context.Context, userID int64) (State, error) {
	state, err := m.storage.Get(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return Idle(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load dialogue state: %w", err)
	}
	return state, nil
}

// Apply advances the user's dialogue with text and persists the new state.
func (m *Machine) Apply(ctx context.Context, userID int64, text string) (State, Action, error) {
	current, err := m.CurrentState(ctx, userID)
	if err != nil {
		return State{}, Action{}, err
	}

	next, action := Transition(current, text)
	if err := m.save(ctx, userID, next); err != nil {
		return State{}, Action{}, err
	}
	return next, action, nil
}

// Reset returns the user to Idle.
func (m *Machine) Reset(ctx context.Context, userID int64) error {
	return m.save(ctx, userID, Idle())
}

func (m *Machine) save(ctx context.Context, userID int64, state State) error {
	var err error
	if state.IsIdle() {
		err = m.storage.Delete(ctx, userID)
	} else {
		err = m.storage.Put(ctx, userID, state)
	}
	if err != nil {
		return fmt.Errorf("save dialogue state: %w", err)
	}
	return nil
}
