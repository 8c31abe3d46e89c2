package dialogue

import (
	"context"
	"errors"
	"testing"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress() concordium.AccountAddress {
	var a concordium.AccountAddress
	for i := range a {
		a[i] = byte(200 - i)
	}
	return a
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text      string
		cmd       Command
		isCommand bool
		known     bool
	}{
		{text: "/subscribe", cmd: CmdSubscribe, isCommand: true, known: true},
		{text: "/Balance@congruity_bot extra", cmd: CmdBalance, isCommand: true, known: true},
		{text: "  /help ", cmd: CmdHelp, isCommand: true, known: true},
		{text: "/dance", cmd: "dance", isCommand: true, known: false},
		{text: "/", isCommand: true, known: false},
		{text: "hello", isCommand: false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, isCommand, known := ParseCommand(tt.text)
			assert.Equal(t, tt.isCommand, isCommand)
			assert.Equal(t, tt.known, known)
			if tt.isCommand {
				assert.Equal(t, tt.cmd, cmd)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	addr := testAddress()

	tests := []struct {
		name       string
		state      State
		text       string
		wantState  State
		wantAction Action
	}{
		{name: "help", state: Idle(), text: "/start", wantState: Idle(), wantAction: Action{Kind: ActionHelp}},
		{name: "balance prompt", state: Idle(), text: "/balance", wantState: AwaitingAddress(PurposeBalance), wantAction: Action{Kind: ActionPromptAddress}},
		{name: "subscribe prompt", state: Idle(), text: "/subscribe", wantState: AwaitingAddress(PurposeSubscribe), wantAction: Action{Kind: ActionPromptAddress}},
		{name: "unsubscribe prompt", state: Idle(), text: "/unsubscribe", wantState: AwaitingAddress(PurposeUnsubscribe), wantAction: Action{Kind: ActionPromptUnsubscribe}},
		{name: "list", state: Idle(), text: "/subscriptions", wantState: Idle(), wantAction: Action{Kind: ActionListSubscriptions}},
		{name: "free text while idle", state: Idle(), text: "hi", wantState: Idle(), wantAction: Action{Kind: ActionNotUnderstood}},
		{name: "unknown command", state: AwaitingAddress(PurposeSubscribe), text: "/dance", wantState: Idle(), wantAction: Action{Kind: ActionNotUnderstood}},
		{name: "empty text keeps state", state: AwaitingAddress(PurposeBalance), text: " ", wantState: AwaitingAddress(PurposeBalance), wantAction: Action{Kind: ActionSendCommand}},
		{name: "subscribe address", state: AwaitingAddress(PurposeSubscribe), text: addr.String(), wantState: Idle(), wantAction: Action{Kind: ActionSubscribe, Address: addr}},
		{name: "balance address", state: AwaitingAddress(PurposeBalance), text: addr.String(), wantState: Idle(), wantAction: Action{Kind: ActionBalance, Address: addr}},
		{name: "unsubscribe address", state: AwaitingAddress(PurposeUnsubscribe), text: addr.String(), wantState: Idle(), wantAction: Action{Kind: ActionUnsubscribe, Address: addr}},
		{name: "unsubscribe all", state: AwaitingAddress(PurposeUnsubscribe), text: "all", wantState: Idle(), wantAction: Action{Kind: ActionUnsubscribeAll}},
		{name: "all is an invalid address for subscribe", state: AwaitingAddress(PurposeSubscribe), text: "all", wantState: Idle(), wantAction: Action{Kind: ActionInvalidAddress}},
		{name: "invalid address", state: AwaitingAddress(PurposeSubscribe), text: "not an address", wantState: Idle(), wantAction: Action{Kind: ActionInvalidAddress}},
		{name: "command abandons prompt", state: AwaitingAddress(PurposeBalance), text: "/subscribe", wantState: AwaitingAddress(PurposeSubscribe), wantAction: Action{Kind: ActionPromptAddress}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotState, gotAction := Transition(tt.state, tt.text)
			assert.Equal(t, tt.wantState, gotState)
			assert.Equal(t, tt.wantAction, gotAction)
		})
	}
}

func TestMachinePersistsState(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	m := NewMachine(storage)

	state, err := m.CurrentState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, state.IsIdle())

	state, action, err := m.Apply(ctx, 1, "/subscribe")
	require.NoError(t, err)
	assert.Equal(t, AwaitingAddress(PurposeSubscribe), state)
	assert.Equal(t, ActionPromptAddress, action.Kind)

	stored, err := m.CurrentState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, AwaitingAddress(PurposeSubscribe), stored)

	other, err := m.CurrentState(ctx, 2)
	require.NoError(t, err)
	assert.True(t, other.IsIdle(), "states are per user")

	_, action, err = m.Apply(ctx, 1, testAddress().String())
	require.NoError(t, err)
	assert.Equal(t, ActionSubscribe, action.Kind)

	_, err = storage.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrStateNotFound, "idle states are not stored")

	_, _, err = m.Apply(ctx, 1, "/balance")
	require.NoError(t, err)
	require.NoError(t, m.Reset(ctx, 1))
	stored, err = m.CurrentState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stored.IsIdle())
}

type brokenStorage struct{ MemoryStorage }

func (brokenStorage) Get(context.Context, int64) (State, error) {
	return State{}, errors.New("storage down")
}

func TestMachineStorageError(t *testing.T) {
	m := NewMachine(&brokenStorage{})
	_, _, err := m.Apply(context.Background(), 1, "/help")
	require.Error(t, err)
}
