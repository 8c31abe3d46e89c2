package dialogue

import (
	"context"
	"errors"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrStateNotFound is returned by storages for users without a persisted state.
var ErrStateNotFound = errors.New("dialogue state not found")

// Purpose says what an awaited address will be used for.
type Purpose string

const (
	PurposeBalance     Purpose = "balance"
	PurposeSubscribe   Purpose = "subscribe"
	PurposeUnsubscribe Purpose = "unsubscribe"
)

// StateKind is Idle or AwaitingAddress.
type StateKind string

const (
	StateIdle            StateKind = "idle"
	StateAwaitingAddress StateKind = "awaiting_address"
)

// State is one user's position in the conversation.
type State struct {
	Kind    StateKind `msgpack:"kind"`
	Purpose Purpose   `msgpack:"purpose,omitempty"`
}

// Idle is the default state.
func Idle() State {
	return State{Kind: StateIdle}
}

// AwaitingAddress waits for an address to use for purpose.
func AwaitingAddress(purpose Purpose) State {
	return State{Kind: StateAwaitingAddress, Purpose: purpose}
}

// IsIdle reports whether no prompt is pending. The zero State is idle.
func (s State) IsIdle() bool {
	return s.Kind == "" || s.Kind == StateIdle
}

// Storage persists states per user.
type Storage interface {
	Get(ctx context.Context, userID int64) (State, error)
	Put(ctx context.Context, userID int64, state State) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStorage keeps states in process memory.
type MemoryStorage struct {
	states *xsync.Map[int64, State]
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: xsync.NewMap[int64, State]()}
}

func (m *MemoryStorage) Get(_ context.Context, userID int64) (State, error) {
	state, ok := m.states.Load(userID)
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (m *MemoryStorage) Put(_ context.Context, userID int64, state State) error {
	m.states.Store(userID, state)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, userID int64) error {
	m.states.Delete(userID)
	return nil
}
