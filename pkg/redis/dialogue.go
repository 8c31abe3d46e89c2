package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/congruity-bot/congruity/pkg/dialogue"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DialogueKeyPrefix prefixes persisted dialogue states.
const DialogueKeyPrefix = "dialogue:"

// DialogueStorage persists dialogue states as msgpack with a TTL.
type DialogueStorage struct {
	client *Client
	ttl    time.Duration
}

// NewDialogueStorage returns a storage whose entries expire after ttl (0 = never).
func NewDialogueStorage(client *Client, ttl time.Duration) *DialogueStorage {
	return &DialogueStorage{client: client, ttl: ttl}
}

func dialogueKey(userID int64) string {
	return DialogueKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *DialogueStorage) Get(ctx context.Context, userID int64) (dialogue.State, error) {
	raw, err := s.client.client.Get(ctx, dialogueKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return dialogue.State{}, dialogue.ErrStateNotFound
	}
	if err != nil {
		return dialogue.State{}, fmt.Errorf("get dialogue of %d: %w", userID, err)
	}
	var state dialogue.State
	if err := msgpack.Unmarshal(raw, &state); err != nil {
		return dialogue.State{}, fmt.Errorf("decode dialogue of %d: %w", userID, err)
	}
	return state, nil
}

func (s *DialogueStorage) Put(ctx context.Context, userID int64, state dialogue.State) error {
	raw, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode dialogue of %d: %w", userID, err)
	}
	if err := s.client.client.Set(ctx, dialogueKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set dialogue of %d: %w", userID, err)
	}
	return nil
}

func (s *DialogueStorage) Delete(ctx context.Context, userID int64) error {
	if err := s.client.client.Del(ctx, dialogueKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete dialogue of %d: %w", userID, err)
	}
	return nil
}
