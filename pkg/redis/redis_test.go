package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/congruity-bot/congruity/pkg/dialogue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := Wrap(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func account(seed byte) concordium.AccountAddress {
	var a concordium.AccountAddress
	for i := range a {
		a[i] = seed ^ byte(i)
	}
	return a
}

func TestSubscriberIndex(t *testing.T) {
	client, mr := setupTestClient(t)
	index := NewSubscriberIndex(client)
	ctx := context.Background()

	require.NoError(t, index.Add(ctx, account(1), 30))
	require.NoError(t, index.Add(ctx, account(1), 10))
	require.NoError(t, index.Add(ctx, account(1), 30))
	require.NoError(t, index.Add(ctx, account(2), 20))

	ids, err := index.Members(ctx, account(1))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30}, ids)
	assert.True(t, mr.Exists("account:"+account(1).String()))

	require.NoError(t, index.Remove(ctx, account(1), 10))
	require.NoError(t, index.Remove(ctx, account(1), 30))
	ids, err = index.Members(ctx, account(1))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, mr.Exists("account:"+account(1).String()), "empty sets disappear")

	ids, err = index.Members(ctx, account(3))
	require.NoError(t, err)
	assert.Empty(t, ids, "unknown account has no subscribers")
}

func TestSubscriberIndexReplace(t *testing.T) {
	client, mr := setupTestClient(t)
	index := NewSubscriberIndex(client)
	ctx := context.Background()

	require.NoError(t, index.Add(ctx, account(1), 1))
	require.NoError(t, index.Add(ctx, account(2), 2))
	require.NoError(t, mr.Set("ati:latest", "77"))

	require.NoError(t, index.Replace(ctx, map[concordium.AccountAddress][]int64{
		account(2): {5, 6},
		account(3): {7},
		account(4): {},
	}))

	for seed, want := range map[byte][]int64{1: {}, 2: {5, 6}, 3: {7}, 4: {}} {
		ids, err := index.Members(ctx, account(seed))
		require.NoError(t, err)
		assert.ElementsMatch(t, want, ids, "account %d", seed)
	}

	got, err := mr.Get("ati:latest")
	require.NoError(t, err)
	assert.Equal(t, "77", got, "replace only touches account keys")
}

func TestCursorBeyondFloatPrecision(t *testing.T) {
	client, _ := setupTestClient(t)
	cursor := NewCursor(client)
	ctx := context.Background()

	const base = int64(1) << 53
	moved, err := cursor.Commit(ctx, base)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = cursor.Commit(ctx, base+1)
	require.NoError(t, err)
	assert.True(t, moved, "ids that are equal as doubles still advance")

	moved, err = cursor.Commit(ctx, base)
	require.NoError(t, err)
	assert.False(t, moved)

	id, _, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, base+1, id)

	_, err = cursor.Commit(ctx, -1)
	assert.Error(t, err)
}

func TestCursor(t *testing.T) {
	client, _ := setupTestClient(t)
	cursor := NewCursor(client)
	ctx := context.Background()

	_, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	moved, err := cursor.Commit(ctx, 9)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = cursor.Commit(ctx, 5)
	require.NoError(t, err)
	assert.False(t, moved, "cursor never goes backwards")

	moved, err = cursor.Commit(ctx, 9)
	require.NoError(t, err)
	assert.False(t, moved)

	id, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	moved, err = cursor.Commit(ctx, 12)
	require.NoError(t, err)
	assert.True(t, moved)
	id, _, err = cursor.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestFeed(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed, err := client.Listen(ctx, "tx_channel")
	require.NoError(t, err)
	defer func() { _ = feed.Close() }()

	require.NoError(t, client.Publish(ctx, "tx_channel", "1|aa|{}"))
	require.NoError(t, client.Publish(ctx, "tx_channel", "2|bb|{}"))

	first, err := feed.Next(ctx)
	require.NoError(t, err)
	second, err := feed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1|aa|{}", "2|bb|{}"}, []string{first, second})
}

func TestDialogueStorage(t *testing.T) {
	client, mr := setupTestClient(t)
	storage := NewDialogueStorage(client, time.Hour)
	ctx := context.Background()

	_, err := storage.Get(ctx, 42)
	require.ErrorIs(t, err, dialogue.ErrStateNotFound)

	want := dialogue.AwaitingAddress(dialogue.PurposeUnsubscribe)
	require.NoError(t, storage.Put(ctx, 42, want))

	got, err := storage.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Hour, mr.TTL("dialogue:42"))

	mr.FastForward(2 * time.Hour)
	_, err = storage.Get(ctx, 42)
	require.ErrorIs(t, err, dialogue.ErrStateNotFound, "state expires")

	require.NoError(t, storage.Put(ctx, 42, want))
	require.NoError(t, storage.Delete(ctx, 42))
	_, err = storage.Get(ctx, 42)
	require.ErrorIs(t, err, dialogue.ErrStateNotFound)
}

func TestDialogueMachineOverRedis(t *testing.T) {
	client, _ := setupTestClient(t)
	m := dialogue.NewMachine(NewDialogueStorage(client, 0))
	ctx := context.Background()

	_, _, err := m.Apply(ctx, 7, "/balance")
	require.NoError(t, err)
	state, err := m.CurrentState(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, dialogue.AwaitingAddress(dialogue.PurposeBalance), state)
}
