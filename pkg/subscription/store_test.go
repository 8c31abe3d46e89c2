package subscription

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type row struct {
	userID  int64
	account concordium.AccountAddress
}

// fakeRepo mimics the subscriptions table with (user_id, account) unique.
type fakeRepo struct {
	mu   sync.Mutex
	rows []row
	err  error
}

func (r *fakeRepo) find(userID int64, account concordium.AccountAddress) int {
	for i, existing := range r.rows {
		if existing.userID == userID && existing.account == account {
			return i
		}
	}
	return -1
}

func (r *fakeRepo) Insert(_ context.Context, userID int64, account concordium.AccountAddress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.find(userID, account) >= 0 {
		return false, nil
	}
	r.rows = append(r.rows, row{userID: userID, account: account})
	return true, nil
}

func (r *fakeRepo) Delete(_ context.Context, userID int64, account concordium.AccountAddress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	i := r.find(userID, account)
	if i < 0 {
		return false, nil
	}
	r.rows = slices.Delete(r.rows, i, i+1)
	return true, nil
}

func (r *fakeRepo) DeleteAll(_ context.Context, userID int64) ([]concordium.AccountAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var removed []concordium.AccountAddress
	kept := r.rows[:0]
	for _, existing := range r.rows {
		if existing.userID == userID {
			removed = append(removed, existing.account)
			continue
		}
		kept = append(kept, existing)
	}
	r.rows = kept
	return removed, nil
}

func (r *fakeRepo) ListByUser(_ context.Context, userID int64) ([]concordium.AccountAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []concordium.AccountAddress
	for _, existing := range r.rows {
		if existing.userID == userID {
			out = append(out, existing.account)
		}
	}
	return out, nil
}

func (r *fakeRepo) ScanGrouped(_ context.Context, fn func(concordium.AccountAddress, []int64) error) error {
	r.mu.Lock()
	grouped := map[concordium.AccountAddress][]int64{}
	for _, existing := range r.rows {
		grouped[existing.account] = append(grouped[existing.account], existing.userID)
	}
	r.mu.Unlock()
	for account, ids := range grouped {
		if err := fn(account, ids); err != nil {
			return err
		}
	}
	return nil
}

type fakeIndex struct {
	mu      sync.Mutex
	sets    map[concordium.AccountAddress]map[int64]struct{}
	failAdd bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{sets: map[concordium.AccountAddress]map[int64]struct{}{}}
}

func (f *fakeIndex) Add(_ context.Context, account concordium.AccountAddress, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return errors.New("cache unavailable")
	}
	if f.sets[account] == nil {
		f.sets[account] = map[int64]struct{}{}
	}
	f.sets[account][userID] = struct{}{}
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, account concordium.AccountAddress, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sets[account], userID)
	if len(f.sets[account]) == 0 {
		delete(f.sets, account)
	}
	return nil
}

func (f *fakeIndex) Members(_ context.Context, account concordium.AccountAddress) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for id := range f.sets[account] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (f *fakeIndex) Replace(_ context.Context, entries map[concordium.AccountAddress][]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = map[concordium.AccountAddress]map[int64]struct{}{}
	for account, ids := range entries {
		if len(ids) == 0 {
			continue
		}
		f.sets[account] = map[int64]struct{}{}
		for _, id := range ids {
			f.sets[account][id] = struct{}{}
		}
	}
	return nil
}

func (f *fakeIndex) snapshot() map[concordium.AccountAddress][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[concordium.AccountAddress][]int64{}
	for account, set := range f.sets {
		for id := range set {
			out[account] = append(out[account], id)
		}
		slices.Sort(out[account])
	}
	return out
}

func addr(seed byte) concordium.AccountAddress {
	var a concordium.AccountAddress
	a[0], a[31] = seed, seed
	return a
}

func newTestStore(t *testing.T) (*Store, *fakeRepo, *fakeIndex) {
	repo := &fakeRepo{}
	index := newFakeIndex()
	return NewStore(repo, index, zaptest.NewLogger(t)), repo, index
}

func TestSubscribeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	applied, err := store.Subscribe(ctx, 100, addr(1))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.Subscribe(ctx, 100, addr(1))
	require.NoError(t, err)
	assert.False(t, applied)

	ids, err := store.SubscriberIDs(ctx, addr(1))
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, ids)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	applied, err := store.Unsubscribe(ctx, 100, addr(1))
	require.NoError(t, err)
	assert.False(t, applied, "missing row is not an error")

	_, err = store.Subscribe(ctx, 100, addr(1))
	require.NoError(t, err)
	_, err = store.Subscribe(ctx, 200, addr(1))
	require.NoError(t, err)

	applied, err = store.Unsubscribe(ctx, 100, addr(1))
	require.NoError(t, err)
	assert.True(t, applied)

	ids, err := store.SubscriberIDs(ctx, addr(1))
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, ids)

	_, err = store.Unsubscribe(ctx, 200, addr(1))
	require.NoError(t, err)
	ids, err = store.SubscriberIDs(ctx, addr(1))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUnsubscribeAll(t *testing.T) {
	ctx := context.Background()
	store, _, index := newTestStore(t)

	for _, a := range []concordium.AccountAddress{addr(1), addr(2), addr(3)} {
		_, err := store.Subscribe(ctx, 7, a)
		require.NoError(t, err)
	}
	_, err := store.Subscribe(ctx, 8, addr(2))
	require.NoError(t, err)

	applied, err := store.UnsubscribeAll(ctx, 7)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, map[concordium.AccountAddress][]int64{addr(2): {8}}, index.snapshot())

	applied, err = store.UnsubscribeAll(ctx, 7)
	require.NoError(t, err)
	assert.False(t, applied)

	accounts, err := store.ListSubscriptions(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestListSubscriptionsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	for _, seed := range []byte{3, 1, 2} {
		_, err := store.Subscribe(ctx, 1, addr(seed))
		require.NoError(t, err)
	}
	accounts, err := store.ListSubscriptions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []concordium.AccountAddress{addr(3), addr(1), addr(2)}, accounts)
}

func TestRepositoryErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	store, repo, index := newTestStore(t)
	repo.err = errors.New("connection reset")

	_, err := store.Subscribe(ctx, 1, addr(1))
	require.ErrorIs(t, err, repo.err)
	_, err = store.Unsubscribe(ctx, 1, addr(1))
	require.ErrorIs(t, err, repo.err)
	_, err = store.UnsubscribeAll(ctx, 1)
	require.ErrorIs(t, err, repo.err)
	_, err = store.ListSubscriptions(ctx, 1)
	require.ErrorIs(t, err, repo.err)

	assert.Empty(t, index.snapshot(), "index must not change when the repository write fails")
}

func TestIndexFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	store, repo, index := newTestStore(t)
	index.failAdd = true

	applied, err := store.Subscribe(ctx, 5, addr(9))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Len(t, repo.rows, 1)
	assert.Empty(t, index.snapshot())

	index.failAdd = false
	require.NoError(t, store.RebuildIndex(ctx))
	assert.Equal(t, map[concordium.AccountAddress][]int64{addr(9): {5}}, index.snapshot())
}

func TestIncrementalIndexMatchesRebuild(t *testing.T) {
	ctx := context.Background()
	store, repo, index := newTestStore(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		user := int64(rng.Intn(6))
		account := addr(byte(rng.Intn(5)))
		var err error
		switch rng.Intn(5) {
		case 0, 1:
			_, err = store.Subscribe(ctx, user, account)
		case 2, 3:
			_, err = store.Unsubscribe(ctx, user, account)
		default:
			_, err = store.UnsubscribeAll(ctx, user)
		}
		require.NoError(t, err)
	}

	incremental := index.snapshot()

	rebuiltIndex := newFakeIndex()
	require.NoError(t, NewStore(repo, rebuiltIndex, zaptest.NewLogger(t)).RebuildIndex(ctx))
	assert.Equal(t, rebuiltIndex.snapshot(), incremental)

	require.NoError(t, store.RebuildIndex(ctx))
	assert.Equal(t, incremental, index.snapshot(), "rebuild is idempotent")
}

func TestRebuildDiscardsStaleEntries(t *testing.T) {
	ctx := context.Background()
	store, _, index := newTestStore(t)
	require.NoError(t, index.Add(ctx, addr(1), 999))

	_, err := store.Subscribe(ctx, 1, addr(2))
	require.NoError(t, err)

	require.NoError(t, store.RebuildIndex(ctx))
	assert.Equal(t, map[concordium.AccountAddress][]int64{addr(2): {1}}, index.snapshot())
}
