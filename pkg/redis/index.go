package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/congruity-bot/congruity/pkg/concordium"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/redis/go-redis/v9"
)

// AccountKeyPrefix prefixes the subscriber set of each account.
const AccountKeyPrefix = "account:"

const scanBatch = 500

// AccountKey is the set key holding the subscribers of account.
func AccountKey(account concordium.AccountAddress) string {
	return AccountKeyPrefix + account.String()
}

// SubscriberIndex stores account -> subscriber ids as redis sets.
// Every mutation is a single SADD/SREM so no application locking is needed.
type SubscriberIndex struct {
	client *Client
}

// NewSubscriberIndex returns the index backed by client.
func NewSubscriberIndex(client *Client) *SubscriberIndex {
	return &SubscriberIndex{client: client}
}

func (s *SubscriberIndex) Add(ctx context.Context, account concordium.AccountAddress, userID int64) error {
	if err := s.client.client.SAdd(ctx, AccountKey(account), userID).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", AccountKey(account), err)
	}
	return nil
}

// Remove drops userID; redis deletes the key once the set is empty.
func (s *SubscriberIndex) Remove(ctx context.Context, account concordium.AccountAddress, userID int64) error {
	if err := s.client.client.SRem(ctx, AccountKey(account), userID).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", AccountKey(account), err)
	}
	return nil
}

// Members returns the subscriber ids of account in ascending order.
func (s *SubscriberIndex) Members(ctx context.Context, account concordium.AccountAddress) ([]int64, error) {
	members, err := s.client.client.SMembers(ctx, AccountKey(account)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", AccountKey(account), err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.client.logger.Warn("Skipping non-numeric subscriber id")
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Replace deletes every account:* key and writes entries in one MULTI/EXEC.
func (s *SubscriberIndex) Replace(ctx context.Context, entries map[concordium.AccountAddress][]int64) error {
	stale, err := s.keys(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for batch := range slices.Chunk(stale, scanBatch) {
			pipe.Del(ctx, batch...)
		}
		for account, ids := range entries {
			if len(ids) == 0 {
				continue
			}
			members := make([]interface{}, 0, len(ids))
			for _, id := range ids {
				members = append(members, id)
			}
			pipe.SAdd(ctx, AccountKey(account), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace subscriber index: %w", err)
	}
	return nil
}

func (s *SubscriberIndex) keys(ctx context.Context) ([]string, error) {
	found := mapset.NewThreadUnsafeSet[string]()
	iter := s.client.client.Scan(ctx, 0, AccountKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		// SCAN may return a key more than once.
		found.Add(iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s*: %w", AccountKeyPrefix, err)
	}
	keys := found.ToSlice()
	slices.Sort(keys)
	return keys, nil
}
