package subscription

import (
	"context"
	"fmt"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/congruity-bot/congruity/pkg/logging"
	"go.uber.org/zap"
)

// Repository is the authoritative subscriptions table.
type Repository interface {
	// Insert adds (userID, account); false when the row already existed.
	Insert(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error)
	// Delete removes (userID, account); false when there was no such row.
	Delete(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error)
	// DeleteAll removes every row of userID and returns the accounts that were removed.
	DeleteAll(ctx context.Context, userID int64) ([]concordium.AccountAddress, error)
	// ListByUser returns the accounts of userID in subscription order.
	ListByUser(ctx context.Context, userID int64) ([]concordium.AccountAddress, error)
	// ScanGrouped calls fn once per subscribed account with all of its subscribers.
	ScanGrouped(ctx context.Context, fn func(account concordium.AccountAddress, userIDs []int64) error) error
}

// Index is the derived account -> subscribers lookup.
type Index interface {
	Add(ctx context.Context, account concordium.AccountAddress, userID int64) error
	Remove(ctx context.Context, account concordium.AccountAddress, userID int64) error
	Members(ctx context.Context, account concordium.AccountAddress) ([]int64, error)
	// Replace atomically clears the whole index and installs entries.
	Replace(ctx context.Context, entries map[concordium.AccountAddress][]int64) error
}

// Store keeps the repository authoritative and the index in step with it.
// Index failures after a successful repository write are logged, never returned.
type Store struct {
	repo   Repository
	index  Index
	logger *zap.Logger
}

// NewStore wires a repository and its derived index.
func NewStore(repo Repository, index Index, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		index:  index,
		logger: logging.Component(logger, "subscription_store"),
	}
}

// Subscribe records the subscription. A duplicate returns false without error.
func (s *Store) Subscribe(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error) {
	applied, err := s.repo.Insert(ctx, userID, account)
	if err != nil {
		return false, fmt.Errorf("subscribe %d to %s: %w", userID, account, err)
	}
	if !applied {
		return false, nil
	}
	if err := s.index.Add(ctx, account, userID); err != nil {
		s.logger.Error("Failed to add subscriber to index",
			zap.Int64("user_id", userID),
			zap.Stringer("account", account),
			zap.Error(err))
	}
	return true, nil
}

// Unsubscribe removes the subscription. A missing row returns false without error.
func (s *Store) Unsubscribe(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error) {
	applied, err := s.repo.Delete(ctx, userID, account)
	if err != nil {
		return false, fmt.Errorf("unsubscribe %d from %s: %w", userID, account, err)
	}
	if !applied {
		return false, nil
	}
	if err := s.index.Remove(ctx, account, userID); err != nil {
		s.logger.Error("Failed to remove subscriber from index",
			zap.Int64("user_id", userID),
			zap.Stringer("account", account),
			zap.Error(err))
	}
	return true, nil
}

// UnsubscribeAll removes every subscription of userID; false when there were none.
func (s *Store) UnsubscribeAll(ctx context.Context, userID int64) (bool, error) {
	accounts, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe %d from all: %w", userID, err)
	}
	for _, account := range accounts {
		if err := s.index.Remove(ctx, account, userID); err != nil {
			s.logger.Error("Failed to remove subscriber from index",
				zap.Int64("user_id", userID),
				zap.Stringer("account", account),
				zap.Error(err))
		}
	}
	return len(accounts) > 0, nil
}

// ListSubscriptions reads the user's accounts from the repository.
func (s *Store) ListSubscriptions(ctx context.Context, userID int64) ([]concordium.AccountAddress, error) {
	accounts, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of %d: %w", userID, err)
	}
	return accounts, nil
}

// SubscriberIDs looks up the subscribers of account in the index.
// An empty result means nobody is subscribed.
func (s *Store) SubscriberIDs(ctx context.Context, account concordium.AccountAddress) ([]int64, error) {
	ids, err := s.index.Members(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("subscribers of %s: %w", account, err)
	}
	return ids, nil
}

// RebuildIndex overwrites the index with the repository contents. Safe to run at any time.
func (s *Store) RebuildIndex(ctx context.Context) error {
	entries := make(map[concordium.AccountAddress][]int64)
	subscribers := 0
	err := s.repo.ScanGrouped(ctx, func(account concordium.AccountAddress, userIDs []int64) error {
		entries[account] = userIDs
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan subscriptions: %w", err)
	}
	for _, ids := range entries {
		subscribers += len(ids)
	}

	if err := s.index.Replace(ctx, entries); err != nil {
		return fmt.Errorf("replace subscriber index: %w", err)
	}

	s.logger.Info("Subscriber index rebuilt",
		zap.Int("accounts", len(entries)),
		zap.Int("subscriptions", subscribers))
	return nil
}
