package postgres

import (
	"context"
	"fmt"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/jackc/pgx/v5"
)

// Subscriptions is the authoritative subscriptions table.
type Subscriptions struct {
	client *Client
}

// NewSubscriptions returns the repository backed by client.
func NewSubscriptions(client *Client) *Subscriptions {
	return &Subscriptions{client: client}
}

// Insert adds a row. ON CONFLICT DO NOTHING makes a duplicate return false.
func (s *Subscriptions) Insert(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error) {
	query := `
		INSERT INTO subscriptions (user_id, account)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	var id int32
	err := s.client.GetExecutor(ctx).QueryRow(ctx, query, userID, account.Bytes()).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	return true, nil
}

// Delete removes one row; false when it did not exist.
func (s *Subscriptions) Delete(ctx context.Context, userID int64, account concordium.AccountAddress) (bool, error) {
	query := `
		DELETE FROM subscriptions
		WHERE user_id = $1 AND account = $2
		RETURNING id
	`

	var id int32
	err := s.client.GetExecutor(ctx).QueryRow(ctx, query, userID, account.Bytes()).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return true, nil
}

// DeleteAll removes every row of userID and returns their accounts.
func (s *Subscriptions) DeleteAll(ctx context.Context, userID int64) ([]concordium.AccountAddress, error) {
	query := `
		DELETE FROM subscriptions
		WHERE user_id = $1
		RETURNING account
	`

	rows, err := s.client.GetExecutor(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("delete subscriptions: %w", err)
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, fmt.Errorf("delete subscriptions: %w", err)
	}
	return accounts, nil
}

// ListByUser returns the accounts of userID in subscription order.
func (s *Subscriptions) ListByUser(ctx context.Context, userID int64) ([]concordium.AccountAddress, error) {
	query := `
		SELECT account
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY id
	`

	rows, err := s.client.GetExecutor(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return accounts, nil
}

// ScanGrouped streams all subscriptions grouped by account.
func (s *Subscriptions) ScanGrouped(ctx context.Context, fn func(concordium.AccountAddress, []int64) error) error {
	query := `
		SELECT account, array_agg(user_id ORDER BY user_id)
		FROM subscriptions
		GROUP BY account
	`

	rows, err := s.client.GetExecutor(ctx).Query(ctx, query)
	if err != nil {
		return fmt.Errorf("group subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw     []byte
			userIDs []int64
		)
		if err := rows.Scan(&raw, &userIDs); err != nil {
			return fmt.Errorf("scan grouped subscription: %w", err)
		}
		account, err := concordium.NewAccountAddress(raw)
		if err != nil {
			return fmt.Errorf("scan grouped subscription: %w", err)
		}
		if err := fn(account, userIDs); err != nil {
			return err
		}
	}
	return rows.Err()
}

func collectAccounts(rows pgx.Rows) ([]concordium.AccountAddress, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (concordium.AccountAddress, error) {
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return concordium.AccountAddress{}, err
		}
		return concordium.NewAccountAddress(raw)
	})
}
