package postgres

import (
	"context"
	"fmt"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/jackc/pgx/v5"
)

// Backlog reads account-transaction-index rows from the transaction logging tables.
type Backlog struct {
	client *Client
}

// NewBacklog returns a Backlog over client.
func NewBacklog(client *Client) *Backlog {
	return &Backlog{client: client}
}

// AccountUpdatesSince returns rows with id > cursor for subscribed accounts, ascending by id.
// Summaries are returned undecoded so one bad row cannot fail the whole batch.
func (b *Backlog) AccountUpdatesSince(ctx context.Context, cursor int64) ([]concordium.RawAccountUpdate, error) {
	query := `
		SELECT ati.id, ati.account, summaries.summary
		FROM ati
		JOIN summaries ON ati.summary = summaries.id
		WHERE ati.id > $1
		  AND ati.account IN (SELECT account FROM subscriptions)
		ORDER BY ati.id ASC
	`

	rows, err := b.client.GetExecutor(ctx).Query(ctx, query, cursor)
	if err != nil {
		return nil, fmt.Errorf("query account updates since %d: %w", cursor, err)
	}

	updates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (concordium.RawAccountUpdate, error) {
		var u concordium.RawAccountUpdate
		if err := row.Scan(&u.IndexID, &u.Account, &u.Summary); err != nil {
			return u, err
		}
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan account updates since %d: %w", cursor, err)
	}
	return updates, nil
}
