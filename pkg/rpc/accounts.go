package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/congruity-bot/congruity/pkg/concordium"
)

// BalanceClient looks up account balances at the node's best block.
type BalanceClient interface {
	AccountBalance(ctx context.Context, address concordium.AccountAddress) (concordium.Amount, bool, error)
}

type consensusStatus struct {
	BestBlock string `json:"bestBlock"`
}

type accountInfo struct {
	AccountAmount *concordium.Amount `json:"accountAmount"`
}

// BestBlock returns the hash of the node's current best block.
func (c *HTTPClient) BestBlock(ctx context.Context) (string, error) {
	var status consensusStatus
	if err := c.getJSON(ctx, consensusStatusPath, &status); err != nil {
		return "", fmt.Errorf("consensus status: %w", err)
	}
	if status.BestBlock == "" {
		return "", fmt.Errorf("consensus status: empty best block")
	}
	return status.BestBlock, nil
}

// AccountBalance returns the public balance of address at the best block.
// found is false when the node does not know the account.
func (c *HTTPClient) AccountBalance(ctx context.Context, address concordium.AccountAddress) (concordium.Amount, bool, error) {
	block, err := c.BestBlock(ctx)
	if err != nil {
		return 0, false, err
	}

	var raw json.RawMessage
	path := fmt.Sprintf(accountInfoPath, url.PathEscape(block), url.PathEscape(address.String()))
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return 0, false, fmt.Errorf("account info %s: %w", address, err)
	}

	// Anything but an object means the account is unknown.
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return 0, false, nil
	}
	var info accountInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, false, fmt.Errorf("decode account info %s: %w", address, err)
	}
	if info.AccountAmount == nil {
		return 0, false, nil
	}
	return *info.AccountAmount, true, nil
}
