package concordium

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned for change-feed payloads that cannot be split
// into index id, account and summary.
var ErrMalformedPayload = errors.New("malformed change-feed payload")

// AccountUpdate is one account-transaction-index row with its decoded summary.
type AccountUpdate struct {
	IndexID int64
	Account AccountAddress
	Summary BlockSummary
}

// RawAccountUpdate is an account update whose summary has not been decoded yet.
type RawAccountUpdate struct {
	IndexID int64
	// Account is the raw address as stored (bytes) or as text (hex/base58).
	Account []byte
	Summary json.RawMessage
}

// Decode resolves the account and decodes the summary.
func (r RawAccountUpdate) Decode() (AccountUpdate, error) {
	account, err := NewAccountAddress(r.Account)
	if err != nil {
		account, err = ParseAccountAddress(string(r.Account))
		if err != nil {
			return AccountUpdate{IndexID: r.IndexID}, fmt.Errorf("update %d: %w", r.IndexID, err)
		}
	}
	summary, err := DecodeBlockSummary(r.Summary)
	if err != nil {
		return AccountUpdate{IndexID: r.IndexID, Account: account}, fmt.Errorf("update %d: %w", r.IndexID, err)
	}
	return AccountUpdate{IndexID: r.IndexID, Account: account, Summary: summary}, nil
}

type feedJSON struct {
	IndexID json.Number     `json:"index_id"`
	Account string          `json:"account"`
	Summary json.RawMessage `json:"summary"`
}

// ParseFeedPayload splits a change-feed payload without decoding the summary.
// Two encodings are accepted:
//
//	{"index_id": 42, "account": "<hex|base58>", "summary": {...}}
//	42|<hex|\xhex|base58>|{...}
func ParseFeedPayload(payload string) (RawAccountUpdate, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return RawAccountUpdate{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
		dec.UseNumber()
		var doc feedJSON
		if err := dec.Decode(&doc); err != nil {
			return RawAccountUpdate{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		id, err := doc.IndexID.Int64()
		if err != nil {
			return RawAccountUpdate{}, fmt.Errorf("%w: index_id: %v", ErrMalformedPayload, err)
		}
		if doc.Account == "" || len(doc.Summary) == 0 {
			return RawAccountUpdate{}, fmt.Errorf("%w: missing account or summary", ErrMalformedPayload)
		}
		return RawAccountUpdate{IndexID: id, Account: []byte(doc.Account), Summary: doc.Summary}, nil
	}

	parts := strings.SplitN(trimmed, "|", 3)
	if len(parts) != 3 {
		return RawAccountUpdate{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedPayload, len(parts))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return RawAccountUpdate{}, fmt.Errorf("%w: index_id: %v", ErrMalformedPayload, err)
	}
	return RawAccountUpdate{
		IndexID: id,
		Account: []byte(strings.TrimSpace(parts[1])),
		Summary: json.RawMessage(parts[2]),
	}, nil
}

// DecodeFeedPayload parses and fully decodes a change-feed payload.
func DecodeFeedPayload(payload string) (AccountUpdate, error) {
	raw, err := ParseFeedPayload(payload)
	if err != nil {
		return AccountUpdate{}, err
	}
	return raw.Decode()
}
