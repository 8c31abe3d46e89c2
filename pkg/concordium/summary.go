package concordium

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedSummary is returned when a payload is not a block summary.
var ErrMalformedSummary = errors.New("malformed block summary")

// BlockSummary is either a *TransactionSummary or a *SpecialOutcome.
type BlockSummary interface {
	isBlockSummary()
}

// TransactionSummaryKind is the outer transaction category.
type TransactionSummaryKind string

const (
	AccountTransaction              TransactionSummaryKind = "accountTransaction"
	CredentialDeploymentTransaction TransactionSummaryKind = "credentialDeploymentTransaction"
	UpdateTransaction               TransactionSummaryKind = "updateTransaction"
)

// TransactionType is the account transaction type in camelCase.
type TransactionType string

const (
	TxDeployModule                    TransactionType = "deployModule"
	TxInitContract                    TransactionType = "initContract"
	TxUpdate                          TransactionType = "update"
	TxTransfer                        TransactionType = "transfer"
	TxAddBaker                        TransactionType = "addBaker"
	TxRemoveBaker                     TransactionType = "removeBaker"
	TxUpdateBakerStake                TransactionType = "updateBakerStake"
	TxUpdateBakerRestakeEarnings      TransactionType = "updateBakerRestakeEarnings"
	TxUpdateBakerKeys                 TransactionType = "updateBakerKeys"
	TxUpdateCredentialKeys            TransactionType = "updateCredentialKeys"
	TxEncryptedAmountTransfer         TransactionType = "encryptedAmountTransfer"
	TxTransferToEncrypted             TransactionType = "transferToEncrypted"
	TxTransferToPublic                TransactionType = "transferToPublic"
	TxTransferWithSchedule            TransactionType = "transferWithSchedule"
	TxUpdateCredentials               TransactionType = "updateCredentials"
	TxRegisterData                    TransactionType = "registerData"
	TxTransferWithMemo                TransactionType = "transferWithMemo"
	TxEncryptedAmountTransferWithMemo TransactionType = "encryptedAmountTransferWithMemo"
	TxTransferWithScheduleAndMemo     TransactionType = "transferWithScheduleAndMemo"
)

// TransactionSummaryType is {"type": kind, "contents": type}.
type TransactionSummaryType struct {
	Kind     TransactionSummaryKind `json:"type"`
	Contents TransactionType        `json:"contents"`
}

// IsTransfer reports whether this is one of the plain or scheduled CCD transfers.
func (t TransactionSummaryType) IsTransfer() bool {
	if t.Kind != AccountTransaction {
		return false
	}
	switch t.Contents {
	case TxTransfer, TxTransferWithMemo, TxTransferWithSchedule, TxTransferWithScheduleAndMemo:
		return true
	}
	return false
}

// OutcomeStatus is success or reject.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeReject  OutcomeStatus = "reject"
)

// TransactionOutcome carries events only when the transaction succeeded.
type TransactionOutcome struct {
	Outcome      OutcomeStatus
	Events       Events
	RejectReason json.RawMessage
}

func (o *TransactionOutcome) UnmarshalJSON(data []byte) error {
	var raw struct {
		Outcome      OutcomeStatus   `json:"outcome"`
		Events       json.RawMessage `json:"events"`
		RejectReason json.RawMessage `json:"rejectReason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode outcome: %w", err)
	}

	out := TransactionOutcome{Outcome: raw.Outcome, RejectReason: raw.RejectReason}
	switch raw.Outcome {
	case OutcomeSuccess:
		if len(raw.Events) > 0 && !bytes.Equal(raw.Events, []byte("null")) {
			if err := out.Events.UnmarshalJSON(raw.Events); err != nil {
				return err
			}
		}
	case OutcomeReject:
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrMalformedSummary, raw.Outcome)
	}
	*o = out
	return nil
}

// TransactionSummary is the outcome of one transaction in a block.
type TransactionSummary struct {
	Sender     *AccountAddress        `json:"sender"`
	Hash       string                 `json:"hash"`
	Cost       Amount                 `json:"cost"`
	EnergyCost uint64                 `json:"energyCost"`
	Type       TransactionSummaryType `json:"type"`
	Result     TransactionOutcome     `json:"result"`
	Index      uint64                 `json:"index"`
}

func (*TransactionSummary) isBlockSummary() {}

// Succeeded reports whether the transaction was applied.
func (t *TransactionSummary) Succeeded() bool {
	return t.Result.Outcome == OutcomeSuccess
}

// Special outcome tags.
const (
	SpecialBakingRewards       = "BakingRewards"
	SpecialMint                = "Mint"
	SpecialFinalizationRewards = "FinalizationRewards"
	SpecialBlockReward         = "BlockReward"
)

// AccountAmount pairs an account with an amount.
type AccountAmount struct {
	Address AccountAddress `json:"address"`
	Amount  Amount         `json:"amount"`
}

// SpecialOutcome is a non-transaction block outcome such as a reward payout.
// Unknown tags are kept with Tag set and no payload.
type SpecialOutcome struct {
	Tag                 string          `json:"tag"`
	BakerRewards        []AccountAmount `json:"bakerRewards,omitempty"`
	FinalizationRewards []AccountAmount `json:"finalizationRewards,omitempty"`
}

func (*SpecialOutcome) isBlockSummary() {}

func (s *SpecialOutcome) UnmarshalJSON(data []byte) error {
	var head struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode special outcome: %w", err)
	}
	out := SpecialOutcome{Tag: head.Tag}
	switch head.Tag {
	case SpecialBakingRewards:
		var body struct {
			BakerRewards []AccountAmount `json:"bakerRewards"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("decode %s: %w", head.Tag, err)
		}
		out.BakerRewards = body.BakerRewards
	case SpecialFinalizationRewards:
		var body struct {
			FinalizationRewards []AccountAmount `json:"finalizationRewards"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("decode %s: %w", head.Tag, err)
		}
		out.FinalizationRewards = body.FinalizationRewards
	}
	*s = out
	return nil
}

// RewardFor returns the baking reward paid to account, if any.
func (s *SpecialOutcome) RewardFor(account AccountAddress) (AccountAmount, bool) {
	if s.Tag != SpecialBakingRewards {
		return AccountAmount{}, false
	}
	for _, r := range s.BakerRewards {
		if r.Address == account {
			return r, true
		}
	}
	return AccountAmount{}, false
}

// DecodeBlockSummary decodes {"Left": tx} | {"Right": special}. Untagged objects are
// recognised by shape: "hash" means a transaction, "tag" a special outcome.
func DecodeBlockSummary(data []byte) (BlockSummary, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}

	if left, ok := fields["Left"]; ok {
		return decodeTransactionSummary(left)
	}
	if right, ok := fields["Right"]; ok {
		return decodeSpecialOutcome(right)
	}
	if _, ok := fields["hash"]; ok {
		return decodeTransactionSummary(data)
	}
	if _, ok := fields["tag"]; ok {
		return decodeSpecialOutcome(data)
	}
	return nil, fmt.Errorf("%w: neither transaction nor special outcome", ErrMalformedSummary)
}

func decodeTransactionSummary(data []byte) (*TransactionSummary, error) {
	var tx TransactionSummary
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: transaction: %v", ErrMalformedSummary, err)
	}
	return &tx, nil
}

func decodeSpecialOutcome(data []byte) (*SpecialOutcome, error) {
	var s SpecialOutcome
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: special outcome: %v", ErrMalformedSummary, err)
	}
	return &s, nil
}
