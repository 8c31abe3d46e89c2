package concordium

import (
	"encoding/json"
	"fmt"
)

// Event tags as they appear in transaction outcomes.
const (
	TagModuleDeployed           = "ModuleDeployed"
	TagContractInitialized      = "ContractInitialized"
	TagUpdated                  = "Updated"
	TagTransferred              = "Transferred"
	TagAccountCreated           = "AccountCreated"
	TagCredentialDeployed       = "CredentialDeployed"
	TagBakerAdded               = "BakerAdded"
	TagBakerRemoved             = "BakerRemoved"
	TagBakerStakeIncreased      = "BakerStakeIncreased"
	TagBakerStakeDecreased      = "BakerStakeDecreased"
	TagBakerSetRestakeEarnings  = "BakerSetRestakeEarnings"
	TagBakerKeysUpdated         = "BakerKeysUpdated"
	TagCredentialKeysUpdated    = "CredentialKeysUpdated"
	TagNewEncryptedAmount       = "NewEncryptedAmount"
	TagEncryptedAmountsRemoved  = "EncryptedAmountsRemoved"
	TagAmountAddedByDecryption  = "AmountAddedByDecryption"
	TagEncryptedSelfAmountAdded = "EncryptedSelfAmountAdded"
	TagUpdateEnqueued           = "UpdateEnqueued"
	TagTransferredWithSchedule  = "TransferredWithSchedule"
	TagCredentialsUpdated       = "CredentialsUpdated"
	TagDataRegistered           = "DataRegistered"
	TagTransferMemo             = "TransferMemo"
)

// Event is one entry of a successful transaction outcome.
// Implementations are the concrete types in this file; anything unknown is UnhandledEvent.
type Event interface {
	Tag() string
}

// Transferred moves CCD between addresses.
type Transferred struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Amount Amount  `json:"amount"`
}

// TransferredWithSchedule moves CCD released over time.
type TransferredWithSchedule struct {
	From   Address            `json:"from"`
	To     Address            `json:"to"`
	Amount AmountWithSchedule `json:"amount"`
}

// TransferMemo carries the hex-encoded memo of a *WithMemo transfer.
type TransferMemo struct {
	Memo string `json:"memo"`
}

// BakerEvent covers the baker lifecycle events; only the common fields are kept.
type BakerEvent struct {
	EventTag string         `json:"-"`
	BakerID  uint64         `json:"bakerId"`
	Account  AccountAddress `json:"account"`
}

// AccountCreated announces a new account.
type AccountCreated struct {
	Account AccountAddress `json:"contents"`
}

// InertEvent is a recognised event that never produces a notification.
// The payload is kept verbatim.
type InertEvent struct {
	EventTag string
	Raw      json.RawMessage
}

// UnhandledEvent is an event whose tag is not recognised.
type UnhandledEvent struct {
	EventTag string
	Raw      json.RawMessage
}

func (Transferred) Tag() string             { return TagTransferred }
func (TransferredWithSchedule) Tag() string { return TagTransferredWithSchedule }
func (TransferMemo) Tag() string            { return TagTransferMemo }
func (AccountCreated) Tag() string          { return TagAccountCreated }
func (e BakerEvent) Tag() string            { return e.EventTag }
func (e InertEvent) Tag() string            { return e.EventTag }
func (e UnhandledEvent) Tag() string        { return e.EventTag }

var inertTags = map[string]struct{}{
	TagModuleDeployed:           {},
	TagContractInitialized:      {},
	TagUpdated:                  {},
	TagCredentialDeployed:       {},
	TagCredentialKeysUpdated:    {},
	TagNewEncryptedAmount:       {},
	TagEncryptedAmountsRemoved:  {},
	TagAmountAddedByDecryption:  {},
	TagEncryptedSelfAmountAdded: {},
	TagUpdateEnqueued:           {},
	TagCredentialsUpdated:       {},
	TagDataRegistered:           {},
}

var bakerTags = map[string]struct{}{
	TagBakerAdded:              {},
	TagBakerRemoved:            {},
	TagBakerStakeIncreased:     {},
	TagBakerStakeDecreased:     {},
	TagBakerSetRestakeEarnings: {},
	TagBakerKeysUpdated:        {},
}

// inert keeps events that matter only for their tag. A schema drift in one of
// them must not cost the whole summary.
func inert(tag string, data json.RawMessage) InertEvent {
	return InertEvent{EventTag: tag, Raw: append(json.RawMessage(nil), data...)}
}

// DecodeEvent decodes one tagged event. Unknown tags decode to UnhandledEvent;
// an error is returned only when a transfer event carries a malformed payload.
func DecodeEvent(data json.RawMessage) (Event, error) {
	var head struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event tag: %w", err)
	}

	switch head.Tag {
	case TagTransferred:
		var e Transferred
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Tag, err)
		}
		return e, nil
	case TagTransferredWithSchedule:
		var e TransferredWithSchedule
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Tag, err)
		}
		return e, nil
	case TagTransferMemo:
		var e TransferMemo
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Tag, err)
		}
		return e, nil
	case TagAccountCreated:
		var e AccountCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return inert(head.Tag, data), nil
		}
		return e, nil
	}

	if _, ok := bakerTags[head.Tag]; ok {
		var e BakerEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return inert(head.Tag, data), nil
		}
		e.EventTag = head.Tag
		return e, nil
	}
	if _, ok := inertTags[head.Tag]; ok {
		return inert(head.Tag, data), nil
	}
	return UnhandledEvent{EventTag: head.Tag, Raw: append(json.RawMessage(nil), data...)}, nil
}

// Events decodes a JSON array of events. Decoding never fails on an unknown tag.
type Events []Event

func (es *Events) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}
	out := make(Events, 0, len(raws))
	for i, raw := range raws {
		e, err := DecodeEvent(raw)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, e)
	}
	*es = out
	return nil
}
