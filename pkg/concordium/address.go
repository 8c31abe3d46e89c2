package concordium

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// AccountAddressLength is the size of a raw account address.
const AccountAddressLength = 32

// accountAddressVersion is the base58check version byte of account addresses.
const accountAddressVersion byte = 1

// ErrInvalidAddress is returned for text that is not a valid account address.
var ErrInvalidAddress = errors.New("invalid account address")

// AccountAddress is a raw 32-byte account address. Its canonical text form is base58check.
type AccountAddress [AccountAddressLength]byte

// NewAccountAddress copies b into an AccountAddress.
func NewAccountAddress(b []byte) (AccountAddress, error) {
	var a AccountAddress
	if len(b) != AccountAddressLength {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AccountAddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAccountAddress accepts base58check text, 64-char hex, or `\x`-prefixed hex
// (Postgres bytea text output).
func ParseAccountAddress(s string) (AccountAddress, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return AccountAddress{}, ErrInvalidAddress
	case strings.HasPrefix(s, `\x`):
		return parseHexAddress(s[2:])
	case len(s) == hex.EncodedLen(AccountAddressLength):
		if a, err := parseHexAddress(s); err == nil {
			return a, nil
		}
	}

	raw, version, err := base58.CheckDecode(s)
	if err != nil {
		return AccountAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if version != accountAddressVersion {
		return AccountAddress{}, fmt.Errorf("%w: unexpected version byte %d", ErrInvalidAddress, version)
	}
	return NewAccountAddress(raw)
}

func parseHexAddress(s string) (AccountAddress, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return AccountAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return NewAccountAddress(raw)
}

// String renders the base58check form shown to users.
func (a AccountAddress) String() string {
	return base58.CheckEncode(a[:], accountAddressVersion)
}

// Bytes returns a copy of the raw address.
func (a AccountAddress) Bytes() []byte {
	out := make([]byte, AccountAddressLength)
	copy(out, a[:])
	return out
}

// Hex returns the lowercase hex encoding of the raw address.
func (a AccountAddress) Hex() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero value.
func (a AccountAddress) IsZero() bool {
	return a == AccountAddress{}
}

func (a AccountAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UnmarshalJSON accepts a bare string or an {"type":"AddressAccount","address":...} object.
func (a *AccountAddress) UnmarshalJSON(data []byte) error {
	var addr Address
	if err := addr.UnmarshalJSON(data); err != nil {
		return err
	}
	acc, ok := addr.AccountAddress()
	if !ok {
		return fmt.Errorf("%w: expected account address, got %s", ErrInvalidAddress, addr.Kind)
	}
	*a = acc
	return nil
}

// ContractAddress identifies a smart contract instance.
type ContractAddress struct {
	Index    uint64 `json:"index"`
	Subindex uint64 `json:"subindex"`
}

func (c ContractAddress) String() string {
	return fmt.Sprintf("<%d,%d>", c.Index, c.Subindex)
}

// AddressKind discriminates Address.
type AddressKind string

const (
	AddressKindAccount  AddressKind = "AddressAccount"
	AddressKindContract AddressKind = "AddressContract"
)

// Address is either an account or a contract.
type Address struct {
	Kind     AddressKind
	Account  AccountAddress
	Contract ContractAddress
}

// AccountAddressOf wraps an account address.
func AccountAddressOf(a AccountAddress) Address {
	return Address{Kind: AddressKindAccount, Account: a}
}

// ContractAddressOf wraps a contract address.
func ContractAddressOf(c ContractAddress) Address {
	return Address{Kind: AddressKindContract, Contract: c}
}

// AccountAddress returns the account and true when a is an account address.
func (a Address) AccountAddress() (AccountAddress, bool) {
	if a.Kind != AddressKindAccount {
		return AccountAddress{}, false
	}
	return a.Account, true
}

func (a Address) String() string {
	if a.Kind == AddressKindContract {
		return a.Contract.String()
	}
	return a.Account.String()
}

type addressJSON struct {
	Type    AddressKind     `json:"type"`
	Address json.RawMessage `json:"address"`
}

func (a Address) MarshalJSON() ([]byte, error) {
	var inner any = a.Account.String()
	if a.Kind == AddressKindContract {
		inner = a.Contract
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(addressJSON{Type: a.Kind, Address: raw})
}

func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		acc, err := ParseAccountAddress(s)
		if err != nil {
			return err
		}
		*a = AccountAddressOf(acc)
		return nil
	}

	var obj addressJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	switch obj.Type {
	case AddressKindAccount:
		var s string
		if err := json.Unmarshal(obj.Address, &s); err != nil {
			return fmt.Errorf("decode account address: %w", err)
		}
		acc, err := ParseAccountAddress(s)
		if err != nil {
			return err
		}
		*a = AccountAddressOf(acc)
	case AddressKindContract:
		var c ContractAddress
		if err := json.Unmarshal(obj.Address, &c); err != nil {
			return fmt.Errorf("decode contract address: %w", err)
		}
		*a = ContractAddressOf(c)
	default:
		return fmt.Errorf("%w: unknown address type %q", ErrInvalidAddress, obj.Type)
	}
	return nil
}
