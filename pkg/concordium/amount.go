package concordium

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// microCCDExp scales micro-CCD to CCD.
const microCCDExp = -6

// Amount is a CCD amount in micro-CCD.
type Amount uint64

// ParseAmount parses a decimal string of micro-CCD.
func ParseAmount(s string) (Amount, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount(n), nil
}

// Decimal returns the amount in CCD.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), microCCDExp)
}

// String renders the amount in CCD with six decimals, e.g. "1.000000".
func (a Amount) String() string {
	return a.Decimal().StringFixed(-microCCDExp)
}

// CCD renders the amount followed by the currency unit.
func (a Amount) CCD() string {
	return a.String() + " CCD"
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	*a = Amount(n)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(a), 10))
}

// ScheduledRelease is one tranche of a scheduled transfer.
type ScheduledRelease struct {
	// ReleaseTime is milliseconds since the unix epoch.
	ReleaseTime uint64
	Amount      Amount
}

// AmountWithSchedule is an ordered release schedule.
type AmountWithSchedule []ScheduledRelease

// Total sums all scheduled tranches.
func (s AmountWithSchedule) Total() Amount {
	var total Amount
	for _, r := range s {
		total += r.Amount
	}
	return total
}

// UnmarshalJSON decodes [[releaseTimeMillis, "amount"], ...].
func (s *AmountWithSchedule) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("decode amount schedule: %w", err)
	}
	out := make(AmountWithSchedule, 0, len(pairs))
	for i, p := range pairs {
		var r ScheduledRelease
		if err := json.Unmarshal(p[0], &r.ReleaseTime); err != nil {
			return fmt.Errorf("decode release %d time: %w", i, err)
		}
		if err := r.Amount.UnmarshalJSON(p[1]); err != nil {
			return fmt.Errorf("decode release %d amount: %w", i, err)
		}
		out = append(out, r)
	}
	*s = out
	return nil
}

func (s AmountWithSchedule) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, 0, len(s))
	for _, r := range s {
		pairs = append(pairs, [2]any{r.ReleaseTime, r.Amount})
	}
	return json.Marshal(pairs)
}
