package notify

import (
	"github.com/congruity-bot/congruity/pkg/concordium"
)

// EventFor returns the first transfer event whose recipient is the account address.
// Contract recipients never match. Later matching events in the same list are ignored.
func EventFor(events []concordium.Event, address concordium.AccountAddress) (concordium.Event, bool) {
	for _, event := range events {
		var to concordium.Address
		switch e := event.(type) {
		case concordium.Transferred:
			to = e.To
		case concordium.TransferredWithSchedule:
			to = e.To
		default:
			continue
		}
		if acc, ok := to.AccountAddress(); ok && acc == address {
			return event, true
		}
	}
	return nil, false
}

// Matcher decides whether an account update is worth a notification and renders it.
type Matcher struct {
	renderer *Renderer
}

// NewMatcher returns a Matcher that renders with r.
func NewMatcher(r *Renderer) *Matcher {
	return &Matcher{renderer: r}
}

// Match returns the notification text for update, or false when nothing relevant to
// update.Account happened. Only successful transfers and baking rewards qualify.
func (m *Matcher) Match(update concordium.AccountUpdate) (string, bool) {
	switch s := update.Summary.(type) {
	case *concordium.TransactionSummary:
		if s == nil || !s.Type.IsTransfer() || !s.Succeeded() {
			return "", false
		}
		event, ok := EventFor(s.Result.Events, update.Account)
		if !ok {
			return "", false
		}
		return m.renderer.Transfer(event, s)
	case *concordium.SpecialOutcome:
		if s == nil {
			return "", false
		}
		reward, ok := s.RewardFor(update.Account)
		if !ok {
			return "", false
		}
		return m.renderer.BakerReward(reward), true
	}
	return "", false
}
