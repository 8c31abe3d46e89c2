package notify

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/congruity-bot/congruity/pkg/concordium"
	"github.com/congruity-bot/congruity/pkg/utils"
)

const (
	abbrevLen   = 8
	personEmoji = "👤"
)

// Renderer formats notification texts as Telegram HTML.
type Renderer struct {
	Links Links
}

// NewRenderer returns a Renderer for links.
func NewRenderer(links Links) *Renderer {
	return &Renderer{Links: links}
}

// AccountLink abbreviates an account to its first characters and links it to its balance page.
func (r *Renderer) AccountLink(account concordium.AccountAddress, withEmoji bool) string {
	text := account.String()
	label := utils.Prefix(text, abbrevLen)
	if withEmoji {
		label = personEmoji + label
	}
	return link(r.Links.AccountBalanceURL+"/"+url.PathEscape(text), label)
}

// AddressLink renders accounts as links; contracts are not linkable and are shown as escaped text.
func (r *Renderer) AddressLink(addr concordium.Address, withEmoji bool) string {
	if acc, ok := addr.AccountAddress(); ok {
		return r.AccountLink(acc, withEmoji)
	}
	return html.EscapeString(addr.String())
}

// TxHashLink abbreviates a transaction hash and links it to the dashboard.
// The hash comes from the payload and is escaped like any other text.
func (r *Renderer) TxHashLink(hash string) string {
	return link(r.Links.DashboardURL+"/lookup/"+url.PathEscape(hash), utils.Prefix(hash, abbrevLen))
}

// link builds an anchor whose href and label cannot break out of the tag.
func link(href, label string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(label))
}

// Transfer renders a plain or scheduled transfer notification.
func (r *Renderer) Transfer(event concordium.Event, tx *concordium.TransactionSummary) (string, bool) {
	var (
		verb     string
		amount   concordium.Amount
		from, to concordium.Address
	)
	switch e := event.(type) {
	case concordium.Transferred:
		verb, amount, from, to = "Transferred", e.Amount, e.From, e.To
	case concordium.TransferredWithSchedule:
		verb, amount, from, to = "Transferred with schedule", e.Amount.Total(), e.From, e.To
	default:
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s from %s to %s\n", verb, amount.CCD(), r.AddressLink(from, true), r.AddressLink(to, true))
	fmt.Fprintf(&b, "Tx Hash: %s\n", r.TxHashLink(tx.Hash))
	if tx.Sender != nil {
		fmt.Fprintf(&b, "Sender: %s\n", r.AccountLink(*tx.Sender, false))
	}
	fmt.Fprintf(&b, "Cost: %s", tx.Cost.CCD())
	return b.String(), true
}

// BakerReward renders a baking reward notification.
func (r *Renderer) BakerReward(reward concordium.AccountAmount) string {
	return fmt.Sprintf("Baker reward %s to %s", reward.Amount.CCD(), r.AccountLink(reward.Address, true))
}
