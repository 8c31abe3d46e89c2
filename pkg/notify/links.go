package notify

import (
	"fmt"
	"strings"
)

// Network selects the explorer links rendered into messages.
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// Links holds the base URLs used for account and transaction hyperlinks.
type Links struct {
	AccountBalanceURL string
	DashboardURL      string
}

var networkLinks = map[Network]Links{
	Testnet: {
		AccountBalanceURL: "https://wallet-proxy.testnet.concordium.com/v0/accBalance",
		DashboardURL:      "https://dashboard.testnet.concordium.com",
	},
	Mainnet: {
		AccountBalanceURL: "https://wallet-proxy.mainnet.concordium.software/v0/accBalance",
		DashboardURL:      "https://dashboard.mainnet.concordium.software",
	},
}

// LinksFor returns the links of a known network.
func LinksFor(network string) (Links, error) {
	l, ok := networkLinks[Network(strings.ToLower(strings.TrimSpace(network)))]
	if !ok {
		return Links{}, fmt.Errorf("unknown network %q", network)
	}
	return l, nil
}
