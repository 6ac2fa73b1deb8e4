// Package chains holds the static registry of supported blockchains: their
// native token, smallest-unit scale, address rules and explorer links.
package chains

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// ErrUnsupportedChain is returned for chain ids missing from the registry.
var ErrUnsupportedChain = fmt.Errorf("unsupported chain id")

// Chain describes one supported blockchain.
type Chain struct {
	ID          string
	Name        string
	TokenSymbol string // native token priced by the oracle
	Decimals    int32  // smallest-unit scale (9 for lamports, 18 for wei)
	ExplorerURL string // transaction explorer prefix
	// Transfers reports whether the transfer builder can construct native
	// transfers for this chain. Chains without it are quote-only.
	Transfers bool

	validate func(address string) bool
}

var registry = map[string]Chain{
	"solana": {
		ID:          "solana",
		Name:        "Solana",
		TokenSymbol: "SOL",
		Decimals:    9,
		ExplorerURL: "https://explorer.solana.com/tx/",
		Transfers:   true,
		validate: func(address string) bool {
			_, err := solana.PublicKeyFromBase58(address)
			return err == nil
		},
	},
	"ethereum": {
		ID:          "ethereum",
		Name:        "Ethereum",
		TokenSymbol: "ETH",
		Decimals:    18,
		ExplorerURL: "https://etherscan.io/tx/",
		Transfers:   false,
		validate:    common.IsHexAddress,
	},
}

// Get looks up a chain by id.
func Get(chainID string) (Chain, error) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(chainID))]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainID)
	}
	return c, nil
}

// IsSupported reports whether a chain id is registered.
func IsSupported(chainID string) bool {
	_, err := Get(chainID)
	return err == nil
}

// ValidAddress reports whether address is well formed for the chain.
func (c Chain) ValidAddress(address string) bool {
	if c.validate == nil {
		return false
	}
	return c.validate(address)
}

// ValidAddressForAny reports whether address is well formed for at least one
// of the given chains. Unknown chain ids in the list are skipped.
func ValidAddressForAny(chainIDs []string, address string) bool {
	for _, id := range chainIDs {
		c, err := Get(id)
		if err != nil {
			continue
		}
		if c.ValidAddress(address) {
			return true
		}
	}
	return false
}

// ExplorerTxURL returns the explorer link for a transaction, or "" when the
// chain has no configured explorer.
func ExplorerTxURL(chainID, signature string) string {
	c, err := Get(chainID)
	if err != nil || c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + signature
}

// DisplayName returns the human-readable chain name, falling back to the id.
func DisplayName(chainID string) string {
	c, err := Get(chainID)
	if err != nil {
		return chainID
	}
	return c.Name
}

// All returns every registered chain.
func All() []Chain {
	out := make([]Chain, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	return out
}

// IDs returns every registered chain id in a stable order.
func IDs() []string {
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FormatNative renders a native amount with per-token display precision:
// 6 decimals for ETH, 4 for everything else.
func FormatNative(amount float64, tokenSymbol string) string {
	decimals := 4
	if tokenSymbol == "ETH" {
		decimals = 6
	}
	return fmt.Sprintf("%.*f", decimals, amount)
}

// FormatUSD renders a USD amount with two decimals.
func FormatUSD(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}
