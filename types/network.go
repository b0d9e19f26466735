package types

import "fmt"

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainSolana ChainFamily = "solana"
)

// NetworkCapability describes one scheme/network pair a facilitator can serve.
type NetworkCapability struct {
	Network     Network
	X402Version int
	Scheme      PaymentScheme
	ChainFamily ChainFamily
}

// SupportedItem converts the capability to its wire form.
func (c NetworkCapability) SupportedItem() SupportedItem {
	return SupportedItem{
		X402Version: c.X402Version,
		Scheme:      string(c.Scheme),
		Network:     c.Network.String(),
	}
}

// ParseNetwork maps a network identifier onto a supported Network.
// CAIP-2 style Solana identifiers are accepted alongside the short names.
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "solana", "solana-mainnet", "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp":
		return NetworkSolanaMainnet, nil
	case "solana-devnet", "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1":
		return NetworkSolanaDevnet, nil
	case "solana-localnet":
		return NetworkSolanaLocal, nil
	default:
		return "", &X402Error{
			Code:    ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", s),
		}
	}
}
