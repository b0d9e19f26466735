package types

import "math/big"

// DefaultRateLimitPerMinute applies when RateLimitPerMinute is not positive.
const DefaultRateLimitPerMinute = 60

// GovernanceConfig is the policy applied to every verify and settle call.
// A nil or empty allowlist means "allow all".
type GovernanceConfig struct {
	// MaxSettlementAmount caps a single payment in base units. Nil disables the cap.
	MaxSettlementAmount *big.Int

	AllowedTokens     []string
	AllowedRecipients []string

	// RateLimitPerMinute bounds confirmed settlements per one-minute window.
	RateLimitPerMinute int

	// RequireDelegation rejects transfers signed by the token account owner
	// itself. When false, owner-signed transfers skip delegation and budget.
	RequireDelegation bool
}

// RateLimit returns the effective per-minute limit.
func (g GovernanceConfig) RateLimit() int {
	if g.RateLimitPerMinute <= 0 {
		return DefaultRateLimitPerMinute
	}
	return g.RateLimitPerMinute
}
