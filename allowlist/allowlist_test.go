package allowlist

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	usdc  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	pyusd = "2b1kV6DkPAnxd5ixfnxCpjxmKwqjjaYmCZfHsFu24GXo"
)

func TestCheckTokenAllowlist(t *testing.T) {
	assert.True(t, CheckTokenAllowlist(usdc, nil).Allowed)
	assert.True(t, CheckTokenAllowlist(usdc, NewSet()).Allowed)
	assert.True(t, CheckTokenAllowlist(usdc, NewSet(usdc)).Allowed)

	res := CheckTokenAllowlist(pyusd, NewSet(usdc))
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, pyusd)
}

func TestCheckRecipientAllowlist(t *testing.T) {
	merchant := "AejHuZdNpDUiAiwuV2NKXz8K6eLzChYGpTcxptinWbar"
	assert.True(t, CheckRecipientAllowlist(merchant, NewSet(" "+merchant+" ")).Allowed)

	res := CheckRecipientAllowlist("Attacker1111111111111111111111111111111111", NewSet(merchant))
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "Attacker1111111111111111111111111111111111")
}

func TestCheckAmountCapBoundary(t *testing.T) {
	max := big.NewInt(1_000_000)
	for _, amt := range []int64{0, 1, 999_999, 1_000_000} {
		assert.True(t, CheckAmountCap(big.NewInt(amt), max).Allowed, "amount %d", amt)
	}
	for _, amt := range []int64{1_000_001, 5_000_000} {
		res := CheckAmountCap(big.NewInt(amt), max)
		assert.False(t, res.Allowed, "amount %d", amt)
		assert.NotEmpty(t, res.Reason)
	}
	assert.True(t, CheckAmountCap(big.NewInt(1<<62), nil).Allowed)
}

func TestCheckAmountCapExactBeyondFloat(t *testing.T) {
	// 2^64+1 vs 2^64: indistinguishable as float64.
	max := new(big.Int).Lsh(big.NewInt(1), 64)
	over := new(big.Int).Add(max, big.NewInt(1))
	assert.True(t, CheckAmountCap(max, max).Allowed)
	assert.False(t, CheckAmountCap(over, max).Allowed)
}

func TestCheckRateLimit(t *testing.T) {
	assert.True(t, CheckRateLimit(0, 10).Allowed)
	assert.True(t, CheckRateLimit(9, 10).Allowed)
	assert.False(t, CheckRateLimit(10, 10).Allowed)
	assert.False(t, CheckRateLimit(11, 10).Allowed)
	assert.Contains(t, CheckRateLimit(10, 10).Reason, "rate limit")
}
