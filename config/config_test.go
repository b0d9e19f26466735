package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402gov/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facilitator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8402", cfg.Server.Addr)
	assert.Equal(t, types.NetworkSolanaDevnet, cfg.Solana.NetworkID())
	assert.Equal(t, "confirmed", cfg.Solana.Commitment)
	assert.Equal(t, types.DefaultRateLimitPerMinute, cfg.Governance.RateLimitPerMinute)
	assert.True(t, cfg.Governance.RequireDelegation)
	assert.Equal(t, ReplayMemory, cfg.Replay.Backend)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, uint32(5), cfg.Breaker.ConsecutiveFailures)
	assert.False(t, cfg.Solana.HasFeePayer())
	assert.True(t, cfg.Sanctions.FailClosed)
	assert.Equal(t, uint(2), cfg.Solana.VerifyRetries)
	assert.Empty(t, cfg.Sanctions.Path)

	policy, err := cfg.Governance.Policy()
	require.NoError(t, err)
	assert.Nil(t, policy.MaxSettlementAmount)
	assert.Empty(t, policy.AllowedTokens)
}

func TestLoadFileAndEnv(t *testing.T) {
	mint := solana.TokenProgramID.String()
	path := writeConfig(t, fmt.Sprintf(`
solana:
  network: solana-mainnet
  rpc_url: https://rpc.example.com
  commitment: finalized
governance:
  max_settlement_amount: "1000000"
  allowed_tokens: [%q]
  rate_limit_per_minute: 10
breaker:
  timeout: 45s
  trip_on_denials: true
replay:
  backend: redis
redis:
  addr: localhost:6379
`, mint))

	t.Setenv("X402GOV_GOVERNANCE_RATE_LIMIT_PER_MINUTE", "25")
	t.Setenv("X402GOV_LOGGER_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, types.NetworkSolanaMainnet, cfg.Solana.NetworkID())
	assert.Equal(t, "finalized", string(cfg.Solana.LedgerCommitment()))
	assert.Equal(t, 25, cfg.Governance.RateLimitPerMinute)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 45*time.Second, cfg.Breaker.Timeout)
	assert.True(t, cfg.Breaker.TripOnDenials)
	assert.True(t, cfg.Redis.Enabled)

	policy, err := cfg.Governance.Policy()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000), policy.MaxSettlementAmount)
	assert.Equal(t, []string{mint}, policy.AllowedTokens)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"network":    "solana:\n  network: base-sepolia\n",
		"commitment": "solana:\n  commitment: eventually\n",
		"token":      "governance:\n  allowed_tokens: [\"0xdeadbeef\"]\n",
		"cap":        "governance:\n  max_settlement_amount: \"-5\"\n",
		"backend":    "replay:\n  backend: etcd\n",
		"redis addr": "replay:\n  backend: redis\n",
		"log level":  "logger:\n  level: chatty\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			var xerr *types.X402Error
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, types.ErrConfigError, xerr.Code)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
