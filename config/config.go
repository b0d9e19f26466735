// Package config loads the facilitator configuration from an optional YAML
// file, X402GOV_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vitwit/x402gov/breaker"
	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/types"
	"github.com/vitwit/x402gov/utils"
)

const EnvPrefix = "X402GOV"

// Replay store backends.
const (
	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Solana     SolanaConfig     `mapstructure:"solana"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Sanctions  SanctionsConfig  `mapstructure:"sanctions"`
	Breaker    breaker.Config   `mapstructure:"breaker"`
	Gas        GasConfig        `mapstructure:"gas"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SolanaConfig struct {
	Network    string `mapstructure:"network" validate:"x402_network"`
	RPCURL     string `mapstructure:"rpc_url" validate:"required,url"`
	Commitment string `mapstructure:"commitment" validate:"oneof=processed confirmed finalized"`
	// FeePayerKeypair is a solana-keygen JSON file. FeePayerKey, a base58
	// secret, wins when both are set.
	FeePayerKeypair     string        `mapstructure:"fee_payer_keypair"`
	FeePayerKey         string        `mapstructure:"fee_payer_key"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	// VerifyRetries retries /verify on RPC errors. Invalid payments are not retried.
	VerifyRetries    uint          `mapstructure:"verify_retries" validate:"lte=10"`
	VerifyRetryDelay time.Duration `mapstructure:"verify_retry_delay"`
}

type GovernanceConfig struct {
	// MaxSettlementAmount is in base units. Empty disables the cap.
	MaxSettlementAmount string        `mapstructure:"max_settlement_amount" validate:"omitempty,numeric"`
	AllowedTokens       []string      `mapstructure:"allowed_tokens" validate:"dive,solana_address"`
	AllowedRecipients   []string      `mapstructure:"allowed_recipients" validate:"dive,solana_address"`
	RateLimitPerMinute  int           `mapstructure:"rate_limit_per_minute" validate:"gte=0"`
	RequireDelegation   bool          `mapstructure:"require_delegation"`
	BlockhashMaxAge     time.Duration `mapstructure:"blockhash_max_age"`
}

type SanctionsConfig struct {
	// Path to a JSON array of addresses.
	Path string `mapstructure:"path"`
	List string `mapstructure:"list"`
	// FailClosed refuses to start without a loadable list. Only an explicit
	// false lets the facilitator run with screening skipped.
	FailClosed bool `mapstructure:"fail_closed"`
	Watch      bool `mapstructure:"watch"`
}

type GasConfig struct {
	ThresholdLamports uint64        `mapstructure:"threshold_lamports"`
	FeePerSettlement  uint64        `mapstructure:"fee_per_settlement"`
	WarnInterval      time.Duration `mapstructure:"warn_interval"`
}

type ReplayConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory redis"`
	Prefix  string `mapstructure:"prefix"`
	// SweepInterval applies to the memory backend.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Enabled is derived from the replay backend.
	Enabled bool `mapstructure:"-"`
}

type AuditConfig struct {
	// PostgresDSN enables the Postgres sink when set.
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table" validate:"required"`
	MaxConns    int32  `mapstructure:"max_conns"`
	// Stdout writes entries through the process logger.
	Stdout bool `mapstructure:"stdout"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads path when given, otherwise looks for config.yaml in the working
// directory and ./configs. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8402")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.request_timeout", 75*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("solana.network", string(types.NetworkSolanaDevnet))
	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.commitment", string(ledger.CommitmentConfirmed))
	v.SetDefault("solana.fee_payer_keypair", "")
	v.SetDefault("solana.fee_payer_key", "")
	v.SetDefault("solana.confirm_timeout", 60*time.Second)
	v.SetDefault("solana.confirm_poll_interval", 2*time.Second)
	v.SetDefault("solana.verify_retries", 2)
	v.SetDefault("solana.verify_retry_delay", 200*time.Millisecond)

	v.SetDefault("governance.max_settlement_amount", "")
	v.SetDefault("governance.allowed_tokens", []string{})
	v.SetDefault("governance.allowed_recipients", []string{})
	v.SetDefault("governance.rate_limit_per_minute", types.DefaultRateLimitPerMinute)
	v.SetDefault("governance.require_delegation", true)
	v.SetDefault("governance.blockhash_max_age", 30*time.Second)

	v.SetDefault("sanctions.path", "")
	v.SetDefault("sanctions.list", "")
	v.SetDefault("sanctions.fail_closed", true)
	v.SetDefault("sanctions.watch", true)

	b := breaker.DefaultConfig()
	v.SetDefault("breaker.name", b.Name)
	v.SetDefault("breaker.max_requests", b.MaxRequests)
	v.SetDefault("breaker.interval", b.Interval)
	v.SetDefault("breaker.timeout", b.Timeout)
	v.SetDefault("breaker.consecutive_failures", b.ConsecutiveFailures)
	v.SetDefault("breaker.failure_ratio", b.FailureRatio)
	v.SetDefault("breaker.min_requests", b.MinRequests)
	v.SetDefault("breaker.trip_on_denials", b.TripOnDenials)

	v.SetDefault("gas.threshold_lamports", 0)
	v.SetDefault("gas.fee_per_settlement", 0)
	v.SetDefault("gas.warn_interval", time.Minute)

	v.SetDefault("replay.backend", ReplayMemory)
	v.SetDefault("replay.prefix", "x402gov:replay:")
	v.SetDefault("replay.sweep_interval", time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("audit.postgres_dsn", "")
	v.SetDefault("audit.table", "governance_audit")
	v.SetDefault("audit.max_conns", 4)
	v.SetDefault("audit.stdout", true)

	v.SetDefault("logger.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	c.Redis.Enabled = c.Replay.Backend == ReplayRedis
	if err := utils.Validator().Struct(c); err != nil {
		return &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}
	if _, err := c.Governance.MaxAmount(); err != nil {
		return &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid config: governance.max_settlement_amount: %v", err),
		}
	}
	return nil
}

// MaxAmount parses MaxSettlementAmount. Empty yields nil.
func (g GovernanceConfig) MaxAmount() (*big.Int, error) {
	if g.MaxSettlementAmount == "" {
		return nil, nil
	}
	v, err := utils.ValidateBigInt(g.MaxSettlementAmount)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return v, nil
}

// Policy converts the section into the runtime governance policy.
func (g GovernanceConfig) Policy() (types.GovernanceConfig, error) {
	limit, err := g.MaxAmount()
	if err != nil {
		return types.GovernanceConfig{}, err
	}
	return types.GovernanceConfig{
		MaxSettlementAmount: limit,
		AllowedTokens:       g.AllowedTokens,
		AllowedRecipients:   g.AllowedRecipients,
		RateLimitPerMinute:  g.RateLimitPerMinute,
		RequireDelegation:   g.RequireDelegation,
	}, nil
}

func (s SolanaConfig) NetworkID() types.Network { return types.Network(s.Network) }

func (s SolanaConfig) LedgerCommitment() ledger.Commitment { return ledger.Commitment(s.Commitment) }

// HasFeePayer reports whether a settlement signer is configured.
func (s SolanaConfig) HasFeePayer() bool {
	return s.FeePayerKey != "" || s.FeePayerKeypair != ""
}
