// Package governance composes the replay, policy, delegation, budget,
// breaker, blockhash and sanctions checks into the facilitator lifecycle.
package governance

import (
	"errors"
	"sync"
	"time"

	"github.com/vitwit/x402gov/allowlist"
	"github.com/vitwit/x402gov/audit"
	"github.com/vitwit/x402gov/blockhash"
	"github.com/vitwit/x402gov/breaker"
	"github.com/vitwit/x402gov/budget"
	"github.com/vitwit/x402gov/delegation"
	"github.com/vitwit/x402gov/facilitator"
	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
	"github.com/vitwit/x402gov/replay"
	"github.com/vitwit/x402gov/sanctions"
	"github.com/vitwit/x402gov/types"
)

// Check names, as surfaced in aborts, audit entries and metrics.
const (
	CheckReplay         = "replay"
	CheckRateLimit      = "rate_limit"
	CheckAllowlist      = "allowlist"
	CheckCircuitBreaker = "circuit_breaker"
	CheckTransaction    = "transaction"
	CheckDelegation     = "delegation"
	CheckBudget         = "budget"
	CheckBlockhash      = "blockhash"
	CheckSanctions      = "ofac"
	CheckSimulation     = "simulation"
	CheckSettlement     = "settlement"
	CheckRequest        = "request"
)

var ErrNoLedger = errors.New("governance: a ledger reader is required")

// Components are the stateful collaborators. Only Ledger is required; the
// rest default to in-memory instances, except Sanctions, which disables
// screening when nil.
type Components struct {
	Ledger     ledger.Reader
	Replay     *replay.Guard
	Budget     *budget.Enforcer
	Sanctions  *sanctions.Screener
	Breaker    *breaker.Breaker
	Blockhash  *blockhash.Validator
	Delegation *delegation.Validator
	Audit      *audit.Logger
}

type Orchestrator struct {
	cfg        types.GovernanceConfig
	tokens     allowlist.Set
	recipients allowlist.Set

	replay     *replay.Guard
	budget     *budget.Enforcer
	sanctions  *sanctions.Screener
	breaker    *breaker.Breaker
	blockhash  *blockhash.Validator
	delegation *delegation.Validator
	audit      *audit.Logger
	rate       *RateCounter

	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time

	destroyOnce sync.Once
}

type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.log = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = metrics.OrNoop(m) }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(cfg types.GovernanceConfig, c Components, opts ...Option) (*Orchestrator, error) {
	if c.Ledger == nil {
		return nil, ErrNoLedger
	}
	o := &Orchestrator{
		cfg:        cfg,
		tokens:     allowlist.NewSet(cfg.AllowedTokens...),
		recipients: allowlist.NewSet(cfg.AllowedRecipients...),
		sanctions:  c.Sanctions,
		log:        logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.replay = c.Replay
	if o.replay == nil {
		o.replay = replay.NewGuard(replay.NewMemoryStore(replay.WithSweepInterval(time.Minute)), o.log)
	}
	o.budget = c.Budget
	if o.budget == nil {
		o.budget = budget.NewEnforcer()
	}
	o.breaker = c.Breaker
	if o.breaker == nil {
		o.breaker = breaker.New(breaker.DefaultConfig(), o.log, o.metrics)
	}
	o.blockhash = c.Blockhash
	if o.blockhash == nil {
		o.blockhash = blockhash.NewValidator(c.Ledger, blockhash.WithLogger(o.log))
	}
	o.delegation = c.Delegation
	if o.delegation == nil {
		o.delegation = delegation.NewValidator(c.Ledger, delegation.WithLogger(o.log))
	}
	o.audit = c.Audit
	if o.audit == nil {
		o.audit = audit.New(o.log)
	}
	o.rate = NewRateCounter(time.Minute, o.now)
	return o, nil
}

// Register installs the governance hooks on engine.
func (o *Orchestrator) Register(engine *facilitator.Engine) {
	engine.OnBeforeVerify(o.beforeVerify)
	engine.OnAfterVerify(o.afterVerify)
	engine.OnVerifyFailure(o.onVerifyFailure)
	engine.OnBeforeSettle(o.beforeSettle)
	engine.OnAfterSettle(o.afterSettle)
	engine.OnSettleFailure(o.onSettleFailure)
}

// BreakerState exposes the circuit breaker state for health reporting.
func (o *Orchestrator) BreakerState() string { return o.breaker.State() }

// SettlementsThisMinute returns the rate counter for the current window.
func (o *Orchestrator) SettlementsThisMinute() int { return o.rate.Count() }

// Destroy releases the replay guard, budget tracker and sanctions list.
// Safe to call more than once.
func (o *Orchestrator) Destroy() {
	o.destroyOnce.Do(func() {
		o.replay.Destroy()
		o.budget.Destroy()
		if o.sanctions != nil {
			o.sanctions.Destroy()
		}
	})
}

func (o *Orchestrator) decision(network, check, outcome string) {
	o.metrics.IncCounter(metrics.GovernanceDecision, map[string]string{
		"network": network,
		"check":   check,
		"outcome": outcome,
	})
}
