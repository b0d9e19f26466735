// Package audit records every verify and settle decision with the outcome of
// each governance check.
package audit

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type Action string

const (
	ActionVerify Action = "verify"
	ActionSettle Action = "settle"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeDenied is a governance or verification rejection.
	OutcomeDenied Outcome = "denied"
	// OutcomeFailed is an error after governance passed, e.g. submission.
	OutcomeFailed Outcome = "failed"
)

// Governance holds the per-check results. Empty means the check did not run.
type Governance struct {
	Replay         string `json:"replay,omitempty"`
	RateLimit      string `json:"rateLimit,omitempty"`
	Allowlist      string `json:"allowlist,omitempty"`
	OFAC           string `json:"ofac,omitempty"`
	Delegation     string `json:"delegation,omitempty"`
	Budget         string `json:"budget,omitempty"`
	CircuitBreaker string `json:"circuitBreaker,omitempty"`
	Blockhash      string `json:"blockhash,omitempty"`
	Simulation     string `json:"simulation,omitempty"`
}

// Entry is one append-only audit record.
type Entry struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Action      Action     `json:"action"`
	Outcome     Outcome    `json:"outcome"`
	Network     string     `json:"network,omitempty"`
	Scheme      string     `json:"scheme,omitempty"`
	Asset       string     `json:"asset,omitempty"`
	Amount      string     `json:"amount,omitempty"`
	PayTo       string     `json:"payTo,omitempty"`
	Payer       string     `json:"payer,omitempty"`
	Source      string     `json:"source,omitempty"`
	TxSignature string     `json:"txSignature,omitempty"`
	FailedCheck string     `json:"failedCheck,omitempty"`
	Governance  Governance `json:"governance"`
	LatencyMs   int64      `json:"latencyMs"`
	Error       string     `json:"error,omitempty"`
}

func (g Governance) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	add := func(k, v string) {
		if v != "" {
			enc.AddString(k, v)
		}
	}
	add("replay", g.Replay)
	add("rate_limit", g.RateLimit)
	add("allowlist", g.Allowlist)
	add("ofac", g.OFAC)
	add("delegation", g.Delegation)
	add("budget", g.Budget)
	add("circuit_breaker", g.CircuitBreaker)
	add("blockhash", g.Blockhash)
	add("simulation", g.Simulation)
	return nil
}

func (e Entry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", e.ID)
	enc.AddTime("timestamp", e.Timestamp)
	enc.AddString("action", string(e.Action))
	enc.AddString("outcome", string(e.Outcome))
	enc.AddString("network", e.Network)
	enc.AddString("scheme", e.Scheme)
	enc.AddString("asset", e.Asset)
	enc.AddString("amount", e.Amount)
	enc.AddString("pay_to", e.PayTo)
	enc.AddString("payer", e.Payer)
	if e.Source != "" {
		enc.AddString("source", e.Source)
	}
	if e.TxSignature != "" {
		enc.AddString("tx_signature", e.TxSignature)
	}
	if e.FailedCheck != "" {
		enc.AddString("failed_check", e.FailedCheck)
	}
	if err := enc.AddObject("governance", e.Governance); err != nil {
		return err
	}
	enc.AddInt64("latency_ms", e.LatencyMs)
	if e.Error != "" {
		enc.AddString("error", e.Error)
	}
	return nil
}
