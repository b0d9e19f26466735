// Package gas watches the facilitator's fee-paying wallet.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
)

const (
	// DefaultFeePerSettlement is the base fee of a single-signature transaction.
	DefaultFeePerSettlement uint64 = 5000
	// DefaultThreshold is 0.05 SOL.
	DefaultThreshold uint64 = 50_000_000
)

type Config struct {
	FeePayer         solana.PublicKey
	Threshold        uint64
	FeePerSettlement uint64
	Commitment       ledger.Commitment
	// WarnInterval throttles the low-balance warning.
	WarnInterval time.Duration
}

// Status is a snapshot of the fee payer's health.
type Status struct {
	FeePayer             string          `json:"feePayer"`
	Balance              uint64          `json:"balanceLamports"`
	BalanceSOL           decimal.Decimal `json:"balanceSol"`
	Threshold            uint64          `json:"thresholdLamports"`
	Healthy              bool            `json:"healthy"`
	EstimatedSettlements uint64          `json:"estimatedSettlements"`
}

type Manager struct {
	ledger ledger.Reader
	cfg    Config
	log    logger.Logger
	rec    metrics.Recorder
	warn   rate.Sometimes
}

func NewManager(reader ledger.Reader, cfg Config, log logger.Logger, rec metrics.Recorder) *Manager {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.FeePerSettlement == 0 {
		cfg.FeePerSettlement = DefaultFeePerSettlement
	}
	if cfg.Commitment == "" {
		cfg.Commitment = ledger.CommitmentConfirmed
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = time.Minute
	}
	return &Manager{
		ledger: reader,
		cfg:    cfg,
		log:    logger.OrNoop(log),
		rec:    metrics.OrNoop(rec),
		warn:   rate.Sometimes{Interval: cfg.WarnInterval},
	}
}

func (m *Manager) FeePayer() solana.PublicKey { return m.cfg.FeePayer }

// CheckBalance reports the fee payer's balance against the threshold. A low
// balance is logged, never enforced here.
func (m *Manager) CheckBalance(ctx context.Context) (Status, error) {
	bal, err := m.ledger.GetBalance(ctx, m.cfg.FeePayer, m.cfg.Commitment)
	if err != nil {
		return Status{FeePayer: m.cfg.FeePayer.String(), Threshold: m.cfg.Threshold}, fmt.Errorf("gas: fee payer balance: %w", err)
	}
	st := Status{
		FeePayer:             m.cfg.FeePayer.String(),
		Balance:              bal,
		BalanceSOL:           Lamports(bal),
		Threshold:            m.cfg.Threshold,
		Healthy:              bal >= m.cfg.Threshold,
		EstimatedSettlements: bal / m.cfg.FeePerSettlement,
	}
	m.rec.SetGauge(metrics.FeePayerBalance, float64(bal), nil)
	if !st.Healthy {
		m.warn.Do(func() {
			m.log.Warn("fee payer balance below threshold", map[string]any{
				"fee_payer":             st.FeePayer,
				"balance_sol":           st.BalanceSOL.String(),
				"threshold_lamports":    st.Threshold,
				"estimated_settlements": st.EstimatedSettlements,
			})
		})
	}
	return st, nil
}

// CanAffordSettlement gates a submission on the fee payer covering one
// settlement fee. A failed balance query allows the attempt.
func (m *Manager) CanAffordSettlement(ctx context.Context) (bool, string) {
	st, err := m.CheckBalance(ctx)
	if err != nil {
		m.log.Warn("fee payer balance unavailable, allowing settlement", map[string]any{"error": err})
		return true, ""
	}
	if st.Balance < m.cfg.FeePerSettlement {
		return false, fmt.Sprintf("fee payer %s balance %s SOL cannot cover settlement fee", st.FeePayer, st.BalanceSOL)
	}
	return true, ""
}

// Lamports converts a lamport amount to SOL.
func Lamports(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -9)
}
