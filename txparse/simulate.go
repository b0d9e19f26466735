package txparse

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
)

// Failure classifies why SimulateAndVerify did not succeed.
type Failure string

const (
	FailureNone        Failure = ""
	FailureParse       Failure = "parse"
	FailureNoTransfer  Failure = "no_transfer"
	FailureFeePayer    Failure = "fee_payer"
	FailureRecipient   Failure = "recipient"
	FailureAmount      Failure = "amount"
	FailureMint        Failure = "mint"
	FailureUnavailable Failure = "simulation_unavailable"
	FailureSimulation  Failure = "simulation"
)

// ClientError reports whether the failure lies in the submitted transaction
// itself, decided before the ledger was consulted.
func (f Failure) ClientError() bool {
	switch f {
	case FailureParse, FailureNoTransfer, FailureFeePayer, FailureRecipient, FailureAmount, FailureMint:
		return true
	}
	return false
}

// VerifyResult reports each verified dimension separately so callers can
// tell a wrong counterpart from a wrong amount or asset.
type VerifyResult struct {
	Success           bool
	RecipientVerified bool
	AmountVerified    bool
	TokenMintVerified bool
	Simulated         bool

	Transfer    *Transfer
	Transaction *Transaction

	Failure       Failure
	Error         string
	Logs          []string
	UnitsConsumed uint64
}

type Verifier struct {
	ledger     ledger.Reader
	commitment ledger.Commitment
	feePayer   solana.PublicKey
	log        logger.Logger
}

type Option func(*Verifier)

func WithCommitment(c ledger.Commitment) Option {
	return func(v *Verifier) { v.commitment = c }
}

// WithFeePayer rejects transactions in which the facilitator's fee payer
// moves tokens.
func WithFeePayer(pk solana.PublicKey) Option {
	return func(v *Verifier) { v.feePayer = pk }
}

func WithLogger(l logger.Logger) Option {
	return func(v *Verifier) { v.log = logger.OrNoop(l) }
}

func NewVerifier(reader ledger.Reader, opts ...Option) *Verifier {
	v := &Verifier{
		ledger:     reader,
		commitment: ledger.CommitmentConfirmed,
		log:        logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SimulateAndVerify parses raw, matches its transfers against want and, only
// when recipient, amount and mint all agree, dry-runs it on the ledger.
func (v *Verifier) SimulateAndVerify(ctx context.Context, raw []byte, want Expected) VerifyResult {
	transfers, tx, err := ParseTransfers(raw)
	if err != nil {
		return VerifyResult{Transaction: tx, Failure: FailureParse, Error: fmt.Sprintf("failed to parse transaction: %v", err)}
	}
	res := VerifyResult{Transaction: tx}
	if len(transfers) == 0 {
		res.Failure = FailureNoTransfer
		res.Error = ErrNoTransfer.Error()
		return res
	}

	if !v.feePayer.IsZero() {
		for _, t := range transfers {
			if t.Authority.Equals(v.feePayer) || t.Source.Equals(v.feePayer) {
				res.Failure = FailureFeePayer
				res.Error = fmt.Sprintf("fee payer %s must not authorize token transfers", v.feePayer)
				return res
			}
		}
	}

	t, m, _ := SelectTransfer(transfers, want)
	res.Transfer = &t
	res.RecipientVerified = m.Recipient
	res.AmountVerified = m.Amount
	res.TokenMintVerified = m.Mint

	if msg := m.Mismatch(t, want); msg != "" {
		switch {
		case !m.Recipient:
			res.Failure = FailureRecipient
		case !m.Amount:
			res.Failure = FailureAmount
		default:
			res.Failure = FailureMint
		}
		res.Error = msg
		return res
	}

	sim, err := v.ledger.Simulate(ctx, raw, v.commitment)
	if err != nil {
		v.log.Warn("transaction simulation request failed", map[string]any{"error": err})
		res.Failure = FailureUnavailable
		res.Error = fmt.Sprintf("simulation failed: %v", err)
		return res
	}
	res.Simulated = true
	res.Logs = sim.Logs
	res.UnitsConsumed = sim.UnitsConsumed
	if sim.Err != "" {
		res.Failure = FailureSimulation
		res.Error = fmt.Sprintf("simulation error: %s", sim.Err)
		return res
	}
	res.Success = true
	return res
}
