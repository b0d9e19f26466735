// Package ledger defines the narrow view of the chain the governance pipeline
// depends on: account lookup, blockhash validity, balance, simulation and
// submission. Components take these interfaces, never a concrete RPC client.
package ledger

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// Commitment is the confirmation level a query is evaluated at.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ErrAccountNotFound is returned by GetAccount when the address holds no account.
var ErrAccountNotFound = errors.New("ledger: account not found")

// Account is the generic state of an on-chain account.
type Account struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey // owning program
	Lamports   uint64
	Data       []byte
	Executable bool
}

// SimulationResult is the outcome of a dry-run.
type SimulationResult struct {
	// Err is empty when the simulated execution succeeded.
	Err           string
	Logs          []string
	UnitsConsumed uint64
}

// SignatureStatus reports how far a submitted transaction has progressed.
type SignatureStatus struct {
	Slot         uint64
	Confirmation Commitment
	Err          string
}

// Reader is the read-only ledger capability consumed by governance checks.
type Reader interface {
	GetAccount(ctx context.Context, address solana.PublicKey, commitment Commitment) (*Account, error)
	IsBlockhashValid(ctx context.Context, blockhash solana.Hash, commitment Commitment) (bool, error)
	GetBalance(ctx context.Context, address solana.PublicKey, commitment Commitment) (uint64, error)
	Simulate(ctx context.Context, rawTx []byte, commitment Commitment) (*SimulationResult, error)
}

// Submitter broadcasts transactions and reports their status.
type Submitter interface {
	SendTransaction(ctx context.Context, rawTx []byte) (solana.Signature, error)
	// SignatureStatus returns nil when the cluster does not know the signature yet.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
}

// Client is a full ledger client.
type Client interface {
	Reader
	Submitter
}

// Reached reports whether status satisfies the wanted commitment.
func (s *SignatureStatus) Reached(want Commitment) bool {
	if s == nil {
		return false
	}
	return rank(s.Confirmation) >= rank(want)
}

func rank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}
