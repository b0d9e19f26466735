// Package delegation confirms that a payer holds an on-chain SPL delegation
// over a token account large enough to cover a payment.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
)

// Status classifies a token account's delegation.
type Status string

const (
	StatusActive       Status = "active"
	StatusInsufficient Status = "insufficient"
	StatusInactive     Status = "inactive"
	StatusNotDelegated Status = "not_delegated"
	StatusError        Status = "error"
)

// Result is returned by Validate. DelegatedAmount is set whenever the account
// could be decoded.
type Result struct {
	Status          Status
	Delegate        string
	Owner           string
	DelegatedAmount *big.Int
	Program         string
	Detail          string
}

// Active reports whether the delegation covers the payment.
func (r Result) Active() bool { return r.Status == StatusActive }

type Validator struct {
	ledger     ledger.Reader
	commitment ledger.Commitment
	log        logger.Logger
}

type Option func(*Validator)

func WithCommitment(c ledger.Commitment) Option {
	return func(v *Validator) { v.commitment = c }
}

func WithLogger(l logger.Logger) Option {
	return func(v *Validator) { v.log = logger.OrNoop(l) }
}

func NewValidator(reader ledger.Reader, opts ...Option) *Validator {
	v := &Validator{
		ledger:     reader,
		commitment: ledger.CommitmentConfirmed,
		log:        logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate loads tokenAccount and classifies it against payer, amount and mint.
// It never returns an error; ledger and decoding failures become StatusError.
func (v *Validator) Validate(ctx context.Context, tokenAccount, payer solana.PublicKey, amount *big.Int, mint solana.PublicKey) Result {
	acc, err := v.ledger.GetAccount(ctx, tokenAccount, v.commitment)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return errorResult("token account %s not found", tokenAccount)
		}
		v.log.Warn("delegation lookup failed", map[string]any{"account": tokenAccount.String(), "error": err})
		return errorResult("failed to load token account %s: %v", tokenAccount, err)
	}
	if acc == nil {
		return errorResult("token account %s not found", tokenAccount)
	}
	if !ledger.IsTokenProgram(acc.Owner) {
		return errorResult("account %s is owned by %s, not a token program", tokenAccount, acc.Owner)
	}

	ta, err := ledger.DecodeTokenAccount(acc.Data)
	if err != nil {
		return errorResult("token account %s could not be decoded: %v", tokenAccount, err)
	}

	res := Result{
		Owner:           ta.Owner.String(),
		DelegatedAmount: new(big.Int).SetUint64(ta.DelegatedAmount),
		Program:         acc.Owner.String(),
	}
	if ta.Delegate != nil {
		res.Delegate = ta.Delegate.String()
	}

	switch {
	case !ta.Mint.Equals(mint):
		res.Status = StatusError
		res.Detail = fmt.Sprintf("token account mint %s does not match expected mint %s", ta.Mint, mint)
	case ta.State == ledger.TokenAccountFrozen:
		res.Status = StatusInactive
		res.Detail = fmt.Sprintf("token account %s is frozen", tokenAccount)
	case ta.State != ledger.TokenAccountInitialized:
		res.Status = StatusError
		res.Detail = fmt.Sprintf("token account %s is not initialized", tokenAccount)
	case ta.Delegate == nil:
		res.Status = StatusNotDelegated
		res.Detail = fmt.Sprintf("token account %s has no delegate", tokenAccount)
	case !ta.Delegate.Equals(payer):
		res.Status = StatusNotDelegated
		res.Detail = fmt.Sprintf("token account delegate %s does not match payer %s", ta.Delegate, payer)
	case amount == nil:
		res.Status = StatusError
		res.Detail = "payment amount is missing"
	case res.DelegatedAmount.Cmp(amount) < 0:
		res.Status = StatusInsufficient
		res.Detail = fmt.Sprintf("delegated amount %s is below requested amount %s", res.DelegatedAmount, amount)
	default:
		res.Status = StatusActive
	}
	return res
}

func errorResult(format string, args ...any) Result {
	return Result{Status: StatusError, Detail: fmt.Sprintf(format, args...)}
}
