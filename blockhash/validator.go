// Package blockhash rejects transactions built on an expired blockhash before
// a submission attempt is wasted on them.
package blockhash

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
)

// DefaultMaxAge bounds how long a positive validity answer is reused.
const DefaultMaxAge = 30 * time.Second

type Result struct {
	Valid  bool
	Reason string
	// Degraded is set when the ledger could not be asked and the result
	// fell back to valid.
	Degraded bool
}

type Validator struct {
	ledger     ledger.Reader
	commitment ledger.Commitment
	maxAge     time.Duration
	log        logger.Logger
	now        func() time.Time

	mu    sync.Mutex
	valid map[solana.Hash]time.Time
}

type Option func(*Validator)

func WithMaxAge(d time.Duration) Option {
	return func(v *Validator) { v.maxAge = d }
}

func WithCommitment(c ledger.Commitment) Option {
	return func(v *Validator) { v.commitment = c }
}

func WithLogger(l logger.Logger) Option {
	return func(v *Validator) { v.log = logger.OrNoop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(reader ledger.Reader, opts ...Option) *Validator {
	v := &Validator{
		ledger:     reader,
		commitment: ledger.CommitmentProcessed,
		maxAge:     DefaultMaxAge,
		log:        logger.NoopLogger{},
		now:        time.Now,
		valid:      make(map[solana.Hash]time.Time),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether hash can still land. An expired hash is a client
// error. A failing ledger query fails open.
func (v *Validator) Validate(ctx context.Context, hash solana.Hash) Result {
	if hash == (solana.Hash{}) {
		return Result{Valid: false, Reason: "transaction has no recent blockhash"}
	}
	if v.cached(hash) {
		return Result{Valid: true}
	}

	ok, err := v.ledger.IsBlockhashValid(ctx, hash, v.commitment)
	if err != nil {
		v.log.Warn("blockhash validity check failed, allowing", map[string]any{
			"blockhash": hash.String(),
			"error":     err,
		})
		return Result{Valid: true, Degraded: true}
	}
	if !ok {
		return Result{
			Valid:  false,
			Reason: "blockhash " + hash.String() + " has expired; rebuild the transaction with a recent blockhash",
		}
	}
	v.remember(hash)
	return Result{Valid: true}
}

func (v *Validator) cached(hash solana.Hash) bool {
	if v.maxAge <= 0 {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	seen, ok := v.valid[hash]
	if !ok {
		return false
	}
	if v.now().Sub(seen) >= v.maxAge {
		delete(v.valid, hash)
		return false
	}
	return true
}

func (v *Validator) remember(hash solana.Hash) {
	if v.maxAge <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	for h, seen := range v.valid {
		if now.Sub(seen) >= v.maxAge {
			delete(v.valid, h)
		}
	}
	v.valid[hash] = now
}
