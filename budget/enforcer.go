// Package budget tracks cumulative confirmed spend per delegate/account pair
// and compares it with the live on-chain delegated allowance.
package budget

import (
	"fmt"
	"math/big"
	"sync"
)

type Status string

const (
	StatusWithinCap Status = "within_cap"
	StatusAtCap     Status = "at_cap"
	StatusOverCap   Status = "over_cap"
	StatusError     Status = "error"
)

type Result struct {
	Status          Status
	TotalSpent      *big.Int
	RemainingBudget *big.Int
	Detail          string
}

// Fits reports whether the payment can be made from the remaining budget.
func (r Result) Fits() bool {
	return r.Status == StatusWithinCap || r.Status == StatusAtCap
}

// Key builds the tracking key for a delegate spending from a source token account.
func Key(delegate, source string) string {
	return delegate + ":" + source
}

// Enforcer is safe for concurrent use.
type Enforcer struct {
	mu    sync.Mutex
	spent map[string]*big.Int
}

func NewEnforcer() *Enforcer {
	return &Enforcer{spent: make(map[string]*big.Int)}
}

// Check compares payment with delegated minus tracked spend. The on-chain
// delegated amount already reflects past transfers, so a tracked spend larger
// than the allowance only ever lowers the remaining figure to zero.
func (e *Enforcer) Check(key string, payment, delegated *big.Int) Result {
	if payment == nil || delegated == nil || payment.Sign() < 0 || delegated.Sign() < 0 {
		return Result{Status: StatusError, Detail: "payment and delegated amounts must be non-negative"}
	}

	total := e.TotalSpent(key)
	remaining := new(big.Int).Sub(delegated, total)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	res := Result{TotalSpent: total, RemainingBudget: remaining}
	switch payment.Cmp(remaining) {
	case -1:
		res.Status = StatusWithinCap
	case 0:
		res.Status = StatusAtCap
	default:
		res.Status = StatusOverCap
		res.Detail = fmt.Sprintf("payment %s exceeds remaining budget %s", payment, remaining)
	}
	return res
}

// Record adds a confirmed settlement amount to key.
func (e *Enforcer) Record(key string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("budget: invalid amount %v", amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spent == nil {
		return errDestroyed
	}
	cur, ok := e.spent[key]
	if !ok {
		cur = new(big.Int)
		e.spent[key] = cur
	}
	cur.Add(cur, amount)
	return nil
}

func (e *Enforcer) Reset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.spent, key)
}

// TotalSpent returns a copy of the tracked spend for key.
func (e *Enforcer) TotalSpent(key string) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.spent[key]; ok {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Destroy drops all tracked state. Later Record calls fail.
func (e *Enforcer) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spent = nil
}
