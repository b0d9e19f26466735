// Package allowlist holds the stateless policy predicates applied before a
// payment is verified or settled. None of them panic or return errors.
package allowlist

import (
	"fmt"
	"math/big"
	"strings"
)

// Result is the outcome of a single check. Reason is set when Allowed is false.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Result { return Result{Allowed: true} }

func deny(format string, args ...any) Result {
	return Result{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Set is a membership set of addresses. A nil or empty Set allows everything.
type Set map[string]struct{}

// NewSet builds a Set, ignoring blank entries.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			s[it] = struct{}{}
		}
	}
	return s
}

func (s Set) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// CheckTokenAllowlist allows token when allowlist is empty or contains it.
func CheckTokenAllowlist(token string, allowlist Set) Result {
	if len(allowlist) == 0 || allowlist.Contains(token) {
		return allow()
	}
	return deny("token %s is not in the allowed token list", token)
}

// CheckRecipientAllowlist allows recipient when allowlist is empty or contains it.
func CheckRecipientAllowlist(recipient string, allowlist Set) Result {
	if len(allowlist) == 0 || allowlist.Contains(recipient) {
		return allow()
	}
	return deny("recipient %s is not in the allowed recipient list", recipient)
}

// CheckAmountCap allows amount <= max. A nil max disables the cap.
func CheckAmountCap(amount, max *big.Int) Result {
	if max == nil {
		return allow()
	}
	if amount == nil {
		return deny("payment amount is missing")
	}
	if amount.Cmp(max) > 0 {
		return deny("amount %s exceeds maximum settlement amount %s", amount, max)
	}
	return allow()
}

// CheckRateLimit allows while currentCount is below limitPerMinute.
func CheckRateLimit(currentCount, limitPerMinute int) Result {
	if currentCount < limitPerMinute {
		return allow()
	}
	return deny("rate limit exceeded: %d settlements in the current minute (limit %d)", currentCount, limitPerMinute)
}
