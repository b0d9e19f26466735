package governance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/vitwit/x402gov/allowlist"
	"github.com/vitwit/x402gov/audit"
	"github.com/vitwit/x402gov/budget"
	"github.com/vitwit/x402gov/delegation"
	"github.com/vitwit/x402gov/facilitator"
	"github.com/vitwit/x402gov/replay"
	"github.com/vitwit/x402gov/txparse"
	"github.com/vitwit/x402gov/types"
)

const settleStateKey = "governance.settle"

// settleState carries what before-settle learned into the after hooks.
type settleState struct {
	gov        audit.Governance
	payloadKey string
	amount     *big.Int
	transfer   *txparse.Transfer
	budgetKey  string
	ownerPaid  bool
}

func (o *Orchestrator) beforeSettle(ctx context.Context, hc *facilitator.HookContext) facilitator.HookResult {
	st := &settleState{}
	hc.Set(settleStateKey, st)
	req := hc.Request
	pr := &req.PaymentRequirements
	network := pr.Network

	deny := func(check, reason string) facilitator.HookResult {
		o.decision(network, check, "deny")
		o.log.Info("settlement denied", map[string]any{"network": network, "check": check, "reason": reason})
		return facilitator.AbortWith(check, reason)
	}
	pass := func(check string) { o.decision(network, check, "pass") }

	raw, err := req.PaymentPayload.TransactionBytes()
	if err != nil {
		return deny(CheckTransaction, err.Error())
	}

	st.payloadKey = replay.PayloadKey(raw)
	if !o.replay.Check(ctx, st.payloadKey) {
		st.gov.Replay = "fail"
		return deny(CheckReplay, "Replay detected: payment payload has already been submitted")
	}
	st.gov.Replay = "pass"
	pass(CheckReplay)

	limit := o.cfg.RateLimit()
	if res := allowlist.CheckRateLimit(o.rate.Count(), limit); !res.Allowed {
		st.gov.RateLimit = "fail"
		return deny(CheckRateLimit, res.Reason)
	}
	st.gov.RateLimit = "pass"
	pass(CheckRateLimit)

	if res := o.policyChecks(pr); !res.Allowed {
		st.gov.Allowlist = "fail"
		return deny(CheckAllowlist, res.Reason)
	}
	st.gov.Allowlist = "pass"
	pass(CheckAllowlist)

	if err := o.breaker.Allow(); err != nil {
		st.gov.CircuitBreaker = o.breaker.State()
		return deny(CheckCircuitBreaker, "circuit breaker is open: settlements are temporarily suspended")
	}
	st.gov.CircuitBreaker = o.breaker.State()

	want, err := txparse.ExpectedFrom(pr)
	if err != nil {
		return deny(CheckTransaction, err.Error())
	}
	transfers, tx, err := txparse.ParseTransfers(raw)
	if err != nil {
		return deny(CheckTransaction, fmt.Sprintf("failed to parse transaction: %v", err))
	}
	t, match, ok := txparse.SelectTransfer(transfers, want)
	if !ok {
		return deny(CheckTransaction, txparse.ErrNoTransfer.Error())
	}
	if !match.All() {
		return deny(CheckTransaction, match.Mismatch(t, want))
	}
	st.transfer = &t
	st.amount = want.Amount
	pass(CheckTransaction)

	del := o.delegation.Validate(ctx, t.Source, t.Authority, want.Amount, t.Mint)
	switch {
	case del.Active():
		st.gov.Delegation = string(del.Status)
	case !o.cfg.RequireDelegation && del.Owner != "" && del.Owner == t.Authority.String():
		st.ownerPaid = true
		st.gov.Delegation = "owner"
	default:
		st.gov.Delegation = string(del.Status)
		return deny(CheckDelegation, delegationReason(del))
	}
	pass(CheckDelegation)

	if st.ownerPaid {
		st.gov.Budget = "skip"
	} else {
		st.budgetKey = budget.Key(t.Authority.String(), t.Source.String())
		b := o.budget.Check(st.budgetKey, want.Amount, del.DelegatedAmount)
		st.gov.Budget = string(b.Status)
		if !b.Fits() {
			return deny(CheckBudget, b.Detail)
		}
		pass(CheckBudget)
	}

	bh := o.blockhash.Validate(ctx, tx.RecentBlockhash)
	switch {
	case !bh.Valid:
		st.gov.Blockhash = "fail"
		return deny(CheckBlockhash, bh.Reason)
	case bh.Degraded:
		st.gov.Blockhash = "degraded"
	default:
		st.gov.Blockhash = "pass"
	}
	pass(CheckBlockhash)

	if o.sanctions == nil {
		st.gov.OFAC = "skip"
		return facilitator.Continue()
	}
	sres := o.sanctions.Screen([]string{t.Authority.String(), pr.PayTo, del.Owner})
	st.gov.OFAC = string(sres.Status)
	if sres.Blocked() {
		return deny(CheckSanctions, sres.Detail)
	}
	pass(CheckSanctions)
	return facilitator.Continue()
}

func delegationReason(r delegation.Result) string {
	if r.Detail != "" {
		return "delegation check failed: " + r.Detail
	}
	return "delegation check failed: " + string(r.Status)
}

// afterSettle commits state for a finalized payment. The payment happened
// regardless of the caller going away, so cancellation is dropped.
func (o *Orchestrator) afterSettle(ctx context.Context, hc *facilitator.HookContext) {
	ctx = context.WithoutCancel(ctx)
	st, _ := hc.Value(settleStateKey).(*settleState)
	if st == nil {
		st = &settleState{}
	}
	res := hc.Settlement
	ttl := replay.TTL(hc.Request.PaymentRequirements.Timeout())

	if res.TxHash != "" {
		if err := o.replay.Record(ctx, replay.SignatureKey(res.TxHash), ttl); err != nil {
			o.log.Error("failed to record settled signature", map[string]any{"signature": res.TxHash, "error": err})
		}
	}
	if st.payloadKey != "" {
		if err := o.replay.Record(ctx, st.payloadKey, ttl); err != nil {
			o.log.Error("failed to record settled payload", map[string]any{"signature": res.TxHash, "error": err})
		}
	}
	o.rate.Increment()
	if st.budgetKey != "" && st.amount != nil {
		if err := o.budget.Record(st.budgetKey, st.amount); err != nil {
			o.log.Error("failed to record budget spend", map[string]any{"key": st.budgetKey, "error": err})
		}
	}
	o.breaker.RecordSuccess()
	st.gov.Simulation = "pass"

	e := o.settleEntry(hc, st, audit.OutcomeSuccess)
	e.TxSignature = res.TxHash
	o.audit.Record(ctx, e)
}

func (o *Orchestrator) onSettleFailure(ctx context.Context, hc *facilitator.HookContext) {
	if ctx.Err() != nil {
		return
	}
	if hc.Request == nil {
		return
	}
	st, _ := hc.Value(settleStateKey).(*settleState)
	if st == nil {
		st = &settleState{}
	}

	var e audit.Entry
	switch {
	case hc.Abort != nil:
		e = o.settleEntry(hc, st, audit.OutcomeDenied)
		e.FailedCheck = hc.Abort.Check
		e.Error = hc.Abort.Reason
		if hc.Abort.Check != CheckCircuitBreaker {
			o.breaker.RecordDenial()
		}
	default:
		e = o.settleEntry(hc, st, audit.OutcomeFailed)
		res := hc.Settlement
		switch {
		case hc.Err == nil && res.IsClientError():
			e.FailedCheck = CheckRequest
			o.decision(hc.Request.PaymentRequirements.Network, CheckRequest, "deny")
		case res != nil && res.Extra[types.ExtraSimulation] == "fail":
			st.gov.Simulation = "fail"
			e.Governance = st.gov
			e.FailedCheck = CheckSimulation
			o.decision(hc.Request.PaymentRequirements.Network, CheckSimulation, "deny")
		default:
			// Only submission, confirmation and dependency failures count.
			e.FailedCheck = CheckSettlement
			o.breaker.RecordFailure()
		}
		switch {
		case hc.Err != nil:
			e.Error = hc.Err.Error()
		case res != nil:
			e.Error = res.Error
			e.TxSignature = res.TxHash
		}
	}
	o.audit.Record(ctx, e)
}

func (o *Orchestrator) settleEntry(hc *facilitator.HookContext, st *settleState, outcome audit.Outcome) audit.Entry {
	e := baseEntry(audit.ActionSettle, outcome, hc, o.now())
	e.Governance = st.gov
	if st.transfer != nil {
		e.Payer = st.transfer.Authority.String()
		e.Source = st.transfer.Source.String()
	}
	return e
}

func baseEntry(action audit.Action, outcome audit.Outcome, hc *facilitator.HookContext, now time.Time) audit.Entry {
	pr := hc.Request.PaymentRequirements
	return audit.Entry{
		Action:    action,
		Outcome:   outcome,
		Network:   pr.Network,
		Scheme:    pr.Scheme,
		Asset:     pr.Asset,
		Amount:    pr.Amount,
		PayTo:     pr.PayTo,
		LatencyMs: now.Sub(hc.Started).Milliseconds(),
	}
}
