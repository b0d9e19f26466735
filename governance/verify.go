package governance

import (
	"context"

	"github.com/vitwit/x402gov/allowlist"
	"github.com/vitwit/x402gov/audit"
	"github.com/vitwit/x402gov/facilitator"
	"github.com/vitwit/x402gov/txparse"
	"github.com/vitwit/x402gov/types"
)

const verifyStateKey = "governance.verify"

type verifyState struct {
	gov   audit.Governance
	payer string
}

func (o *Orchestrator) policyChecks(pr *types.PaymentRequirements) allowlist.Result {
	if res := allowlist.CheckTokenAllowlist(pr.Asset, o.tokens); !res.Allowed {
		return res
	}
	if res := allowlist.CheckRecipientAllowlist(pr.PayTo, o.recipients); !res.Allowed {
		return res
	}
	amount, err := pr.AmountInt()
	if err != nil {
		return allowlist.Result{Allowed: false, Reason: err.Error()}
	}
	return allowlist.CheckAmountCap(amount, o.cfg.MaxSettlementAmount)
}

func (o *Orchestrator) beforeVerify(_ context.Context, hc *facilitator.HookContext) facilitator.HookResult {
	st := &verifyState{}
	hc.Set(verifyStateKey, st)
	pr := &hc.Request.PaymentRequirements

	if res := o.policyChecks(pr); !res.Allowed {
		st.gov.Allowlist = "fail"
		o.decision(pr.Network, CheckAllowlist, "deny")
		return facilitator.AbortWith(CheckAllowlist, res.Reason)
	}
	st.gov.Allowlist = "pass"
	o.decision(pr.Network, CheckAllowlist, "pass")

	addrs := []string{pr.PayTo}
	if payer := payerOf(hc.Request); payer != "" {
		st.payer = payer
		addrs = append(addrs, payer)
	}
	if o.sanctions == nil {
		st.gov.OFAC = "skip"
		return facilitator.Continue()
	}
	res := o.sanctions.Screen(addrs)
	st.gov.OFAC = string(res.Status)
	if res.Blocked() {
		o.decision(pr.Network, CheckSanctions, "deny")
		return facilitator.AbortWith(CheckSanctions, res.Detail)
	}
	o.decision(pr.Network, CheckSanctions, "pass")
	return facilitator.Continue()
}

func (o *Orchestrator) afterVerify(ctx context.Context, hc *facilitator.HookContext) {
	o.recordVerify(ctx, hc, audit.OutcomeSuccess)
}

func (o *Orchestrator) onVerifyFailure(ctx context.Context, hc *facilitator.HookContext) {
	if ctx.Err() != nil {
		return
	}
	outcome := audit.OutcomeDenied
	if hc.Err != nil {
		outcome = audit.OutcomeFailed
	}
	o.recordVerify(ctx, hc, outcome)
}

func (o *Orchestrator) recordVerify(ctx context.Context, hc *facilitator.HookContext, outcome audit.Outcome) {
	if hc.Request == nil {
		return
	}
	e := baseEntry(audit.ActionVerify, outcome, hc, o.now())
	if st, ok := hc.Value(verifyStateKey).(*verifyState); ok {
		e.Governance = st.gov
		e.Payer = st.payer
	}
	if hc.Abort != nil {
		e.FailedCheck = hc.Abort.Check
		e.Error = hc.Abort.Reason
	} else if v := hc.Verification; v != nil && !v.IsValid {
		e.FailedCheck = "verification"
		e.Error = v.InvalidReason
	} else if hc.Err != nil {
		e.Error = hc.Err.Error()
	}
	if v := hc.Verification; v != nil && v.Payer != "" {
		e.Payer = v.Payer
	}
	o.audit.Record(ctx, e)
}

// payerOf best-effort recovers the transfer authority from the payload.
func payerOf(req *types.VerifyRequest) string {
	raw, err := req.PaymentPayload.TransactionBytes()
	if err != nil {
		return ""
	}
	transfers, _, err := txparse.ParseTransfers(raw)
	if err != nil || len(transfers) == 0 {
		return ""
	}
	want, err := txparse.ExpectedFrom(&req.PaymentRequirements)
	if err != nil {
		return transfers[0].Authority.String()
	}
	t, _, _ := txparse.SelectTransfer(transfers, want)
	return t.Authority.String()
}
