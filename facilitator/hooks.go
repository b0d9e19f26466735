package facilitator

import (
	"context"
	"time"

	"github.com/vitwit/x402gov/types"
)

type Phase string

const (
	PhaseVerify Phase = "verify"
	PhaseSettle Phase = "settle"
)

// HookContext is shared by every hook of one verify or settle call. Hooks run
// sequentially, so values need no locking.
type HookContext struct {
	Phase   Phase
	Request *types.VerifyRequest
	Started time.Time

	// Verification is set for after-verify and verify-failure hooks.
	Verification *types.VerificationResult
	// Settlement is set for after-settle and settle-failure hooks.
	Settlement *types.SettlementResult
	// Abort is set on failure hooks when a before hook stopped the call.
	Abort *HookResult
	// Err is an infrastructure error returned by the verifier or settler.
	Err error

	values map[string]any
}

func newHookContext(phase Phase, req *types.VerifyRequest, started time.Time) *HookContext {
	return &HookContext{Phase: phase, Request: req, Started: started, values: make(map[string]any)}
}

func (h *HookContext) Set(key string, v any) { h.values[key] = v }

func (h *HookContext) Value(key string) any { return h.values[key] }

// HookResult is returned by before hooks. The zero value continues.
type HookResult struct {
	Abort  bool
	Reason string
	// Check names the failing governance check, for audit.
	Check string
}

func Continue() HookResult { return HookResult{} }

func AbortWith(check, reason string) HookResult {
	return HookResult{Abort: true, Check: check, Reason: reason}
}

// BeforeHook may stop the lifecycle by returning an abort.
type BeforeHook func(ctx context.Context, hc *HookContext) HookResult

// AfterHook observes a finished call.
type AfterHook func(ctx context.Context, hc *HookContext)
