// Package facilitator runs the verify and settle lifecycle and exposes hook
// points for governance around it.
package facilitator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
	"github.com/vitwit/x402gov/types"
)

// Verifier checks payment shape against its requirements.
type Verifier interface {
	Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerificationResult, error)
}

// Settler submits a verified payment on-chain.
type Settler interface {
	Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettlementResult, error)
}

type Engine struct {
	verifier Verifier
	settler  Settler
	log      logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	mu            sync.RWMutex
	beforeVerify  []BeforeHook
	afterVerify   []AfterHook
	verifyFailure []AfterHook
	beforeSettle  []BeforeHook
	afterSettle   []AfterHook
	settleFailure []AfterHook
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = metrics.OrNoop(m) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(v Verifier, s Settler, opts ...Option) *Engine {
	e := &Engine{
		verifier: v,
		settler:  s,
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) OnBeforeVerify(h BeforeHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beforeVerify = append(e.beforeVerify, h)
}

func (e *Engine) OnAfterVerify(h AfterHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.afterVerify = append(e.afterVerify, h)
}

func (e *Engine) OnVerifyFailure(h AfterHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verifyFailure = append(e.verifyFailure, h)
}

func (e *Engine) OnBeforeSettle(h BeforeHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beforeSettle = append(e.beforeSettle, h)
}

func (e *Engine) OnAfterSettle(h AfterHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.afterSettle = append(e.afterSettle, h)
}

func (e *Engine) OnSettleFailure(h AfterHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settleFailure = append(e.settleFailure, h)
}

// Verify runs before-verify hooks, the verifier, then after-verify or
// verify-failure hooks.
func (e *Engine) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerificationResult, error) {
	hc := newHookContext(PhaseVerify, req, e.now())
	e.mu.RLock()
	before, after, failure := e.beforeVerify, e.afterVerify, e.verifyFailure
	e.mu.RUnlock()

	finish := func(res *types.VerificationResult, err error) (*types.VerificationResult, error) {
		hc.Verification, hc.Err = res, err
		outcome := "valid"
		if err != nil || res == nil || !res.IsValid {
			outcome = "invalid"
			e.runAfter(ctx, failure, hc)
		} else {
			e.runAfter(ctx, after, hc)
		}
		e.metrics.ObserveLatency(metrics.VerifyLatency, e.now().Sub(hc.Started), map[string]string{
			"network": networkOf(req),
			"outcome": outcome,
		})
		return res, err
	}

	if req == nil {
		return finish(&types.VerificationResult{IsValid: false, InvalidReason: "verify request is required"}, nil)
	}
	if err := req.Validate(); err != nil {
		return finish(&types.VerificationResult{IsValid: false, InvalidReason: err.Error()}, nil)
	}
	if abort, ok := e.runBefore(ctx, before, hc); !ok {
		hc.Abort = &abort
		return finish(&types.VerificationResult{IsValid: false, InvalidReason: abort.Reason}, nil)
	}
	if e.verifier == nil {
		return finish(nil, &types.X402Error{Code: types.ErrConfigError, Message: "no verifier configured"})
	}
	return finish(e.verifier.Verify(ctx, req))
}

// Settle runs before-settle hooks, the settler, then after-settle or
// settle-failure hooks.
func (e *Engine) Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettlementResult, error) {
	hc := newHookContext(PhaseSettle, req, e.now())
	e.mu.RLock()
	before, after, failure := e.beforeSettle, e.afterSettle, e.settleFailure
	e.mu.RUnlock()

	finish := func(res *types.SettlementResult, err error) (*types.SettlementResult, error) {
		hc.Settlement, hc.Err = res, err
		outcome := "success"
		if err != nil || res == nil || !res.Success {
			outcome = "failure"
			e.runAfter(ctx, failure, hc)
		} else {
			e.runAfter(ctx, after, hc)
		}
		e.metrics.ObserveLatency(metrics.SettleLatency, e.now().Sub(hc.Started), map[string]string{
			"network": networkOf(req),
			"outcome": outcome,
		})
		return res, err
	}

	if req == nil {
		return finish(types.ClientFailure("", "settle request is required"), nil)
	}
	if err := req.Validate(); err != nil {
		return finish(types.ClientFailure(req.PaymentRequirements.Network, err.Error()), nil)
	}
	if abort, ok := e.runBefore(ctx, before, hc); !ok {
		hc.Abort = &abort
		return finish(&types.SettlementResult{
			Success:   false,
			Error:     abort.Reason,
			NetworkId: req.PaymentRequirements.Network,
		}, nil)
	}
	if e.settler == nil {
		return finish(nil, &types.X402Error{Code: types.ErrConfigError, Message: "no settler configured"})
	}
	return finish(e.settler.Settle(ctx, req))
}

// runBefore stops at the first abort. A panicking hook aborts.
func (e *Engine) runBefore(ctx context.Context, hooks []BeforeHook, hc *HookContext) (HookResult, bool) {
	for _, h := range hooks {
		res := e.callBefore(ctx, h, hc)
		if res.Abort {
			if res.Reason == "" {
				res.Reason = "request rejected by governance"
			}
			return res, false
		}
	}
	return HookResult{}, true
}

func (e *Engine) callBefore(ctx context.Context, h BeforeHook, hc *HookContext) (res HookResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("before hook panicked", map[string]any{"phase": string(hc.Phase), "panic": fmt.Sprint(r)})
			res = AbortWith("internal", "internal governance error")
		}
	}()
	return h(ctx, hc)
}

func (e *Engine) runAfter(ctx context.Context, hooks []AfterHook, hc *HookContext) {
	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("after hook panicked", map[string]any{"phase": string(hc.Phase), "panic": fmt.Sprint(r)})
				}
			}()
			h(ctx, hc)
		}()
	}
}

func networkOf(req *types.VerifyRequest) string {
	if req == nil {
		return ""
	}
	return req.PaymentRequirements.Network
}
