package facilitator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402gov/types"
)

type stubVerifier struct {
	res   *types.VerificationResult
	err   error
	calls int
}

func (s *stubVerifier) Verify(context.Context, *types.VerifyRequest) (*types.VerificationResult, error) {
	s.calls++
	return s.res, s.err
}

type stubSettler struct {
	res   *types.SettlementResult
	err   error
	calls int
}

func (s *stubSettler) Settle(context.Context, *types.VerifyRequest) (*types.SettlementResult, error) {
	s.calls++
	return s.res, s.err
}

func request() *types.VerifyRequest {
	return &types.VerifyRequest{
		X402Version: 1,
		PaymentPayload: types.PaymentPayload{
			X402Version: 1,
			Scheme:      "exact",
			Network:     "solana-devnet",
			Payload:     types.SolanaPaymentPayload{Transaction: "AQID"},
		},
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            "exact",
			Network:           "solana-devnet",
			Amount:            "1000",
			PayTo:             "merchant",
			MaxTimeoutSeconds: 60,
			Asset:             "mint",
		},
	}
}

func TestSettleHookOrderAndState(t *testing.T) {
	settler := &stubSettler{res: &types.SettlementResult{Success: true, TxHash: "sig"}}
	e := New(&stubVerifier{}, settler)

	var calls []string
	e.OnBeforeSettle(func(_ context.Context, hc *HookContext) HookResult {
		calls = append(calls, "before")
		hc.Set("k", 42)
		return Continue()
	})
	e.OnAfterSettle(func(_ context.Context, hc *HookContext) {
		calls = append(calls, "after")
		assert.Equal(t, 42, hc.Value("k"))
		assert.Equal(t, "sig", hc.Settlement.TxHash)
	})
	e.OnSettleFailure(func(context.Context, *HookContext) { calls = append(calls, "failure") })

	res, err := e.Settle(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"before", "after"}, calls)
}

func TestBeforeSettleAbortShortCircuits(t *testing.T) {
	settler := &stubSettler{res: &types.SettlementResult{Success: true}}
	e := New(nil, settler)

	second := false
	e.OnBeforeSettle(func(context.Context, *HookContext) HookResult {
		return AbortWith("replay", "Replay detected")
	})
	e.OnBeforeSettle(func(context.Context, *HookContext) HookResult {
		second = true
		return Continue()
	})
	var failed *HookContext
	e.OnSettleFailure(func(_ context.Context, hc *HookContext) { failed = hc })

	res, err := e.Settle(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Replay detected", res.Error)
	assert.False(t, second)
	assert.Zero(t, settler.calls)
	require.NotNil(t, failed)
	require.NotNil(t, failed.Abort)
	assert.Equal(t, "replay", failed.Abort.Check)
}

func TestSettlerFailureRunsFailureHooks(t *testing.T) {
	e := New(nil, &stubSettler{res: &types.SettlementResult{Success: false, Error: "broadcast failed"}})
	var got *HookContext
	e.OnSettleFailure(func(_ context.Context, hc *HookContext) { got = hc })

	res, err := e.Settle(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, got)
	assert.Nil(t, got.Abort)
	assert.Equal(t, "broadcast failed", got.Settlement.Error)

	boom := errors.New("rpc down")
	e = New(nil, &stubSettler{err: boom})
	e.OnSettleFailure(func(_ context.Context, hc *HookContext) { got = hc })
	_, err = e.Settle(context.Background(), request())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, got.Err, boom)
}

func TestPanickingHooks(t *testing.T) {
	settler := &stubSettler{res: &types.SettlementResult{Success: true}}
	e := New(nil, settler)
	e.OnBeforeSettle(func(context.Context, *HookContext) HookResult { panic("nil map") })

	res, err := e.Settle(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, settler.calls)

	e = New(nil, settler)
	e.OnAfterSettle(func(context.Context, *HookContext) { panic("audit") })
	assert.NotPanics(t, func() {
		res, err = e.Settle(context.Background(), request())
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerifyLifecycle(t *testing.T) {
	v := &stubVerifier{res: &types.VerificationResult{IsValid: true}}
	e := New(v, nil)

	var after, failure int
	e.OnAfterVerify(func(context.Context, *HookContext) { after++ })
	e.OnVerifyFailure(func(context.Context, *HookContext) { failure++ })

	res, err := e.Verify(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	e.OnBeforeVerify(func(context.Context, *HookContext) HookResult {
		return AbortWith("allowlist", "token not allowed")
	})
	res, err = e.Verify(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "token not allowed", res.InvalidReason)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, 1, after)
	assert.Equal(t, 1, failure)
}

func TestInvalidRequestNeverReachesHooks(t *testing.T) {
	e := New(&stubVerifier{}, &stubSettler{})
	reached := false
	e.OnBeforeSettle(func(context.Context, *HookContext) HookResult {
		reached = true
		return Continue()
	})

	req := request()
	req.PaymentRequirements.Amount = "-5"
	res, err := e.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.IsClientError())
	assert.False(t, reached)
}
