package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402gov/types"
)

type stubClient struct {
	network  types.Network
	res      *types.VerificationResult
	errs     []error
	calls    int
	closed   bool
	deadline bool
}

func (c *stubClient) VerifyPayment(ctx context.Context, _ *types.VerifyRequest) (*types.VerificationResult, error) {
	c.calls++
	_, c.deadline = ctx.Deadline()
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return c.res, nil
}

func (c *stubClient) SettlePayment(context.Context, *types.VerifyRequest) (*types.SettlementResult, error) {
	return nil, errors.New("not used")
}

func (c *stubClient) GetNetwork() types.Network { return c.network }
func (c *stubClient) Close()                    { c.closed = true }

func request(network types.Network) *types.VerifyRequest {
	return &types.VerifyRequest{
		X402Version: 1,
		PaymentPayload: types.PaymentPayload{
			Network: string(network),
			Payload: types.SolanaPaymentPayload{Transaction: "AQID"},
		},
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            "exact",
			Network:           string(network),
			Amount:            "1000",
			PayTo:             "merchant",
			MaxTimeoutSeconds: 30,
			Asset:             "mint",
		},
	}
}

func TestAddSolanaClientRejectsOtherNetworks(t *testing.T) {
	s := NewVerificationService(time.Second)
	err := s.AddSolanaClient("base-sepolia", &stubClient{})
	var xe *types.X402Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, types.ErrUnsupportedNetwork, xe.Code)
}

func TestVerifyRoutesByNetwork(t *testing.T) {
	s := NewVerificationService(time.Second)
	c := &stubClient{network: types.NetworkSolanaDevnet, res: &types.VerificationResult{IsValid: true}}
	require.NoError(t, s.AddSolanaClient(types.NetworkSolanaDevnet, c))

	res, err := s.Verify(context.Background(), request(types.NetworkSolanaDevnet))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.True(t, c.deadline)

	res, err = s.Verify(context.Background(), request(types.NetworkSolanaMainnet))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.InvalidReason, "unsupported network")

	bad := request(types.NetworkSolanaDevnet)
	bad.PaymentRequirements.Amount = "-1"
	res, err = s.Verify(context.Background(), bad)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, 1, c.calls)

	assert.Equal(t, []types.Network{types.NetworkSolanaDevnet}, s.GetSupportedNetworks())
	assert.True(t, s.IsNetworkSupported(types.NetworkSolanaDevnet))
	s.Close()
	assert.True(t, c.closed)
}

func TestBatchVerifyKeepsOrder(t *testing.T) {
	s := NewVerificationService(0)
	require.NoError(t, s.AddSolanaClient(types.NetworkSolanaDevnet, &stubClient{res: &types.VerificationResult{IsValid: true}}))

	results, err := s.BatchVerify(context.Background(), []*types.VerifyRequest{
		request(types.NetworkSolanaDevnet),
		request(types.NetworkSolanaMainnet),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)
}

func TestVerifyWithRetry(t *testing.T) {
	s := NewVerificationService(time.Second)
	c := &stubClient{
		res:  &types.VerificationResult{IsValid: true},
		errs: []error{errors.New("rpc unavailable")},
	}
	require.NoError(t, s.AddSolanaClient(types.NetworkSolanaDevnet, c))

	res, err := s.VerifyWithRetry(context.Background(), request(types.NetworkSolanaDevnet), 2, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, 2, c.calls)
}
