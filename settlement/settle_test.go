package settlement

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
	res *types.SettlementResult
	err error
}

func (c *stubClient) VerifyPayment(context.Context, *types.VerifyRequest) (*types.VerificationResult, error) {
	return nil, errors.New("not used")
}

func (c *stubClient) SettlePayment(ctx context.Context, req *types.VerifyRequest) (*types.SettlementResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	res := *c.res
	res.NetworkId = req.PaymentRequirements.Network
	return &res, nil
}

func (c *stubClient) GetNetwork() types.Network { return types.NetworkSolanaDevnet }
func (c *stubClient) Close()                    {}

func request(network types.Network) *types.VerifyRequest {
	return &types.VerifyRequest{
		X402Version: 1,
		PaymentPayload: types.PaymentPayload{
			Payload: types.SolanaPaymentPayload{Transaction: "AQID"},
		},
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            "exact",
			Network:           string(network),
			Amount:            "1",
			PayTo:             "merchant",
			MaxTimeoutSeconds: 30,
			Asset:             "mint",
		},
	}
}

func TestSettleRouting(t *testing.T) {
	s := NewSettlementService(time.Second)
	require.NoError(t, s.AddSolanaClient(types.NetworkSolanaDevnet, &stubClient{res: &types.SettlementResult{Success: true, TxHash: "sig"}}))

	res, err := s.Settle(context.Background(), request(types.NetworkSolanaDevnet))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sig", res.TxHash)

	res, err = s.Settle(context.Background(), request(types.NetworkSolanaMainnet))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no settlement client")
	assert.True(t, res.IsClientError())
	assert.False(t, s.IsNetworkSupported(types.NetworkSolanaMainnet))
}

func TestSettleFoldsClientErrors(t *testing.T) {
	s := NewSettlementService(time.Second)
	require.NoError(t, s.AddSolanaClient(types.NetworkSolanaDevnet, &stubClient{err: errors.New("no signer")}))

	res, err := s.Settle(context.Background(), request(types.NetworkSolanaDevnet))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "no signer", res.Error)
	assert.Equal(t, string(types.NetworkSolanaDevnet), res.NetworkId)
}

func TestBatchSettle(t *testing.T) {
	s := NewSettlementService(0)
	require.NoError(t, s.AddSolanaClient(types.NetworkSolanaDevnet, &stubClient{res: &types.SettlementResult{Success: true}}))

	results, err := s.BatchSettle(context.Background(), []*types.VerifyRequest{
		request(types.NetworkSolanaDevnet),
		request(types.NetworkSolanaLocal),
		request(types.NetworkSolanaDevnet),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, []types.Network{types.NetworkSolanaDevnet}, s.GetSupportedNetworks())
}
