package clients

import (
	"context"

	"github.com/vitwit/x402gov/types"
)

// Client verifies and settles payments on one network.
type Client interface {
	VerifyPayment(ctx context.Context, payload *types.VerifyRequest) (*types.VerificationResult, error)
	SettlePayment(ctx context.Context, payload *types.VerifyRequest) (*types.SettlementResult, error)
	GetNetwork() types.Network
	Close()
}
