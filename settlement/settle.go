package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitwit/x402gov/clients"
	"github.com/vitwit/x402gov/types"
)

// Settler interface defines the contract for payment settlement
type Settler interface {
	Settle(ctx context.Context, request *types.VerifyRequest) (*types.SettlementResult, error)
}

// SettlementService routes settlement requests to per-network clients.
type SettlementService struct {
	mu      sync.RWMutex
	clients map[types.Network]clients.Client
	timeout time.Duration
}

var _ Settler = (*SettlementService)(nil)

// NewSettlementService creates a new settlement service
func NewSettlementService(timeout time.Duration) *SettlementService {
	return &SettlementService{
		clients: make(map[types.Network]clients.Client),
		timeout: timeout,
	}
}

// AddSolanaClient adds a Solana client for a specific network
func (s *SettlementService) AddSolanaClient(network types.Network, client clients.Client) error {
	if !network.IsSolana() {
		return &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("network %s is not a Solana network", network),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[network] = client
	return nil
}

// Settle submits a payment through the client for its network. Client
// errors are folded into a failed result.
func (s *SettlementService) Settle(ctx context.Context, payload *types.VerifyRequest) (*types.SettlementResult, error) {
	if payload == nil {
		return types.ClientFailure("", "settle request is required"), nil
	}
	network := types.Network(payload.PaymentRequirements.Network)

	s.mu.RLock()
	client, exists := s.clients[network]
	s.mu.RUnlock()
	if !exists {
		return types.ClientFailure(payload.PaymentRequirements.Network,
			fmt.Sprintf("no settlement client found for network %s", network)), nil
	}

	settleCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := client.SettlePayment(settleCtx, payload)
	if err != nil {
		return &types.SettlementResult{
			Success:   false,
			Error:     err.Error(),
			NetworkId: payload.PaymentRequirements.Network,
		}, nil
	}
	return result, nil
}

// BatchSettle settles multiple payments concurrently. Individual failures
// are recorded in the result objects; only cancellation aborts the batch.
func (s *SettlementService) BatchSettle(ctx context.Context, requests []*types.VerifyRequest) ([]*types.SettlementResult, error) {
	results := make([]*types.SettlementResult, len(requests))
	var g errgroup.Group
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			res, err := s.Settle(ctx, req)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Close closes all client connections
func (s *SettlementService) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.Close()
	}
}

// GetSupportedNetworks returns all networks that have configured clients
func (s *SettlementService) GetSupportedNetworks() []types.Network {
	s.mu.RLock()
	defer s.mu.RUnlock()
	networks := make([]types.Network, 0, len(s.clients))
	for network := range s.clients {
		networks = append(networks, network)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i] < networks[j] })
	return networks
}

// IsNetworkSupported checks if a network is supported for settlement
func (s *SettlementService) IsNetworkSupported(network types.Network) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.clients[network]
	return exists
}
