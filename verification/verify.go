package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"golang.org/x/sync/errgroup"

	"github.com/vitwit/x402gov/clients"
	"github.com/vitwit/x402gov/types"
)

// Verifier interface defines the contract for payment verification
type Verifier interface {
	Verify(ctx context.Context, request *types.VerifyRequest) (*types.VerificationResult, error)
}

// VerificationService routes verification requests to per-network clients.
type VerificationService struct {
	mu      sync.RWMutex
	clients map[types.Network]clients.Client
	timeout time.Duration
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a new verification service
func NewVerificationService(timeout time.Duration) *VerificationService {
	return &VerificationService{
		clients: make(map[types.Network]clients.Client),
		timeout: timeout,
	}
}

// AddSolanaClient adds a Solana client for a specific network
func (s *VerificationService) AddSolanaClient(network types.Network, client clients.Client) error {
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

// Verify verifies a payment against its requirements. Invalid input and
// unknown networks yield an invalid result, not an error.
func (s *VerificationService) Verify(ctx context.Context, request *types.VerifyRequest) (*types.VerificationResult, error) {
	if request == nil {
		return &types.VerificationResult{IsValid: false, InvalidReason: "verify request is required"}, nil
	}
	if err := request.Validate(); err != nil {
		return &types.VerificationResult{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("invalid request: %v", err),
		}, nil
	}

	network := types.Network(request.PaymentRequirements.Network)
	s.mu.RLock()
	client, exists := s.clients[network]
	s.mu.RUnlock()
	if !exists {
		return &types.VerificationResult{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("unsupported network: %s", network),
		}, nil
	}

	verifyCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := client.VerifyPayment(verifyCtx, request)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrVerificationFailed,
			Message: fmt.Sprintf("solana verification error: %v", err),
		}
	}
	return result, nil
}

// BatchVerify verifies multiple payments concurrently. Results keep the
// order of requests; the first infrastructure error is returned alongside
// the other results, which are not canceled by it.
func (s *VerificationService) BatchVerify(ctx context.Context, requests []*types.VerifyRequest) ([]*types.VerificationResult, error) {
	results := make([]*types.VerificationResult, len(requests))
	var g errgroup.Group
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			res, err := s.Verify(ctx, req)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// VerifyWithRetry retries infrastructure errors. Invalid payments are
// returned immediately.
func (s *VerificationService) VerifyWithRetry(
	ctx context.Context,
	request *types.VerifyRequest,
	maxRetries uint,
	retryDelay time.Duration,
) (*types.VerificationResult, error) {
	var result *types.VerificationResult
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(maxRetries+1),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return retryDelay
		}),
	).Do(func() error {
		res, err := s.Verify(ctx, request)
		if err != nil {
			var xe *types.X402Error
			if errors.As(err, &xe) && (xe.Code == types.ErrInvalidPayload || xe.Code == types.ErrInvalidRequirements) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verification failed after %d attempts: %w", maxRetries+1, err)
	}
	return result, nil
}

// GetSupportedNetworks returns all networks that have configured clients
func (s *VerificationService) GetSupportedNetworks() []types.Network {
	s.mu.RLock()
	defer s.mu.RUnlock()
	networks := make([]types.Network, 0, len(s.clients))
	for network := range s.clients {
		networks = append(networks, network)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i] < networks[j] })
	return networks
}

// IsNetworkSupported checks if a network is supported
func (s *VerificationService) IsNetworkSupported(network types.Network) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.clients[network]
	return exists
}

// Close closes all client connections
func (s *VerificationService) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.Close()
	}
}
