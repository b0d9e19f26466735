// Package x402gov is an x402 facilitator for exact-scheme SPL token payments
// on Solana with a governance layer in front of every settlement.
package x402gov

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitwit/x402gov/clients"
	"github.com/vitwit/x402gov/facilitator"
	"github.com/vitwit/x402gov/governance"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
	"github.com/vitwit/x402gov/settlement"
	"github.com/vitwit/x402gov/types"
	"github.com/vitwit/x402gov/verification"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryDelay = 200 * time.Millisecond
)

// X402 is the main struct that provides all x402 functionality
type X402 struct {
	verificationService *verification.VerificationService
	settlementService   *settlement.SettlementService
	engine              *facilitator.Engine
	config              *types.X402Config

	logger     logger.Logger
	metrics    metrics.Recorder
	timeout    time.Duration
	retries    uint
	retryDelay time.Duration

	mu         sync.RWMutex
	clients    map[types.Network]*clients.SolanaClient
	supported  map[types.Network]types.NetworkCapability
	governance *governance.Orchestrator
	closeOnce  sync.Once
}

// New creates a new X402 instance with the given configuration
func New(config *types.X402Config, opts ...Option) *X402 {
	x := &X402{
		config:     config,
		timeout:    DefaultTimeout,
		retryDelay: DefaultRetryDelay,
		clients:    make(map[types.Network]*clients.SolanaClient),
		supported:  make(map[types.Network]types.NetworkCapability),
	}
	if config != nil {
		if config.DefaultTimeout > 0 {
			x.timeout = config.DefaultTimeout
		}
		if config.LogLevel != "" {
			x.logger = logger.NewZapLogger(config.LogLevel)
		}
		if config.RetryCount > 0 {
			x.retries = uint(config.RetryCount)
		}
	}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = logger.OrNoop(x.logger)
	x.metrics = metrics.OrNoop(x.metrics)

	x.verificationService = verification.NewVerificationService(x.timeout)
	x.settlementService = settlement.NewSettlementService(x.timeout)
	var verifier facilitator.Verifier = x.verificationService
	if x.retries > 0 {
		verifier = retryingVerifier{svc: x.verificationService, retries: x.retries, delay: x.retryDelay}
	}
	x.engine = facilitator.New(
		verifier,
		x.settlementService,
		facilitator.WithLogger(x.logger),
		facilitator.WithMetrics(x.metrics),
	)
	return x
}

// NewWithDefaults creates a new X402 instance with default configuration
func NewWithDefaults(opts ...Option) *X402 {
	return New(&types.X402Config{
		DefaultTimeout: DefaultTimeout,
		RetryCount:     3,
		LogLevel:       "info",
	}, opts...)
}

// AddNetwork creates a Solana client for network from config. The fee payer
// signer, when settling is wanted, is passed as clients.WithSigner.
func (x *X402) AddNetwork(network types.Network, config types.ClientConfig, opts ...clients.SolanaOption) error {
	if !network.IsSolana() {
		return &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", network),
		}
	}

	base := []clients.SolanaOption{
		clients.WithLogger(x.logger),
		clients.WithMetrics(x.metrics),
	}
	if config.Commitment != "" {
		base = append(base, clients.WithCommitment(ledgerCommitment(config.Commitment)))
	}
	if config.Timeout > 0 {
		base = append(base, clients.WithConfirmation(config.Timeout, 0))
	}
	client, err := clients.NewSolanaClient(network, config.RPCUrl, append(base, opts...)...)
	if err != nil {
		return fmt.Errorf("failed to create Solana client for %s: %w", network, err)
	}
	return x.AddClient(client)
}

// AddClient registers an already built Solana client.
func (x *X402) AddClient(client *clients.SolanaClient) error {
	network := client.GetNetwork()
	if err := x.verificationService.AddSolanaClient(network, client); err != nil {
		return err
	}
	if err := x.settlementService.AddSolanaClient(network, client); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.clients[network] = client
	x.supported[network] = types.NetworkCapability{
		Network:     network,
		X402Version: int(types.X402Version2),
		Scheme:      types.SchemeExact,
		ChainFamily: types.ChainSolana,
	}
	x.logger.Info("network added", map[string]any{"network": network.String(), "fee_payer": client.FeePayer().String()})
	return nil
}

// UseGovernance installs o's hooks on the verify/settle lifecycle. Close
// destroys o.
func (x *X402) UseGovernance(o *governance.Orchestrator) {
	x.mu.Lock()
	x.governance = o
	x.mu.Unlock()
	o.Register(x.engine)
}

// Governance returns the installed orchestrator, or nil.
func (x *X402) Governance() *governance.Orchestrator {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.governance
}

// Client returns the Solana client for network.
func (x *X402) Client(network types.Network) (*clients.SolanaClient, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.clients[network]
	return c, ok
}

// Engine exposes the lifecycle engine for registering additional hooks.
func (x *X402) Engine() *facilitator.Engine { return x.engine }

// Verify verifies a payment against requirements
func (x *X402) Verify(ctx context.Context, payload *types.VerifyRequest) (*types.VerificationResult, error) {
	return x.engine.Verify(ctx, payload)
}

// Settle settles a payment transaction
func (x *X402) Settle(ctx context.Context, payload *types.VerifyRequest) (*types.SettlementResult, error) {
	return x.engine.Settle(ctx, payload)
}

// BatchVerify verifies multiple payments concurrently. One request's error
// does not cancel the others; each still runs its hooks and is audited.
func (x *X402) BatchVerify(ctx context.Context, payload []*types.VerifyRequest) ([]*types.VerificationResult, error) {
	if len(payload) == 0 {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: "at least one verify request is required",
		}
	}

	results := make([]*types.VerificationResult, len(payload))
	var g errgroup.Group
	for i, req := range payload {
		i, req := i, req
		g.Go(func() error {
			res, err := x.engine.Verify(ctx, req)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// BatchSettle settles multiple payments concurrently. Failures are reported
// per result; the batch itself only fails on infrastructure errors.
func (x *X402) BatchSettle(ctx context.Context, requests []*types.VerifyRequest) ([]*types.SettlementResult, error) {
	results := make([]*types.SettlementResult, len(requests))
	var g errgroup.Group
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			res, err := x.engine.Settle(ctx, req)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// retryingVerifier retries verifier errors. Invalid verdicts are final.
type retryingVerifier struct {
	svc     *verification.VerificationService
	retries uint
	delay   time.Duration
}

func (r retryingVerifier) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerificationResult, error) {
	return r.svc.VerifyWithRetry(ctx, req, r.retries, r.delay)
}

func (x *X402) Supported() (*types.SupportedResponse, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	kinds := make([]types.SupportedItem, 0, len(x.supported))
	for _, c := range x.supported {
		kinds = append(kinds, c.SupportedItem())
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Network < kinds[j].Network })
	return &types.SupportedResponse{Kinds: kinds}, nil
}

// IsNetworkSupported checks if a network is supported
func (x *X402) IsNetworkSupported(network types.Network) bool {
	return x.verificationService.IsNetworkSupported(network) &&
		x.settlementService.IsNetworkSupported(network)
}

// Close closes all client connections and releases governance state.
func (x *X402) Close() {
	x.closeOnce.Do(func() {
		x.verificationService.Close()
		x.settlementService.Close()
		if o := x.Governance(); o != nil {
			o.Destroy()
		}
	})
}

// Version information
const (
	Version         = "0.1.0"
	ProtocolVersion = 2
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":  Version,
		"protocol_version": ProtocolVersion,
		"supported_networks": []string{
			types.NetworkSolanaMainnet.String(),
			types.NetworkSolanaDevnet.String(),
			types.NetworkSolanaLocal.String(),
		},
		"supported_schemes":   []string{string(types.SchemeExact)},
		"supported_standards": []string{"spl", "spl-token-2022"},
	}
}
