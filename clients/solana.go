package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402gov/gas"
	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
	"github.com/vitwit/x402gov/txparse"
	"github.com/vitwit/x402gov/types"
	"github.com/vitwit/x402gov/utils"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// SolanaClient verifies exact-scheme SPL token payments and settles them by
// co-signing as fee payer and submitting.
type SolanaClient struct {
	network    types.Network
	ledger     ledger.Client
	signer     Signer
	gas        *gas.Manager
	verifier   *txparse.Verifier
	commitment ledger.Commitment

	confirmTimeout time.Duration
	pollInterval   time.Duration

	log     logger.Logger
	metrics metrics.Recorder
}

var _ Client = (*SolanaClient)(nil)

type SolanaOption func(*SolanaClient)

// WithSigner sets the fee payer key used to co-sign settlements.
func WithSigner(s Signer) SolanaOption {
	return func(c *SolanaClient) { c.signer = s }
}

// WithCommitment sets the confirmation level settlements wait for.
func WithCommitment(cm ledger.Commitment) SolanaOption {
	return func(c *SolanaClient) { c.commitment = cm }
}

func WithConfirmation(timeout, interval time.Duration) SolanaOption {
	return func(c *SolanaClient) {
		if timeout > 0 {
			c.confirmTimeout = timeout
		}
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithGasManager overrides the fee payer balance gate.
func WithGasManager(m *gas.Manager) SolanaOption {
	return func(c *SolanaClient) { c.gas = m }
}

func WithLogger(l logger.Logger) SolanaOption {
	return func(c *SolanaClient) { c.log = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) SolanaOption {
	return func(c *SolanaClient) { c.metrics = metrics.OrNoop(m) }
}

// NewSolanaClient creates a client talking JSON-RPC to rpcURL.
func NewSolanaClient(network types.Network, rpcURL string, opts ...SolanaOption) (*SolanaClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("solana client for %s: rpc url is required", network)
	}
	return NewSolanaClientWithLedger(network, ledger.NewRPC(rpcURL), opts...)
}

// NewSolanaClientWithLedger creates a client over an existing ledger client.
func NewSolanaClientWithLedger(network types.Network, lc ledger.Client, opts ...SolanaOption) (*SolanaClient, error) {
	if !network.IsSolana() {
		return nil, fmt.Errorf("%s: %s is not a solana network", ErrInvalidNetwork, network)
	}
	if lc == nil {
		return nil, errors.New("solana client: ledger is required")
	}
	c := &SolanaClient{
		network:        network,
		ledger:         lc,
		commitment:     ledger.CommitmentConfirmed,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		log:            logger.NoopLogger{},
		metrics:        metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}

	vopts := []txparse.Option{txparse.WithLogger(c.log)}
	if c.signer != nil {
		vopts = append(vopts, txparse.WithFeePayer(c.signer.PublicKey()))
		if c.gas == nil {
			c.gas = gas.NewManager(lc, gas.Config{FeePayer: c.signer.PublicKey()}, c.log, c.metrics)
		}
	}
	c.verifier = txparse.NewVerifier(lc, vopts...)
	return c, nil
}

// VerifyPayment checks the payment transaction against its requirements and
// dry-runs it. It does not submit anything.
func (c *SolanaClient) VerifyPayment(ctx context.Context, payload *types.VerifyRequest) (*types.VerificationResult, error) {
	raw, want, res := c.prepare(payload)
	if res != nil {
		return res, nil
	}

	vr := c.verifier.SimulateAndVerify(ctx, raw, want)
	out := &types.VerificationResult{
		IsValid:   vr.Success,
		Amount:    payload.PaymentRequirements.Amount,
		Token:     payload.PaymentRequirements.Asset,
		Recipient: payload.PaymentRequirements.PayTo,
		Extra: types.ExtraData{
			"recipientVerified": vr.RecipientVerified,
			"amountVerified":    vr.AmountVerified,
			"tokenMintVerified": vr.TokenMintVerified,
			"simulated":         vr.Simulated,
		},
	}
	if vr.Transfer != nil {
		out.Payer = vr.Transfer.Authority.String()
		out.Extra[types.ExtraAmountDisplay] = utils.FormatAmountFromBigInt(vr.Transfer.AmountInt(), int(vr.Transfer.Decimals))
	}
	if vr.Simulated {
		out.Extra["unitsConsumed"] = vr.UnitsConsumed
	}
	if !vr.Success {
		out.InvalidReason = vr.Error
		out.Extra["code"] = verifyCode(vr.Failure)
	}
	return out, nil
}

// prepare decodes the payload and requirements. A non-nil result is an
// invalid verdict to return as is.
func (c *SolanaClient) prepare(payload *types.VerifyRequest) ([]byte, txparse.Expected, *types.VerificationResult) {
	invalid := func(code, reason string) *types.VerificationResult {
		return &types.VerificationResult{
			IsValid:       false,
			InvalidReason: reason,
			Extra:         types.ExtraData{"code": code},
		}
	}
	if payload == nil {
		return nil, txparse.Expected{}, invalid(ErrInvalidExactSvmPayload, "verify request is required")
	}
	pr := &payload.PaymentRequirements
	if pr.Scheme != string(types.SchemeExact) {
		return nil, txparse.Expected{}, invalid(ErrUnsupportedScheme, fmt.Sprintf("unsupported scheme %q", pr.Scheme))
	}
	if types.Network(pr.Network) != c.network {
		return nil, txparse.Expected{}, invalid(ErrInvalidNetwork, fmt.Sprintf("network %q is not served by this client (%s)", pr.Network, c.network))
	}
	raw, err := payload.PaymentPayload.TransactionBytes()
	if err != nil {
		return nil, txparse.Expected{}, invalid(ErrInvalidExactSvmPayload, err.Error())
	}
	want, err := txparse.ExpectedFrom(pr)
	if err != nil {
		return nil, txparse.Expected{}, invalid(ErrInvalidRequirements, err.Error())
	}
	if c.signer != nil {
		if fp, ok := pr.Extra["feePayer"].(string); ok && fp != "" && fp != c.signer.PublicKey().String() {
			return nil, txparse.Expected{}, invalid(ErrFeePayerMismatch, fmt.Sprintf("requirements fee payer %s is not this facilitator's fee payer", fp))
		}
	}
	return raw, want, nil
}

// SettlePayment re-verifies the payment, co-signs it as fee payer, submits it
// and waits for the configured commitment.
func (c *SolanaClient) SettlePayment(ctx context.Context, payload *types.VerifyRequest) (*types.SettlementResult, error) {
	fail := func(code, msg string) *types.SettlementResult {
		return &types.SettlementResult{
			Success:   false,
			NetworkId: string(c.network),
			Error:     msg,
			Extra:     types.ExtraData{"code": code},
		}
	}
	if c.signer == nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: "solana client has no fee payer signer"}
	}

	raw, want, invalid := c.prepare(payload)
	if invalid != nil {
		res := fail(invalid.Extra["code"].(string), invalid.InvalidReason)
		res.Extra[types.ExtraClientError] = true
		return res, nil
	}

	if ok, reason := c.gas.CanAffordSettlement(ctx); !ok {
		return fail(ErrFeePayerBalanceTooLow, reason), nil
	}

	vr := c.verifier.SimulateAndVerify(ctx, raw, want)
	if !vr.Success {
		res := fail(verifyCode(vr.Failure), vr.Error)
		switch {
		case vr.Failure == txparse.FailureSimulation:
			res.Extra[types.ExtraSimulation] = "fail"
		case vr.Failure.ClientError():
			res.Extra[types.ExtraClientError] = true
		}
		if vr.Transfer != nil {
			res.Payer = vr.Transfer.Authority.String()
		}
		return res, nil
	}
	payer := vr.Transfer.Authority.String()

	signed, err := cosign(raw, vr.Transaction, c.signer)
	if err != nil {
		res := fail(ErrTransactionSignerMissingSignatures, err.Error())
		res.Payer = payer
		return res, nil
	}

	sig, err := c.ledger.SendTransaction(ctx, signed)
	if err != nil {
		c.log.Warn("settlement submission failed", map[string]any{"network": string(c.network), "error": err})
		res := fail(sendCode(err), fmt.Sprintf("broadcast failed: %v", err))
		res.Payer = payer
		return res, nil
	}
	c.log.Info("settlement submitted", map[string]any{"network": string(c.network), "signature": sig.String()})

	status, err := c.confirm(ctx, sig)
	if err != nil {
		code := ErrSettleTransactionConfirmationTimedOut
		var txErr *transactionError
		if errors.As(err, &txErr) {
			code = ErrSettleTransactionFailed
		}
		res := fail(code, err.Error())
		res.TxHash = sig.String()
		res.Payer = payer
		return res, nil
	}

	return &types.SettlementResult{
		Success:   true,
		TxHash:    sig.String(),
		NetworkId: string(c.network),
		Payer:     payer,
		Extra: types.ExtraData{
			types.ExtraSlot:   status.Slot,
			types.ExtraStatus: string(status.Confirmation),
		},
	}, nil
}

type transactionError struct{ msg string }

func (e *transactionError) Error() string { return "transaction failed on-chain: " + e.msg }

var errNotConfirmed = errors.New("transaction not yet confirmed")

// confirm polls the signature status until it reaches c.commitment, the
// transaction fails, or confirmTimeout elapses.
func (c *SolanaClient) confirm(ctx context.Context, sig solana.Signature) (*ledger.SignatureStatus, error) {
	cctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	attempts := uint(c.confirmTimeout/c.pollInterval) + 1
	var status *ledger.SignatureStatus
	err := retry.New(
		retry.Context(cctx),
		retry.Attempts(attempts),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return c.pollInterval
		}),
	).Do(func() error {
		st, err := c.ledger.SignatureStatus(cctx, sig)
		if err != nil {
			c.log.Debug("signature status lookup failed", map[string]any{"signature": sig.String(), "error": err})
			return err
		}
		if st != nil && st.Err != "" {
			return retry.Unrecoverable(&transactionError{msg: st.Err})
		}
		if !st.Reached(c.commitment) {
			return errNotConfirmed
		}
		status = st
		return nil
	})
	if err == nil {
		return status, nil
	}
	var txErr *transactionError
	if errors.As(err, &txErr) {
		return nil, txErr
	}
	return nil, fmt.Errorf("transaction %s not %s within %s: %w", sig, c.commitment, c.confirmTimeout, err)
}

func (c *SolanaClient) GetNetwork() types.Network { return c.network }

// FeePayer returns the co-signing key, or the zero key without a signer.
func (c *SolanaClient) FeePayer() solana.PublicKey {
	if c.signer == nil {
		return solana.PublicKey{}
	}
	return c.signer.PublicKey()
}

// Gas returns the fee payer balance manager, nil without a signer.
func (c *SolanaClient) Gas() *gas.Manager { return c.gas }

// Ledger exposes the underlying ledger client for governance wiring.
func (c *SolanaClient) Ledger() ledger.Client { return c.ledger }

func (c *SolanaClient) Close() {}
