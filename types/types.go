package types

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
	X402Version2 X402Version = 2
)

// Network represents supported blockchain networks
type Network string

const (
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
	NetworkSolanaLocal   Network = "solana-localnet"
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

type SupportedItem struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}

// PaymentRequirements defines the requirements a resource server accepts for payment.
// Once issued to a payer it is treated as immutable.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g., "solana-devnet").
	Network string `json:"network" validate:"required"`

	// Amount required to pay for the resource, in base units of the asset.
	// Represented as a string because token amounts do not fit a float.
	Amount string `json:"amount" validate:"required,numeric"`

	// URL of the resource to pay for.
	Resource string `json:"resource,omitempty"`

	// Description of the resource being purchased.
	Description string `json:"description,omitempty"`

	// MIME type of the resource response (e.g., "application/json").
	MimeType string `json:"mimeType,omitempty"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds for the resource server to respond.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"gt=0"`

	// Token mint address.
	Asset string `json:"asset" validate:"required"`

	// Extra information about payment details specific to the scheme.
	// For the `exact` scheme on Solana this carries the `feePayer`.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// AmountInt parses Amount as an unsigned base-unit integer.
func (pr *PaymentRequirements) AmountInt() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(pr.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("paymentRequirements.amount %q is not an integer", pr.Amount)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("paymentRequirements.amount %q is negative", pr.Amount)
	}
	return amount, nil
}

// Timeout returns MaxTimeoutSeconds as a duration.
func (pr *PaymentRequirements) Timeout() time.Duration {
	return time.Duration(pr.MaxTimeoutSeconds) * time.Second
}

// X402Response represents a server response that includes supported payment options.
type X402Response struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	// List of payment requirements that the resource server accepts.
	Accepts []PaymentRequirements `json:"accepts"`

	// Message from the resource server indicating any processing error.
	Error string `json:"error"`
}

// VerifyRequest represents the payload sent to a facilitator to verify or settle a payment.
type VerifyRequest struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version" validate:"gt=0"`

	// Payment payload from the client. Untrusted input.
	PaymentPayload PaymentPayload `json:"paymentPayload" validate:"required"`

	// Payment requirements being verified against.
	PaymentRequirements PaymentRequirements `json:"paymentRequirements" validate:"required"`
}

// PaymentPayload is the payer's response to a PaymentRequirements.
type PaymentPayload struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	Scheme string `json:"scheme,omitempty"`

	Network string `json:"network,omitempty"`

	// The requirement the payer accepted, when the client echoes it back.
	Accepted *PaymentRequirements `json:"accepted,omitempty"`

	Payload SolanaPaymentPayload `json:"payload" validate:"required"`
}

// SolanaPaymentPayload carries the base64 wire encoding of the payer's transaction.
type SolanaPaymentPayload struct {
	Transaction string `json:"transaction" validate:"required,base64"`
}

// TransactionBytes decodes the base64 transaction blob.
func (p *PaymentPayload) TransactionBytes() ([]byte, error) {
	if p.Payload.Transaction == "" {
		return nil, fmt.Errorf("paymentPayload.payload.transaction is required")
	}
	raw, err := base64.StdEncoding.DecodeString(p.Payload.Transaction)
	if err != nil {
		return nil, fmt.Errorf("paymentPayload.payload.transaction is not base64: %w", err)
	}
	return raw, nil
}

// VerifyResponse represents the facilitator's verification result.
type VerifyResponse struct {
	// Indicates whether the payment is valid.
	IsValid bool `json:"isValid"`

	// Provides a reason if the payment is invalid, otherwise empty.
	InvalidReason string `json:"invalidReason,omitempty"`

	Payer string `json:"payer,omitempty"`
}

// Validate checks that the VerifyRequest contains all required fields.
func (v *VerifyRequest) Validate() error {
	if v.X402Version <= 0 {
		return fmt.Errorf("x402Version must be greater than 0")
	}

	if v.PaymentPayload.Payload.Transaction == "" {
		return fmt.Errorf("paymentPayload.payload.transaction is required")
	}

	if v.PaymentPayload.Network != "" && v.PaymentPayload.Network != v.PaymentRequirements.Network {
		return fmt.Errorf("payload network does not match requirements network")
	}

	return v.PaymentRequirements.Validate()
}

// ExtraData contains additional payment-specific data
type ExtraData map[string]interface{}

// VerificationResult contains the result of payment verification
type VerificationResult struct {
	IsValid       bool      `json:"isValid"`
	InvalidReason string    `json:"invalidReason,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Token         string    `json:"token,omitempty"`
	Recipient     string    `json:"recipient,omitempty"`
	Payer         string    `json:"payer,omitempty"`
	Extra         ExtraData `json:"extra,omitempty"`
}

// SettlementResult contains the result of payment settlement
type SettlementResult struct {
	Success   bool      `json:"success"`
	TxHash    string    `json:"txHash,omitempty"`
	NetworkId string    `json:"networkId,omitempty"`
	Payer     string    `json:"payer,omitempty"`
	Error     string    `json:"error,omitempty"`
	Extra     ExtraData `json:"extra,omitempty"`
}

// Keys set in SettlementResult.Extra by the settlement path.
const (
	ExtraSimulation = "simulation"
	ExtraSlot       = "slot"
	ExtraStatus     = "status"
	// ExtraClientError marks a failure caused by the request itself, before
	// anything reached the ledger.
	ExtraClientError = "clientError"
	// ExtraAmountDisplay is the transferred amount scaled by the mint's
	// decimals, e.g. "1.5" for 1500000 base units of a 6-decimal token.
	ExtraAmountDisplay = "amountDisplay"
)

// ClientFailure builds a failed result flagged as a client error.
func ClientFailure(network, reason string) *SettlementResult {
	return &SettlementResult{
		Success:   false,
		Error:     reason,
		NetworkId: network,
		Extra:     ExtraData{ExtraClientError: true},
	}
}

// IsClientError reports whether the result was rejected for a malformed or
// mismatched request rather than a submission or dependency failure.
func (r *SettlementResult) IsClientError() bool {
	if r == nil {
		return false
	}
	v, _ := r.Extra[ExtraClientError].(bool)
	return v
}

// ClientConfig contains configuration for blockchain clients
type ClientConfig struct {
	Network    Network           `json:"network"`
	RPCUrl     string            `json:"rpcUrl" validate:"required,url"`
	WSUrl      string            `json:"wsUrl,omitempty"`
	Commitment string            `json:"commitment,omitempty"`
	FeePayer   string            `json:"feePayer,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	RetryCount int               `json:"retryCount,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Extra      ExtraData         `json:"extra,omitempty"`
}

// X402Config contains global configuration for the x402 library
type X402Config struct {
	DefaultTimeout time.Duration            `json:"defaultTimeout,omitempty"`
	RetryCount     int                      `json:"retryCount,omitempty"`
	Clients        map[Network]ClientConfig `json:"clients,omitempty"`
	LogLevel       string                   `json:"logLevel,omitempty"`
	EnableMetrics  bool                     `json:"enableMetrics,omitempty"`
	Extra          ExtraData                `json:"extra,omitempty"`
}

// Error types
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e X402Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrInsufficientAmount  = "INSUFFICIENT_AMOUNT"
	ErrExpiredPayment      = "EXPIRED_PAYMENT"
	ErrVerificationFailed  = "VERIFICATION_FAILED"
	ErrSettlementFailed    = "SETTLEMENT_FAILED"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
	ErrGovernanceDenied    = "GOVERNANCE_DENIED"
	ErrReplayDetected      = "REPLAY_DETECTED"
)

func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if pr.Amount == "" {
		return fmt.Errorf("paymentRequirements.amount is required")
	}

	if _, err := pr.AmountInt(); err != nil {
		return err
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}

	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be greater than 0")
	}

	return nil
}

func (n Network) IsSolana() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet || n == NetworkSolanaLocal
}

func (n Network) IsTestnet() bool {
	return n == NetworkSolanaDevnet || n == NetworkSolanaLocal
}

func (n Network) String() string {
	return string(n)
}
