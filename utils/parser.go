package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/x402gov/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("solana_address", func(fl validator.FieldLevel) bool {
		return ValidateSolanaAddress(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("x402_network", func(fl validator.FieldLevel) bool {
		return ValidateNetwork(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("x402_scheme", func(fl validator.FieldLevel) bool {
		return ValidatePaymentScheme(fl.Field().String()) == nil
	})
}

// Validator returns the shared validator with the x402 tags registered.
func Validator() *validator.Validate { return validate }

// ParseVerifyRequest decodes and validates a /verify or /settle body.
func ParseVerifyRequest(data []byte) (*types.VerifyRequest, error) {
	var req types.VerifyRequest

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("failed to parse verify request: %v", err),
		}
	}

	if err := validate.Struct(&req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	if err := ValidateRequirements(&req.PaymentRequirements); err != nil {
		return nil, err
	}
	return &req, nil
}

// ParsePaymentRequirements parses and validates PaymentRequirements from JSON
func ParsePaymentRequirements(data []byte) (*types.PaymentRequirements, error) {
	var req types.PaymentRequirements

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("failed to parse payment requirements: %v", err),
		}
	}

	if err := validate.Struct(&req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	if err := ValidateRequirements(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ValidateRequirements applies the Solana exact-scheme rules on top of the
// struct tags.
func ValidateRequirements(pr *types.PaymentRequirements) error {
	fields := []struct {
		name, value, tag string
	}{
		{"scheme", pr.Scheme, "x402_scheme"},
		{"network", pr.Network, "x402_network"},
		{"payTo", pr.PayTo, "solana_address"},
		{"asset", pr.Asset, "solana_address"},
	}
	for _, f := range fields {
		if err := validate.Var(f.value, f.tag); err != nil {
			return &types.X402Error{
				Code:    types.ErrInvalidRequirements,
				Message: fmt.Sprintf("paymentRequirements.%s %q is invalid", f.name, f.value),
			}
		}
	}
	if _, err := ValidateAmount(pr.Amount); err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("paymentRequirements.amount: %v", err),
		}
	}
	return nil
}

// SerializeVerificationResult converts VerificationResult to JSON
func SerializeVerificationResult(result *types.VerificationResult) ([]byte, error) {
	return json.Marshal(result)
}

// SerializeSettlementResult converts SettlementResult to JSON
func SerializeSettlementResult(result *types.SettlementResult) ([]byte, error) {
	return json.Marshal(result)
}
