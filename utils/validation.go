package utils

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/vitwit/x402gov/types"
)

// ValidateAmount checks that amount is a non-negative whole number of base
// units.
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	if !dec.IsInteger() {
		return nil, fmt.Errorf("amount must be in base units, got %s", amount)
	}

	return &dec, nil
}

// ValidateBigInt checks if a string is a valid big integer
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}

	bigInt := new(big.Int)
	_, success := bigInt.SetString(value, 10)
	if !success {
		return nil, fmt.Errorf("invalid big integer format")
	}

	return bigInt, nil
}

// ValidateSolanaAddress checks that address decodes to a 32-byte public key.
func ValidateSolanaAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid solana address %q: %w", address, err)
	}
	return nil
}

// ValidateTransactionSignature checks a base58 transaction signature.
func ValidateTransactionSignature(sig string) error {
	if sig == "" {
		return fmt.Errorf("transaction signature cannot be empty")
	}
	if _, err := solana.SignatureFromBase58(sig); err != nil {
		return fmt.Errorf("invalid transaction signature: %w", err)
	}
	return nil
}

// ValidateNetwork checks if a network is supported
func ValidateNetwork(network string) error {
	if !types.Network(network).IsSolana() {
		return fmt.Errorf("unsupported network: %s", network)
	}
	return nil
}

// ValidatePaymentScheme checks if a payment scheme is supported
func ValidatePaymentScheme(scheme string) error {
	if scheme != string(types.SchemeExact) {
		return fmt.Errorf("unsupported payment scheme: %s", scheme)
	}
	return nil
}

// FormatAmountFromBigInt formats a big.Int amount to decimal string with specified decimals
func FormatAmountFromBigInt(amount *big.Int, decimals int) string {
	dec := decimal.NewFromBigInt(amount, -int32(decimals))
	return dec.String()
}
