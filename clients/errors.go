package clients

import (
	"strings"

	"github.com/vitwit/x402gov/txparse"
)

// Reason codes reported in VerificationResult.Extra["code"] and
// SettlementResult.Extra["code"].
const (
	// -----------------------------
	// SCHEME / NETWORK
	// -----------------------------
	ErrUnsupportedScheme = "unsupported_scheme"
	ErrInvalidNetwork    = "invalid_network"

	// -----------------------------
	// GENERIC PAYLOAD
	// -----------------------------
	ErrInvalidExactSvmPayload = "invalid_exact_svm_payload_transaction"
	ErrInvalidRequirements    = "invalid_exact_svm_payment_requirements"

	// -----------------------------
	// FEE PAYER SAFETY
	// -----------------------------
	ErrFeePayerMismatch          = "invalid_exact_svm_payload_transaction_fee_payer_mismatch"
	ErrFeePayerTransferringFunds = "invalid_exact_svm_payload_transaction_fee_payer_transferring_funds"
	ErrFeePayerBalanceTooLow     = "settle_exact_svm_fee_payer_balance_too_low"

	// -----------------------------
	// TRANSFER CHECKS
	// -----------------------------
	ErrTransferToIncorrectATA = "invalid_exact_svm_payload_transaction_transfer_to_incorrect_ata"
	ErrAmountMismatch         = "invalid_exact_svm_payload_transaction_amount_mismatch"
	ErrMintMismatch           = "invalid_exact_svm_payload_transaction_mint_mismatch"
	ErrSimulationFailed       = "invalid_exact_svm_payload_transaction_simulation_failed"

	// -----------------------------
	// TRANSFER PARSING ERRORS
	// -----------------------------
	ErrNotATransferCheckedInstruction = "invalid_exact_svm_payload_transaction_instruction_not_transfer_checked"

	// -----------------------------
	// UNEXPECTED
	// -----------------------------
	ErrUnexpectedVerifyError = "unexpected_verify_error"

	// -----------------------------
	// SETTLEMENT ERRORS
	// -----------------------------
	ErrTransactionSignerMissingSignatures    = "transaction_signer_missing_signatures"
	ErrSettleBlockHeightExceeded             = "settle_exact_svm_block_height_exceeded"
	ErrSettleTransactionConfirmationTimedOut = "settle_exact_svm_transaction_confirmation_timed_out"
	ErrSettleTransactionFailed               = "settle_exact_svm_transaction_failed"
	ErrUnexpectedSettleError                 = "unexpected_settle_error"
)

// verifyCode maps a verification failure to its reason code.
func verifyCode(f txparse.Failure) string {
	switch f {
	case txparse.FailureParse:
		return ErrInvalidExactSvmPayload
	case txparse.FailureNoTransfer:
		return ErrNotATransferCheckedInstruction
	case txparse.FailureFeePayer:
		return ErrFeePayerTransferringFunds
	case txparse.FailureRecipient:
		return ErrTransferToIncorrectATA
	case txparse.FailureAmount:
		return ErrAmountMismatch
	case txparse.FailureMint:
		return ErrMintMismatch
	case txparse.FailureSimulation:
		return ErrSimulationFailed
	default:
		return ErrUnexpectedVerifyError
	}
}

// sendCode classifies a submission error.
func sendCode(err error) string {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "blockhash not found") || strings.Contains(msg, "block height exceeded") {
		return ErrSettleBlockHeightExceeded
	}
	return ErrUnexpectedSettleError
}
