package utils

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402gov/types"
)

func validBody(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	req := map[string]any{
		"x402Version": 2,
		"paymentPayload": map[string]any{
			"x402Version": 2,
			"scheme":      "exact",
			"network":     "solana-devnet",
			"payload":     map[string]any{"transaction": "AQID"},
		},
		"paymentRequirements": map[string]any{
			"scheme":            "exact",
			"network":           "solana-devnet",
			"amount":            "1000",
			"payTo":             solana.NewWallet().PublicKey().String(),
			"asset":             solana.NewWallet().PublicKey().String(),
			"maxTimeoutSeconds": 60,
		},
	}
	if mutate != nil {
		mutate(req)
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return raw
}

func requirements(req map[string]any) map[string]any {
	return req["paymentRequirements"].(map[string]any)
}

func TestParseVerifyRequest(t *testing.T) {
	req, err := ParseVerifyRequest(validBody(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "1000", req.PaymentRequirements.Amount)
	assert.Equal(t, "AQID", req.PaymentPayload.Payload.Transaction)
}

func TestParseVerifyRequestRejects(t *testing.T) {
	cases := map[string]func(map[string]any){
		"bad payTo":      func(r map[string]any) { requirements(r)["payTo"] = "0xabc" },
		"bad asset":      func(r map[string]any) { requirements(r)["asset"] = "usdc" },
		"evm network":    func(r map[string]any) { requirements(r)["network"] = "base-sepolia" },
		"other scheme":   func(r map[string]any) { requirements(r)["scheme"] = "upto" },
		"fractional":     func(r map[string]any) { requirements(r)["amount"] = "1.5" },
		"zero timeout":   func(r map[string]any) { requirements(r)["maxTimeoutSeconds"] = 0 },
		"no transaction": func(r map[string]any) { r["paymentPayload"].(map[string]any)["payload"] = map[string]any{} },
		"not base64": func(r map[string]any) {
			r["paymentPayload"].(map[string]any)["payload"] = map[string]any{"transaction": "%%%"}
		},
		"missing version": func(r map[string]any) { delete(r, "x402Version") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVerifyRequest(validBody(t, mutate))
			var xe *types.X402Error
			require.ErrorAs(t, err, &xe)
		})
	}

	_, err := ParseVerifyRequest([]byte("{"))
	var xe *types.X402Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, types.ErrInvalidPayload, xe.Code)
}

func TestValidationHelpers(t *testing.T) {
	_, err := ValidateAmount("-5")
	assert.Error(t, err)
	dec, err := ValidateAmount("1000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000", dec.String())

	v, err := ValidateBigInt("18446744073709551616")
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", v.String())
	_, err = ValidateBigInt("12ab")
	assert.Error(t, err)

	assert.NoError(t, ValidateTransactionSignature(solana.Signature{1}.String()))
	assert.Error(t, ValidateTransactionSignature("nope"))
	assert.Equal(t, "1.5", FormatAmountFromBigInt(v.SetInt64(1_500_000), 6))
}
