package ledgertest

import (
	"encoding/base64"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/types"
)

// Payment describes a client-built transferChecked payment: the delegate
// Authority signs and the fee payer signature slot is left empty.
type Payment struct {
	FeePayer    solana.PublicKey
	Authority   solana.PrivateKey
	Owner       solana.PublicKey
	Source      solana.PublicKey
	Recipient   solana.PublicKey
	Destination solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64
	Decimals    uint8
	Blockhash   solana.Hash
}

// NewPayment generates fresh keys for every party except feePayer.
func NewPayment(feePayer solana.PublicKey, amount uint64) Payment {
	p := Payment{
		FeePayer:  feePayer,
		Authority: solana.NewWallet().PrivateKey,
		Owner:     solana.NewWallet().PublicKey(),
		Source:    solana.NewWallet().PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Mint:      solana.NewWallet().PublicKey(),
		Amount:    amount,
		Decimals:  6,
	}
	copy(p.Blockhash[:], solana.NewWallet().PublicKey().Bytes())
	ata, err := ledger.AssociatedTokenAddress(p.Recipient, p.Mint, ledger.TokenProgramID)
	if err != nil {
		panic(err)
	}
	p.Destination = ata
	return p
}

// Transaction builds and partially signs the payment.
func (p Payment) Transaction() (*solana.Transaction, error) {
	ix := token.NewTransferCheckedInstruction(
		p.Amount, p.Decimals, p.Source, p.Mint, p.Destination, p.Authority.PublicKey(), []solana.PublicKey{},
	).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, p.Blockhash, solana.TransactionPayer(p.FeePayer))
	if err != nil {
		return nil, err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	for i, k := range tx.Message.AccountKeys[:len(tx.Signatures)] {
		if k.Equals(p.Authority.PublicKey()) {
			sig, err := p.Authority.Sign(msg)
			if err != nil {
				return nil, err
			}
			tx.Signatures[i] = sig
		}
	}
	return tx, nil
}

// Raw returns the wire bytes of the partially signed transaction.
func (p Payment) Raw() []byte {
	tx, err := p.Transaction()
	if err != nil {
		panic(err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return raw
}

func (p Payment) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Raw())
}

// Requirements returns payment requirements this payment satisfies.
func (p Payment) Requirements(network types.Network) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            string(types.SchemeExact),
		Network:           string(network),
		Amount:            strconv.FormatUint(p.Amount, 10),
		PayTo:             p.Recipient.String(),
		MaxTimeoutSeconds: 60,
		Asset:             p.Mint.String(),
		Extra:             map[string]interface{}{"feePayer": p.FeePayer.String()},
	}
}

// Request wraps the payment into a verify/settle request.
func (p Payment) Request(network types.Network) *types.VerifyRequest {
	return &types.VerifyRequest{
		X402Version: int(types.X402Version2),
		PaymentPayload: types.PaymentPayload{
			X402Version: int(types.X402Version2),
			Scheme:      string(types.SchemeExact),
			Network:     string(network),
			Payload:     types.SolanaPaymentPayload{Transaction: p.Base64()},
		},
		PaymentRequirements: p.Requirements(network),
	}
}

// Install stores the delegated source account and marks the blockhash valid.
func (p Payment) Install(f *Fake, allowance uint64) {
	delegate := p.Authority.PublicKey()
	f.SetTokenAccount(p.Source, ledger.TokenProgramID, ledger.TokenAccount{
		Mint:            p.Mint,
		Owner:           p.Owner,
		Amount:          allowance * 10,
		Delegate:        &delegate,
		State:           ledger.TokenAccountInitialized,
		DelegatedAmount: allowance,
	})
	f.SetBlockhash(p.Blockhash, true)
}
