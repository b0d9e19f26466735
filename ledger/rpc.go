package ledger

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPC implements Client over a Solana JSON-RPC endpoint.
type RPC struct {
	endpoint string
	client   *rpc.Client
}

var _ Client = (*RPC)(nil)

// NewRPC creates a ledger client for the given RPC endpoint.
func NewRPC(endpoint string) *RPC {
	return &RPC{
		endpoint: endpoint,
		client:   rpc.New(endpoint),
	}
}

func (r *RPC) Endpoint() string { return r.endpoint }

func (r *RPC) GetAccount(ctx context.Context, address solana.PublicKey, commitment Commitment) (*Account, error) {
	out, err := r.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentType(commitment),
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, ErrAccountNotFound
	}

	var data []byte
	if out.Value.Data != nil {
		data = out.Value.Data.GetBinary()
	}
	return &Account{
		Address:    address,
		Owner:      out.Value.Owner,
		Lamports:   out.Value.Lamports,
		Data:       data,
		Executable: out.Value.Executable,
	}, nil
}

func (r *RPC) IsBlockhashValid(ctx context.Context, blockhash solana.Hash, commitment Commitment) (bool, error) {
	out, err := r.client.IsBlockhashValid(ctx, blockhash, rpc.CommitmentType(commitment))
	if err != nil {
		return false, fmt.Errorf("isBlockhashValid: %w", err)
	}
	return out.Value, nil
}

func (r *RPC) GetBalance(ctx context.Context, address solana.PublicKey, commitment Commitment) (uint64, error) {
	out, err := r.client.GetBalance(ctx, address, rpc.CommitmentType(commitment))
	if err != nil {
		return 0, fmt.Errorf("getBalance %s: %w", address, err)
	}
	return out.Value, nil
}

func (r *RPC) Simulate(ctx context.Context, rawTx []byte, commitment Commitment) (*SimulationResult, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	out, err := r.client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: rpc.CommitmentType(commitment),
	})
	if err != nil {
		return nil, fmt.Errorf("simulateTransaction: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, errors.New("simulateTransaction: empty response")
	}

	res := &SimulationResult{Logs: out.Value.Logs}
	if out.Value.Err != nil {
		res.Err = fmt.Sprintf("%v", out.Value.Err)
	}
	if out.Value.UnitsConsumed != nil {
		res.UnitsConsumed = *out.Value.UnitsConsumed
	}
	return res, nil
}

func (r *RPC) SendTransaction(ctx context.Context, rawTx []byte) (solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("decode transaction: %w", err)
	}
	sig, err := r.client.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction: %w", err)
	}
	return sig, nil
}

func (r *RPC) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	out, err := r.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	st := out.Value[0]
	status := &SignatureStatus{
		Slot:         st.Slot,
		Confirmation: Commitment(st.ConfirmationStatus),
	}
	if st.Err != nil {
		status.Err = fmt.Sprintf("%v", st.Err)
	}
	return status, nil
}
