// Package ledgertest provides an in-memory ledger for tests.
package ledgertest

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/x402gov/ledger"
)

// Fake is a scriptable ledger.Client. Zero values answer "not found",
// "invalid", zero balance and a successful simulation.
type Fake struct {
	mu sync.Mutex

	accounts    map[solana.PublicKey]*ledger.Account
	blockhashes map[solana.Hash]bool
	balances    map[solana.PublicKey]uint64
	statuses    map[solana.Signature]*ledger.SignatureStatus

	AccountErr    error
	BlockhashErr  error
	BalanceErr    error
	SimulateErr   error
	SendErr       error
	SimulationErr string

	// SendConfirmation is the status a sent transaction reaches immediately.
	// Empty means the signature stays unknown.
	SendConfirmation ledger.Commitment
	// SendFailure, when set, is the on-chain error of sent transactions.
	SendFailure string

	Sent      [][]byte
	Simulated [][]byte
	calls     map[string]int
}

var _ ledger.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		accounts:         make(map[solana.PublicKey]*ledger.Account),
		blockhashes:      make(map[solana.Hash]bool),
		balances:         make(map[solana.PublicKey]uint64),
		statuses:         make(map[solana.Signature]*ledger.SignatureStatus),
		SendConfirmation: ledger.CommitmentFinalized,
		calls:            make(map[string]int),
	}
}

func (f *Fake) SetAccount(acc *ledger.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[acc.Address] = acc
}

func (f *Fake) SetBlockhash(h solana.Hash, valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashes[h] = valid
}

func (f *Fake) SetBalance(addr solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = lamports
}

// Calls returns how often method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of ledger calls of any kind.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *Fake) GetAccount(_ context.Context, address solana.PublicKey, _ ledger.Commitment) (*ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetAccount"]++
	if f.AccountErr != nil {
		return nil, f.AccountErr
	}
	acc, ok := f.accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *Fake) IsBlockhashValid(_ context.Context, blockhash solana.Hash, _ ledger.Commitment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["IsBlockhashValid"]++
	if f.BlockhashErr != nil {
		return false, f.BlockhashErr
	}
	return f.blockhashes[blockhash], nil
}

func (f *Fake) GetBalance(_ context.Context, address solana.PublicKey, _ ledger.Commitment) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetBalance"]++
	if f.BalanceErr != nil {
		return 0, f.BalanceErr
	}
	return f.balances[address], nil
}

func (f *Fake) Simulate(_ context.Context, rawTx []byte, _ ledger.Commitment) (*ledger.SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Simulate"]++
	f.Simulated = append(f.Simulated, rawTx)
	if f.SimulateErr != nil {
		return nil, f.SimulateErr
	}
	return &ledger.SimulationResult{Err: f.SimulationErr, Logs: []string{"Program log: simulated"}, UnitsConsumed: 6200}, nil
}

func (f *Fake) SendTransaction(_ context.Context, rawTx []byte) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SendTransaction"]++
	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	f.Sent = append(f.Sent, rawTx)

	// The cluster identifies a transaction by its first signature.
	sig := solana.Signature(sha512.Sum512(rawTx))
	if len(rawTx) > 64 && rawTx[0] > 0 {
		copy(sig[:], rawTx[1:65])
	}
	if f.SendConfirmation != "" {
		f.statuses[sig] = &ledger.SignatureStatus{Slot: 1000, Confirmation: f.SendConfirmation, Err: f.SendFailure}
	}
	return sig, nil
}

func (f *Fake) SignatureStatus(_ context.Context, sig solana.Signature) (*ledger.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SignatureStatus"]++
	st, ok := f.statuses[sig]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

// TokenAccountData encodes a in the 165-byte SPL token account layout.
func TokenAccountData(a ledger.TokenAccount) []byte {
	out := make([]byte, 0, 165)
	out = append(out, a.Mint[:]...)
	out = append(out, a.Owner[:]...)
	out = binary.LittleEndian.AppendUint64(out, a.Amount)
	if a.Delegate != nil {
		out = binary.LittleEndian.AppendUint32(out, 1)
		out = append(out, a.Delegate[:]...)
	} else {
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = append(out, make([]byte, 32)...)
	}
	out = append(out, byte(a.State))
	if a.IsNative != nil {
		out = binary.LittleEndian.AppendUint32(out, 1)
		out = binary.LittleEndian.AppendUint64(out, *a.IsNative)
	} else {
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = binary.LittleEndian.AppendUint64(out, 0)
	}
	out = binary.LittleEndian.AppendUint64(out, a.DelegatedAmount)
	if a.CloseAuthority != nil {
		out = binary.LittleEndian.AppendUint32(out, 1)
		out = append(out, a.CloseAuthority[:]...)
	} else {
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = append(out, make([]byte, 32)...)
	}
	return out
}

// SetTokenAccount stores a token account owned by program at address.
func (f *Fake) SetTokenAccount(address, program solana.PublicKey, a ledger.TokenAccount) {
	f.SetAccount(&ledger.Account{
		Address:  address,
		Owner:    program,
		Lamports: 2039280,
		Data:     TokenAccountData(a),
	})
}
