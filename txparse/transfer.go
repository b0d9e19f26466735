package txparse

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/types"
)

// TransferCheckedDiscriminator is the instruction tag of transferChecked in
// both token programs. Layout: tag u8, amount u64 LE, decimals u8.
const TransferCheckedDiscriminator = 12

const transferCheckedDataLength = 10

// Transfer is a transferChecked instruction recovered from a transaction.
type Transfer struct {
	Index       int
	Program     solana.PublicKey
	Source      solana.PublicKey
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Authority   solana.PublicKey
	Amount      uint64
	Decimals    uint8
}

func (t Transfer) AmountInt() *big.Int {
	return new(big.Int).SetUint64(t.Amount)
}

// ParseTransfers decodes raw and returns every transferChecked instruction
// addressed to a token program.
func ParseTransfers(raw []byte) ([]Transfer, *Transaction, error) {
	tx, err := Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	transfers, err := Transfers(tx)
	if err != nil {
		return nil, tx, err
	}
	return transfers, tx, nil
}

// Transfers extracts transferChecked instructions from a decoded transaction.
func Transfers(tx *Transaction) ([]Transfer, error) {
	var out []Transfer
	for i, ix := range tx.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: program id: %w", i, ErrBadIndex)
		}
		program := tx.AccountKeys[ix.ProgramIDIndex]
		if !ledger.IsTokenProgram(program) {
			continue
		}
		if len(ix.Data) == 0 || ix.Data[0] != TransferCheckedDiscriminator {
			continue
		}
		if len(ix.Data) != transferCheckedDataLength {
			return nil, fmt.Errorf("instruction %d: transferChecked data is %d bytes, want %d", i, len(ix.Data), transferCheckedDataLength)
		}
		if len(ix.Accounts) < 4 {
			return nil, fmt.Errorf("instruction %d: transferChecked has %d accounts, want at least 4", i, len(ix.Accounts))
		}

		var keys [4]solana.PublicKey
		for j := range keys {
			k, err := tx.Account(ix.Accounts[j])
			if err != nil {
				return nil, fmt.Errorf("instruction %d account %d: %w", i, j, err)
			}
			keys[j] = k
		}
		out = append(out, Transfer{
			Index:       i,
			Program:     program,
			Source:      keys[0],
			Mint:        keys[1],
			Destination: keys[2],
			Authority:   keys[3],
			Amount:      binary.LittleEndian.Uint64(ix.Data[1:9]),
			Decimals:    ix.Data[9],
		})
	}
	return out, nil
}

// Expected is the payment a transaction must carry.
type Expected struct {
	// Recipient is the payTo wallet. Its associated token account for the
	// mint also matches.
	Recipient solana.PublicKey
	Amount    *big.Int
	Mint      solana.PublicKey
}

// ExpectedFrom builds the expected transfer of a payment requirement.
func ExpectedFrom(pr *types.PaymentRequirements) (Expected, error) {
	recipient, err := solana.PublicKeyFromBase58(pr.PayTo)
	if err != nil {
		return Expected{}, fmt.Errorf("invalid payTo address %q: %w", pr.PayTo, err)
	}
	mint, err := solana.PublicKeyFromBase58(pr.Asset)
	if err != nil {
		return Expected{}, fmt.Errorf("invalid asset address %q: %w", pr.Asset, err)
	}
	amount, err := pr.AmountInt()
	if err != nil {
		return Expected{}, err
	}
	return Expected{Recipient: recipient, Amount: amount, Mint: mint}, nil
}

// Match reports which dimensions of t agree with e.
type Match struct {
	Recipient bool
	Amount    bool
	Mint      bool
}

func (m Match) All() bool { return m.Recipient && m.Amount && m.Mint }

// Mismatch describes the first disagreeing dimension of t, checked in the
// order recipient, amount, mint. It is empty when m.All().
func (m Match) Mismatch(t Transfer, e Expected) string {
	switch {
	case !m.Recipient:
		return fmt.Sprintf("recipient mismatch: transfer pays %s, expected %s or its token account", t.Destination, e.Recipient)
	case !m.Amount:
		return fmt.Sprintf("amount mismatch: transfer moves %d, expected %s", t.Amount, e.Amount)
	case !m.Mint:
		return fmt.Sprintf("token mint mismatch: transfer uses %s, expected %s", t.Mint, e.Mint)
	}
	return ""
}

func (m Match) score() int {
	n := 0
	for _, ok := range []bool{m.Recipient, m.Amount, m.Mint} {
		if ok {
			n++
		}
	}
	return n
}

// MatchTransfer compares t against e.
func MatchTransfer(t Transfer, e Expected) Match {
	m := Match{
		Mint:   t.Mint.Equals(e.Mint),
		Amount: e.Amount != nil && t.AmountInt().Cmp(e.Amount) == 0,
	}
	if t.Destination.Equals(e.Recipient) {
		m.Recipient = true
	} else if ata, err := ledger.AssociatedTokenAddress(e.Recipient, t.Mint, t.Program); err == nil && t.Destination.Equals(ata) {
		m.Recipient = true
	}
	return m
}

// SelectTransfer returns the transfer agreeing with e on the most
// dimensions, the earliest on ties.
func SelectTransfer(transfers []Transfer, e Expected) (Transfer, Match, bool) {
	best, bestIdx := Match{}, -1
	for i, t := range transfers {
		m := MatchTransfer(t, e)
		if bestIdx < 0 || m.score() > best.score() {
			best, bestIdx = m, i
		}
		if m.All() {
			break
		}
	}
	if bestIdx < 0 {
		return Transfer{}, Match{}, false
	}
	return transfers[bestIdx], best, true
}
