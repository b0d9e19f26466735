package txparse

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

func compactU16(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

type rawTx struct {
	version   int
	header    Header
	keys      []solana.PublicKey
	blockhash solana.Hash
	ixs       []Instruction
	tables    []LookupTable
}

func (r rawTx) encode() []byte {
	out := compactU16(int(r.header.NumRequiredSignatures))
	out = append(out, make([]byte, 64*int(r.header.NumRequiredSignatures))...)
	if r.version == 0 {
		out = append(out, 0x80)
	}
	out = append(out, r.header.NumRequiredSignatures, r.header.NumReadonlySignedAccounts, r.header.NumReadonlyUnsignedAccounts)
	out = append(out, compactU16(len(r.keys))...)
	for _, k := range r.keys {
		out = append(out, k[:]...)
	}
	out = append(out, r.blockhash[:]...)
	out = append(out, compactU16(len(r.ixs))...)
	for _, ix := range r.ixs {
		out = append(out, ix.ProgramIDIndex)
		out = append(out, compactU16(len(ix.Accounts))...)
		out = append(out, ix.Accounts...)
		out = append(out, compactU16(len(ix.Data))...)
		out = append(out, ix.Data...)
	}
	if r.version == 0 {
		out = append(out, compactU16(len(r.tables))...)
		for _, lt := range r.tables {
			out = append(out, lt.Account[:]...)
			out = append(out, compactU16(len(lt.WritableIndexes))...)
			out = append(out, lt.WritableIndexes...)
			out = append(out, compactU16(len(lt.ReadonlyIndexes))...)
			out = append(out, lt.ReadonlyIndexes...)
		}
	}
	return out
}

func transferCheckedData(amount uint64, decimals uint8) []byte {
	data := []byte{TransferCheckedDiscriminator}
	data = binary.LittleEndian.AppendUint64(data, amount)
	return append(data, decimals)
}

// paymentFixture is one transferChecked of 1000 base units S -> D of mint M,
// authorized by A, with F paying fees.
type paymentFixture struct {
	feePayer, authority, source, destination, mint solana.PublicKey
	blockhash                                      solana.Hash
}

func newPaymentFixture() paymentFixture {
	var bh solana.Hash
	copy(bh[:], solana.NewWallet().PublicKey().Bytes())
	return paymentFixture{
		feePayer:    solana.NewWallet().PublicKey(),
		authority:   solana.NewWallet().PublicKey(),
		source:      solana.NewWallet().PublicKey(),
		destination: solana.NewWallet().PublicKey(),
		mint:        solana.NewWallet().PublicKey(),
		blockhash:   bh,
	}
}

func (f paymentFixture) tx(amount uint64) rawTx {
	return rawTx{
		version: LegacyVersion,
		header:  Header{NumRequiredSignatures: 2, NumReadonlySignedAccounts: 1, NumReadonlyUnsignedAccounts: 2},
		// fee payer, authority, source, destination, mint, token program
		keys:      []solana.PublicKey{f.feePayer, f.authority, f.source, f.destination, f.mint, solana.TokenProgramID},
		blockhash: f.blockhash,
		ixs: []Instruction{{
			ProgramIDIndex: 5,
			Accounts:       []uint8{2, 4, 3, 1},
			Data:           transferCheckedData(amount, 6),
		}},
	}
}

func (f paymentFixture) expected(amount int64) Expected {
	return Expected{Recipient: f.destination, Amount: bigInt(amount), Mint: f.mint}
}
