// Package txparse decodes raw Solana transactions to recover their token
// transfers, and checks them against a payment before simulating.
package txparse

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// LegacyVersion marks a message without a version prefix.
const LegacyVersion = -1

const (
	signatureLength = 64
	// A compiled instruction is at least a program index and two empty compact counts.
	minInstructionLength = 3
)

type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

type Instruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

type LookupTable struct {
	Account         solana.PublicKey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// Transaction is a decoded wire transaction. Only static account keys are
// resolved; keys loaded through lookup tables are not.
type Transaction struct {
	Signatures []solana.Signature
	// MessageOffset is where the signed message starts in the raw bytes.
	MessageOffset   int
	Version         int
	Header          Header
	AccountKeys     []solana.PublicKey
	RecentBlockhash solana.Hash
	Instructions    []Instruction
	LookupTables    []LookupTable
}

// FeePayer returns the first static account, which pays fees.
func (t *Transaction) FeePayer() solana.PublicKey {
	if len(t.AccountKeys) == 0 {
		return solana.PublicKey{}
	}
	return t.AccountKeys[0]
}

// SignerIndex returns the signature slot of pk, or -1 when pk is not a
// required signer.
func (t *Transaction) SignerIndex(pk solana.PublicKey) int {
	for i := 0; i < int(t.Header.NumRequiredSignatures) && i < len(t.AccountKeys); i++ {
		if t.AccountKeys[i].Equals(pk) {
			return i
		}
	}
	return -1
}

// Account resolves a compiled account index against the static keys.
func (t *Transaction) Account(idx uint8) (solana.PublicKey, error) {
	if int(idx) < len(t.AccountKeys) {
		return t.AccountKeys[idx], nil
	}
	loaded := 0
	for _, lt := range t.LookupTables {
		loaded += len(lt.WritableIndexes) + len(lt.ReadonlyIndexes)
	}
	if int(idx) < len(t.AccountKeys)+loaded {
		return solana.PublicKey{}, ErrLookupAccount
	}
	return solana.PublicKey{}, ErrBadIndex
}

// cursor wraps a bin.Decoder and bounds every read against the input.
type cursor struct {
	dec *bin.Decoder
	len int
}

func (c *cursor) offset() int { return int(c.dec.Position()) }

func (c *cursor) remaining() int { return c.len - c.offset() }

func (c *cursor) fail(field string, err error) error {
	return &ParseError{Offset: c.offset(), Field: field, Err: err}
}

func (c *cursor) u8(field string) (uint8, error) {
	if c.remaining() < 1 {
		return 0, c.fail(field, ErrTruncated)
	}
	v, err := c.dec.ReadUint8()
	if err != nil {
		return 0, c.fail(field, err)
	}
	return v, nil
}

func (c *cursor) bytes(field string, n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, c.fail(field, ErrTruncated)
	}
	b, err := c.dec.ReadNBytes(n)
	if err != nil {
		return nil, c.fail(field, err)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// count reads a compact-u16 length and checks that count items of at least
// minSize bytes each can still fit.
func (c *cursor) count(field string, minSize int) (int, error) {
	if c.remaining() < 1 {
		return 0, c.fail(field, ErrTruncated)
	}
	start := c.offset()
	n, err := c.dec.ReadCompactU16()
	if err != nil {
		return 0, &ParseError{Offset: start, Field: field, Err: err}
	}
	if n < 0 || n*minSize > c.remaining() {
		return 0, &ParseError{Offset: start, Field: field, Err: ErrCountTooLarge}
	}
	return n, nil
}

// Decode parses a legacy or v0 wire transaction. It never panics on
// malformed input.
func Decode(raw []byte) (*Transaction, error) {
	c := &cursor{dec: bin.NewBinDecoder(raw), len: len(raw)}
	tx := &Transaction{Version: LegacyVersion}

	nsig, err := c.count("signature count", signatureLength)
	if err != nil {
		return nil, err
	}
	tx.Signatures = make([]solana.Signature, nsig)
	for i := range tx.Signatures {
		b, err := c.bytes("signature", signatureLength)
		if err != nil {
			return nil, err
		}
		copy(tx.Signatures[i][:], b)
	}
	tx.MessageOffset = c.offset()

	first, err := c.u8("message prefix")
	if err != nil {
		return nil, err
	}
	if first&0x80 != 0 {
		version := int(first & 0x7f)
		if version != 0 {
			return nil, &ParseError{Offset: c.offset() - 1, Field: "version", Err: ErrVersion}
		}
		tx.Version = version
		if first, err = c.u8("num required signatures"); err != nil {
			return nil, err
		}
	}
	tx.Header.NumRequiredSignatures = first
	if tx.Header.NumReadonlySignedAccounts, err = c.u8("num readonly signed"); err != nil {
		return nil, err
	}
	if tx.Header.NumReadonlyUnsignedAccounts, err = c.u8("num readonly unsigned"); err != nil {
		return nil, err
	}
	if int(tx.Header.NumRequiredSignatures) != nsig {
		return nil, &ParseError{Offset: c.offset(), Field: "header", Err: ErrHeaderMismatch}
	}

	nkeys, err := c.count("account key count", solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	tx.AccountKeys = make([]solana.PublicKey, nkeys)
	for i := range tx.AccountKeys {
		b, err := c.bytes("account key", solana.PublicKeyLength)
		if err != nil {
			return nil, err
		}
		tx.AccountKeys[i] = solana.PublicKeyFromBytes(b)
	}

	bh, err := c.bytes("recent blockhash", 32)
	if err != nil {
		return nil, err
	}
	copy(tx.RecentBlockhash[:], bh)

	nix, err := c.count("instruction count", minInstructionLength)
	if err != nil {
		return nil, err
	}
	tx.Instructions = make([]Instruction, 0, nix)
	for i := 0; i < nix; i++ {
		ix, err := decodeInstruction(c)
		if err != nil {
			return nil, err
		}
		tx.Instructions = append(tx.Instructions, ix)
	}

	if tx.Version == 0 {
		// Table account plus two empty index lists.
		ntables, err := c.count("lookup table count", solana.PublicKeyLength+2)
		if err != nil {
			return nil, err
		}
		for i := 0; i < ntables; i++ {
			lt, err := decodeLookupTable(c)
			if err != nil {
				return nil, err
			}
			tx.LookupTables = append(tx.LookupTables, lt)
		}
	}

	if c.remaining() != 0 {
		return nil, c.fail("message", ErrTrailingData)
	}
	return tx, nil
}

func decodeInstruction(c *cursor) (Instruction, error) {
	var (
		ix  Instruction
		err error
	)
	if ix.ProgramIDIndex, err = c.u8("program id index"); err != nil {
		return ix, err
	}
	n, err := c.count("instruction account count", 1)
	if err != nil {
		return ix, err
	}
	if ix.Accounts, err = c.bytes("instruction accounts", n); err != nil {
		return ix, err
	}
	if n, err = c.count("instruction data length", 1); err != nil {
		return ix, err
	}
	if ix.Data, err = c.bytes("instruction data", n); err != nil {
		return ix, err
	}
	return ix, nil
}

func decodeLookupTable(c *cursor) (LookupTable, error) {
	var lt LookupTable
	b, err := c.bytes("lookup table account", solana.PublicKeyLength)
	if err != nil {
		return lt, err
	}
	lt.Account = solana.PublicKeyFromBytes(b)
	n, err := c.count("writable index count", 1)
	if err != nil {
		return lt, err
	}
	if lt.WritableIndexes, err = c.bytes("writable indexes", n); err != nil {
		return lt, err
	}
	if n, err = c.count("readonly index count", 1); err != nil {
		return lt, err
	}
	if lt.ReadonlyIndexes, err = c.bytes("readonly indexes", n); err != nil {
		return lt, err
	}
	return lt, nil
}
