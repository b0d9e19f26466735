package ledger

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Token program ids. Token-2022 accounts share the base 165-byte layout and
// append extensions after it.
var (
	TokenProgramID     = solana.TokenProgramID
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// TokenAccountSize is the length of the base SPL token account layout.
const TokenAccountSize = 165

// TokenAccountState mirrors the SPL account state byte.
type TokenAccountState uint8

const (
	TokenAccountUninitialized TokenAccountState = iota
	TokenAccountInitialized
	TokenAccountFrozen
)

var ErrShortTokenAccount = errors.New("ledger: token account data shorter than 165 bytes")

// IsTokenProgram reports whether id is one of the supported token programs.
func IsTokenProgram(id solana.PublicKey) bool {
	return id.Equals(TokenProgramID) || id.Equals(Token2022ProgramID)
}

// TokenAccount is the decoded base layout of an SPL token account.
type TokenAccount struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	Delegate        *solana.PublicKey
	State           TokenAccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solana.PublicKey
}

// DecodeTokenAccount reads the base layout from data. Trailing bytes
// (Token-2022 extensions) are ignored.
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, ErrShortTokenAccount
	}
	dec := bin.NewBinDecoder(data[:TokenAccountSize])
	var (
		acc TokenAccount
		err error
	)
	if acc.Mint, err = readKey(dec); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if acc.Owner, err = readKey(dec); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if acc.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	if acc.Delegate, err = readOptionKey(dec); err != nil {
		return nil, fmt.Errorf("delegate: %w", err)
	}
	state, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	acc.State = TokenAccountState(state)

	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("is_native: %w", err)
	}
	native, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("is_native: %w", err)
	}
	if tag == 1 {
		acc.IsNative = &native
	}
	if acc.DelegatedAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("delegated_amount: %w", err)
	}
	if acc.CloseAuthority, err = readOptionKey(dec); err != nil {
		return nil, fmt.Errorf("close_authority: %w", err)
	}
	return &acc, nil
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

// readOptionKey reads a COption<Pubkey>: a u32 tag followed by 32 bytes.
func readOptionKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	key, err := readKey(dec)
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		return &key, nil
	default:
		return nil, fmt.Errorf("invalid option tag %d", tag)
	}
}

// AssociatedTokenAddress derives the associated token account of wallet for
// mint under the given token program.
func AssociatedTokenAddress(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return addr, err
}
