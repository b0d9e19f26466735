package delegation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/ledger/ledgertest"
)

type fixture struct {
	fake     *ledgertest.Fake
	account  solana.PublicKey
	owner    solana.PublicKey
	payer    solana.PublicKey
	mint     solana.PublicKey
	validate *Validator
}

func newFixture(t *testing.T, program solana.PublicKey, mutate func(*ledger.TokenAccount)) fixture {
	t.Helper()
	f := fixture{
		fake:    ledgertest.New(),
		account: solana.NewWallet().PublicKey(),
		owner:   solana.NewWallet().PublicKey(),
		payer:   solana.NewWallet().PublicKey(),
		mint:    solana.NewWallet().PublicKey(),
	}
	ta := ledger.TokenAccount{
		Mint:            f.mint,
		Owner:           f.owner,
		Amount:          10_000_000,
		Delegate:        &f.payer,
		State:           ledger.TokenAccountInitialized,
		DelegatedAmount: 5_000_000,
	}
	if mutate != nil {
		mutate(&ta)
	}
	f.fake.SetTokenAccount(f.account, program, ta)
	f.validate = NewValidator(f.fake)
	return f
}

func (f fixture) run(amount int64) Result {
	return f.validate.Validate(context.Background(), f.account, f.payer, big.NewInt(amount), f.mint)
}

func TestValidateActive(t *testing.T) {
	for _, program := range []solana.PublicKey{ledger.TokenProgramID, ledger.Token2022ProgramID} {
		f := newFixture(t, program, nil)
		res := f.run(5_000_000)
		assert.Equal(t, StatusActive, res.Status, program.String())
		assert.True(t, res.Active())
		assert.Equal(t, program.String(), res.Program)
		assert.Equal(t, f.payer.String(), res.Delegate)
		assert.Equal(t, f.owner.String(), res.Owner)
		assert.Equal(t, "5000000", res.DelegatedAmount.String())
	}
}

func TestValidateInsufficient(t *testing.T) {
	f := newFixture(t, ledger.TokenProgramID, nil)
	res := f.run(5_000_001)
	assert.Equal(t, StatusInsufficient, res.Status)
	assert.Contains(t, res.Detail, "5000001")
}

func TestValidateFrozen(t *testing.T) {
	f := newFixture(t, ledger.TokenProgramID, func(ta *ledger.TokenAccount) {
		ta.State = ledger.TokenAccountFrozen
	})
	assert.Equal(t, StatusInactive, f.run(1).Status)
}

func TestValidateNotDelegated(t *testing.T) {
	f := newFixture(t, ledger.TokenProgramID, func(ta *ledger.TokenAccount) {
		ta.Delegate = nil
		ta.DelegatedAmount = 0
	})
	assert.Equal(t, StatusNotDelegated, f.run(1).Status)

	other := solana.NewWallet().PublicKey()
	f = newFixture(t, ledger.TokenProgramID, func(ta *ledger.TokenAccount) {
		ta.Delegate = &other
	})
	res := f.run(1)
	assert.Equal(t, StatusNotDelegated, res.Status)
	assert.Contains(t, res.Detail, other.String())
}

func TestValidateErrors(t *testing.T) {
	t.Run("missing account", func(t *testing.T) {
		f := newFixture(t, ledger.TokenProgramID, nil)
		res := f.validate.Validate(context.Background(), solana.NewWallet().PublicKey(), f.payer, big.NewInt(1), f.mint)
		assert.Equal(t, StatusError, res.Status)
		assert.Contains(t, res.Detail, "not found")
	})

	t.Run("rpc failure", func(t *testing.T) {
		f := newFixture(t, ledger.TokenProgramID, nil)
		f.fake.AccountErr = errors.New("connection refused")
		res := f.run(1)
		assert.Equal(t, StatusError, res.Status)
		assert.Contains(t, res.Detail, "connection refused")
	})

	t.Run("foreign owner program", func(t *testing.T) {
		f := newFixture(t, solana.SystemProgramID, nil)
		assert.Equal(t, StatusError, f.run(1).Status)
	})

	t.Run("mint mismatch", func(t *testing.T) {
		f := newFixture(t, ledger.TokenProgramID, nil)
		res := f.validate.Validate(context.Background(), f.account, f.payer, big.NewInt(1), solana.NewWallet().PublicKey())
		assert.Equal(t, StatusError, res.Status)
		assert.Contains(t, res.Detail, "mint")
	})

	t.Run("truncated data", func(t *testing.T) {
		f := newFixture(t, ledger.TokenProgramID, nil)
		f.fake.SetAccount(&ledger.Account{Address: f.account, Owner: ledger.TokenProgramID, Data: make([]byte, 40)})
		assert.Equal(t, StatusError, f.run(1).Status)
	})
}
