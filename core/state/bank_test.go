package state

import (
	"errors"
	"math/big"
	"testing"

	"vouchernet/native/market"
)

func TestBankTransferAndOverdraft(t *testing.T) {
	m := newTestManager()
	alice := testAddr(0x01)
	bob := testAddr(0x02)

	if err := m.Credit(alice, market.AssetNative, big.NewInt(1000)); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := m.Transfer(alice, bob, market.AssetNative, big.NewInt(400)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	balance, err := m.BalanceOf(bob, market.AssetNative)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("bob balance = %s, want 400", balance)
	}

	if err := m.Transfer(alice, bob, market.AssetNative, big.NewInt(601)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft error = %v, want ErrInsufficientFunds", err)
	}
	if err := m.Transfer(alice, bob, market.AssetNative, big.NewInt(-1)); err == nil {
		t.Fatal("expected negative transfer rejection")
	}
}

func TestBankPullAndPushThroughVault(t *testing.T) {
	m := newTestManager()
	vault := market.VaultAddress()
	bank := m.Bank(vault)
	payer := testAddr(0x01)
	recipient := testAddr(0x02)

	if err := m.Credit(payer, market.AssetNative, big.NewInt(500)); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := bank.Pull(payer, market.AssetNative, big.NewInt(300)); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	vaultBalance, err := m.BalanceOf(vault, market.AssetNative)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if vaultBalance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("vault balance = %s, want 300", vaultBalance)
	}

	if err := bank.Push(recipient, market.AssetNative, big.NewInt(200)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, err := m.BalanceOf(recipient, market.AssetNative)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("recipient balance = %s, want 200", got)
	}

	if err := bank.Push(recipient, market.AssetNative, big.NewInt(500)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("vault overdraft error = %v, want ErrInsufficientFunds", err)
	}
}

func TestTokenLedgerMintBurnTransfer(t *testing.T) {
	m := newTestManager()
	tokens := m.TokenLedger()
	alice := testAddr(0x01)
	bob := testAddr(0x02)
	id := [32]byte{0x0A}

	if err := tokens.Mint(alice, id, 2); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	supply, err := tokens.Supply(id)
	if err != nil {
		t.Fatalf("Supply: %v", err)
	}
	if supply != 2 {
		t.Fatalf("supply = %d, want 2", supply)
	}

	if err := tokens.Transfer(alice, bob, id, 1); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	balance, err := tokens.BalanceOf(bob, id)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance != 1 {
		t.Fatalf("bob balance = %d, want 1", balance)
	}

	if err := tokens.Burn(bob, id, 1); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if err := tokens.Burn(bob, id, 1); !errors.Is(err, ErrTokenBalance) {
		t.Fatalf("over-burn error = %v, want ErrTokenBalance", err)
	}
	supply, err = tokens.Supply(id)
	if err != nil {
		t.Fatalf("Supply: %v", err)
	}
	if supply != 1 {
		t.Fatalf("supply after burn = %d, want 1", supply)
	}
}
