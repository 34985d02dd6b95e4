package state

import (
	"errors"
	"fmt"
	"math/big"
)

var balancePrefix = []byte("balance")

// ErrInsufficientFunds is returned when a transfer exceeds the payer's
// balance.
var ErrInsufficientFunds = errors.New("state: insufficient funds")

func balanceKey(addr [20]byte, asset string) []byte {
	return prefixedKey(balancePrefix, []byte(asset), addr[:])
}

// BalanceOf reports the account balance for the asset.
func (m *Manager) BalanceOf(addr [20]byte, asset string) (*big.Int, error) {
	return loadBigInt(m, balanceKey(addr, asset))
}

// Credit adds to the account balance. Used by genesis allocation and by
// incoming deposits.
func (m *Manager) Credit(addr [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit must be non-negative")
	}
	balance, err := loadBigInt(m, balanceKey(addr, asset))
	if err != nil {
		return err
	}
	return storeBigInt(m, balanceKey(addr, asset), new(big.Int).Add(balance, amount))
}

// Transfer moves value between two accounts, rejecting overdrafts.
func (m *Manager) Transfer(from, to [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := loadBigInt(m, balanceKey(from, asset))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below transfer %s", ErrInsufficientFunds, fromBalance, amount)
	}
	toBalance, err := loadBigInt(m, balanceKey(to, asset))
	if err != nil {
		return err
	}
	if err := storeBigInt(m, balanceKey(from, asset), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return storeBigInt(m, balanceKey(to, asset), new(big.Int).Add(toBalance, amount))
}

// Bank adapts the account store to the marketplace asset-transfer
// collaborator: Pull moves funds from a payer into the vault, Push moves
// them from the vault to a recipient.
type Bank struct {
	manager *Manager
	vault   [20]byte
}

// Bank returns an asset bank bound to the manager and vault address.
func (m *Manager) Bank(vault [20]byte) *Bank {
	if m == nil {
		return nil
	}
	return &Bank{manager: m, vault: vault}
}

// Pull implements market.AssetBank.
func (b *Bank) Pull(payer [20]byte, asset string, amount *big.Int) error {
	if b == nil || b.manager == nil {
		return errNilManager
	}
	return b.manager.Transfer(payer, b.vault, asset, amount)
}

// Push implements market.AssetBank.
func (b *Bank) Push(recipient [20]byte, asset string, amount *big.Int) error {
	if b == nil || b.manager == nil {
		return errNilManager
	}
	return b.manager.Transfer(b.vault, recipient, asset, amount)
}
