package state

import (
	"errors"
	"fmt"
)

var (
	tokenBalancePrefix = []byte("token/balance")
	tokenSupplyPrefix  = []byte("token/supply")
)

// ErrTokenBalance is returned when a burn or transfer exceeds the owner's
// holding of a token id.
var ErrTokenBalance = errors.New("state: insufficient token balance")

// TokenLedger tracks per-id voucher token holdings. It implements the
// marketplace supply-token collaborator: the engine mints a unit when a
// buyer commits and burns it when the voucher is consumed.
type TokenLedger struct {
	manager *Manager
}

// TokenLedger returns a token ledger bound to the manager.
func (m *Manager) TokenLedger() *TokenLedger {
	if m == nil {
		return nil
	}
	return &TokenLedger{manager: m}
}

func tokenBalanceKey(owner [20]byte, id [32]byte) []byte {
	return prefixedKey(tokenBalancePrefix, id[:], owner[:])
}

func tokenSupplyKey(id [32]byte) []byte {
	return prefixedKey(tokenSupplyPrefix, id[:])
}

func (l *TokenLedger) balance(owner [20]byte, id [32]byte) (uint32, error) {
	var qty uint32
	ok, err := l.manager.KVGet(tokenBalanceKey(owner, id), &qty)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return qty, nil
}

func (l *TokenLedger) supply(id [32]byte) (uint32, error) {
	var qty uint32
	ok, err := l.manager.KVGet(tokenSupplyKey(id), &qty)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return qty, nil
}

// BalanceOf reports the owner's holding of the token id.
func (l *TokenLedger) BalanceOf(owner [20]byte, id [32]byte) (uint32, error) {
	if l == nil || l.manager == nil {
		return 0, errNilManager
	}
	return l.balance(owner, id)
}

// Supply reports the outstanding supply of the token id.
func (l *TokenLedger) Supply(id [32]byte) (uint32, error) {
	if l == nil || l.manager == nil {
		return 0, errNilManager
	}
	return l.supply(id)
}

// Mint creates qty units of the id for the owner.
func (l *TokenLedger) Mint(owner [20]byte, id [32]byte, qty uint32) error {
	if l == nil || l.manager == nil {
		return errNilManager
	}
	if qty == 0 {
		return nil
	}
	balance, err := l.balance(owner, id)
	if err != nil {
		return err
	}
	supply, err := l.supply(id)
	if err != nil {
		return err
	}
	if err := l.manager.KVPut(tokenBalanceKey(owner, id), balance+qty); err != nil {
		return err
	}
	return l.manager.KVPut(tokenSupplyKey(id), supply+qty)
}

// Burn destroys qty units of the id held by the owner.
func (l *TokenLedger) Burn(owner [20]byte, id [32]byte, qty uint32) error {
	if l == nil || l.manager == nil {
		return errNilManager
	}
	if qty == 0 {
		return nil
	}
	balance, err := l.balance(owner, id)
	if err != nil {
		return err
	}
	if balance < qty {
		return fmt.Errorf("%w: hold %d burn %d", ErrTokenBalance, balance, qty)
	}
	supply, err := l.supply(id)
	if err != nil {
		return err
	}
	if supply < qty {
		return fmt.Errorf("%w: supply %d burn %d", ErrTokenBalance, supply, qty)
	}
	if err := l.manager.KVPut(tokenBalanceKey(owner, id), balance-qty); err != nil {
		return err
	}
	return l.manager.KVPut(tokenSupplyKey(id), supply-qty)
}

// Transfer moves qty units of the id between owners.
func (l *TokenLedger) Transfer(from, to [20]byte, id [32]byte, qty uint32) error {
	if l == nil || l.manager == nil {
		return errNilManager
	}
	if qty == 0 {
		return nil
	}
	fromBalance, err := l.balance(from, id)
	if err != nil {
		return err
	}
	if fromBalance < qty {
		return fmt.Errorf("%w: hold %d transfer %d", ErrTokenBalance, fromBalance, qty)
	}
	toBalance, err := l.balance(to, id)
	if err != nil {
		return err
	}
	if err := l.manager.KVPut(tokenBalanceKey(from, id), fromBalance-qty); err != nil {
		return err
	}
	return l.manager.KVPut(tokenBalanceKey(to, id), toBalance+qty)
}
