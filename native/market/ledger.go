package market

import (
	"errors"
	"fmt"
	"math/big"

	"vouchernet/core/events"
)

var errLedgerNilState = errors.New("market ledger: state not configured")
var errLedgerNilBank = errors.New("market ledger: asset bank not configured")

type ledgerState interface {
	EscrowBalance(owner [20]byte, asset string) (*big.Int, error)
	EscrowCredit(owner [20]byte, asset string, amount *big.Int) error
	EscrowDebit(owner [20]byte, asset string, amount *big.Int) error
}

// AssetBank moves value between marketplace participants and the escrow
// vault. Both operations are atomic and all-or-nothing from the ledger's
// perspective.
type AssetBank interface {
	Pull(payer [20]byte, asset string, amount *big.Int) error
	Push(recipient [20]byte, asset string, amount *big.Int) error
}

// Ledger maintains the per-(owner, asset) pending balances credited by the
// distribution calculator and drained by withdrawal. Credits for push-style
// assets leave escrow immediately; native credits wait for an explicit pull.
type Ledger struct {
	state   ledgerState
	bank    AssetBank
	emitter events.Emitter
}

// NewLedger creates an escrow ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetBank configures the asset-transfer collaborator.
func (l *Ledger) SetBank(bank AssetBank) { l.bank = bank }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *marketEvent) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(*evt)
}

// Credit records a distribution output for the owner. The distribution
// record event fires here, at the release point; for push-style assets the
// funds also move immediately, so those credits never leave a pending
// balance behind.
func (l *Ledger) Credit(owner [20]byte, asset string, amount *big.Int, pot string) error {
	if l == nil || l.state == nil {
		return errLedgerNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("market ledger: negative credit amount")
	}
	if amt.Sign() == 0 {
		return nil
	}
	l.emit(wrapEvent(NewFundsDistributedEvent(owner, normalized, amt, pot)))
	if PushOnCredit(normalized) {
		if l.bank == nil {
			return errLedgerNilBank
		}
		if err := l.bank.Push(owner, normalized, amt); err != nil {
			return err
		}
		l.emit(wrapEvent(NewFundsWithdrawnEvent(owner, normalized, amt)))
		return nil
	}
	return l.state.EscrowCredit(owner, normalized, amt)
}

// Balance reports the pending balance for the owner and asset.
func (l *Ledger) Balance(owner [20]byte, asset string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errLedgerNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.EscrowBalance(owner, normalized)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(balance), nil
}

// Withdraw drains the owner's pending balance and pushes it out through the
// asset bank. The ledger entry is zeroed before the external transfer is
// invoked; a collaborator that re-enters Withdraw during the push observes a
// zero balance and fails with ErrNothingToWithdraw instead of double
// spending.
func (l *Ledger) Withdraw(owner [20]byte, asset string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errLedgerNilState
	}
	if l.bank == nil {
		return nil, errLedgerNilBank
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.EscrowBalance(owner, normalized)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}
	amt := cloneBigInt(balance)
	if err := l.state.EscrowDebit(owner, normalized, amt); err != nil {
		return nil, err
	}
	if err := l.bank.Push(owner, normalized, amt); err != nil {
		// Restore the pending balance; the debit-before-push ordering only
		// guards against re-entry during the push itself.
		if creditErr := l.state.EscrowCredit(owner, normalized, amt); creditErr != nil {
			return nil, errors.Join(err, creditErr)
		}
		return nil, err
	}
	l.emit(wrapEvent(NewFundsWithdrawnEvent(owner, normalized, amt)))
	return amt, nil
}
