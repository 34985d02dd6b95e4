package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vouchernet/core/events"
	"vouchernet/core/types"
	nativecommon "vouchernet/native/common"
)

var (
	errNilState = errors.New("market engine: state not configured")
	errNilBank  = errors.New("market engine: asset bank not configured")
	errNilToken = errors.New("market engine: supply token not configured")
	errNilPool  = errors.New("market engine: pool address not configured")
)

const moduleName = "market"

// Default complaint and cancellation-fault windows, in seconds. Windows are
// evaluated against the engine clock, which callers may override.
const (
	DefaultComplainWindow int64 = 7 * 24 * 60 * 60
	DefaultCancelWindow   int64 = 24 * 60 * 60
)

type engineState interface {
	OrderPut(*Order) error
	OrderGet(id [32]byte) (*Order, bool)
	VoucherPut(*Voucher) error
	VoucherGet(id [32]byte) (*Voucher, bool)
}

// SupplyToken is the voucher-representation collaborator. The engine mints a
// unit on commit and burns it when the voucher is consumed; it never inspects
// token storage.
type SupplyToken interface {
	Mint(owner [20]byte, id [32]byte, qty uint32) error
	Burn(owner [20]byte, id [32]byte, qty uint32) error
	Transfer(from, to [20]byte, id [32]byte, qty uint32) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func wrapEvent(evt *types.Event) *marketEvent {
	if evt == nil {
		return nil
	}
	return &marketEvent{evt: evt}
}

// Engine wires the voucher lifecycle and fund distribution with external
// state, the escrow ledger, and the token and asset collaborators. Every
// state-mutating operation checks the pause gate first and leaves all state
// unchanged on rejection.
type Engine struct {
	state          engineState
	ledger         *Ledger
	bank           AssetBank
	token          SupplyToken
	permits        PermitVerifier
	emitter        events.Emitter
	pauses         nativecommon.PauseView
	pool           [20]byte
	nowFn          func() int64
	complainWindow int64
	cancelWindow   int64
}

// NewEngine creates a marketplace engine with a no-op emitter and the default
// complaint and cancellation windows.
func NewEngine() *Engine {
	return &Engine{
		ledger:         NewLedger(),
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		complainWindow: DefaultComplainWindow,
		cancelWindow:   DefaultCancelWindow,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger overrides the escrow ledger. Passing nil resets it to a fresh
// ledger instance.
func (e *Engine) SetLedger(ledger *Ledger) {
	if ledger == nil {
		ledger = NewLedger()
	}
	e.ledger = ledger
}

// Ledger exposes the escrow ledger bound to the engine.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// SetBank configures the asset-transfer collaborator. The ledger shares the
// same bank.
func (e *Engine) SetBank(bank AssetBank) {
	e.bank = bank
	if e.ledger != nil {
		e.ledger.SetBank(bank)
	}
}

// SetToken configures the voucher token collaborator.
func (e *Engine) SetToken(token SupplyToken) { e.token = token }

// SetPermitVerifier configures the signature collaborator used by the
// gasless commit and order-creation paths.
func (e *Engine) SetPermitVerifier(v PermitVerifier) { e.permits = v }

// SetPauses configures the pause gate consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetPool configures the neutral pool address receiving disputed and
// forfeited funds.
func (e *Engine) SetPool(addr [20]byte) { e.pool = addr }

// SetWindows overrides the complaint and cancellation-fault windows.
// Non-positive values keep the current setting.
func (e *Engine) SetWindows(complain, cancel int64) {
	if complain > 0 {
		e.complainWindow = complain
	}
	if cancel > 0 {
		e.cancelWindow = cancel
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine and its ledger.
// Passing nil resets both to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
	} else {
		e.emitter = emitter
	}
	if e.ledger != nil {
		e.ledger.SetEmitter(emitter)
	}
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) guard() error {
	return nativecommon.Guard(e.pauses, moduleName)
}

// VaultAddress is the module account holding escrowed funds between pull and
// push. Derived deterministically from the module name.
func VaultAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("market/vault"))[12:])
	return addr
}

func (e *Engine) loadOrder(id [32]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return SanitizeOrder(order)
}

func (e *Engine) loadVoucher(id [32]byte) (*Voucher, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	voucher, ok := e.state.VoucherGet(id)
	if !ok {
		return nil, ErrVoucherNotFound
	}
	return SanitizeVoucher(voucher)
}

// Commit binds a buyer to one voucher of the order, pulling the payment and
// the buyer's counter-deposit into escrow and minting the voucher token.
func (e *Engine) Commit(orderID [32]byte, buyer [20]byte) (*Voucher, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if e.token == nil {
		return nil, errNilToken
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < order.ValidFrom || now > order.ValidTo {
		return nil, fmt.Errorf("%w: order validity window", ErrWindowClosed)
	}
	if order.Quantity == 0 {
		return nil, ErrQuantityExhausted
	}
	voucherID := commitVoucherID(orderID, buyer, order.Quantity)
	if _, ok := e.state.VoucherGet(voucherID); ok {
		return nil, fmt.Errorf("%w: voucher already committed", ErrInvalidState)
	}
	var pulled []fundLeg
	if order.PaymentAsset == order.DepositAsset {
		total := new(big.Int).Add(order.Price, order.BuyerDeposit)
		if err := e.bank.Pull(buyer, order.PaymentAsset, total); err != nil {
			return nil, err
		}
		pulled = append(pulled, fundLeg{asset: order.PaymentAsset, amount: total})
	} else {
		if err := e.bank.Pull(buyer, order.PaymentAsset, order.Price); err != nil {
			return nil, err
		}
		pulled = append(pulled, fundLeg{asset: order.PaymentAsset, amount: order.Price})
		if err := e.bank.Pull(buyer, order.DepositAsset, order.BuyerDeposit); err != nil {
			e.unwindCommit(buyer, voucherID, pulled, false)
			return nil, err
		}
		pulled = append(pulled, fundLeg{asset: order.DepositAsset, amount: order.BuyerDeposit})
	}
	if err := e.token.Mint(buyer, voucherID, 1); err != nil {
		e.unwindCommit(buyer, voucherID, pulled, false)
		return nil, err
	}
	order.Quantity--
	if err := e.state.OrderPut(order); err != nil {
		e.unwindCommit(buyer, voucherID, pulled, true)
		return nil, err
	}
	voucher := &Voucher{
		ID:          voucherID,
		OrderID:     orderID,
		Issuer:      order.Seller,
		Holder:      buyer,
		CommittedAt: now,
	}
	if err := e.state.VoucherPut(voucher); err != nil {
		order.Quantity++
		_ = e.state.OrderPut(order)
		e.unwindCommit(buyer, voucherID, pulled, true)
		return nil, err
	}
	e.emit(NewVoucherCommittedEvent(voucher))
	return voucher.Clone(), nil
}

type fundLeg struct {
	asset  string
	amount *big.Int
}

// unwindCommit reverses the completed steps of a commit whose later step
// failed, so a rejected commit leaves no partial effect. The vault holds
// exactly what the failed commit pulled, so the compensating pushes cannot
// overdraw it.
func (e *Engine) unwindCommit(buyer [20]byte, voucherID [32]byte, pulled []fundLeg, minted bool) {
	if minted {
		_ = e.token.Burn(buyer, voucherID, 1)
	}
	for i := len(pulled) - 1; i >= 0; i-- {
		_ = e.bank.Push(buyer, pulled[i].asset, pulled[i].amount)
	}
}

// CommitWithPermit verifies a gasless-approval signature for the combined
// payment and deposit amount before committing. The order's payment and
// deposit assets must match.
func (e *Engine) CommitWithPermit(orderID [32]byte, buyer [20]byte, deadline int64, sig []byte) (*Voucher, error) {
	if e.permits == nil {
		return nil, fmt.Errorf("%w: no permit verifier configured", ErrPermitRejected)
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	// The permit digest carries one value with no asset dimension, so the
	// combined amount is only meaningful when both pots share an asset.
	if order.PaymentAsset != order.DepositAsset {
		return nil, fmt.Errorf("%w: permit requires matching payment and deposit assets", ErrPermitRejected)
	}
	total := new(big.Int).Add(order.Price, order.BuyerDeposit)
	ok, err := e.permits.VerifyAndApprove(buyer, VaultAddress(), total, deadline, sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPermitRejected
	}
	return e.Commit(orderID, buyer)
}

// Redeem records the holder's redemption of a committed voucher within the
// order validity window and releases the payment to the seller.
func (e *Engine) Redeem(voucherID [32]byte, caller [20]byte) error {
	return e.applyPrimary(voucherID, &caller, PrimaryRedeemed)
}

// Refund records the holder's refund request within the validity window and
// releases the payment back to the holder.
func (e *Engine) Refund(voucherID [32]byte, caller [20]byte) error {
	return e.applyPrimary(voucherID, &caller, PrimaryRefunded)
}

// TriggerExpire marks a committed voucher as expired once the validity
// window has passed. Anyone may invoke the transition.
func (e *Engine) TriggerExpire(voucherID [32]byte) error {
	return e.applyPrimary(voucherID, nil, PrimaryExpired)
}

func (e *Engine) applyPrimary(voucherID [32]byte, caller *[20]byte, event PrimaryEvent) error {
	if err := e.guard(); err != nil {
		return err
	}
	if e.token == nil {
		return errNilToken
	}
	voucher, err := e.loadVoucher(voucherID)
	if err != nil {
		return err
	}
	if caller != nil && *caller != voucher.Holder {
		return fmt.Errorf("%w: caller is not the holder", ErrUnauthorized)
	}
	if voucher.Finalized || voucher.Events.Primary != PrimaryNone || voucher.Events.Cancelled {
		return fmt.Errorf("%w: voucher is not committed", ErrInvalidState)
	}
	order, err := e.loadOrder(voucher.OrderID)
	if err != nil {
		return err
	}
	now := e.now()
	switch event {
	case PrimaryRedeemed, PrimaryRefunded:
		if now > order.ValidTo {
			return fmt.Errorf("%w: order validity window", ErrWindowClosed)
		}
	case PrimaryExpired:
		if now <= order.ValidTo {
			return fmt.Errorf("%w: order still valid", ErrWindowNotElapsed)
		}
	default:
		return fmt.Errorf("%w: %s is not a primary event", ErrInvalidEventSet, event)
	}
	if err := e.token.Burn(voucher.Holder, voucher.ID, 1); err != nil {
		return err
	}
	voucher.Events.Primary = event
	voucher.PrimaryAt = now
	if err := e.releasePayment(voucher, order); err != nil {
		return err
	}
	if err := e.state.VoucherPut(voucher); err != nil {
		return err
	}
	switch event {
	case PrimaryRedeemed:
		e.emit(NewVoucherRedeemedEvent(voucher))
	case PrimaryRefunded:
		e.emit(NewVoucherRefundedEvent(voucher))
	case PrimaryExpired:
		e.emit(NewVoucherExpiredEvent(voucher))
	}
	return nil
}

// Complain records the holder's dispute over the resolved path. A complaint
// requires a primary event, or a cancellation when no primary event fired,
// and must arrive within the complaint window measured from that event.
func (e *Engine) Complain(voucherID [32]byte, caller [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	voucher, err := e.loadVoucher(voucherID)
	if err != nil {
		return err
	}
	if caller != voucher.Holder {
		return fmt.Errorf("%w: caller is not the holder", ErrUnauthorized)
	}
	if voucher.Finalized || voucher.Events.Complained {
		return fmt.Errorf("%w: complaint already recorded", ErrInvalidState)
	}
	anchor := voucher.PrimaryAt
	if voucher.Events.Primary == PrimaryNone {
		if !voucher.Events.Cancelled {
			return fmt.Errorf("%w: nothing to complain about", ErrInvalidState)
		}
		anchor = voucher.CancelledAt
	}
	now := e.now()
	if now > anchor+e.complainWindow {
		return fmt.Errorf("%w: complaint window", ErrWindowClosed)
	}
	voucher.Events.Complained = true
	voucher.ComplainedAt = now
	if err := e.state.VoucherPut(voucher); err != nil {
		return err
	}
	e.emit(NewVoucherComplainedEvent(voucher))
	return nil
}

// CancelOrFault records the issuer's fault admission within the
// cancellation-fault window measured from commit time. It may fire with or
// without a prior primary event or complaint; when it is the first lifecycle
// event, the payment path resolves to the buyer and the voucher token is
// consumed.
func (e *Engine) CancelOrFault(voucherID [32]byte, caller [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	if e.token == nil {
		return errNilToken
	}
	voucher, err := e.loadVoucher(voucherID)
	if err != nil {
		return err
	}
	if caller != voucher.Issuer {
		return fmt.Errorf("%w: caller is not the issuer", ErrUnauthorized)
	}
	if voucher.Finalized || voucher.Events.Cancelled {
		return fmt.Errorf("%w: cancellation already recorded", ErrInvalidState)
	}
	now := e.now()
	if now > voucher.CommittedAt+e.cancelWindow {
		return fmt.Errorf("%w: cancellation-fault window", ErrWindowClosed)
	}
	if voucher.Events.Primary == PrimaryNone {
		order, err := e.loadOrder(voucher.OrderID)
		if err != nil {
			return err
		}
		if err := e.token.Burn(voucher.Holder, voucher.ID, 1); err != nil {
			return err
		}
		voucher.Events.Cancelled = true
		voucher.CancelledAt = now
		if err := e.releasePayment(voucher, order); err != nil {
			return err
		}
	} else {
		voucher.Events.Cancelled = true
		voucher.CancelledAt = now
	}
	if err := e.state.VoucherPut(voucher); err != nil {
		return err
	}
	e.emit(NewVoucherCancelledEvent(voucher))
	return nil
}

// Finalize fixes the deposit splits once no further lifecycle event is
// possible and credits them to the escrow ledger. The operation is
// idempotent: a second call reports the voucher as already finalized without
// re-crediting escrow or re-emitting events, and never fails for that
// reason. Anyone may finalize.
func (e *Engine) Finalize(voucherID [32]byte) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}
	voucher, err := e.loadVoucher(voucherID)
	if err != nil {
		return false, err
	}
	if voucher.Finalized {
		return true, nil
	}
	if voucher.Events.Primary == PrimaryNone && !voucher.Events.Cancelled {
		return false, fmt.Errorf("%w: no resolved payout path", ErrInvalidState)
	}
	now := e.now()
	if e.complaintStillPossible(voucher, now) || e.cancelStillPossible(voucher, now) {
		return false, fmt.Errorf("%w: finalization windows", ErrWindowNotElapsed)
	}
	order, err := e.loadOrder(voucher.OrderID)
	if err != nil {
		return false, err
	}
	// poolBound over-approximates: it keys on the event set alone, so a set
	// whose splits happen to leave the pool empty still demands a configured
	// pool. Finalization fails closed rather than inspecting the amounts.
	if poolBound(voucher.Events) && e.pool == ([20]byte{}) {
		return false, errNilPool
	}
	dist, err := ComputeSplits(voucher.Events, order.Price, order.SellerDeposit, order.BuyerDeposit)
	if err != nil {
		return false, err
	}
	if !voucher.PaymentReleased {
		if err := e.creditSplit(voucher, dist.Payment, order.PaymentAsset, "payment"); err != nil {
			return false, err
		}
		voucher.PaymentReleased = true
	}
	if err := e.creditSplit(voucher, dist.SellerDeposit, order.DepositAsset, "sellerDeposit"); err != nil {
		return false, err
	}
	if err := e.creditSplit(voucher, dist.BuyerDeposit, order.DepositAsset, "buyerDeposit"); err != nil {
		return false, err
	}
	voucher.DepositsReleased = true
	voucher.Finalized = true
	if err := e.state.VoucherPut(voucher); err != nil {
		return false, err
	}
	e.emit(NewVoucherFinalizedEvent(voucher))
	return false, nil
}

// Withdraw drains the caller's pending balance for the asset. The pause gate
// applies here as to every other mutation.
func (e *Engine) Withdraw(owner [20]byte, asset string) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errLedgerNilState
	}
	return e.ledger.Withdraw(owner, asset)
}

// GetVoucher returns a copy of the stored voucher record.
func (e *Engine) GetVoucher(id [32]byte) (*Voucher, error) {
	return e.loadVoucher(id)
}

func (e *Engine) complaintStillPossible(v *Voucher, now int64) bool {
	if v.Events.Complained {
		return false
	}
	anchor := v.PrimaryAt
	if v.Events.Primary == PrimaryNone {
		anchor = v.CancelledAt
	}
	return now <= anchor+e.complainWindow
}

func (e *Engine) cancelStillPossible(v *Voucher, now int64) bool {
	if v.Events.Cancelled {
		return false
	}
	return now <= v.CommittedAt+e.cancelWindow
}

// releasePayment credits the payment pot as soon as its recipient is
// unambiguous: the seller after redemption, otherwise the buyer. Deposit
// pots wait for finalization because a later complaint or cancellation can
// still change their splits.
func (e *Engine) releasePayment(v *Voucher, order *Order) error {
	if v.PaymentReleased {
		return nil
	}
	recipient := v.Holder
	if v.Events.Primary == PrimaryRedeemed {
		recipient = v.Issuer
	}
	if err := e.ledger.Credit(recipient, order.PaymentAsset, order.Price, "payment"); err != nil {
		return err
	}
	v.PaymentReleased = true
	return nil
}

func (e *Engine) creditSplit(v *Voucher, split []Payout, asset, pot string) error {
	for _, payout := range split {
		owner, err := e.roleAddress(v, payout.Recipient)
		if err != nil {
			return err
		}
		if err := e.ledger.Credit(owner, asset, payout.Amount, pot); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) roleAddress(v *Voucher, r Role) ([20]byte, error) {
	switch r {
	case RoleBuyer:
		return v.Holder, nil
	case RoleSeller:
		return v.Issuer, nil
	case RolePool:
		if e.pool == ([20]byte{}) {
			return [20]byte{}, errNilPool
		}
		return e.pool, nil
	default:
		return [20]byte{}, fmt.Errorf("market engine: unknown role %d", r)
	}
}

// poolBound reports whether any deposit split for the event set can route
// funds to the pool, which requires a configured pool address.
func poolBound(set EventSet) bool {
	if set.Complained {
		return true
	}
	if set.Cancelled {
		return true
	}
	return set.Primary == PrimaryRefunded || set.Primary == PrimaryExpired
}

func commitVoucherID(orderID [32]byte, buyer [20]byte, seq uint32) [32]byte {
	var seqBytes [4]byte
	seqBytes[0] = byte(seq >> 24)
	seqBytes[1] = byte(seq >> 16)
	seqBytes[2] = byte(seq >> 8)
	seqBytes[3] = byte(seq)
	return ethcrypto.Keccak256Hash(orderID[:], buyer[:], seqBytes[:])
}
