package market

import (
	"fmt"
	"math/big"
	"strings"
)

// PrimaryEvent identifies the mutually exclusive terminal-path trigger
// recorded against a voucher. At most one primary event fires per voucher.
type PrimaryEvent uint8

const (
	PrimaryNone PrimaryEvent = iota
	PrimaryRedeemed
	PrimaryRefunded
	PrimaryExpired
)

// Valid reports whether the primary event value is within the supported range.
func (p PrimaryEvent) Valid() bool {
	switch p {
	case PrimaryNone, PrimaryRedeemed, PrimaryRefunded, PrimaryExpired:
		return true
	default:
		return false
	}
}

func (p PrimaryEvent) String() string {
	switch p {
	case PrimaryNone:
		return "none"
	case PrimaryRedeemed:
		return "redeemed"
	case PrimaryRefunded:
		return "refunded"
	case PrimaryExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// EventSet captures which lifecycle events have fired for a voucher. The
// primary event is exclusive; the complaint and cancellation flags are
// independent and may combine with a primary event or, for cancellation,
// occur alone. Split computation keys only on the final set, never on the
// order the flags were recorded.
type EventSet struct {
	Primary    PrimaryEvent
	Complained bool
	Cancelled  bool
}

// NewEventSet validates the combination and returns the canonical set. A
// complaint requires either a primary event or a recorded cancellation to
// complain about.
func NewEventSet(primary PrimaryEvent, complained, cancelled bool) (EventSet, error) {
	set := EventSet{Primary: primary, Complained: complained, Cancelled: cancelled}
	if err := set.Validate(); err != nil {
		return EventSet{}, err
	}
	return set, nil
}

// Validate rejects combinations the lifecycle can never produce.
func (s EventSet) Validate() error {
	if !s.Primary.Valid() {
		return fmt.Errorf("%w: unknown primary event %d", ErrInvalidEventSet, s.Primary)
	}
	if s.Complained && s.Primary == PrimaryNone && !s.Cancelled {
		return fmt.Errorf("%w: complaint without primary event or cancellation", ErrInvalidEventSet)
	}
	return nil
}

// Empty reports whether no lifecycle event has been recorded yet.
func (s EventSet) Empty() bool {
	return s.Primary == PrimaryNone && !s.Complained && !s.Cancelled
}

// Order describes a seller listing that vouchers are committed against. Terms
// are immutable after creation; only the remaining quantity is decremented.
type Order struct {
	ID            [32]byte
	Seller        [20]byte
	ValidFrom     int64
	ValidTo       int64
	Price         *big.Int
	SellerDeposit *big.Int
	BuyerDeposit  *big.Int
	Quantity      uint32
	PaymentAsset  string
	DepositAsset  string
	CreatedAt     int64
}

// Clone returns a deep copy of the order so callers can mutate the copy
// without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Price = cloneBigInt(o.Price)
	clone.SellerDeposit = cloneBigInt(o.SellerDeposit)
	clone.BuyerDeposit = cloneBigInt(o.BuyerDeposit)
	return &clone
}

// Voucher is one buyer's commitment against an order, retained as an audit
// record for its full lifecycle. Release flags are monotone: once set they
// are never cleared.
type Voucher struct {
	ID               [32]byte
	OrderID          [32]byte
	Issuer           [20]byte
	Holder           [20]byte
	Events           EventSet
	CommittedAt      int64
	PrimaryAt        int64
	ComplainedAt     int64
	CancelledAt      int64
	PaymentReleased  bool
	DepositsReleased bool
	Finalized        bool
}

// Clone returns a copy of the voucher safe for caller mutation.
func (v *Voucher) Clone() *Voucher {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// NormalizeAsset ensures the provided asset symbol matches a supported value
// and returns the canonical uppercase form. VNT is the native currency and is
// withdrawn by explicit pull; VUSD is the fungible token and is pushed to the
// recipient at credit time.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	switch trimmed {
	case AssetNative, AssetToken:
		return trimmed, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidAsset, symbol)
	}
}

const (
	// AssetNative is the chain's native currency; escrowed native funds sit
	// as pending balances until the owner pulls them.
	AssetNative = "VNT"
	// AssetToken is the fungible token asset; escrowed token funds are
	// pushed to the recipient as soon as they are credited.
	AssetToken = "VUSD"
)

// PushOnCredit reports whether funds in the given asset leave escrow at
// credit time instead of waiting for an explicit withdrawal. The asymmetry
// between native and token assets is intentional and preserved from the
// settlement rules; unifying it would change the observable timing of fund
// movement.
func PushOnCredit(asset string) bool {
	return asset == AssetToken
}

// SanitizeOrder validates and normalises the supplied order definition,
// returning a cloned instance with canonical asset casing and non-nil amount
// fields. The original value is not mutated.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	clone := o.Clone()
	payment, err := NormalizeAsset(clone.PaymentAsset)
	if err != nil {
		return nil, err
	}
	clone.PaymentAsset = payment
	deposit, err := NormalizeAsset(clone.DepositAsset)
	if err != nil {
		return nil, err
	}
	clone.DepositAsset = deposit
	if clone.Price == nil || clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if clone.SellerDeposit.Sign() < 0 || clone.BuyerDeposit.Sign() < 0 {
		return nil, fmt.Errorf("%w: deposits must be non-negative", ErrInvalidOrder)
	}
	if clone.ValidFrom >= clone.ValidTo {
		return nil, fmt.Errorf("%w: validity window is empty", ErrInvalidOrder)
	}
	return clone, nil
}

// SanitizeVoucher validates the stored voucher record, rejecting event
// combinations the lifecycle cannot produce and release flags that ran ahead
// of the recorded events.
func SanitizeVoucher(v *Voucher) (*Voucher, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil voucher", ErrInvalidVoucher)
	}
	clone := v.Clone()
	if err := clone.Events.Validate(); err != nil {
		return nil, err
	}
	if clone.Finalized && !clone.DepositsReleased {
		return nil, fmt.Errorf("%w: finalized without deposit release", ErrInvalidVoucher)
	}
	if clone.DepositsReleased && !clone.Finalized {
		return nil, fmt.Errorf("%w: deposits released before finalization", ErrInvalidVoucher)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
