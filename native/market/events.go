package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vouchernet/core/types"
)

const (
	EventTypeOrderCreated      = "market.order.created"
	EventTypeVoucherCommitted  = "market.voucher.committed"
	EventTypeVoucherRedeemed   = "market.voucher.redeemed"
	EventTypeVoucherRefunded   = "market.voucher.refunded"
	EventTypeVoucherExpired    = "market.voucher.expired"
	EventTypeVoucherComplained = "market.voucher.complained"
	EventTypeVoucherCancelled  = "market.voucher.cancelled"
	EventTypeVoucherFinalized  = "market.voucher.finalized"
	EventTypeFundsDistributed  = "market.funds.distributed"
	EventTypeFundsWithdrawn    = "market.funds.withdrawn"
)

// NewOrderCreatedEvent returns the canonical payload for a newly listed order.
func NewOrderCreatedEvent(o *Order) *types.Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["id"] = hex.EncodeToString(o.ID[:])
		attrs["seller"] = hex.EncodeToString(o.Seller[:])
		attrs["price"] = bigIntString(o.Price)
		attrs["sellerDeposit"] = bigIntString(o.SellerDeposit)
		attrs["buyerDeposit"] = bigIntString(o.BuyerDeposit)
		attrs["quantity"] = strconv.FormatUint(uint64(o.Quantity), 10)
		attrs["paymentAsset"] = o.PaymentAsset
		attrs["depositAsset"] = o.DepositAsset
		attrs["validFrom"] = strconv.FormatInt(o.ValidFrom, 10)
		attrs["validTo"] = strconv.FormatInt(o.ValidTo, 10)
	}
	return &types.Event{Type: EventTypeOrderCreated, Attributes: attrs}
}

// NewVoucherCommittedEvent returns the payload emitted when a buyer commits
// to a voucher.
func NewVoucherCommittedEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherCommitted, v)
}

// NewVoucherRedeemedEvent returns the payload for a redemption.
func NewVoucherRedeemedEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherRedeemed, v)
}

// NewVoucherRefundedEvent returns the payload for a holder refund.
func NewVoucherRefundedEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherRefunded, v)
}

// NewVoucherExpiredEvent returns the payload emitted when a voucher expires
// past its validity window.
func NewVoucherExpiredEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherExpired, v)
}

// NewVoucherComplainedEvent returns the payload for a holder complaint.
func NewVoucherComplainedEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherComplained, v)
}

// NewVoucherCancelledEvent returns the payload for an issuer cancellation or
// fault admission.
func NewVoucherCancelledEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherCancelled, v)
}

// NewVoucherFinalizedEvent returns the payload emitted exactly once when a
// voucher finalizes and its deposit splits become fixed.
func NewVoucherFinalizedEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherFinalized, v)
}

// NewFundsDistributedEvent records a single ledger credit produced by the
// distribution calculator.
func NewFundsDistributedEvent(owner [20]byte, asset string, amount *big.Int, pot string) *types.Event {
	return &types.Event{Type: EventTypeFundsDistributed, Attributes: map[string]string{
		"owner":  hex.EncodeToString(owner[:]),
		"asset":  asset,
		"amount": bigIntString(amount),
		"pot":    pot,
	}}
}

// NewFundsWithdrawnEvent records an actual asset movement out of escrow.
func NewFundsWithdrawnEvent(owner [20]byte, asset string, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFundsWithdrawn, Attributes: map[string]string{
		"owner":  hex.EncodeToString(owner[:]),
		"asset":  asset,
		"amount": bigIntString(amount),
	}}
}

func newVoucherEvent(eventType string, v *Voucher) *types.Event {
	attrs := make(map[string]string)
	if v != nil {
		attrs["id"] = hex.EncodeToString(v.ID[:])
		attrs["orderId"] = hex.EncodeToString(v.OrderID[:])
		attrs["issuer"] = hex.EncodeToString(v.Issuer[:])
		attrs["holder"] = hex.EncodeToString(v.Holder[:])
		attrs["primary"] = v.Events.Primary.String()
		attrs["complained"] = strconv.FormatBool(v.Events.Complained)
		attrs["cancelled"] = strconv.FormatBool(v.Events.Cancelled)
		attrs["committedAt"] = strconv.FormatInt(v.CommittedAt, 10)
		attrs["finalized"] = strconv.FormatBool(v.Finalized)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
