package market

import (
	"fmt"
	"math/big"
)

// Role names a distribution recipient relative to the voucher. The engine
// maps roles to concrete addresses when crediting the escrow ledger.
type Role uint8

const (
	RolePool Role = iota
	RoleBuyer
	RoleSeller
)

func (r Role) String() string {
	switch r {
	case RolePool:
		return "pool"
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	default:
		return "unknown"
	}
}

// Payout assigns a share of a pot to a recipient role. Zero-amount payouts
// are omitted from splits.
type Payout struct {
	Recipient Role
	Amount    *big.Int
}

// Distribution holds the three per-pot splits for a finalized voucher. Each
// split sums exactly to the original pot; integer-division remainders are
// assigned to the pool so no amount is ever silently dropped.
type Distribution struct {
	Payment       []Payout
	SellerDeposit []Payout
	BuyerDeposit  []Payout
}

// ComputeSplits maps a voucher's final event set to the three recipient
// assignments. The function is pure: it depends only on the event set and the
// pot sizes, so recording CANCELLED before COMPLAINED or the other way round
// yields identical splits.
//
// Payment follows the primary event: a redeemed voucher pays the seller,
// every other resolved path returns the payment to the buyer. The seller
// deposit is a fault bond: a cancellation forfeits at least half of it to the
// buyer, and a complaint routes the disputed share to the neutral pool. The
// buyer deposit returns to the buyer on redemption or on a cancellation the
// buyer also complained about; otherwise it is forfeited to the pool.
func ComputeSplits(set EventSet, price, sellerDeposit, buyerDeposit *big.Int) (Distribution, error) {
	if err := set.Validate(); err != nil {
		return Distribution{}, err
	}
	if set.Primary == PrimaryNone && !set.Cancelled {
		return Distribution{}, fmt.Errorf("%w: no resolved payout path", ErrInvalidEventSet)
	}
	price = cloneBigInt(price)
	sellerDeposit = cloneBigInt(sellerDeposit)
	buyerDeposit = cloneBigInt(buyerDeposit)
	if price.Sign() < 0 || sellerDeposit.Sign() < 0 || buyerDeposit.Sign() < 0 {
		return Distribution{}, fmt.Errorf("%w: negative pot", ErrInvalidEventSet)
	}

	dist := Distribution{}

	if set.Primary == PrimaryRedeemed {
		dist.Payment = fullPayout(RoleSeller, price)
	} else {
		dist.Payment = fullPayout(RoleBuyer, price)
	}

	switch {
	case set.Complained && set.Cancelled:
		dist.SellerDeposit = splitHalfQuarter(RoleBuyer, RoleSeller, sellerDeposit)
	case set.Cancelled:
		dist.SellerDeposit = splitHalves(RoleSeller, RoleBuyer, sellerDeposit)
	case set.Complained:
		dist.SellerDeposit = fullPayout(RolePool, sellerDeposit)
	default:
		dist.SellerDeposit = fullPayout(RoleSeller, sellerDeposit)
	}

	if set.Primary == PrimaryRedeemed || (set.Complained && set.Cancelled) {
		dist.BuyerDeposit = fullPayout(RoleBuyer, buyerDeposit)
	} else {
		dist.BuyerDeposit = fullPayout(RolePool, buyerDeposit)
	}

	return dist, nil
}

func fullPayout(to Role, amount *big.Int) []Payout {
	if amount.Sign() == 0 {
		return nil
	}
	return []Payout{{Recipient: to, Amount: new(big.Int).Set(amount)}}
}

// splitHalves assigns half of the pot to each of the two recipients, rounding
// down, with any remainder going to the pool.
func splitHalves(first, second Role, amount *big.Int) []Payout {
	half := new(big.Int).Rsh(amount, 1)
	remainder := new(big.Int).Sub(amount, new(big.Int).Lsh(half, 1))
	return compactPayouts(
		Payout{Recipient: first, Amount: half},
		Payout{Recipient: second, Amount: new(big.Int).Set(half)},
		Payout{Recipient: RolePool, Amount: remainder},
	)
}

// splitHalfQuarter assigns half to the first recipient and a quarter to the
// second; the pool receives the remaining quarter plus any rounding
// remainder so the split conserves the pot exactly.
func splitHalfQuarter(halfTo, quarterTo Role, amount *big.Int) []Payout {
	half := new(big.Int).Rsh(amount, 1)
	quarter := new(big.Int).Rsh(amount, 2)
	rest := new(big.Int).Sub(amount, half)
	rest.Sub(rest, quarter)
	return compactPayouts(
		Payout{Recipient: halfTo, Amount: half},
		Payout{Recipient: quarterTo, Amount: quarter},
		Payout{Recipient: RolePool, Amount: rest},
	)
}

func compactPayouts(payouts ...Payout) []Payout {
	out := make([]Payout, 0, len(payouts))
	for _, p := range payouts {
		if p.Amount == nil || p.Amount.Sign() == 0 {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
