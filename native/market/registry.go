package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CreateOrder validates and persists a seller listing, pulling the seller's
// fault bond for the full quantity into escrow. Creation is idempotent: the
// same seller and nonce with an identical definition return the stored
// order, a different definition is rejected.
func (e *Engine) CreateOrder(seller [20]byte, validFrom, validTo int64, price, sellerDeposit, buyerDeposit *big.Int, quantity uint32, paymentAsset, depositAsset string, nonce [32]byte) (*Order, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if quantity == 0 {
		return nil, fmt.Errorf("%w: quantity must be at least one", ErrInvalidOrder)
	}
	draft := &Order{
		Seller:        seller,
		ValidFrom:     validFrom,
		ValidTo:       validTo,
		Price:         price,
		SellerDeposit: sellerDeposit,
		BuyerDeposit:  buyerDeposit,
		Quantity:      quantity,
		PaymentAsset:  paymentAsset,
		DepositAsset:  depositAsset,
	}
	order, err := SanitizeOrder(draft)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if order.ValidTo < now {
		return nil, fmt.Errorf("%w: validity window already closed", ErrInvalidOrder)
	}
	order.ID = orderID(seller, nonce)
	order.CreatedAt = now
	if existing, ok := e.state.OrderGet(order.ID); ok {
		if !sameOrderTerms(existing, order) {
			return nil, fmt.Errorf("%w: identifier already exists with different definition", ErrInvalidOrder)
		}
		return existing.Clone(), nil
	}
	bond := new(big.Int).Mul(order.SellerDeposit, new(big.Int).SetUint64(uint64(order.Quantity)))
	if bond.Sign() > 0 {
		if err := e.bank.Pull(order.Seller, order.DepositAsset, bond); err != nil {
			return nil, err
		}
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewOrderCreatedEvent(order))
	return order.Clone(), nil
}

// CreateOrderWithPermit verifies a gasless-approval signature covering the
// seller's total fault bond before creating the order.
func (e *Engine) CreateOrderWithPermit(seller [20]byte, validFrom, validTo int64, price, sellerDeposit, buyerDeposit *big.Int, quantity uint32, paymentAsset, depositAsset string, nonce [32]byte, deadline int64, sig []byte) (*Order, error) {
	if e.permits == nil {
		return nil, fmt.Errorf("%w: no permit verifier configured", ErrPermitRejected)
	}
	bond := new(big.Int).Mul(cloneBigInt(sellerDeposit), new(big.Int).SetUint64(uint64(quantity)))
	ok, err := e.permits.VerifyAndApprove(seller, VaultAddress(), bond, deadline, sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPermitRejected
	}
	return e.CreateOrder(seller, validFrom, validTo, price, sellerDeposit, buyerDeposit, quantity, paymentAsset, depositAsset, nonce)
}

// GetOrder returns a copy of the stored order.
func (e *Engine) GetOrder(id [32]byte) (*Order, error) {
	return e.loadOrder(id)
}

func orderID(seller [20]byte, nonce [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(seller[:], nonce[:])
}

// sameOrderTerms compares the immutable order terms. Quantity is excluded:
// it decrements on each commit, and a repeated create against a partially
// consumed order must still be recognised as the same definition.
func sameOrderTerms(a, b *Order) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Seller == b.Seller &&
		a.ValidFrom == b.ValidFrom &&
		a.ValidTo == b.ValidTo &&
		a.Price.Cmp(b.Price) == 0 &&
		a.SellerDeposit.Cmp(b.SellerDeposit) == 0 &&
		a.BuyerDeposit.Cmp(b.BuyerDeposit) == 0 &&
		a.PaymentAsset == b.PaymentAsset &&
		a.DepositAsset == b.DepositAsset
}
