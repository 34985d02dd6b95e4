package state

import (
	"fmt"
	"math/big"

	"vouchernet/native/market"
)

var (
	orderPrefix   = []byte("market/order")
	voucherPrefix = []byte("market/voucher")
	escrowPrefix  = []byte("market/escrow")
)

type storedOrder struct {
	Seller        [20]byte
	ValidFrom     uint64
	ValidTo       uint64
	Price         *big.Int
	SellerDeposit *big.Int
	BuyerDeposit  *big.Int
	Quantity      uint32
	PaymentAsset  string
	DepositAsset  string
	CreatedAt     uint64
}

type storedVoucher struct {
	OrderID          [32]byte
	Issuer           [20]byte
	Holder           [20]byte
	Primary          uint8
	Complained       bool
	Cancelled        bool
	CommittedAt      uint64
	PrimaryAt        uint64
	ComplainedAt     uint64
	CancelledAt      uint64
	PaymentReleased  bool
	DepositsReleased bool
	Finalized        bool
}

func orderKey(id [32]byte) []byte {
	return prefixedKey(orderPrefix, id[:])
}

func voucherKey(id [32]byte) []byte {
	return prefixedKey(voucherPrefix, id[:])
}

func escrowKey(owner [20]byte, asset string) []byte {
	return prefixedKey(escrowPrefix, []byte(asset), owner[:])
}

// OrderPut validates and persists an order definition.
func (m *Manager) OrderPut(o *market.Order) error {
	sanitized, err := market.SanitizeOrder(o)
	if err != nil {
		return err
	}
	record := storedOrder{
		Seller:        sanitized.Seller,
		ValidFrom:     uint64(sanitized.ValidFrom),
		ValidTo:       uint64(sanitized.ValidTo),
		Price:         sanitized.Price,
		SellerDeposit: sanitized.SellerDeposit,
		BuyerDeposit:  sanitized.BuyerDeposit,
		Quantity:      sanitized.Quantity,
		PaymentAsset:  sanitized.PaymentAsset,
		DepositAsset:  sanitized.DepositAsset,
		CreatedAt:     uint64(sanitized.CreatedAt),
	}
	return m.KVPut(orderKey(sanitized.ID), &record)
}

// OrderGet loads the order stored under the identifier.
func (m *Manager) OrderGet(id [32]byte) (*market.Order, bool) {
	var record storedOrder
	ok, err := m.KVGet(orderKey(id), &record)
	if err != nil || !ok {
		return nil, false
	}
	return &market.Order{
		ID:            id,
		Seller:        record.Seller,
		ValidFrom:     int64(record.ValidFrom),
		ValidTo:       int64(record.ValidTo),
		Price:         record.Price,
		SellerDeposit: record.SellerDeposit,
		BuyerDeposit:  record.BuyerDeposit,
		Quantity:      record.Quantity,
		PaymentAsset:  record.PaymentAsset,
		DepositAsset:  record.DepositAsset,
		CreatedAt:     int64(record.CreatedAt),
	}, true
}

// VoucherPut validates and persists a voucher record.
func (m *Manager) VoucherPut(v *market.Voucher) error {
	sanitized, err := market.SanitizeVoucher(v)
	if err != nil {
		return err
	}
	record := storedVoucher{
		OrderID:          sanitized.OrderID,
		Issuer:           sanitized.Issuer,
		Holder:           sanitized.Holder,
		Primary:          uint8(sanitized.Events.Primary),
		Complained:       sanitized.Events.Complained,
		Cancelled:        sanitized.Events.Cancelled,
		CommittedAt:      uint64(sanitized.CommittedAt),
		PrimaryAt:        uint64(sanitized.PrimaryAt),
		ComplainedAt:     uint64(sanitized.ComplainedAt),
		CancelledAt:      uint64(sanitized.CancelledAt),
		PaymentReleased:  sanitized.PaymentReleased,
		DepositsReleased: sanitized.DepositsReleased,
		Finalized:        sanitized.Finalized,
	}
	return m.KVPut(voucherKey(sanitized.ID), &record)
}

// VoucherGet loads the voucher stored under the identifier.
func (m *Manager) VoucherGet(id [32]byte) (*market.Voucher, bool) {
	var record storedVoucher
	ok, err := m.KVGet(voucherKey(id), &record)
	if err != nil || !ok {
		return nil, false
	}
	return &market.Voucher{
		ID:      id,
		OrderID: record.OrderID,
		Issuer:  record.Issuer,
		Holder:  record.Holder,
		Events: market.EventSet{
			Primary:    market.PrimaryEvent(record.Primary),
			Complained: record.Complained,
			Cancelled:  record.Cancelled,
		},
		CommittedAt:      int64(record.CommittedAt),
		PrimaryAt:        int64(record.PrimaryAt),
		ComplainedAt:     int64(record.ComplainedAt),
		CancelledAt:      int64(record.CancelledAt),
		PaymentReleased:  record.PaymentReleased,
		DepositsReleased: record.DepositsReleased,
		Finalized:        record.Finalized,
	}, true
}

// EscrowBalance reports the pending balance for the owner and asset.
func (m *Manager) EscrowBalance(owner [20]byte, asset string) (*big.Int, error) {
	return loadBigInt(m, escrowKey(owner, asset))
}

// EscrowCredit adds to the owner's pending balance.
func (m *Manager) EscrowCredit(owner [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: escrow credit must be non-negative")
	}
	balance, err := loadBigInt(m, escrowKey(owner, asset))
	if err != nil {
		return err
	}
	return storeBigInt(m, escrowKey(owner, asset), new(big.Int).Add(balance, amount))
}

// EscrowDebit removes from the owner's pending balance, rejecting
// overdrafts.
func (m *Manager) EscrowDebit(owner [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: escrow debit must be non-negative")
	}
	balance, err := loadBigInt(m, escrowKey(owner, asset))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow balance %s below debit %s", balance, amount)
	}
	return storeBigInt(m, escrowKey(owner, asset), new(big.Int).Sub(balance, amount))
}
