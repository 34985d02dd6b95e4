package market

import "errors"

var (
	ErrOrderNotFound     = errors.New("market: order not found")
	ErrVoucherNotFound   = errors.New("market: voucher not found")
	ErrInvalidOrder      = errors.New("market: invalid order")
	ErrInvalidVoucher    = errors.New("market: invalid voucher")
	ErrInvalidEventSet   = errors.New("market: invalid event set")
	ErrInvalidAsset      = errors.New("market: unsupported asset")
	ErrInvalidState      = errors.New("market: invalid state")
	ErrUnauthorized      = errors.New("market: unauthorized")
	ErrWindowClosed      = errors.New("market: window closed")
	ErrWindowNotElapsed  = errors.New("market: window not elapsed")
	ErrNothingToWithdraw = errors.New("market: nothing to withdraw")
	ErrQuantityExhausted = errors.New("market: quantity exhausted")
	ErrPermitRejected    = errors.New("market: permit rejected")
)
