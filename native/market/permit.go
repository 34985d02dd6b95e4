package market

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PermitVerifier is the signature collaborator used by the gasless commit
// and order-creation paths. Lifecycle and distribution logic never consults
// it.
type PermitVerifier interface {
	VerifyAndApprove(owner, spender [20]byte, value *big.Int, deadline int64, sig []byte) (bool, error)
}

// PermitDigest computes the message hash a permit signature must cover:
// keccak256 of owner, spender, the 32-byte big-endian value, and the
// big-endian deadline.
func PermitDigest(owner, spender [20]byte, value *big.Int, deadline int64) []byte {
	padded := common.LeftPadBytes(cloneBigInt(value).Bytes(), 32)
	var deadlineBytes [8]byte
	for i := 0; i < 8; i++ {
		deadlineBytes[7-i] = byte(uint64(deadline) >> (8 * i))
	}
	return ethcrypto.Keccak256(owner[:], spender[:], padded, deadlineBytes[:])
}

// SecpPermitVerifier recovers the signer from a 65-byte secp256k1 signature
// over PermitDigest and approves when the recovered address matches the
// owner and the deadline has not passed.
type SecpPermitVerifier struct {
	nowFn func() int64
}

// NewPermitVerifier constructs a verifier using the wall clock.
func NewPermitVerifier() *SecpPermitVerifier {
	return &SecpPermitVerifier{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the verifier clock, primarily for tests.
func (p *SecpPermitVerifier) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

// VerifyAndApprove implements PermitVerifier.
func (p *SecpPermitVerifier) VerifyAndApprove(owner, spender [20]byte, value *big.Int, deadline int64, sig []byte) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("%w: nil verifier", ErrPermitRejected)
	}
	if deadline < p.nowFn() {
		return false, fmt.Errorf("%w: permit deadline passed", ErrPermitRejected)
	}
	if len(sig) != 65 {
		return false, fmt.Errorf("%w: signature must be 65 bytes", ErrPermitRejected)
	}
	digest := PermitDigest(owner, spender, value, deadline)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPermitRejected, err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	return recovered == common.BytesToAddress(owner[:]), nil
}
