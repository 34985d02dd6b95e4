package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vouchernet/native/market"
	"vouchernet/observability"
)

type createOrderParams struct {
	Seller        string `json:"seller"`
	ValidFrom     int64  `json:"validFrom"`
	ValidTo       int64  `json:"validTo"`
	Price         string `json:"price"`
	SellerDeposit string `json:"sellerDeposit"`
	BuyerDeposit  string `json:"buyerDeposit"`
	Quantity      uint32 `json:"quantity"`
	PaymentAsset  string `json:"paymentAsset"`
	DepositAsset  string `json:"depositAsset"`
	Nonce         string `json:"nonce"`
	Deadline      int64  `json:"deadline,omitempty"`
	Signature     string `json:"signature,omitempty"`
}

type idParams struct {
	ID string `json:"id"`
}

type callerParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type commitParams struct {
	OrderID   string `json:"orderId"`
	Buyer     string `json:"buyer"`
	Deadline  int64  `json:"deadline,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type ownerAssetParams struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

type orderResult struct {
	ID            string `json:"id"`
	Seller        string `json:"seller"`
	ValidFrom     int64  `json:"validFrom"`
	ValidTo       int64  `json:"validTo"`
	Price         string `json:"price"`
	SellerDeposit string `json:"sellerDeposit"`
	BuyerDeposit  string `json:"buyerDeposit"`
	Quantity      uint32 `json:"quantity"`
	PaymentAsset  string `json:"paymentAsset"`
	DepositAsset  string `json:"depositAsset"`
	CreatedAt     int64  `json:"createdAt"`
}

type voucherResult struct {
	ID               string `json:"id"`
	OrderID          string `json:"orderId"`
	Issuer           string `json:"issuer"`
	Holder           string `json:"holder"`
	Primary          string `json:"primary"`
	Complained       bool   `json:"complained"`
	Cancelled        bool   `json:"cancelled"`
	CommittedAt      int64  `json:"committedAt"`
	PrimaryAt        int64  `json:"primaryAt,omitempty"`
	ComplainedAt     int64  `json:"complainedAt,omitempty"`
	CancelledAt      int64  `json:"cancelledAt,omitempty"`
	PaymentReleased  bool   `json:"paymentReleased"`
	DepositsReleased bool   `json:"depositsReleased"`
	Finalized        bool   `json:"finalized"`
}

type finalizeResult struct {
	Finalized        bool `json:"finalized"`
	AlreadyFinalized bool `json:"alreadyFinalized"`
}

type withdrawResult struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type balanceResult struct {
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Pending string `json:"pending"`
}

type statusResult struct {
	Status string `json:"status"`
}

func orderToResult(o *market.Order) orderResult {
	return orderResult{
		ID:            "0x" + hex.EncodeToString(o.ID[:]),
		Seller:        common.BytesToAddress(o.Seller[:]).Hex(),
		ValidFrom:     o.ValidFrom,
		ValidTo:       o.ValidTo,
		Price:         o.Price.String(),
		SellerDeposit: o.SellerDeposit.String(),
		BuyerDeposit:  o.BuyerDeposit.String(),
		Quantity:      o.Quantity,
		PaymentAsset:  o.PaymentAsset,
		DepositAsset:  o.DepositAsset,
		CreatedAt:     o.CreatedAt,
	}
}

func voucherToResult(v *market.Voucher) voucherResult {
	return voucherResult{
		ID:               "0x" + hex.EncodeToString(v.ID[:]),
		OrderID:          "0x" + hex.EncodeToString(v.OrderID[:]),
		Issuer:           common.BytesToAddress(v.Issuer[:]).Hex(),
		Holder:           common.BytesToAddress(v.Holder[:]).Hex(),
		Primary:          v.Events.Primary.String(),
		Complained:       v.Events.Complained,
		Cancelled:        v.Events.Cancelled,
		CommittedAt:      v.CommittedAt,
		PrimaryAt:        v.PrimaryAt,
		ComplainedAt:     v.ComplainedAt,
		CancelledAt:      v.CancelledAt,
		PaymentReleased:  v.PaymentReleased,
		DepositsReleased: v.DepositsReleased,
		Finalized:        v.Finalized,
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("invalid address %q", value)
	}
	copy(addr[:], common.HexToAddress(trimmed).Bytes())
	return addr, nil
}

func parseHash(value string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid identifier %q", value)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("identifier must be 32 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseSignature(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding")
	}
	return sig, nil
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, req *RPCRequest) {
	var params createOrderParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	sellerDeposit, err := parseAmount(params.SellerDeposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyerDeposit, err := parseAmount(params.BuyerDeposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	nonce, err := parseHash(params.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	var order *market.Order
	if params.Signature != "" {
		sig, sigErr := parseSignature(params.Signature)
		if sigErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, sigErr.Error(), nil)
			return
		}
		order, err = s.engine.CreateOrderWithPermit(seller, params.ValidFrom, params.ValidTo, price, sellerDeposit, buyerDeposit, params.Quantity, params.PaymentAsset, params.DepositAsset, nonce, params.Deadline, sig)
	} else {
		order, err = s.engine.CreateOrder(seller, params.ValidFrom, params.ValidTo, price, sellerDeposit, buyerDeposit, params.Quantity, params.PaymentAsset, params.DepositAsset, nonce)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderToResult(order))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	order, err := s.engine.GetOrder(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderToResult(order))
}

func (s *Server) handleCommit(w http.ResponseWriter, req *RPCRequest) {
	var params commitParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	orderID, err := parseHash(params.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	var voucher *market.Voucher
	if params.Signature != "" {
		sig, sigErr := parseSignature(params.Signature)
		if sigErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, sigErr.Error(), nil)
			return
		}
		voucher, err = s.engine.CommitWithPermit(orderID, buyer, params.Deadline, sig)
	} else {
		voucher, err = s.engine.Commit(orderID, buyer)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().Transition("committed")
	writeResult(w, req.ID, voucherToResult(voucher))
}

func (s *Server) handleVoucherAction(w http.ResponseWriter, req *RPCRequest, action func(id [32]byte, caller [20]byte) error, status string) {
	var params callerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := action(id, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().Transition(status)
	writeResult(w, req.ID, statusResult{Status: status})
}

func (s *Server) handleRedeem(w http.ResponseWriter, req *RPCRequest) {
	s.handleVoucherAction(w, req, s.engine.Redeem, "redeemed")
}

func (s *Server) handleRefund(w http.ResponseWriter, req *RPCRequest) {
	s.handleVoucherAction(w, req, s.engine.Refund, "refunded")
}

func (s *Server) handleComplain(w http.ResponseWriter, req *RPCRequest) {
	s.handleVoucherAction(w, req, s.engine.Complain, "complained")
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) {
	s.handleVoucherAction(w, req, s.engine.CancelOrFault, "cancelled")
}

func (s *Server) handleExpire(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.TriggerExpire(id); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().Transition("expired")
	writeResult(w, req.ID, statusResult{Status: "expired"})
}

func (s *Server) handleFinalize(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	already, err := s.engine.Finalize(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !already {
		observability.Market().Transition("finalized")
	}
	writeResult(w, req.ID, finalizeResult{Finalized: true, AlreadyFinalized: already})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params ownerAssetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := market.NormalizeAsset(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := s.engine.Withdraw(owner, asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().Withdrawal()
	writeResult(w, req.ID, withdrawResult{
		Owner:  common.BytesToAddress(owner[:]).Hex(),
		Asset:  asset,
		Amount: amount.String(),
	})
}

func (s *Server) handleGetVoucher(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	voucher, err := s.engine.GetVoucher(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, voucherToResult(voucher))
}

func (s *Server) handleBalance(w http.ResponseWriter, req *RPCRequest) {
	var params ownerAssetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := market.NormalizeAsset(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pending, err := s.engine.Ledger().Balance(owner, asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Owner:   common.BytesToAddress(owner[:]).Hex(),
		Asset:   asset,
		Pending: pending.String(),
	})
}
