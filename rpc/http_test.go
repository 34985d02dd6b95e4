package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vouchernet/core/state"
	"vouchernet/native/market"
	"vouchernet/storage"
)

const testToken = "test-token"

type testClock struct {
	now int64
}

type rpcHarness struct {
	t       *testing.T
	server  *httptest.Server
	clock   *testClock
	manager *state.Manager
	seller  string
	buyer   string
}

func newRPCHarness(t *testing.T) *rpcHarness {
	t.Helper()
	t.Setenv("VNET_RPC_TOKEN", testToken)

	manager := state.NewManager(storage.NewMemDB())
	clock := &testClock{now: 1000}

	var pool [20]byte
	pool[19] = 0xF0

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.Ledger().SetState(manager)
	engine.SetBank(manager.Bank(market.VaultAddress()))
	engine.SetToken(manager.TokenLedger())
	engine.SetPool(pool)
	engine.SetWindows(100, 50)
	engine.SetNowFunc(func() int64 { return clock.now })

	seller := addr(0x11)
	buyer := addr(0x22)
	require.NoError(t, manager.Credit(seller, market.AssetNative, big.NewInt(100000)))
	require.NoError(t, manager.Credit(buyer, market.AssetNative, big.NewInt(100000)))

	srv := httptest.NewServer(NewServer(engine).Handler())
	t.Cleanup(srv.Close)

	return &rpcHarness{
		t:       t,
		server:  srv,
		clock:   clock,
		manager: manager,
		seller:  "0x" + hex.EncodeToString(seller[:]),
		buyer:   "0x" + hex.EncodeToString(buyer[:]),
	}
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func (h *rpcHarness) call(method string, params interface{}, authed bool) *RPCResponse {
	h.t.Helper()
	rawParams, err := json.Marshal(params)
	require.NoError(h.t, err)
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{rawParams},
	})
	require.NoError(h.t, err)

	req, err := http.NewRequest(http.MethodPost, h.server.URL, bytes.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(decoded))
	return decoded
}

func (h *rpcHarness) mustResult(method string, params interface{}, out interface{}) {
	h.t.Helper()
	resp := h.call(method, params, true)
	require.Nil(h.t, resp.Error, "method %s returned error: %+v", method, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(h.t, err)
	require.NoError(h.t, json.Unmarshal(raw, out))
}

func nonceHex(fill byte) string {
	var nonce [32]byte
	nonce[31] = fill
	return "0x" + hex.EncodeToString(nonce[:])
}

func (h *rpcHarness) createOrder(fill byte) orderResult {
	h.t.Helper()
	var order orderResult
	h.mustResult("market_createOrder", createOrderParams{
		Seller:        h.seller,
		ValidFrom:     500,
		ValidTo:       2000,
		Price:         "1000",
		SellerDeposit: "400",
		BuyerDeposit:  "200",
		Quantity:      2,
		PaymentAsset:  "VNT",
		DepositAsset:  "VNT",
		Nonce:         nonceHex(fill),
	}, &order)
	return order
}

func TestRPCRejectsUnknownMethod(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.call("market_unknown", map[string]string{}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPCRejectsMalformedPayload(t *testing.T) {
	h := newRPCHarness(t)
	resp, err := http.Post(h.server.URL, "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(decoded))
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeParseError, decoded.Error.Code)
}

func TestRPCMutationsRequireBearerToken(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.call("market_commit", commitParams{OrderID: nonceHex(1), Buyer: h.buyer}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestRPCReadsNeedNoAuth(t *testing.T) {
	h := newRPCHarness(t)
	order := h.createOrder(0x01)

	resp := h.call("market_getOrder", idParams{ID: order.ID}, false)
	require.Nil(t, resp.Error)
}

func TestRPCLifecycle(t *testing.T) {
	h := newRPCHarness(t)
	order := h.createOrder(0x01)
	require.Equal(t, "1000", order.Price)
	require.Equal(t, uint32(2), order.Quantity)

	var voucher voucherResult
	h.mustResult("market_commit", commitParams{OrderID: order.ID, Buyer: h.buyer}, &voucher)
	require.Equal(t, "none", voucher.Primary)
	require.Equal(t, int64(1000), voucher.CommittedAt)

	h.clock.now = 1100
	var status statusResult
	h.mustResult("market_redeem", callerParams{ID: voucher.ID, Caller: h.buyer}, &status)
	require.Equal(t, "redeemed", status.Status)

	// Finalization waits for the complaint window.
	resp := h.call("market_finalize", idParams{ID: voucher.ID}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConflict, resp.Error.Code)

	h.clock.now = 1201
	var fin finalizeResult
	h.mustResult("market_finalize", idParams{ID: voucher.ID}, &fin)
	require.True(t, fin.Finalized)
	require.False(t, fin.AlreadyFinalized)

	h.mustResult("market_finalize", idParams{ID: voucher.ID}, &fin)
	require.True(t, fin.AlreadyFinalized)

	var balance balanceResult
	h.mustResult("market_balance", ownerAssetParams{Owner: h.seller, Asset: "VNT"}, &balance)
	require.Equal(t, "1400", balance.Pending)

	var withdrawal withdrawResult
	h.mustResult("market_withdraw", ownerAssetParams{Owner: h.seller, Asset: "VNT"}, &withdrawal)
	require.Equal(t, "1400", withdrawal.Amount)

	resp = h.call("market_withdraw", ownerAssetParams{Owner: h.seller, Asset: "VNT"}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConflict, resp.Error.Code)

	var loaded voucherResult
	h.mustResult("market_getVoucher", idParams{ID: voucher.ID}, &loaded)
	require.True(t, loaded.Finalized)
	require.Equal(t, "redeemed", loaded.Primary)
}

func TestRPCUnauthorizedEngineActionMapsToForbidden(t *testing.T) {
	h := newRPCHarness(t)
	order := h.createOrder(0x02)

	var voucher voucherResult
	h.mustResult("market_commit", commitParams{OrderID: order.ID, Buyer: h.buyer}, &voucher)

	// The seller cannot redeem the buyer's voucher.
	resp := h.call("market_redeem", callerParams{ID: voucher.ID, Caller: h.seller}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeForbidden, resp.Error.Code)
}

func TestRPCInvalidAddressRejected(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.call("market_balance", ownerAssetParams{Owner: "not-an-address", Asset: "VNT"}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}
