package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bazaar/ledger"
	"bazaar/native/fees"
	"bazaar/native/market"
	"bazaar/observability"
	"bazaar/state"
	"bazaar/storage"
)

const (
	operatorHex = "0x00000000000000000000000000000000000000aa"
	sellerHex   = "0x0000000000000000000000000000000000000001"
	bidderHex   = "0x0000000000000000000000000000000000000002"
)

type testStack struct {
	server   *Server
	payments *ledger.PaymentLedger
	custody  *ledger.CustodyLedger
}

func newTestStack(t *testing.T, authToken string) *testStack {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	payments := ledger.NewPaymentLedger(manager)
	custody := ledger.NewCustodyLedger(manager)

	operator, err := parseAddress(operatorHex)
	if err != nil {
		t.Fatalf("operator address: %v", err)
	}
	policy := fees.NewPolicy(operator)
	policy.SetState(manager)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetCustody(custody)
	engine.SetPayments(payments)
	engine.SetFeePolicy(policy)
	var collector [20]byte
	collector[19] = 0xfe
	engine.SetFeeCollector(collector)
	engine.SetNativeToken("BZR")

	metrics := observability.NewMetrics("bazaar_test")
	server := NewServer(engine, policy, payments, custody, metrics, nil, authToken, nil)
	return &testStack{server: server, payments: payments, custody: custody}
}

func rpcCall(t *testing.T, ts *httptest.Server, token, method string, params interface{}) RPCResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{raw},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/rpc", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func mustResult(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	out, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is %T, want object", resp.Result)
	}
	return out
}

func TestFullAuctionLifecycleOverRPC(t *testing.T) {
	stack := newTestStack(t, "")
	ts := httptest.NewServer(stack.server.Router())
	defer ts.Close()

	seller, _ := parseAddress(sellerHex)
	bidder, _ := parseAddress(bidderHex)

	if err := stack.custody.CreateCollection("RELICS", false, time.Now().Unix()); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := stack.custody.Mint(seller, "RELICS", 7, big.NewInt(10), seller); err != nil {
		t.Fatalf("mint assets: %v", err)
	}
	if err := stack.custody.SetApproval(seller, "RELICS", true); err != nil {
		t.Fatalf("approve custody: %v", err)
	}
	if err := stack.payments.Mint(bidder, "GEM", big.NewInt(10_000)); err != nil {
		t.Fatalf("mint tokens: %v", err)
	}
	if err := stack.payments.Approve(bidder, "GEM", big.NewInt(10_000)); err != nil {
		t.Fatalf("approve tokens: %v", err)
	}

	resp := rpcCall(t, ts, "", "fees_setShare", map[string]interface{}{
		"tier": 1, "share": 1, "caller": operatorHex,
	})
	mustResult(t, resp)

	expiry := time.Now().Unix() + 3600
	resp = rpcCall(t, ts, "", "market_createOffer", map[string]interface{}{
		"offerId":      1,
		"seller":       sellerHex,
		"collection":   "RELICS",
		"assetId":      7,
		"paymentToken": "GEM",
		"price":        "100",
		"quantity":     "10",
		"forSale":      true,
		"forAuction":   true,
		"expiresAt":    expiry,
		"feeTier":      1,
		"caller":       sellerHex,
	})
	offer := mustResult(t, resp)
	if offer["collection"] != "RELICS" {
		t.Fatalf("offer collection = %v", offer["collection"])
	}

	resp = rpcCall(t, ts, "", "market_placeBid", map[string]interface{}{
		"offerId":      1,
		"paymentToken": "GEM",
		"price":        "100",
		"quantity":     "10",
		"caller":       bidderHex,
	})
	bid := mustResult(t, resp)
	if bid["escrow"] != "1000" {
		t.Fatalf("escrow = %v, want 1000", bid["escrow"])
	}

	resp = rpcCall(t, ts, "", "market_acceptBid", map[string]interface{}{
		"offerId": 1,
		"bidder":  bidderHex,
		"caller":  sellerHex,
	})
	settlement := mustResult(t, resp)
	if settlement["net"] != "990" {
		t.Fatalf("net = %v, want 990", settlement["net"])
	}
	if settlement["fee"] != "10" {
		t.Fatalf("fee = %v, want 10", settlement["fee"])
	}

	resp = rpcCall(t, ts, "", "ledger_getBalance", map[string]interface{}{
		"address": sellerHex, "token": "GEM",
	})
	balance := mustResult(t, resp)
	if balance["balance"] != "990" {
		t.Fatalf("seller balance = %v, want 990", balance["balance"])
	}

	resp = rpcCall(t, ts, "", "custody_getBalance", map[string]interface{}{
		"owner": bidderHex, "collection": "RELICS", "assetId": 7,
	})
	assets := mustResult(t, resp)
	if assets["balance"] != "10" {
		t.Fatalf("bidder assets = %v, want 10", assets["balance"])
	}
}

func TestRPCErrorCodes(t *testing.T) {
	stack := newTestStack(t, "")
	ts := httptest.NewServer(stack.server.Router())
	defer ts.Close()

	resp := rpcCall(t, ts, "", "market_getOffer", map[string]interface{}{"offerId": 99})
	if resp.Error == nil || resp.Error.Code != codeMarketNotFound {
		t.Fatalf("expected code %d, got %+v", codeMarketNotFound, resp.Error)
	}

	resp = rpcCall(t, ts, "", "fees_setShare", map[string]interface{}{
		"tier": 1, "share": 1, "caller": sellerHex,
	})
	if resp.Error == nil || resp.Error.Code != codeMarketForbidden {
		t.Fatalf("expected code %d, got %+v", codeMarketForbidden, resp.Error)
	}

	resp = rpcCall(t, ts, "", "no_suchMethod", map[string]interface{}{})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected code %d, got %+v", codeMethodNotFound, resp.Error)
	}

	resp = rpcCall(t, ts, "", "market_createOffer", map[string]interface{}{
		"seller": "garbage", "caller": "garbage",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected code %d, got %+v", codeInvalidParams, resp.Error)
	}
}

func TestMutationsRequireBearerToken(t *testing.T) {
	stack := newTestStack(t, "sekrit")
	ts := httptest.NewServer(stack.server.Router())
	defer ts.Close()

	resp := rpcCall(t, ts, "", "fees_setShare", map[string]interface{}{
		"tier": 1, "share": 1, "caller": operatorHex,
	})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected code %d, got %+v", codeUnauthorized, resp.Error)
	}

	// Reads stay open.
	resp = rpcCall(t, ts, "", "fees_getShare", map[string]interface{}{"tier": 1})
	if resp.Error != nil {
		t.Fatalf("read must not need auth: %+v", resp.Error)
	}

	resp = rpcCall(t, ts, "sekrit", "fees_setShare", map[string]interface{}{
		"tier": 1, "share": 1, "caller": operatorHex,
	})
	if resp.Error != nil {
		t.Fatalf("authorised mutation failed: %+v", resp.Error)
	}
}

func TestRateLimiterRejectsBursts(t *testing.T) {
	limiter := NewRateLimiter(60, 2)
	handler := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	defer ts.Close()

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/", ts.URL))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests must pass, got %v", statuses)
	}
	if statuses[3] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %v", statuses)
	}
}

func TestRequestIDEchoedBack(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("response must carry a request id")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set(requestIDHeader, "fixed-id")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.Header.Get(requestIDHeader) != "fixed-id" {
		t.Fatalf("client-supplied id must be echoed, got %q", resp2.Header.Get(requestIDHeader))
	}
}
