package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapbook/pkg/bank"
	"swapbook/pkg/book"
	"swapbook/pkg/util"
)

var (
	testMaker   = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	testTaker   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	testCustody = common.HexToAddress("0xCC00000000000000000000000000000000000000")

	testTokenA = common.HexToAddress("0xA000000000000000000000000000000000000001")
	testTokenB = common.HexToAddress("0xB000000000000000000000000000000000000002")
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dbPath := fmt.Sprintf("./tmp_test_api_%s.db", t.Name())
	os.RemoveAll(dbPath)
	t.Cleanup(func() { os.RemoveAll(dbPath) })

	store, err := book.OpenStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ledger, err := book.NewLedger(store)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	b := bank.New()
	for _, acct := range []common.Address{testMaker, testTaker} {
		b.MintNative(acct, big.NewInt(1000))
		for _, tok := range []common.Address{testTokenA, testTokenB} {
			b.Mint(tok, acct, big.NewInt(1000))
			b.Approve(tok, acct, testCustody, big.NewInt(1000))
		}
	}

	clock := &util.ManualClock{Current: time.UnixMilli(1700000000000)}
	engine := book.NewEngine(ledger, bank.NewAdapter(b, testCustody), clock, zap.NewNop().Sugar())
	return NewServer(engine, []string{"*"}, zap.NewNop().Sugar())
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func createTestOrder(t *testing.T, s *Server) OrderInfo {
	t.Helper()
	rr := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker:     testMaker.Hex(),
		TokenIn:   testTokenA.Hex(),
		TokenOut:  testTokenB.Hex(),
		AmountIn:  "10",
		AmountOut: "5",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create order: status %d, body %s", rr.Code, rr.Body.String())
	}
	var info OrderInfo
	decode(t, rr, &info)
	return info
}

func TestCreateFillQueryFlow(t *testing.T) {
	s := newTestServer(t)

	info := createTestOrder(t, s)
	if info.ID != 1 || !info.Active || info.Status != "active" {
		t.Fatalf("unexpected order info: %+v", info)
	}
	if info.AmountIn != "10" || info.AmountOut != "5" {
		t.Errorf("amounts = %s/%s", info.AmountIn, info.AmountOut)
	}

	rr := doJSON(t, s, "GET", "/api/v1/orders/active", nil)
	var list OrderIDList
	decode(t, rr, &list)
	if len(list.Orders) != 1 || list.Orders[0] != 1 {
		t.Fatalf("active orders = %v", list.Orders)
	}

	rr = doJSON(t, s, "POST", "/api/v1/orders/1/fill", FillOrderRequest{Taker: testTaker.Hex()})
	if rr.Code != http.StatusOK {
		t.Fatalf("fill: status %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s, "GET", "/api/v1/orders/1", nil)
	decode(t, rr, &info)
	if info.Active || info.Status != "filled" {
		t.Errorf("order after fill: %+v", info)
	}

	rr = doJSON(t, s, "GET", "/api/v1/orders/active", nil)
	decode(t, rr, &list)
	if len(list.Orders) != 0 {
		t.Errorf("active orders after fill = %v", list.Orders)
	}
}

func TestCancelViaAPI(t *testing.T) {
	s := newTestServer(t)
	createTestOrder(t, s)

	// only the maker may cancel
	rr := doJSON(t, s, "POST", "/api/v1/orders/1/cancel", CancelOrderRequest{Caller: testTaker.Hex()})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("cancel by stranger: status %d", rr.Code)
	}

	rr = doJSON(t, s, "POST", "/api/v1/orders/1/cancel", CancelOrderRequest{Caller: testMaker.Hex()})
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: status %d, body %s", rr.Code, rr.Body.String())
	}

	// cancelled orders reject a second lifecycle attempt
	rr = doJSON(t, s, "POST", "/api/v1/orders/1/fill", FillOrderRequest{Taker: testTaker.Hex()})
	if rr.Code != http.StatusConflict {
		t.Errorf("fill after cancel: status %d", rr.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown order", "GET", "/api/v1/orders/99", nil, http.StatusNotFound},
		{"fill unknown order", "POST", "/api/v1/orders/99/fill",
			FillOrderRequest{Taker: testTaker.Hex()}, http.StatusNotFound},
		{"bad maker address", "POST", "/api/v1/orders",
			CreateOrderRequest{Maker: "nope", TokenIn: testTokenA.Hex(), TokenOut: testTokenB.Hex(), AmountIn: "10", AmountOut: "5"},
			http.StatusBadRequest},
		{"bad amount", "POST", "/api/v1/orders",
			CreateOrderRequest{Maker: testMaker.Hex(), TokenIn: testTokenA.Hex(), TokenOut: testTokenB.Hex(), AmountIn: "ten", AmountOut: "5"},
			http.StatusBadRequest},
		{"zero amount", "POST", "/api/v1/orders",
			CreateOrderRequest{Maker: testMaker.Hex(), TokenIn: testTokenA.Hex(), TokenOut: testTokenB.Hex(), AmountIn: "0", AmountOut: "5"},
			http.StatusBadRequest},
		{"identical pair", "POST", "/api/v1/orders",
			CreateOrderRequest{Maker: testMaker.Hex(), TokenIn: testTokenA.Hex(), TokenOut: testTokenA.Hex(), AmountIn: "10", AmountOut: "5"},
			http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := doJSON(t, s, tc.method, tc.path, tc.body)
		if rr.Code != tc.want {
			t.Errorf("%s: status = %d, want %d (body %s)", tc.name, rr.Code, tc.want, rr.Body.String())
		}
		var resp ErrorResponse
		decode(t, rr, &resp)
		if resp.Error == "" {
			t.Errorf("%s: empty error field", tc.name)
		}
	}
}

func TestNativeOrderViaAPI(t *testing.T) {
	s := newTestServer(t)
	zero := common.Address{}.Hex()

	// native-in orders must attach exactly amountIn
	rr := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker:     testMaker.Hex(),
		TokenIn:   zero,
		TokenOut:  testTokenB.Hex(),
		AmountIn:  "25",
		AmountOut: "5",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("native create without value: status %d", rr.Code)
	}

	rr = doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker:     testMaker.Hex(),
		TokenIn:   zero,
		TokenOut:  testTokenB.Hex(),
		AmountIn:  "25",
		AmountOut: "5",
		Value:     "25",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("native create: status %d, body %s", rr.Code, rr.Body.String())
	}
	var info OrderInfo
	decode(t, rr, &info)
	if info.TokenIn != zero {
		t.Errorf("tokenIn = %s, want zero sentinel", info.TokenIn)
	}

	rr = doJSON(t, s, "GET", "/api/v1/escrow/"+zero, nil)
	var escrow EscrowInfo
	decode(t, rr, &escrow)
	if escrow.Amount != "25" {
		t.Errorf("native escrow = %s, want 25", escrow.Amount)
	}
}

func TestOrdersByPairQuery(t *testing.T) {
	s := newTestServer(t)
	createTestOrder(t, s)

	rr := doJSON(t, s, "GET",
		fmt.Sprintf("/api/v1/orders/pair?tokenIn=%s&tokenOut=%s", testTokenA.Hex(), testTokenB.Hex()), nil)
	var list OrderIDList
	decode(t, rr, &list)
	if len(list.Orders) != 1 || list.Orders[0] != 1 {
		t.Fatalf("pair query = %v", list.Orders)
	}

	// the reverse direction is a different pair
	rr = doJSON(t, s, "GET",
		fmt.Sprintf("/api/v1/orders/pair?tokenIn=%s&tokenOut=%s", testTokenB.Hex(), testTokenA.Hex()), nil)
	decode(t, rr, &list)
	if len(list.Orders) != 0 {
		t.Errorf("reverse pair query = %v", list.Orders)
	}
}

func TestEmitBroadcastsToSubscribers(t *testing.T) {
	s := newTestServer(t)
	go s.hub.Run()

	client := &Client{
		hub:           s.hub,
		send:          make(chan []byte, 8),
		id:            "test-client",
		subscriptions: map[string]bool{channelOrders: true},
	}
	s.hub.register <- client
	// wait for the hub loop to pick up the registration
	deadline := time.After(time.Second)
	for {
		s.hub.mu.RLock()
		n := len(s.hub.clients)
		s.hub.mu.RUnlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(time.Millisecond):
		}
	}

	s.engine.SetEmitter(s)
	createTestOrder(t, s)

	select {
	case raw := <-client.send:
		var msg struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if msg.Type != "event" || msg.Name != "OrderCreated" {
			t.Errorf("event = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no event broadcast")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health: status %d", rr.Code)
	}
}
