package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"fcgsales/core"
	"fcgsales/core/ledger"
	"fcgsales/crypto"
	"fcgsales/native/offers"
	"fcgsales/storage"
)

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	server  *Server
}

func newTestServer(t *testing.T, cfg ServerConfig) *testClient {
	t.Helper()
	node, err := core.NewNode(core.Options{DB: storage.NewMemDB()})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	srv := NewServer(node, cfg)
	return &testClient{t: t, handler: srv.Handler(), server: srv}
}

func (c *testClient) post(body []byte, headers map[string]string) (int, testResponse) {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	var resp testResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		c.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func (c *testClient) envelope(method string, params json.RawMessage, auth *RequestAuth) []byte {
	c.t.Helper()
	req := map[string]interface{}{"jsonrpc": jsonRPCVersion, "id": 1, "method": method}
	if params != nil {
		req["params"] = []json.RawMessage{params}
	}
	if auth != nil {
		req["auth"] = auth
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("marshal request: %v", err)
	}
	return body
}

// signed sends a request signed by key at the current time.
func (c *testClient) signed(key *crypto.PrivateKey, method string, params interface{}) (int, testResponse) {
	c.t.Helper()
	raw, auth, err := SignRequest(key, method, params, c.server.now())
	if err != nil {
		c.t.Fatalf("sign request: %v", err)
	}
	return c.post(c.envelope(method, raw, auth), nil)
}

// mustSigned is signed but fails the test on an RPC error and decodes the
// mutation result into out.
func (c *testClient) mustSigned(key *crypto.PrivateKey, method string, params interface{}, out interface{}) *ledger.Receipt {
	c.t.Helper()
	_, resp := c.signed(key, method, params)
	if resp.Error != nil {
		c.t.Fatalf("%s: %+v", method, resp.Error)
	}
	var result struct {
		Result  json.RawMessage `json:"result"`
		Receipt *ledger.Receipt `json:"receipt"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.t.Fatalf("%s: decode result: %v", method, err)
	}
	if out != nil {
		if err := json.Unmarshal(result.Result, out); err != nil {
			c.t.Fatalf("%s: decode payload: %v", method, err)
		}
	}
	return result.Receipt
}

func (c *testClient) query(method string, params interface{}, out interface{}) {
	c.t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		c.t.Fatalf("marshal params: %v", err)
	}
	_, resp := c.post(c.envelope(method, raw, nil), nil)
	if resp.Error != nil {
		c.t.Fatalf("%s: %+v", method, resp.Error)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		c.t.Fatalf("%s: decode result: %v", method, err)
	}
}

func (c *testClient) account() (*crypto.PrivateKey, ledger.AccountAddress) {
	c.t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		c.t.Fatalf("generate key: %v", err)
	}
	var result createAccountResult
	_, resp := c.signed(key, "fcg_createAccount", createAccountParams{PubKey: "0x" + hex.EncodeToString(key.PubKey().Bytes())})
	if resp.Error != nil {
		c.t.Fatalf("create account: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.t.Fatalf("decode account: %v", err)
	}
	if result.Account != ledger.AccountAddress(key.PubKey().Address()) {
		c.t.Fatalf("account %s does not match key", result.Account)
	}
	return key, result.Account
}

func TestOfferFlowOverRPC(t *testing.T) {
	c := newTestServer(t, ServerConfig{})
	bossKey, _ := c.account()
	managerKey, manager := c.account()
	customerKey, customer := c.account()

	var registry core.RegistryInfo
	receipt := c.mustSigned(bossKey, "fcg_instantiateRegistry", emptyParams{}, &registry)
	if receipt == nil || !receipt.Committed() {
		t.Fatalf("registry receipt not committed: %+v", receipt)
	}
	c.mustSigned(bossKey, "fcg_issueManagerBadge", issueBadgeParams{Registry: registry.Address, Name: "mgr", Recipient: manager}, nil)
	c.mustSigned(managerKey, "fcg_issueCustomerBadge", issueBadgeParams{Registry: registry.Address, Name: "cust", Recipient: customer}, nil)

	var offer offers.Offer
	c.mustSigned(managerKey, "fcg_sendOffer", sendOfferParams{
		Registry: registry.Address,
		SendOfferRequest: core.SendOfferRequest{
			Hash:      "QmOffer",
			Expiry:    100,
			Amount:    decimal.NewFromInt(250),
			Recipient: customer,
		},
	}, &offer)
	if offer.State != offers.StateNew {
		t.Fatalf("unexpected offer state %s", offer.State)
	}

	var accepted offers.Offer
	c.mustSigned(customerKey, "fcg_acceptOffer", offerParams{Registry: registry.Address, OfferID: offer.ID}, &accepted)
	if accepted.State != offers.StateAccepted {
		t.Fatalf("offer not accepted: %s", accepted.State)
	}

	status, resp := c.signed(customerKey, "fcg_refuseOffer", offerParams{Registry: registry.Address, OfferID: offer.ID})
	if status != http.StatusConflict || resp.Error == nil || resp.Error.Code != codeConflict {
		t.Fatalf("expected conflict, got %d %+v", status, resp.Error)
	}
	data, ok := resp.Error.Data.(map[string]interface{})
	if !ok || data["receipt"] == nil {
		t.Fatalf("failed receipt missing from error data: %+v", resp.Error.Data)
	}

	var got offers.Offer
	c.query("fcg_getOffer", offerParams{Registry: registry.Address, OfferID: offer.ID}, &got)
	if got.State != offers.StateAccepted {
		t.Fatalf("stored offer state %s", got.State)
	}

	status, resp = c.signed(managerKey, "fcg_cancelOffer", offerParams{Registry: registry.Address, OfferID: offer.ID})
	if status != http.StatusNotImplemented || resp.Error.Code != codeNotImplemented {
		t.Fatalf("expected not implemented, got %d %+v", status, resp.Error)
	}

	var evts eventsResult
	c.query("fcg_getEvents", eventsParams{Type: offers.EventTypeOfferAccepted}, &evts)
	if len(evts.Events) != 1 {
		t.Fatalf("expected one accepted event, got %d", len(evts.Events))
	}
}

func TestEscrowFlowOverRPC(t *testing.T) {
	c := newTestServer(t, ServerConfig{})
	sellerKey, seller := c.account()
	buyerKey, buyer := c.account()

	var coin resourceResult
	c.mustSigned(buyerKey, "fcg_createFungible", core.FungibleRequest{Name: "Coin", Symbol: "CN", Supply: decimal.NewFromInt(100)}, &coin)
	var item resourceResult
	c.mustSigned(sellerKey, "fcg_createNonFungible", core.NonFungibleRequest{Name: "Item", IDs: []ledger.LocalID{ledger.IntegerID(7)}}, &item)

	var snap struct {
		Component ledger.ComponentAddress `json:"component"`
		Status    string                  `json:"status"`
	}
	c.mustSigned(sellerKey, "fcg_instantiateEscrow", core.EscrowRequest{
		RequestedResource: coin.Resource,
		RequestedAmount:   decimal.NewFromInt(40),
		OfferedResource:   item.Resource,
		OfferedIDs:        []ledger.LocalID{ledger.IntegerID(7)},
	}, &snap)

	status, resp := c.signed(buyerKey, "fcg_exchange", exchangeParams{Escrow: snap.Component, Amount: decimal.NewFromInt(10)})
	if status != http.StatusConflict || resp.Error.Code != codeInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %d %+v", status, resp.Error)
	}

	c.mustSigned(buyerKey, "fcg_exchange", exchangeParams{Escrow: snap.Component}, &snap)
	if snap.Status != "SETTLED" {
		t.Fatalf("escrow status %s", snap.Status)
	}

	var withdrawn core.WithdrawResult
	c.mustSigned(sellerKey, "fcg_withdrawResource", escrowParams{Escrow: snap.Component}, &withdrawn)
	if !withdrawn.Settled || !withdrawn.Proceeds.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected withdraw: %+v", withdrawn)
	}

	var buyerBalances balancesResult
	c.query("fcg_balances", accountParams{Account: buyer}, &buyerBalances)
	holdsItem := false
	for _, b := range buyerBalances.Balances {
		if b.Resource == item.Resource && len(b.IDs) == 1 {
			holdsItem = true
		}
		if b.Resource == coin.Resource && !b.Amount.Equal(decimal.NewFromInt(60)) {
			t.Fatalf("buyer coin balance %s", b.Amount)
		}
	}
	if !holdsItem {
		t.Fatalf("buyer does not hold the item: %+v", buyerBalances)
	}
	var sellerBalances balancesResult
	c.query("fcg_balances", accountParams{Account: seller}, &sellerBalances)
	for _, b := range sellerBalances.Balances {
		if b.Resource == coin.Resource && !b.Amount.Equal(decimal.NewFromInt(40)) {
			t.Fatalf("seller coin balance %s", b.Amount)
		}
	}
}

func TestSignedRequestChecks(t *testing.T) {
	c := newTestServer(t, ServerConfig{RequestSkew: time.Minute})
	fixed := time.Unix(1_700_000_000, 0)
	c.server.now = func() time.Time { return fixed }
	key, _ := c.account()

	raw, auth, err := SignRequest(key, "fcg_instantiateRegistry", emptyParams{}, fixed)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	body := c.envelope("fcg_instantiateRegistry", raw, auth)
	if _, resp := c.post(body, nil); resp.Error != nil {
		t.Fatalf("first request: %+v", resp.Error)
	}
	status, resp := c.post(body, nil)
	if status != http.StatusConflict || resp.Error.Code != codeDuplicateTx {
		t.Fatalf("replay accepted: %d %+v", status, resp.Error)
	}

	raw, auth, _ = SignRequest(key, "fcg_instantiateRegistry", emptyParams{}, fixed.Add(-5*time.Minute))
	status, resp = c.post(c.envelope("fcg_instantiateRegistry", raw, auth), nil)
	if status != http.StatusUnauthorized || resp.Error.Code != codeUnauthorized {
		t.Fatalf("stale request accepted: %d %+v", status, resp.Error)
	}

	other, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw, auth, _ = SignRequest(other, "fcg_instantiateRegistry", emptyParams{}, fixed)
	auth.Signer = ledger.AccountAddress(key.PubKey().Address()).String()
	status, resp = c.post(c.envelope("fcg_instantiateRegistry", raw, auth), nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("forged signer accepted: %d %+v", status, resp.Error)
	}

	raw, auth, _ = SignRequest(key, "fcg_instantiateRegistry", emptyParams{}, fixed.Add(time.Second))
	tampered := c.envelope("fcg_createFungible", raw, auth)
	if status, _ := c.post(tampered, nil); status != http.StatusUnauthorized {
		t.Fatalf("signature reused for another method: %d", status)
	}

	status, resp = c.post(c.envelope("fcg_instantiateRegistry", json.RawMessage(`{}`), nil), nil)
	if status != http.StatusUnauthorized || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unsigned mutation accepted: %d %+v", status, resp.Error)
	}

	raw, auth, _ = SignRequest(other, "fcg_instantiateRegistry", emptyParams{}, fixed.Add(2*time.Second))
	status, resp = c.post(c.envelope("fcg_instantiateRegistry", raw, auth), nil)
	if status != http.StatusForbidden {
		t.Fatalf("unregistered signer accepted: %d %+v", status, resp.Error)
	}
}

func TestIdenticalOffersInOneSecondMintSeparately(t *testing.T) {
	c := newTestServer(t, ServerConfig{})
	fixed := time.Unix(1_700_000_000, 0)
	c.server.now = func() time.Time { return fixed }
	bossKey, _ := c.account()

	var registry core.RegistryInfo
	c.mustSigned(bossKey, "fcg_instantiateRegistry", emptyParams{}, &registry)
	params := sendOfferParams{
		Registry:         registry.Address,
		SendOfferRequest: core.SendOfferRequest{Hash: "QmSame", Expiry: 10, Amount: decimal.NewFromInt(5)},
	}
	var first, second offers.Offer
	c.mustSigned(bossKey, "fcg_sendOffer", params, &first)
	c.mustSigned(bossKey, "fcg_sendOffer", params, &second)
	if first.ID == second.ID {
		t.Fatalf("identical offers share id %s", first.ID)
	}

	raw, auth, err := SignRequest(bossKey, "fcg_sendOffer", params, fixed)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth.Nonce = "swapped"
	if status, _ := c.post(c.envelope("fcg_sendOffer", raw, auth), nil); status != http.StatusUnauthorized {
		t.Fatalf("nonce swapped after signing accepted: %d", status)
	}
}

func TestCreateAccountRequiresMatchingKey(t *testing.T) {
	c := newTestServer(t, ServerConfig{})
	key, _ := crypto.GeneratePrivateKey()
	other, _ := crypto.GeneratePrivateKey()
	status, resp := c.signed(key, "fcg_createAccount", createAccountParams{PubKey: hex.EncodeToString(other.PubKey().Bytes())})
	if status != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("expected unauthorized, got %d %+v", status, resp.Error)
	}
}

func TestAdvanceEpochRequiresBearer(t *testing.T) {
	c := newTestServer(t, ServerConfig{AuthToken: "operator-secret"})
	body := c.envelope("fcg_advanceEpoch", json.RawMessage(`{"by":5}`), nil)

	status, resp := c.post(body, nil)
	if status != http.StatusUnauthorized || resp.Error.Code != codeUnauthorized {
		t.Fatalf("missing bearer accepted: %d %+v", status, resp.Error)
	}
	status, _ = c.post(body, map[string]string{"Authorization": "Bearer wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong bearer accepted: %d", status)
	}
	status, resp = c.post(body, map[string]string{"Authorization": "Bearer operator-secret"})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("advance epoch: %d %+v", status, resp.Error)
	}
	var epoch epochResult
	c.query("fcg_epoch", struct{}{}, &epoch)
	if epoch.Epoch != 5 {
		t.Fatalf("epoch = %d", epoch.Epoch)
	}
}

func TestRateLimit(t *testing.T) {
	c := newTestServer(t, ServerConfig{RateLimitPerMinute: 1, RateLimitBurst: 2})
	body := c.envelope("fcg_epoch", json.RawMessage(`{}`), nil)
	for i := 0; i < 2; i++ {
		if status, _ := c.post(body, nil); status != http.StatusOK {
			t.Fatalf("request %d throttled: %d", i, status)
		}
	}
	status, resp := c.post(body, nil)
	if status != http.StatusTooManyRequests || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected throttle, got %d %+v", status, resp.Error)
	}
	if status, _ := c.post(body, map[string]string{"X-Forwarded-For": "203.0.113.9"}); status != http.StatusOK {
		t.Fatalf("other client throttled: %d", status)
	}
}

func TestMalformedRequests(t *testing.T) {
	c := newTestServer(t, ServerConfig{})
	cases := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{"empty", "", http.StatusBadRequest, codeInvalidRequest},
		{"not json", "{", http.StatusBadRequest, codeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"fcg_epoch","id":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"no method", `{"jsonrpc":"2.0","id":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"fcg_mint","id":1}`, http.StatusNotFound, codeMethodNotFound},
		{"unknown field", `{"jsonrpc":"2.0","method":"fcg_getReceipt","params":[{"seq":1}],"id":1}`, http.StatusBadRequest, codeInvalidParams},
		{"missing receipt", `{"jsonrpc":"2.0","method":"fcg_getReceipt","params":[{"sequence":99}],"id":1}`, http.StatusNotFound, codeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := c.post([]byte(tc.body), nil)
			if status != tc.status || resp.Error == nil || resp.Error.Code != tc.code {
				t.Fatalf("got %d %+v, want %d/%d", status, resp.Error, tc.status, tc.code)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	c := newTestServer(t, ServerConfig{MetricsEnabled: true})
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		c.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, rec.Code)
		}
	}
}

func TestClassify(t *testing.T) {
	status, code := classify(offers.ErrExpired)
	if status != http.StatusConflict || code != codeConflict {
		t.Fatalf("expired mapped to %d/%d", status, code)
	}
	status, code = classify(errUnexpected{})
	if status != http.StatusInternalServerError || code != codeServerError {
		t.Fatalf("unknown error mapped to %d/%d", status, code)
	}
}

type errUnexpected struct{}

func (errUnexpected) Error() string { return "boom" }

func TestRequestsAreTraced(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	node, err := core.NewNode(core.Options{DB: storage.NewMemDB(), TracerProvider: tp})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	srv := NewServer(node, ServerConfig{TracerProvider: tp})
	c := &testClient{t: t, handler: srv.Handler(), server: srv}
	c.account()

	ended := spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected ledger and http spans, got %d", len(ended))
	}
	ledgerSpan, httpSpan := ended[0], ended[1]
	if ledgerSpan.Name() != "ledger.execute" {
		t.Fatalf("unexpected inner span %q", ledgerSpan.Name())
	}
	if ledgerSpan.Parent().SpanID() != httpSpan.SpanContext().SpanID() {
		t.Fatalf("ledger span is not a child of the request span")
	}
	var method string
	for _, kv := range httpSpan.Attributes() {
		if kv.Key == "rpc.method" {
			method = kv.Value.AsString()
		}
	}
	if method != "fcg_createAccount" {
		t.Fatalf("request span method = %q", method)
	}
}
