package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/stockledger/internal/quote"
	"github.com/efreitasn/stockledger/internal/service"
	"github.com/efreitasn/stockledger/internal/store"
	"github.com/shopspring/decimal"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router http.Handler
	quotes *quote.StaticSource
	store  *store.MemoryStore
}

func newTestEnv() *testEnv {
	st := store.NewMemoryStore()
	src := quote.NewStaticSource(
		quote.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.NewFromInt(100)},
		quote.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.NewFromInt(400)},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerSvc := service.NewLedgerService(st, src, logger)

	return &testEnv{
		router: NewRouter(ledgerSvc, logger),
		quotes: src,
		store:  st,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

// openAccount is a helper that opens an account via the API.
func (env *testEnv) openAccount(t *testing.T, userID, cash string) {
	t.Helper()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{
		"user_id":      userID,
		"initial_cash": cash,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open account %s: expected 201, got %d: %s", userID, rr.Code, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Fatalf("expected error %q, got %q", code, resp.Error)
	}
}

// --- Healthz ---

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

// --- Accounts ---

func TestAccount_Open_Success(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "alice", "initial_cash": "1000"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["user_id"] != "alice" || resp["cash"] != "1000" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if resp["cash_display"] != "$1,000.00" {
		t.Fatalf("expected cash_display $1,000.00, got %v", resp["cash_display"])
	}
	if _, err := time.Parse(time.RFC3339, resp["created_at"].(string)); err != nil {
		t.Fatalf("created_at not RFC 3339: %v", resp["created_at"])
	}
}

func TestAccount_Open_DefaultCash(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "alice"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["cash"] != "10000" {
		t.Fatalf("expected default cash 10000, got %v", resp["cash"])
	}
}

func TestAccount_Open_Duplicate(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "alice", "10")
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"user_id": "alice"})
	expectError(t, rr, http.StatusConflict, "account_already_exists")
}

func TestAccount_Open_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{}`},
		{"bad user id", `{"user_id":"a b"}`},
		{"negative cash", `{"user_id":"a","initial_cash":"-1"}`},
		{"non-numeric cash", `{"user_id":"a","initial_cash":"lots"}`},
		{"cash with extreme exponent", `{"user_id":"a","initial_cash":"1e2000000000"}`},
		{"cash with too many decimals", `{"user_id":"a","initial_cash":"1e-20000000"}`},
		{"unknown field", `{"user_id":"a","extra":1}`},
		{"malformed", `{"user_id":`},
		{"trailing data", `{"user_id":"a"}{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			rr := env.doRaw(t, "POST", "/accounts", "application/json", tc.body)
			expectError(t, rr, http.StatusBadRequest, "validation_error")
		})
	}
}

func TestAccount_Get_NotFound(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/accounts/ghost", nil)
	expectError(t, rr, http.StatusNotFound, "account_not_found")
}

// --- Trading ---

func TestTrade_BuyThenSell(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "1000")

	rr := env.doJSON(t, "POST", "/accounts/u1/buy", map[string]any{"symbol": "aapl", "shares": "2"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("buy: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var buy map[string]any
	decodeJSON(t, rr, &buy)
	if buy["kind"] != "BUY" || buy["symbol"] != "AAPL" || buy["price"] != "100" || buy["total"] != "200" {
		t.Fatalf("unexpected buy body: %v", buy)
	}

	rr = env.doJSON(t, "GET", "/accounts/u1", nil)
	var acct map[string]any
	decodeJSON(t, rr, &acct)
	if acct["cash"] != "800" {
		t.Fatalf("expected cash 800, got %v", acct["cash"])
	}

	env.quotes.Set(quote.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.NewFromInt(120)})
	rr = env.doJSON(t, "POST", "/accounts/u1/sell", map[string]any{"symbol": "AAPL", "shares": "2"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sell: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.doJSON(t, "GET", "/accounts/u1", nil)
	decodeJSON(t, rr, &acct)
	if acct["cash"] != "1040" || acct["cash_display"] != "$1,040.00" {
		t.Fatalf("expected cash 1040, got %v", acct)
	}

	rr = env.doJSON(t, "GET", "/accounts/u1/positions", nil)
	var positions struct {
		Positions []map[string]any `json:"positions"`
	}
	decodeJSON(t, rr, &positions)
	if len(positions.Positions) != 0 {
		t.Fatalf("expected no positions, got %v", positions.Positions)
	}

	rr = env.doJSON(t, "GET", "/accounts/u1/transactions", nil)
	var history struct {
		Transactions []map[string]any `json:"transactions"`
	}
	decodeJSON(t, rr, &history)
	if len(history.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history.Transactions))
	}
	if history.Transactions[0]["kind"] != "BUY" || history.Transactions[1]["kind"] != "SELL" {
		t.Fatalf("expected BUY then SELL, got %v", history.Transactions)
	}
}

func TestTrade_InsufficientFunds(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "500")

	rr := env.doJSON(t, "POST", "/accounts/u1/buy", map[string]any{"symbol": "AAPL", "shares": "100"})
	expectError(t, rr, http.StatusUnprocessableEntity, "insufficient_funds")
}

func TestTrade_InsufficientSharesMakesNoQuoteCall(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "500")

	rr := env.doJSON(t, "POST", "/accounts/u1/sell", map[string]any{"symbol": "MSFT", "shares": "1"})
	expectError(t, rr, http.StatusUnprocessableEntity, "insufficient_shares")
	if n := env.quotes.Lookups(); n != 0 {
		t.Fatalf("expected no quote lookups, got %d", n)
	}
}

func TestTrade_UnknownSymbol(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "500")

	rr := env.doJSON(t, "POST", "/accounts/u1/buy", map[string]any{"symbol": "NOPE", "shares": "1"})
	expectError(t, rr, http.StatusNotFound, "unknown_symbol")
}

func TestTrade_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing symbol", map[string]any{"shares": "1"}},
		{"missing shares", map[string]any{"symbol": "AAPL"}},
		{"zero shares", map[string]any{"symbol": "AAPL", "shares": "0"}},
		{"negative shares", map[string]any{"symbol": "AAPL", "shares": "-3"}},
		{"non-numeric shares", map[string]any{"symbol": "AAPL", "shares": "ten"}},
		{"shares with extreme negative exponent", map[string]any{"symbol": "AAPL", "shares": "1e-20000000"}},
		{"shares with too many integer digits", map[string]any{"symbol": "AAPL", "shares": "1e16"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.openAccount(t, "u1", "500")
			rr := env.doJSON(t, "POST", "/accounts/u1/buy", tc.body)
			expectError(t, rr, http.StatusBadRequest, "validation_error")
			if n := env.quotes.Lookups(); n != 0 {
				t.Fatalf("expected no quote lookups, got %d", n)
			}
		})
	}
}

func TestDeposit(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "10")

	rr := env.doJSON(t, "POST", "/accounts/u1/deposit", map[string]any{"amount": "5.50"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["cash"] != "15.5" {
		t.Fatalf("expected cash 15.5, got %v", resp["cash"])
	}

	for _, amount := range []string{"0", "1e2000000000", "1e-20000000"} {
		rr = env.doJSON(t, "POST", "/accounts/u1/deposit", map[string]any{"amount": amount})
		expectError(t, rr, http.StatusBadRequest, "validation_error")
	}

	rr = env.doJSON(t, "GET", "/accounts/u1", nil)
	decodeJSON(t, rr, &resp)
	if resp["cash"] != "15.5" {
		t.Fatalf("rejected deposits changed cash to %v", resp["cash"])
	}

	rr = env.doJSON(t, "POST", "/accounts/ghost/deposit", map[string]any{"amount": "1"})
	expectError(t, rr, http.StatusNotFound, "account_not_found")
}

// --- Portfolio ---

func TestPortfolio(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "1000")
	env.doJSON(t, "POST", "/accounts/u1/buy", map[string]any{"symbol": "AAPL", "shares": "3"})
	env.quotes.Set(quote.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.NewFromInt(110)})

	rr := env.doJSON(t, "GET", "/accounts/u1/portfolio", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Cash          string           `json:"cash"`
		Holdings      []map[string]any `json:"holdings"`
		HoldingsValue string           `json:"holdings_value"`
		Total         string           `json:"total"`
		TotalDisplay  string           `json:"total_display"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Cash != "700" || resp.HoldingsValue != "330" || resp.Total != "1030" {
		t.Fatalf("unexpected portfolio: %+v", resp)
	}
	if resp.TotalDisplay != "$1,030.00" {
		t.Fatalf("expected total_display $1,030.00, got %s", resp.TotalDisplay)
	}
	if len(resp.Holdings) != 1 || resp.Holdings[0]["name"] != "Apple Inc." || resp.Holdings[0]["priced"] != true {
		t.Fatalf("unexpected holdings: %v", resp.Holdings)
	}
}

func TestPortfolio_UnpricedHolding(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "1000")
	env.doJSON(t, "POST", "/accounts/u1/buy", map[string]any{"symbol": "AAPL", "shares": "1"})
	env.quotes.Remove("AAPL")

	rr := env.doJSON(t, "GET", "/accounts/u1/portfolio", nil)
	var resp struct {
		Holdings []map[string]any `json:"holdings"`
		Total    string           `json:"total"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Holdings[0]["priced"] != false || resp.Holdings[0]["price"] != nil {
		t.Fatalf("expected unpriced holding with null price, got %v", resp.Holdings[0])
	}
	if resp.Total != "900" {
		t.Fatalf("expected total 900, got %s", resp.Total)
	}
}

// --- Quotes ---

func TestQuote_Success(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/quotes/msft", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["symbol"] != "MSFT" || resp["price"] != "400" || resp["price_display"] != "$400.00" {
		t.Fatalf("unexpected body: %v", resp)
	}
}

func TestQuote_Unknown(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/quotes/NOPE", nil)
	expectError(t, rr, http.StatusNotFound, "unknown_symbol")
}

// --- Middleware ---

func TestContentType_MissingOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/accounts", "", `{"user_id":"u1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestContentType_WrongOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/accounts", "text/plain", `{"user_id":"u1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated X-Request-Id")
	}

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestNoCacheHeaders(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if got := rr.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
		t.Fatalf("unexpected Cache-Control %q", got)
	}
	if rr.Header().Get("Pragma") != "no-cache" || rr.Header().Get("Expires") != "0" {
		t.Fatalf("missing Pragma/Expires headers: %v", rr.Header())
	}
}

// --- Response Format Validation ---

func TestResponseFormat_SnakeCaseFields(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "1000")

	rr := env.doJSON(t, "GET", "/accounts/u1/portfolio", nil)
	body := rr.Body.String()

	for _, field := range []string{"user_id", "cash_display", "holdings_value", "total_display"} {
		if !strings.Contains(body, fmt.Sprintf(`"%s"`, field)) {
			t.Fatalf("response missing snake_case field %q: %s", field, body)
		}
	}
	for _, bad := range []string{"userId", "cashDisplay", "holdingsValue"} {
		if strings.Contains(body, bad) {
			t.Fatalf("response contains camelCase field %q: %s", bad, body)
		}
	}
}

func TestResponseFormat_DecimalsAsStrings(t *testing.T) {
	env := newTestEnv()
	env.openAccount(t, "u1", "1234.56")

	rr := env.doJSON(t, "GET", "/accounts/u1", nil)
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["cash"] != "1234.56" {
		t.Fatalf("expected cash \"1234.56\" as a string, got %#v", resp["cash"])
	}
}
