package webapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/solgatepay/solgate/pkg/node"
	"github.com/solgatepay/solgate/pkg/solana"
	"github.com/solgatepay/solgate/pkg/store"
)

// watcherStub satisfies solgate.InvoiceWatcher; the web API only
// fires registrations at it.
type watcherStub struct{ watched []string }

func (s *watcherStub) Watch(invoiceID string, addr solgate.Address, amount solgate.CoinAmount, userID int64) {
	s.watched = append(s.watched, invoiceID)
}
func (s *watcherStub) Unwatch(invoiceID string)         {}
func (s *watcherStub) IsWatching(invoiceID string) bool { return false }

func newTestAPI(t *testing.T) (*testRouter, *watcherStub) {
	t.Helper()
	var config solgate.Config
	config.Solgate.ServiceName = "Solgate"
	config.Auth.SessionSecret = "test-secret"
	config.Auth.SessionDays = 7
	config.Auth.BcryptCost = 4 // bcrypt.MinCost, tests only
	config.WebAPI.Bind = "localhost"
	config.WebAPI.Port = "8080"
	watcher := &watcherStub{}
	api := solgate.NewAPI(store.NewMock(), node.NewL1Mock(), solgate.NewMessageBus(), watcher, config)
	web, err := NewWebAPI(config, api)
	if err != nil {
		t.Fatal(err)
	}
	return &testRouter{web.createRouter()}, watcher
}

// testRouter wraps the mux with request helpers.
type testRouter struct{ mux http.Handler }

func (h *testRouter) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	h.mux.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response body: %v: %s", err, res.Body.String())
	}
	return out
}

func (h *testRouter) register(t *testing.T, email string) RegisterResponse {
	t.Helper()
	res := h.do(t, "POST", "/register", "", solgate.RegisterRequest{
		Email: email, Username: strings.Split(email, "@")[0], Password: "hunter22!",
	})
	if res.Code != 200 {
		t.Fatalf("register: %d %s", res.Code, res.Body.String())
	}
	return decode[RegisterResponse](t, res)
}

func TestRegisterAndLogin(t *testing.T) {
	h, _ := newTestAPI(t)
	reg := h.register(t, "shop@example.com")
	if reg.APIKey == "" || reg.Account.Email != "shop@example.com" {
		t.Fatalf("bad register response: %+v", reg)
	}

	// duplicate email
	res := h.do(t, "POST", "/register", "", solgate.RegisterRequest{
		Email: "shop@example.com", Username: "other", Password: "hunter22!",
	})
	if res.Code != 409 {
		t.Errorf("duplicate register: %d", res.Code)
	}

	// weak password
	res = h.do(t, "POST", "/register", "", solgate.RegisterRequest{
		Email: "a@b.c", Username: "ab", Password: "short",
	})
	if res.Code != 400 {
		t.Errorf("weak password accepted: %d", res.Code)
	}

	res = h.do(t, "POST", "/login", "", LoginRequest{Email: "shop@example.com", Password: "wrong-password"})
	if res.Code != 401 {
		t.Errorf("wrong password: %d", res.Code)
	}
	res = h.do(t, "POST", "/login", "", LoginRequest{Email: "shop@example.com", Password: "hunter22!"})
	if res.Code != 200 {
		t.Fatalf("login: %d %s", res.Code, res.Body.String())
	}
	login := decode[LoginResponse](t, res)
	if login.Token == "" {
		t.Fatalf("no session token")
	}

	// the session opens the dashboard
	res = h.do(t, "GET", "/dashboard", login.Token, nil)
	if res.Code != 200 {
		t.Fatalf("dashboard: %d %s", res.Code, res.Body.String())
	}
	acc := decode[solgate.AccountPublic](t, res)
	if acc.Email != "shop@example.com" {
		t.Errorf("wrong dashboard account: %+v", acc)
	}
	if strings.Contains(res.Body.String(), reg.APIKey) {
		t.Errorf("dashboard leaks the API key")
	}

	// a garbage token does not
	res = h.do(t, "GET", "/dashboard", "not-a-jwt", nil)
	if res.Code != 401 {
		t.Errorf("bad token accepted: %d", res.Code)
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	h, watcher := newTestAPI(t)
	reg := h.register(t, "shop@example.com")

	res := h.do(t, "POST", "/api/invoices", "", solgate.InvoiceCreateRequest{})
	if res.Code != 401 {
		t.Errorf("unauthenticated create: %d", res.Code)
	}

	body := map[string]any{"blockchain": "solana", "coin": "sol", "amount": "1.5"}
	res = h.do(t, "POST", "/api/invoices", reg.APIKey, body)
	if res.Code != 200 {
		t.Fatalf("create invoice: %d %s", res.Code, res.Body.String())
	}
	inv := decode[solgate.PublicInvoice](t, res)
	if len(inv.InvoiceID) != 10 || inv.WalletAddress == "" || inv.Status != solgate.StatusUnpaid {
		t.Fatalf("bad invoice: %+v", inv)
	}
	if len(watcher.watched) != 1 || watcher.watched[0] != inv.InvoiceID {
		t.Errorf("invoice not registered with the monitor: %v", watcher.watched)
	}
	if strings.Contains(res.Body.String(), "mockPrivkey") {
		t.Fatalf("wallet secret leaked in create response")
	}

	res = h.do(t, "POST", "/api/invoices", reg.APIKey, map[string]any{"blockchain": "bitcoin", "coin": "btc", "amount": "1"})
	if res.Code != 400 {
		t.Errorf("foreign blockchain accepted: %d", res.Code)
	}

	// owner's view
	res = h.do(t, "GET", "/api/invoices/"+inv.InvoiceID, reg.APIKey, nil)
	if res.Code != 200 {
		t.Fatalf("get own invoice: %d", res.Code)
	}
	// another account cannot see it
	other := h.register(t, "other@example.com")
	res = h.do(t, "GET", "/api/invoices/"+inv.InvoiceID, other.APIKey, nil)
	if res.Code != 404 {
		t.Errorf("foreign invoice visible: %d", res.Code)
	}

	// list
	res = h.do(t, "GET", "/api/invoices", reg.APIKey, nil)
	if res.Code != 200 || !strings.Contains(res.Body.String(), inv.InvoiceID) {
		t.Errorf("list invoices: %d %s", res.Code, res.Body.String())
	}
	res = h.do(t, "GET", "/api/invoices?limit=0", reg.APIKey, nil)
	if res.Code != 400 {
		t.Errorf("bad limit accepted: %d", res.Code)
	}

	// public view, no auth required, no secrets
	res = h.do(t, "GET", "/invoice/"+inv.InvoiceID, "", nil)
	if res.Code != 200 {
		t.Fatalf("public invoice: %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "mockPrivkey") || strings.Contains(res.Body.String(), "settled_txid") {
		t.Errorf("public invoice leaks internals: %s", res.Body.String())
	}
	res = h.do(t, "GET", "/invoice/nonesuch", "", nil)
	if res.Code != 404 {
		t.Errorf("unknown invoice: %d", res.Code)
	}

	// QR code
	res = h.do(t, "GET", "/invoice/"+inv.InvoiceID+"/qr.png", "", nil)
	if res.Code != 200 || res.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qr.png: %d %s", res.Code, res.Header().Get("Content-Type"))
	}
}

func TestDashboardSettings(t *testing.T) {
	h, _ := newTestAPI(t)
	reg := h.register(t, "shop@example.com")
	res := h.do(t, "POST", "/login", "", LoginRequest{Email: "shop@example.com", Password: "hunter22!"})
	login := decode[LoginResponse](t, res)

	res = h.do(t, "POST", "/dashboard/payout-address", login.Token, SetPayoutAddressRequest{PayoutAddress: "not!base58"})
	if res.Code != 400 {
		t.Errorf("invalid payout address accepted: %d", res.Code)
	}
	payout, _, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	res = h.do(t, "POST", "/dashboard/payout-address", login.Token, SetPayoutAddressRequest{PayoutAddress: solgate.Address(payout)})
	if res.Code != 200 {
		t.Fatalf("set payout address: %d %s", res.Code, res.Body.String())
	}
	res = h.do(t, "GET", "/dashboard", login.Token, nil)
	if !strings.Contains(res.Body.String(), payout) {
		t.Errorf("payout address not persisted")
	}

	res = h.do(t, "POST", "/dashboard/regenerate-key", login.Token, nil)
	if res.Code != 200 {
		t.Fatalf("regenerate key: %d", res.Code)
	}
	newKey := decode[RegisterResponse](t, res).APIKey
	if newKey == "" || newKey == reg.APIKey {
		t.Fatalf("key not regenerated")
	}
	// the old key is dead, the new one works
	if res := h.do(t, "GET", "/api/invoices", reg.APIKey, nil); res.Code != 401 {
		t.Errorf("old API key still valid: %d", res.Code)
	}
	if res := h.do(t, "GET", "/api/invoices", newKey, nil); res.Code != 200 {
		t.Errorf("new API key rejected: %d", res.Code)
	}
}
