package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/julienschmidt/httprouter"
	solgate "github.com/solgatepay/solgate/pkg"
)

// WebAPI implements conductor.Service
type WebAPI struct {
	api    solgate.API
	config solgate.Config
}

func NewWebAPI(config solgate.Config, api solgate.API) (WebAPI, error) {
	return WebAPI{api: api, config: config}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		mux := t.createRouter()
		server := &http.Server{Addr: t.config.WebAPI.Bind + ":" + t.config.WebAPI.Port, Handler: mux}
		fmt.Printf("\nWeb API listening on %s:%s", t.config.WebAPI.Bind, t.config.WebAPI.Port)
		go func() {
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server ListenAndServe: %v", err)
			}
		}()
		started <- true
		ctx := <-stop
		server.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouter() *httprouter.Router {
	mux := httprouter.New()

	// Account APIs

	// POST { email, username, password } /register -> { account, api_key }
	mux.POST("/register", t.register)

	// POST { email, password } /login -> { token, account }
	mux.POST("/login", t.login)

	// GET /dashboard -> { account } session-authenticated account info
	mux.GET("/dashboard", t.withSession(t.getDashboard))

	// GET /dashboard/invoices ? limit & offset -> [ {...}, ..] the account's invoices
	mux.GET("/dashboard/invoices", t.withSession(t.listDashboardInvoices))

	// POST { payout_address } /dashboard/payout-address -> { status }
	mux.POST("/dashboard/payout-address", t.withSession(t.setPayoutAddress))

	// POST /dashboard/regenerate-key -> { api_key } replaces the old key
	mux.POST("/dashboard/regenerate-key", t.withSession(t.regenerateAPIKey))

	// Invoice APIs (API-key authenticated, for merchant integrations)

	// POST { blockchain, coin, amount } /api/invoices -> { invoice } create new invoice
	mux.POST("/api/invoices", t.withAPIKey(t.createInvoice))

	// GET /api/invoices ? limit & offset -> [ {...}, ..]
	mux.GET("/api/invoices", t.withAPIKey(t.listInvoices))

	// GET /api/invoices/:invoiceID -> { invoice } owner's view, with settlement info
	mux.GET("/api/invoices/:invoiceID", t.withAPIKey(t.getOwnInvoice))

	// External APIs (unauthenticated, for paying customers)

	// GET /invoice/:invoiceID -> { invoice } get an invoice (sans owner info)
	mux.GET("/invoice/:invoiceID", t.getInvoice)

	mux.GET("/invoice/:invoiceID/qr.png", t.getInvoiceQR)

	return mux
}

type RegisterResponse struct {
	Account solgate.AccountPublic `json:"account"`
	APIKey  string                `json:"api_key"`
}

// register creates an account. The response is the only place the API
// key appears in full; afterwards it can only be replaced, not read.
func (t WebAPI) register(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var o solgate.RegisterRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	account, err := t.api.CreateAccount(o)
	if err != nil {
		sendError(w, "CreateAccount", err)
		return
	}
	sendResponse(w, RegisterResponse{Account: account.GetPublicInfo(), APIKey: account.APIKey})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string                `json:"token"`
	Account solgate.AccountPublic `json:"account"`
}

func (t WebAPI) login(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var o LoginRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	account, err := t.api.Login(o.Email, o.Password)
	if err != nil {
		sendError(w, "Login", err)
		return
	}
	token, err := t.mintSession(account)
	if err != nil {
		sendError(w, "Login", solgate.NewErr(solgate.UnknownError, "session mint failed: %v", err))
		return
	}
	sendResponse(w, LoginResponse{Token: token, Account: account.GetPublicInfo()})
}

func (t WebAPI) getDashboard(w http.ResponseWriter, r *http.Request, p httprouter.Params, userID int64) {
	account, err := t.api.GetAccount(userID)
	if err != nil {
		sendError(w, "GetAccount", err)
		return
	}
	sendResponse(w, account)
}

func (t WebAPI) listDashboardInvoices(w http.ResponseWriter, r *http.Request, p httprouter.Params, userID int64) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	invoices, err := t.api.ListInvoices(userID, limit, offset)
	if err != nil {
		sendError(w, "ListInvoices", err)
		return
	}
	sendResponse(w, invoices)
}

type SetPayoutAddressRequest struct {
	PayoutAddress solgate.Address `json:"payout_address"`
}

func (t WebAPI) setPayoutAddress(w http.ResponseWriter, r *http.Request, p httprouter.Params, userID int64) {
	var o SetPayoutAddressRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	err = t.api.SetPayoutAddress(userID, o.PayoutAddress)
	if err != nil {
		sendError(w, "SetPayoutAddress", err)
		return
	}
	sendResponse(w, "Set payout address")
}

func (t WebAPI) regenerateAPIKey(w http.ResponseWriter, r *http.Request, p httprouter.Params, userID int64) {
	key, err := t.api.RegenerateAPIKey(userID)
	if err != nil {
		sendError(w, "RegenerateAPIKey", err)
		return
	}
	sendResponse(w, struct {
		APIKey string `json:"api_key"`
	}{key})
}

// createInvoice returns the created Invoice (including the one-time
// payment address) for the InvoiceCreateRequest in the body
func (t WebAPI) createInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params, account solgate.Account) {
	var o solgate.InvoiceCreateRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	invoice, err := t.api.CreateInvoice(o, account.ID)
	if err != nil {
		sendError(w, "CreateInvoice", err)
		return
	}
	sendResponse(w, invoice)
}

func (t WebAPI) listInvoices(w http.ResponseWriter, r *http.Request, p httprouter.Params, account solgate.Account) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	invoices, err := t.api.ListInvoices(account.ID, limit, offset)
	if err != nil {
		sendError(w, "ListInvoices", err)
		return
	}
	sendResponse(w, invoices)
}

// getOwnInvoice is the owner's view of an invoice, including
// settlement details not shown to the paying customer.
func (t WebAPI) getOwnInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params, account solgate.Account) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID")
		return
	}
	invoice, err := t.api.GetInvoice(id)
	if err != nil || invoice.UserID != account.ID {
		sendErrorResponse(w, 404, solgate.NotFound, "no such invoice in this account")
		return
	}
	sendResponse(w, invoice)
}

// getInvoice is responsible for returning the current status of an invoice with the invoiceID in the URL
func (t WebAPI) getInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID")
		return
	}
	invoice, err := t.api.GetInvoice(id)
	if err != nil {
		sendError(w, "GetInvoice", err)
		return
	}
	sendResponse(w, invoice.ToPublic())
}

func (t WebAPI) getInvoiceQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID")
		return
	}
	invoice, err := t.api.GetInvoice(id)
	if err != nil {
		sendErrorResponse(w, 404, solgate.NotFound, "no such invoice")
		return
	}
	// Solana Pay transfer-request URL, with the invoice page as a
	// fallback label for wallets that show one
	pay := fmt.Sprintf("solana:%s?amount=%s&label=%s",
		invoice.WalletAddress, invoice.Amount.String(),
		url.QueryEscape(t.config.Solgate.ServiceName))
	qr, err := GenerateQRCodePNG(pay, 512)
	if err != nil {
		sendError(w, "GenerateQRCodePNG", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	// the QR for an invoice never changes; 15 minutes outlives most
	// invoices while still allowing format upgrades between releases
	w.Header().Set("Cache-Control", "max-age=900, immutable")
	w.Write(qr)
}

// pagination parses the optional limit/offset query parameters.
func pagination(w http.ResponseWriter, r *http.Request) (limit int, offset int, ok bool) {
	limit = 10
	offset = 0
	qs := r.URL.Query()
	var err error
	if s := qs.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			sendBadRequest(w, "invalid offset in URL")
			return 0, 0, false
		}
	}
	if s := qs.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			sendBadRequest(w, "invalid limit in URL")
			return 0, 0, false
		}
		if limit > 100 {
			sendBadRequest(w, "invalid limit in URL (cannot be greater than 100)")
			return 0, 0, false
		}
	}
	return limit, offset, true
}
