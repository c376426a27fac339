package solgate

import (
	"strings"

	"github.com/google/uuid"
	"github.com/solgatepay/solgate/pkg/solana"
	"golang.org/x/crypto/bcrypt"
)

// InvoiceWatcher is the monitor registry as seen by the API layer:
// fire-and-forget registration of invoices to watch for payment.
// Implemented by pkg/monitor.
type InvoiceWatcher interface {
	Watch(invoiceID string, addr Address, amount CoinAmount, userID int64)
	Unwatch(invoiceID string)
	IsWatching(invoiceID string) bool
}

type API struct {
	Store   Store
	L1      L1
	Bus     MessageBus
	Watcher InvoiceWatcher
	Config  Config
}

func NewAPI(store Store, l1 L1, bus MessageBus, watcher InvoiceWatcher, config Config) API {
	return API{store, l1, bus, watcher, config}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateAccount registers a new account. The returned Account carries
// the generated API key: this is the caller's one chance to show it.
func (a API) CreateAccount(request RegisterRequest) (Account, error) {
	if request.Email == "" || request.Username == "" {
		return Account{}, NewErr(BadRequest, "email and username are required")
	}
	if len(request.Password) < 8 {
		return Account{}, NewErr(BadRequest, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), a.Config.Auth.BcryptCost)
	if err != nil {
		return Account{}, NewErr(UnknownError, "password hash failed: %v", err)
	}
	account := Account{
		Email:        request.Email,
		Username:     request.Username,
		PasswordHash: string(hash),
		APIKey:       NewAPIKey(),
	}
	account, err = a.Store.CreateAccount(account)
	if err != nil {
		return Account{}, err
	}
	a.Bus.Send(ACC_CREATED, account.GetPublicInfo())
	return account, nil
}

// Login verifies the password and returns the account; session token
// minting lives in webapi.
func (a API) Login(email string, password string) (Account, error) {
	account, err := a.Store.GetAccountByEmail(email)
	if err != nil {
		// same error for unknown email and wrong password
		return Account{}, NewErr(Unauthorized, "invalid email or password")
	}
	err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password))
	if err != nil {
		return Account{}, NewErr(Unauthorized, "invalid email or password")
	}
	return account, nil
}

func (a API) AuthenticateAPIKey(key string) (Account, error) {
	if key == "" {
		return Account{}, NewErr(Unauthorized, "missing API key")
	}
	account, err := a.Store.GetAccountByAPIKey(key)
	if err != nil {
		return Account{}, NewErr(Unauthorized, "invalid API key")
	}
	return account, nil
}

type InvoiceCreateRequest struct {
	Blockchain string     `json:"blockchain"`
	Coin       string     `json:"coin"`
	Amount     CoinAmount `json:"amount"`
}

// CreateInvoice generates a one-time receiving address, stores the
// invoice and registers it with the payment monitor.
func (a API) CreateInvoice(request InvoiceCreateRequest, userID int64) (Invoice, error) {
	if !strings.EqualFold(request.Blockchain, "solana") {
		return Invoice{}, NewErr(BadRequest, "invalid blockchain, only \"solana\" is supported")
	}
	coin := strings.ToLower(request.Coin)
	if coin != "sol" && coin != "solana" {
		return Invoice{}, NewErr(BadRequest, "invalid coin, only \"sol\" is supported")
	}
	if !request.Amount.GreaterThan(ZeroCoins) {
		return Invoice{}, NewErr(BadRequest, "amount must be a positive number")
	}
	addr, priv, err := a.L1.MakeAddress()
	if err != nil {
		return Invoice{}, NewErr(UnknownError, "MakeAddress failed: %v", err)
	}
	invoice := Invoice{
		UserID:        userID,
		Blockchain:    "solana",
		Coin:          "sol",
		Amount:        request.Amount,
		AmountPaid:    ZeroCoins,
		WalletAddress: addr,
		WalletSecret:  priv,
		Status:        StatusUnpaid,
	}
	// the public ID is random; retry on the (unlikely) collision
	for attempt := 0; ; attempt++ {
		invoice.InvoiceID = NewInvoiceID()
		invoice, err = a.Store.CreateInvoice(invoice)
		if err == nil {
			break
		}
		if !IsAlreadyExistsError(err) || attempt >= 10 {
			return Invoice{}, err
		}
	}
	a.Bus.Send(INV_CREATED, invoice.ToPublic(), invoice.InvoiceID)
	// fire-and-forget: a failed registration is logged by the monitor
	// and recovered on restart via ListPendingInvoices.
	a.Watcher.Watch(invoice.InvoiceID, invoice.WalletAddress, invoice.Amount, invoice.UserID)
	return invoice, nil
}

func (a API) GetInvoice(invoiceID string) (Invoice, error) {
	return a.Store.GetInvoice(invoiceID)
}

func (a API) ListInvoices(userID int64, limit int, offset int) ([]Invoice, error) {
	items, err := a.Store.ListInvoices(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Invoice{} // encoded as '[]' in JSON
	}
	return items, nil
}

func (a API) GetAccount(id int64) (AccountPublic, error) {
	account, err := a.Store.GetAccount(id)
	if err != nil {
		return AccountPublic{}, err
	}
	return account.GetPublicInfo(), nil
}

// SetPayoutAddress sets or clears (empty string) the address that
// settled funds are forwarded to.
func (a API) SetPayoutAddress(userID int64, addr Address) error {
	if addr != "" && !solana.ValidAddress(string(addr)) {
		return NewErr(BadRequest, "invalid Solana address: %v", addr)
	}
	err := a.Store.SetPayoutAddress(userID, addr)
	if err != nil {
		return err
	}
	a.Bus.Send(ACC_UPDATED, struct {
		UserID        int64   `json:"user_id"`
		PayoutAddress Address `json:"payout_address"`
	}{userID, addr})
	return nil
}

func (a API) RegenerateAPIKey(userID int64) (string, error) {
	key := NewAPIKey()
	err := a.Store.SetAPIKey(userID, key)
	if err != nil {
		return "", err
	}
	a.Bus.Send(ACC_KEY_REGENERATE, struct {
		UserID int64 `json:"user_id"`
	}{userID})
	return key, nil
}

// NewAPIKey generates an opaque bearer token for the invoice API.
func NewAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
