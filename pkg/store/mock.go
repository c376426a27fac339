package store

import (
	"sync"
	"time"

	solgate "github.com/solgatepay/solgate/pkg"
)

// interface guard ensures Mock implements solgate.Store
var _ solgate.Store = &Mock{}

// NewMock returns an in-memory solgate.Store for tests. Behaviour
// mirrors SQLite, including payment idempotency and the settle-once
// rule. Error fields let tests inject ledger failures per method.
func NewMock() *Mock {
	return &Mock{
		accounts: make(map[int64]*solgate.Account),
		invoices: make(map[string]*solgate.Invoice),
		payments: make(map[string][]solgate.Payment),
	}
}

type Mock struct {
	mu       sync.Mutex
	accounts map[int64]*solgate.Account
	invoices map[string]*solgate.Invoice
	payments map[string][]solgate.Payment
	nextID   int64

	AppendPaymentErr error
	SettleErr        error
}

func (m *Mock) CreateAccount(account solgate.Account) (solgate.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Email == account.Email || acc.Username == account.Username {
			return solgate.Account{}, solgate.NewErr(solgate.AlreadyExists, "email or username is already registered")
		}
	}
	m.nextID += 1
	account.ID = m.nextID
	account.Created = time.Now().UTC()
	account.TotalEarned = solgate.ZeroCoins
	m.accounts[account.ID] = &account
	return account, nil
}

func (m *Mock) GetAccount(id int64) (solgate.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, found := m.accounts[id]
	if !found {
		return solgate.Account{}, solgate.NewErr(solgate.NotFound, "account not found")
	}
	return *acc, nil
}

func (m *Mock) GetAccountByEmail(email string) (solgate.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Email == email {
			return *acc, nil
		}
	}
	return solgate.Account{}, solgate.NewErr(solgate.NotFound, "account not found")
}

func (m *Mock) GetAccountByAPIKey(key string) (solgate.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.APIKey == key {
			return *acc, nil
		}
	}
	return solgate.Account{}, solgate.NewErr(solgate.NotFound, "account not found")
}

func (m *Mock) SetPayoutAddress(id int64, addr solgate.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, found := m.accounts[id]
	if !found {
		return solgate.NewErr(solgate.NotFound, "account not found: %v", id)
	}
	acc.PayoutAddress = addr
	return nil
}

func (m *Mock) SetAPIKey(id int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, found := m.accounts[id]
	if !found {
		return solgate.NewErr(solgate.NotFound, "account not found: %v", id)
	}
	acc.APIKey = key
	return nil
}

func (m *Mock) CreditEarnings(id int64, amount solgate.CoinAmount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, found := m.accounts[id]
	if !found {
		return solgate.NewErr(solgate.NotFound, "account not found: %v", id)
	}
	acc.TotalEarned = acc.TotalEarned.Add(amount)
	return nil
}

func (m *Mock) CreateInvoice(inv solgate.Invoice) (solgate.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, have := m.invoices[inv.InvoiceID]; have {
		return solgate.Invoice{}, solgate.NewErr(solgate.AlreadyExists, "invoice ID is already in use: %v", inv.InvoiceID)
	}
	m.nextID += 1
	inv.ID = m.nextID
	inv.Created = time.Now().UTC()
	m.invoices[inv.InvoiceID] = &inv
	if acc, found := m.accounts[inv.UserID]; found {
		acc.PaymentCount += 1
	}
	return inv, nil
}

func (m *Mock) GetInvoice(invoiceID string) (solgate.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, found := m.invoices[invoiceID]
	if !found {
		return solgate.Invoice{}, solgate.NewErr(solgate.NotFound, "invoice not found")
	}
	return *inv, nil
}

func (m *Mock) ListInvoices(userID int64, limit int, offset int) ([]solgate.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []solgate.Invoice
	for _, inv := range m.invoices {
		if inv.UserID == userID {
			items = append(items, *inv)
		}
	}
	// newest first
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[j].ID > items[i].ID {
				items[i], items[j] = items[j], items[i]
			}
		}
	}
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Mock) ListPendingInvoices() ([]solgate.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []solgate.Invoice
	for _, inv := range m.invoices {
		if inv.SettledTxID == "" && inv.WalletSecret != "" {
			items = append(items, *inv)
		}
	}
	return items, nil
}

func (m *Mock) AppendPayment(invoiceID string, amount solgate.CoinAmount, txid string) (solgate.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendPaymentErr != nil {
		return solgate.Invoice{}, m.AppendPaymentErr
	}
	inv, found := m.invoices[invoiceID]
	if !found {
		return solgate.Invoice{}, solgate.NewErr(solgate.NotFound, "invoice not found")
	}
	for _, p := range m.payments[invoiceID] {
		if p.TxID == txid {
			return *inv, nil // replay
		}
	}
	m.payments[invoiceID] = append(m.payments[invoiceID], solgate.Payment{
		InvoiceID: invoiceID, Amount: amount, TxID: txid, Created: time.Now().UTC(),
	})
	total := solgate.ZeroCoins
	for _, p := range m.payments[invoiceID] {
		total = total.Add(p.Amount)
	}
	inv.AmountPaid = total
	inv.Status = solgate.StatusFor(total, inv.Amount)
	inv.TxIDs = append(inv.TxIDs, txid)
	if inv.Status == solgate.StatusCompleted && inv.CompletedAt == nil {
		now := time.Now().UTC()
		inv.CompletedAt = &now
	}
	return *inv, nil
}

func (m *Mock) MarkInvoiceSettled(invoiceID string, txid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SettleErr != nil {
		return m.SettleErr
	}
	inv, found := m.invoices[invoiceID]
	if !found {
		return solgate.NewErr(solgate.NotFound, "invoice not found")
	}
	if inv.SettledTxID != "" {
		return solgate.NewErr(solgate.AlreadyExists, "invoice is already settled: %v", invoiceID)
	}
	now := time.Now().UTC()
	inv.SettledTxID = txid
	inv.SettledAt = &now
	inv.WalletSecret = ""
	return nil
}

func (m *Mock) Close() {}
