package solgate

type Store interface {
	// CreateAccount stores a new account; fails with AlreadyExists if
	// the email or username is taken.
	CreateAccount(account Account) (Account, error)
	// GetAccount returns the account with the given internal id.
	GetAccount(id int64) (Account, error)
	// GetAccountByEmail returns the account registered with email.
	GetAccountByEmail(email string) (Account, error)
	// GetAccountByAPIKey returns the account owning the given API key.
	GetAccountByAPIKey(key string) (Account, error)
	// SetPayoutAddress sets (or clears, with "") the payout address.
	SetPayoutAddress(id int64, addr Address) error
	// SetAPIKey replaces the account's API key.
	SetAPIKey(id int64, key string) error
	// CreditEarnings adds amount to the account's running total of
	// settled earnings.
	CreditEarnings(id int64, amount CoinAmount) error

	// CreateInvoice stores a new invoice and bumps the owner's payment
	// count. The invoice's InvoiceID must be unique; callers should
	// retry with a fresh NewInvoiceID on AlreadyExists.
	CreateInvoice(invoice Invoice) (Invoice, error)
	// GetInvoice returns the invoice with the given public ID.
	GetInvoice(invoiceID string) (Invoice, error)
	// ListInvoices returns an account's invoices, newest first.
	ListInvoices(userID int64, limit int, offset int) ([]Invoice, error)
	// ListPendingInvoices returns invoices that are not yet settled
	// and still hold key material; used to rebuild the watch table on
	// startup.
	ListPendingInvoices() ([]Invoice, error)

	// AppendPayment records a detected payment and recomputes the
	// invoice's amount_paid, status and completion timestamp. A txid
	// already recorded for this invoice is a no-op: the invoice is
	// returned unchanged.
	AppendPayment(invoiceID string, amount CoinAmount, txid string) (Invoice, error)
	// MarkInvoiceSettled records the confirmed settlement signature
	// (set exactly once) and purges the stored wallet secret.
	MarkInvoiceSettled(invoiceID string, txid string) error

	Close()
}
