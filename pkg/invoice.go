package solgate

import (
	"crypto/rand"
	"time"
)

type InvoiceStatus string

const (
	StatusUnpaid    InvoiceStatus = "unpaid"
	StatusPartial   InvoiceStatus = "partial"
	StatusCompleted InvoiceStatus = "completed"
)

// Invoice is a request for payment of Amount to a single-use address
// generated for this invoice alone.
type Invoice struct {
	ID            int64         `json:"-"`          // internal key
	InvoiceID     string        `json:"invoice_id"` // public, URL-safe, unique
	UserID        int64         `json:"-"`
	Blockchain    string        `json:"blockchain"` // always "solana" for now
	Coin          string        `json:"coin"`       // always "sol" for now
	Amount        CoinAmount    `json:"amount"`     // target amount, SOL
	AmountPaid    CoinAmount    `json:"amount_paid"`
	TxIDs         []string      `json:"txids"` // payment signatures, in order received
	WalletAddress Address       `json:"wallet_address"`
	WalletSecret  Privkey       `json:"-"` // purged once settlement confirms
	Status        InvoiceStatus `json:"status"`
	SettledTxID   string        `json:"settled_txid,omitempty"` // settlement signature, set once
	Created       time.Time     `json:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"` // set once, on entering completed
	SettledAt     *time.Time    `json:"settled_at,omitempty"`
}

// StatusFor is the pure status function: completed iff paid >= amount,
// partial iff 0 < paid < amount, unpaid otherwise. Statuses never
// regress because AmountPaid is monotonically non-decreasing.
func StatusFor(amountPaid CoinAmount, amount CoinAmount) InvoiceStatus {
	if amountPaid.GreaterThanOrEqual(amount) {
		return StatusCompleted
	}
	if amountPaid.GreaterThan(ZeroCoins) {
		return StatusPartial
	}
	return StatusUnpaid
}

// Settled reports whether the payout transaction has confirmed.
// A completed-but-unsettled invoice needs operator attention.
func (i Invoice) Settled() bool {
	return i.SettledTxID != ""
}

// ToPublic gets those parts of the Invoice that are safe to expose to
// the outside world (i.e. NOT private keys or internal IDs).
func (i Invoice) ToPublic() PublicInvoice {
	return PublicInvoice{
		InvoiceID:     i.InvoiceID,
		Blockchain:    i.Blockchain,
		Coin:          i.Coin,
		Amount:        i.Amount,
		AmountPaid:    i.AmountPaid,
		WalletAddress: i.WalletAddress,
		Status:        i.Status,
		Created:       i.Created,
		CompletedAt:   i.CompletedAt,
	}
}

type PublicInvoice struct {
	InvoiceID     string        `json:"invoice_id"`
	Blockchain    string        `json:"blockchain"`
	Coin          string        `json:"coin"`
	Amount        CoinAmount    `json:"amount"`
	AmountPaid    CoinAmount    `json:"amount_paid"`
	WalletAddress Address       `json:"wallet_address"`
	Status        InvoiceStatus `json:"status"`
	Created       time.Time     `json:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

const invoiceIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const invoiceIDLength = 10

// NewInvoiceID generates a random URL-safe public invoice ID.
// Uniqueness is enforced by the Store on insert.
func NewInvoiceID() string {
	bytes := make([]byte, invoiceIDLength)
	rand.Read(bytes)
	for i, b := range bytes {
		bytes[i] = invoiceIDAlphabet[int(b)%len(invoiceIDAlphabet)]
	}
	return string(bytes)
}
