package solgate

import "time"

// Payment is one detected incoming transfer recorded against an
// invoice. Each on-chain signature is recorded at most once per
// invoice; AmountPaid on the invoice is always the exact sum of its
// recorded payments.
type Payment struct {
	ID        int64      `json:"-"`
	InvoiceID string     `json:"invoice_id"`
	Amount    CoinAmount `json:"amount"` // SOL
	TxID      string     `json:"txid"`   // transaction signature
	Created   time.Time  `json:"created_at"`
}
