package monitor

import (
	"log"

	solgate "github.com/solgatepay/solgate/pkg"
)

// detection cycles a listed-but-unavailable transaction is retried
// before its signature is skipped
const txnRetryLimit = 3

// detect runs one detection cycle for a watched address, caller holds
// w.mu. It scans the recent signature history back to the cursor and
// records at most one inbound payment per cycle; anything newer is
// picked up by the following cycles. The cursor only advances past a
// signature once it has been fully examined (and, for payments,
// recorded), so a chain or ledger error is retried on the next
// trigger rather than skipped.
func (m *Monitor) detect(w *watcher) {
	sigs, err := m.l1.ListSignatures(w.addr, m.config.Monitor.SigLimit)
	if err != nil {
		log.Printf("Monitor: ListSignatures '%s': %v\n", w.invoiceID, err)
		return
	}

	// signatures arrive newest first; everything above the cursor is new
	var fresh []string
	for _, sig := range sigs {
		if sig == w.cursor {
			break
		}
		fresh = append(fresh, sig)
	}

	// examine oldest first, so payments land in chain order
	for i := len(fresh) - 1; i >= 0; i-- {
		sig := fresh[i]
		txn, err := m.l1.GetTransaction(sig)
		if solgate.IsNotFoundError(err) {
			// the node lists the signature but cannot return the
			// transaction (still indexing, or pruned): retry a few
			// cycles, then step past it
			if sig != w.retrySig {
				w.retrySig, w.retryCount = sig, 0
			}
			w.retryCount++
			if w.retryCount <= txnRetryLimit {
				return
			}
			log.Printf("Monitor: skipping unavailable transaction %s for '%s'\n", sig, w.invoiceID)
			w.retrySig, w.retryCount = "", 0
			w.cursor = sig
			continue
		}
		if err != nil {
			log.Printf("Monitor: GetTransaction '%s' %s: %v\n", w.invoiceID, sig, err)
			return
		}
		delta := txn.BalanceDelta(w.addr)
		if delta <= 0 {
			// outbound or unrelated to the watched address
			w.cursor = sig
			continue
		}
		paid := solgate.LamportsToCoin(delta)
		invoice, err := m.store.AppendPayment(w.invoiceID, paid, sig)
		if err != nil {
			log.Printf("Monitor: AppendPayment '%s' %s: %v\n", w.invoiceID, sig, err)
			return
		}
		w.cursor = sig
		log.Printf("Monitor: payment of %s SOL received for %s (%s)\n", paid.String(), w.invoiceID, sig)
		m.bus.Send(solgate.INV_PAYMENT_RECEIVED, struct {
			Invoice solgate.PublicInvoice `json:"invoice"`
			Amount  solgate.CoinAmount    `json:"amount"`
			TxID    string                `json:"txid"`
		}{invoice.ToPublic(), paid, sig}, w.invoiceID)
		// this payment crossed the target: the invoice just completed
		if invoice.Status == solgate.StatusCompleted && invoice.AmountPaid.Sub(paid).LessThan(invoice.Amount) {
			m.bus.Send(solgate.INV_COMPLETED, invoice.ToPublic(), w.invoiceID)
		}
		return // at most one payment per cycle
	}
}
