package monitor

import (
	"fmt"
	"log"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/solgatepay/solgate/pkg/solana"
)

const feeSplitScale = 10_000 // basis points

// splitPool divides a lamport pool between the merchant and the
// house. Integer math only: the merchant share rounds down and the
// house absorbs the remainder, so userShare+houseShare == pool always.
func splitPool(pool int64, houseFeeBP int64) (userShare int64, houseShare int64) {
	userShare = pool * (feeSplitScale - houseFeeBP) / feeSplitScale
	houseShare = pool - userShare
	return
}

// settle forwards a completed invoice's target amount to the
// merchant's payout address, minus the house share, the rent-exempt
// reserve and the network fee. Caller holds
// w.mu, so at most one settlement attempt runs at a time; on success
// or on a fatal failure the invoice is unwatched, which makes the
// attempt at-most-once for the life of the process.
//
// Failure handling:
//   - chain/ledger read errors before anything is signed are
//     transient: log and return, the next trigger retries.
//   - a missing payout address is also transient: settlement proceeds
//     on the first trigger after the merchant sets one.
//   - simulation, broadcast or confirmation failures are fatal: funds
//     may already have moved, so re-signing is unsafe. The invoice is
//     unwatched and left completed-but-unsettled in the ledger for an
//     operator, and INV_SETTLEMENT_FAILED is emitted.
func (m *Monitor) settle(w *watcher, invoice solgate.Invoice) {
	account, err := m.store.GetAccount(w.userID)
	if err != nil {
		log.Printf("Monitor: GetAccount '%s': %v\n", w.invoiceID, err)
		return
	}
	if account.PayoutAddress == "" {
		log.Printf("Monitor: invoice %s is completed but account %s has no payout address\n",
			w.invoiceID, account.Username)
		return
	}

	key, err := solana.DecodeSecret(string(invoice.WalletSecret))
	if err != nil {
		m.settlementFailed(w, "cannot decode wallet secret: %v", err)
		return
	}
	defer solana.Zero(key)

	balance, err := m.l1.GetBalance(w.addr)
	if err != nil {
		log.Printf("Monitor: GetBalance '%s': %v\n", w.invoiceID, err)
		return
	}
	reserve, err := m.l1.GetRentExemptReserve()
	if err != nil {
		log.Printf("Monitor: GetRentExemptReserve '%s': %v\n", w.invoiceID, err)
		return
	}
	blockhash, err := m.l1.GetLatestBlockhash()
	if err != nil {
		log.Printf("Monitor: GetLatestBlockhash '%s': %v\n", w.invoiceID, err)
		return
	}

	// a reorg or lost confirmation can leave the live balance below
	// what the ledger recorded; move nothing until the chain agrees
	target := solgate.CoinToLamports(invoice.Amount)
	if balance < target {
		m.settlementFailed(w, "live balance %d is below the invoice target %d", balance, target)
		return
	}

	// the payout splits the invoice target, not the whole balance:
	// any overpayment stays behind in the invoice account
	pool := target - reserve
	if pool <= 0 {
		m.settlementFailed(w, "target %d does not cover the rent-exempt reserve %d", target, reserve)
		return
	}
	houseFeeBP := m.config.Settlement.HouseFeeBP
	houseAddr := m.config.Settlement.HouseAddress
	draft, err := solana.TransferMessage(string(w.addr), blockhash,
		splitTransfers(pool, houseFeeBP, account.PayoutAddress, houseAddr))
	if err != nil {
		m.settlementFailed(w, "cannot build transfer message: %v", err)
		return
	}
	fee, err := m.l1.EstimateFee(draft)
	if err != nil {
		log.Printf("Monitor: EstimateFee '%s', using fallback fee: %v\n", w.invoiceID, err)
		fee = m.config.Settlement.FallbackFee
	}

	// the fee comes out of the same account: shrink the pool when the
	// balance cannot cover the full target plus the fee
	if distributable := balance - reserve - fee; distributable < pool {
		pool = distributable
	}
	if pool <= 0 {
		m.settlementFailed(w, "balance %d does not cover reserve %d plus fee %d", balance, reserve, fee)
		return
	}
	transfers := splitTransfers(pool, houseFeeBP, account.PayoutAddress, houseAddr)
	message, err := solana.TransferMessage(string(w.addr), blockhash, transfers)
	if err != nil {
		m.settlementFailed(w, "cannot build transfer message: %v", err)
		return
	}
	rawTxn := solana.SignedTransaction(key, message)

	if err := m.l1.Simulate(rawTxn); err != nil {
		m.settlementFailed(w, "simulation rejected the settlement: %v", err)
		return
	}
	signature, err := m.l1.SendRaw(rawTxn, m.config.Monitor.SendRetries)
	if err != nil {
		m.settlementFailed(w, "broadcast failed: %v", err)
		return
	}
	if err := m.l1.Confirm(signature); err != nil {
		m.settlementFailed(w, "confirmation failed for %s: %v", signature, err)
		return
	}

	// the transaction is on-chain: ledger errors past this point are
	// logged but must never cause a re-send.
	userShare, _ := splitPool(pool, houseFeeBP)
	earned := solgate.LamportsToCoin(userShare)
	if err := m.store.CreditEarnings(w.userID, earned); err != nil {
		log.Printf("Monitor: CreditEarnings '%s': %v\n", w.invoiceID, err)
	} else {
		m.bus.Send(solgate.ACC_EARNINGS, struct {
			UserID    int64              `json:"user_id"`
			InvoiceID string             `json:"invoice_id"`
			Amount    solgate.CoinAmount `json:"amount"`
		}{w.userID, w.invoiceID, earned})
	}
	if err := m.store.MarkInvoiceSettled(w.invoiceID, signature); err != nil {
		log.Printf("Monitor: MarkInvoiceSettled '%s' %s: %v\n", w.invoiceID, signature, err)
	}
	log.Printf("Monitor: settled invoice %s with %s\n", w.invoiceID, signature)
	m.bus.Send(solgate.INV_SETTLED, struct {
		InvoiceID   string `json:"invoice_id"`
		SettledTxID string `json:"settled_txid"`
	}{w.invoiceID, signature}, w.invoiceID)
	m.Unwatch(w.invoiceID)
}

// splitTransfers turns a pool split into the transfer list: one
// payout to the merchant, plus the house share when it is non-zero.
func splitTransfers(pool int64, houseFeeBP int64, payout solgate.Address, house string) []solana.Transfer {
	userShare, houseShare := splitPool(pool, houseFeeBP)
	transfers := []solana.Transfer{{To: string(payout), Lamports: userShare}}
	if houseShare > 0 {
		transfers = append(transfers, solana.Transfer{To: house, Lamports: houseShare})
	}
	return transfers
}

// settlementFailed gives up on settling an invoice: the watch is torn
// down and the invoice stays completed-but-unsettled in the ledger,
// flagged for operator attention via the bus.
func (m *Monitor) settlementFailed(w *watcher, reason string, args ...interface{}) {
	detail := fmt.Sprintf(reason, args...)
	log.Printf("Monitor: settlement failed for %s: %s\n", w.invoiceID, detail)
	m.bus.Send(solgate.INV_SETTLEMENT_FAILED, struct {
		InvoiceID string `json:"invoice_id"`
		Reason    string `json:"reason"`
	}{w.invoiceID, detail}, w.invoiceID)
	m.Unwatch(w.invoiceID)
}
