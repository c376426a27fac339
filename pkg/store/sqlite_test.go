package store

import (
	"testing"

	"github.com/shopspring/decimal"
	solgate "github.com/solgatepay/solgate/pkg"
)

func newTestStore(t *testing.T) SQLite {
	t.Helper()
	db, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func newTestAccount(t *testing.T, db SQLite) solgate.Account {
	t.Helper()
	acc, err := db.CreateAccount(solgate.Account{
		Email:        "shop@example.com",
		Username:     "shop",
		PasswordHash: "x",
		APIKey:       "key-1",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acc
}

func newTestInvoice(t *testing.T, db SQLite, userID int64, amount string) solgate.Invoice {
	t.Helper()
	inv, err := db.CreateInvoice(solgate.Invoice{
		InvoiceID:     solgate.NewInvoiceID(),
		UserID:        userID,
		Blockchain:    "solana",
		Coin:          "sol",
		Amount:        decimal.RequireFromString(amount),
		AmountPaid:    solgate.ZeroCoins,
		WalletAddress: solgate.Address("addr-" + solgate.NewInvoiceID()),
		WalletSecret:  "secret",
		Status:        solgate.StatusUnpaid,
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return inv
}

func TestAccountRoundTrip(t *testing.T) {
	db := newTestStore(t)
	acc := newTestAccount(t, db)
	if acc.ID == 0 {
		t.Fatalf("CreateAccount: no ID assigned")
	}

	if _, err := db.CreateAccount(solgate.Account{Email: "shop@example.com", Username: "other", APIKey: "key-2"}); !solgate.IsAlreadyExistsError(err) {
		t.Errorf("duplicate email accepted: %v", err)
	}

	byEmail, err := db.GetAccountByEmail("shop@example.com")
	if err != nil || byEmail.ID != acc.ID {
		t.Errorf("GetAccountByEmail: %v %v", byEmail.ID, err)
	}
	byKey, err := db.GetAccountByAPIKey("key-1")
	if err != nil || byKey.ID != acc.ID {
		t.Errorf("GetAccountByAPIKey: %v %v", byKey.ID, err)
	}
	if _, err := db.GetAccount(999); !solgate.IsNotFoundError(err) {
		t.Errorf("GetAccount(999): %v", err)
	}

	if err := db.SetPayoutAddress(acc.ID, "payout"); err != nil {
		t.Errorf("SetPayoutAddress: %v", err)
	}
	if err := db.SetAPIKey(acc.ID, "key-3"); err != nil {
		t.Errorf("SetAPIKey: %v", err)
	}
	if err := db.CreditEarnings(acc.ID, decimal.RequireFromString("1.5")); err != nil {
		t.Errorf("CreditEarnings: %v", err)
	}
	if err := db.CreditEarnings(acc.ID, decimal.RequireFromString("0.25")); err != nil {
		t.Errorf("CreditEarnings: %v", err)
	}
	acc, err = db.GetAccount(acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.PayoutAddress != "payout" || acc.APIKey != "key-3" {
		t.Errorf("updates not persisted: %+v", acc)
	}
	if !acc.TotalEarned.Equal(decimal.RequireFromString("1.75")) {
		t.Errorf("wrong TotalEarned: %s", acc.TotalEarned)
	}
}

func TestInvoiceRoundTrip(t *testing.T) {
	db := newTestStore(t)
	acc := newTestAccount(t, db)
	inv := newTestInvoice(t, db, acc.ID, "2")

	if _, err := db.CreateInvoice(inv); !solgate.IsAlreadyExistsError(err) {
		t.Errorf("duplicate invoice_id accepted: %v", err)
	}

	got, err := db.GetInvoice(inv.InvoiceID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Status != solgate.StatusUnpaid || !got.Amount.Equal(inv.Amount) || got.WalletSecret != "secret" {
		t.Errorf("GetInvoice: %+v", got)
	}

	acc, _ = db.GetAccount(acc.ID)
	if acc.PaymentCount != 1 {
		t.Errorf("payment count not bumped: %d", acc.PaymentCount)
	}

	newTestInvoice(t, db, acc.ID, "3")
	items, err := db.ListInvoices(acc.ID, 10, 0)
	if err != nil || len(items) != 2 {
		t.Fatalf("ListInvoices: %d %v", len(items), err)
	}
	if items[0].ID < items[1].ID {
		t.Errorf("ListInvoices not newest-first")
	}
}

func TestAppendPayment(t *testing.T) {
	db := newTestStore(t)
	acc := newTestAccount(t, db)
	inv := newTestInvoice(t, db, acc.ID, "2")

	got, err := db.AppendPayment(inv.InvoiceID, decimal.RequireFromString("1.2"), "sig1")
	if err != nil {
		t.Fatalf("AppendPayment: %v", err)
	}
	if got.Status != solgate.StatusPartial || !got.AmountPaid.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("after first payment: %s %s", got.Status, got.AmountPaid)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt set on a partial invoice")
	}

	// replaying the same signature changes nothing
	got, err = db.AppendPayment(inv.InvoiceID, decimal.RequireFromString("1.2"), "sig1")
	if err != nil {
		t.Fatalf("AppendPayment replay: %v", err)
	}
	if !got.AmountPaid.Equal(decimal.RequireFromString("1.2")) || len(got.TxIDs) != 1 {
		t.Errorf("replay modified the invoice: %s %v", got.AmountPaid, got.TxIDs)
	}

	got, err = db.AppendPayment(inv.InvoiceID, decimal.RequireFromString("0.8"), "sig2")
	if err != nil {
		t.Fatalf("AppendPayment: %v", err)
	}
	if got.Status != solgate.StatusCompleted || !got.AmountPaid.Equal(decimal.RequireFromString("2")) {
		t.Errorf("after second payment: %s %s", got.Status, got.AmountPaid)
	}
	if got.CompletedAt == nil {
		t.Fatalf("CompletedAt not set on completion")
	}
	completedAt := *got.CompletedAt

	// overpayment keeps the invoice completed, CompletedAt untouched
	got, err = db.AppendPayment(inv.InvoiceID, decimal.RequireFromString("0.5"), "sig3")
	if err != nil {
		t.Fatalf("AppendPayment: %v", err)
	}
	if got.Status != solgate.StatusCompleted || !got.AmountPaid.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("after overpayment: %s %s", got.Status, got.AmountPaid)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt changed: %v vs %v", got.CompletedAt, completedAt)
	}
	if len(got.TxIDs) != 3 || got.TxIDs[0] != "sig1" || got.TxIDs[2] != "sig3" {
		t.Errorf("wrong TxIDs: %v", got.TxIDs)
	}

	if _, err := db.AppendPayment("nonesuch", solgate.OneSol, "sig9"); !solgate.IsNotFoundError(err) {
		t.Errorf("AppendPayment on unknown invoice: %v", err)
	}
}

func TestMarkInvoiceSettled(t *testing.T) {
	db := newTestStore(t)
	acc := newTestAccount(t, db)
	inv := newTestInvoice(t, db, acc.ID, "1")
	if _, err := db.AppendPayment(inv.InvoiceID, solgate.OneSol, "sig1"); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkInvoiceSettled(inv.InvoiceID, "settle1"); err != nil {
		t.Fatalf("MarkInvoiceSettled: %v", err)
	}
	got, err := db.GetInvoice(inv.InvoiceID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SettledTxID != "settle1" || got.SettledAt == nil {
		t.Errorf("settlement not recorded: %+v", got)
	}
	if got.WalletSecret != "" {
		t.Errorf("wallet secret not purged")
	}

	// settle-once: a second mark must fail and not overwrite
	err = db.MarkInvoiceSettled(inv.InvoiceID, "settle2")
	if !solgate.IsAlreadyExistsError(err) {
		t.Errorf("second MarkInvoiceSettled: %v", err)
	}
	got, _ = db.GetInvoice(inv.InvoiceID)
	if got.SettledTxID != "settle1" {
		t.Errorf("settled_txid overwritten: %s", got.SettledTxID)
	}

	if err := db.MarkInvoiceSettled("nonesuch", "x"); !solgate.IsNotFoundError(err) {
		t.Errorf("MarkInvoiceSettled on unknown invoice: %v", err)
	}
}

func TestListPendingInvoices(t *testing.T) {
	db := newTestStore(t)
	acc := newTestAccount(t, db)
	unpaid := newTestInvoice(t, db, acc.ID, "1")
	partial := newTestInvoice(t, db, acc.ID, "2")
	stalled := newTestInvoice(t, db, acc.ID, "1")
	settled := newTestInvoice(t, db, acc.ID, "1")

	db.AppendPayment(partial.InvoiceID, decimal.RequireFromString("0.5"), "p1")
	db.AppendPayment(stalled.InvoiceID, solgate.OneSol, "p2")
	db.AppendPayment(settled.InvoiceID, solgate.OneSol, "p3")
	if err := db.MarkInvoiceSettled(settled.InvoiceID, "settle1"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.ListPendingInvoices()
	if err != nil {
		t.Fatalf("ListPendingInvoices: %v", err)
	}
	want := map[string]bool{unpaid.InvoiceID: true, partial.InvoiceID: true, stalled.InvoiceID: true}
	if len(pending) != len(want) {
		t.Fatalf("wrong pending count: %d", len(pending))
	}
	for _, inv := range pending {
		if !want[inv.InvoiceID] {
			t.Errorf("unexpected pending invoice: %s (%s)", inv.InvoiceID, inv.Status)
		}
	}
}
