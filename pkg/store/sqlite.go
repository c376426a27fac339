package store

import (
	"database/sql"
	"time"

	solgate "github.com/solgatepay/solgate/pkg"

	"github.com/mattn/go-sqlite3"
)

var SETUP_SQL string = `
CREATE TABLE IF NOT EXISTS account (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	api_key TEXT NOT NULL UNIQUE,
	payout_address TEXT NOT NULL DEFAULT '',
	total_earned TEXT NOT NULL DEFAULT '0',
	payment_count INTEGER NOT NULL DEFAULT 0,
	created DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS invoice (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	invoice_id TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL,
	blockchain TEXT NOT NULL,
	coin TEXT NOT NULL,
	amount TEXT NOT NULL,
	amount_paid TEXT NOT NULL DEFAULT '0',
	wallet_address TEXT NOT NULL,
	wallet_secret TEXT NOT NULL,
	status TEXT NOT NULL,
	settled_txid TEXT NOT NULL DEFAULT '',
	created DATETIME NOT NULL,
	completed_at DATETIME,
	settled_at DATETIME,
	FOREIGN KEY (user_id) REFERENCES account (id)
);
CREATE INDEX IF NOT EXISTS invoice_user_i ON invoice (user_id);

CREATE TABLE IF NOT EXISTS payment (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	invoice_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	txid TEXT NOT NULL,
	created DATETIME NOT NULL,
	UNIQUE (invoice_id, txid)
);
`

// interface guard ensures SQLite implements solgate.Store
var _ solgate.Store = SQLite{}

type SQLite struct {
	db *sql.DB
}

// NewSQLite returns a solgate.Store implementor that uses sqlite
func NewSQLite(fileName string) (SQLite, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return SQLite{}, dbErr(err, "opening database")
	}
	// concurrent access comes from the monitor's watcher goroutines
	// and the web API; sqlite only supports one writer.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(SETUP_SQL)
	if err != nil {
		return SQLite{}, dbErr(err, "creating tables")
	}
	return SQLite{db}, nil
}

// Defer this until shutdown
func (s SQLite) Close() {
	s.db.Close()
}

func (s SQLite) CreateAccount(account solgate.Account) (solgate.Account, error) {
	account.Created = time.Now().UTC()
	account.TotalEarned = solgate.ZeroCoins
	res, err := s.db.Exec(
		"INSERT INTO account (email, username, password_hash, api_key, payout_address, created) VALUES (?,?,?,?,?,?)",
		account.Email, account.Username, account.PasswordHash, account.APIKey, account.PayoutAddress, account.Created)
	if err != nil {
		if isConstraintError(err) {
			return solgate.Account{}, solgate.NewErr(solgate.AlreadyExists, "email or username is already registered")
		}
		return solgate.Account{}, dbErr(err, "CreateAccount")
	}
	account.ID, err = res.LastInsertId()
	if err != nil {
		return solgate.Account{}, dbErr(err, "CreateAccount")
	}
	return account, nil
}

const accountCols = "id, email, username, password_hash, api_key, payout_address, total_earned, payment_count, created"

func scanAccount(row *sql.Row) (solgate.Account, error) {
	var acc solgate.Account
	err := row.Scan(&acc.ID, &acc.Email, &acc.Username, &acc.PasswordHash, &acc.APIKey,
		&acc.PayoutAddress, &acc.TotalEarned, &acc.PaymentCount, &acc.Created)
	if err == sql.ErrNoRows {
		return solgate.Account{}, solgate.NewErr(solgate.NotFound, "account not found")
	}
	if err != nil {
		return solgate.Account{}, dbErr(err, "scanning account")
	}
	return acc, nil
}

func (s SQLite) GetAccount(id int64) (solgate.Account, error) {
	return scanAccount(s.db.QueryRow("SELECT "+accountCols+" FROM account WHERE id = ?", id))
}

func (s SQLite) GetAccountByEmail(email string) (solgate.Account, error) {
	return scanAccount(s.db.QueryRow("SELECT "+accountCols+" FROM account WHERE email = ?", email))
}

func (s SQLite) GetAccountByAPIKey(key string) (solgate.Account, error) {
	return scanAccount(s.db.QueryRow("SELECT "+accountCols+" FROM account WHERE api_key = ?", key))
}

func (s SQLite) SetPayoutAddress(id int64, addr solgate.Address) error {
	return s.updateAccount(id, "UPDATE account SET payout_address = ? WHERE id = ?", addr, id)
}

func (s SQLite) SetAPIKey(id int64, key string) error {
	return s.updateAccount(id, "UPDATE account SET api_key = ? WHERE id = ?", key, id)
}

func (s SQLite) updateAccount(id int64, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return dbErr(err, "updating account")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "updating account")
	}
	if count == 0 {
		return solgate.NewErr(solgate.NotFound, "account not found: %v", id)
	}
	return nil
}

func (s SQLite) CreditEarnings(id int64, amount solgate.CoinAmount) error {
	tx, err := s.db.Begin()
	if err != nil {
		return dbErr(err, "CreditEarnings")
	}
	defer tx.Rollback()
	var earned solgate.CoinAmount
	err = tx.QueryRow("SELECT total_earned FROM account WHERE id = ?", id).Scan(&earned)
	if err == sql.ErrNoRows {
		return solgate.NewErr(solgate.NotFound, "account not found: %v", id)
	}
	if err != nil {
		return dbErr(err, "CreditEarnings")
	}
	_, err = tx.Exec("UPDATE account SET total_earned = ? WHERE id = ?", earned.Add(amount), id)
	if err != nil {
		return dbErr(err, "CreditEarnings")
	}
	return tx.Commit()
}

func (s SQLite) CreateInvoice(inv solgate.Invoice) (solgate.Invoice, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "CreateInvoice")
	}
	defer tx.Rollback()
	inv.Created = time.Now().UTC()
	res, err := tx.Exec(
		"INSERT INTO invoice (invoice_id, user_id, blockchain, coin, amount, amount_paid, wallet_address, wallet_secret, status, created) VALUES (?,?,?,?,?,?,?,?,?,?)",
		inv.InvoiceID, inv.UserID, inv.Blockchain, inv.Coin, inv.Amount, inv.AmountPaid,
		inv.WalletAddress, inv.WalletSecret, inv.Status, inv.Created)
	if err != nil {
		if isConstraintError(err) {
			return solgate.Invoice{}, solgate.NewErr(solgate.AlreadyExists, "invoice ID is already in use: %v", inv.InvoiceID)
		}
		return solgate.Invoice{}, dbErr(err, "CreateInvoice")
	}
	inv.ID, err = res.LastInsertId()
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "CreateInvoice")
	}
	_, err = tx.Exec("UPDATE account SET payment_count = payment_count + 1 WHERE id = ?", inv.UserID)
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "CreateInvoice")
	}
	err = tx.Commit()
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "CreateInvoice")
	}
	return inv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryable interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const invoiceCols = "id, invoice_id, user_id, blockchain, coin, amount, amount_paid, wallet_address, wallet_secret, status, settled_txid, created, completed_at, settled_at"

func scanInvoice(row rowScanner) (solgate.Invoice, error) {
	var inv solgate.Invoice
	var completedAt, settledAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.InvoiceID, &inv.UserID, &inv.Blockchain, &inv.Coin,
		&inv.Amount, &inv.AmountPaid, &inv.WalletAddress, &inv.WalletSecret,
		&inv.Status, &inv.SettledTxID, &inv.Created, &completedAt, &settledAt)
	if err == sql.ErrNoRows {
		return solgate.Invoice{}, solgate.NewErr(solgate.NotFound, "invoice not found")
	}
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "scanning invoice")
	}
	if completedAt.Valid {
		inv.CompletedAt = &completedAt.Time
	}
	if settledAt.Valid {
		inv.SettledAt = &settledAt.Time
	}
	return inv, nil
}

func getInvoice(q queryable, invoiceID string) (solgate.Invoice, error) {
	inv, err := scanInvoice(q.QueryRow("SELECT "+invoiceCols+" FROM invoice WHERE invoice_id = ?", invoiceID))
	if err != nil {
		return solgate.Invoice{}, err
	}
	rows, err := q.Query("SELECT txid FROM payment WHERE invoice_id = ? ORDER BY id", invoiceID)
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "listing payments")
	}
	defer rows.Close()
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return solgate.Invoice{}, dbErr(err, "listing payments")
		}
		inv.TxIDs = append(inv.TxIDs, txid)
	}
	if err := rows.Err(); err != nil {
		return solgate.Invoice{}, dbErr(err, "listing payments")
	}
	return inv, nil
}

func (s SQLite) GetInvoice(invoiceID string) (solgate.Invoice, error) {
	return getInvoice(s.db, invoiceID)
}

func (s SQLite) ListInvoices(userID int64, limit int, offset int) ([]solgate.Invoice, error) {
	rows, err := s.db.Query("SELECT "+invoiceCols+" FROM invoice WHERE user_id = ? ORDER BY id DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, dbErr(err, "ListInvoices")
	}
	defer rows.Close()
	var items []solgate.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "ListInvoices")
	}
	return items, nil
}

// ListPendingInvoices finds every invoice that still needs the
// monitor: not yet settled, key material still present. This includes
// completed-but-unsettled invoices, so a settlement interrupted by a
// crash (or given up on) is retried after a restart.
func (s SQLite) ListPendingInvoices() ([]solgate.Invoice, error) {
	rows, err := s.db.Query("SELECT " + invoiceCols + " FROM invoice WHERE settled_txid = '' AND wallet_secret != '' ORDER BY id")
	if err != nil {
		return nil, dbErr(err, "ListPendingInvoices")
	}
	defer rows.Close()
	var items []solgate.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "ListPendingInvoices")
	}
	return items, nil
}

func (s SQLite) AppendPayment(invoiceID string, amount solgate.CoinAmount, txid string) (solgate.Invoice, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "AppendPayment")
	}
	defer tx.Rollback()
	inv, err := getInvoice(tx, invoiceID)
	if err != nil {
		return solgate.Invoice{}, err
	}
	_, err = tx.Exec("INSERT INTO payment (invoice_id, amount, txid, created) VALUES (?,?,?,?)",
		invoiceID, amount, txid, time.Now().UTC())
	if err != nil {
		if isConstraintError(err) {
			// txid already recorded: replay, not an error
			return inv, nil
		}
		return solgate.Invoice{}, dbErr(err, "AppendPayment")
	}

	// amount_paid is always the exact decimal sum of recorded payments
	rows, err := tx.Query("SELECT amount FROM payment WHERE invoice_id = ?", invoiceID)
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "AppendPayment")
	}
	defer rows.Close()
	total := solgate.ZeroCoins
	for rows.Next() {
		var paid solgate.CoinAmount
		if err := rows.Scan(&paid); err != nil {
			return solgate.Invoice{}, dbErr(err, "AppendPayment")
		}
		total = total.Add(paid)
	}
	if err := rows.Err(); err != nil {
		return solgate.Invoice{}, dbErr(err, "AppendPayment")
	}
	rows.Close()

	inv.AmountPaid = total
	inv.Status = solgate.StatusFor(total, inv.Amount)
	inv.TxIDs = append(inv.TxIDs, txid)
	if inv.Status == solgate.StatusCompleted && inv.CompletedAt == nil {
		now := time.Now().UTC()
		inv.CompletedAt = &now
	}
	_, err = tx.Exec("UPDATE invoice SET amount_paid = ?, status = ?, completed_at = ? WHERE invoice_id = ?",
		inv.AmountPaid, inv.Status, inv.CompletedAt, invoiceID)
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "AppendPayment")
	}
	err = tx.Commit()
	if err != nil {
		return solgate.Invoice{}, dbErr(err, "AppendPayment")
	}
	return inv, nil
}

// MarkInvoiceSettled records the settlement signature exactly once
// and purges the stored wallet secret in the same statement.
func (s SQLite) MarkInvoiceSettled(invoiceID string, txid string) error {
	res, err := s.db.Exec(
		"UPDATE invoice SET settled_txid = ?, settled_at = ?, wallet_secret = '' WHERE invoice_id = ? AND settled_txid = ''",
		txid, time.Now().UTC(), invoiceID)
	if err != nil {
		return dbErr(err, "MarkInvoiceSettled")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "MarkInvoiceSettled")
	}
	if count == 0 {
		_, err := s.GetInvoice(invoiceID)
		if err != nil {
			return err // not found
		}
		return solgate.NewErr(solgate.AlreadyExists, "invoice is already settled: %v", invoiceID)
	}
	return nil
}

func isConstraintError(err error) bool {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func dbErr(err error, where string) error {
	return solgate.NewErr(solgate.UnknownError, "database error (%s): %v", where, err)
}
