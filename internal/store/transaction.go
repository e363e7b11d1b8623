package store

import (
	"database/sql"
	"errors"
	"time"
)

// Currencies and statuses accepted by the transactions table.
const (
	CurrencySUI  = "SUI"
	CurrencyXRPL = "XRPL"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction records one gift payment attempt.
type Transaction struct {
	ID               string
	Timestamp        time.Time
	Currency         string
	Amount           float64
	Digest           string
	RecipientAddress string
	RecipientEmail   string
	SenderName       string
	ExplorerURL      string
	PersonID         string
	Status           string
	Error            string
}

// TransactionRepository provides access to the transactions table.
type TransactionRepository struct {
	db *sql.DB
}

// Transactions returns the transaction repository for this store.
func (s *Store) Transactions() *TransactionRepository {
	return &TransactionRepository{db: s.db}
}

const transactionColumns = `id, timestamp, currency, amount, digest, recipient_address, recipient_email,
	sender_name, explorer_url, person_id, status, error`

// Create inserts a transaction.
func (r *TransactionRepository) Create(tx *Transaction) error {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Timestamp.UTC(), tx.Currency, tx.Amount, tx.Digest, tx.RecipientAddress, tx.RecipientEmail,
		tx.SenderName, tx.ExplorerURL, tx.PersonID, tx.Status, tx.Error,
	)
	return err
}

// GetByID retrieves a transaction by its ID.
func (r *TransactionRepository) GetByID(id string) (*Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

// Recent returns up to limit transactions, newest first.
func (r *TransactionRepository) Recent(limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(
		`SELECT `+transactionColumns+` FROM transactions ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txs, nil
}

// Totals sums successful amounts per currency. Every known currency is present.
func (r *TransactionRepository) Totals() (map[string]float64, error) {
	totals := map[string]float64{
		CurrencySUI:  0,
		CurrencyXRPL: 0,
	}

	rows, err := r.db.Query(
		`SELECT currency, COALESCE(SUM(amount), 0) FROM transactions
		 WHERE status = ? GROUP BY currency`, StatusSuccess,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var currency string
		var total float64
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, err
		}
		totals[currency] = total
	}

	return totals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	tx := &Transaction{}
	err := row.Scan(&tx.ID, &tx.Timestamp, &tx.Currency, &tx.Amount, &tx.Digest, &tx.RecipientAddress,
		&tx.RecipientEmail, &tx.SenderName, &tx.ExplorerURL, &tx.PersonID, &tx.Status, &tx.Error)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
