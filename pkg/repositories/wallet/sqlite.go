package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/google/uuid"
)

// timestampFormat is fixed width so that string order matches time order
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	insertWalletSQL = `
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`

	selectWalletSQL = `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = ?`

	selectDedupeSQL = `SELECT 1 FROM transactions WHERE user_id = ? AND dedupe_key = ?`

	selectLastTimestampSQL = `SELECT ts FROM transactions WHERE user_id = ? ORDER BY ts DESC, seq DESC LIMIT 1`

	updateBalanceSQL = `
		UPDATE wallets
		SET balance = balance + ?,
			updated_at = ?
		WHERE user_id = ?
	`

	insertTransactionSQL = `
		INSERT INTO transactions (
			id, user_id, amount, reason, dedupe_key, ts, balance_after
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, dedupe_key) DO NOTHING
	`

	selectTransactionsSQL = `
		SELECT seq, id, user_id, amount, reason, dedupe_key, ts, balance_after
		FROM transactions
		WHERE user_id = ?
		ORDER BY ts DESC, seq DESC
		LIMIT ?
	`
)

// SQLiteRepository implements Repository on an embedded SQLite database.
// The database must be opened with immediate transactions (see db.DSN) so
// that concurrent credits serialize before their dedupe check.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an opened, migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: time.Now,
	}
}

// EnsureWallet creates an empty wallet for the user if none exists
func (r *SQLiteRepository) EnsureWallet(ctx context.Context, userID string) error {
	ts := formatTimestamp(r.now())
	if _, err := r.db.ExecContext(ctx, insertWalletSQL, userID, ts, ts); err != nil {
		return fmt.Errorf("error ensuring wallet: %w", err)
	}
	return nil
}

// GetWallet retrieves a wallet by user ID
func (r *SQLiteRepository) GetWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	var wallet entities.Wallet
	var updatedAt string

	err := r.db.QueryRowContext(ctx, selectWalletSQL, userID).Scan(
		&wallet.UserID,
		&wallet.Balance,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}

	if wallet.LastUpdated, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &wallet, nil
}

// Credit applies a credit inside a single immediate transaction
func (r *SQLiteRepository) Credit(ctx context.Context, credit entities.Credit) (*entities.Transaction, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("error beginning credit: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()

	if _, err := tx.ExecContext(ctx, insertWalletSQL, credit.UserID, formatTimestamp(now), formatTimestamp(now)); err != nil {
		return nil, false, fmt.Errorf("error ensuring wallet: %w", err)
	}

	dedupeKey := sql.NullString{String: credit.DedupeKey, Valid: credit.HasDedupeKey()}
	if dedupeKey.Valid {
		var seen int
		err := tx.QueryRowContext(ctx, selectDedupeSQL, credit.UserID, credit.DedupeKey).Scan(&seen)
		if err == nil {
			return nil, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("error checking dedupe key: %w", err)
		}
	}

	// Keep the user's history non-decreasing even if the clock steps back
	var last string
	err = tx.QueryRowContext(ctx, selectLastTimestampSQL, credit.UserID).Scan(&last)
	switch {
	case err == nil:
		lastTs, parseErr := parseTimestamp(last)
		if parseErr != nil {
			return nil, false, parseErr
		}
		if now.Before(lastTs) {
			now = lastTs
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("error reading last transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, updateBalanceSQL, credit.Amount, formatTimestamp(now), credit.UserID); err != nil {
		return nil, false, fmt.Errorf("error updating balance: %w", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, credit.UserID).Scan(&balance); err != nil {
		return nil, false, fmt.Errorf("error reading balance: %w", err)
	}

	transaction := &entities.Transaction{
		ID:           uuid.New().String(),
		UserID:       credit.UserID,
		Amount:       credit.Amount,
		Reason:       credit.Reason,
		DedupeKey:    credit.DedupeKey,
		Timestamp:    now,
		BalanceAfter: balance,
	}

	result, err := tx.ExecContext(ctx, insertTransactionSQL,
		transaction.ID,
		transaction.UserID,
		transaction.Amount,
		transaction.Reason,
		dedupeKey,
		formatTimestamp(transaction.Timestamp),
		transaction.BalanceAfter,
	)
	if err != nil {
		return nil, false, fmt.Errorf("error adding transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// The unique index caught a duplicate; rolling back undoes the balance change
		return nil, false, nil
	}

	if transaction.Seq, err = result.LastInsertId(); err != nil {
		return nil, false, fmt.Errorf("error getting transaction sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("error committing credit: %w", err)
	}

	return transaction, true, nil
}

// GetTransactions retrieves recent transactions for a user, newest first
func (r *SQLiteRepository) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	if limit <= 0 {
		return []*entities.Transaction{}, nil
	}

	rows, err := r.db.QueryContext(ctx, selectTransactionsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*entities.Transaction, 0, limit)

	for rows.Next() {
		var tx entities.Transaction
		var dedupeKey sql.NullString
		var timestamp string

		err := rows.Scan(
			&tx.Seq,
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Reason,
			&dedupeKey,
			&timestamp,
			&tx.BalanceAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction row: %w", err)
		}

		tx.DedupeKey = dedupeKey.String
		if tx.Timestamp, err = parseTimestamp(timestamp); err != nil {
			return nil, err
		}

		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// parseTimestamp accepts our own format plus the ones SQLite defaults produce
func parseTimestamp(value string) (time.Time, error) {
	formats := []string{
		timestampFormat,
		time.RFC3339Nano,
		"2006-01-02 15:04:05", // SQLite CURRENT_TIMESTAMP
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t, nil
		}
		parseErr = err
	}

	return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", value, parseErr)
}
