package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

const transactionColumns = `id, date, amount, merchant, category, username,
	firestore_id, pending_firestore_id, synced_at`

// GetAllTransactions returns the records owned by username in insertion order.
// An empty username returns every record ordered by date.
func (s *SQLiteStorage) GetAllTransactions(ctx context.Context, username string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var args []any
	if username != "" {
		query += ` WHERE username = ? ORDER BY id ASC`
		args = append(args, username)
	} else {
		query += ` ORDER BY date ASC, id ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// GetTransaction returns a single record by local identifier.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return txn, err
}

// AddTransaction inserts a record and returns its local identifier.
// A non-zero ID is used as given; otherwise one is assigned.
func (s *SQLiteStorage) AddTransaction(ctx context.Context, txn *model.Transaction) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransaction(txn); err != nil {
		return 0, err
	}

	var idArg any
	if txn.ID != 0 {
		idArg = txn.ID
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idArg,
		txn.Date,
		txn.Amount,
		txn.Merchant,
		txn.Category,
		txn.Username,
		nullString(txn.FirestoreID),
		nullString(txn.PendingFirestoreID),
		nullString(txn.SyncedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return 0, fmt.Errorf("transaction %d: %w", txn.ID, common.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	txn.ID = id
	return id, nil
}

// UpdateTransaction upserts a record by its local identifier.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, txn *model.Transaction) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransaction(txn); err != nil {
		return 0, err
	}
	if txn.ID == 0 {
		return 0, ErrMissingID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			amount = excluded.amount,
			merchant = excluded.merchant,
			category = excluded.category,
			username = excluded.username,
			firestore_id = excluded.firestore_id,
			pending_firestore_id = excluded.pending_firestore_id,
			synced_at = excluded.synced_at`,
		txn.ID,
		txn.Date,
		txn.Amount,
		txn.Merchant,
		txn.Category,
		txn.Username,
		nullString(txn.FirestoreID),
		nullString(txn.PendingFirestoreID),
		nullString(txn.SyncedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update transaction %d: %w", txn.ID, err)
	}

	return txn.ID, nil
}

// DeleteTransaction removes a record by local identifier.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// TransactionStats counts synced and unsynced records for a user.
type TransactionStats struct {
	Total    int
	Synced   int
	Pending  int
	Unsynced int
}

// GetTransactionStats summarizes the sync state of a user's records.
func (s *SQLiteStorage) GetTransactionStats(ctx context.Context, username string) (TransactionStats, error) {
	var stats TransactionStats
	if err := validateContext(ctx); err != nil {
		return stats, err
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN firestore_id IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN firestore_id IS NULL AND pending_firestore_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM transactions WHERE username = ?`, username).Scan(&stats.Total, &stats.Synced, &stats.Pending)
	if err != nil {
		return stats, fmt.Errorf("failed to count transactions: %w", err)
	}
	stats.Unsynced = stats.Total - stats.Synced
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var firestoreID, pendingID, syncedAt sql.NullString

	err := row.Scan(
		&txn.ID,
		&txn.Date,
		&txn.Amount,
		&txn.Merchant,
		&txn.Category,
		&txn.Username,
		&firestoreID,
		&pendingID,
		&syncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.FirestoreID = firestoreID.String
	txn.PendingFirestoreID = pendingID.String
	txn.SyncedAt = syncedAt.String
	return &txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
