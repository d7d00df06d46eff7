// Package testutil provides test helpers for working with a real SQLite ledger.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/storage"
)

// TestDB is a migrated ledger in a temporary directory. It is closed when the
// test finishes.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated ledger seeded with transactions.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.Ledger("alice",
//		testutil.Txn("2024-03-01", -4.50, "Corner Cafe"),
//	)...)
func SetupTestDB(t *testing.T, seed ...model.Transaction) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Transactions: seed})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Users          []model.User
	Transactions   []model.Transaction
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	db := &TestDB{Storage: store, t: t}
	ctx := context.Background()

	// Run migrations unless skipped
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for i := range opts.Users {
		db.MustRegisterUser(opts.Users[i])
	}
	for _, txn := range opts.Transactions {
		db.MustAdd(txn)
	}

	// Run custom setup
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// MustAdd inserts txn and returns it with its local ID set.
func (db *TestDB) MustAdd(txn model.Transaction) model.Transaction {
	db.t.Helper()
	if _, err := db.Storage.AddTransaction(context.Background(), &txn); err != nil {
		db.t.Fatalf("failed to add transaction %q: %v", txn.Merchant, err)
	}
	return txn
}

// MustRegisterUser records user locally.
func (db *TestDB) MustRegisterUser(user model.User) {
	db.t.Helper()
	if err := db.Storage.RegisterUser(context.Background(), &user); err != nil {
		db.t.Fatalf("failed to register user %q: %v", user.Username, err)
	}
}

// MustGet reloads the transaction with the given local ID.
func (db *TestDB) MustGet(id int64) *model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %d: %v", id, err)
	}
	return txn
}

// All returns every transaction owned by username.
func (db *TestDB) All(username string) []model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.GetAllTransactions(context.Background(), username)
	if err != nil {
		db.t.Fatalf("failed to list transactions for %q: %v", username, err)
	}
	return txns
}
