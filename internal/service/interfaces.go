// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/tally/internal/model"
)

// Remote collection names.
const (
	TransactionsCollection = "transactions"
	UsersCollection        = "users"
)

// LocalStore defines the contract for the local ledger database.
type LocalStore interface {
	// Transaction operations
	GetAllTransactions(ctx context.Context, username string) ([]model.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	AddTransaction(ctx context.Context, txn *model.Transaction) (int64, error)
	UpdateTransaction(ctx context.Context, txn *model.Transaction) (int64, error)
	DeleteTransaction(ctx context.Context, id int64) error

	// User operations
	FindUser(ctx context.Context, username string) (*model.User, error)
	RegisterUser(ctx context.Context, user *model.User) error
	GetAllUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, username string) error

	// Persisted sign-in
	SaveCredential(ctx context.Context, cred *model.Credential) error
	LoadCredential(ctx context.Context) (*model.Credential, error)
	ClearCredential(ctx context.Context) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Document is one remote document: its identifier and field values.
type Document struct {
	Data map[string]any
	ID   string
}

// RemoteStore defines the contract for the cloud document database.
type RemoteStore interface {
	NewDocumentID(collection string) string
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	QueryEqual(ctx context.Context, collection, field string, value any) ([]Document, error)
	NewBatch() WriteBatch
	Close() error
}

// WriteBatch accumulates writes that are committed atomically.
type WriteBatch interface {
	Set(collection, id string, data map[string]any, merge bool)
	Len() int
	Commit(ctx context.Context) error
}
