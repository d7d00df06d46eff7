// Package model defines the core domain models used throughout the application.
package model

// DateLayout is the sortable calendar date format of Transaction.Date.
const DateLayout = "2006-01-02"

// Transaction is one financial transaction owned by one user.
//
// A transaction is synced iff FirestoreID is non-empty. PendingFirestoreID is
// a local marker holding an identifier allocated for a remote write that has
// not been confirmed yet.
type Transaction struct {
	Date               string  `json:"date" validate:"required"`
	Merchant           string  `json:"merchant" validate:"required"`
	Category           string  `json:"category"`
	Username           string  `json:"username" validate:"required"`
	FirestoreID        string  `json:"firestoreId,omitempty"`
	PendingFirestoreID string  `json:"-"`
	SyncedAt           string  `json:"syncedAt,omitempty"`
	Amount             float64 `json:"amount"`
	ID                 int64   `json:"id"`
}

// IsSynced reports whether the transaction has been mirrored remotely.
func (t *Transaction) IsSynced() bool {
	return t.FirestoreID != ""
}

// SameContent reports whether two transactions share date, amount and merchant.
// Identifiers are not consulted.
func (t *Transaction) SameContent(other *Transaction) bool {
	return t.Date == other.Date &&
		t.Amount == other.Amount &&
		t.Merchant == other.Merchant
}
