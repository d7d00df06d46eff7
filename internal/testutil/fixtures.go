package testutil

import "github.com/Veraticus/tally/internal/model"

// Txn builds an unsynced transaction with no owner. Use Ledger to assign one.
func Txn(date string, amount float64, merchant string) model.Transaction {
	return model.Transaction{
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
	}
}

// Ledger assigns username to every transaction.
func Ledger(username string, txns ...model.Transaction) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	for i, txn := range txns {
		txn.Username = username
		out[i] = txn
	}
	return out
}

// Common fixtures.
var (
	CoffeeRun = model.Transaction{Date: "2024-03-01", Amount: -4.50, Merchant: "Corner Cafe", Category: "Food"}
	Groceries = model.Transaction{Date: "2024-03-02", Amount: -82.13, Merchant: "Whole Foods", Category: "Groceries"}
	Paycheck  = model.Transaction{Date: "2024-03-15", Amount: 2500, Merchant: "Payroll", Category: "Income"}
)
