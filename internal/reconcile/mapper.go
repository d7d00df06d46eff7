package reconcile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Remote document field names.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldMerchant    = "merchant"
	FieldCategory    = "category"
	FieldUsername    = "username"
	FieldFirestoreID = "firestoreId"
	FieldUserID      = "userId"
	FieldSyncedAt    = "syncedAt"
)

// toDocument builds the remote representation of a local record.
func toDocument(txn *model.Transaction, firestoreID, username, syncedAt string) map[string]any {
	return map[string]any{
		FieldDate:        txn.Date,
		FieldAmount:      txn.Amount,
		FieldMerchant:    txn.Merchant,
		FieldCategory:    txn.Category,
		FieldUsername:    username,
		FieldFirestoreID: firestoreID,
		FieldUserID:      username,
		FieldSyncedAt:    syncedAt,
	}
}

// fromDocument builds a local record from a remote document. The remote
// bookkeeping fields are dropped and ownership is set to username. It reports
// false when the amount is missing or not a finite number.
func fromDocument(doc service.Document, username string) (model.Transaction, bool) {
	amount, ok := numberField(doc.Data, FieldAmount)
	return model.Transaction{
		Date:        stringField(doc.Data, FieldDate),
		Amount:      amount,
		Merchant:    stringField(doc.Data, FieldMerchant),
		Category:    stringField(doc.Data, FieldCategory),
		Username:    username,
		FirestoreID: doc.ID,
	}, ok
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func numberField(data map[string]any, key string) (float64, bool) {
	var f float64
	switch v := data[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
