// Package reconcile mirrors a user's local ledger to the remote document store
// and restores remote records that are missing locally.
//
// Backup pushes local records to the remote transactions collection. Records
// that have never been mirrored get a remote identifier; the identifier is
// recorded locally as pending before the remote commit and promoted to
// FirestoreID only after the commit succeeds, so a retried backup rewrites the
// same remote document.
//
// Restore pulls remote records for a user and inserts those that are not
// already present locally. Presence is decided by content (date, amount and
// merchant), not by remote identifier, so records captured locally before
// their first backup are still recognized. Two distinct transactions with the
// same date, amount and merchant are indistinguishable to this check.
//
// All operations for the same username are serialized.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// MaxBatchWrites is the Firestore limit on writes per commit.
const MaxBatchWrites = 500

// syncedAtLayout matches the millisecond ISO-8601 form used for syncedAt.
const syncedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Progress receives per-record progress from long running operations.
type Progress interface {
	Begin(op Op, total int)
	Step()
	End()
}

type noopProgress struct{}

func (noopProgress) Begin(Op, int) {}
func (noopProgress) Step()         {}
func (noopProgress) End()          {}

// BackupResult counts the remote writes of a backup.
type BackupResult struct {
	Created int
	Updated int
}

// RestoreResult counts the outcome of a restore.
type RestoreResult struct {
	Inserted int
	Skipped  int
	Invalid  int
}

// SyncResult combines the restore and backup halves of a sync.
type SyncResult struct {
	Restore RestoreResult
	Backup  BackupResult
}

// Reconciler runs backup, restore and sync between a local and a remote store.
type Reconciler struct {
	local      service.LocalStore
	remote     service.RemoteStore
	progress   Progress
	now        func() time.Time
	locks      *userLocks
	collection string
	batchSize  int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock used for syncedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithBatchSize sets the number of writes per remote commit, capped at MaxBatchWrites.
func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 && n <= MaxBatchWrites {
			r.batchSize = n
		}
	}
}

// WithCollection overrides the remote transactions collection.
func WithCollection(name string) Option {
	return func(r *Reconciler) {
		if name != "" {
			r.collection = name
		}
	}
}

// WithProgress attaches a progress reporter.
func WithProgress(p Progress) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.progress = p
		}
	}
}

// New creates a Reconciler.
func New(local service.LocalStore, remote service.RemoteStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		local:      local,
		remote:     remote,
		progress:   noopProgress{},
		now:        time.Now,
		locks:      newUserLocks(),
		collection: service.TransactionsCollection,
		batchSize:  MaxBatchWrites,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backup mirrors every local record of username to the remote store.
func (r *Reconciler) Backup(ctx context.Context, username string) (BackupResult, error) {
	if username == "" {
		return BackupResult{}, newSyncError(OpBackup, StageValidate, username, ErrEmptyUsername)
	}

	release, err := r.locks.acquire(ctx, username)
	if err != nil {
		return BackupResult{}, newSyncError(OpBackup, StageLock, username, err)
	}
	defer release()

	return r.backup(ctx, username)
}

// Restore inserts remote records of username that are not present locally.
func (r *Reconciler) Restore(ctx context.Context, username string) (RestoreResult, error) {
	if username == "" {
		return RestoreResult{}, newSyncError(OpRestore, StageValidate, username, ErrEmptyUsername)
	}

	release, err := r.locks.acquire(ctx, username)
	if err != nil {
		return RestoreResult{}, newSyncError(OpRestore, StageLock, username, err)
	}
	defer release()

	return r.restore(ctx, username)
}

// Sync runs Restore then Backup for username. A failed restore does not
// prevent the backup; both errors are returned joined.
func (r *Reconciler) Sync(ctx context.Context, username string) (SyncResult, error) {
	var result SyncResult
	if username == "" {
		return result, newSyncError(OpSync, StageValidate, username, ErrEmptyUsername)
	}

	release, err := r.locks.acquire(ctx, username)
	if err != nil {
		return result, newSyncError(OpSync, StageLock, username, err)
	}
	defer release()

	slog.Info("Starting sync", "username", username)

	restoreResult, restoreErr := r.restore(ctx, username)
	result.Restore = restoreResult
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.Join(restoreErr, newSyncError(OpSync, StageCanceled, username, ctxErr))
	}

	backupResult, backupErr := r.backup(ctx, username)
	result.Backup = backupResult

	if err := errors.Join(restoreErr, backupErr); err != nil {
		return result, err
	}

	slog.Info("Sync complete",
		"username", username,
		"inserted", result.Restore.Inserted,
		"skipped", result.Restore.Skipped,
		"created", result.Backup.Created,
		"updated", result.Backup.Updated)
	return result, nil
}

// IsDuplicate reports whether candidate matches an existing local record of
// username by date, amount and merchant. An empty username checks all records.
func (r *Reconciler) IsDuplicate(ctx context.Context, candidate *model.Transaction, username string) (bool, error) {
	existing, err := r.local.GetAllTransactions(ctx, username)
	if err != nil {
		return false, err
	}
	return IsDuplicate(candidate, existing), nil
}

// IsDuplicate reports whether any record in existing has the same date,
// amount and merchant as candidate. Remote identifiers are not consulted.
func IsDuplicate(candidate *model.Transaction, existing []model.Transaction) bool {
	for i := range existing {
		if existing[i].SameContent(candidate) {
			return true
		}
	}
	return false
}

func (r *Reconciler) backup(ctx context.Context, username string) (BackupResult, error) {
	var result BackupResult

	records, err := r.local.GetAllTransactions(ctx, username)
	if err != nil {
		return result, newSyncError(OpBackup, StageReadLocal, username, err)
	}
	if len(records) == 0 {
		slog.Debug("Nothing to back up", "username", username)
		return result, nil
	}

	syncedAt := r.now().UTC().Format(syncedAtLayout)

	r.progress.Begin(OpBackup, len(records))
	defer r.progress.End()

	for start := 0; start < len(records); start += r.batchSize {
		end := min(start+r.batchSize, len(records))
		chunk := records[start:end]

		created, updated, chunkErr := r.backupChunk(ctx, username, chunk, syncedAt)
		result.Created += created
		result.Updated += updated
		if chunkErr != nil {
			return result, chunkErr
		}
	}

	slog.Debug("Backup complete",
		"username", username,
		"created", result.Created,
		"updated", result.Updated)
	return result, nil
}

// backupChunk commits one remote batch and then promotes the pending
// identifiers of the records it created.
func (r *Reconciler) backupChunk(ctx context.Context, username string, chunk []model.Transaction, syncedAt string) (int, int, error) {
	batch := r.remote.NewBatch()
	var fresh, mirrored []*model.Transaction

	for i := range chunk {
		txn := &chunk[i]

		if txn.IsSynced() {
			batch.Set(r.collection, txn.FirestoreID, toDocument(txn, txn.FirestoreID, username, syncedAt), true)
			mirrored = append(mirrored, txn)
			continue
		}

		if txn.PendingFirestoreID == "" {
			txn.PendingFirestoreID = r.remote.NewDocumentID(r.collection)
			if _, err := r.local.UpdateTransaction(ctx, txn); err != nil {
				return 0, 0, newSyncError(OpBackup, StageMarkPending, username, err)
			}
		}

		batch.Set(r.collection, txn.PendingFirestoreID, toDocument(txn, txn.PendingFirestoreID, username, syncedAt), true)
		fresh = append(fresh, txn)
	}

	if err := batch.Commit(ctx); err != nil {
		return 0, 0, newSyncError(OpBackup, StageCommit, username, err)
	}

	for _, txn := range fresh {
		txn.FirestoreID = txn.PendingFirestoreID
		txn.PendingFirestoreID = ""
		txn.SyncedAt = syncedAt
		if _, err := r.local.UpdateTransaction(ctx, txn); err != nil {
			return len(fresh), len(mirrored), newSyncError(OpBackup, StagePromote, username, err)
		}
	}

	// SyncedAt tracks the latest mirror, so rewritten records move forward too.
	for _, txn := range mirrored {
		txn.SyncedAt = syncedAt
		if _, err := r.local.UpdateTransaction(ctx, txn); err != nil {
			return len(fresh), len(mirrored), newSyncError(OpBackup, StagePromote, username, err)
		}
	}

	for range chunk {
		r.progress.Step()
	}
	return len(fresh), len(mirrored), nil
}

func (r *Reconciler) restore(ctx context.Context, username string) (RestoreResult, error) {
	var result RestoreResult

	docs, err := r.remote.QueryEqual(ctx, r.collection, FieldUserID, username)
	if err != nil {
		return result, newSyncError(OpRestore, StageQueryRemote, username, err)
	}
	if len(docs) == 0 {
		return result, nil
	}

	existing, err := r.local.GetAllTransactions(ctx, username)
	if err != nil {
		return result, newSyncError(OpRestore, StageReadLocal, username, err)
	}

	r.progress.Begin(OpRestore, len(docs))
	defer r.progress.End()

	for _, doc := range docs {
		candidate, amountOK := fromDocument(doc, username)

		switch {
		case !amountOK || candidate.Validate() != nil:
			slog.Warn("Skipping malformed remote transaction",
				"username", username,
				"firestore_id", doc.ID)
			result.Invalid++
		case IsDuplicate(&candidate, existing):
			result.Skipped++
		default:
			if _, err := r.local.AddTransaction(ctx, &candidate); err != nil {
				return result, newSyncError(OpRestore, StageInsertLocal, username, err)
			}
			existing = append(existing, candidate)
			result.Inserted++
		}
		r.progress.Step()
	}

	slog.Debug("Restore complete",
		"username", username,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"invalid", result.Invalid)
	return result, nil
}
