package reconcile

import (
	"errors"
	"fmt"
)

// ErrEmptyUsername is returned when an operation is invoked without a user.
var ErrEmptyUsername = errors.New("username cannot be empty")

// Op names a reconciliation operation.
type Op string

// Reconciliation operations.
const (
	OpBackup  Op = "backup"
	OpRestore Op = "restore"
	OpSync    Op = "sync"
)

// Stage names the step at which an operation failed.
type Stage string

// Failure stages.
const (
	StageValidate    Stage = "validate"
	StageLock        Stage = "lock"
	StageReadLocal   Stage = "read-local"
	StageMarkPending Stage = "mark-pending"
	StageCommit      Stage = "commit"
	StagePromote     Stage = "promote"
	StageQueryRemote Stage = "query-remote"
	StageInsertLocal Stage = "insert-local"
	StageCanceled    Stage = "canceled"
)

// SyncError describes a failed backup, restore or sync.
type SyncError struct {
	Err      error
	Op       Op
	Stage    Stage
	Username string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s for %q failed at %s: %v", e.Op, e.Username, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newSyncError(op Op, stage Stage, username string, err error) *SyncError {
	return &SyncError{Op: op, Stage: stage, Username: username, Err: err}
}

// StageOf returns the failure stage of err, or "" when err is not a SyncError.
func StageOf(err error) Stage {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Stage
	}
	return ""
}
