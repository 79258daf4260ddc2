package lock

import "storemy/pkg/dberror"

// Abort reason codes. These are the Code field of the *dberror.DBError
// returned when a lock request forces a transaction to abort; callers
// distinguish them with errors.As plus a Code comparison, or simply
// err.(*dberror.DBError).Code.
const (
	CodeLockOnShrinking             = "LOCK_ON_SHRINKING"
	CodeLockSharedOnReadUncommitted = "LOCKSHARED_ON_READ_UNCOMMITTED"
	CodeUpgradeConflict             = "UPGRADE_CONFLICT"
	CodeDeadlock                    = "DEADLOCK"
	CodeAlreadyAborted              = "ALREADY_ABORTED"
)

func errLockOnShrinking(op string) *dberror.DBError {
	return dberror.New(dberror.ErrCategoryConcurrency, CodeLockOnShrinking,
		"cannot acquire a new lock while in the shrinking phase").
		WithContext(op, "LockManager")
}

func errLockSharedOnReadUncommitted(op string) *dberror.DBError {
	return dberror.New(dberror.ErrCategoryConcurrency, CodeLockSharedOnReadUncommitted,
		"READ_UNCOMMITTED transactions never take shared locks").
		WithContext(op, "LockManager")
}

func errUpgradeConflict(op string) *dberror.DBError {
	return dberror.New(dberror.ErrCategoryConcurrency, CodeUpgradeConflict,
		"another transaction is already upgrading its lock on this resource").
		WithContext(op, "LockManager")
}

func errDeadlock(op string) *dberror.DBError {
	return dberror.New(dberror.ErrCategoryConcurrency, CodeDeadlock,
		"transaction was wounded by an older transaction and must abort").
		WithContext(op, "LockManager")
}

// errAlreadyAborted is returned when a lock is requested by a transaction
// that was aborted before this call ever queued a request — a recoverable
// no-op for the caller, distinct from errDeadlock, which reports a
// transaction being wounded while it waits.
func errAlreadyAborted(op string) *dberror.DBError {
	return dberror.New(dberror.ErrCategoryTransient, CodeAlreadyAborted,
		"transaction is already aborted; lock request is a no-op").
		WithContext(op, "LockManager")
}
