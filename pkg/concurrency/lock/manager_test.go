package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/dberror"
)

func newHarness() (*transaction.Manager, *Manager) {
	txns := transaction.NewManager()
	return txns, NewManager(txns)
}

func TestSharedLocksAreMutuallyCompatible(t *testing.T) {
	txns, lm := newHarness()
	t1 := txns.Begin(transaction.RepeatableRead)
	t2 := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.LockShared(t2, rid))
	require.True(t, t1.IsSharedLocked(rid))
	require.True(t, t2.IsSharedLocked(rid))
}

func TestExclusiveLockIsMutuallyExclusive(t *testing.T) {
	txns, lm := newHarness()
	older := txns.Begin(transaction.RepeatableRead) // smaller ID, older
	younger := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockExclusive(older, rid))

	done := make(chan error, 1)
	go func() { done <- lm.LockExclusive(younger, rid) }()

	select {
	case <-done:
		t.Fatal("younger transaction should have blocked behind the older holder")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lm.Unlock(older, rid))
	require.NoError(t, <-done)
	require.True(t, younger.IsExclusiveLocked(rid))
}

func TestYoungerTransactionWoundsOlderNever(t *testing.T) {
	txns, lm := newHarness()
	older := txns.Begin(transaction.RepeatableRead)
	younger := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockExclusive(younger, rid))

	err := make(chan error, 1)
	go func() { err <- lm.LockExclusive(older, rid) }()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, transaction.Aborted, younger.State(), "older requester wounds the younger holder")

	require.NoError(t, lm.Unlock(younger, rid))
	require.NoError(t, <-err)
}

func TestOlderTransactionWoundsYoungerHolder(t *testing.T) {
	txns, lm := newHarness()
	older := txns.Begin(transaction.RepeatableRead)
	younger := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockShared(younger, rid))

	errCh := make(chan error, 1)
	go func() { errCh <- lm.LockExclusive(older, rid) }()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, transaction.Aborted, younger.State())

	require.NoError(t, <-errCh)
	require.True(t, older.IsExclusiveLocked(rid))
}

func TestLockSharedRejectedUnderReadUncommitted(t *testing.T) {
	txns, lm := newHarness()
	txn := txns.Begin(transaction.ReadUncommitted)
	rid := RID{PageID: 1, Slot: 0}

	err := lm.LockShared(txn, rid)
	require.Error(t, err)
	dbErr, ok := err.(*dberror.DBError)
	require.True(t, ok)
	require.Equal(t, CodeLockSharedOnReadUncommitted, dbErr.Code)
	require.Equal(t, transaction.Aborted, txn.State())
}

func TestLockOnShrinkingIsRejected(t *testing.T) {
	txns, lm := newHarness()
	txn := txns.Begin(transaction.RepeatableRead)
	a := RID{PageID: 1, Slot: 0}
	b := RID{PageID: 2, Slot: 0}

	require.NoError(t, lm.LockShared(txn, a))
	require.NoError(t, lm.Unlock(txn, a))
	require.Equal(t, transaction.Shrinking, txn.State())

	err := lm.LockShared(txn, b)
	require.Error(t, err)
	dbErr := err.(*dberror.DBError)
	require.Equal(t, CodeLockOnShrinking, dbErr.Code)
}

func TestReadCommittedSharedReleaseStaysGrowing(t *testing.T) {
	txns, lm := newHarness()
	txn := txns.Begin(transaction.ReadCommitted)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockShared(txn, rid))
	require.NoError(t, lm.Unlock(txn, rid))
	require.Equal(t, transaction.Growing, txn.State())
}

func TestUpgradeConflictWhenTwoTransactionsUpgrade(t *testing.T) {
	txns, lm := newHarness()
	t1 := txns.Begin(transaction.RepeatableRead)
	t2 := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.LockShared(t2, rid))

	// The younger t2 upgrades first and waits behind t1's shared lock (an
	// older holder is never wounded). Had the older t1 gone first, it would
	// have wounded t2, whose upgrade would then report ALREADY_ABORTED.
	done := make(chan error, 1)
	go func() { done <- lm.LockUpgrade(t2, rid) }()
	time.Sleep(20 * time.Millisecond)

	err := lm.LockUpgrade(t1, rid)
	require.Error(t, err)
	require.Equal(t, CodeUpgradeConflict, err.(*dberror.DBError).Code)

	require.NoError(t, lm.Unlock(t1, rid))
	require.NoError(t, <-done)
	require.True(t, t2.IsExclusiveLocked(rid))
}

func TestLockRequestOnAlreadyAbortedTransactionIsRecoverable(t *testing.T) {
	txns, lm := newHarness()
	txn := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}
	txn.SetState(transaction.Aborted)

	err := lm.LockShared(txn, rid)
	require.Error(t, err)
	dbErr, ok := err.(*dberror.DBError)
	require.True(t, ok)
	require.Equal(t, CodeAlreadyAborted, dbErr.Code)
	require.Equal(t, dberror.ErrCategoryTransient, dbErr.Category, "a pre-aborted request is a no-op, not a fresh typed abort")

	err = lm.LockExclusive(txn, rid)
	require.Equal(t, CodeAlreadyAborted, err.(*dberror.DBError).Code)

	err = lm.LockUpgrade(txn, rid)
	require.Equal(t, CodeAlreadyAborted, err.(*dberror.DBError).Code)

	require.Equal(t, 0, lm.Stats().ActiveQueues, "no request was ever queued for the aborted transaction")
}

func TestUpgradeDoesNotDoubleCountGrantedStats(t *testing.T) {
	txns, lm := newHarness()
	txn := txns.Begin(transaction.RepeatableRead)
	rid := RID{PageID: 1, Slot: 0}

	require.NoError(t, lm.LockShared(txn, rid))
	require.Equal(t, 1, lm.Stats().GrantedLocks)

	require.NoError(t, lm.LockUpgrade(txn, rid))
	require.Equal(t, 1, lm.Stats().GrantedLocks, "upgrading shared->exclusive replaces one grant, not two")
}

func TestUnlockAllReleasesEverything(t *testing.T) {
	txns, lm := newHarness()
	txn := txns.Begin(transaction.RepeatableRead)
	a := RID{PageID: 1, Slot: 0}
	b := RID{PageID: 2, Slot: 0}

	require.NoError(t, lm.LockShared(txn, a))
	require.NoError(t, lm.LockExclusive(txn, b))

	lm.UnlockAll(txn)

	require.False(t, txn.IsSharedLocked(a))
	require.False(t, txn.IsExclusiveLocked(b))
	require.Equal(t, 0, lm.Stats().ActiveQueues)
}
