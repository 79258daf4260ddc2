package lock

import (
	"sync"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/dberror"
	"storemy/pkg/logging"
)

var log = logging.WithComponent("LockManager")

// Manager implements wound-wait two-phase locking over resources identified
// by RID. Every queue it owns shares a single mutex, so only one goroutine
// is ever inspecting lock state at a time — condition variables, not
// polling with backoff, are what let blocked callers sleep without spinning
// (spec.md §4.2).
type Manager struct {
	mu    sync.Mutex
	txns  *transaction.Manager
	queue map[RID]*requestQueue

	grantedTotal int
}

// NewManager constructs a lock manager bound to the given transaction table,
// which it consults during wound-wait to abort a victim transaction.
func NewManager(txns *transaction.Manager) *Manager {
	return &Manager{
		txns:  txns,
		queue: make(map[RID]*requestQueue),
	}
}

// Stats is a point-in-time snapshot used for observability parity with the
// teacher's transaction statistics (spec.md has no requirement for this; it
// is a supplemented feature, see DESIGN.md).
type Stats struct {
	ActiveQueues int
	GrantedLocks int
}

// Stats returns a snapshot of the manager's current load.
func (lm *Manager) Stats() Stats {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return Stats{ActiveQueues: len(lm.queue), GrantedLocks: lm.grantedTotal}
}

// LockShared acquires a shared lock on rid for txn, blocking until it is
// granted or the transaction is wounded by an older one.
func (lm *Manager) LockShared(txn *transaction.Transaction, rid RID) error {
	const op = "LockManager.LockShared"

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == transaction.Aborted {
		return errAlreadyAborted(op)
	}
	if txn.IsolationLevel() == transaction.ReadUncommitted {
		return lm.abortLocked(txn, errLockSharedOnReadUncommitted(op))
	}
	if txn.State() == transaction.Shrinking {
		return lm.abortLocked(txn, errLockOnShrinking(op))
	}
	if txn.IsSharedLocked(rid) || txn.IsExclusiveLocked(rid) {
		return nil
	}

	q := lm.queueFor(rid)
	req := &request{txnID: txn.ID(), mode: SharedLock, valid: true}
	q.requests = append(q.requests, req)

	if err := lm.waitForGrant(txn, q, req, op); err != nil {
		return err
	}

	txn.GrantShared(rid)
	return nil
}

// LockExclusive acquires an exclusive lock on rid for txn.
func (lm *Manager) LockExclusive(txn *transaction.Transaction, rid RID) error {
	const op = "LockManager.LockExclusive"

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == transaction.Aborted {
		return errAlreadyAborted(op)
	}
	// Unlike LockShared, every isolation level may take exclusive locks;
	// READ_UNCOMMITTED writers still need mutual exclusion against each
	// other even though they never read with a shared lock.
	if txn.State() == transaction.Shrinking {
		// spec.md §9: the source's "return false silently" here is the
		// identified bug. LockExclusive raises LOCK_ON_SHRINKING just like
		// LockShared and LockUpgrade do.
		return lm.abortLocked(txn, errLockOnShrinking(op))
	}
	if txn.IsExclusiveLocked(rid) {
		return nil
	}

	q := lm.queueFor(rid)
	req := &request{txnID: txn.ID(), mode: ExclusiveLock, valid: true}
	q.requests = append(q.requests, req)

	if err := lm.waitForGrant(txn, q, req, op); err != nil {
		return err
	}

	txn.GrantExclusive(rid)
	return nil
}

// LockUpgrade upgrades an already-held shared lock to exclusive. Only one
// upgrade may be in flight per RID at a time; a second concurrent upgrader
// is aborted with UPGRADE_CONFLICT rather than queued behind the first.
func (lm *Manager) LockUpgrade(txn *transaction.Transaction, rid RID) error {
	const op = "LockManager.LockUpgrade"

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == transaction.Aborted {
		return errAlreadyAborted(op)
	}
	if txn.State() == transaction.Shrinking {
		return lm.abortLocked(txn, errLockOnShrinking(op))
	}
	if txn.IsExclusiveLocked(rid) {
		return nil
	}

	q := lm.queueFor(rid)
	if q.hasUpgrader {
		return lm.abortLocked(txn, errUpgradeConflict(op))
	}
	req := q.find(txn.ID())
	if req == nil || req.mode != SharedLock || !req.granted {
		return lm.abortLocked(txn, errUpgradeConflict(op).WithDetail("caller does not hold a granted shared lock"))
	}

	q.hasUpgrader = true
	q.upgrading = txn.ID()
	req.mode = ExclusiveLock
	req.granted = false
	lm.grantedTotal-- // was counted as a granted shared lock; waitForGrant re-counts it once granted exclusive

	if err := lm.waitForGrant(txn, q, req, op); err != nil {
		q.hasUpgrader = false
		return err
	}

	q.hasUpgrader = false
	txn.ReleaseShared(rid)
	txn.GrantExclusive(rid)
	return nil
}

// Unlock releases txn's lock on rid. Releasing any lock moves a GROWING
// transaction to SHRINKING, except a READ_COMMITTED transaction releasing a
// shared lock, which stays GROWING (spec.md §4.2).
func (lm *Manager) Unlock(txn *transaction.Transaction, rid RID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	q, ok := lm.queue[rid]
	if !ok {
		return nil
	}
	req := q.find(txn.ID())
	if req == nil {
		return nil
	}

	wasShared := req.mode == SharedLock
	if req.granted {
		lm.grantedTotal--
	}
	q.removeRequest(txn.ID())
	if q.empty() {
		delete(lm.queue, rid)
	}

	if wasShared {
		txn.ReleaseShared(rid)
	} else {
		txn.ReleaseExclusive(rid)
	}

	if txn.State() == transaction.Growing {
		staysGrowing := wasShared && txn.IsolationLevel() == transaction.ReadCommitted
		if !staysGrowing {
			txn.SetState(transaction.Shrinking)
		}
	}

	q.cond.Broadcast()
	return nil
}

// UnlockAll releases every lock held by txn, in preparation for commit or
// abort. It calls Unlock for each RID, so a GROWING transaction ends up in
// SHRINKING (unless it only held shared locks under READ_COMMITTED).
func (lm *Manager) UnlockAll(txn *transaction.Transaction) {
	for rid := range txn.SharedLockSet() {
		lm.Unlock(txn, rid)
	}
	for rid := range txn.ExclusiveLockSet() {
		lm.Unlock(txn, rid)
	}
}

// waitForGrant blocks the caller until req is granted or txn is wounded.
// lm.mu must be held on entry; it is released while waiting on q.cond and
// re-acquired before returning, per the defer in the public methods above.
func (lm *Manager) waitForGrant(txn *transaction.Transaction, q *requestQueue, req *request, op string) error {
	for {
		if txn.State() == transaction.Aborted {
			q.removeRequest(txn.ID())
			q.cond.Broadcast()
			return errDeadlock(op)
		}
		if !q.grantedConflicts(txn.ID(), req.mode) {
			req.granted = true
			lm.grantedTotal++
			log.WithField("txn", txn.ID()).WithField("mode", req.mode).Debug("lock granted")
			return nil
		}
		lm.wound(q, req)
		// Wounding may have just invalidated every conflicting grant (the
		// common case: the only holder was younger). Re-check before
		// sleeping so the requester doesn't wait on a Broadcast that only
		// the victim's own eventual Unlock would send.
		if q.grantedConflicts(txn.ID(), req.mode) {
			q.cond.Wait()
		}
	}
}

// wound aborts every transaction holding a conflicting grant younger than
// req's requester. Older holders are never wounded; the requester simply
// waits for them to finish (spec.md §4.2 wound-wait: "the older transaction
// always wins").
func (lm *Manager) wound(q *requestQueue, req *request) {
	for _, other := range q.requests {
		if other.txnID == req.txnID || !other.granted || !other.valid {
			continue
		}
		if !conflicts(other.mode, req.mode) {
			continue
		}
		if other.txnID <= req.txnID {
			continue // older or equal: the requester waits instead
		}
		victim, ok := lm.txns.Get(other.txnID)
		if !ok {
			continue
		}
		if victim.State() == transaction.Aborted {
			continue
		}
		log.WithField("victim", other.txnID).WithField("wounded_by", req.txnID).Debug("wounding younger transaction")
		victim.SetState(transaction.Aborted)
		other.granted = false
		lm.grantedTotal--
		other.valid = false
	}
}

func (lm *Manager) queueFor(rid RID) *requestQueue {
	q, ok := lm.queue[rid]
	if !ok {
		q = newRequestQueue(&lm.mu)
		lm.queue[rid] = q
	}
	return q
}

// abortLocked forces txn into the ABORTED state and returns err. Called
// with lm.mu held.
func (lm *Manager) abortLocked(txn *transaction.Transaction, err *dberror.DBError) error {
	txn.SetState(transaction.Aborted)
	return err
}
