// Package lock implements a wound-wait, two-phase lock manager over
// resources identified by [RID].
//
// # Overview
//
// Every transaction acquires locks only while in the GROWING phase and
// releases them only in SHRINKING, at commit, or at abort — the standard
// strict two-phase locking discipline. Two lock modes exist:
//
//   - [SharedLock]    — required to read a resource; compatible with other
//     shared locks, incompatible with exclusive locks.
//   - [ExclusiveLock] — required to write a resource; incompatible with
//     every other lock, including another exclusive lock.
//
// A transaction already holding a shared lock may call [Manager.LockUpgrade]
// to promote it to exclusive. Downgrading is never supported.
//
// # Deadlock avoidance: wound-wait
//
// [Manager] never detects cycles after the fact; it avoids deadlock at
// request time using wound-wait priority, ordered by [transaction.ID] (older
// transactions have smaller IDs):
//
//   - If the requester is older than a conflicting lock holder, the holder
//     is "wounded" — forced into the ABORTED state immediately — and its
//     grant stops counting as a conflict, so the requester can be granted
//     without waiting for the victim to unlock.
//   - If the requester is younger than a conflicting holder, the requester
//     simply waits.
//
// A transaction discovers it has been wounded the next time it is woken
// from [sync.Cond.Wait]: [Manager.waitForGrant] checks the transaction's
// state first and returns a DEADLOCK abort if it is ABORTED.
//
// # Components
//
// [Manager] is the package's single entry point. It holds one mutex shared
// by every [requestQueue] via [sync.Cond], so at most one goroutine is ever
// inspecting or mutating lock state — callers block by waiting on a
// condition variable, never by polling with a sleep/backoff loop.
//
// # Isolation levels
//
// [Manager] consults the requesting transaction's
// [transaction.IsolationLevel] on every call:
//
//   - READ_UNCOMMITTED never acquires shared locks ([Manager.LockShared]
//     aborts with LOCKSHARED_ON_READ_UNCOMMITTED).
//   - READ_COMMITTED releases shared locks without entering SHRINKING.
//   - REPEATABLE_READ holds every lock until commit/abort and enters
//     SHRINKING on the first release of any kind.
package lock
