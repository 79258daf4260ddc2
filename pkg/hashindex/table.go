// Package hashindex implements an extendible (directory-based) hash index:
// a directory of 2^G pointers to fixed-capacity bucket pages, where G is the
// table's global depth and each bucket carries its own local depth. Buckets
// split (and the directory doubles, if needed) when an insert overflows a
// full bucket, and merge (with the directory halving, when possible) when a
// bucket empties out — spec.md §4.3.
package hashindex

import (
	"sync"

	"storemy/pkg/buffer"
	"storemy/pkg/dberror"
	"storemy/pkg/logging"
)

var log = logging.WithComponent("ExtendibleHashTable")

// DefaultBucketArraySize is used when a caller doesn't specify one.
const DefaultBucketArraySize = 4

// DefaultMaxGlobalDepth bounds directory growth; spec.md §9 treats this as a
// hard cap rather than something the table grows without bound.
const DefaultMaxGlobalDepth = 4

// ExtendibleHashTable is a generic extendible hash index over comparable
// key/value types, backed by a buffer.PoolManager for page allocation.
type ExtendibleHashTable[K comparable, V comparable] struct {
	mu sync.RWMutex

	pool            *buffer.PoolManager
	hash            HashFunc[K]
	equal           func(V, V) bool
	bucketArraySize int
	maxGlobalDepth  uint32

	dir     *directory
	buckets map[buffer.PageID]*bucketPage[K, V]
}

// Option configures NewExtendibleHashTable.
type Option[K comparable, V comparable] func(*ExtendibleHashTable[K, V])

// WithHashFunc overrides the default xxhash-based hash function.
func WithHashFunc[K comparable, V comparable](h HashFunc[K]) Option[K, V] {
	return func(t *ExtendibleHashTable[K, V]) { t.hash = h }
}

// WithEqual overrides the default (==) value comparator, e.g. for value
// types that shouldn't be compared by Go equality directly.
func WithEqual[K comparable, V comparable](eq func(V, V) bool) Option[K, V] {
	return func(t *ExtendibleHashTable[K, V]) { t.equal = eq }
}

// WithBucketArraySize overrides DefaultBucketArraySize.
func WithBucketArraySize[K comparable, V comparable](n int) Option[K, V] {
	return func(t *ExtendibleHashTable[K, V]) { t.bucketArraySize = n }
}

// WithMaxGlobalDepth overrides DefaultMaxGlobalDepth.
func WithMaxGlobalDepth[K comparable, V comparable](depth uint32) Option[K, V] {
	return func(t *ExtendibleHashTable[K, V]) { t.maxGlobalDepth = depth }
}

// NewExtendibleHashTable allocates the table's first bucket through pool and
// returns a table with global depth 0.
func NewExtendibleHashTable[K comparable, V comparable](pool *buffer.PoolManager, opts ...Option[K, V]) (*ExtendibleHashTable[K, V], error) {
	t := &ExtendibleHashTable[K, V]{
		pool:            pool,
		hash:            DefaultHash[K],
		equal:           func(a, b V) bool { return a == b },
		bucketArraySize: DefaultBucketArraySize,
		maxGlobalDepth:  DefaultMaxGlobalDepth,
		buckets:         make(map[buffer.PageID]*bucketPage[K, V]),
	}
	for _, opt := range opts {
		opt(t)
	}

	pid, _, err := pool.NewPage()
	if err != nil {
		return nil, dberror.Wrap(err, "OUT_OF_MEMORY", "NewExtendibleHashTable", "ExtendibleHashTable")
	}
	t.dir = newDirectory(pid)
	t.buckets[pid] = newBucketPage[K, V](t.bucketArraySize, 0)
	_ = t.pool.UnpinPage(pid, true)

	return t, nil
}

// Get returns every value stored under key.
func (t *ExtendibleHashTable[K, V]) Get(key K) []V {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ptr := t.dir.bucketFor(t.hash(key))
	return t.buckets[ptr.pageID].find(key)
}

// Insert adds key/value to the table, splitting buckets (and, when needed,
// doubling the directory) as required to make room. The returned bool is
// false when (key, value) was already present — inserting the same pair
// twice is a no-op, not an error (spec.md §8).
func (t *ExtendibleHashTable[K, V]) Insert(key K, value V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insertLocked(key, value, 0)
}

func (t *ExtendibleHashTable[K, V]) insertLocked(key K, value V, depth int) (bool, error) {
	if depth > int(t.maxGlobalDepth)+1 {
		return false, dberror.New(dberror.ErrCategorySystem, "OUT_OF_MEMORY",
			"bucket split recursion exceeded the maximum global depth").
			WithContext("Insert", "ExtendibleHashTable")
	}

	idx := t.dir.index(t.hash(key))
	ptr := t.dir.pointers[idx]
	bucket := t.buckets[ptr.pageID]

	switch bucket.insert(key, value, t.equal) {
	case insertedNew:
		return true, nil
	case insertedDuplicate:
		return false, nil
	}

	if err := t.splitBucket(idx); err != nil {
		return false, err
	}
	return t.insertLocked(key, value, depth+1)
}

// splitBucket grows the directory (if the overflowing bucket's local depth
// has caught up to the global depth) and splits the bucket at idx into two,
// redistributing its entries by the newly significant hash bit.
func (t *ExtendibleHashTable[K, V]) splitBucket(idx int) error {
	ptr := t.dir.pointers[idx]
	bucket := t.buckets[ptr.pageID]
	oldLocalDepth := bucket.localDepth

	if oldLocalDepth == t.dir.globalDepth {
		if t.dir.globalDepth >= t.maxGlobalDepth {
			return dberror.New(dberror.ErrCategorySystem, "OUT_OF_MEMORY",
				"cannot grow directory past the configured maximum global depth").
				WithContext("splitBucket", "ExtendibleHashTable")
		}
		// grow() duplicates the pointer array in place, so idx (valid in the
		// pre-growth, half-sized directory) still addresses the same
		// pointer — no need to re-derive it from the key's hash.
		t.dir.grow()
	}

	newLocalDepth := oldLocalDepth + 1
	newPageID, _, err := t.pool.NewPage()
	if err != nil {
		return dberror.Wrap(err, "OUT_OF_MEMORY", "splitBucket", "ExtendibleHashTable")
	}
	newBucket := newBucketPage[K, V](t.bucketArraySize, newLocalDepth)
	t.buckets[newPageID] = newBucket
	_ = t.pool.UnpinPage(newPageID, true)

	oldPageID := ptr.pageID
	bucket.localDepth = newLocalDepth

	entries := bucket.all()
	bucket.clear()
	for _, e := range entries {
		h := t.hash(e.key)
		if (h>>oldLocalDepth)&1 == 0 {
			bucket.insert(e.key, e.value, t.equal)
		} else {
			newBucket.insert(e.key, e.value, t.equal)
		}
	}

	for i := range t.dir.pointers {
		if t.dir.pointers[i].pageID != oldPageID {
			continue
		}
		bit := (i >> oldLocalDepth) & 1
		if bit == 1 {
			t.dir.pointers[i] = bucketPointer{pageID: newPageID, localDepth: newLocalDepth}
		} else {
			t.dir.pointers[i].localDepth = newLocalDepth
		}
	}

	log.WithField("old_local_depth", oldLocalDepth).WithField("global_depth", t.dir.globalDepth).Debug("bucket split")
	return nil
}

// Remove deletes key/value from the table, performing at most one merge of
// the emptied bucket with its split sibling (and halving the directory, when
// every pointer's local depth allows it) per spec.md §4.3/§8. The returned
// bool reports whether (key, value) was actually present to remove; further
// merge cascades only happen through subsequent, separate Remove calls.
func (t *ExtendibleHashTable[K, V]) Remove(key K, value V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.dir.index(t.hash(key))
	ptr := t.dir.pointers[idx]
	bucket := t.buckets[ptr.pageID]
	removed := bucket.remove(key, value, t.equal)

	if removed && bucket.isEmpty() {
		t.tryMerge(idx)
	}
	return removed, nil
}

// tryMerge performs a single merge step of the bucket at idx into its
// split-image sibling, provided they share a local depth and at least one of
// them is empty, then halves the directory once while that remains safe. It
// does not recurse: a single Remove call performs at most one merge, per
// spec.md §4.3 ("cascading merges arise only through further removes"),
// grounded on the ground-truth original's non-recursive
// extendible_hash_table.cpp Merge.
func (t *ExtendibleHashTable[K, V]) tryMerge(idx int) {
	ptr := t.dir.pointers[idx]
	bucket := t.buckets[ptr.pageID]
	if bucket.localDepth == 0 {
		return
	}

	buddyIdx := splitSibling(idx, bucket.localDepth-1)
	buddyPtr := t.dir.pointers[buddyIdx]
	if buddyPtr.localDepth != bucket.localDepth || buddyPtr.pageID == ptr.pageID {
		return
	}
	buddy := t.buckets[buddyPtr.pageID]
	if !bucket.isEmpty() && !buddy.isEmpty() {
		return
	}

	survivorPageID, survivor := ptr.pageID, bucket
	lostPageID, lost := buddyPtr.pageID, buddy
	if bucket.isEmpty() && !buddy.isEmpty() {
		survivorPageID, survivor = buddyPtr.pageID, buddy
		lostPageID, lost = ptr.pageID, bucket
	}

	newLocalDepth := bucket.localDepth - 1
	survivor.localDepth = newLocalDepth
	for _, e := range lost.all() {
		survivor.insert(e.key, e.value, t.equal)
	}

	for i := range t.dir.pointers {
		if t.dir.pointers[i].pageID == survivorPageID || t.dir.pointers[i].pageID == lostPageID {
			t.dir.pointers[i] = bucketPointer{pageID: survivorPageID, localDepth: newLocalDepth}
		}
	}
	delete(t.buckets, lostPageID)
	_ = t.pool.DeletePage(lostPageID)

	log.WithField("new_local_depth", newLocalDepth).Debug("bucket merge")

	if t.dir.canShrink() {
		t.dir.shrink()
	}
}

// Depth reports the table's global depth and, for each resident bucket page
// id, that bucket's local depth — a debug accessor for asserting the
// directory invariants directly in tests (spec.md §8).
func (t *ExtendibleHashTable[K, V]) Depth() (global uint32, buckets map[buffer.PageID]uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	buckets = make(map[buffer.PageID]uint32, len(t.buckets))
	for pid, b := range t.buckets {
		buckets[pid] = b.localDepth
	}
	return t.dir.globalDepth, buckets
}
