package buffer

import (
	"sync"

	"github.com/pkg/errors"

	"storemy/pkg/dberror"
	"storemy/pkg/logging"
	"storemy/pkg/utils"
)

// PageID identifies a page. Unlike the teacher's PageID interface (which had
// to support heap, B-tree, and hash page kinds), this module only ever pages
// in hash-directory and hash-bucket pages, so a plain integer is sufficient.
type PageID int64

// PageSize is the fixed size, in bytes, of every page this pool hands out.
const PageSize = 4096

var log = logging.WithComponent("PoolManager")

type frame struct {
	id    FrameID
	page  PageID
	data  [PageSize]byte
	pins  int
	dirty bool
}

// PoolManager is a non-durable, in-memory stand-in for a real buffer pool
// manager. It has no disk file behind it and performs no WAL logging —
// durability and recovery are out of scope for this module (spec.md §1) —
// but it implements the external contract spec.md's buffer pool collaborator
// is expected to expose, so pkg/hashindex has something real to drive.
type PoolManager struct {
	mu       sync.Mutex
	replacer Replacer
	frames   []*frame
	free     []FrameID
	pageTbl  map[PageID]FrameID
	nextPage PageID
}

// NewPoolManager allocates a pool of poolSize frames, all initially free.
func NewPoolManager(poolSize int) *PoolManager {
	pm := &PoolManager{
		replacer: NewLRUReplacer(),
		frames:   make([]*frame, poolSize),
		pageTbl:  make(map[PageID]FrameID),
	}
	for i := 0; i < poolSize; i++ {
		id := FrameID(i)
		pm.frames[i] = &frame{id: id}
		pm.free = append(pm.free, id)
	}
	return pm
}

// NewPoolManagerWithReplacer is NewPoolManager but lets the caller supply a
// Replacer other than LRUReplacer, e.g. a test double. A nil replacer falls
// back to a fresh LRUReplacer; that includes a typed nil
// (var r *LRUReplacer; NewPoolManagerWithReplacer(n, r)), which a plain
// `replacer == nil` check would miss and which would panic on first use.
func NewPoolManagerWithReplacer(poolSize int, replacer Replacer) *PoolManager {
	if utils.IsNilInterface(replacer) {
		replacer = NewLRUReplacer()
	}
	pm := NewPoolManager(poolSize)
	pm.replacer = replacer
	return pm
}

// NewPage allocates a fresh, zeroed page and pins it. Returns a
// *dberror.DBError with code OUT_OF_MEMORY if every frame is pinned (the replacer has no victim and the free list is
// empty).
func (pm *PoolManager) NewPage() (PageID, []byte, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	fid, ok := pm.acquireFrame()
	if !ok {
		return 0, nil, pm.outOfMemory("NewPage")
	}

	pid := pm.nextPage
	pm.nextPage++

	fr := pm.frames[fid]
	fr.page = pid
	fr.data = [PageSize]byte{}
	fr.pins = 1
	fr.dirty = false

	pm.pageTbl[pid] = fid
	pm.replacer.Pin(fid)

	return pid, fr.data[:], nil
}

// FetchPage returns the bytes of a resident pid and increments its pin
// count. A page that is not resident (never allocated, deleted, or evicted)
// cannot be paged back in, since there is no backing store; FetchPage then
// returns an error wrapping an OUT_OF_MEMORY *dberror.DBError.
func (pm *PoolManager) FetchPage(pid PageID) ([]byte, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if fid, ok := pm.pageTbl[pid]; ok {
		fr := pm.frames[fid]
		if fr.pins == 0 {
			pm.replacer.Pin(fid)
		}
		fr.pins++
		return fr.data[:], nil
	}

	return nil, errors.Wrapf(pm.outOfMemory("FetchPage"), "page %d not resident and cannot be paged in without a backing store", pid)
}

// UnpinPage decrements pid's pin count, marking it dirty if requested. Once
// the pin count reaches zero the frame becomes eligible for eviction.
func (pm *PoolManager) UnpinPage(pid PageID, dirty bool) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	fid, ok := pm.pageTbl[pid]
	if !ok {
		return dberror.New(dberror.ErrCategoryUser, "PAGE_NOT_FOUND", "unpin of a page not in the pool").
			WithContext("UnpinPage", "PoolManager")
	}

	fr := pm.frames[fid]
	if dirty {
		fr.dirty = true
	}
	if fr.pins == 0 {
		return nil
	}
	fr.pins--
	if fr.pins == 0 {
		pm.replacer.Unpin(fid)
	}
	return nil
}

// DeletePage removes pid from the pool, freeing its frame. Returns an error
// if the page is still pinned.
func (pm *PoolManager) DeletePage(pid PageID) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	fid, ok := pm.pageTbl[pid]
	if !ok {
		return nil
	}
	fr := pm.frames[fid]
	if fr.pins > 0 {
		return dberror.New(dberror.ErrCategoryUser, "PAGE_PINNED", "cannot delete a pinned page").
			WithContext("DeletePage", "PoolManager")
	}

	delete(pm.pageTbl, pid)
	pm.replacer.Pin(fid) // ensure it isn't in the evictable list
	fr.page = 0
	fr.dirty = false
	fr.data = [PageSize]byte{}
	pm.free = append(pm.free, fid)
	return nil
}

// FlushPage writes nothing in this in-memory pool (there is no backing file
// to flush to); it only clears the page's dirty flag, and returns an error if
// pid is not in the pool. It is kept on the API so callers written against a
// real buffer pool manager compile unmodified against this one.
func (pm *PoolManager) FlushPage(pid PageID) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	fid, ok := pm.pageTbl[pid]
	if !ok {
		return dberror.New(dberror.ErrCategoryUser, "PAGE_NOT_FOUND", "flush of a page not in the pool").
			WithContext("FlushPage", "PoolManager")
	}
	pm.frames[fid].dirty = false
	return nil
}

// acquireFrame returns a free frame id, evicting via the replacer if the
// free list is exhausted. Caller must hold pm.mu.
func (pm *PoolManager) acquireFrame() (FrameID, bool) {
	if n := len(pm.free); n > 0 {
		fid := pm.free[n-1]
		pm.free = pm.free[:n-1]
		return fid, true
	}

	fid, ok := pm.replacer.Victim()
	if !ok {
		return 0, false
	}
	fr := pm.frames[fid]
	if fr.dirty {
		log.WithField("page", fr.page).Debug("evicting dirty page with no backing store; contents discarded")
	}
	delete(pm.pageTbl, fr.page)
	return fid, true
}

func (pm *PoolManager) outOfMemory(op string) *dberror.DBError {
	return dberror.New(dberror.ErrCategorySystem, "OUT_OF_MEMORY", "buffer pool exhausted: no evictable frame available").
		WithContext(op, "PoolManager")
}
