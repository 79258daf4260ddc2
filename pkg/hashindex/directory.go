package hashindex

import "storemy/pkg/buffer"

// directory is the extendible hash table's indirection layer: a power-of-two
// array of bucket pointers, each carrying the local depth of the bucket it
// points to, per spec.md §6. Two distinct directory slots may point at the
// same bucket page id — that's what lets one bucket split (incrementing its
// local depth) without doubling the whole directory's global depth, as long
// as the directory already has enough slots to spare.
type directory struct {
	globalDepth uint32
	pointers    []bucketPointer
}

type bucketPointer struct {
	pageID     buffer.PageID
	localDepth uint32
}

func newDirectory(firstBucket buffer.PageID) *directory {
	return &directory{
		globalDepth: 0,
		pointers:    []bucketPointer{{pageID: firstBucket, localDepth: 0}},
	}
}

// index returns the directory slot a hash falls into at the current global
// depth: its low globalDepth bits.
func (d *directory) index(hash uint32) int {
	if d.globalDepth == 0 {
		return 0
	}
	mask := uint32(1)<<d.globalDepth - 1
	return int(hash & mask)
}

func (d *directory) bucketFor(hash uint32) bucketPointer {
	return d.pointers[d.index(hash)]
}

// grow doubles the directory, duplicating every pointer into the new upper
// half (spec.md §4.3 step: "directory doubling"). Local depths are
// unchanged by doubling alone.
func (d *directory) grow() {
	d.pointers = append(append([]bucketPointer{}, d.pointers...), d.pointers...)
	d.globalDepth++
}

// canShrink reports whether every pointer's local depth is strictly less
// than the global depth, the precondition for halving (spec.md §4.3/§8).
func (d *directory) canShrink() bool {
	if d.globalDepth == 0 {
		return false
	}
	for _, p := range d.pointers {
		if p.localDepth == d.globalDepth {
			return false
		}
	}
	return true
}

// shrink halves the directory. Safe only when canShrink reports true.
func (d *directory) shrink() {
	half := len(d.pointers) / 2
	d.pointers = d.pointers[:half]
	d.globalDepth--
}

// splitSibling returns the directory index of idx's split image: the index
// that differs from idx only in the bit at position (bucket's local depth
// before the split), the sibling a bucket's entries get redistributed with.
func splitSibling(idx int, localDepthBeforeSplit uint32) int {
	return idx ^ (1 << localDepthBeforeSplit)
}

