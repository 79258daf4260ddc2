package hashindex

import (
	"fmt"

	"github.com/OneOfOne/xxhash"
)

// HashFunc computes a 32-bit hash for a key. Callers that already have a
// cheap, well-distributed hash for their key type (e.g. an integer ID) can
// supply their own; NewExtendibleHashTable falls back to DefaultHash
// otherwise.
type HashFunc[K comparable] func(K) uint32

// DefaultHash hashes the fmt.Sprint encoding of key with xxhash, grounded on
// xmysql-server's util/hash_utils.go pattern of New64/Write/Sum. It is
// slower than a type-specific hash but works for any comparable K, which is
// the point of offering it as the zero-config default.
func DefaultHash[K comparable](key K) uint32 {
	h := xxhash.New32()
	_, _ = h.Write([]byte(fmt.Sprint(key)))
	return h.Sum32()
}
