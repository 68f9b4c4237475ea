package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over stripe indices
type ring struct {
	hashRing *treemap.Map

	// minStripe caches the stripe of the min entry in hashRing, since
	// treemap.Map.Min() is O(log n).
	minStripe int
}

// newRing returns a consistent hash ring over stripes [0, stripes), with
// replicationFactor virtual nodes per stripe
func newRing(stripes int, replicationFactor uint) *ring {
	hashRing := treemap.NewWith(utils.Int64Comparator)
	for stripe := 0; stripe < stripes; stripe++ {
		nodeHash, _ := murmur3.Sum128([]byte(fmt.Sprintf("entry%d", stripe)))

		var buf [12]byte
		binary.LittleEndian.PutUint64(buf[:8], nodeHash)
		for i := uint32(0); i < uint32(replicationFactor); i++ {
			binary.LittleEndian.PutUint32(buf[8:], i)
			hash, _ := murmur3.Sum128(buf[:])
			hashRing.Put(int64(hash), stripe)
		}
	}

	r := &ring{hashRing: hashRing}
	if _, minStripe := hashRing.Min(); minStripe != nil {
		r.minStripe = minStripe.(int)
	}
	return r
}

// shard consistently hashes the key and returns its stripe
func (r *ring) shard(key []byte) int {
	raw, _ := murmur3.Sum128(key)
	_, stripe := r.hashRing.Ceiling(int64(raw))
	if stripe != nil {
		return stripe.(int)
	}
	return r.minStripe
}
