package cardset

import "sync/atomic"

// howlNode is the bucketed fan-out container (§3.2 Howl container
// layout): a num_entries header followed by an atomic sub-container
// pointer per bucket. Buckets themselves hold Inline/Array/Bitmap/Full
// refs (never Howl, no second level of fan-out, §4.1.4 lattice).
type howlNode struct {
	hdr            RefHeader
	numEntries     atomic.Uint32 // compensated occupancy across all buckets
	buckets        []atomic.Uint64
	cardsPerBucket uint32
	log2PerBucket  uint
}

func (h *howlNode) header() *RefHeader { return &h.hdr }

func newHowlNode(numBuckets int, cardsPerBucket uint32, log2PerBucket uint, emptyInline Ref) *howlNode {
	h := &howlNode{}
	h.configure(numBuckets, cardsPerBucket, log2PerBucket, emptyInline)
	h.hdr.init()

	return h
}

func (h *howlNode) configure(numBuckets int, cardsPerBucket uint32, log2PerBucket uint, emptyInline Ref) {
	h.buckets = make([]atomic.Uint64, numBuckets)
	h.cardsPerBucket = cardsPerBucket
	h.log2PerBucket = log2PerBucket
	h.numEntries.Store(0)

	for i := range h.buckets {
		h.buckets[i].Store(uint64(emptyInline))
	}
}

// bucketOf maps a region-local card index to (bucket index, offset
// within bucket) (§3.2: "bucket index of a card c is c >> log2_cards_per_
// bucket, offset within bucket is c & (cards_per_bucket - 1)").
func (h *howlNode) bucketOf(card uint32) (int, uint32) {
	return int(card >> h.log2PerBucket), card & (h.cardsPerBucket - 1)
}

func (h *howlNode) loadBucket(i int) Ref { return Ref(h.buckets[i].Load()) }

func (h *howlNode) casBucket(i int, old, new Ref) bool {
	return h.buckets[i].CompareAndSwap(uint64(old), uint64(new))
}

func (h *howlNode) NumBuckets() int { return len(h.buckets) }

// Occupied returns the compensated occupancy counter.
func (h *howlNode) Occupied() int { return int(h.numEntries.Load()) }
