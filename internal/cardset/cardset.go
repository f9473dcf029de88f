package cardset

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/orizon-lang/heapkeeper/internal/gcerrors"
	"github.com/orizon-lang/heapkeeper/internal/gclog"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
)

// CardSet is the per-heap-region container hierarchy (§4.1): a hash table
// keyed by card-region index, each slot holding a tagged Ref that is
// Inline, Array, Howl, or the Full sentinel, with Howl's own buckets
// independently coarsening Inline -> Array -> Bitmap -> Full (§4.1.4).
//
// All four container arenas share one Epoch so a single Clear drains
// retirements across the whole set in lock-step with the hash table's own
// node arena.
type CardSet struct {
	cfg   Config
	epoch Epoch

	arrays    *Arena[arrayNode]
	bitmaps   *Arena[bitmapNode]
	howls     *Arena[howlNode]
	hashNodes *Arena[entry]
	table     *hashTable

	numOccupied atomic.Uint64
	stats       CoarsenStats
}

// NewCardSet derives cfg's computed fields and constructs an empty set.
func NewCardSet(cfg Config) *CardSet {
	cfg.Derive()

	cs := &CardSet{cfg: cfg}

	cs.arrays = NewArena[arrayNode](&cs.epoch, cfg.arenaInitialChunk, cfg.arenaMaxChunk)
	cs.bitmaps = NewArena[bitmapNode](&cs.epoch, cfg.arenaInitialChunk, cfg.arenaMaxChunk)
	cs.howls = NewArena[howlNode](&cs.epoch, cfg.arenaInitialChunk, cfg.arenaMaxChunk)
	cs.hashNodes = NewArena[entry](&cs.epoch, cfg.arenaInitialChunk, cfg.arenaMaxChunk)
	cs.table = newHashTable(cs.hashNodes)

	return cs
}

// NumOccupied returns the region-wide, possibly-compensated occupancy
// counter (§4.1.4: "num_occupied is a lower bound, never an overcount,
// except where Full-coarsening explicitly compensates it").
func (cs *CardSet) NumOccupied() uint64 { return cs.numOccupied.Load() }

// Stats returns a snapshot of per-transition coarsening counters.
func (cs *CardSet) Stats() []Snapshot { return cs.stats.Snapshot() }

func (cs *CardSet) bumpOccupied(e *entry, h *howlNode, delta int) {
	e.occupied.Add(uint32(delta))
	cs.numOccupied.Add(uint64(delta))

	if h != nil {
		h.numEntries.Add(uint32(delta))
	}
}

// acquire pins the reader against ref's container, if any (Inline and Full
// need no refcount: Inline carries its cards in the word itself, Full is a
// process-wide sentinel). ok is false when the container is concurrently
// being tombstoned by a coarsen that already won its publish race; the
// caller must reload the owning slot and retry rather than retry the
// acquire itself.
func (cs *CardSet) acquire(ref Ref) (ok bool, release func()) {
	if ref.IsFull() || ref.Tag() == TagInline {
		return true, func() {}
	}

	pin := cs.epoch.Pin()
	hdr := cs.headerOf(ref)

	if !hdr.tryAcquire() {
		cs.epoch.Unpin(pin)
		return false, nil
	}

	return true, func() {
		cs.release(ref)
		cs.epoch.Unpin(pin)
	}
}

// release drops one refcount pin on ref's container (whether held by a
// transient reader or, from coarsen call sites, by the slot that used to
// publish it) and retires the container once the count reaches 1.
func (cs *CardSet) release(ref Ref) {
	if ref.IsFull() || ref.Tag() == TagInline {
		return
	}

	if cs.headerOf(ref).release() == 1 {
		cs.retire(ref)
	}
}

func (cs *CardSet) headerOf(ref Ref) *RefHeader {
	switch ref.Tag() {
	case TagArray:
		return cs.arrays.At(ref.slotIndex()).header()
	case TagBitmap:
		return cs.bitmaps.At(ref.slotIndex()).header()
	case TagHowl:
		return cs.howls.At(ref.slotIndex()).header()
	default:
		gcerrors.Assertf(false, "cardset: headerOf called on non-allocated tag %v", ref.Tag())
		return nil
	}
}

func (cs *CardSet) retire(ref Ref) {
	switch ref.Tag() {
	case TagArray:
		cs.arrays.Retire(ref.slotIndex())
	case TagBitmap:
		cs.bitmaps.Retire(ref.slotIndex())
	case TagHowl:
		cs.howls.Retire(ref.slotIndex())
	}
}

// Maintain advances the shared epoch and drains quiescent retirements
// across every arena. Clear calls this after flushing a region; nothing
// else in the live Add/Contains path forces a generation boundary, so
// retired slots simply accumulate between clears.
func (cs *CardSet) Maintain() {
	cs.arrays.Maintain()
	cs.bitmaps.Maintain()
	cs.howls.Maintain()
	cs.hashNodes.Maintain()
}

// AddCard records cardInRegion as present in cardRegion's container,
// coarsening the representation whenever it overflows (§4.1.1 add_card,
// §4.1.4 coarsening triggers). Returns Found if the card was already
// present, Added otherwise.
func (cs *CardSet) AddCard(cardRegion heapmodel.CardRegionIdx, cardInRegion uint32) AddResult {
	e, _, shouldGrow := cs.table.GetOrAdd(uint32(cardRegion), cs.cfg.inlineLayout.Empty())
	if shouldGrow {
		cs.table.Grow()
	}

	for {
		ref := Ref(e.ref.Load())

		if ref.IsFull() {
			return Found
		}

		switch ref.Tag() {
		case TagInline:
			newRef, res := cs.cfg.inlineLayout.Add(ref, cardInRegion)

			switch res {
			case Found:
				return Found
			case Overflow:
				cs.coarsenInlineToArray(e, ref)
				continue
			case Added:
				if !e.ref.CompareAndSwap(uint64(ref), uint64(newRef)) {
					continue
				}

				cs.bumpOccupied(e, nil, 1)

				return Added
			}

		case TagArray:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			node := cs.arrays.At(ref.slotIndex())
			res := node.Add(cardInRegion)
			release()

			switch res {
			case Found:
				return Found
			case Overflow:
				cs.coarsenArrayToHowl(e, ref, node)
				continue
			case Added:
				cs.bumpOccupied(e, nil, 1)
				return Added
			}

		case TagHowl:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			node := cs.howls.At(ref.slotIndex())
			res := cs.addToHowl(e, node, cardInRegion)

			if res == Added && int(e.occupied.Load()) >= cs.cfg.howlToFullThresh {
				cs.coarsenHowlToFull(e, ref, node)
			}

			release()

			return res
		}
	}
}

// addToHowl dispatches a card to its bucket, coarsening the bucket's own
// Inline -> Array -> Bitmap lattice as needed (§4.1.4 bucket coarsening).
// It never returns Overflow: a bucket's only overflow edge (Bitmap) is
// driven by a count threshold checked here, not by running out of room.
func (cs *CardSet) addToHowl(e *entry, h *howlNode, card uint32) AddResult {
	bucketIdx, offset := h.bucketOf(card)

	for {
		ref := h.loadBucket(bucketIdx)

		if ref.IsFull() {
			return Found
		}

		switch ref.Tag() {
		case TagInline:
			newRef, res := cs.cfg.inlineLayout.Add(ref, offset)

			switch res {
			case Found:
				return Found
			case Overflow:
				cs.coarsenBucketInlineToArray(h, bucketIdx, ref)
				continue
			case Added:
				if !h.casBucket(bucketIdx, ref, newRef) {
					continue
				}

				cs.bumpOccupied(e, h, 1)

				return Added
			}

		case TagArray:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			node := cs.arrays.At(ref.slotIndex())
			res := node.Add(offset)
			release()

			switch res {
			case Found:
				return Found
			case Overflow:
				cs.coarsenBucketArrayToBitmap(h, bucketIdx, ref, node)
				continue
			case Added:
				cs.bumpOccupied(e, h, 1)
				return Added
			}

		case TagBitmap:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			node := cs.bitmaps.At(ref.slotIndex())
			res := node.Add(offset)

			if res == Found {
				release()
				return Found
			}

			cs.bumpOccupied(e, h, 1)

			if node.Count() >= cs.cfg.bitmapToFullThresh {
				cs.coarsenBucketBitmapToFull(e, h, bucketIdx, ref, node)
			}

			release()

			return Added

		default:
			gcerrors.Assertf(false, "cardset: howl bucket holds unexpected tag %v", ref.Tag())
			return Found
		}
	}
}

// rawBucketAdd transfers a single known-new card into a freshly allocated,
// unpublished Howl during Array->Howl coarsening. No concurrent reader can
// observe h before it is published, so this skips acquire/release and
// occupancy bookkeeping entirely (the transferred cards were already
// counted once, against the old Array).
func (cs *CardSet) rawBucketAdd(h *howlNode, card uint32) {
	bucketIdx, offset := h.bucketOf(card)

	for {
		ref := h.loadBucket(bucketIdx)

		switch ref.Tag() {
		case TagInline:
			newRef, res := cs.cfg.inlineLayout.Add(ref, offset)
			if res != Overflow {
				h.casBucket(bucketIdx, ref, newRef)
				return
			}

			slot := cs.arrays.Alloc()
			arr := cs.arrays.At(slot)
			arr.configure(cs.cfg.MaxCardsInArray)
			cs.cfg.inlineLayout.Iterate(ref, func(c uint32) { arr.Add(c) })
			h.casBucket(bucketIdx, ref, makeRef(TagArray, slot))

		case TagArray:
			node := cs.arrays.At(ref.slotIndex())
			if res := node.Add(offset); res != Overflow {
				return
			}

			slot := cs.bitmaps.Alloc()
			bm := cs.bitmaps.At(slot)
			bm.configure(int(cs.cfg.cardsPerBucket))
			node.Iterate(func(c uint32) { bm.Add(c) })
			h.casBucket(bucketIdx, ref, makeRef(TagBitmap, slot))

		case TagBitmap:
			cs.bitmaps.At(ref.slotIndex()).Add(offset)
			return
		}
	}
}

func (cs *CardSet) coarsenInlineToArray(e *entry, oldRef Ref) {
	cs.stats.recordAttempt(TransitionInlineToArray)

	slot := cs.arrays.Alloc()
	node := cs.arrays.At(slot)
	node.configure(cs.cfg.MaxCardsInArray)

	cs.cfg.inlineLayout.Iterate(oldRef, func(card uint32) { node.Add(card) })

	newRef := makeRef(TagArray, slot)

	if e.ref.CompareAndSwap(uint64(oldRef), uint64(newRef)) {
		return
	}

	cs.stats.recordCollision(TransitionInlineToArray)
	cs.arrays.FreeNow(slot)
}

func (cs *CardSet) coarsenArrayToHowl(e *entry, oldRef Ref, old *arrayNode) {
	cs.stats.recordAttempt(TransitionArrayToHowl)

	slot := cs.howls.Alloc()
	node := cs.howls.At(slot)
	node.configure(cs.cfg.numBucketsInHowl, cs.cfg.cardsPerBucket, cs.cfg.log2CardsPerBucket, cs.cfg.inlineLayout.Empty())

	old.Iterate(func(card uint32) { cs.rawBucketAdd(node, card) })

	newRef := makeRef(TagHowl, slot)

	if e.ref.CompareAndSwap(uint64(oldRef), uint64(newRef)) {
		cs.release(oldRef)
		return
	}

	cs.stats.recordCollision(TransitionArrayToHowl)
	cs.howls.FreeNow(slot)
}

// coarsenHowlToFull promotes every bucket to Full, then publishes Full at
// the top (§4.1.4: "the Howl's own sub-buckets must be CAS-upgraded to
// Full recursively, releasing their containers"). On a lost publish race
// the bucket promotions are harmless: every competing thread is mutating
// the same shared Howl toward the same terminal state.
func (cs *CardSet) coarsenHowlToFull(e *entry, oldRef Ref, h *howlNode) {
	cs.stats.recordAttempt(TransitionHowlToFull)

	for i := 0; i < h.NumBuckets(); i++ {
		for {
			bref := h.loadBucket(i)
			if bref.IsFull() {
				break
			}

			if h.casBucket(i, bref, Full) {
				cs.release(bref)
				break
			}
		}
	}

	if e.ref.CompareAndSwap(uint64(oldRef), uint64(Full)) {
		capacity := int(cs.cfg.Shape.CardsPerCardRegion)
		if delta := capacity - int(e.occupied.Load()); delta > 0 {
			cs.bumpOccupied(e, nil, delta)
		}

		cs.release(oldRef)

		return
	}

	cs.stats.recordCollision(TransitionHowlToFull)
}

func (cs *CardSet) coarsenBucketInlineToArray(h *howlNode, bucketIdx int, oldRef Ref) {
	cs.stats.recordAttempt(TransitionBucketInlineToArray)

	slot := cs.arrays.Alloc()
	node := cs.arrays.At(slot)
	node.configure(cs.cfg.MaxCardsInArray)

	cs.cfg.inlineLayout.Iterate(oldRef, func(c uint32) { node.Add(c) })

	newRef := makeRef(TagArray, slot)

	if h.casBucket(bucketIdx, oldRef, newRef) {
		return
	}

	cs.stats.recordCollision(TransitionBucketInlineToArray)
	cs.arrays.FreeNow(slot)
}

func (cs *CardSet) coarsenBucketArrayToBitmap(h *howlNode, bucketIdx int, oldRef Ref, old *arrayNode) {
	cs.stats.recordAttempt(TransitionBucketArrayToBitmap)

	slot := cs.bitmaps.Alloc()
	node := cs.bitmaps.At(slot)
	node.configure(int(cs.cfg.cardsPerBucket))

	old.Iterate(func(c uint32) { node.Add(c) })

	newRef := makeRef(TagBitmap, slot)

	if h.casBucket(bucketIdx, oldRef, newRef) {
		cs.release(oldRef)
		return
	}

	cs.stats.recordCollision(TransitionBucketArrayToBitmap)
	cs.bitmaps.FreeNow(slot)
}

// coarsenBucketBitmapToFull does not transfer cards: Full subsumes them.
// It compensates the occupancy counters by the gap between the bucket's
// full capacity and what was explicitly counted (§4.1.4 "coarsening from
// a dense container to Full... compensates the occupancy counter").
func (cs *CardSet) coarsenBucketBitmapToFull(e *entry, h *howlNode, bucketIdx int, oldRef Ref, old *bitmapNode) {
	cs.stats.recordAttempt(TransitionBucketBitmapToFull)

	if h.casBucket(bucketIdx, oldRef, Full) {
		if delta := int(cs.cfg.cardsPerBucket) - old.Count(); delta > 0 {
			cs.bumpOccupied(e, h, delta)
		}

		gclog.Debug("cardset: bucket subsumed by Full",
			zap.Int("bucket", bucketIdx),
			zap.Stringer("bits", old.DebugBitset()))

		cs.release(oldRef)

		return
	}

	cs.stats.recordCollision(TransitionBucketBitmapToFull)
}

// ContainsCard reports whether cardInRegion is present in cardRegion's
// container (§4.1.1 contains_card).
func (cs *CardSet) ContainsCard(cardRegion heapmodel.CardRegionIdx, cardInRegion uint32) bool {
	e := cs.table.Get(uint32(cardRegion))
	if e == nil {
		return false
	}

	for {
		ref := Ref(e.ref.Load())

		if ref.IsFull() {
			return true
		}

		switch ref.Tag() {
		case TagInline:
			return cs.cfg.inlineLayout.Contains(ref, cardInRegion)

		case TagArray:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			found := cs.arrays.At(ref.slotIndex()).Contains(cardInRegion)
			release()

			return found

		case TagHowl:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			found := cs.containsInHowl(cs.howls.At(ref.slotIndex()), cardInRegion)
			release()

			return found
		}
	}
}

func (cs *CardSet) containsInHowl(h *howlNode, card uint32) bool {
	bucketIdx, offset := h.bucketOf(card)

	for {
		ref := h.loadBucket(bucketIdx)

		if ref.IsFull() {
			return true
		}

		switch ref.Tag() {
		case TagInline:
			return cs.cfg.inlineLayout.Contains(ref, offset)

		case TagArray:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			found := cs.arrays.At(ref.slotIndex()).Contains(offset)
			release()

			return found

		case TagBitmap:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			found := cs.bitmaps.At(ref.slotIndex()).Contains(offset)
			release()

			return found

		default:
			return false
		}
	}
}

// Visitor is the §4.1.1 iterate_cards_or_ranges_in_container contract.
// StartIterate lets a caller skip a representation it has no interest in
// (returning false); DoCardRange is used only for Full, whose single call
// covers the whole container's addressable span.
type Visitor interface {
	StartIterate(tag Tag) bool
	DoCard(idx uint32)
	DoCardRange(start, length uint32)
}

// IterateContainers visits cardRegion's container, if tracked.
func (cs *CardSet) IterateContainers(cardRegion heapmodel.CardRegionIdx, v Visitor) {
	e := cs.table.Get(uint32(cardRegion))
	if e == nil {
		return
	}

	cs.iterateEntry(e, v)
}

// IterateAll visits every tracked card-region's container. atSafepoint
// documents that the caller has already brought mutators to a safepoint
// (§4.1.1); the underlying hash-table scan is safepoint-stable either way.
func (cs *CardSet) IterateAll(v Visitor, atSafepoint bool) {
	_ = atSafepoint

	cs.table.Range(func(_ uint32, e *entry) {
		cs.iterateEntry(e, v)
	})
}

func (cs *CardSet) iterateEntry(e *entry, v Visitor) {
	ref := Ref(e.ref.Load())

	if ref.IsFull() {
		if v.StartIterate(TagFull) {
			v.DoCardRange(0, cs.cfg.Shape.CardsPerCardRegion)
		}

		return
	}

	switch ref.Tag() {
	case TagInline:
		if v.StartIterate(TagInline) {
			cs.cfg.inlineLayout.Iterate(ref, v.DoCard)
		}

	case TagArray:
		ok, release := cs.acquire(ref)
		if !ok {
			return
		}

		if v.StartIterate(TagArray) {
			cs.arrays.At(ref.slotIndex()).Iterate(v.DoCard)
		}

		release()

	case TagHowl:
		ok, release := cs.acquire(ref)
		if !ok {
			return
		}

		if v.StartIterate(TagHowl) {
			cs.iterateHowl(cs.howls.At(ref.slotIndex()), v)
		}

		release()
	}
}

func (cs *CardSet) iterateHowl(h *howlNode, v Visitor) {
	for i := 0; i < h.NumBuckets(); i++ {
		base := uint32(i) * h.cardsPerBucket
		ref := h.loadBucket(i)

		if ref.IsFull() {
			if v.StartIterate(TagFull) {
				v.DoCardRange(base, h.cardsPerBucket)
			}

			continue
		}

		switch ref.Tag() {
		case TagInline:
			if v.StartIterate(TagInline) {
				cs.cfg.inlineLayout.Iterate(ref, func(off uint32) { v.DoCard(base + off) })
			}

		case TagArray:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			if v.StartIterate(TagArray) {
				cs.arrays.At(ref.slotIndex()).Iterate(func(off uint32) { v.DoCard(base + off) })
			}

			release()

		case TagBitmap:
			ok, release := cs.acquire(ref)
			if !ok {
				continue
			}

			if v.StartIterate(TagBitmap) {
				cs.bitmaps.At(ref.slotIndex()).Iterate(func(off uint32) { v.DoCard(base + off) })
			}

			release()
		}
	}
}

// Clear empties the whole set, releasing every container reference it
// holds (§4.1.1 clear(); humongous object pairs flush and clear both
// regions' sets identically, so there is nothing region-pair-specific
// here, the caller invokes Clear on each region's CardSet in turn).
func (cs *CardSet) Clear() {
	cs.table.Range(func(_ uint32, e *entry) {
		ref := Ref(e.ref.Load())
		if ref.IsFull() || ref.Tag() == TagInline {
			return
		}

		if ref.Tag() == TagHowl {
			h := cs.howls.At(ref.slotIndex())

			for i := 0; i < h.NumBuckets(); i++ {
				bref := h.loadBucket(i)
				if !bref.IsFull() && bref.Tag() != TagInline {
					cs.release(bref)
				}
			}
		}

		cs.release(ref)
	})

	cs.table.Clear()
	cs.numOccupied.Store(0)
	cs.Maintain()
}
