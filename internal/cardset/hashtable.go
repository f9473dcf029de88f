package cardset

import (
	"sync"
	"sync/atomic"
)

// entry is the value a per-region hash table slot points to (§4.1.5):
// the card-region's container ref plus its own occupancy counter. Hash
// table nodes are allocated from their own arena so reclamation
// participates in the RCU scheme the containers themselves use, even
// though entries are only ever added, never individually removed (only
// whole-table Clear or a grow-triggered rebuild retires them).
type entry struct {
	hdr      RefHeader
	key      uint32 // CardRegionIdx
	next     atomic.Int64
	ref      atomic.Uint64
	occupied atomic.Uint32
	used     atomic.Bool
}

func (e *entry) header() *RefHeader { return &e.hdr }

// hashTable is a concurrent, chaining, dynamically-resizing map keyed by
// card-region index. Reads (Get) are lock-free; inserts and the
// occasional grow-the-bucket-array resize take a coarse mutex, which the
// spec explicitly leaves as an implementation choice ("the specific
// scheme is not prescribed", §4.1.5).
type hashTable struct {
	mu      sync.Mutex
	buckets atomic.Pointer[[]atomic.Int64] // each slot: entry arena index+1, or 0 if empty
	arena   *Arena[entry]
	count   atomic.Int64
}

const hashTableInitialBuckets = 16

func newHashTable(arena *Arena[entry]) *hashTable {
	t := &hashTable{arena: arena}
	b := make([]atomic.Int64, hashTableInitialBuckets)
	t.buckets.Store(&b)

	return t
}

func hashKey(key uint32) uint64 {
	// identity hash (§4.1.5: "Hash: identity on region_idx").
	return uint64(key)
}

func (t *hashTable) bucketIndex(buckets []atomic.Int64, key uint32) int {
	return int(hashKey(key) % uint64(len(buckets)))
}

// Get returns the entry for key, or nil if absent.
func (t *hashTable) Get(key uint32) *entry {
	buckets := *t.buckets.Load()
	idx := t.bucketIndex(buckets, key)
	head := buckets[idx].Load()

	for head != 0 {
		e := t.arena.At(uint32(head - 1))
		if e.used.Load() && e.key == key {
			return e
		}

		head = e.next.Load()
	}

	return nil
}

// GetOrAdd returns the existing entry for key, or inserts a fresh one
// (ref = emptyRef, occupied = 0) and returns it plus shouldGrow, a hint
// that the caller may want to trigger Grow() (load factor > 1).
func (t *hashTable) GetOrAdd(key uint32, emptyRef Ref) (e *entry, inserted, shouldGrow bool) {
	if found := t.Get(key); found != nil {
		return found, false, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check under the lock: another writer may have inserted it.
	if found := t.Get(key); found != nil {
		return found, false, false
	}

	slot := t.arena.Alloc()
	node := t.arena.At(slot)
	node.key = key
	node.ref.Store(uint64(emptyRef))
	node.occupied.Store(0)
	node.used.Store(true)

	buckets := *t.buckets.Load()
	idx := t.bucketIndex(buckets, key)
	node.next.Store(buckets[idx].Load())
	buckets[idx].Store(int64(slot) + 1)

	n := t.count.Add(1)
	shouldGrow = n > int64(len(buckets))

	return node, true, shouldGrow
}

// Grow doubles the bucket array, rehashing existing entries. Safe to
// call concurrently with readers (who always go through the atomic
// buckets pointer); concurrent writers serialize on mu.
func (t *hashTable) Grow() {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.buckets.Load()
	newBuckets := make([]atomic.Int64, len(old)*2)

	for i := range old {
		head := old[i].Load()
		for head != 0 {
			e := t.arena.At(uint32(head - 1))
			next := e.next.Load()

			idx := t.bucketIndex(newBuckets, e.key)
			e.next.Store(newBuckets[idx].Load())
			newBuckets[idx].Store(head)

			head = next
		}
	}

	t.buckets.Store(&newBuckets)
}

// Len returns the number of populated entries.
func (t *hashTable) Len() int {
	return int(t.count.Load())
}

// Range visits every live entry. Safe to call at a safepoint (§4.1.1
// "when at_safepoint=true, use a safepoint-stable hash-table scan
// claimer"); here that just means walking the current bucket snapshot,
// which is what callers hold the VM at a safepoint for in the host
// collector.
func (t *hashTable) Range(visit func(key uint32, e *entry)) {
	buckets := *t.buckets.Load()

	for i := range buckets {
		head := buckets[i].Load()
		for head != 0 {
			e := t.arena.At(uint32(head - 1))
			if e.used.Load() {
				visit(e.key, e)
			}

			head = e.next.Load()
		}
	}
}

// Clear empties the table (§4.1.1 clear()), retiring every node to the
// arena's epoch-protected free list rather than dropping them on the
// floor, so the arena stays bounded across repeated clear/refill cycles.
func (t *hashTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	buckets := *t.buckets.Load()

	for i := range buckets {
		head := buckets[i].Load()
		for head != 0 {
			e := t.arena.At(uint32(head - 1))
			next := e.next.Load()
			e.used.Store(false)
			t.arena.Retire(uint32(head - 1))
			head = next
		}

		buckets[i].Store(0)
	}

	t.count.Store(0)
}
