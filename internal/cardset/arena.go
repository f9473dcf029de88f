package cardset

import (
	"sync"
	"sync/atomic"
)

// RefHeader is the RCU-style reference-count header every heap-allocated
// container carries (§3.2 "Every heap-allocated container also has a
// reference-count header"). Live counts are odd and >= 3; the value 1
// means tombstoned and reusable (§4.1.3).
type RefHeader struct {
	refcount atomic.Int32
}

func (h *RefHeader) init() { h.refcount.Store(3) }

// tryAcquire attempts to pin the container for a reader, CAS-ing the
// refcount up by 2. It fails (returns false) if the container is already
// tombstoned or in some other non-live state, in which case the caller
// must reload the owning slot and retry against whatever it now holds.
func (h *RefHeader) tryAcquire() bool {
	for {
		v := h.refcount.Load()
		if v < 3 || v%2 == 0 {
			return false
		}

		if h.refcount.CompareAndSwap(v, v+2) {
			return true
		}
	}
}

// release drops a pin (refcount - 2) and reports the new value; callers
// must retire the container when the result is 1.
func (h *RefHeader) release() int32 {
	return h.refcount.Add(-2)
}

// Node is implemented by every arena-managed container payload.
type Node interface {
	header() *RefHeader
}

// Epoch is a minimal epoch-based reclamation scheme (§4.1.3, §9): readers
// pin the current generation before dereferencing a slot; retiring a slot
// defers its reuse until no reader remains pinned to the generation the
// slot was retired under. This protects against the ABA hazard of a
// stalled reader re-acquiring a freshly-reused slot as if it were the
// container it originally observed.
type Epoch struct {
	gen      atomic.Uint64
	pinCount [2]atomic.Int64
}

// Pin enters the critical section, returning a token to pass to Unpin.
func (e *Epoch) Pin() uint64 {
	for {
		g := e.gen.Load()
		parity := g & 1
		e.pinCount[parity].Add(1)

		if e.gen.Load() == g {
			return parity
		}

		e.pinCount[parity].Add(-1)
	}
}

// Unpin exits the critical section.
func (e *Epoch) Unpin(parity uint64) {
	e.pinCount[parity].Add(-1)
}

// Arena is a typed, chunked, free-listed monotonic allocator for one
// container variant (§4.1.2). Allocation chunk size grows geometrically
// up to a configured cap; the free list is global to the arena and
// populated only once the epoch scheme confirms no reader can still be
// mid-acquire against a retired slot.
type Arena[T Node] struct {
	mu           sync.Mutex
	slabs        [][]T
	free         []uint32
	retired      [2][]uint32
	epoch        *Epoch
	nextChunk    int
	maxChunk     int
	allocations  uint64
	chunkAllocs  uint64
}

// NewArena creates an arena sharing the given epoch (a CardSet's arenas
// all share one epoch so a single Maintain call drains all of them in
// lock-step with the region hash table's own reclamation).
func NewArena[T Node](epoch *Epoch, initialChunk, maxChunk int) *Arena[T] {
	return &Arena[T]{epoch: epoch, nextChunk: initialChunk, maxChunk: maxChunk}
}

// Alloc returns a slot index for a freshly-initialized T with refcount 3
// (one reference: the owning slot).
func (a *Arena[T]) Alloc() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32

	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = a.growLocked()
	}

	node := a.atLocked(idx)
	node.header().init()
	a.allocations++

	return idx
}

// growLocked appends a new slab and returns the index of its first slot.
// Caller holds a.mu.
func (a *Arena[T]) growLocked() uint32 {
	base := 0
	for _, s := range a.slabs {
		base += len(s)
	}

	size := a.nextChunk
	a.slabs = append(a.slabs, make([]T, size))
	a.chunkAllocs++

	if a.nextChunk < a.maxChunk {
		a.nextChunk *= 2
		if a.nextChunk > a.maxChunk {
			a.nextChunk = a.maxChunk
		}
	}

	// All but the first slot of the new slab go straight to the free list.
	for i := size - 1; i >= 1; i-- {
		a.free = append(a.free, uint32(base+i))
	}

	return uint32(base)
}

func (a *Arena[T]) atLocked(idx uint32) *T {
	off := int(idx)

	for i := range a.slabs {
		if off < len(a.slabs[i]) {
			return &a.slabs[i][off]
		}

		off -= len(a.slabs[i])
	}

	panic("cardset: arena slot index out of range")
}

// At returns a pointer to the slot's payload. Safe to call while pinned;
// slab slices are append-only (never reallocated in place), so pointers
// remain valid for the arena's lifetime.
func (a *Arena[T]) At(idx uint32) *T {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.atLocked(idx)
}

// FreeNow returns idx directly to the free list, bypassing the epoch's
// grace period. Only safe for a slot that was never published to a
// shared slot (i.e. a coarsen that lost its publishing CAS race, §4.1.4
// step 4: "free the freshly-created new container (no other reference
// exists)").
func (a *Arena[T]) FreeNow(idx uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.free = append(a.free, idx)
}

// Retire schedules idx for reuse once the current epoch's readers drain.
func (a *Arena[T]) Retire(idx uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	parity := a.epoch.gen.Load() & 1
	a.retired[parity] = append(a.retired[parity], idx)
}

// Maintain advances the epoch and, if the generation being retired from
// has no pinned readers left, moves its retired slots onto the free list.
// Call periodically (coarsening call sites do this opportunistically).
func (a *Arena[T]) Maintain() {
	a.mu.Lock()
	defer a.mu.Unlock()

	g := a.epoch.gen.Load()
	drainParity := g & 1

	if a.epoch.pinCount[drainParity].Load() == 0 && len(a.retired[drainParity]) > 0 {
		a.free = append(a.free, a.retired[drainParity]...)
		a.retired[drainParity] = a.retired[drainParity][:0]
	}

	a.epoch.gen.Add(1)
}

// Allocations reports the lifetime allocation count (diagnostics).
func (a *Arena[T]) Allocations() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.allocations
}
