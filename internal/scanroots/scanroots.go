// Package scanroots implements the STW merge-and-scan heap roots pass
// (§4.3): folding the refinement table and per-region remembered sets
// into the card table, then a parallel card scan that discovers
// references into the collection set.
package scanroots

import (
	"sync/atomic"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/refine"
)

// RegionKind classifies a region for the purposes of Phase 0/1 (§4.3.2).
type RegionKind int

const (
	RegionOld RegionKind = iota
	RegionYoung
	RegionCollectionSet
	RegionHumongous
	RegionFree
)

// RemSetIndex resolves a region's remembered set for Phase 2's merge.
// Identical in shape to refine.RemSetIndex; kept as its own type so this
// package does not otherwise depend on refine's internals.
type RemSetIndex = refine.RemSetIndex

// EvacuationQueue is the external par-scan-thread-state collaborator
// Phase 3 enqueues discovered collection-set references into; its
// implementation (copying, forwarding) is out of scope here (§4.3.2
// Phase 3 step 4).
type EvacuationQueue interface {
	EnqueueForCopying(from, target heapmodel.Addr)
}

// Stats accumulates Phase 3's per-phase counters (§4.3.2 Phase 3 step 5).
type Stats struct {
	PendingCards atomic.Uint64
	ScannedCards atomic.Uint64
	EmptyCards   atomic.Uint64
	Blocks       atomic.Uint64
	Chunks       atomic.Uint64
	RootsFound   atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	PendingCards uint64
	ScannedCards uint64
	EmptyCards   uint64
	Blocks       uint64
	Chunks       uint64
	RootsFound   uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PendingCards: s.PendingCards.Load(),
		ScannedCards: s.ScannedCards.Load(),
		EmptyCards:   s.EmptyCards.Load(),
		Blocks:       s.Blocks.Load(),
		Chunks:       s.Chunks.Load(),
		RootsFound:   s.RootsFound.Load(),
	}
}

// State is the merge/scan state object (§3.5): the dirty-region bags,
// per-region scan_top, and the Phase-3 claim array, scoped to one pause.
type State struct {
	shape *heapmodel.Shape

	allDirtyRegions  *heapmodel.UniqueBag
	nextDirtyRegions *heapmodel.UniqueBag

	scanTop    []heapmodel.Addr
	hasScanTop []bool

	claims     *heapmodel.ClaimTable
	chunkSize  uint32
	numRegions int

	tables *refine.Tables

	Stats Stats
}

// NewState allocates a merge/scan state over numRegions regions, sharing
// tables with the concurrent refinement pipeline and claiming Phase 3
// card-scan chunks in groups of chunkSize.
func NewState(shape *heapmodel.Shape, numRegions int, chunkSize uint32, tables *refine.Tables) *State {
	return &State{
		shape:            shape,
		allDirtyRegions:  heapmodel.NewUniqueBag(numRegions),
		nextDirtyRegions: heapmodel.NewUniqueBag(numRegions),
		scanTop:          make([]heapmodel.Addr, numRegions),
		hasScanTop:       make([]bool, numRegions),
		claims:           heapmodel.NewClaimTable(numRegions, shape.CardsPerRegion, chunkSize),
		chunkSize:        chunkSize,
		numRegions:       numRegions,
		tables:           tables,
	}
}

// AllDirtyRegions exposes the dirty-region bag Phase 5's cleanup walks.
func (s *State) AllDirtyRegions() *heapmodel.UniqueBag { return s.allDirtyRegions }
