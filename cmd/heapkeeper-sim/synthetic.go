package main

import (
	"math/rand"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

// syntheticRegion is a toy policy.Region: its object graph is a fixed
// list of cross-region references generated once at construction, rather
// than a real object heap, enough to drive refinement and scanning
// through their full control flow without a real collector underneath.
type syntheticRegion struct {
	idx     heapmodel.RegionIdx
	top     heapmodel.Addr
	targets []heapmodel.Addr
}

func (r *syntheticRegion) Index() heapmodel.RegionIdx { return r.idx }
func (r *syntheticRegion) Top() heapmodel.Addr        { return r.top }

func (r *syntheticRegion) IterateObjectsInRange(span policy.RegionRange, closure policy.ObjectClosure) error {
	for _, target := range r.targets {
		if target >= span.Start && target < span.End {
			closure(span.Start, target)
		}
	}

	return nil
}

// syntheticHeap is a fixed array of committed regions addressed by the
// shared heapmodel.Shape.
type syntheticHeap struct {
	shape   *heapmodel.Shape
	regions []*syntheticRegion
}

func newSyntheticHeap(shape *heapmodel.Shape, numRegions int, numCSetRegions int, crossRefsPerRegion int, seed int64) (*syntheticHeap, []heapmodel.RegionIdx) {
	rnd := rand.New(rand.NewSource(seed))
	h := &syntheticHeap{shape: shape, regions: make([]*syntheticRegion, numRegions)}

	regionBytes := heapmodel.Addr(shape.CardSizeBytes) * heapmodel.Addr(shape.CardsPerRegion)

	for i := range h.regions {
		h.regions[i] = &syntheticRegion{idx: heapmodel.RegionIdx(i), top: regionBytes}
	}

	csetRegions := make([]heapmodel.RegionIdx, 0, numCSetRegions)
	for i := 0; i < numCSetRegions && i < numRegions; i++ {
		csetRegions = append(csetRegions, heapmodel.RegionIdx(i))
	}

	csetSet := make(map[heapmodel.RegionIdx]bool, len(csetRegions))
	for _, r := range csetRegions {
		csetSet[r] = true
	}

	// Every region gets a handful of references into a random collection-set
	// region, so both refinement and the scan pass have real work to find.
	for i, r := range h.regions {
		if csetSet[heapmodel.RegionIdx(i)] || len(csetRegions) == 0 {
			continue
		}

		for j := 0; j < crossRefsPerRegion; j++ {
			target := csetRegions[rnd.Intn(len(csetRegions))]
			offset := heapmodel.Addr(rnd.Intn(int(regionBytes)))
			r.targets = append(r.targets, shape.CardAddr(target, 0)+offset)
		}
	}

	return h, csetRegions
}

func (h *syntheticHeap) RegionContaining(addr heapmodel.Addr) (policy.Region, bool) {
	idx := h.shape.RegionOf(addr)
	if int(idx) >= len(h.regions) {
		return nil, false
	}

	return h.regions[idx], true
}

func (h *syntheticHeap) RegionByIndex(idx heapmodel.RegionIdx) (policy.Region, bool) {
	if int(idx) >= len(h.regions) {
		return nil, false
	}

	return h.regions[idx], true
}

// syntheticRemSets wraps one remset.RemSet per region, all tracked and
// Complete so refinement and merge both exercise the real add/iterate
// path instead of short-circuiting on an Untracked remembered set.
type syntheticRemSets struct {
	sets map[heapmodel.RegionIdx]*remset.RemSet
}

func (s *syntheticRemSets) RemSetFor(region heapmodel.RegionIdx) (*remset.RemSet, bool) {
	rs, ok := s.sets[region]
	return rs, ok
}

// syntheticClassifier treats the first numCSet regions as the collection
// set and everything else (other than those) as old.
type syntheticClassifier struct {
	cset map[heapmodel.RegionIdx]bool
}

func (c *syntheticClassifier) IsCollectionSet(region heapmodel.RegionIdx) bool { return c.cset[region] }
func (c *syntheticClassifier) IsOld(region heapmodel.RegionIdx) bool          { return !c.cset[region] }

// syntheticQueue counts enqueued evacuation targets instead of actually
// copying anything.
type syntheticQueue struct {
	enqueued int
}

func (q *syntheticQueue) EnqueueForCopying(from, target heapmodel.Addr) { q.enqueued++ }
