package refine

import (
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

// Result classifies the outcome of refining one card (§4.2.4).
type Result int

const (
	NoCrossRegion Result = iota
	HasRefToOld
	HasRefToCSet
	CouldNotParse
)

func (r Result) String() string {
	switch r {
	case NoCrossRegion:
		return "NoCrossRegion"
	case HasRefToOld:
		return "HasRefToOld"
	case HasRefToCSet:
		return "HasRefToCSet"
	case CouldNotParse:
		return "CouldNotParse"
	default:
		return "Result(?)"
	}
}

// RemSetIndex resolves a region's remembered set for AddReference and
// state inspection; the refinement pipeline's only dependency on the
// region-to-remset mapping (owned by a host collector, out of scope here).
type RemSetIndex interface {
	RemSetFor(region heapmodel.RegionIdx) (*remset.RemSet, bool)
}

// RegionClassifier answers the two region-kind questions refining a card
// needs: is the target in the collection set, and is it old (as opposed
// to young/free, which are excluded from refinement entirely per
// SnapshotHeap's claim saturation).
type RegionClassifier interface {
	IsCollectionSet(region heapmodel.RegionIdx) bool
	IsOld(region heapmodel.RegionIdx) bool
}

// Context bundles a refinement worker's read-only collaborators.
type Context struct {
	Shape      *heapmodel.Shape
	Heap       policy.Heap
	RemSets    RemSetIndex
	Classifier RegionClassifier
}

// Worker is the per-thread state RefineCard consults and mutates: a
// worker id (for AddReference's reserved slot) and its from-card cache.
type Worker struct {
	ID    int
	Cache FromCardCache
}

// RefineCard implements refine_one_card (§4.2.4): parse the card's object
// span, add every interesting cross-region reference to its target's
// remembered set, and classify the outcome.
func RefineCard(ctx *Context, w *Worker, region heapmodel.RegionIdx, card heapmodel.CardIdx) Result {
	addr := ctx.Shape.CardAddr(region, card)

	r, ok := ctx.Heap.RegionContaining(addr)
	if !ok {
		return CouldNotParse
	}

	scanLimit := r.Top()
	cardEnd := addr + heapmodel.Addr(ctx.Shape.CardSizeBytes)

	if cardEnd < scanLimit {
		scanLimit = cardEnd
	}

	if scanLimit <= addr {
		return NoCrossRegion
	}

	result := NoCrossRegion
	parseFailed := false

	span := policy.RegionRange{Start: addr, End: scanLimit}

	err := r.IterateObjectsInRange(span, func(from, target heapmodel.Addr) {
		targetRegion := ctx.Shape.RegionOf(target)
		if targetRegion == region {
			return
		}

		rs, ok := ctx.RemSets.RemSetFor(targetRegion)
		if !ok {
			return
		}

		if !rs.IsUpdating() && !rs.IsComplete() {
			return
		}

		targetCard := ctx.Shape.CardOf(target)

		if !w.Cache.Seen(targetRegion, targetCard) {
			cr, offset := ctx.Shape.Split(targetCard)
			rs.AddReference(cr, offset, w.ID)
			w.Cache.Record(targetRegion, targetCard)
		}

		switch {
		case ctx.Classifier.IsCollectionSet(targetRegion):
			result = HasRefToCSet
		case result != HasRefToCSet && ctx.Classifier.IsOld(targetRegion):
			result = HasRefToOld
		}
	})

	if err != nil {
		parseFailed = true
	}

	if parseFailed {
		return CouldNotParse
	}

	return result
}
