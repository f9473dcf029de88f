// Package policy declares the external-collaborator interfaces this
// module consumes (§6.1) rather than implements: object iteration, region
// geometry, and the adaptive-sizing predictor. A host collector supplies
// concrete implementations; refine and scanroots depend only on these
// interfaces so they can be exercised against fakes/mocks in tests.
package policy

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

// ObjectClosure is invoked once per oop field discovered while iterating
// a memory region; From is the address of the field itself.
type ObjectClosure func(from heapmodel.Addr, target heapmodel.Addr)

// RegionRange is a half-open [Start, End) byte span within one region,
// the MemRegion the spec iterates objects over.
type RegionRange struct {
	Start heapmodel.Addr
	End   heapmodel.Addr
}

// Region is the external per-region collaborator (§6.1 "Object iteration",
// "Top-of-region").
type Region interface {
	// IterateObjectsInRange walks every object (or object fragment) whose
	// start lies in r, invoking closure once per outgoing reference.
	IterateObjectsInRange(r RegionRange, closure ObjectClosure) error

	// Top returns the region's current allocation high-water mark. Stable
	// outside a safepoint for old/humongous regions per §4.2.4.
	Top() heapmodel.Addr

	Index() heapmodel.RegionIdx
}

// Heap resolves addresses to the region that contains them (§6.1
// "Containing-region lookup").
type Heap interface {
	RegionContaining(addr heapmodel.Addr) (Region, bool)
}

// Predictor is the adaptive-sizing policy collaborator (§4.2.5, §4.4,
// §6.1 "Policy predictor"). All times are milliseconds; rates are
// cards-per-millisecond unless named otherwise.
type Predictor interface {
	PredictCardMergeTimeMs(numCards int) float64
	PredictCardScanTimeMs(numCards int) float64
	PredictRegionTotalTimeMs(region Region) float64

	PredictAllocRateMs() float64
	PredictDirtiedCardsRateMs() float64
	PredictConcurrentRefineRateMs() float64

	// TryGetAvailableBytesEstimate returns the estimated free heap bytes
	// until the next GC; ok is false when no estimate is available yet
	// (e.g. before the first pause completes).
	TryGetAvailableBytesEstimate() (bytes uint64, ok bool)

	// PredictTimeUntilNextGCMs drives both §4.2.5's thread sizing and
	// §4.5's adjust_wait_ms derivation.
	PredictTimeUntilNextGCMs() float64
}

// CandidateRegion is one entry of the candidates lists (§3.6).
type CandidateRegion struct {
	Region                  heapmodel.RegionIdx
	PredictedEfficiency     float64
	NumUnreclaimedAttempts  int
	Pinned                  bool
}

// Candidates is the external "candidates" collaborator (§3.6, consumed by
// §4.4 collection-set finalization).
type Candidates interface {
	MarkingRegions() []CandidateRegion
	RetainedRegions() []CandidateRegion

	RemoveMarking(idx int)
	RemoveRetained(idx int)

	AddRetainedRegionUnsorted(c CandidateRegion)

	SortByEfficiency(regions []CandidateRegion)
	SortMarkingByEfficiency()

	HasMoreMarkingCandidates() bool
}
