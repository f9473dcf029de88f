// Package refine implements the concurrent refinement sweep state machine
// (§4.2): the card table / refinement table pair, the SwapGlobalCT ->
// ... -> CompleteRefineWork pipeline, refining a single card, and the
// adaptive thread-count control loop.
package refine

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

// Byte values a card/refinement table slot may hold (§4.2.1). Clean is
// 0xFF so that an aligned word of "all clean" reads as all-ones, cheap to
// test with a single comparison against ^uint64(0).
const (
	Clean      byte = 0xFF
	Dirty      byte = 0x00
	FromRemSet byte = 0x10
	ToCSet     byte = 0x20
	Scanned    byte = 0x30
)

// Tables holds the global card table (CT) and refinement table (RT), one
// byte per card across the whole heap (§4.2.1). Mutator write barriers
// write Dirty through whichever table is currently the "mutator-write"
// table; that selection lives one level up, in Pipeline.
type Tables struct {
	Shape *heapmodel.Shape

	ct []byte
	rt []byte
}

// NewTables allocates both byte arrays for a heap of the given region
// capacity, every byte initialized Clean.
func NewTables(shape *heapmodel.Shape, maxRegions uint32) *Tables {
	n := int(maxRegions) * int(shape.CardsPerRegion)

	t := &Tables{
		Shape: shape,
		ct:    make([]byte, n),
		rt:    make([]byte, n),
	}

	fill(t.ct, Clean)
	fill(t.rt, Clean)

	return t
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func (t *Tables) globalCard(region heapmodel.RegionIdx, card heapmodel.CardIdx) int {
	return int(region)*int(t.Shape.CardsPerRegion) + int(card)
}

func (t *Tables) CT(region heapmodel.RegionIdx, card heapmodel.CardIdx) byte {
	return t.ct[t.globalCard(region, card)]
}

func (t *Tables) SetCT(region heapmodel.RegionIdx, card heapmodel.CardIdx, v byte) {
	t.ct[t.globalCard(region, card)] = v
}

func (t *Tables) RT(region heapmodel.RegionIdx, card heapmodel.CardIdx) byte {
	return t.rt[t.globalCard(region, card)]
}

func (t *Tables) SetRT(region heapmodel.RegionIdx, card heapmodel.CardIdx, v byte) {
	t.rt[t.globalCard(region, card)] = v
}

// RegionCT/RegionRT return the byte slice covering one region, for
// word-at-a-time bulk operations (merge, clear, scan).
func (t *Tables) RegionCT(region heapmodel.RegionIdx) []byte {
	base := t.globalCard(region, 0)
	return t.ct[base : base+int(t.Shape.CardsPerRegion)]
}

func (t *Tables) RegionRT(region heapmodel.RegionIdx) []byte {
	base := t.globalCard(region, 0)
	return t.rt[base : base+int(t.Shape.CardsPerRegion)]
}

// ClearRegionCT resets a region's CT range to Clean (§4.3 Phase 5).
func (t *Tables) ClearRegionCT(region heapmodel.RegionIdx) {
	fill(t.RegionCT(region), Clean)
}

// ClearRegionRT bulk-clears a region's RT range (the young-region fast
// path in SweepRT, §4.2.2).
func (t *Tables) ClearRegionRT(region heapmodel.RegionIdx) {
	fill(t.RegionRT(region), Clean)
}

// MergeRTIntoCT folds RT into CT for one region, byte by byte, then
// clears that RT range (§4.3 Phase 1): ct' = ct & rt, safe because Clean
// is all-ones and every other value AND-combines sensibly.
func (t *Tables) MergeRTIntoCT(region heapmodel.RegionIdx) {
	ct := t.RegionCT(region)
	rt := t.RegionRT(region)

	for i := range ct {
		ct[i] &= rt[i]
		rt[i] = Clean
	}
}
