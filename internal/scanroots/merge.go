package scanroots

import (
	"github.com/orizon-lang/heapkeeper/internal/cardset"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/refine"
)

// Prepare is Phase 0 (§4.3.2): null scan_top for collection-set and young
// regions (they are never scanned directly, CS regions are evacuated,
// young regions are handled wholesale), region.top() for old/humongous
// regions, and every non-free region recorded as a Phase-3 candidate.
func (s *State) Prepare(kinds []RegionKind, tops []heapmodel.Addr) {
	for i, kind := range kinds {
		region := heapmodel.RegionIdx(i)

		switch kind {
		case RegionCollectionSet, RegionYoung:
			s.hasScanTop[i] = false
		case RegionFree:
			continue
		default:
			s.scanTop[i] = tops[i]
			s.hasScanTop[i] = true
		}

		s.nextDirtyRegions.Add(region)
		s.allDirtyRegions.Add(region)
	}
}

// ScanTop returns the region's scan_top and whether one is set (false for
// collection-set/young/free regions).
func (s *State) ScanTop(region heapmodel.RegionIdx) (heapmodel.Addr, bool) {
	return s.scanTop[region], s.hasScanTop[region]
}

// MergeRefinementTable is Phase 1 (§4.3.2): conditional on the concurrent
// pipeline having left unfinished claim progress in a region, fold that
// region's RT into CT. Collection-set and young regions are cleared
// outright instead, since their RT contents are about to become garbage.
func (s *State) MergeRefinementTable(refineClaims *heapmodel.ClaimTable, kinds []RegionKind) {
	for i, kind := range kinds {
		region := heapmodel.RegionIdx(i)

		switch kind {
		case RegionFree:
			continue
		case RegionCollectionSet, RegionYoung:
			s.tables.ClearRegionCT(region)
			s.tables.ClearRegionRT(region)
		default:
			if refineClaims == nil || !refineClaims.Exhausted(region) {
				s.tables.MergeRTIntoCT(region)
			}
		}
	}
}

// cardVisitor implements cardset.Visitor, writing from_remset into CT for
// every card an RS holds, idempotently (only over a currently-clean
// byte) so concurrent merges of overlapping work race safely.
type cardVisitor struct {
	tables *refine.Tables
	region heapmodel.RegionIdx
}

func (v *cardVisitor) StartIterate(cardset.Tag) bool { return true }

func (v *cardVisitor) DoCard(idx uint32) {
	card := heapmodel.CardIdx(idx)
	if v.tables.CT(v.region, card) == refine.Clean {
		v.tables.SetCT(v.region, card, refine.FromRemSet)
	}
}

func (v *cardVisitor) DoCardRange(start, length uint32) {
	for i := start; i < start+length; i++ {
		v.DoCard(i)
	}
}

// MergeRemSets is Phase 2 (§4.3.2): for each collection-set region,
// iterate its remembered set and mark every card from_remset in CT.
func (s *State) MergeRemSets(csetRegions []heapmodel.RegionIdx, remsets RemSetIndex) {
	for _, region := range csetRegions {
		rs, ok := remsets.RemSetFor(region)
		if !ok {
			continue
		}

		rs.IterateForMerge(&cardVisitor{tables: s.tables, region: region})
	}
}
