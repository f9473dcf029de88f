package scanroots

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

// OptionalIncrement is Phase 4 (§4.3.2): a further merge-and-scan pass
// over a fresh subset of optional regions, re-running Phases 2 and 3.
// Already-Scanned bytes from the original Phase 3 pass are skipped
// naturally, since scanChunk treats Scanned the same as Clean.
func (s *State) OptionalIncrement(csetRegions []heapmodel.RegionIdx, remsets RemSetIndex) {
	for _, region := range csetRegions {
		s.nextDirtyRegions.Add(region)
		s.allDirtyRegions.Add(region)
	}

	s.MergeRemSets(csetRegions, remsets)
}

// Cleanup is Phase 5 (§4.3.2): clear every touched CT byte back to clean
// across all_dirty_regions, then reset scratch state for the next pause.
func (s *State) Cleanup() {
	for _, region := range s.allDirtyRegions.Snapshot() {
		s.tables.ClearRegionCT(region)
	}

	s.allDirtyRegions.Clear()
	s.nextDirtyRegions.Clear()
	s.claims = heapmodel.NewClaimTable(s.numRegions, s.shape.CardsPerRegion, s.chunkSize)
}
