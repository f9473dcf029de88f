package collectionset

import (
	"sort"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
)

type fakeCandidates struct {
	marking  []policy.CandidateRegion
	retained []policy.CandidateRegion
}

func (f *fakeCandidates) MarkingRegions() []policy.CandidateRegion {
	return append([]policy.CandidateRegion(nil), f.marking...)
}

func (f *fakeCandidates) RetainedRegions() []policy.CandidateRegion {
	return append([]policy.CandidateRegion(nil), f.retained...)
}

func (f *fakeCandidates) RemoveMarking(idx int) {
	f.marking = append(f.marking[:idx], f.marking[idx+1:]...)
}

func (f *fakeCandidates) RemoveRetained(idx int) {
	f.retained = append(f.retained[:idx], f.retained[idx+1:]...)
}

func (f *fakeCandidates) AddRetainedRegionUnsorted(c policy.CandidateRegion) {
	f.retained = append(f.retained, c)
}

func (f *fakeCandidates) SortByEfficiency(regions []policy.CandidateRegion) {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].PredictedEfficiency > regions[j].PredictedEfficiency
	})
}

func (f *fakeCandidates) SortMarkingByEfficiency() { f.SortByEfficiency(f.marking) }

func (f *fakeCandidates) HasMoreMarkingCandidates() bool { return len(f.marking) > 0 }

type fakeCSRegion struct{ idx heapmodel.RegionIdx }

func (r fakeCSRegion) Top() heapmodel.Addr        { return 0 }
func (r fakeCSRegion) Index() heapmodel.RegionIdx { return r.idx }
func (r fakeCSRegion) IterateObjectsInRange(policy.RegionRange, policy.ObjectClosure) error {
	return nil
}

type fakeRegionIndex map[heapmodel.RegionIdx]policy.Region

func (f fakeRegionIndex) RegionByIndex(idx heapmodel.RegionIdx) (policy.Region, bool) {
	r, ok := f[idx]
	return r, ok
}

func uniformRegionIndex(n int) fakeRegionIndex {
	idx := make(fakeRegionIndex, n)
	for i := 0; i < n; i++ {
		idx[heapmodel.RegionIdx(i)] = fakeCSRegion{idx: heapmodel.RegionIdx(i)}
	}

	return idx
}

type fakePredictor struct {
	timePerRegion map[heapmodel.RegionIdx]float64
	cardMergeMs   float64
}

func (f fakePredictor) PredictCardMergeTimeMs(int) float64 { return f.cardMergeMs }
func (f fakePredictor) PredictCardScanTimeMs(int) float64  { return 0 }

func (f fakePredictor) PredictRegionTotalTimeMs(r policy.Region) float64 {
	return f.timePerRegion[r.Index()]
}

func (f fakePredictor) PredictAllocRateMs() float64            { return 0 }
func (f fakePredictor) PredictDirtiedCardsRateMs() float64     { return 0 }
func (f fakePredictor) PredictConcurrentRefineRateMs() float64 { return 0 }

func (f fakePredictor) TryGetAvailableBytesEstimate() (uint64, bool) { return 0, false }
func (f fakePredictor) PredictTimeUntilNextGCMs() float64            { return 0 }
