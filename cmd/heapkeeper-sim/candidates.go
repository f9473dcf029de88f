package main

import (
	"sort"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
)

// simpleCandidates is a minimal, non-concurrent policy.Candidates: the
// demo runs finalize_cset on the main goroutine between pauses, so there
// is no need for the synchronization a real "candidates" collaborator
// would require.
type simpleCandidates struct {
	marking  []policy.CandidateRegion
	retained []policy.CandidateRegion
}

func (c *simpleCandidates) MarkingRegions() []policy.CandidateRegion {
	return append([]policy.CandidateRegion(nil), c.marking...)
}

func (c *simpleCandidates) RetainedRegions() []policy.CandidateRegion {
	return append([]policy.CandidateRegion(nil), c.retained...)
}

func (c *simpleCandidates) RemoveMarking(idx int) {
	c.marking = append(c.marking[:idx], c.marking[idx+1:]...)
}

func (c *simpleCandidates) RemoveRetained(idx int) {
	c.retained = append(c.retained[:idx], c.retained[idx+1:]...)
}

func (c *simpleCandidates) AddRetainedRegionUnsorted(cr policy.CandidateRegion) {
	c.retained = append(c.retained, cr)
}

func (c *simpleCandidates) SortByEfficiency(regions []policy.CandidateRegion) {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].PredictedEfficiency > regions[j].PredictedEfficiency
	})
}

func (c *simpleCandidates) SortMarkingByEfficiency() { c.SortByEfficiency(c.marking) }

func (c *simpleCandidates) HasMoreMarkingCandidates() bool { return len(c.marking) > 0 }

// flatRatePredictor costs every region the same fixed amount of time, a
// stand-in for a real decaying-average predictor (§4.2.5/§4.4).
type flatRatePredictor struct {
	regionMs     float64
	cardMergeMs  float64
	cardScanMs   float64
	allocRateMs  float64
	dirtyRateMs  float64
	refineRateMs float64
	availBytes   uint64
	timeUntilGC  float64
}

func (p *flatRatePredictor) PredictCardMergeTimeMs(int) float64          { return p.cardMergeMs }
func (p *flatRatePredictor) PredictCardScanTimeMs(int) float64           { return p.cardScanMs }
func (p *flatRatePredictor) PredictRegionTotalTimeMs(policy.Region) float64 { return p.regionMs }
func (p *flatRatePredictor) PredictAllocRateMs() float64                 { return p.allocRateMs }
func (p *flatRatePredictor) PredictDirtiedCardsRateMs() float64          { return p.dirtyRateMs }
func (p *flatRatePredictor) PredictConcurrentRefineRateMs() float64      { return p.refineRateMs }

func (p *flatRatePredictor) TryGetAvailableBytesEstimate() (uint64, bool) {
	return p.availBytes, true
}

func (p *flatRatePredictor) PredictTimeUntilNextGCMs() float64 { return p.timeUntilGC }

func newMarkingCandidates(regions []heapmodel.RegionIdx) []policy.CandidateRegion {
	out := make([]policy.CandidateRegion, len(regions))
	for i, r := range regions {
		out[i] = policy.CandidateRegion{Region: r, PredictedEfficiency: float64(len(regions) - i)}
	}

	return out
}
