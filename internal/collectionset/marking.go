package collectionset

import (
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
)

// RegionIndex resolves a region index to its policy.Region collaborator,
// so a predicted time can be asked of it. A host heap that cannot produce
// a Region for a given index (e.g. it was uncommitted between the remark
// and this finalize pass) is treated as zero predicted cost.
type RegionIndex interface {
	RegionByIndex(idx heapmodel.RegionIdx) (policy.Region, bool)
}

func predictedRegionTimeMs(pred policy.Predictor, regions RegionIndex, idx heapmodel.RegionIdx) float64 {
	r, ok := regions.RegionByIndex(idx)
	if !ok {
		return 0
	}

	return pred.PredictRegionTotalTimeMs(r)
}

// SelectMarkingCandidates implements §4.4.2: walk the efficiency-sorted
// marking list, building initial_old and optional_old against the given
// young-part remaining budget. Pinned regions encountered along the way
// are moved to the retained list (unconditionally, regardless of where
// the walk currently stands against min/max_old_cset_length) with their
// unreclaimed-attempt counter bumped.
func SelectMarkingCandidates(cands policy.Candidates, pred policy.Predictor, regions RegionIndex, params Params, remainingMs float64) Result {
	cands.SortMarkingByEfficiency()

	initialRemainingMs := remainingMs
	lastMarkingLength := len(cands.MarkingRegions())

	minOldCSetLength := ceilDiv(lastMarkingLength, params.MixedGCCountTarget)
	maxOldCSetLength := ceilDiv(params.CommittedRegions*params.OldCSetThresholdPercent, 100)

	var initialOld, optionalOld []heapmodel.RegionIdx

	for cands.HasMoreMarkingCandidates() {
		list := cands.MarkingRegions()
		if len(list) == 0 {
			break
		}

		c := list[0]

		if c.Pinned {
			c.NumUnreclaimedAttempts++
			cands.RemoveMarking(0)
			cands.AddRetainedRegionUnsorted(c)

			continue
		}

		if len(initialOld) >= maxOldCSetLength {
			break
		}

		predicted := predictedRegionTimeMs(pred, regions, c.Region)

		if len(initialOld) >= minOldCSetLength && predicted > remainingMs {
			break
		}

		cands.RemoveMarking(0)

		if len(initialOld) < minOldCSetLength {
			initialOld = append(initialOld, c.Region)
			remainingMs -= predicted

			continue
		}

		leftover := remainingMs - predicted

		switch {
		case leftover > initialRemainingMs*params.OptionalPredictionFraction:
			initialOld = append(initialOld, c.Region)
			remainingMs = leftover
		case leftover > 0:
			optionalOld = append(optionalOld, c.Region)
		default:
			return Result{InitialOld: initialOld, OptionalOld: optionalOld, RemainingMs: remainingMs}
		}
	}

	return Result{InitialOld: initialOld, OptionalOld: optionalOld, RemainingMs: remainingMs}
}
