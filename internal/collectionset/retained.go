package collectionset

import (
	"math"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
)

// SelectRetainedCandidates implements §4.4.3. The retained list carries its
// own small time budget (params.MaxTimeForRetainingMs) independent of the
// marking pass's remainingMs; a region is added to initial_old only if it
// fits both budgets, to optional_old if it fits the retained budget alone,
// and otherwise the walk stops (the list stays sorted by efficiency, so a
// region that doesn't fit means none of the remaining ones will either).
//
// Pinned regions that have exhausted NumCollectionsKeepPinned retries are
// dropped outright: their remembered set is cleared (cardset only, code
// roots and tracking left alone) so they fall back to being plain old
// regions instead of perpetually retried candidates.
func SelectRetainedCandidates(cands policy.Candidates, pred policy.Predictor, regions RegionIndex, remsets RemSetIndex, params Params, remainingMs float64) Result {
	retainedRemainingMs := params.MaxTimeForRetainingMs

	var initialOld, optionalOld []heapmodel.RegionIdx

	for {
		list := cands.RetainedRegions()
		if len(list) == 0 {
			break
		}

		c := list[0]

		if c.Pinned && c.NumUnreclaimedAttempts >= params.NumCollectionsKeepPinned {
			if rs, ok := remsets.RemSetFor(c.Region); ok {
				rs.Clear(true, false)
			}

			cands.RemoveRetained(0)

			continue
		}

		predicted := predictedRegionTimeMs(pred, regions, c.Region)
		limit := math.Min(remainingMs, retainedRemainingMs)

		switch {
		case predicted <= limit:
			initialOld = append(initialOld, c.Region)
			remainingMs -= predicted
			retainedRemainingMs -= predicted
			cands.RemoveRetained(0)
		case predicted <= retainedRemainingMs:
			optionalOld = append(optionalOld, c.Region)
			retainedRemainingMs -= predicted
			cands.RemoveRetained(0)
		default:
			return Result{InitialOld: initialOld, OptionalOld: optionalOld, RemainingMs: remainingMs}
		}
	}

	return Result{InitialOld: initialOld, OptionalOld: optionalOld, RemainingMs: remainingMs}
}
