package collectionset

import (
	"go.uber.org/zap"

	"github.com/orizon-lang/heapkeeper/internal/gclog"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
)

// FinalizeOptional implements §4.4.4: greedily pick as many regions off
// the front of optional_old as fit in remainingPauseMs. optional_old stays
// sorted by efficiency from the marking/retained passes, so the first
// region that doesn't fit means none after it will either. The caller is
// responsible for re-registering each chosen region's RS and scan_top
// with the merge-and-scan state (scanroots.State.OptionalIncrement).
func FinalizeOptional(optionalOld []heapmodel.RegionIdx, pred policy.Predictor, regions RegionIndex, remainingPauseMs float64) (chosen, remaining []heapmodel.RegionIdx) {
	for i, region := range optionalOld {
		predicted := predictedRegionTimeMs(pred, regions, region)
		if predicted > remainingPauseMs {
			remaining = append(remaining, optionalOld[i:]...)

			return chosen, remaining
		}

		chosen = append(chosen, region)
		remainingPauseMs -= predicted
	}

	return chosen, nil
}

// AbandonOptional implements §4.4.5: an optional increment ran out of
// time before it could even attempt optional_old. None of those regions
// were touched, so they are simply handed back unchanged; the caller
// clears each one's CS attribute and leaves its RS intact for the next
// GC's candidate rebuild.
func AbandonOptional(optionalOld []heapmodel.RegionIdx) []heapmodel.RegionIdx {
	gclog.Named("collectionset").Info("optional increment abandoned",
		zap.Int("regions", len(optionalOld)))

	return optionalOld
}
