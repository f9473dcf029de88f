package collectionset

import "github.com/orizon-lang/heapkeeper/internal/policy"

// YoungPartBudget implements §4.4.1: predict the cost the young generation
// has already committed this pause (pending-card refinement plus survivor
// RS scanning plus young/eden other- and copy-time), and return whatever
// of target_pause_time_ms is left over for old regions.
func YoungPartBudget(pred policy.Predictor, targetPauseTimeMs float64, pendingCards int, survivors []policy.Region, edenRegions []policy.Region) float64 {
	predictedBase := pred.PredictCardMergeTimeMs(pendingCards)

	for _, r := range survivors {
		predictedBase += pred.PredictRegionTotalTimeMs(r)
	}

	predictedEden := 0.0
	for _, r := range edenRegions {
		predictedEden += pred.PredictRegionTotalTimeMs(r)
	}

	remaining := targetPauseTimeMs - predictedBase - predictedEden
	if remaining < 0 {
		remaining = 0
	}

	return remaining
}
