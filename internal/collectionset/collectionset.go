// Package collectionset implements collection-set finalization (§4.4):
// the young-part time budget, marking- and retained-candidate selection,
// and the optional-increment finalize/abandon paths that run against the
// candidates collaborator declared in policy.Candidates (§3.6).
package collectionset

import (
	"math"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

// Params collects the tunables §4.4.2/§4.4.3 derive their thresholds from.
type Params struct {
	MixedGCCountTarget        int
	CommittedRegions          int
	OldCSetThresholdPercent   int
	OptionalPredictionFraction float64
	MaxTimeForRetainingMs     float64
	NumCollectionsKeepPinned  int
}

// RemSetIndex resolves a region's remembered set for the pinned-drop path
// in §4.4.3 ("their RS is cleared (only-cardset)").
type RemSetIndex interface {
	RemSetFor(region heapmodel.RegionIdx) (*remset.RemSet, bool)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}

	return int(math.Ceil(float64(a) / float64(b)))
}

// Result is the outcome of one finalize_cset pass: the regions added
// unconditionally plus the regions queued as optional evacuation work.
type Result struct {
	InitialOld  []heapmodel.RegionIdx
	OptionalOld []heapmodel.RegionIdx
	RemainingMs float64
}
