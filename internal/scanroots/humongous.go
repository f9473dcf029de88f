package scanroots

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

// HumongousGroup is a humongous object's start region plus its
// continuation regions (§9): the pair (or run) is reclaimed as one unit,
// so clearing one half's remembered set without the other would leave a
// continuation region's card-set dangling against a start region that no
// longer tracks it. Grouping them here makes that eager-reclaim contract
// explicit instead of relying on every caller to remember to clear both.
type HumongousGroup struct {
	Start         heapmodel.RegionIdx
	Continuations []heapmodel.RegionIdx
}

// Regions returns every region index in the group, start first.
func (g HumongousGroup) Regions() []heapmodel.RegionIdx {
	out := make([]heapmodel.RegionIdx, 0, 1+len(g.Continuations))
	out = append(out, g.Start)

	return append(out, g.Continuations...)
}

// ClearHumongousGroup implements the eager-reclaim contract resolved in
// DESIGN.md's Open Questions: a reclaimed humongous object's start region
// and every continuation region are treated as a single unit and have
// their card-set containers flushed together. onlyCardSet and
// keepTracked forward to remset.RemSet.Clear unchanged, so a caller can
// still express "drop card data but keep the region tracked" for the
// whole group the same way it would for a single region.
func ClearHumongousGroup(group HumongousGroup, remsets RemSetIndex, onlyCardSet, keepTracked bool) {
	for _, region := range group.Regions() {
		rs, ok := remsets.RemSetFor(region)
		if !ok {
			continue
		}

		rs.Clear(onlyCardSet, keepTracked)
	}
}
