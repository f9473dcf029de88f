package refine

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

// fromCardCacheSize is the number of direct-mapped slots per worker
// (§4.2.4 "a tiny direct-mapped cache"). A small power of two keeps the
// modulo a mask.
const fromCardCacheSize = 16

type fromCardCacheEntry struct {
	valid  bool
	region heapmodel.RegionIdx
	card   heapmodel.CardIdx
}

// FromCardCache is a per-refinement-worker direct-mapped cache of recently
// added (target region, card index) pairs, consulted before calling
// cardset.AddCard to skip redundant CAS traffic on hot containers.
type FromCardCache struct {
	slots [fromCardCacheSize]fromCardCacheEntry
}

func (c *FromCardCache) index(region heapmodel.RegionIdx, card heapmodel.CardIdx) int {
	return int((uint32(region)*2654435761 + uint32(card)) % fromCardCacheSize)
}

// Seen reports whether (region, card) is the entry currently occupying
// its slot.
func (c *FromCardCache) Seen(region heapmodel.RegionIdx, card heapmodel.CardIdx) bool {
	e := &c.slots[c.index(region, card)]
	return e.valid && e.region == region && e.card == card
}

// Record installs (region, card) into its slot, evicting whatever was
// there.
func (c *FromCardCache) Record(region heapmodel.RegionIdx, card heapmodel.CardIdx) {
	e := &c.slots[c.index(region, card)]
	e.valid = true
	e.region = region
	e.card = card
}
