package heapmodel

import "sync/atomic"

// ClaimTable is the reusable claim-array abstraction behind both the
// refinement sweep's per-region claim array (§3.4) and the merge/scan
// pass's per-region card-table claim array (§3.5). OpenJDK's
// g1CardTableClaimTable.cpp factors the same atomic fetch-add logic out
// from both call sites instead of duplicating it; we follow suit
// (SPEC_FULL.md "Supplemented features").
type ClaimTable struct {
	claimed   []atomic.Uint32
	chunkSize uint32
	limit     uint32
}

// NewClaimTable allocates a claim array for numRegions regions, each with
// `limit` claimable units (typically CardsPerRegion), claimed in chunks
// of chunkSize.
func NewClaimTable(numRegions int, limit, chunkSize uint32) *ClaimTable {
	if chunkSize == 0 {
		chunkSize = 1
	}

	return &ClaimTable{
		claimed:   make([]atomic.Uint32, numRegions),
		chunkSize: chunkSize,
		limit:     limit,
	}
}

// Reset marks region as fully unclaimed (eligible for (re-)processing).
func (c *ClaimTable) Reset(region RegionIdx) {
	c.claimed[region].Store(0)
}

// Saturate marks region as fully claimed (skip entirely), used for free
// regions during SnapshotHeap (§4.2.2).
func (c *ClaimTable) Saturate(region RegionIdx) {
	c.claimed[region].Store(c.limit)
}

// ClaimChunk atomically claims the next chunk of units in region. It
// returns (start, end, ok); ok is false once the region is exhausted.
func (c *ClaimTable) ClaimChunk(region RegionIdx) (start, end uint32, ok bool) {
	for {
		cur := c.claimed[region].Load()
		if cur >= c.limit {
			return 0, 0, false
		}

		next := cur + c.chunkSize
		if next > c.limit {
			next = c.limit
		}

		if c.claimed[region].CompareAndSwap(cur, next) {
			return cur, next, true
		}
	}
}

// ClaimAll claims every remaining unit of region in one step, the
// young-region fast path (§4.2.2 "Young regions are a special case").
func (c *ClaimTable) ClaimAll(region RegionIdx) (start, end uint32, ok bool) {
	for {
		cur := c.claimed[region].Load()
		if cur >= c.limit {
			return 0, 0, false
		}

		if c.claimed[region].CompareAndSwap(cur, c.limit) {
			return cur, c.limit, true
		}
	}
}

// Progress reports the current claim position of region (for diagnostics).
func (c *ClaimTable) Progress(region RegionIdx) uint32 {
	return c.claimed[region].Load()
}

// Exhausted reports whether region has no remaining claimable units.
func (c *ClaimTable) Exhausted(region RegionIdx) bool {
	return c.claimed[region].Load() >= c.limit
}
