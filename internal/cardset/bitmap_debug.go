package cardset

import "github.com/bits-and-blooms/bitset"

// DebugBitset renders a bucket's bitmap container as a growable
// general-purpose bitset for logging/diagnostic dumps (gclog). This is
// the one place this package reaches for an external bitset type rather
// than its own fixed-word slab: the slab backing a live bucket must stay
// arena-owned and fixed-capacity (§4.1.2), but a detached diagnostic
// snapshot has none of those constraints and benefits from the package's
// String()/union helpers when comparing dumps across GC cycles.
func (b *bitmapNode) DebugBitset() *bitset.BitSet {
	bs := bitset.New(uint(b.numBitCap))

	b.Iterate(func(card uint32) {
		bs.Set(uint(card))
	})

	return bs
}
