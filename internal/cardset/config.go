package cardset

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

// Config bundles every size/threshold parameter the container hierarchy
// needs (§4.1.2, §4.1.4, §6.3 tunables RemSetArrayOfCardsEntries /
// RemSetHowlNumBuckets / RemSetCoarsenHowlBitmapToHowlFullPercent /
// RemSetCoarsenHowlToFullPercent).
type Config struct {
	Shape *heapmodel.Shape

	MaxCardsInArray int // RemSetArrayOfCardsEntries
	NumBucketsUpper int // RemSetHowlNumBuckets, upper bound

	CoarsenHowlBitmapToFullPercent int // RemSetCoarsenHowlBitmapToHowlFullPercent
	CoarsenHowlToFullPercent       int // RemSetCoarsenHowlToFullPercent

	// derived
	inlineLayout       InlineLayout
	numBucketsInHowl   int
	cardsPerBucket     uint32
	log2CardsPerBucket uint
	howlToFullThresh   int // cards_in_howl_threshold
	bitmapToFullThresh int // cards_in_howl_bitmap_threshold

	arenaInitialChunk int
	arenaMaxChunk     int
}

// Derive fills in every field computed from the raw config (§4.1.2
// "num_buckets_in_howl is derived once at initialization").
func (c *Config) Derive() {
	cardsPerRegion := c.Shape.CardsPerCardRegion // container addresses within one card-region

	bitsPerCard := bitsToRepresent(int(cardsPerRegion) - 1)
	if bitsPerCard < 1 {
		bitsPerCard = 1
	}

	c.inlineLayout = NewInlineLayout(bitsPerCard)

	// "allocate at most half the memory of a whole-region bitmap to
	// Arrays, round the result down to the next power of two, clamp to
	// the upper bound" (§4.1.2).
	wholeRegionBitmapBytes := (cardsPerRegion + 7) / 8
	arrayBudgetBytes := wholeRegionBitmapBytes / 2

	entrySize := uint32(4) // smallest type holding CardsPerRegionLimit values, uint32 here
	maxBuckets := int(arrayBudgetBytes / entrySize)
	maxBuckets = floorPow2(maxBuckets)

	if maxBuckets < 1 {
		maxBuckets = 1
	}

	if maxBuckets > c.NumBucketsUpper {
		maxBuckets = floorPow2(c.NumBucketsUpper)
	}

	c.numBucketsInHowl = maxBuckets

	c.cardsPerBucket = cardsPerRegion / uint32(maxBuckets)
	if c.cardsPerBucket == 0 {
		c.cardsPerBucket = 1
	}

	c.log2CardsPerBucket = uint(bitsToRepresent(int(c.cardsPerBucket) - 1))

	c.howlToFullThresh = int(cardsPerRegion) * c.CoarsenHowlToFullPercent / 100
	c.bitmapToFullThresh = int(c.cardsPerBucket) * c.CoarsenHowlBitmapToFullPercent / 100

	if c.arenaInitialChunk == 0 {
		c.arenaInitialChunk = 64
	}

	if c.arenaMaxChunk == 0 {
		c.arenaMaxChunk = 4096
	}
}

func floorPow2(v int) int {
	if v <= 0 {
		return 1
	}

	p := 1
	for p*2 <= v {
		p *= 2
	}

	return p
}
