package cardset

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
)

const region0 = heapmodel.CardRegionIdx(0)

func testShape(t *testing.T) *heapmodel.Shape {
	t.Helper()

	shape, err := heapmodel.NewShape(1<<20, 512, 1<<20)
	require.NoError(t, err)
	require.Equal(t, uint32(2048), shape.CardsPerCardRegion)

	return shape
}

// testCardSet builds a set matching the literal scenario parameters used
// throughout this file's tests: 2048 cards/region, max_cards_in_array=8,
// 8 Howl buckets of 256 cards each, Howl->Full at 1600, Bitmap->Full at
// 200. The percent-based thresholds Derive() computes are overridden
// directly since integer percent rounding can't hit these exact figures.
func testCardSet(t *testing.T) *CardSet {
	t.Helper()

	cfg := Config{
		Shape:                          testShape(t),
		MaxCardsInArray:                8,
		NumBucketsUpper:                8,
		CoarsenHowlBitmapToFullPercent: 78,
		CoarsenHowlToFullPercent:       78,
	}

	cs := NewCardSet(cfg)
	require.Equal(t, 8, cs.cfg.numBucketsInHowl)
	require.Equal(t, uint32(256), cs.cfg.cardsPerBucket)

	cs.cfg.howlToFullThresh = 1600
	cs.cfg.bitmapToFullThresh = 200

	return cs
}

type collector struct {
	mu     sync.Mutex
	cards  []uint32
	ranges [][2]uint32
}

func (c *collector) StartIterate(Tag) bool { return true }

func (c *collector) DoCard(idx uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cards = append(c.cards, idx)
}

func (c *collector) DoCardRange(start, length uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ranges = append(c.ranges, [2]uint32{start, length})
}

// S1: a handful of cards never leave the Inline representation.
func TestS1InlineStaysInline(t *testing.T) {
	cs := testCardSet(t)

	for _, c := range []uint32{5, 12, 77, 1020} {
		assert.Equal(t, Added, cs.AddCard(region0, c))
	}

	e := cs.table.Get(0)
	require.NotNil(t, e)
	assert.Equal(t, TagInline, Ref(e.ref.Load()).Tag())

	assert.True(t, cs.ContainsCard(region0, 77))
	assert.False(t, cs.ContainsCard(region0, 78))
	assert.Equal(t, uint64(4), cs.NumOccupied())
}

// S2: cards 0..10 walk Inline -> Array -> Howl, and nothing is lost along
// the way.
func TestS2InlineArrayHowl(t *testing.T) {
	cs := testCardSet(t)

	for c := uint32(0); c <= 10; c++ {
		require.Equal(t, Added, cs.AddCard(region0, c))
	}

	e := cs.table.Get(0)
	require.NotNil(t, e)
	assert.Equal(t, TagHowl, Ref(e.ref.Load()).Tag())
	assert.Equal(t, uint64(11), cs.NumOccupied())

	var v collector

	cs.IterateContainers(region0, &v)
	assert.ElementsMatch(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, v.cards)

	attempts := map[TransitionKind]uint64{}
	for _, s := range cs.Stats() {
		attempts[s.Kind] = s.Attempts
	}

	assert.Equal(t, uint64(1), attempts[TransitionInlineToArray])
	assert.Equal(t, uint64(1), attempts[TransitionArrayToHowl])
}

// S3: saturating a single bucket coarsens it to Bitmap then Full, and the
// compensated occupancy always lands on exactly the bucket's capacity.
func TestS3BucketBitmapToFull(t *testing.T) {
	cs := testCardSet(t)

	for c := uint32(0); c < 201; c++ {
		cs.AddCard(region0, c)
	}

	e := cs.table.Get(0)
	require.Equal(t, TagHowl, Ref(e.ref.Load()).Tag())

	howl := cs.howls.At(Ref(e.ref.Load()).slotIndex())
	bucketIdx, _ := howl.bucketOf(0)
	assert.True(t, howl.loadBucket(bucketIdx).IsFull())

	assert.Equal(t, uint64(256), cs.NumOccupied())

	var v collector

	cs.IterateContainers(region0, &v)
	assert.Len(t, v.ranges, 1)
	assert.Equal(t, uint32(256), v.ranges[0][1])
	assert.Empty(t, v.cards)
}

// S4: once enough cards accumulate, the whole region collapses to Full.
func TestS4FullCollapsesRegion(t *testing.T) {
	cs := testCardSet(t)

	var e *entry

	for c := uint32(0); c < cs.cfg.Shape.CardsPerCardRegion; c++ {
		cs.AddCard(region0, c)

		e = cs.table.Get(0)
		if Ref(e.ref.Load()).IsFull() {
			break
		}
	}

	require.NotNil(t, e)
	require.True(t, Ref(e.ref.Load()).IsFull())

	for _, c := range []uint32{0, 500, 1999, 2047} {
		assert.True(t, cs.ContainsCard(region0, c))
	}

	var v collector

	cs.IterateContainers(region0, &v)
	require.Len(t, v.ranges, 1)
	assert.Equal(t, [2]uint32{0, 2048}, v.ranges[0])
	assert.Empty(t, v.cards)
}

// Property 9: a repeated add is idempotent and bumps occupancy by exactly
// one, not two.
func TestAddCardIdempotent(t *testing.T) {
	cs := testCardSet(t)

	assert.Equal(t, Added, cs.AddCard(region0, 42))
	assert.Equal(t, Found, cs.AddCard(region0, 42))
	assert.Equal(t, uint64(1), cs.NumOccupied())
}

// Property 10: clear() followed by a fresh add reaches every
// representation the test forces it through.
func TestClearThenReadd(t *testing.T) {
	cs := testCardSet(t)

	for c := uint32(0); c < 50; c++ {
		cs.AddCard(region0, c)
	}

	e := cs.table.Get(0)
	require.Equal(t, TagHowl, Ref(e.ref.Load()).Tag())

	cs.Clear()

	assert.Equal(t, uint64(0), cs.NumOccupied())
	assert.False(t, cs.ContainsCard(region0, 3))
	assert.Nil(t, cs.table.Get(0))

	assert.Equal(t, Added, cs.AddCard(region0, 3))
	assert.True(t, cs.ContainsCard(region0, 3))
	assert.Equal(t, uint64(1), cs.NumOccupied())
}

// Property 6: an untracked region (never added-to) retains nothing and
// Clear is a no-op against it.
func TestClearUntrackedRegion(t *testing.T) {
	cs := testCardSet(t)

	cs.Clear()

	assert.Equal(t, uint64(0), cs.NumOccupied())
	assert.False(t, cs.ContainsCard(region0, 0))
}

// Property 11 / S7: concurrent adds of the same card see exactly one
// Added; concurrent adds of distinct cards lose nothing and trigger at
// least one coarsening transition.
func TestConcurrentAddSameCard(t *testing.T) {
	cs := testCardSet(t)

	const workers = 16

	var added atomic.Int64

	var wg sync.WaitGroup

	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			if cs.AddCard(region0, 7) == Added {
				added.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(1), added.Load())
	assert.Equal(t, uint64(1), cs.NumOccupied())
}

func TestConcurrentDistinctCards(t *testing.T) {
	cs := testCardSet(t)

	const (
		workers   = 8
		perWorker = 256 // workers*perWorker == the test region's full 2048-card capacity
	)

	// Every card is distinct and added exactly once, so a call returning
	// Found (rather than Added) only happens once the region has already
	// been compensated to Full, not from a real duplicate or a lost add.
	var wg sync.WaitGroup

	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()

			for i := 0; i < perWorker; i++ {
				card := uint32(w*perWorker + i)
				cs.AddCard(region0, card)
			}
		}(w)
	}

	wg.Wait()

	// 2048 distinct cards comfortably crosses this config's howlToFullThresh
	// (1600), so the region ends up Full and fully compensated.
	assert.Equal(t, uint64(workers*perWorker), cs.NumOccupied())

	e := cs.table.Get(0)
	require.NotNil(t, e)
	assert.True(t, Ref(e.ref.Load()).IsFull())

	for c := uint32(0); c < workers*perWorker; c += 131 {
		assert.True(t, cs.ContainsCard(region0, c))
	}

	sawCoarsen := false

	for _, s := range cs.Stats() {
		if s.Attempts > 0 {
			sawCoarsen = true
			break
		}
	}

	assert.True(t, sawCoarsen, "expected at least one coarsening transition")
}

// S8: concurrent adds racing an Array->Howl coarsen either land on the new
// Howl or retry; no card is lost.
func TestConcurrentAddDuringCoarsen(t *testing.T) {
	cs := testCardSet(t)

	for c := uint32(0); c < 7; c++ {
		require.Equal(t, Added, cs.AddCard(region0, c))
	}

	var wg sync.WaitGroup

	cards := []uint32{100, 200}

	wg.Add(len(cards))

	for _, c := range cards {
		go func(c uint32) {
			defer wg.Done()

			assert.Equal(t, Added, cs.AddCard(region0, c))
		}(c)
	}

	wg.Wait()

	assert.True(t, cs.ContainsCard(region0, 100))
	assert.True(t, cs.ContainsCard(region0, 200))
	assert.Equal(t, uint64(9), cs.NumOccupied())
}
