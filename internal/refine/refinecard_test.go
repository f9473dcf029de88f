package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

func testContext(shape *heapmodel.Shape) (*Context, *fakeHeap, *fakeRemSetIndex, *fakeClassifier) {
	heap := newFakeHeap(shape)
	rsIdx := newFakeRemSetIndex()
	cls := newFakeClassifier()

	ctx := &Context{
		Shape:      shape,
		Heap:       heap,
		RemSets:    rsIdx,
		Classifier: cls,
	}

	return ctx, heap, rsIdx, cls
}

func TestRefineCardNoCrossRegion(t *testing.T) {
	shape := testShape()
	ctx, heap, _, _ := testContext(shape)

	region := heapmodel.RegionIdx(0)
	base := shape.CardAddr(region, 0)

	heap.regions[region] = &fakeRegion{
		index: region,
		top:   base + heapmodel.Addr(shape.CardSizeBytes),
		targets: []heapmodel.Addr{
			base + 8, // still inside region 0
		},
	}

	result := RefineCard(ctx, &Worker{}, region, 0)
	assert.Equal(t, NoCrossRegion, result)
}

func TestRefineCardHasRefToOld(t *testing.T) {
	shape := testShape()
	ctx, heap, rsIdx, cls := testContext(shape)

	region := heapmodel.RegionIdx(0)
	target := heapmodel.RegionIdx(1)
	base := shape.CardAddr(region, 0)
	targetAddr := shape.CardAddr(target, 5)

	heap.regions[region] = &fakeRegion{
		index:   region,
		top:     base + heapmodel.Addr(shape.CardSizeBytes),
		targets: []heapmodel.Addr{targetAddr},
	}

	rs := remset.New(target, testCardsetConfig(shape))
	rs.SetStateComplete()
	rsIdx.sets[target] = rs
	cls.old[target] = true

	result := RefineCard(ctx, &Worker{}, region, 0)
	require.Equal(t, HasRefToOld, result)
	assert.True(t, rs.ContainsReference(shape.Split(shape.CardOf(targetAddr))))
}

func TestRefineCardHasRefToCSet(t *testing.T) {
	shape := testShape()
	ctx, heap, rsIdx, cls := testContext(shape)

	region := heapmodel.RegionIdx(0)
	target := heapmodel.RegionIdx(2)
	base := shape.CardAddr(region, 0)
	targetAddr := shape.CardAddr(target, 9)

	heap.regions[region] = &fakeRegion{
		index:   region,
		top:     base + heapmodel.Addr(shape.CardSizeBytes),
		targets: []heapmodel.Addr{targetAddr},
	}

	rs := remset.New(target, testCardsetConfig(shape))
	rs.SetStateUpdating()
	rsIdx.sets[target] = rs
	cls.cset[target] = true
	cls.old[target] = true // a cset region is also old; cset must win

	result := RefineCard(ctx, &Worker{}, region, 0)
	assert.Equal(t, HasRefToCSet, result)
}

func TestRefineCardSkipsUntrackedTarget(t *testing.T) {
	shape := testShape()
	ctx, heap, rsIdx, cls := testContext(shape)

	region := heapmodel.RegionIdx(0)
	target := heapmodel.RegionIdx(1)
	base := shape.CardAddr(region, 0)
	targetAddr := shape.CardAddr(target, 5)

	heap.regions[region] = &fakeRegion{
		index:   region,
		top:     base + heapmodel.Addr(shape.CardSizeBytes),
		targets: []heapmodel.Addr{targetAddr},
	}

	rs := remset.New(target, testCardsetConfig(shape)) // left Untracked
	rsIdx.sets[target] = rs
	cls.old[target] = true

	result := RefineCard(ctx, &Worker{}, region, 0)
	assert.Equal(t, NoCrossRegion, result)
	assert.Equal(t, uint64(0), rs.NumOccupied())
}

func TestRefineCardCouldNotParse(t *testing.T) {
	shape := testShape()
	ctx, heap, _, _ := testContext(shape)

	region := heapmodel.RegionIdx(0)
	base := shape.CardAddr(region, 0)

	heap.regions[region] = &fakeRegion{
		index:   region,
		top:     base + heapmodel.Addr(shape.CardSizeBytes),
		failErr: errUnparsable,
	}

	result := RefineCard(ctx, &Worker{}, region, 0)
	assert.Equal(t, CouldNotParse, result)
}

func TestRefineCardRegionNotFound(t *testing.T) {
	shape := testShape()
	ctx, _, _, _ := testContext(shape)

	result := RefineCard(ctx, &Worker{}, heapmodel.RegionIdx(0), 0)
	assert.Equal(t, CouldNotParse, result)
}
