package scanroots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/heapkeeper/internal/cardset"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/refine"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

func testCardsetConfig(shape *heapmodel.Shape) cardset.Config {
	return cardset.Config{
		Shape:                          shape,
		MaxCardsInArray:                8,
		NumBucketsUpper:                8,
		CoarsenHowlBitmapToFullPercent: 78,
		CoarsenHowlToFullPercent:       78,
	}
}

func TestPrepareSetsScanTop(t *testing.T) {
	shape := testShape()
	tabs := refine.NewTables(shape, 3)
	st := NewState(shape, 3, 64, tabs)

	kinds := testKinds(3, map[int]RegionKind{1: RegionCollectionSet, 2: RegionYoung})
	tops := []heapmodel.Addr{100, 200, 300}

	st.Prepare(kinds, tops)

	top, ok := st.ScanTop(0)
	assert.True(t, ok)
	assert.Equal(t, heapmodel.Addr(100), top)

	_, ok = st.ScanTop(1)
	assert.False(t, ok)

	_, ok = st.ScanTop(2)
	assert.False(t, ok)
}

func TestMergeRefinementTableClearsCSetAndYoung(t *testing.T) {
	shape := testShape()
	tabs := refine.NewTables(shape, 2)
	st := NewState(shape, 2, 64, tabs)

	tabs.SetCT(0, 5, refine.Dirty)
	tabs.SetRT(0, 5, refine.Dirty)

	kinds := testKinds(2, map[int]RegionKind{0: RegionCollectionSet})

	st.MergeRefinementTable(nil, kinds)

	assert.Equal(t, refine.Clean, tabs.CT(0, 5))
	assert.Equal(t, refine.Clean, tabs.RT(0, 5))
}

func TestMergeRefinementTableFoldsWhenClaimsUnfinished(t *testing.T) {
	shape := testShape()
	tabs := refine.NewTables(shape, 1)
	st := NewState(shape, 1, 64, tabs)

	tabs.SetCT(0, 5, refine.Clean)
	tabs.SetRT(0, 5, refine.Dirty)

	claims := heapmodel.NewClaimTable(1, shape.CardsPerRegion, 64)
	// region 0 left at progress 0: Exhausted() is false, so the merge runs.

	st.MergeRefinementTable(claims, testKinds(1, nil))

	assert.Equal(t, refine.Dirty, tabs.CT(0, 5))
	assert.Equal(t, refine.Clean, tabs.RT(0, 5))
}

func TestMergeRefinementTableSkipsExhaustedRegion(t *testing.T) {
	shape := testShape()
	tabs := refine.NewTables(shape, 1)
	st := NewState(shape, 1, 64, tabs)

	tabs.SetCT(0, 5, refine.Clean)
	tabs.SetRT(0, 5, refine.Dirty)

	claims := heapmodel.NewClaimTable(1, shape.CardsPerRegion, 64)
	claims.Saturate(0)

	st.MergeRefinementTable(claims, testKinds(1, nil))

	assert.Equal(t, refine.Clean, tabs.CT(0, 5))
	assert.Equal(t, refine.Dirty, tabs.RT(0, 5))
}

func TestMergeRemSetsWritesFromRemSet(t *testing.T) {
	shape := testShape()
	tabs := refine.NewTables(shape, 2)
	st := NewState(shape, 2, 64, tabs)

	cfg := testCardsetConfig(shape)
	rs := remset.New(1, cfg)
	rs.SetStateComplete()
	rs.AddReference(0, 17, 0)

	rsIdx := fakeRemSets{1: rs}

	st.MergeRemSets([]heapmodel.RegionIdx{1}, rsIdx)

	assert.Equal(t, refine.FromRemSet, tabs.CT(1, 17))
}

func TestMergeRemSetsDoesNotOverwriteScanned(t *testing.T) {
	shape := testShape()
	tabs := refine.NewTables(shape, 2)
	st := NewState(shape, 2, 64, tabs)

	cfg := testCardsetConfig(shape)
	rs := remset.New(1, cfg)
	rs.SetStateComplete()
	rs.AddReference(0, 17, 0)

	tabs.SetCT(1, 17, refine.Scanned)

	rsIdx := fakeRemSets{1: rs}
	st.MergeRemSets([]heapmodel.RegionIdx{1}, rsIdx)

	require.Equal(t, refine.Scanned, tabs.CT(1, 17))
}

type fakeRemSets map[heapmodel.RegionIdx]*remset.RemSet

func (f fakeRemSets) RemSetFor(region heapmodel.RegionIdx) (*remset.RemSet, bool) {
	rs, ok := f[region]
	return rs, ok
}
