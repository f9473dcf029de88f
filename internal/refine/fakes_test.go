package refine

import (
	"errors"

	"github.com/orizon-lang/heapkeeper/internal/cardset"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

func testShape() *heapmodel.Shape {
	shape, err := heapmodel.NewShape(1<<20, 512, 1<<20)
	if err != nil {
		panic(err)
	}

	return shape
}

func testCardsetConfig(shape *heapmodel.Shape) cardset.Config {
	return cardset.Config{
		Shape:                          shape,
		MaxCardsInArray:                8,
		NumBucketsUpper:                8,
		CoarsenHowlBitmapToFullPercent: 78,
		CoarsenHowlToFullPercent:       78,
	}
}

// fakeRegion is a minimal policy.Region: a fixed Top and a canned list of
// outgoing references (or a forced parse error) returned by
// IterateObjectsInRange regardless of the requested range.
type fakeRegion struct {
	index   heapmodel.RegionIdx
	top     heapmodel.Addr
	targets []heapmodel.Addr
	failErr error
}

func (r *fakeRegion) Top() heapmodel.Addr        { return r.top }
func (r *fakeRegion) Index() heapmodel.RegionIdx { return r.index }

func (r *fakeRegion) IterateObjectsInRange(span policy.RegionRange, closure policy.ObjectClosure) error {
	if r.failErr != nil {
		return r.failErr
	}

	for _, target := range r.targets {
		closure(span.Start, target)
	}

	return nil
}

var errUnparsable = errors.New("could not locate object start")

type fakeHeap struct {
	shape   *heapmodel.Shape
	regions map[heapmodel.RegionIdx]*fakeRegion
}

func newFakeHeap(shape *heapmodel.Shape) *fakeHeap {
	return &fakeHeap{shape: shape, regions: make(map[heapmodel.RegionIdx]*fakeRegion)}
}

func (h *fakeHeap) RegionContaining(addr heapmodel.Addr) (policy.Region, bool) {
	idx := h.shape.RegionOf(addr)

	r, ok := h.regions[idx]
	if !ok {
		return nil, false
	}

	return r, true
}

type fakeRemSetIndex struct {
	sets map[heapmodel.RegionIdx]*remset.RemSet
}

func newFakeRemSetIndex() *fakeRemSetIndex {
	return &fakeRemSetIndex{sets: make(map[heapmodel.RegionIdx]*remset.RemSet)}
}

func (f *fakeRemSetIndex) RemSetFor(region heapmodel.RegionIdx) (*remset.RemSet, bool) {
	rs, ok := f.sets[region]
	return rs, ok
}

type fakeClassifier struct {
	cset map[heapmodel.RegionIdx]bool
	old  map[heapmodel.RegionIdx]bool
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{cset: make(map[heapmodel.RegionIdx]bool), old: make(map[heapmodel.RegionIdx]bool)}
}

func (c *fakeClassifier) IsCollectionSet(region heapmodel.RegionIdx) bool { return c.cset[region] }
func (c *fakeClassifier) IsOld(region heapmodel.RegionIdx) bool          { return c.old[region] }
