package scanroots

import "github.com/orizon-lang/heapkeeper/internal/heapmodel"

func testShape() *heapmodel.Shape {
	shape, err := heapmodel.NewShape(1<<20, 512, 1<<20)
	if err != nil {
		panic(err)
	}

	return shape
}

func testKinds(n int, special map[int]RegionKind) []RegionKind {
	kinds := make([]RegionKind, n)
	for i := range kinds {
		kinds[i] = RegionOld
	}

	for i, k := range special {
		kinds[i] = k
	}

	return kinds
}
