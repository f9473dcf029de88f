package scanroots

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/remset"
)

func TestHumongousGroupRegionsStartsFirst(t *testing.T) {
	group := HumongousGroup{Start: 3, Continuations: []heapmodel.RegionIdx{4, 5}}

	assert.Equal(t, []heapmodel.RegionIdx{3, 4, 5}, group.Regions())
}

func TestClearHumongousGroupClearsStartAndContinuations(t *testing.T) {
	shape := testShape()
	cfg := testCardsetConfig(shape)

	start := remset.New(3, cfg)
	start.SetStateComplete()
	start.AddReference(0, 1, 0)

	cont := remset.New(4, cfg)
	cont.SetStateComplete()
	cont.AddReference(0, 2, 0)

	rsIdx := fakeRemSets{3: start, 4: cont}
	group := HumongousGroup{Start: 3, Continuations: []heapmodel.RegionIdx{4}}

	ClearHumongousGroup(group, rsIdx, false, false)

	assert.Equal(t, remset.Untracked, start.State())
	assert.False(t, start.ContainsReference(0, 1))
	assert.Equal(t, remset.Untracked, cont.State())
	assert.False(t, cont.ContainsReference(0, 2))
}

func TestClearHumongousGroupKeepTrackedOnlyCardSet(t *testing.T) {
	shape := testShape()
	cfg := testCardsetConfig(shape)

	start := remset.New(3, cfg)
	start.SetStateComplete()
	start.AddReference(0, 1, 0)
	start.AddCodeRoot(remset.CodeRoot{Token: 0xfeed})

	rsIdx := fakeRemSets{3: start}
	group := HumongousGroup{Start: 3}

	ClearHumongousGroup(group, rsIdx, true, true)

	assert.Equal(t, remset.Complete, start.State())
	assert.False(t, start.ContainsReference(0, 1))
	assert.Len(t, start.codeRoots, 1)
}

func TestClearHumongousGroupSkipsMissingRegions(t *testing.T) {
	rsIdx := fakeRemSets{}
	group := HumongousGroup{Start: 9, Continuations: []heapmodel.RegionIdx{10}}

	assert.NotPanics(t, func() {
		ClearHumongousGroup(group, rsIdx, false, false)
	})
}
