// Command heapkeeper-sim drives one simulated GC pause end to end against
// a synthetic heap: concurrent refinement, merge-and-scan heap roots, and
// collection-set finalization, logging each phase the way the real
// subsystem would. It exists to exercise the wiring between packages,
// not to model real mutator allocation behavior.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/orizon-lang/heapkeeper/internal/cardset"
	"github.com/orizon-lang/heapkeeper/internal/collectionset"
	"github.com/orizon-lang/heapkeeper/internal/config"
	"github.com/orizon-lang/heapkeeper/internal/gclog"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/refine"
	"github.com/orizon-lang/heapkeeper/internal/remset"
	"github.com/orizon-lang/heapkeeper/internal/scanroots"
)

func main() {
	var (
		configPath     string
		numRegions     int
		numCSetRegions int
		crossRefs      int
		chunkSize      int
		workers        int
		seed           int64
	)

	flag.StringVar(&configPath, "config", "", "tunables JSON file (optional; defaults used if empty)")
	flag.IntVar(&numRegions, "regions", 64, "number of committed regions in the synthetic heap")
	flag.IntVar(&numCSetRegions, "cset-regions", 8, "number of regions treated as the collection set")
	flag.IntVar(&crossRefs, "cross-refs", 4, "cross-region references generated per non-cset region")
	flag.IntVar(&chunkSize, "chunk-size", 64, "cards claimed per worker chunk")
	flag.IntVar(&workers, "workers", 4, "worker count for sweep and scan")
	flag.Int64Var(&seed, "seed", 1, "synthetic heap random seed")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "heapkeeper-sim: logger init failed:", err)
		os.Exit(1)
	}

	gclog.Set(logger)
	defer gclog.Sync() //nolint:errcheck

	tunables := config.Defaults()

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			gclog.Error("config load failed", zap.Error(err))
			os.Exit(1)
		}

		tunables = loaded
	}

	run(tunables, numRegions, numCSetRegions, crossRefs, uint32(chunkSize), workers, seed)
}

func run(tunables config.Tunables, numRegions, numCSetRegions, crossRefs int, chunkSize uint32, workers int, seed int64) {
	shape, err := heapmodel.NewShape(1<<21, 512, 1<<16)
	if err != nil {
		gclog.Error("shape construction failed", zap.Error(err))
		os.Exit(1)
	}

	heap, csetRegions := newSyntheticHeap(shape, numRegions, numCSetRegions, crossRefs, seed)

	cfg := cardset.Config{
		Shape:                          shape,
		MaxCardsInArray:                tunables.RemSetArrayOfCardsEntries,
		NumBucketsUpper:                tunables.RemSetHowlNumBuckets,
		CoarsenHowlBitmapToFullPercent: tunables.RemSetCoarsenHowlBitmapToHowlFullPercent,
		CoarsenHowlToFullPercent:       tunables.RemSetCoarsenHowlToFullPercent,
	}

	remsets := &syntheticRemSets{sets: make(map[heapmodel.RegionIdx]*remset.RemSet, numRegions)}
	for i := 0; i < numRegions; i++ {
		rs := remset.New(heapmodel.RegionIdx(i), cfg)
		rs.SetStateComplete()
		remsets.sets[heapmodel.RegionIdx(i)] = rs
	}

	classifier := &syntheticClassifier{cset: make(map[heapmodel.RegionIdx]bool, len(csetRegions))}
	for _, r := range csetRegions {
		classifier.cset[r] = true
	}

	tables := refine.NewTables(shape, numRegions)

	refineCtx := &refine.Context{
		Shape:      shape,
		Heap:       heap,
		RemSets:    remsets,
		Classifier: classifier,
	}

	pipeline := refine.NewPipeline(tables, numRegions, chunkSize, refineCtx)

	pipeline.DoSwapGlobalCT(func() {})
	pipeline.DoSwapJavaThreadsCT(func() {})
	pipeline.DoSynchronizeGCThreads(func() {})

	statuses := make([]refine.RegionStatus, numRegions)
	for i := range statuses {
		statuses[i] = refine.RegionOld
	}

	pipeline.DoSnapshotHeap(statuses)

	completed := pipeline.DoSweepRT(workers, func() bool { return false })
	snap := pipeline.DoCompleteRefineWork()

	gclog.Info("concurrent refinement finished",
		zap.Bool("completed", completed),
		zap.Uint64("cards_scanned", snap.CardsScanned),
		zap.Uint64("refer_to_cset", snap.ReferToCSet),
		zap.Uint64("refer_to_old", snap.ReferToOld))

	kinds := make([]scanroots.RegionKind, numRegions)
	tops := make([]heapmodel.Addr, numRegions)

	for i := 0; i < numRegions; i++ {
		idx := heapmodel.RegionIdx(i)
		if classifier.cset[idx] {
			kinds[i] = scanroots.RegionCollectionSet
		} else {
			kinds[i] = scanroots.RegionOld
		}

		r, _ := heap.RegionByIndex(idx)
		tops[i] = r.Top()
	}

	state := scanroots.NewState(shape, numRegions, chunkSize, tables)
	state.Prepare(kinds, tops)
	state.MergeRefinementTable(pipeline.ClaimTable(), kinds)
	state.MergeRemSets(csetRegions, remsets)

	queue := &syntheticQueue{}
	if err := state.ParallelCardScan(heap, classifier, queue, workers); err != nil {
		gclog.Error("parallel card scan failed", zap.Error(err))
	}

	scanSnap := state.Stats.Snapshot()
	gclog.Info("merge-and-scan heap roots finished",
		zap.Uint64("scanned_cards", scanSnap.ScannedCards),
		zap.Uint64("roots_found", scanSnap.RootsFound),
		zap.Int("enqueued", queue.enqueued))

	state.Cleanup()

	predictor := &flatRatePredictor{regionMs: 0.5, cardMergeMs: 1, timeUntilGC: 200}

	markingPoolSize := numRegions - len(csetRegions)
	if markingPoolSize > 16 {
		markingPoolSize = 16
	}

	markingCandidates := make([]heapmodel.RegionIdx, 0, markingPoolSize)
	for i := len(csetRegions); i < len(csetRegions)+markingPoolSize; i++ {
		markingCandidates = append(markingCandidates, heapmodel.RegionIdx(i))
	}

	cands := &simpleCandidates{marking: newMarkingCandidates(markingCandidates)}

	params := collectionset.Params{
		MixedGCCountTarget:         tunables.MixedGCCountTarget,
		CommittedRegions:           numRegions,
		OldCSetThresholdPercent:    tunables.OldCSetRegionThresholdPercent,
		OptionalPredictionFraction: 0.5,
		MaxTimeForRetainingMs:      5,
		NumCollectionsKeepPinned:   tunables.NumCollectionsKeepPinned,
	}

	remainingMs := collectionset.YoungPartBudget(predictor, 50, 0, nil, nil)
	result := collectionset.SelectMarkingCandidates(cands, predictor, heap, params, remainingMs)

	gclog.Info("collection-set finalized",
		zap.Int("initial_old", len(result.InitialOld)),
		zap.Int("optional_old", len(result.OptionalOld)),
		zap.Float64("remaining_ms", result.RemainingMs))
}
