package scanroots

import (
	"encoding/binary"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
	"github.com/orizon-lang/heapkeeper/internal/policy"
	"github.com/orizon-lang/heapkeeper/internal/refine"
)

const wordSize = 8

func broadcast(b byte) uint64 { return 0x0101010101010101 * uint64(b) }

// hasZeroByteMask sets the top bit of every lane of v that was zero,
// the standard SWAR has-zero-byte test.
func hasZeroByteMask(v uint64) uint64 {
	return (v - 0x0101010101010101) & ^v & 0x8080808080808080
}

const allLanesFlagged = 0x8080808080808080

// wordAllUninteresting reports whether every byte packed into word is
// either Clean or Scanned, the bitwise expanded-mask trick from §4.3.2
// Phase 3 step 3, used to skip an aligned run of 8 cards with one
// comparison instead of 8.
func wordAllUninteresting(word uint64) bool {
	cleanFlags := hasZeroByteMask(word ^ broadcast(refine.Clean))
	scannedFlags := hasZeroByteMask(word ^ broadcast(refine.Scanned))

	return cleanFlags|scannedFlags == allLanesFlagged
}

// ParallelCardScan is Phase 3 (§4.3.2): workers claim chunks of cards
// per region from s.claims, skip clean/scanned runs a word at a time,
// and for each remaining dirty run re-scan the covered heap-address
// range for references into the collection set.
func (s *State) ParallelCardScan(heap policy.Heap, classifier refine.RegionClassifier, queue EvacuationQueue, numWorkers int) error {
	regions := s.nextDirtyRegions.Snapshot()

	var g errgroup.Group

	for w := 0; w < numWorkers; w++ {
		worker := w

		g.Go(func() error {
			return s.scanWorker(worker, numWorkers, regions, heap, classifier, queue)
		})
	}

	return g.Wait()
}

func (s *State) scanWorker(workerOffset, numWorkers int, regions []heapmodel.RegionIdx, heap policy.Heap, classifier refine.RegionClassifier, queue EvacuationQueue) error {
	for i := workerOffset; i < len(regions); i += numWorkers {
		region := regions[i]

		scanTop, ok := s.ScanTop(region)
		if !ok {
			continue
		}

		for {
			start, end, ok := s.claims.ClaimChunk(region)
			if !ok {
				break
			}

			s.Stats.Chunks.Add(1)

			s.scanChunk(region, start, end, scanTop, heap, classifier, queue)
		}
	}

	return nil
}

func (s *State) scanChunk(region heapmodel.RegionIdx, start, end uint32, scanTop heapmodel.Addr, heap policy.Heap, classifier refine.RegionClassifier, queue EvacuationQueue) {
	ct := s.tables.RegionCT(region)

	i := start
	for i < end {
		// Fast-skip a whole aligned word of cards when none are dirty.
		if i+wordSize <= end && i%wordSize == 0 {
			word := binary.LittleEndian.Uint64(ct[i : i+wordSize])
			if wordAllUninteresting(word) {
				i += wordSize
				continue
			}
		}

		if ct[i] == refine.Clean || ct[i] == refine.Scanned {
			i++
			continue
		}

		runStart := i
		for i < end && ct[i] != refine.Clean && ct[i] != refine.Scanned {
			i++
		}

		runEnd := i
		s.scanRun(region, runStart, runEnd, scanTop, heap, classifier, queue)
	}
}

// scanRun marks a contiguous dirty run Scanned and re-scans its
// corresponding heap-address range, clamped to scanTop.
func (s *State) scanRun(region heapmodel.RegionIdx, runStart, runEnd uint32, scanTop heapmodel.Addr, heap policy.Heap, classifier refine.RegionClassifier, queue EvacuationQueue) {
	s.Stats.Blocks.Add(1)

	ct := s.tables.RegionCT(region)
	for i := runStart; i < runEnd; i++ {
		ct[i] = refine.Scanned
	}

	s.Stats.PendingCards.Add(uint64(runEnd - runStart))

	addrStart := s.shape.CardAddr(region, heapmodel.CardIdx(runStart))
	addrEnd := s.shape.CardAddr(region, heapmodel.CardIdx(runEnd))

	if addrEnd > scanTop {
		addrEnd = scanTop
	}

	if addrEnd <= addrStart {
		return
	}

	r, ok := heap.RegionContaining(addrStart)
	if !ok {
		return
	}

	found := false

	err := r.IterateObjectsInRange(policy.RegionRange{Start: addrStart, End: addrEnd}, func(from, target heapmodel.Addr) {
		targetRegion := s.shape.RegionOf(target)
		if targetRegion == region {
			return
		}

		if !classifier.IsCollectionSet(targetRegion) {
			return
		}

		found = true

		s.Stats.RootsFound.Add(1)

		if queue != nil {
			queue.EnqueueForCopying(from, target)
		}
	})

	s.Stats.ScannedCards.Add(uint64(runEnd - runStart))

	if err != nil || !found {
		s.Stats.EmptyCards.Add(uint64(runEnd - runStart))
	}
}
