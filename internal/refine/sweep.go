package refine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/heapkeeper/internal/gclog"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
)

// State is a pipeline state (§4.2.2).
type State int32

const (
	Idle State = iota
	SwapGlobalCT
	SwapJavaThreadsCT
	SynchronizeGCThreads
	SnapshotHeap
	SweepRT
	CompleteRefineWork
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SwapGlobalCT:
		return "SwapGlobalCT"
	case SwapJavaThreadsCT:
		return "SwapJavaThreadsCT"
	case SynchronizeGCThreads:
		return "SynchronizeGCThreads"
	case SnapshotHeap:
		return "SnapshotHeap"
	case SweepRT:
		return "SweepRT"
	case CompleteRefineWork:
		return "CompleteRefineWork"
	default:
		return "State(?)"
	}
}

// RegionStatus classifies a region at SnapshotHeap time.
type RegionStatus int

const (
	RegionOld RegionStatus = iota
	RegionYoung
	RegionFree
)

// Stats accumulates SweepRT's per-card outcome counters (§4.2.2,
// "log stats" in CompleteRefineWork). Every field is updated with atomic
// adds, since multiple workers contribute concurrently.
type Stats struct {
	CardsScanned  atomic.Uint64
	ReferToCSet   atomic.Uint64
	AlreadyToCSet atomic.Uint64
	ReferToOld    atomic.Uint64
	NoCrossRegion atomic.Uint64
	NotParsable   atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats, safe to log or compare.
type Snapshot struct {
	CardsScanned  uint64
	ReferToCSet   uint64
	AlreadyToCSet uint64
	ReferToOld    uint64
	NoCrossRegion uint64
	NotParsable   uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		CardsScanned:  s.CardsScanned.Load(),
		ReferToCSet:   s.ReferToCSet.Load(),
		AlreadyToCSet: s.AlreadyToCSet.Load(),
		ReferToOld:    s.ReferToOld.Load(),
		NoCrossRegion: s.NoCrossRegion.Load(),
		NotParsable:   s.NotParsable.Load(),
	}
}

// Pipeline drives the SwapGlobalCT -> ... -> CompleteRefineWork state
// machine (§4.2.2). A single control goroutine is expected to call its
// transition methods in order; SweepRT additionally fans work out across
// a worker pool.
type Pipeline struct {
	state atomic.Int32
	mu    sync.Mutex

	tables    *Tables
	claims    *heapmodel.ClaimTable
	chunkSize uint32
	statuses  []RegionStatus

	ctx *Context

	Stats Stats
}

// NewPipeline builds a pipeline over numRegions regions, claiming SweepRT
// work in chunks of chunkSize cards.
func NewPipeline(tables *Tables, numRegions int, chunkSize uint32, ctx *Context) *Pipeline {
	return &Pipeline{
		tables:    tables,
		claims:    heapmodel.NewClaimTable(numRegions, tables.Shape.CardsPerRegion, chunkSize),
		chunkSize: chunkSize,
		statuses:  make([]RegionStatus, numRegions),
		ctx:       ctx,
	}
}

func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) transition(from, to State) {
	p.state.Store(int32(to))
	gclog.Debug("refine: state transition", zap.String("from", from.String()), zap.String("to", to.String()))
}

// DoSwapGlobalCT atomically swaps the global mutator-write table pointer
// while f (the caller's thread-list-lock critical section) runs.
func (p *Pipeline) DoSwapGlobalCT(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f()
	p.transition(Idle, SwapGlobalCT)
}

// DoSwapJavaThreadsCT runs handshake, the per-Java-thread callback that
// installs the new CT base pointer; it blocks until every thread has
// executed it at a safepoint.
func (p *Pipeline) DoSwapJavaThreadsCT(handshake func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	handshake()
	p.transition(SwapGlobalCT, SwapJavaThreadsCT)
}

// DoSynchronizeGCThreads runs rendezvous, the no-op VM operation that
// fences GC worker threads so they observe the new table pointer.
func (p *Pipeline) DoSynchronizeGCThreads(rendezvous func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rendezvous()
	p.transition(SwapJavaThreadsCT, SynchronizeGCThreads)
}

// DoSnapshotHeap resets every non-free region's claim counter to zero and
// saturates every free region's, fixing the set of regions SweepRT will
// process (§4.2.2). It is the only non-interruptible state, executed
// single-threaded.
func (p *Pipeline) DoSnapshotHeap(statuses []RegionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copy(p.statuses, statuses)

	for i, st := range statuses {
		region := heapmodel.RegionIdx(i)
		if st == RegionFree {
			p.claims.Saturate(region)
		} else {
			p.claims.Reset(region)
		}
	}

	p.transition(SynchronizeGCThreads, SnapshotHeap)
}

// DoSweepRT runs the multi-threaded parallel RT scan (§4.2.2). yield is
// polled between chunks; when it reports true the worker returns having
// finished only complete chunks. completed reports whether every region
// was fully claimed by the time all workers stopped.
func (p *Pipeline) DoSweepRT(numWorkers int, yield func() bool) (completed bool) {
	p.transition(SnapshotHeap, SweepRT)

	var interrupted atomic.Bool

	var g errgroup.Group

	for w := 0; w < numWorkers; w++ {
		worker := &Worker{ID: w}

		g.Go(func() error {
			p.sweepWorker(worker, yield, &interrupted)
			return nil
		})
	}

	_ = g.Wait()

	return !interrupted.Load()
}

func (p *Pipeline) sweepWorker(w *Worker, yield func() bool, interrupted *atomic.Bool) {
	numRegions := len(p.statuses)

	for i := 0; i < numRegions; i++ {
		region := heapmodel.RegionIdx(i)

		if p.statuses[i] == RegionFree {
			continue
		}

		if p.statuses[i] == RegionYoung {
			p.sweepYoungRegion(region)
			continue
		}

		for {
			if yield != nil && yield() {
				interrupted.Store(true)
				return
			}

			start, end, ok := p.claims.ClaimChunk(region)
			if !ok {
				break
			}

			p.sweepChunk(w, region, start, end)
		}
	}
}

// sweepYoungRegion is the §4.2.2 young-region fast path: a single
// claim-all followed by a bulk RT clear, with no per-card refinement
// (young-region cards are never scanned by concurrent refinement; they
// are handled wholesale by the next STW pause).
func (p *Pipeline) sweepYoungRegion(region heapmodel.RegionIdx) {
	if _, _, ok := p.claims.ClaimAll(region); !ok {
		return
	}

	p.tables.ClearRegionRT(region)
}

func (p *Pipeline) sweepChunk(w *Worker, region heapmodel.RegionIdx, start, end uint32) {
	for i := start; i < end; i++ {
		card := heapmodel.CardIdx(i)

		rt := p.tables.RT(region, card)
		if rt == Clean {
			continue
		}

		p.refineOne(w, region, card)
		p.tables.SetRT(region, card, Clean)
	}
}

func (p *Pipeline) refineOne(w *Worker, region heapmodel.RegionIdx, card heapmodel.CardIdx) {
	result := RefineCard(p.ctx, w, region, card)

	p.Stats.CardsScanned.Add(1)

	switch {
	case result == CouldNotParse:
		p.Stats.NotParsable.Add(1)
		// ct[i] is left as-is: the original dirty value stands until a
		// later sweep (or the STW fallback) retries this card.
	case result == HasRefToCSet:
		p.tables.SetCT(region, card, ToCSet)
		p.Stats.ReferToCSet.Add(1)
	case p.tables.CT(region, card) == ToCSet:
		p.tables.SetCT(region, card, ToCSet)
		p.Stats.AlreadyToCSet.Add(1)
	case result == HasRefToOld:
		p.Stats.ReferToOld.Add(1)
	default:
		p.Stats.NoCrossRegion.Add(1)
	}
}

// DoCompleteRefineWork logs accumulated stats and resets the pipeline to
// Idle (§4.2.2).
func (p *Pipeline) DoCompleteRefineWork() Snapshot {
	snap := p.Stats.Snapshot()

	gclog.Info("refine: sweep complete",
		zap.Uint64("cards_scanned", snap.CardsScanned),
		zap.Uint64("refer_to_cset", snap.ReferToCSet),
		zap.Uint64("already_to_cset", snap.AlreadyToCSet),
		zap.Uint64("refer_to_old", snap.ReferToOld),
		zap.Uint64("no_cross_region", snap.NoCrossRegion),
		zap.Uint64("not_parsable", snap.NotParsable),
	)

	p.transition(p.State(), Idle)

	return snap
}

// StopRefinement implements the STW fallback's complete_work(concurrent =
// false): force the pipeline back to Idle from whatever state it is in.
// The caller (merge-and-scan) is responsible for treating any
// not-yet-swept regions as its own responsibility (§4.3.1).
func (p *Pipeline) StopRefinement() {
	from := p.State()
	p.transition(from, Idle)
}

// ClaimTable exposes the region claim array to the merge-and-scan pass,
// which inspects leftover claim progress to decide whether a region still
// needs RT merged into CT (§4.3.2 Phase 1).
func (p *Pipeline) ClaimTable() *heapmodel.ClaimTable { return p.claims }
