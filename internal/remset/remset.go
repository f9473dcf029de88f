// Package remset implements the per-region remembered-set object (§3.3):
// the state machine around one region's card-set, plus the handful of
// operations exposed to evacuation copying and the merge/scan pipeline
// (§6.2).
package remset

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/orizon-lang/heapkeeper/internal/cardset"
	"github.com/orizon-lang/heapkeeper/internal/gclog"
	"github.com/orizon-lang/heapkeeper/internal/heapmodel"
)

// State is a region's remembered-set lifecycle state.
type State int32

const (
	Untracked State = iota
	Updating
	Complete
)

func (s State) String() string {
	switch s {
	case Untracked:
		return "Untracked"
	case Updating:
		return "Updating"
	case Complete:
		return "Complete"
	default:
		return "State(?)"
	}
}

// CodeRoot is a placeholder for the code-root list the spec calls "a
// disjoint data structure, not specified here" (§3.3): nmethods that embed
// an oop reference into this region, tracked separately from card data.
type CodeRoot struct {
	Token uintptr
}

// RemSet is one heap region's remembered set: its card-set container
// hierarchy, lifecycle state, code roots, and (while refinement runs) a
// per-thread from-card cache slot reserved for that machinery (§4.2.4).
type RemSet struct {
	Region heapmodel.RegionIdx

	cardSet *cardset.CardSet
	state   atomic.Int32

	// stateGeneration is bumped on every state transition so tests (and
	// a debug inspector) can observe that a transition actually happened
	// without racing on State() returning the same value twice in a row.
	stateGeneration atomic.Uint64

	codeRootsMu sync.Mutex
	codeRoots   []CodeRoot
}

// New creates a remembered set in the Untracked state.
func New(region heapmodel.RegionIdx, cfg cardset.Config) *RemSet {
	return &RemSet{
		Region:  region,
		cardSet: cardset.NewCardSet(cfg),
	}
}

func (r *RemSet) State() State { return State(r.state.Load()) }

func (r *RemSet) IsTracked() bool  { return r.State() != Untracked }
func (r *RemSet) IsUpdating() bool { return r.State() == Updating }
func (r *RemSet) IsComplete() bool { return r.State() == Complete }

// StateGeneration returns the number of state transitions this remembered
// set has gone through since creation.
func (r *RemSet) StateGeneration() uint64 { return r.stateGeneration.Load() }

// SetStateUntracked, SetStateUpdating, and SetStateComplete implement the
// §3.3 lifecycle transitions (§6.2 rem_set.set_state_*). They are plain
// stores: the state machine's legality is enforced by callers (remark
// selection, allocation, region free), not by this type.
func (r *RemSet) SetStateUntracked() {
	r.state.Store(int32(Untracked))
	r.stateGeneration.Add(1)
	gclog.Debug("remset: region untracked", zap.Uint32("region", uint32(r.Region)))
}

func (r *RemSet) SetStateUpdating() {
	r.state.Store(int32(Updating))
	r.stateGeneration.Add(1)
}

func (r *RemSet) SetStateComplete() {
	r.state.Store(int32(Complete))
	r.stateGeneration.Add(1)
}

// AddReference implements rem_set.add_reference: STW evacuation copying
// calls this to point a newly-relocated object's incoming field back at
// its source region's card (§6.2).
func (r *RemSet) AddReference(cardRegion heapmodel.CardRegionIdx, cardInRegion uint32, workerID int) cardset.AddResult {
	_ = workerID // reserved for a future per-worker from-card cache; refinement's own cache lives in internal/refine

	return r.cardSet.AddCard(cardRegion, cardInRegion)
}

// ContainsReference implements rem_set.contains_reference, used only for
// debugging/verification (§6.2).
func (r *RemSet) ContainsReference(cardRegion heapmodel.CardRegionIdx, cardInRegion uint32) bool {
	return r.cardSet.ContainsCard(cardRegion, cardInRegion)
}

// IterateForMerge is the merge phase's entry point (§6.2, §4.3 Phase 2):
// visit every card this RS holds.
func (r *RemSet) IterateForMerge(v cardset.Visitor) {
	r.cardSet.IterateAll(v, true)
}

// NumOccupied exposes the card-set's occupancy counter for statistics.
func (r *RemSet) NumOccupied() uint64 { return r.cardSet.NumOccupied() }

// AddCodeRoot and RemoveCodeRoot maintain the nmethod list; lookups are
// linear since a region rarely carries more than a handful of code roots.
func (r *RemSet) AddCodeRoot(cr CodeRoot) {
	r.codeRootsMu.Lock()
	defer r.codeRootsMu.Unlock()

	for _, existing := range r.codeRoots {
		if existing.Token == cr.Token {
			return
		}
	}

	r.codeRoots = append(r.codeRoots, cr)
}

func (r *RemSet) RemoveCodeRoot(token uintptr) {
	r.codeRootsMu.Lock()
	defer r.codeRootsMu.Unlock()

	for i, existing := range r.codeRoots {
		if existing.Token == token {
			r.codeRoots = append(r.codeRoots[:i], r.codeRoots[i+1:]...)
			return
		}
	}
}

// Clear implements rem_set.clear(only_cardset, keep_tracked) (§6.2): at
// region free or drop. only_cardset leaves code roots in place (used by
// the retained-candidate cap-out path, §4.4.3, which only wants to drop
// card data); keep_tracked leaves the state untouched instead of
// reverting to Untracked (used for a humongous pair that stays tracked
// but needs its container flushed, §9 "treat the humongous pair as a
// single unit... clear both, flush both").
func (r *RemSet) Clear(onlyCardSet, keepTracked bool) {
	r.cardSet.Clear()

	if !onlyCardSet {
		r.codeRootsMu.Lock()
		r.codeRoots = nil
		r.codeRootsMu.Unlock()
	}

	if !keepTracked {
		r.SetStateUntracked()
	}
}
