// Package config loads and hot-reloads the tunable configuration table
// (§6.3): container-coarsening thresholds, refinement worker bounds, and
// collection-set finalization knobs. None of these are read directly by
// the core packages; each tunable is threaded in by whatever host code
// constructs a refine.Pipeline, remset.RemSet, or collectionset.Params.
package config

import "fmt"

// Tunables is the §6.3 table, one field per row.
type Tunables struct {
	RemSetArrayOfCardsEntries                int `json:"rem_set_array_of_cards_entries"`
	RemSetHowlNumBuckets                     int `json:"rem_set_howl_num_buckets"`
	RemSetCoarsenHowlBitmapToHowlFullPercent  int `json:"rem_set_coarsen_howl_bitmap_to_howl_full_percent"`
	RemSetCoarsenHowlToFullPercent            int `json:"rem_set_coarsen_howl_to_full_percent"`
	HeapRegionSize                            int `json:"heap_region_size"`
	ConcRefinementThreads                     int `json:"conc_refinement_threads"`
	UseConcRefinement                         bool `json:"use_conc_refinement"`
	RSetUpdatingPauseTimePercent              int `json:"rset_updating_pause_time_percent"`
	PerThreadPendingCardThreshold             int64 `json:"per_thread_pending_card_threshold"`
	MixedGCCountTarget                        int `json:"mixed_gc_count_target"`
	OldCSetRegionThresholdPercent             int `json:"old_cset_region_threshold_percent"`
	RetainRegionLiveThresholdPercent          int `json:"retain_region_live_threshold_percent"`
	NumCollectionsKeepPinned                  int `json:"num_collections_keep_pinned"`
	MergeHeapRootsPrefetchCacheSize           int `json:"merge_heap_roots_prefetch_cache_size"`
}

// Defaults returns the baseline tunables a fresh simulation starts from,
// chosen to match the magnitudes a small-to-medium heap would pick.
func Defaults() Tunables {
	return Tunables{
		RemSetArrayOfCardsEntries:               8,
		RemSetHowlNumBuckets:                    256,
		RemSetCoarsenHowlBitmapToHowlFullPercent: 78,
		RemSetCoarsenHowlToFullPercent:           90,
		HeapRegionSize:                           0,
		ConcRefinementThreads:                    4,
		UseConcRefinement:                        true,
		RSetUpdatingPauseTimePercent:             10,
		PerThreadPendingCardThreshold:            2 << 20,
		MixedGCCountTarget:                       4,
		OldCSetRegionThresholdPercent:             10,
		RetainRegionLiveThresholdPercent:          90,
		NumCollectionsKeepPinned:                  3,
		MergeHeapRootsPrefetchCacheSize:           16,
	}
}

// Validate checks the invariants the rest of the subsystem assumes: no
// negative capacities, percentages in [0, 100], and power-of-two fields
// that the card-set lattice (§4.1.2) depends on.
func (t Tunables) Validate() error {
	if t.RemSetArrayOfCardsEntries <= 0 {
		return fmt.Errorf("config: rem_set_array_of_cards_entries must be positive, got %d", t.RemSetArrayOfCardsEntries)
	}

	if t.RemSetHowlNumBuckets <= 0 || !isPowerOfTwo(t.RemSetHowlNumBuckets) {
		return fmt.Errorf("config: rem_set_howl_num_buckets must be a positive power of two, got %d", t.RemSetHowlNumBuckets)
	}

	for name, v := range map[string]int{
		"rem_set_coarsen_howl_bitmap_to_howl_full_percent": t.RemSetCoarsenHowlBitmapToHowlFullPercent,
		"rem_set_coarsen_howl_to_full_percent":             t.RemSetCoarsenHowlToFullPercent,
		"rset_updating_pause_time_percent":                 t.RSetUpdatingPauseTimePercent,
		"old_cset_region_threshold_percent":                t.OldCSetRegionThresholdPercent,
		"retain_region_live_threshold_percent":             t.RetainRegionLiveThresholdPercent,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("config: %s must be in [0, 100], got %d", name, v)
		}
	}

	if t.HeapRegionSize != 0 && !isPowerOfTwo(t.HeapRegionSize) {
		return fmt.Errorf("config: heap_region_size must be 0 or a power of two, got %d", t.HeapRegionSize)
	}

	if t.ConcRefinementThreads < 0 {
		return fmt.Errorf("config: conc_refinement_threads must be >= 0, got %d", t.ConcRefinementThreads)
	}

	if t.MixedGCCountTarget <= 0 {
		return fmt.Errorf("config: mixed_gc_count_target must be positive, got %d", t.MixedGCCountTarget)
	}

	if t.NumCollectionsKeepPinned < 0 {
		return fmt.Errorf("config: num_collections_keep_pinned must be >= 0, got %d", t.NumCollectionsKeepPinned)
	}

	if t.MergeHeapRootsPrefetchCacheSize <= 0 || !isPowerOfTwo(t.MergeHeapRootsPrefetchCacheSize) {
		return fmt.Errorf("config: merge_heap_roots_prefetch_cache_size must be a positive power of two, got %d", t.MergeHeapRootsPrefetchCacheSize)
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
