// Package heapmodel provides the shared card/region addressing arithmetic
// (§3.1), the claim-table abstraction reused by both the refinement
// pipeline and the merge-and-scan pipeline, and the heap-shape
// configuration every other package in this module is parameterized by.
package heapmodel

import (
	"fmt"
	"math/bits"
)

// Addr is an offset in bytes from the start of the managed heap. Using an
// offset rather than an unsafe.Pointer keeps this package free of
// host-allocator concerns (block-offset tables, object parsing) which are
// out of scope per §1.
type Addr uint64

// RegionIdx identifies a heap region.
type RegionIdx uint32

// CardIdx identifies a card within a region (0..CardsPerRegion).
type CardIdx uint32

// CardRegionIdx identifies a "card region", the virtualized sub-unit a
// heap region is split into when CardsPerRegion does not fit the
// container's 32-bit card-index budget (§3.1).
type CardRegionIdx uint32

// Shape captures the heap's region/card geometry. It is computed once at
// startup from the configured region size and card size and is immutable
// thereafter; every other package takes a *Shape rather than recomputing
// these shifts.
type Shape struct {
	RegionSizeBytes uint64
	CardSizeBytes   uint64

	LogCardSizeBytes   uint
	LogRegionSizeBytes uint
	LogCardsPerRegion  uint // RegionSizeBytes / CardSizeBytes, log2

	// CardsPerRegionLimit is the per-container cap (fits a 32-bit card
	// index comfortably); if CardsPerRegion exceeds it, a region is
	// subdivided into card regions.
	CardsPerRegionLimit uint32

	Log2CardRegionsPerHeapRegion uint
	Log2CardsPerCardRegion       uint

	CardsPerRegion     uint32
	CardsPerCardRegion uint32
	CardRegionsPerHeap uint32
}

// NewShape validates and derives the heap shape per §3.1. regionSizeBytes
// and cardSizeBytes must be powers of two; cardsPerRegionLimit bounds the
// per-container card index.
func NewShape(regionSizeBytes, cardSizeBytes uint64, cardsPerRegionLimit uint32) (*Shape, error) {
	if !isPow2(regionSizeBytes) {
		return nil, fmt.Errorf("heapmodel: region size %d is not a power of two", regionSizeBytes)
	}

	if !isPow2(cardSizeBytes) {
		return nil, fmt.Errorf("heapmodel: card size %d is not a power of two", cardSizeBytes)
	}

	if regionSizeBytes < cardSizeBytes {
		return nil, fmt.Errorf("heapmodel: region size %d smaller than card size %d", regionSizeBytes, cardSizeBytes)
	}

	logCard := uint(bits.TrailingZeros64(cardSizeBytes))
	logRegion := uint(bits.TrailingZeros64(regionSizeBytes))
	logCardsPerRegion := logRegion - logCard

	cardsPerRegion64 := uint64(1) << logCardsPerRegion
	if cardsPerRegion64 > 1<<32 {
		return nil, fmt.Errorf("heapmodel: %d cards per region cannot be addressed by a 32-bit index", cardsPerRegion64)
	}

	s := &Shape{
		RegionSizeBytes:     regionSizeBytes,
		CardSizeBytes:       cardSizeBytes,
		LogCardSizeBytes:    logCard,
		LogRegionSizeBytes:  logRegion,
		LogCardsPerRegion:   logCardsPerRegion,
		CardsPerRegionLimit: cardsPerRegionLimit,
		CardsPerRegion:      uint32(cardsPerRegion64),
	}

	if uint64(cardsPerRegionLimit) >= cardsPerRegion64 {
		// No subdivision needed: one card region per heap region.
		s.Log2CardRegionsPerHeapRegion = 0
		s.Log2CardsPerCardRegion = logCardsPerRegion
	} else {
		limitLog := uint(bits.Len32(cardsPerRegionLimit - 1))
		if limitLog >= logCardsPerRegion {
			limitLog = logCardsPerRegion
		}

		s.Log2CardsPerCardRegion = limitLog
		s.Log2CardRegionsPerHeapRegion = logCardsPerRegion - limitLog
	}

	if s.Log2CardRegionsPerHeapRegion+s.Log2CardsPerCardRegion != logCardsPerRegion {
		return nil, fmt.Errorf("heapmodel: split invariant violated (%d + %d != %d)",
			s.Log2CardRegionsPerHeapRegion, s.Log2CardsPerCardRegion, logCardsPerRegion)
	}

	s.CardsPerCardRegion = uint32(1) << s.Log2CardsPerCardRegion
	s.CardRegionsPerHeap = uint32(1) << s.Log2CardRegionsPerHeapRegion

	return s, nil
}

func isPow2(v uint64) bool { return v != 0 && v&(v-1) == 0 }

// RegionOf returns the region index containing addr.
func (s *Shape) RegionOf(addr Addr) RegionIdx {
	return RegionIdx(uint64(addr) >> s.LogRegionSizeBytes)
}

// CardOf returns the card index within its region for addr.
func (s *Shape) CardOf(addr Addr) CardIdx {
	withinRegion := uint64(addr) & (s.RegionSizeBytes - 1)

	return CardIdx(withinRegion >> s.LogCardSizeBytes)
}

// Split maps a region-relative card index to (card-region, card-in-card-region).
func (s *Shape) Split(card CardIdx) (CardRegionIdx, uint32) {
	cr := uint32(card) >> s.Log2CardsPerCardRegion
	offset := uint32(card) & (s.CardsPerCardRegion - 1)

	return CardRegionIdx(cr), offset
}

// Join is the inverse of Split.
func (s *Shape) Join(cr CardRegionIdx, offset uint32) CardIdx {
	return CardIdx(uint32(cr)<<s.Log2CardsPerCardRegion | offset)
}

// CardAddr returns the address of the first byte of card idx within region.
func (s *Shape) CardAddr(region RegionIdx, idx CardIdx) Addr {
	return Addr(uint64(region)<<s.LogRegionSizeBytes | uint64(idx)<<s.LogCardSizeBytes)
}
