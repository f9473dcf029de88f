package refine

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/orizon-lang/heapkeeper/internal/gclog"
	"github.com/orizon-lang/heapkeeper/internal/policy"
)

// adjustThreadsPeriodMs bounds adjust_wait_ms from above (§4.5).
const adjustThreadsPeriodMs = 53.0

// heapLockRetryDelay is the deferral applied when the control thread
// fails to acquire the heap lock before reading policy predictions.
const heapLockRetryDelay = 1 * time.Millisecond

// Controller implements the adaptive refinement-thread control loop
// (§4.2.5, §4.5): how many worker threads should be running right now,
// and how long the control thread should sleep before checking again.
type Controller struct {
	maxWorkers int
	predictor  policy.Predictor

	accumulatedCards func() int64

	numThreadsWanted atomic.Int32
	needsAdjust      atomic.Bool

	mu                 sync.Mutex
	pendingCardsTarget float64
	targetInitialized  bool
}

// NewController builds a controller bounded to maxWorkers threads. The
// pending-cards target starts uninitialized; until the first post-GC
// adjustment, NextWaitMs reports an indefinite wait (§4.5).
func NewController(maxWorkers int, predictor policy.Predictor, accumulatedCards func() int64) *Controller {
	return &Controller{
		maxWorkers:       maxWorkers,
		predictor:        predictor,
		accumulatedCards: accumulatedCards,
	}
}

func (c *Controller) NumThreadsWanted() int { return int(c.numThreadsWanted.Load()) }

// MarkNeedsAdjust sets the flag the control loop checks after every GC
// (§4.5).
func (c *Controller) MarkNeedsAdjust() { c.needsAdjust.Store(true) }

func (c *Controller) NeedsAdjust() bool { return c.needsAdjust.Load() }

// AdjustThreadCount implements §4.2.5 steps 1-4. refineRatePerThreadPerMs
// comes from the predictor's concurrent-refine rate; a rate of zero (no
// data yet) yields zero wanted threads rather than a division fault.
func (c *Controller) AdjustThreadCount(timeUntilNextGCMs float64) int {
	c.mu.Lock()
	target := c.pendingCardsTarget
	initialized := c.targetInitialized
	c.mu.Unlock()

	if !initialized {
		c.numThreadsWanted.Store(0)
		return 0
	}

	allocRate := c.predictor.PredictAllocRateMs()
	dirtyRate := c.predictor.PredictDirtiedCardsRateMs()
	refineRate := c.predictor.PredictConcurrentRefineRateMs()

	predictedCards := float64(c.accumulatedCards()) + allocRate*dirtyRate*timeUntilNextGCMs

	var threadsNeeded float64
	if refineRate > 0 {
		threadsNeeded = (predictedCards - target) / refineRate * timeUntilNextGCMs
	}

	if threadsNeeded < 0 {
		threadsNeeded = 0
	}

	wanted := int(math.Ceil(threadsNeeded))
	if wanted > c.maxWorkers {
		wanted = c.maxWorkers
	}

	c.numThreadsWanted.Store(int32(wanted))
	c.needsAdjust.Store(false)

	gclog.Debug("refine: adjusted thread count",
		zap.Int("wanted", wanted), zap.Float64("predicted_cards", predictedCards), zap.Float64("target", target))

	return wanted
}

// UpdatePendingCardsTarget is run at the end of each STW pause (§4.5): it
// derives a rate from the pause's actual scan cost, computes a fresh
// target, and averages it with the previous one for hysteresis. The
// result is floored at floorThreads * perThreadThreshold.
func (c *Controller) UpdatePendingCardsTarget(pauseBudgetMs, scanTimeMs float64, cardsProcessed int64, floorThreads int, perThreadThreshold int64) {
	if scanTimeMs <= 0 || cardsProcessed <= 0 {
		return
	}

	rate := float64(cardsProcessed) / scanTimeMs
	fresh := pauseBudgetMs * rate

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetInitialized {
		fresh = (fresh + c.pendingCardsTarget) / 2
	}

	floor := float64(floorThreads) * float64(perThreadThreshold)
	if fresh < floor {
		fresh = floor
	}

	c.pendingCardsTarget = fresh
	c.targetInitialized = true
}

// NextWaitMs derives adjust_wait_ms (§4.5): sqrt(time_until_next_gc_ms)*4,
// floored at minPeriodMs and capped at adjustThreadsPeriodMs. Reports
// false if the pending-cards target has never been initialized, in which
// case the control thread should sleep indefinitely instead.
func (c *Controller) NextWaitMs(timeUntilNextGCMs, minPeriodMs float64) (wait time.Duration, ok bool) {
	c.mu.Lock()
	initialized := c.targetInitialized
	c.mu.Unlock()

	if !initialized {
		return 0, false
	}

	ms := math.Sqrt(timeUntilNextGCMs) * 4
	if ms < minPeriodMs {
		ms = minPeriodMs
	}

	if ms > adjustThreadsPeriodMs {
		ms = adjustThreadsPeriodMs
	}

	return time.Duration(ms * float64(time.Millisecond)), true
}

// Tick runs one control-thread iteration (§4.5): try to acquire heapLock
// to read policy predictions and adjust thread count; on failure, defer
// by heapLockRetryDelay. Returns the duration the control thread should
// sleep before its next tick.
func (c *Controller) Tick(heapLock *sync.Mutex, minPeriodMs float64) time.Duration {
	if !heapLock.TryLock() {
		return heapLockRetryDelay
	}
	defer heapLock.Unlock()

	timeUntilNextGC := c.predictor.PredictTimeUntilNextGCMs()

	c.AdjustThreadCount(timeUntilNextGC)

	wait, ok := c.NextWaitMs(timeUntilNextGC, minPeriodMs)
	if !ok {
		return time.Duration(math.MaxInt64)
	}

	return wait
}
