package refine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/heapkeeper/internal/policy/policymock"
)

func TestAdjustThreadCountUninitializedTargetWantsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	c := NewController(8, pred, func() int64 { return 0 })

	wanted := c.AdjustThreadCount(1000)
	assert.Equal(t, 0, wanted)
	assert.Equal(t, 0, c.NumThreadsWanted())
}

func TestAdjustThreadCountClampsToMax(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	pred.EXPECT().PredictAllocRateMs().Return(1000.0).AnyTimes()
	pred.EXPECT().PredictDirtiedCardsRateMs().Return(10.0).AnyTimes()
	pred.EXPECT().PredictConcurrentRefineRateMs().Return(1.0).AnyTimes()

	c := NewController(4, pred, func() int64 { return 0 })
	c.UpdatePendingCardsTarget(200, 50, 100, 2, 256)

	wanted := c.AdjustThreadCount(500)
	assert.Equal(t, 4, wanted)
	assert.False(t, c.NeedsAdjust())
}

func TestUpdatePendingCardsTargetFloor(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	c := NewController(4, pred, func() int64 { return 0 })

	// scanTimeMs/cardsProcessed imply a tiny rate; the floor should win.
	c.UpdatePendingCardsTarget(10, 1000, 1, 4, 512)

	c.mu.Lock()
	target := c.pendingCardsTarget
	c.mu.Unlock()

	assert.Equal(t, float64(4*512), target)
}

func TestUpdatePendingCardsTargetHysteresis(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	c := NewController(4, pred, func() int64 { return 0 })

	c.UpdatePendingCardsTarget(100, 100, 100, 1, 1) // rate=1, fresh=100
	c.UpdatePendingCardsTarget(200, 100, 100, 1, 1) // rate=1, fresh=200, averaged with 100 -> 150

	c.mu.Lock()
	target := c.pendingCardsTarget
	c.mu.Unlock()

	assert.Equal(t, 150.0, target)
}

func TestNextWaitMsIndefiniteBeforeInit(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	c := NewController(4, pred, func() int64 { return 0 })

	_, ok := c.NextWaitMs(1000, 10)
	assert.False(t, ok)
}

func TestNextWaitMsBoundedByPeriod(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	c := NewController(4, pred, func() int64 { return 0 })
	c.UpdatePendingCardsTarget(100, 100, 100, 1, 1)

	wait, ok := c.NextWaitMs(1_000_000, 10)
	require.True(t, ok)
	assert.LessOrEqual(t, wait.Milliseconds(), int64(adjustThreadsPeriodMs))
}

func TestTickDefersOnLockContention(t *testing.T) {
	ctrl := gomock.NewController(t)
	pred := policymock.NewMockPredictor(ctrl)

	c := NewController(4, pred, func() int64 { return 0 })

	var lock sync.Mutex
	lock.Lock() // simulate another holder

	wait := c.Tick(&lock, 10)
	assert.Equal(t, heapLockRetryDelay, wait)
}
