package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsValidate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestValidateRejectsNonPowerOfTwoBuckets(t *testing.T) {
	t2 := Defaults()
	t2.RemSetHowlNumBuckets = 100

	assert.Error(t, t2.Validate())
}

func TestValidateRejectsOutOfRangePercent(t *testing.T) {
	t2 := Defaults()
	t2.OldCSetRegionThresholdPercent = 150

	assert.Error(t, t2.Validate())
}

func TestValidateAllowsZeroHeapRegionSize(t *testing.T) {
	t2 := Defaults()
	t2.HeapRegionSize = 0

	assert.NoError(t, t2.Validate())
}

func TestValidateRejectsNonPowerOfTwoHeapRegionSize(t *testing.T) {
	t2 := Defaults()
	t2.HeapRegionSize = 3000

	assert.Error(t, t2.Validate())
}
