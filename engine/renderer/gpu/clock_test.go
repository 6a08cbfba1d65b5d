package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prismatik/lumen/engine/renderer/gpu"
)

func TestFrameClockCountsSubmissions(t *testing.T) {
	clock := gpu.NewFrameClock()
	assert.Zero(t, clock.Submitted())
	assert.Zero(t, clock.Completed())

	assert.Equal(t, uint64(1), clock.FrameSubmitted())
	assert.Equal(t, uint64(2), clock.FrameSubmitted())
	assert.Equal(t, uint64(2), clock.Submitted())
	assert.Zero(t, clock.Completed())
}

func TestFrameClockCompletionIsMonotonic(t *testing.T) {
	clock := gpu.NewFrameClock()
	for i := 0; i < 3; i++ {
		clock.FrameSubmitted()
	}

	clock.FrameCompleted(2)
	assert.Equal(t, uint64(2), clock.Completed())

	// Completing an older frame after a newer one must not move the clock
	// backwards.
	clock.FrameCompleted(1)
	assert.Equal(t, uint64(2), clock.Completed())

	clock.FrameCompleted(3)
	assert.Equal(t, uint64(3), clock.Completed())
}
