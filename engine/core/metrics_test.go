package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFrameTimeAverages(t *testing.T) {
	m := NewMetrics()

	// The moving average publishes once the window fills.
	for i := 0; i < avgCount; i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.01)
}

func TestMetricsFPSCountsOverOneSecond(t *testing.T) {
	m := NewMetrics()

	// 100 frames at 10ms each crosses the one second boundary.
	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 100, m.FPS(), 1)
}
