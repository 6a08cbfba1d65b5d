package core

import "sync"

const avgCount = 30

// MetricsState keeps a rolling average of frame times and a frames-per-second
// counter. Updated once per rendered frame from the render loop.
type MetricsState struct {
	mu sync.Mutex

	frameAvgCounter    uint8
	msTimes            [avgCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *MetricsState {
	return &MetricsState{}
}

// Update records one frame's elapsed time in seconds.
func (m *MetricsState) Update(frameElapsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameMS := frameElapsed * 1000.0
	m.msTimes[m.frameAvgCounter] = frameMS
	if m.frameAvgCounter == avgCount-1 {
		sum := 0.0
		for i := 0; i < avgCount; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(avgCount)
	}
	m.frameAvgCounter = (m.frameAvgCounter + 1) % avgCount

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
}

func (m *MetricsState) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

// FrameTime returns the moving-average frame time in milliseconds.
func (m *MetricsState) FrameTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msAvg
}
