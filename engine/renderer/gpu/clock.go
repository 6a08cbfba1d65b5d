package gpu

import "sync"

// FrameClock is the CPU-observable view of frame progress. The frame
// scheduler advances Submitted when it hands a command buffer to the queue
// and Completed when it has observed that frame's fence. Everything that
// must not touch GPU-in-flight state (deferred resource release, descriptor
// set reuse) compares against Completed instead of talking to fences
// directly.
type FrameClock struct {
	mu        sync.Mutex
	submitted uint64
	completed uint64
}

func NewFrameClock() *FrameClock {
	return &FrameClock{}
}

// FrameSubmitted records one more frame handed to the GPU and returns its
// frame number (1-based).
func (c *FrameClock) FrameSubmitted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted++
	return c.submitted
}

// FrameCompleted records that the fence for the given frame number has
// signaled. Completion is monotonic; signaling an older frame is a no-op.
func (c *FrameClock) FrameCompleted(frame uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if frame > c.completed {
		c.completed = frame
	}
}

func (c *FrameClock) Submitted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

func (c *FrameClock) Completed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}
