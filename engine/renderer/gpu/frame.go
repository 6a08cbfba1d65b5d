package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prismatik/lumen/engine/core"
)

// SlotState tracks where a frame slot is in its cycle.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotAcquiring
	SlotRecording
	SlotSubmitted
	SlotPresenting
)

// AcquireTimeout bounds how long a frame waits for the presentation engine
// to hand back an image before the frame is treated as failed.
const AcquireTimeout = 2 * time.Second

// frameSlot is one of the N in-flight frame states. Slots are round-robin
// reused; a slot is never reused until the fence from its previous cycle
// has signaled.
type frameSlot struct {
	index int
	state SlotState

	cmd            CommandBuffer
	imageAvailable SemaphoreHandle
	renderFinished SemaphoreHandle
	fence          FenceHandle

	// inFlight is set between submit and the next cycle's fence wait.
	inFlight bool
	// frame is the clock number of the slot's last submission.
	frame uint64
}

// RecordFunc records one frame's draw commands. It runs inside the main
// render pass with viewport and scissor already set. slot selects per-frame
// pooled resources (uniform buffers, descriptor sets).
type RecordFunc func(cmd CommandBuffer, slot int, imageIndex uint32) error

// FrameScheduler drives the frame lifecycle: wait on the slot fence,
// acquire a swapchain image, record, submit, present. A single thread owns
// submission ordering; the fence wait at the top of each cycle is the
// engine's backpressure point.
type FrameScheduler struct {
	device    Device
	clock     *FrameClock
	swapchain *Swapchain
	registry  *Registry

	slots   []*frameSlot
	current int

	mu            sync.Mutex
	pendingResize *Extent2D

	clear ClearColor
}

func NewFrameScheduler(device Device, clock *FrameClock, swapchain *Swapchain, registry *Registry, framesInFlight int) (*FrameScheduler, error) {
	if framesInFlight < 2 {
		framesInFlight = 2
	}

	fs := &FrameScheduler{
		device:    device,
		clock:     clock,
		swapchain: swapchain,
		registry:  registry,
		clear:     ClearColor{R: 0.0, G: 0.0, B: 0.2, A: 1.0},
	}

	for i := 0; i < framesInFlight; i++ {
		slot, err := fs.newSlot(i)
		if err != nil {
			fs.Destroy()
			return nil, err
		}
		fs.slots = append(fs.slots, slot)
	}
	core.LogInfo("frame scheduler ready, overlap depth %d", framesInFlight)
	return fs, nil
}

func (fs *FrameScheduler) newSlot(index int) (*frameSlot, error) {
	cmd, err := fs.device.CreateCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("slot %d command buffer: %w", index, err)
	}
	imageAvailable, err := fs.device.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("slot %d image-available semaphore: %w", index, err)
	}
	renderFinished, err := fs.device.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("slot %d render-finished semaphore: %w", index, err)
	}
	// Created signaled so the first cycle's wait falls through.
	fence, err := fs.device.CreateFence(true)
	if err != nil {
		return nil, fmt.Errorf("slot %d fence: %w", index, err)
	}
	return &frameSlot{
		index:          index,
		cmd:            cmd,
		imageAvailable: imageAvailable,
		renderFinished: renderFinished,
		fence:          fence,
	}, nil
}

// SetClearColor changes the render pass clear color.
func (fs *FrameScheduler) SetClearColor(c ClearColor) {
	fs.clear = c
}

// RequestResize stores the new extent; the next frame drains and recreates
// the swapchain before rendering.
func (fs *FrameScheduler) RequestResize(extent Extent2D) {
	fs.mu.Lock()
	fs.pendingResize = &extent
	fs.mu.Unlock()
	fs.swapchain.MarkOutdated()
}

// CurrentSlot reports the slot the next RenderFrame will use.
func (fs *FrameScheduler) CurrentSlot() int {
	return fs.current
}

func (fs *FrameScheduler) SlotCount() int {
	return len(fs.slots)
}

// RenderFrame runs one full frame cycle. A swapchain gone out of date
// aborts the frame without submitting, recreates and returns nil (the
// caller simply renders the next frame); device loss and other submission
// failures are fatal and propagate.
func (fs *FrameScheduler) RenderFrame(record RecordFunc) error {
	// Resize requested out of band: handle it before touching the slot.
	fs.mu.Lock()
	resize := fs.pendingResize
	fs.pendingResize = nil
	fs.mu.Unlock()
	if resize != nil {
		if err := fs.recreate(*resize); err != nil {
			return err
		}
		return nil
	}

	slot := fs.slots[fs.current]

	// Idle -> Acquiring: the backpressure point. Block until the GPU has
	// finished this slot's previous cycle.
	if err := fs.reclaim(slot); err != nil {
		return err
	}

	slot.state = SlotAcquiring
	imageIndex, err := fs.swapchain.AcquireNextImage(AcquireTimeout, slot.imageAvailable)
	if err != nil {
		slot.state = SlotIdle
		if errors.Is(err, core.ErrSwapchainOutdated) {
			return fs.recreate(fs.swapchain.Extent())
		}
		return fmt.Errorf("acquiring swapchain image: %w", err)
	}

	// Acquiring -> Recording.
	slot.state = SlotRecording
	slot.cmd.Reset()
	if err := slot.cmd.Begin(); err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("beginning command buffer: %w", err)
	}

	// Staged uploads run before the render pass so the frame sees them.
	for _, up := range fs.registry.DrainUploads() {
		switch {
		case up.Buffer != 0:
			slot.cmd.CopyBuffer(up.Staging, up.Buffer, 0, 0, up.Size)
		case up.Image != 0:
			slot.cmd.CopyBufferToImage(up.Staging, up.Image, up.Extent)
		}
	}

	extent := fs.swapchain.Extent()
	slot.cmd.BeginRenderPass(fs.swapchain.RenderPass(), fs.swapchain.Framebuffer(imageIndex), extent, fs.clear)
	slot.cmd.SetViewport(extent)
	slot.cmd.SetScissor(extent)

	if err := record(slot.cmd, slot.index, imageIndex); err != nil {
		slot.cmd.EndRenderPass()
		slot.cmd.End()
		slot.state = SlotIdle
		return fmt.Errorf("recording frame: %w", err)
	}

	slot.cmd.EndRenderPass()
	if err := slot.cmd.End(); err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("ending command buffer: %w", err)
	}

	// Recording -> Submitted. The fence goes unsignaled here and signals
	// when this submission completes on the GPU.
	if err := fs.device.ResetFence(slot.fence); err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("resetting slot fence: %w", err)
	}
	if err := fs.device.Submit(SubmitInfo{
		Commands: slot.cmd,
		Wait:     slot.imageAvailable,
		Signal:   slot.renderFinished,
		Fence:    slot.fence,
	}); err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("submitting frame: %w", err)
	}
	slot.state = SlotSubmitted
	slot.inFlight = true
	slot.frame = fs.clock.FrameSubmitted()

	// Submitted -> Presenting, waiting on render-finished on the GPU.
	slot.state = SlotPresenting
	if err := fs.swapchain.Present(imageIndex, slot.renderFinished); err != nil {
		slot.state = SlotIdle
		fs.advance()
		if errors.Is(err, core.ErrSwapchainOutdated) {
			// The frame was submitted and will complete; only the
			// presentation needs the swapchain rebuilt.
			return fs.recreate(fs.swapchain.Extent())
		}
		return fmt.Errorf("presenting frame: %w", err)
	}

	// Presenting -> Idle immediately; backpressure is applied at the next
	// cycle's fence wait, not here.
	slot.state = SlotIdle
	fs.advance()
	return nil
}

func (fs *FrameScheduler) advance() {
	fs.current = (fs.current + 1) % len(fs.slots)
}

// reclaim waits for the slot's previous cycle to finish on the GPU and
// releases everything that was waiting on it.
func (fs *FrameScheduler) reclaim(slot *frameSlot) error {
	if !slot.inFlight {
		return nil
	}
	if err := fs.device.WaitFence(slot.fence, FenceWaitForever); err != nil {
		return fmt.Errorf("waiting slot %d fence: %w", slot.index, err)
	}
	slot.inFlight = false
	fs.clock.FrameCompleted(slot.frame)
	fs.registry.CollectGarbage()
	return nil
}

// WaitOldest blocks until the oldest in-flight frame completes. Used as the
// descriptor binder's stall hook when a set pool is exhausted.
func (fs *FrameScheduler) WaitOldest() error {
	var oldest *frameSlot
	for _, slot := range fs.slots {
		if slot.inFlight && (oldest == nil || slot.frame < oldest.frame) {
			oldest = slot
		}
	}
	if oldest == nil {
		return fmt.Errorf("no in-flight frame to wait for")
	}
	return fs.reclaim(oldest)
}

// Drain waits for every in-flight frame, in submission order, and flushes
// the deferred-release queue. Mandatory before swapchain recreation and
// teardown.
func (fs *FrameScheduler) Drain() error {
	for {
		var oldest *frameSlot
		for _, slot := range fs.slots {
			if slot.inFlight && (oldest == nil || slot.frame < oldest.frame) {
				oldest = slot
			}
		}
		if oldest == nil {
			break
		}
		if err := fs.reclaim(oldest); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FrameScheduler) recreate(extent Extent2D) error {
	if err := fs.Drain(); err != nil {
		return err
	}
	if err := fs.swapchain.Recreate(extent); err != nil {
		return fmt.Errorf("recreating swapchain: %w", err)
	}
	return nil
}

// Destroy drains and releases the slots' sync objects and command buffers.
func (fs *FrameScheduler) Destroy() {
	if err := fs.Drain(); err != nil {
		core.LogError("draining during scheduler teardown: %v", err)
	}
	for _, slot := range fs.slots {
		if slot == nil {
			continue
		}
		fs.device.DestroyFence(slot.fence)
		fs.device.DestroySemaphore(slot.imageAvailable)
		fs.device.DestroySemaphore(slot.renderFinished)
		fs.device.DestroyCommandBuffer(slot.cmd)
	}
	fs.slots = nil
}
