package core

import (
	"errors"
)

// Renderer error taxonomy. Callers classify with errors.Is; anything not
// listed here is treated as fatal for the frame loop.
var (
	// ErrNoSuitableDevice is returned at startup when no physical device
	// satisfies the required queue capabilities and features. Fatal.
	ErrNoSuitableDevice = errors.New("no suitable physical device")

	// ErrOutOfDeviceMemory is returned when the device reports exhaustion.
	// Fatal for the allocation, recoverable for the process: callers may
	// retry after releasing unused resources.
	ErrOutOfDeviceMemory = errors.New("out of device memory")

	// ErrSwapchainOutdated signals that the presentable surface changed
	// (resize, loss) and the swapchain must be recreated after a drain.
	// Expected during normal operation; never surfaced to the user.
	ErrSwapchainOutdated = errors.New("swapchain out of date")

	// ErrDeviceLost means the logical device is gone. There is no recovery
	// path; the render loop must terminate and report upward.
	ErrDeviceLost = errors.New("device lost")

	// ErrPipelineBuild is returned when compiling or linking a pipeline
	// state object fails. Fatal for that material only; the cache falls
	// back to the placeholder pipeline.
	ErrPipelineBuild = errors.New("pipeline build failed")
)
