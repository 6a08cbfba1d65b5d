package gpu

import "time"

// FenceWaitForever is the timeout used where the renderer has nothing useful
// to do until the GPU catches up.
const FenceWaitForever = time.Duration(1<<63 - 1)

// Device is the renderer's only window onto the underlying graphics API: an
// explicit device/queue model with manual synchronization and explicit
// memory management. The vulkan package provides the real implementation;
// gputest provides an instrumented one for the frame and resource tests.
//
// All methods returning an error report device loss as core.ErrDeviceLost
// and memory exhaustion as core.ErrOutOfDeviceMemory, wrapped. Acquire and
// Present report surface invalidation as core.ErrSwapchainOutdated.
//
// Unless noted otherwise, methods are only called from the submitting thread
// or under the callers' locks.
type Device interface {
	Info() DeviceInfo

	// Memory. AllocateBlock reserves one backing allocation of the given
	// size from a memory type matching typeBits and props, returning the
	// chosen memory type index for compatibility checks on reuse.
	AllocateBlock(size uint64, props MemoryPropertyFlags, typeBits uint32) (BlockHandle, uint32, error)
	FreeBlock(block BlockHandle)
	// WriteBlock copies data into a host-visible block through a mapping.
	WriteBlock(block BlockHandle, offset uint64, data []byte) error

	// Resources. Creation returns the object and its memory requirements;
	// the object is unusable until memory is bound.
	CreateBuffer(size uint64, usage BufferUsage) (BufferHandle, MemoryRequirements, error)
	BindBufferMemory(buffer BufferHandle, block BlockHandle, offset uint64) error
	DestroyBuffer(buffer BufferHandle)
	CreateImage(desc ImageDesc) (ImageHandle, MemoryRequirements, error)
	BindImageMemory(image ImageHandle, block BlockHandle, offset uint64) error
	DestroyImage(image ImageHandle)
	CreateSampler(desc SamplerDesc) (SamplerHandle, error)
	DestroySampler(sampler SamplerHandle)

	// Shader modules wrap compiled stage binaries produced by the external
	// shader compiler.
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)

	// Descriptors.
	AllocateDescriptorSet(template SetTemplate) (DescriptorSet, error)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite) error
	FreeDescriptorSet(set DescriptorSet)

	// Pipelines and render targets.
	CreatePipeline(config PipelineConfig, pass RenderPassHandle) (PipelineHandle, error)
	DestroyPipeline(pipeline PipelineHandle)
	CreateRenderPass(colorFormat, depthFormat Format) (RenderPassHandle, error)
	DestroyRenderPass(pass RenderPassHandle)
	CreateFramebuffer(pass RenderPassHandle, color, depth ImageHandle, extent Extent2D) (FramebufferHandle, error)
	DestroyFramebuffer(fb FramebufferHandle)

	// Synchronization.
	CreateFence(signaled bool) (FenceHandle, error)
	// WaitFence blocks until the fence signals or the timeout elapses.
	WaitFence(fence FenceHandle, timeout time.Duration) error
	ResetFence(fence FenceHandle) error
	DestroyFence(fence FenceHandle)
	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(sem SemaphoreHandle)

	// Swapchain.
	CreateSwapchain(desc SwapchainDesc) (*SwapchainInfo, error)
	DestroySwapchain(sc SwapchainHandle)
	AcquireNextImage(sc SwapchainHandle, timeout time.Duration, signal SemaphoreHandle) (uint32, error)
	Present(sc SwapchainHandle, imageIndex uint32, wait SemaphoreHandle) error

	// Commands.
	CreateCommandBuffer() (CommandBuffer, error)
	DestroyCommandBuffer(cmd CommandBuffer)
	// Submit queues the commands for execution, waiting on Wait, signaling
	// Signal on the GPU and Fence on completion.
	Submit(info SubmitInfo) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
}

// CommandBuffer records GPU work in submission order. Within one buffer,
// commands execute in recorded order on the GPU.
type CommandBuffer interface {
	Begin() error
	End() error
	Reset()

	BeginRenderPass(pass RenderPassHandle, fb FramebufferHandle, area Extent2D, clear ClearColor)
	EndRenderPass()

	SetViewport(extent Extent2D)
	SetScissor(extent Extent2D)

	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSet(pipeline PipelineHandle, setIndex uint32, set DescriptorSet)
	BindVertexBuffer(buffer BufferHandle, offset uint64)
	BindIndexBuffer(buffer BufferHandle, offset uint64)
	PushConstants(pipeline PipelineHandle, data []byte)

	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)

	CopyBuffer(src, dst BufferHandle, srcOffset, dstOffset, size uint64)
	CopyBufferToImage(src BufferHandle, dst ImageHandle, extent Extent2D)
}
