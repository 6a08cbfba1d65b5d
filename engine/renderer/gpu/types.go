package gpu

// Opaque device-object tokens. Each backend maps these to its own objects;
// the zero value is never a valid handle.
type (
	BlockHandle       uint64
	BufferHandle      uint64
	ImageHandle       uint64
	SamplerHandle     uint64
	ShaderModule      uint64
	PipelineHandle    uint64
	RenderPassHandle  uint64
	FramebufferHandle uint64
	FenceHandle       uint64
	SemaphoreHandle   uint64
	SwapchainHandle   uint64
	DescriptorSet     uint64
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Format int32

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatD32Sfloat
	FormatD32SfloatS8Uint
	FormatD24UnormS8Uint
)

// MemoryPropertyFlags select the class of memory an allocation lives in.
type MemoryPropertyFlags uint32

const (
	MemoryDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

// HostVisible reports whether memory with these properties can be written
// through a mapping from the CPU.
func (f MemoryPropertyFlags) HostVisible() bool {
	return f&MemoryHostVisible != 0
}

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
	ImageUsageTransferDst
)

type ImageDesc struct {
	Extent Extent2D
	Format Format
	Usage  ImageUsage
}

type SamplerDesc struct {
	LinearFilter bool
	Repeat       bool
}

// MemoryRequirements is what the device reports for a freshly created
// resource before memory is bound to it. TypeBits has one bit set per
// acceptable memory type index.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// Allocation is a sub-range of a device memory block, as handed out by the
// Allocator. Offset is already aligned for the request it served.
type Allocation struct {
	Block  BlockHandle
	Offset uint64
	Size   uint64

	block *memoryBlock
}

type CullMode int32

const (
	CullModeBack CullMode = iota
	CullModeNone
	CullModeFront
)

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// PipelineConfig is the complete fingerprinted description of a pipeline
// state object: shader stages, vertex input layout, fixed-function state and
// the render target formats it must be compatible with.
type PipelineConfig struct {
	Name string

	VertexShader   ShaderModule
	FragmentShader ShaderModule

	VertexStride uint32
	Attributes   []VertexAttribute

	CullMode   CullMode
	Wireframe  bool
	BlendAlpha bool
	DepthTest  bool
	DepthWrite bool

	ColorFormat Format
	DepthFormat Format

	// PushConstantSize is the size of the per-draw push constant range, in
	// bytes. Zero disables push constants.
	PushConstantSize uint32

	// SetTemplates describe the descriptor set layouts the pipeline binds,
	// set index by position.
	SetTemplates []SetTemplate
}

type BindingType uint8

const (
	BindingUniformBuffer BindingType = iota
	BindingCombinedImageSampler
)

type Binding struct {
	Slot uint32
	Type BindingType
}

// SetTemplate describes the shape of a descriptor set: which slots exist and
// what kind of resource each one takes.
type SetTemplate struct {
	Bindings []Binding
}

// DescriptorWrite maps one resource to one slot of a descriptor set.
type DescriptorWrite struct {
	Slot uint32
	Type BindingType

	Buffer BufferHandle
	Offset uint64
	Range  uint64

	Image   ImageHandle
	Sampler SamplerHandle
}

type ClearColor struct {
	R, G, B, A float32
}

type SwapchainDesc struct {
	Extent       Extent2D
	PresentMode  PresentMode
	OldSwapchain SwapchainHandle
}

type PresentMode int32

const (
	// PresentModeFIFO paces presentation to the display refresh. Always
	// available.
	PresentModeFIFO PresentMode = iota
	// PresentModeMailbox replaces queued images instead of blocking. Falls
	// back to FIFO when the surface does not support it.
	PresentModeMailbox
)

// SwapchainInfo is the device's view of a created swapchain: its image ring
// and the properties the rest of the renderer keys off.
type SwapchainInfo struct {
	Handle SwapchainHandle
	Format Format
	Extent Extent2D
	Images []ImageHandle
}

type SubmitInfo struct {
	Commands CommandBuffer
	Wait     SemaphoreHandle
	Signal   SemaphoreHandle
	Fence    FenceHandle
}

type DeviceLimits struct {
	MaxDescriptorSets               uint32
	MinUniformBufferOffsetAlignment uint64
	MaxPushConstantSize             uint32
}

type DeviceInfo struct {
	Name   string
	Limits DeviceLimits

	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	TransferQueueIndex uint32

	// DepthFormat is the depth attachment format the device selected at
	// startup, in preference order D32 -> D32S8 -> D24S8.
	DepthFormat Format
}
