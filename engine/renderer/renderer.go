package renderer

import (
	"fmt"
	"time"

	"github.com/prismatik/lumen/engine/config"
	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// globalUBOSize holds projection and view, padded to the common uniform
// offset alignment.
const globalUBOSize = 256

// Renderer is the engine front end. It owns the GPU resource managers and
// the frame scheduler and turns a Scene into submitted GPU work each frame.
// All methods must be called from the thread that owns the device queue.
type Renderer struct {
	device gpu.Device

	clock     *gpu.FrameClock
	alloc     *gpu.Allocator
	registry  *gpu.Registry
	binder    *gpu.Binder
	pipelines *gpu.PipelineCache
	swapchain *gpu.Swapchain
	scheduler *gpu.FrameScheduler

	metrics *core.MetricsState

	globalTemplate   gpu.SetTemplate
	materialTemplate gpu.SetTemplate
	globalUBOs       []gpu.Handle
	defaultSampler   gpu.SamplerHandle
}

func New(device gpu.Device, cfg *config.Config) (*Renderer, error) {
	r := &Renderer{
		device:  device,
		clock:   gpu.NewFrameClock(),
		metrics: core.NewMetrics(),
		globalTemplate: gpu.SetTemplate{Bindings: []gpu.Binding{
			{Slot: 0, Type: gpu.BindingUniformBuffer},
		}},
		materialTemplate: gpu.SetTemplate{Bindings: []gpu.Binding{
			{Slot: 0, Type: gpu.BindingCombinedImageSampler},
		}},
	}

	r.alloc = gpu.NewAllocator(device, cfg.MinBlockSize)
	r.registry = gpu.NewRegistry(device, r.alloc, r.clock)
	r.binder = gpu.NewBinder(device, r.clock, gpu.DefaultMaxSetsPerPool)

	mode := gpu.PresentModeFIFO
	if cfg.PresentMode == "mailbox" {
		mode = gpu.PresentModeMailbox
	}
	swapchain, err := gpu.NewSwapchain(device, r.alloc, gpu.Extent2D{Width: cfg.Width, Height: cfg.Height}, mode)
	if err != nil {
		return nil, fmt.Errorf("creating swapchain: %w", err)
	}
	r.swapchain = swapchain
	r.pipelines = gpu.NewPipelineCache(device, swapchain.RenderPass())

	scheduler, err := gpu.NewFrameScheduler(device, r.clock, swapchain, r.registry, cfg.FramesInFlight)
	if err != nil {
		swapchain.Destroy()
		return nil, err
	}
	r.scheduler = scheduler
	r.binder.SetStallFunc(scheduler.WaitOldest)

	for i := 0; i < scheduler.SlotCount(); i++ {
		ubo, err := r.registry.CreateBuffer(
			fmt.Sprintf("global-ubo-%d", i),
			globalUBOSize,
			gpu.BufferUsageUniform,
			gpu.MemoryHostVisible|gpu.MemoryHostCoherent,
		)
		if err != nil {
			r.Shutdown()
			return nil, fmt.Errorf("creating global uniform buffer: %w", err)
		}
		r.globalUBOs = append(r.globalUBOs, ubo)
	}

	sampler, err := device.CreateSampler(gpu.SamplerDesc{LinearFilter: true, Repeat: true})
	if err != nil {
		r.Shutdown()
		return nil, fmt.Errorf("creating default sampler: %w", err)
	}
	r.defaultSampler = sampler

	core.LogInfo("renderer up on %s, %dx%d, overlap %d",
		device.Info().Name, cfg.Width, cfg.Height, scheduler.SlotCount())
	return r, nil
}

// RenderFrame draws the scene. A frame lost to swapchain recreation returns
// nil; the caller just renders the next one.
func (r *Renderer) RenderFrame(scene *Scene) error {
	start := time.Now()
	defer func() {
		r.metrics.Update(time.Since(start).Seconds())
	}()

	return r.scheduler.RenderFrame(func(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
		frame := r.clock.Submitted() + 1

		camera := append(scene.Camera.Projection.Bytes(), scene.Camera.View.Bytes()...)
		if err := r.registry.Upload(r.globalUBOs[slot], camera); err != nil {
			return fmt.Errorf("uploading camera state: %w", err)
		}
		ubo, err := r.registry.Buffer(r.globalUBOs[slot])
		if err != nil {
			return err
		}
		global, err := r.binder.Bind(r.globalTemplate, []gpu.DescriptorWrite{{
			Slot:   0,
			Type:   gpu.BindingUniformBuffer,
			Buffer: ubo,
			Range:  globalUBOSize,
		}})
		if err != nil {
			return fmt.Errorf("binding global set: %w", err)
		}
		defer r.binder.MarkUsed(global, frame)

		for i := range scene.Items {
			if err := r.drawItem(cmd, &scene.Items[i], global, frame); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Renderer) drawItem(cmd gpu.CommandBuffer, item *DrawItem, global *gpu.BoundSet, frame uint64) error {
	pipeline, err := r.pipelines.GetOrBuild(item.Material)
	if err != nil {
		return fmt.Errorf("pipeline for %q: %w", item.Material.Name, err)
	}
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSet(pipeline, 0, global.DeviceSet())

	if !item.Texture.IsZero() {
		image, err := r.registry.Image(item.Texture)
		if err != nil {
			return err
		}
		material, err := r.binder.BindStatic(r.materialTemplate, []gpu.DescriptorWrite{{
			Slot:    0,
			Type:    gpu.BindingCombinedImageSampler,
			Image:   image,
			Sampler: r.defaultSampler,
		}})
		if err != nil {
			return fmt.Errorf("binding material set: %w", err)
		}
		cmd.BindDescriptorSet(pipeline, 1, material.DeviceSet())
	}

	vertices, err := r.registry.Buffer(item.Mesh.Vertices)
	if err != nil {
		return err
	}
	cmd.BindVertexBuffer(vertices, 0)
	cmd.PushConstants(pipeline, item.Transform.Bytes())

	if item.Mesh.IndexCount > 0 {
		indices, err := r.registry.Buffer(item.Mesh.Indices)
		if err != nil {
			return err
		}
		cmd.BindIndexBuffer(indices, 0)
		cmd.DrawIndexed(item.Mesh.IndexCount, 1)
	} else {
		cmd.Draw(item.Mesh.VertexCount, 1)
	}
	return nil
}

// MaterialConfig assembles the pipeline description for a standard mesh
// material: the engine vertex layout, depth-tested opaque rendering and the
// render target formats of the active swapchain. The caller only supplies
// shaders and whether the material samples a texture.
func (r *Renderer) MaterialConfig(name string, vert, frag gpu.ShaderModule, textured bool) gpu.PipelineConfig {
	cfg := gpu.PipelineConfig{
		Name:             name,
		VertexShader:     vert,
		FragmentShader:   frag,
		VertexStride:     Vertex3DStride,
		Attributes:       Vertex3DAttributes(),
		CullMode:         gpu.CullModeBack,
		DepthTest:        true,
		DepthWrite:       true,
		ColorFormat:      r.swapchain.Format(),
		DepthFormat:      r.device.Info().DepthFormat,
		PushConstantSize: 64,
		SetTemplates:     []gpu.SetTemplate{r.globalTemplate},
	}
	if textured {
		cfg.SetTemplates = append(cfg.SetTemplates, r.materialTemplate)
	}
	return cfg
}

// SetClearColor changes the render pass clear color for subsequent frames.
func (r *Renderer) SetClearColor(c gpu.ClearColor) {
	r.scheduler.SetClearColor(c)
}

// Resize notes the new surface extent; the swapchain is rebuilt at the top
// of the next frame. Safe to call redundantly.
func (r *Renderer) Resize(width, height uint32) {
	r.scheduler.RequestResize(gpu.Extent2D{Width: width, Height: height})
}

// Drain blocks until all in-flight frames complete on the GPU.
func (r *Renderer) Drain() error {
	return r.scheduler.Drain()
}

func (r *Renderer) Registry() *gpu.Registry       { return r.registry }
func (r *Renderer) Pipelines() *gpu.PipelineCache { return r.pipelines }
func (r *Renderer) Device() gpu.Device            { return r.device }
func (r *Renderer) FPS() float64                  { return r.metrics.FPS() }
func (r *Renderer) FrameTime() float64            { return r.metrics.FrameTime() }

// Shutdown drains the GPU and releases everything in dependency order.
// Leaked registry resources and allocator blocks are logged, not fatal.
func (r *Renderer) Shutdown() {
	if r.scheduler != nil {
		r.scheduler.Destroy()
		r.scheduler = nil
	}
	if r.defaultSampler != 0 {
		r.device.DestroySampler(r.defaultSampler)
		r.defaultSampler = 0
	}
	if r.binder != nil {
		r.binder.Release()
		r.binder = nil
	}
	if r.pipelines != nil {
		r.pipelines.Release()
		r.pipelines = nil
	}
	if r.registry != nil {
		r.registry.ReleaseAll()
		r.registry = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("device wait during shutdown: %v", err)
	}
	if r.alloc != nil {
		r.alloc.Release()
		r.alloc = nil
	}
	core.LogInfo("renderer shut down")
}
