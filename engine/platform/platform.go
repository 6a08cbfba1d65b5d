package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/prismatik/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the application window and surface events. Resize events
// are coalesced: OnResize fires with the latest framebuffer size and the
// renderer picks it up at the top of its next frame.
type Platform struct {
	Window *glfw.Window

	// OnResize is called from PumpMessages when the framebuffer size
	// changes. A zero dimension means the window is minimized.
	OnResize func(width, height uint32)
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Startup(applicationName string, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initializing glfw: %w", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("creating window: %w", err)
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if p.OnResize != nil {
			p.OnResize(uint32(width), uint32(height))
		}
	})
	p.Window.Show()

	core.LogInfo("window up: %s %dx%d", applicationName, width, height)
	return nil
}

// FramebufferExtent reports the current framebuffer size in pixels.
func (p *Platform) FramebufferExtent() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitEvents blocks until an event arrives. Used while minimized so the
// render loop does not spin on a zero-sized surface.
func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

// RequiredVulkanExtensions lists the instance extensions the window system
// needs for surface creation.
func (p *Platform) RequiredVulkanExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// VulkanProcAddr exposes the loader entry point the Vulkan bindings need
// before vk.Init.
func VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}
