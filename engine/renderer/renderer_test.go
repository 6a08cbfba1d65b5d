package renderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/config"
	vmath "github.com/prismatik/lumen/engine/math"
	"github.com/prismatik/lumen/engine/renderer"
	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

func newTestRenderer(t *testing.T) (*gputest.Device, *renderer.Renderer) {
	t.Helper()
	device := gputest.NewDevice()
	cfg := config.Default()
	cfg.Width = 800
	cfg.Height = 600
	cfg.MinBlockSize = 1 << 20
	r, err := renderer.New(device, cfg)
	require.NoError(t, err)
	return device, r
}

func triangleVertices() []vmath.Vertex3D {
	return []vmath.Vertex3D{
		{Position: [3]float32{-0.5, -0.5, 0}, Normal: [3]float32{0, 0, 1}, Texcoord: [2]float32{0, 0}},
		{Position: [3]float32{0.5, -0.5, 0}, Normal: [3]float32{0, 0, 1}, Texcoord: [2]float32{1, 0}},
		{Position: [3]float32{0, 0.5, 0}, Normal: [3]float32{0, 0, 1}, Texcoord: [2]float32{0.5, 1}},
	}
}

func testScene(t *testing.T, device *gputest.Device, r *renderer.Renderer, textured bool) *renderer.Scene {
	t.Helper()
	vert, err := device.CreateShaderModule([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	frag, err := device.CreateShaderModule([]byte{5, 6, 7, 8})
	require.NoError(t, err)
	t.Cleanup(func() {
		device.DestroyShaderModule(vert)
		device.DestroyShaderModule(frag)
	})

	mesh, err := renderer.NewMesh(r.Registry(), "triangle", triangleVertices(), []uint32{0, 1, 2})
	require.NoError(t, err)

	item := renderer.DrawItem{
		Mesh:      mesh,
		Material:  r.MaterialConfig("flat", vert, frag, textured),
		Transform: vmath.Mat4Identity(),
	}
	if textured {
		pixels := make([]byte, 4*4*4)
		tex, err := renderer.NewTexture(r.Registry(), "white", pixels, gpu.Extent2D{Width: 4, Height: 4})
		require.NoError(t, err)
		item.Texture = tex
	}

	return &renderer.Scene{
		Camera: renderer.Camera{
			View:       vmath.Translate(0, 0, -3),
			Projection: vmath.Perspective(1.0, 800.0/600.0, 0.1, 100),
		},
		Items: []renderer.DrawItem{item},
	}
}

func TestRendererDrawsTexturedScene(t *testing.T) {
	device, r := newTestRenderer(t)
	scene := testScene(t, device, r, true)

	const frames = 10
	for i := 0; i < frames; i++ {
		require.NoError(t, r.RenderFrame(scene))
	}

	c := device.Counters()
	assert.Equal(t, frames, c.Acquires)
	assert.Equal(t, frames, c.Submits)
	assert.Equal(t, frames, c.Presents)
	assert.Empty(t, device.Violations())

	// One material, one pipeline, regardless of frame count.
	assert.Equal(t, 1, c.PipelineBuilds)
	assert.Equal(t, 1, r.Pipelines().Len())

	// Global sets are recycled per slot and the material set is static, so
	// allocations stay bounded instead of growing with the frame count.
	assert.LessOrEqual(t, c.SetAllocs, config.Default().FramesInFlight+1)

	r.Shutdown()
}

func TestRendererSingleFrameAccounting(t *testing.T) {
	device, r := newTestRenderer(t)
	scene := testScene(t, device, r, false)

	require.NoError(t, r.RenderFrame(scene))

	c := device.Counters()
	assert.Equal(t, 1, c.Acquires)
	assert.Equal(t, 1, c.Submits)
	assert.Equal(t, 1, c.Presents)

	scene.Items[0].Mesh.Destroy(r.Registry())
	r.Shutdown()
	device.DestroyShaderModule(scene.Items[0].Material.VertexShader)
	device.DestroyShaderModule(scene.Items[0].Material.FragmentShader)
	assert.Zero(t, device.LiveTotal())
}

func TestRendererDrawsUntexturedScene(t *testing.T) {
	device, r := newTestRenderer(t)
	scene := testScene(t, device, r, false)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.RenderFrame(scene))
	}
	assert.Empty(t, device.Violations())
	r.Shutdown()
}

func TestRendererSurvivesResize(t *testing.T) {
	device, r := newTestRenderer(t)
	scene := testScene(t, device, r, true)

	require.NoError(t, r.RenderFrame(scene))
	r.Resize(1024, 768)

	// The resize frame recreates, the one after renders normally.
	require.NoError(t, r.RenderFrame(scene))
	require.NoError(t, r.RenderFrame(scene))
	assert.Empty(t, device.Violations())
	r.Shutdown()
}

func TestRendererShutdownLeavesNothingLive(t *testing.T) {
	device, r := newTestRenderer(t)
	scene := testScene(t, device, r, true)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.RenderFrame(scene))
	}

	scene.Items[0].Mesh.Destroy(r.Registry())
	require.NoError(t, r.Registry().Destroy(scene.Items[0].Texture))
	r.Shutdown()

	// Shader modules belong to the test and are destroyed by its cleanup.
	device.DestroyShaderModule(scene.Items[0].Material.VertexShader)
	device.DestroyShaderModule(scene.Items[0].Material.FragmentShader)
	assert.Zero(t, device.LiveTotal())
	assert.Empty(t, device.Violations())
}

func TestRendererMaterialConfigMatchesSwapchain(t *testing.T) {
	device, r := newTestRenderer(t)
	defer r.Shutdown()

	vert, err := device.CreateShaderModule([]byte{1})
	require.NoError(t, err)
	frag, err := device.CreateShaderModule([]byte{2})
	require.NoError(t, err)

	plain := r.MaterialConfig("plain", vert, frag, false)
	assert.Equal(t, gpu.FormatB8G8R8A8Srgb, plain.ColorFormat)
	assert.Equal(t, device.Info().DepthFormat, plain.DepthFormat)
	assert.Len(t, plain.SetTemplates, 1)

	textured := r.MaterialConfig("textured", vert, frag, true)
	assert.Len(t, textured.SetTemplates, 2)
	assert.NotEqual(t, plain.Fingerprint(), textured.Fingerprint())
}
