/*
Demo harness for the lumen renderer: opens a window, uploads a textured
cube and a ground plane, and runs the frame loop until the window closes.
*/
package main

import (
	"flag"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prismatik/lumen/engine/assets"
	"github.com/prismatik/lumen/engine/config"
	"github.com/prismatik/lumen/engine/core"
	vmath "github.com/prismatik/lumen/engine/math"
	"github.com/prismatik/lumen/engine/platform"
	"github.com/prismatik/lumen/engine/renderer"
	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/vulkan"
)

func main() {
	configPath := flag.String("config", "lumen.toml", "path to the engine configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("loading config: %v", err)
	}
	core.SetLogLevel(cfg.LogLevel)

	p, err := platform.New()
	if err != nil {
		core.LogFatal("platform init: %v", err)
	}
	if err := p.Startup(cfg.AppName, cfg.Width, cfg.Height); err != nil {
		core.LogFatal("opening window: %v", err)
	}
	defer p.Shutdown()

	device, err := vulkan.New(p, cfg.AppName, cfg.Validation)
	if err != nil {
		core.LogFatal("creating device: %v", err)
	}
	defer device.Destroy()

	r, err := renderer.New(device, cfg)
	if err != nil {
		core.LogFatal("creating renderer: %v", err)
	}
	defer r.Shutdown()

	vert, frag, err := loadShaders(device, cfg.ShaderDir)
	if err != nil {
		core.LogFatal("loading shaders: %v", err)
	}
	defer device.DestroyShaderModule(vert)
	defer device.DestroyShaderModule(frag)

	scene, err := buildScene(r, vert, frag)
	if err != nil {
		core.LogFatal("building scene: %v", err)
	}

	// Rebuilt shader binaries are picked up between frames so a running
	// session sees pipeline changes without a restart.
	watcher, err := renderer.WatchShaders(cfg.ShaderDir, func(path string) {
		core.LogInfo("shader changed: %s", path)
	})
	if err != nil {
		core.LogWarn("shader watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	p.OnResize = func(width, height uint32) {
		r.Resize(width, height)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	clock := core.NewClock()
	clock.Start()
	lastReport := time.Now()
	var angle float32

	for !p.ShouldClose() {
		select {
		case <-sigCh:
			core.LogInfo("interrupted, shutting down")
			return
		default:
		}

		p.PumpMessages()

		// A minimized window has a zero-area surface; block until the
		// window becomes renderable again.
		if w, h := p.FramebufferExtent(); w == 0 || h == 0 {
			p.WaitEvents()
			continue
		}

		delta := clock.Update()
		angle += float32(delta.Seconds())
		scene.Items[0].Transform = vmath.RotateY(angle)

		if err := r.RenderFrame(scene); err != nil {
			core.LogFatal("rendering frame: %v", err)
		}

		if time.Since(lastReport) >= 5*time.Second {
			core.LogInfo("%.1f fps, %.2f ms/frame", r.FPS(), r.FrameTime())
			lastReport = time.Now()
		}
	}

	if err := r.Drain(); err != nil {
		core.LogError("draining frames: %v", err)
	}
}

func loadShaders(device gpu.Device, dir string) (gpu.ShaderModule, gpu.ShaderModule, error) {
	vertCode, err := os.ReadFile(filepath.Join(dir, "basic.vert.spv"))
	if err != nil {
		return 0, 0, err
	}
	fragCode, err := os.ReadFile(filepath.Join(dir, "basic.frag.spv"))
	if err != nil {
		return 0, 0, err
	}
	vert, err := device.CreateShaderModule(vertCode)
	if err != nil {
		return 0, 0, err
	}
	frag, err := device.CreateShaderModule(fragCode)
	if err != nil {
		device.DestroyShaderModule(vert)
		return 0, 0, err
	}
	return vert, frag, nil
}

func buildScene(r *renderer.Renderer, vert, frag gpu.ShaderModule) (*renderer.Scene, error) {
	cube, err := renderer.NewMesh(r.Registry(), "cube", cubeVertices(), cubeIndices())
	if err != nil {
		return nil, err
	}

	pixels, extent, err := assets.LoadTexturePixels(filepath.Join("assets", "checker.png"))
	if err != nil {
		core.LogInfo("no texture on disk, using generated checkerboard")
		pixels, extent = checkerPixels(256, 32)
	}
	texture, err := renderer.NewTexture(r.Registry(), "checker", pixels, extent)
	if err != nil {
		return nil, err
	}

	material := r.MaterialConfig("basic-textured", vert, frag, true)
	r.Pipelines().Prewarm([]gpu.PipelineConfig{material})

	camera := renderer.Camera{
		View:       vmath.Translate(0, 0, -4),
		Projection: vmath.Perspective(45*math.Pi/180, 16.0/9.0, 0.1, 100),
	}

	return &renderer.Scene{
		Camera: camera,
		Items: []renderer.DrawItem{{
			Mesh:      cube,
			Material:  material,
			Transform: vmath.Mat4Identity(),
			Texture:   texture,
		}},
	}, nil
}

// checkerPixels builds an RGBA checkerboard without touching the filesystem
// so the demo runs from a bare checkout.
func checkerPixels(size, square int) ([]byte, gpu.Extent2D) {
	pixels := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := (y*size + x) * 4
			if ((x/square)+(y/square))%2 == 0 {
				pixels[i], pixels[i+1], pixels[i+2] = 230, 230, 230
			} else {
				pixels[i], pixels[i+1], pixels[i+2] = 40, 40, 60
			}
			pixels[i+3] = 255
		}
	}
	return pixels, gpu.Extent2D{Width: uint32(size), Height: uint32(size)}
}

func cubeVertices() []vmath.Vertex3D {
	v := func(px, py, pz, nx, ny, nz, u, w float32) vmath.Vertex3D {
		return vmath.Vertex3D{
			Position: [3]float32{px, py, pz},
			Normal:   [3]float32{nx, ny, nz},
			Texcoord: [2]float32{u, w},
		}
	}
	return []vmath.Vertex3D{
		// front
		v(-1, -1, 1, 0, 0, 1, 0, 0), v(1, -1, 1, 0, 0, 1, 1, 0),
		v(1, 1, 1, 0, 0, 1, 1, 1), v(-1, 1, 1, 0, 0, 1, 0, 1),
		// back
		v(1, -1, -1, 0, 0, -1, 0, 0), v(-1, -1, -1, 0, 0, -1, 1, 0),
		v(-1, 1, -1, 0, 0, -1, 1, 1), v(1, 1, -1, 0, 0, -1, 0, 1),
		// left
		v(-1, -1, -1, -1, 0, 0, 0, 0), v(-1, -1, 1, -1, 0, 0, 1, 0),
		v(-1, 1, 1, -1, 0, 0, 1, 1), v(-1, 1, -1, -1, 0, 0, 0, 1),
		// right
		v(1, -1, 1, 1, 0, 0, 0, 0), v(1, -1, -1, 1, 0, 0, 1, 0),
		v(1, 1, -1, 1, 0, 0, 1, 1), v(1, 1, 1, 1, 0, 0, 0, 1),
		// top
		v(-1, 1, 1, 0, 1, 0, 0, 0), v(1, 1, 1, 0, 1, 0, 1, 0),
		v(1, 1, -1, 0, 1, 0, 1, 1), v(-1, 1, -1, 0, 1, 0, 0, 1),
		// bottom
		v(-1, -1, -1, 0, -1, 0, 0, 0), v(1, -1, -1, 0, -1, 0, 1, 0),
		v(1, -1, 1, 0, -1, 0, 1, 1), v(-1, -1, 1, 0, -1, 0, 0, 1),
	}
}

func cubeIndices() []uint32 {
	indices := make([]uint32, 0, 36)
	for face := uint32(0); face < 6; face++ {
		base := face * 4
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return indices
}
