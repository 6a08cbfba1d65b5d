package gpu

import (
	"fmt"
	"sync"

	"github.com/prismatik/lumen/engine/core"
)

// PipelineCache builds graphics pipeline state objects and caches them by
// configuration fingerprint for the lifetime of the session. Entries are
// never evicted: the key space per application is small and bounded, so
// session-lifetime caching is sufficient.
//
// Lookups of already built pipelines are safe from any recording thread;
// insertion of new ones is serialized.
type PipelineCache struct {
	mu     sync.RWMutex
	device Device
	pass   RenderPassHandle

	entries map[uint64]PipelineHandle

	// fallback is bound in place of any pipeline whose build failed, so a
	// broken material renders as an obvious placeholder instead of taking
	// the frame loop down.
	fallback    PipelineHandle
	hasFallback bool
}

func NewPipelineCache(device Device, pass RenderPassHandle) *PipelineCache {
	return &PipelineCache{
		device:  device,
		pass:    pass,
		entries: make(map[uint64]PipelineHandle),
	}
}

// SetFallback builds the placeholder pipeline used when a material's own
// build fails. Without one, build failures surface as core.ErrPipelineBuild.
func (pc *PipelineCache) SetFallback(cfg PipelineConfig) error {
	handle, err := pc.device.CreatePipeline(cfg, pc.pass)
	if err != nil {
		return fmt.Errorf("building fallback pipeline: %w", err)
	}
	pc.mu.Lock()
	pc.fallback = handle
	pc.hasFallback = true
	pc.mu.Unlock()
	return nil
}

// GetOrBuild returns the cached pipeline for cfg, building it on a miss.
// Identical configurations always yield the identical handle. When a build
// fails and a fallback exists, the fallback handle is returned (and the
// failure cached so the build is not retried every frame); otherwise the
// build error propagates.
func (pc *PipelineCache) GetOrBuild(cfg PipelineConfig) (PipelineHandle, error) {
	key := cfg.Fingerprint()

	pc.mu.RLock()
	handle, ok := pc.entries[key]
	pc.mu.RUnlock()
	if ok {
		return handle, nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if handle, ok := pc.entries[key]; ok {
		return handle, nil
	}

	handle, err := pc.device.CreatePipeline(cfg, pc.pass)
	if err != nil {
		if !pc.hasFallback {
			return 0, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
		}
		core.LogError("pipeline %q failed to build, using fallback: %v", cfg.Name, err)
		pc.entries[key] = pc.fallback
		return pc.fallback, nil
	}

	pc.entries[key] = handle
	core.LogDebug("pipeline %q built (%d cached)", cfg.Name, len(pc.entries))
	return handle, nil
}

// Prewarm builds every missing configuration off the frame-critical path,
// typically at scene-load time, so first use of a material does not stutter.
// Individual failures are logged and fall back; Prewarm never fails the
// batch.
func (pc *PipelineCache) Prewarm(configs []PipelineConfig) {
	for _, cfg := range configs {
		if _, err := pc.GetOrBuild(cfg); err != nil {
			core.LogError("prewarm of pipeline %q: %v", cfg.Name, err)
		}
	}
}

// Len reports the number of cached entries.
func (pc *PipelineCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.entries)
}

// Release destroys every cached pipeline. Only legal after a full drain.
func (pc *PipelineCache) Release() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	destroyed := make(map[PipelineHandle]bool)
	for _, handle := range pc.entries {
		if handle == pc.fallback && pc.hasFallback {
			continue
		}
		if !destroyed[handle] {
			pc.device.DestroyPipeline(handle)
			destroyed[handle] = true
		}
	}
	pc.entries = make(map[uint64]PipelineHandle)

	if pc.hasFallback {
		pc.device.DestroyPipeline(pc.fallback)
		pc.hasFallback = false
	}
}
