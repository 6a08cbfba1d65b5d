package gpu_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

func newPipelineCache(t *testing.T) (*gputest.Device, *gpu.PipelineCache) {
	t.Helper()
	device := gputest.NewDevice()
	pass, err := device.CreateRenderPass(gpu.FormatB8G8R8A8Srgb, gpu.FormatD32Sfloat)
	require.NoError(t, err)
	return device, gpu.NewPipelineCache(device, pass)
}

func TestPipelineCacheDeduplicates(t *testing.T) {
	device, cache := newPipelineCache(t)

	cfg := basePipelineConfig()
	a, err := cache.GetOrBuild(cfg)
	require.NoError(t, err)

	same := basePipelineConfig()
	same.Name = "renamed copy"
	b, err := cache.GetOrBuild(same)
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical state must share one pipeline")
	assert.Equal(t, 1, device.Counters().PipelineBuilds)
	assert.Equal(t, 1, cache.Len())
}

func TestPipelineCacheSeparatesDifferentState(t *testing.T) {
	device, cache := newPipelineCache(t)

	a, err := cache.GetOrBuild(basePipelineConfig())
	require.NoError(t, err)

	wireframe := basePipelineConfig()
	wireframe.Wireframe = true
	b, err := cache.GetOrBuild(wireframe)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, device.Counters().PipelineBuilds)
	assert.Equal(t, 2, cache.Len())
}

func TestPipelineCacheBuildFailureWithoutFallback(t *testing.T) {
	device, cache := newPipelineCache(t)
	device.FailPipelines = map[string]error{
		"broken": fmt.Errorf("stage mismatch: %w", core.ErrPipelineBuild),
	}

	cfg := basePipelineConfig()
	cfg.Name = "broken"
	_, err := cache.GetOrBuild(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPipelineBuild))
}

func TestPipelineCacheFallsBack(t *testing.T) {
	device, cache := newPipelineCache(t)
	device.FailPipelines = map[string]error{
		"broken": fmt.Errorf("stage mismatch: %w", core.ErrPipelineBuild),
	}

	fallbackCfg := basePipelineConfig()
	fallbackCfg.Name = "fallback"
	fallbackCfg.Wireframe = true
	require.NoError(t, cache.SetFallback(fallbackCfg))

	broken := basePipelineConfig()
	broken.Name = "broken"
	broken.BlendAlpha = true
	got, err := cache.GetOrBuild(broken)
	require.NoError(t, err, "fallback should absorb the failure")

	builds := device.Counters().PipelineBuilds

	// The failure is cached; retrying must not rebuild every call.
	again, err := cache.GetOrBuild(broken)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, builds, device.Counters().PipelineBuilds)
}

func TestPipelineCachePrewarm(t *testing.T) {
	device, cache := newPipelineCache(t)

	solid := basePipelineConfig()
	blend := basePipelineConfig()
	blend.BlendAlpha = true
	cache.Prewarm([]gpu.PipelineConfig{solid, blend, solid})

	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 2, device.Counters().PipelineBuilds)
}

func TestPipelineCacheRelease(t *testing.T) {
	device, cache := newPipelineCache(t)

	_, err := cache.GetOrBuild(basePipelineConfig())
	require.NoError(t, err)
	fallback := basePipelineConfig()
	fallback.Wireframe = true
	require.NoError(t, cache.SetFallback(fallback))

	cache.Release()
	assert.Zero(t, device.Live()["pipelines"])
	assert.Zero(t, cache.Len())
}
