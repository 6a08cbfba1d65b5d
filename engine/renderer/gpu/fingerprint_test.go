package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prismatik/lumen/engine/renderer/gpu"
)

func basePipelineConfig() gpu.PipelineConfig {
	return gpu.PipelineConfig{
		Name:           "mesh",
		VertexShader:   1,
		FragmentShader: 2,
		VertexStride:   32,
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: 0},
			{Location: 1, Format: gpu.FormatR32G32Sfloat, Offset: 12},
		},
		CullMode:         gpu.CullModeBack,
		DepthTest:        true,
		DepthWrite:       true,
		ColorFormat:      gpu.FormatB8G8R8A8Srgb,
		DepthFormat:      gpu.FormatD32Sfloat,
		PushConstantSize: 64,
		SetTemplates: []gpu.SetTemplate{
			{Bindings: []gpu.Binding{{Slot: 0, Type: gpu.BindingUniformBuffer}}},
		},
	}
}

func TestPipelineFingerprintIgnoresName(t *testing.T) {
	a := basePipelineConfig()
	b := basePipelineConfig()
	b.Name = "something-else"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestPipelineFingerprintSeparatesState(t *testing.T) {
	base := basePipelineConfig()

	mutations := map[string]func(*gpu.PipelineConfig){
		"vertex shader":  func(c *gpu.PipelineConfig) { c.VertexShader = 9 },
		"cull mode":      func(c *gpu.PipelineConfig) { c.CullMode = gpu.CullModeNone },
		"wireframe":      func(c *gpu.PipelineConfig) { c.Wireframe = true },
		"blending":       func(c *gpu.PipelineConfig) { c.BlendAlpha = true },
		"depth test":     func(c *gpu.PipelineConfig) { c.DepthTest = false },
		"color format":   func(c *gpu.PipelineConfig) { c.ColorFormat = gpu.FormatR8G8B8A8Unorm },
		"push constants": func(c *gpu.PipelineConfig) { c.PushConstantSize = 128 },
		"attribute offset": func(c *gpu.PipelineConfig) {
			c.Attributes[1].Offset = 16
		},
		"set templates": func(c *gpu.PipelineConfig) {
			c.SetTemplates = append(c.SetTemplates, gpu.SetTemplate{
				Bindings: []gpu.Binding{{Slot: 0, Type: gpu.BindingCombinedImageSampler}},
			})
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := basePipelineConfig()
			mutate(&changed)
			assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())
		})
	}
}

func TestSetTemplateFingerprint(t *testing.T) {
	uniform := gpu.SetTemplate{Bindings: []gpu.Binding{{Slot: 0, Type: gpu.BindingUniformBuffer}}}
	sampler := gpu.SetTemplate{Bindings: []gpu.Binding{{Slot: 0, Type: gpu.BindingCombinedImageSampler}}}
	shifted := gpu.SetTemplate{Bindings: []gpu.Binding{{Slot: 1, Type: gpu.BindingUniformBuffer}}}

	assert.Equal(t, uniform.Fingerprint(), gpu.SetTemplate{Bindings: []gpu.Binding{{Slot: 0, Type: gpu.BindingUniformBuffer}}}.Fingerprint())
	assert.NotEqual(t, uniform.Fingerprint(), sampler.Fingerprint())
	assert.NotEqual(t, uniform.Fingerprint(), shifted.Fingerprint())
}
