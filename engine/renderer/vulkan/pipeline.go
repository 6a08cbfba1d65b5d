package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

func toVkCullMode(mode gpu.CullMode) vk.CullModeFlags {
	switch mode {
	case gpu.CullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case gpu.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
}

func (d *Device) CreatePipeline(config gpu.PipelineConfig, pass gpu.RenderPassHandle) (gpu.PipelineHandle, error) {
	d.mu.Lock()
	vkPass, okPass := d.passes[pass]
	vertModule, okVert := d.shaders[config.VertexShader]
	fragModule, okFrag := d.shaders[config.FragmentShader]
	d.mu.Unlock()
	if !okPass {
		return 0, fmt.Errorf("pipeline %q references unknown render pass %d: %w", config.Name, pass, core.ErrPipelineBuild)
	}
	if !okVert || !okFrag {
		return 0, fmt.Errorf("pipeline %q references unknown shader modules: %w", config.Name, core.ErrPipelineBuild)
	}
	if config.PushConstantSize > d.info.Limits.MaxPushConstantSize {
		return 0, fmt.Errorf("pipeline %q push constant range %d exceeds device limit %d: %w",
			config.Name, config.PushConstantSize, d.info.Limits.MaxPushConstantSize, core.ErrPipelineBuild)
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  "main\x00",
		},
	}

	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    config.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}}
	attributes := make([]vk.VertexInputAttributeDescription, len(config.Attributes))
	for i, attr := range config.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: attr.Location,
			Binding:  0,
			Format:   toVkFormat(attr.Format),
			Offset:   attr.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	if config.VertexStride == 0 {
		vertexInput.VertexBindingDescriptionCount = 0
		vertexInput.PVertexBindingDescriptions = nil
		vertexInput.VertexAttributeDescriptionCount = 0
		vertexInput.PVertexAttributeDescriptions = nil
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	// Viewport and scissor are dynamic so pipelines survive swapchain
	// recreation.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	polygonMode := vk.PolygonModeFill
	if config.Wireframe {
		polygonMode = vk.PolygonModeLine
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: polygonMode,
		LineWidth:   1,
		CullMode:    toVkCullMode(config.CullMode),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLess,
		MaxDepthBounds: 1,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if config.BlendAlpha {
		blendAttachment.BlendEnable = vk.True
		blendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.ColorBlendOp = vk.BlendOpAdd
		blendAttachment.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.AlphaBlendOp = vk.BlendOpAdd
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(config.SetTemplates))
	for i, template := range config.SetTemplates {
		layout, err := d.setLayout(template)
		if err != nil {
			return 0, fmt.Errorf("pipeline %q set %d: %w", config.Name, i, err)
		}
		setLayouts[i] = layout
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if config.PushConstantSize > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       config.PushConstantSize,
		}}
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.ctx.LogicalDevice, &layoutInfo, d.ctx.Allocator, &layout); res != vk.Success {
		return 0, fmt.Errorf("pipeline %q layout: %v: %w", config.Name, resultErr("creating pipeline layout", res), core.ErrPipelineBuild)
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          vkPass,
		Subpass:             0,
	}

	pipelines := make([]vk.Pipeline, 1)
	var buildErr error
	d.locks.SafeCall(pipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(d.ctx.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{createInfo}, d.ctx.Allocator, pipelines)
		if res != vk.Success {
			buildErr = fmt.Errorf("pipeline %q: %v: %w", config.Name, resultErr("creating graphics pipeline", res), core.ErrPipelineBuild)
		}
		return buildErr
	})
	if buildErr != nil {
		vk.DestroyPipelineLayout(d.ctx.LogicalDevice, layout, d.ctx.Allocator)
		return 0, buildErr
	}

	d.mu.Lock()
	h := gpu.PipelineHandle(d.handle())
	d.pipelines[h] = &pipelineObject{pipeline: pipelines[0], layout: layout}
	d.mu.Unlock()
	core.LogDebug("pipeline %q created", config.Name)
	return h, nil
}

func (d *Device) DestroyPipeline(pipeline gpu.PipelineHandle) {
	d.mu.Lock()
	obj, ok := d.pipelines[pipeline]
	delete(d.pipelines, pipeline)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.locks.SafeCall(pipelineManagement, func() error {
		vk.DestroyPipeline(d.ctx.LogicalDevice, obj.pipeline, d.ctx.Allocator)
		vk.DestroyPipelineLayout(d.ctx.LogicalDevice, obj.layout, d.ctx.Allocator)
		return nil
	})
}
