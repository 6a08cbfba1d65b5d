package gpu_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

var uniformTemplate = gpu.SetTemplate{Bindings: []gpu.Binding{
	{Slot: 0, Type: gpu.BindingUniformBuffer},
}}

func uniformWrite(buffer gpu.BufferHandle) []gpu.DescriptorWrite {
	return []gpu.DescriptorWrite{{
		Slot:   0,
		Type:   gpu.BindingUniformBuffer,
		Buffer: buffer,
		Range:  256,
	}}
}

func TestBinderNeverReusesInFlightSets(t *testing.T) {
	device := gputest.NewDevice()
	clock := gpu.NewFrameClock()
	binder := gpu.NewBinder(device, clock, 8)

	buffer, _, err := device.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)

	first, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	binder.MarkUsed(first, 1)

	// Frame 1 has not completed; binding again must take a fresh set, not
	// rewrite the one the GPU may still be reading.
	second, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	assert.NotEqual(t, first.DeviceSet(), second.DeviceSet())
	assert.Equal(t, 2, device.Counters().SetAllocs)
	binder.MarkUsed(second, 1)

	// Once the frame completes, the oldest returned set is reusable.
	clock.FrameSubmitted()
	clock.FrameCompleted(1)
	third, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	assert.Equal(t, first.DeviceSet(), third.DeviceSet())
	assert.Equal(t, 2, device.Counters().SetAllocs, "no new allocation after reuse")
}

func TestBinderExhaustionFailsWithoutStallHook(t *testing.T) {
	device := gputest.NewDevice()
	clock := gpu.NewFrameClock()
	binder := gpu.NewBinder(device, clock, 1)

	buffer, _, err := device.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)

	bs, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	binder.MarkUsed(bs, 1)

	_, err = binder.Bind(uniformTemplate, uniformWrite(buffer))
	assert.Error(t, err)
}

func TestBinderStallsAndReclaims(t *testing.T) {
	device := gputest.NewDevice()
	clock := gpu.NewFrameClock()
	binder := gpu.NewBinder(device, clock, 1)

	stalls := 0
	binder.SetStallFunc(func() error {
		stalls++
		// Model the frame scheduler observing the oldest fence.
		clock.FrameCompleted(1)
		return nil
	})

	buffer, _, err := device.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)

	first, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	binder.MarkUsed(first, 1)
	clock.FrameSubmitted()

	second, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	assert.Equal(t, 1, stalls, "exhausted pool should stall exactly once")
	assert.Equal(t, first.DeviceSet(), second.DeviceSet())
	assert.Equal(t, 1, device.Counters().SetAllocs)
}

func TestBinderStallErrorPropagates(t *testing.T) {
	device := gputest.NewDevice()
	clock := gpu.NewFrameClock()
	binder := gpu.NewBinder(device, clock, 1)
	binder.SetStallFunc(func() error {
		return fmt.Errorf("no in-flight frame to wait for")
	})

	buffer, _, err := device.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)

	bs, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
	require.NoError(t, err)
	binder.MarkUsed(bs, 1)

	_, err = binder.Bind(uniformTemplate, uniformWrite(buffer))
	assert.ErrorContains(t, err, "no in-flight frame")
}

func TestBinderStaticSetsAreShared(t *testing.T) {
	device := gputest.NewDevice()
	clock := gpu.NewFrameClock()
	binder := gpu.NewBinder(device, clock, 8)

	template := gpu.SetTemplate{Bindings: []gpu.Binding{
		{Slot: 0, Type: gpu.BindingCombinedImageSampler},
	}}
	image, _, err := device.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}})
	require.NoError(t, err)
	sampler, err := device.CreateSampler(gpu.SamplerDesc{})
	require.NoError(t, err)
	writes := []gpu.DescriptorWrite{{
		Slot:    0,
		Type:    gpu.BindingCombinedImageSampler,
		Image:   image,
		Sampler: sampler,
	}}

	a, err := binder.BindStatic(template, writes)
	require.NoError(t, err)
	b, err := binder.BindStatic(template, writes)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, device.Counters().SetAllocs)

	// A different image is a different static set.
	image2, _, err := device.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}})
	require.NoError(t, err)
	writes2 := []gpu.DescriptorWrite{{
		Slot:    0,
		Type:    gpu.BindingCombinedImageSampler,
		Image:   image2,
		Sampler: sampler,
	}}
	c, err := binder.BindStatic(template, writes2)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestBinderReleaseFreesEverything(t *testing.T) {
	device := gputest.NewDevice()
	clock := gpu.NewFrameClock()
	binder := gpu.NewBinder(device, clock, 8)

	buffer, _, err := device.CreateBuffer(256, gpu.BufferUsageUniform)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		bs, err := binder.Bind(uniformTemplate, uniformWrite(buffer))
		require.NoError(t, err)
		binder.MarkUsed(bs, uint64(i+1))
	}

	binder.Release()
	assert.Zero(t, device.Live()["sets"])
}
