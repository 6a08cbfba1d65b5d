package renderer

import (
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// NewTexture creates a sampled device-local image and stages the RGBA pixel
// data for upload on the next frame.
func NewTexture(reg *gpu.Registry, name string, pixels []byte, extent gpu.Extent2D) (gpu.Handle, error) {
	img, err := reg.CreateImage(name, gpu.ImageDesc{
		Extent: extent,
		Format: gpu.FormatR8G8B8A8Srgb,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	}, gpu.MemoryDeviceLocal)
	if err != nil {
		return gpu.Handle{}, err
	}
	if err := reg.Upload(img, pixels); err != nil {
		reg.Destroy(img)
		return gpu.Handle{}, err
	}
	return img, nil
}
