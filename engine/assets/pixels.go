// Package assets loads external resources into the byte layouts the
// renderer uploads to the GPU.
package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// PixelsRGBA converts any decoded image to tightly packed 8-bit RGBA.
func PixelsRGBA(img image.Image) ([]byte, gpu.Extent2D) {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba.Pix, gpu.Extent2D{Width: uint32(bounds.Dx()), Height: uint32(bounds.Dy())}
}

// LoadTexturePixels decodes an image file into RGBA pixels ready for a
// sampled image upload.
func LoadTexturePixels(path string) ([]byte, gpu.Extent2D, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gpu.Extent2D{}, fmt.Errorf("opening texture %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, gpu.Extent2D{}, fmt.Errorf("decoding texture %s: %w", path, err)
	}
	pixels, extent := PixelsRGBA(img)
	return pixels, extent, nil
}
