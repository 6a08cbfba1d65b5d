package renderer

import (
	vmath "github.com/prismatik/lumen/engine/math"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// Camera carries the view and projection matrices written into the global
// uniform buffer each frame.
type Camera struct {
	View       vmath.Mat4
	Projection vmath.Mat4
}

// Mesh references geometry owned by the resource registry.
type Mesh struct {
	Vertices    gpu.Handle
	Indices     gpu.Handle
	VertexCount uint32
	IndexCount  uint32
}

// DrawItem is one mesh instance to render. Material is resolved through the
// pipeline cache by fingerprint, so sharing a config across items shares the
// pipeline. Texture is optional; the zero handle draws untextured.
type DrawItem struct {
	Mesh      *Mesh
	Material  gpu.PipelineConfig
	Transform vmath.Mat4
	Texture   gpu.Handle
}

// Scene is everything the renderer needs for one frame.
type Scene struct {
	Camera Camera
	Items  []DrawItem
}
