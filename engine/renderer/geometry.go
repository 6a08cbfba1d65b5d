package renderer

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	vmath "github.com/prismatik/lumen/engine/math"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// Vertex3DStride is the byte stride of the default vertex layout.
const Vertex3DStride = 32

// Vertex3DAttributes describes the default layout for pipeline configs:
// position, normal, texcoord.
func Vertex3DAttributes() []gpu.VertexAttribute {
	return []gpu.VertexAttribute{
		{Location: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Format: gpu.FormatR32G32B32Sfloat, Offset: 12},
		{Location: 2, Format: gpu.FormatR32G32Sfloat, Offset: 24},
	}
}

// NewMesh creates device-local vertex and index buffers through the registry
// and stages the geometry for upload on the next frame. indices may be empty
// for non-indexed meshes.
func NewMesh(reg *gpu.Registry, name string, vertices []vmath.Vertex3D, indices []uint32) (*Mesh, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh %q has no vertices", name)
	}

	mesh := &Mesh{VertexCount: uint32(len(vertices)), IndexCount: uint32(len(indices))}

	vbuf, err := reg.CreateBuffer(
		name+".vertices",
		uint64(len(vertices)*Vertex3DStride),
		gpu.BufferUsageVertex|gpu.BufferUsageTransferDst,
		gpu.MemoryDeviceLocal,
	)
	if err != nil {
		return nil, err
	}
	if err := reg.Upload(vbuf, vertexBytes(vertices)); err != nil {
		reg.Destroy(vbuf)
		return nil, err
	}
	mesh.Vertices = vbuf

	if len(indices) > 0 {
		ibuf, err := reg.CreateBuffer(
			name+".indices",
			uint64(len(indices)*4),
			gpu.BufferUsageIndex|gpu.BufferUsageTransferDst,
			gpu.MemoryDeviceLocal,
		)
		if err != nil {
			reg.Destroy(vbuf)
			return nil, err
		}
		if err := reg.Upload(ibuf, indexBytes(indices)); err != nil {
			reg.Destroy(ibuf)
			reg.Destroy(vbuf)
			return nil, err
		}
		mesh.Indices = ibuf
	}
	return mesh, nil
}

// Destroy releases the mesh buffers through the registry's deferred path.
func (m *Mesh) Destroy(reg *gpu.Registry) {
	if !m.Vertices.IsZero() {
		reg.Destroy(m.Vertices)
		m.Vertices = gpu.Handle{}
	}
	if !m.Indices.IsZero() {
		reg.Destroy(m.Indices)
		m.Indices = gpu.Handle{}
	}
}

func vertexBytes(vertices []vmath.Vertex3D) []byte {
	out := make([]byte, 0, len(vertices)*Vertex3DStride)
	var scratch [4]byte
	put := func(v float32) {
		binary.LittleEndian.PutUint32(scratch[:], stdmath.Float32bits(v))
		out = append(out, scratch[:]...)
	}
	for _, v := range vertices {
		put(v.Position[0])
		put(v.Position[1])
		put(v.Position[2])
		put(v.Normal[0])
		put(v.Normal[1])
		put(v.Normal[2])
		put(v.Texcoord[0])
		put(v.Texcoord[1])
	}
	return out
}

func indexBytes(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}
