package math

import (
	"encoding/binary"
	stdmath "math"
)

// Mat4 is a column-major 4x4 matrix, the layout expected by shader uniform
// blocks.
type Mat4 [16]float32

func Mat4Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m * other.
func (m Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * other[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Bytes serializes the matrix little-endian for uniform and push constant
// uploads.
func (m Mat4) Bytes() []byte {
	out := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(out[i*4:], stdmath.Float32bits(v))
	}
	return out
}

// Perspective builds a right-handed perspective projection with depth in
// [0, 1] and the Y axis flipped for Vulkan clip space.
func Perspective(fovYRadians, aspect, near, far float32) Mat4 {
	f := float32(1.0 / stdmath.Tan(float64(fovYRadians)/2))
	var out Mat4
	out[0] = f / aspect
	out[5] = -f
	out[10] = far / (near - far)
	out[11] = -1
	out[14] = (near * far) / (near - far)
	return out
}

// Translate returns a translation matrix.
func Translate(x, y, z float32) Mat4 {
	out := Mat4Identity()
	out[12] = x
	out[13] = y
	out[14] = z
	return out
}

// RotateY returns a rotation around the Y axis.
func RotateY(radians float32) Mat4 {
	s := float32(stdmath.Sin(float64(radians)))
	c := float32(stdmath.Cos(float64(radians)))
	out := Mat4Identity()
	out[0] = c
	out[2] = -s
	out[8] = s
	out[10] = c
	return out
}

// Vertex3D is the vertex layout consumed by the default mesh pipelines:
// position, normal, texture coordinates.
type Vertex3D struct {
	Position [3]float32
	Normal   [3]float32
	Texcoord [2]float32
}
