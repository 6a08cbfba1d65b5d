package math

import (
	"encoding/binary"
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMat4IdentityIsMulNeutral(t *testing.T) {
	m := Translate(1, 2, 3).Mul(RotateY(0.7))
	assert.Equal(t, m, m.Mul(Mat4Identity()))
	assert.Equal(t, m, Mat4Identity().Mul(m))
}

func TestMat4MulAppliesRightToLeft(t *testing.T) {
	// Translate after rotate: the translation column must be unchanged by
	// the rotation.
	m := Translate(5, 0, 0).Mul(RotateY(stdmath.Pi / 2))
	assert.InDelta(t, 5, m[12], 1e-6)
	assert.InDelta(t, 0, m[13], 1e-6)
	assert.InDelta(t, 0, m[14], 1e-6)
}

func TestRotateYQuarterTurn(t *testing.T) {
	m := RotateY(stdmath.Pi / 2)
	// Column-major: the X basis vector lands on -Z.
	assert.InDelta(t, 0, m[0], 1e-6)
	assert.InDelta(t, -1, m[2], 1e-6)
	assert.InDelta(t, 1, m[8], 1e-6)
	assert.InDelta(t, 0, m[10], 1e-6)
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := Perspective(stdmath.Pi/4, 16.0/9.0, 0.1, 100)

	project := func(z float32) float32 {
		// Row 3 and 4 of the projection applied to (0, 0, z, 1).
		clipZ := p[10]*z + p[14]
		clipW := p[11] * z
		return clipZ / clipW
	}

	assert.InDelta(t, 0, project(-0.1), 1e-5, "near plane maps to depth 0")
	assert.InDelta(t, 1, project(-100), 1e-4, "far plane maps to depth 1")
	assert.Less(t, p[5], float32(0), "Y is flipped for the surface coordinate convention")
}

func TestMat4BytesLayout(t *testing.T) {
	m := Translate(1, 2, 3)
	b := m.Bytes()
	require.Len(t, b, 64)

	at := func(i int) float32 {
		return stdmath.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	assert.Equal(t, float32(1), at(0))
	assert.Equal(t, float32(1), at(12))
	assert.Equal(t, float32(2), at(13))
	assert.Equal(t, float32(3), at(14))
}

func TestAlignUp(t *testing.T) {
	assert.EqualValues(t, 0, AlignUp(uint64(0), 256))
	assert.EqualValues(t, 256, AlignUp(uint64(1), 256))
	assert.EqualValues(t, 256, AlignUp(uint64(256), 256))
	assert.EqualValues(t, 512, AlignUp(uint64(257), 256))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 2, Clamp(1, 2, 3))
	assert.Equal(t, 3, Clamp(5, 2, 3))
	assert.Equal(t, 2.5, Clamp(2.5, 2.0, 3.0))
}
