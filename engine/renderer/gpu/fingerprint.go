package gpu

import (
	"encoding/binary"
	"hash/fnv"
)

// fingerprinter folds values into an FNV-1a hash. Pipeline configurations
// and descriptor set templates are keyed by the resulting flat 64-bit space
// rather than by structural comparison.
type fingerprinter struct {
	buf [8]byte
	h   interface {
		Write(p []byte) (int, error)
		Sum64() uint64
	}
}

func newFingerprinter() *fingerprinter {
	return &fingerprinter{h: fnv.New64a()}
}

func (f *fingerprinter) u32(v uint32) {
	binary.LittleEndian.PutUint32(f.buf[:4], v)
	f.h.Write(f.buf[:4])
}

func (f *fingerprinter) u64(v uint64) {
	binary.LittleEndian.PutUint64(f.buf[:8], v)
	f.h.Write(f.buf[:8])
}

func (f *fingerprinter) boolean(v bool) {
	if v {
		f.h.Write([]byte{1})
	} else {
		f.h.Write([]byte{0})
	}
}

func (f *fingerprinter) sum() uint64 {
	return f.h.Sum64()
}

// Fingerprint computes the cache key for a pipeline configuration. Every
// field that affects the compiled pipeline participates; Name does not.
func (cfg *PipelineConfig) Fingerprint() uint64 {
	f := newFingerprinter()
	f.u64(uint64(cfg.VertexShader))
	f.u64(uint64(cfg.FragmentShader))
	f.u32(cfg.VertexStride)
	f.u32(uint32(len(cfg.Attributes)))
	for _, a := range cfg.Attributes {
		f.u32(a.Location)
		f.u32(uint32(a.Format))
		f.u32(a.Offset)
	}
	f.u32(uint32(cfg.CullMode))
	f.boolean(cfg.Wireframe)
	f.boolean(cfg.BlendAlpha)
	f.boolean(cfg.DepthTest)
	f.boolean(cfg.DepthWrite)
	f.u32(uint32(cfg.ColorFormat))
	f.u32(uint32(cfg.DepthFormat))
	f.u32(cfg.PushConstantSize)
	f.u32(uint32(len(cfg.SetTemplates)))
	for _, t := range cfg.SetTemplates {
		f.u64(t.Fingerprint())
	}
	return f.sum()
}

// Fingerprint keys descriptor pooling: sets with the same template shape
// share a pool.
func (t SetTemplate) Fingerprint() uint64 {
	f := newFingerprinter()
	f.u32(uint32(len(t.Bindings)))
	for _, b := range t.Bindings {
		f.u32(b.Slot)
		f.u32(uint32(b.Type))
	}
	return f.sum()
}
