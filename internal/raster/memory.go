package raster

// MemoryImage is a fully materialized raster. The writer tools use it to
// hold work images, and it doubles as a building block in tests.
type MemoryImage struct {
	geometry

	kind SampleKind
	raw  []byte
}

// NewMemoryImage allocates a zeroed raster of the given geometry.
func NewMemoryImage(width, height, channels int, kind SampleKind, bbox BBox) *MemoryImage {
	return &MemoryImage{
		geometry: newGeometry(width, height, channels, bbox),
		kind:     kind,
		raw:      make([]byte, width*height*channels*kind.BytesPerSample()),
	}
}

// NewMemoryImageFrom wraps existing raw bytes, which must hold
// width*height*channels samples of the given kind.
func NewMemoryImageFrom(raw []byte, width, height, channels int, kind SampleKind, bbox BBox) *MemoryImage {
	return &MemoryImage{
		geometry: newGeometry(width, height, channels, bbox),
		kind:     kind,
		raw:      raw,
	}
}

// Raw exposes the backing bytes.
func (m *MemoryImage) Raw() []byte { return m.raw }

// Kind returns the sample kind of the backing bytes.
func (m *MemoryImage) Kind() SampleKind { return m.kind }

func (m *MemoryImage) lineBytes(line int) []byte {
	stride := m.width * m.channels * m.kind.BytesPerSample()
	return m.raw[line*stride : (line+1)*stride]
}

// ReadLine copies the raw bytes of one scanline, satisfying the slab
// writer's line source contract.
func (m *MemoryImage) ReadLine(buf []byte, line int) (int, error) {
	row := m.lineBytes(line)
	copy(buf, row)
	return len(row), nil
}

func (m *MemoryImage) Line8(buf []uint8, line int) int {
	if line < 0 || line >= m.height {
		return 0
	}
	n := m.width * m.channels
	if m.kind == SampleU8 {
		copy(buf[:n], m.lineBytes(line))
		return n
	}
	tmp := make([]float32, n)
	rawToF32(tmp, m.lineBytes(line), m.kind, n)
	f32ToU8(buf, tmp, n)
	return n
}

func (m *MemoryImage) LineF(buf []float32, line int) int {
	if line < 0 || line >= m.height {
		return 0
	}
	n := m.width * m.channels
	rawToF32(buf, m.lineBytes(line), m.kind, n)
	return n
}
