package raster

import "fmt"

// MirrorSide positions a mirror around its source.
type MirrorSide int

const (
	MirrorTop MirrorSide = iota
	MirrorRight
	MirrorBottom
	MirrorLeft
)

// MirrorImage reflects a source image outwards to supply the halo pixels
// interpolation kernels need near image edges. Top and bottom mirrors are
// sourceWidth+2*size wide and size tall, with the corners filled by
// reflecting the line again; left and right mirrors are size wide and
// sourceHeight tall. Mirrors carry virtual pixels only.
type MirrorImage struct {
	geometry

	source Image
	side   MirrorSide
	size   int
}

// NewMirrorImage builds the mirror of one side. size must not exceed the
// source dimensions.
func NewMirrorImage(source Image, side MirrorSide, size int) (*MirrorImage, error) {
	if size > source.Width() || size > source.Height() {
		return nil, fmt.Errorf("source %dx%d is smaller than the %d mirror pixels needed",
			source.Width(), source.Height(), size)
	}

	b := source.BBox()
	rx, ry := source.ResX(), source.ResY()
	fs := float64(size)

	var w, h int
	var bbox BBox
	switch side {
	case MirrorTop:
		w, h = source.Width()+2*size, size
		bbox = BBox{b.Xmin - rx*fs, b.Ymax, b.Xmax + rx*fs, b.Ymax + ry*fs}
	case MirrorBottom:
		w, h = source.Width()+2*size, size
		bbox = BBox{b.Xmin - rx*fs, b.Ymin - ry*fs, b.Xmax + rx*fs, b.Ymin}
	case MirrorRight:
		w, h = size, source.Height()
		bbox = BBox{b.Xmax, b.Ymin, b.Xmax + rx*fs, b.Ymax}
	case MirrorLeft:
		w, h = size, source.Height()
		bbox = BBox{b.Xmin - rx*fs, b.Ymin, b.Xmin, b.Ymax}
	default:
		return nil, fmt.Errorf("invalid mirror side %d", side)
	}

	return &MirrorImage{
		geometry: newGeometryRes(w, h, source.Channels(), rx, ry, bbox),
		source:   source,
		side:     side,
		size:     size,
	}, nil
}

func mirrorLine[T Sample](m *MirrorImage, buf []T, line int) int {
	if line < 0 || line >= m.height {
		return 0
	}

	ch := m.channels
	srcW := m.source.Width()
	srcLine := make([]T, srcW*ch)

	switch m.side {
	case MirrorTop, MirrorBottom:
		var src int
		if m.side == MirrorTop {
			src = m.height - line - 1
		} else {
			src = m.source.Height() - line - 1
		}
		getLine(m.source, srcLine, src)

		copy(buf[m.size*ch:], srcLine)
		for j := 0; j < m.size; j++ {
			// Left and right corners reflect the line once more.
			copy(buf[j*ch:(j+1)*ch], srcLine[(m.size-j-1)*ch:])
			copy(buf[(m.width-j-1)*ch:(m.width-j)*ch], srcLine[(srcW-m.size+j)*ch:])
		}

	case MirrorRight:
		getLine(m.source, srcLine, line)
		for j := 0; j < m.size; j++ {
			copy(buf[j*ch:(j+1)*ch], srcLine[(srcW-j-1)*ch:])
		}

	case MirrorLeft:
		getLine(m.source, srcLine, line)
		for j := 0; j < m.size; j++ {
			copy(buf[j*ch:(j+1)*ch], srcLine[(m.size-j-1)*ch:])
		}
	}
	return m.width * m.channels
}

func (m *MirrorImage) Line8(buf []uint8, line int) int   { return mirrorLine(m, buf, line) }
func (m *MirrorImage) LineF(buf []float32, line int) int { return mirrorLine(m, buf, line) }
