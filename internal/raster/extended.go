package raster

import (
	"fmt"
)

// ExtendedCompoundImage overlays an unordered set of compatible images
// over a nodata background: later images paint over earlier ones. With
// masks enabled, only pixels whose mask value reaches 127 overwrite.
type ExtendedCompoundImage struct {
	geometry

	images []Image
	masks  []Image
	nodata []float64

	// mirrors counts trailing images that are reflection padding, not
	// data; the coverage mask ignores them.
	mirrors int
}

// NewExtendedCompoundImage checks pairwise compatibility and builds the
// overlay. masks may be nil; otherwise it holds one mask per image (nil
// entries allowed).
func NewExtendedCompoundImage(width, height, channels int, bbox BBox,
	images []Image, masks []Image, nodata []float64, mirrors int) (*ExtendedCompoundImage, error) {

	if len(images) == 0 {
		return nil, fmt.Errorf("extended compound image needs at least one image")
	}
	for i := 0; i+1 < len(images); i++ {
		if !Compatible(images[i], images[i+1]) {
			return nil, fmt.Errorf(
				"images %d and %d are not compatible: res (%g,%g) phase (%g,%g) vs res (%g,%g) phase (%g,%g)",
				i, i+1,
				images[i].ResX(), images[i].ResY(), PhaseXOf(images[i]), PhaseYOf(images[i]),
				images[i+1].ResX(), images[i+1].ResY(), PhaseXOf(images[i+1]), PhaseYOf(images[i+1]))
		}
	}
	if masks != nil && len(masks) != len(images) {
		return nil, fmt.Errorf("%d masks for %d images", len(masks), len(images))
	}

	return &ExtendedCompoundImage{
		geometry: newGeometry(width, height, channels, bbox),
		images:   images,
		masks:    masks,
		nodata:   nodata,
		mirrors:  mirrors,
	}, nil
}

// Images returns the overlaid images, mirrors included.
func (e *ExtendedCompoundImage) Images() []Image { return e.images }

// Mirrors returns the number of trailing mirror images.
func (e *ExtendedCompoundImage) Mirrors() int { return e.mirrors }

// UseMasks reports whether per-image masks gate the overlay.
func (e *ExtendedCompoundImage) UseMasks() bool { return e.masks != nil }

func extendedLine[T Sample](e *ExtendedCompoundImage, buf []T, line int) int {
	if line < 0 || line >= e.height {
		return 0
	}
	fillNodata(buf[:e.width*e.channels], e.channels, e.nodata)

	y := e.L2Y(line)

	for i, img := range e.images {
		// Intersections are computed on pixel indices, not terrain
		// floats: cheap and immune to rounding.
		if e.Y2L(img.BBox().Ymin) <= line || e.Y2L(img.BBox().Ymax) > line {
			continue
		}
		if img.BBox().Xmin >= e.bbox.Xmax || img.BBox().Xmax <= e.bbox.Xmin {
			continue
		}

		// c0..c1: column span of the intersection in the output; c2:
		// first output column expressed in the sub-image. Rounding at
		// the edges must never run past the sub-image.
		c0 := maxInt(0, e.X2C(img.BBox().Xmin))
		c1 := minInt(e.width, e.X2C(img.BBox().Xmax))
		c2 := -minInt(0, e.X2C(img.BBox().Xmin))
		span := minInt(c1-c0, img.Width()-c2)
		if span <= 0 {
			continue
		}

		srcLine := make([]T, img.Width()*img.Channels())
		srcY := Y2LOf(img, y)
		getLine(img, srcLine, srcY)

		if e.masks == nil || e.masks[i] == nil {
			copy(buf[c0*e.channels:(c0+span)*e.channels], srcLine[c2*e.channels:])
			continue
		}

		mask := e.masks[i]
		maskLine := make([]uint8, mask.Width())
		mask.Line8(maskLine, Y2LOf(mask, y))
		for j := 0; j < span; j++ {
			if maskLine[c2+j] >= 127 {
				copy(buf[(c0+j)*e.channels:(c0+j+1)*e.channels], srcLine[(c2+j)*e.channels:])
			}
		}
	}
	return e.width * e.channels
}

func (e *ExtendedCompoundImage) Line8(buf []uint8, line int) int   { return extendedLine(e, buf, line) }
func (e *ExtendedCompoundImage) LineF(buf []float32, line int) int { return extendedLine(e, buf, line) }

// ExtendedCompoundMask is the coverage mask of an overlay: 255 where any
// non-mirror image has pixels, 0 elsewhere.
type ExtendedCompoundMask struct {
	geometry
	compound *ExtendedCompoundImage
}

func NewExtendedCompoundMask(c *ExtendedCompoundImage) *ExtendedCompoundMask {
	return &ExtendedCompoundMask{
		geometry: newGeometry(c.Width(), c.Height(), 1, c.BBox()),
		compound: c,
	}
}

func (m *ExtendedCompoundMask) Line8(buf []uint8, line int) int {
	if line < 0 || line >= m.height {
		return 0
	}
	for i := 0; i < m.width; i++ {
		buf[i] = 0
	}

	covered := m.compound.images
	covered = covered[:len(covered)-m.compound.mirrors]
	for _, img := range covered {
		if m.Y2L(img.BBox().Ymin) <= line || m.Y2L(img.BBox().Ymax) > line {
			continue
		}
		if img.BBox().Xmin >= m.bbox.Xmax || img.BBox().Xmax <= m.bbox.Xmin {
			continue
		}
		c0 := maxInt(0, m.X2C(img.BBox().Xmin))
		c1 := minInt(m.width, m.X2C(img.BBox().Xmax))
		for i := c0; i < c1; i++ {
			buf[i] = 255
		}
	}
	return m.width
}

func (m *ExtendedCompoundMask) LineF(buf []float32, line int) int {
	tmp := make([]uint8, m.width)
	n := m.Line8(tmp, line)
	u8ToF32(buf, tmp, n)
	return n
}

// Y2LOf computes an image's line index for a terrain ordinate.
func Y2LOf(img Image, y float64) int {
	b := img.BBox()
	return int(roundHalfAway((b.Ymax - y) / img.ResY()))
}

func roundHalfAway(v float64) float64 {
	if v < 0 {
		return -float64(int(-v + 0.5))
	}
	return float64(int(v + 0.5))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
