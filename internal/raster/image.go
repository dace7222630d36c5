// Package raster provides the lazy image abstraction of the render path.
// An Image is a pixel rectangle with a terrain bounding box and per-axis
// resolutions, read one scanline at a time. Operator images (compound,
// extended compound, decimated, mirror, resampled, reprojected) implement
// the same contract and compose into a render graph that only touches the
// source tiles a scanline actually needs.
package raster

import (
	"fmt"
	"math"
)

// BBox is a terrain-coordinate bounding box.
type BBox struct {
	Xmin, Ymin, Xmax, Ymax float64
}

func (b BBox) Width() float64  { return b.Xmax - b.Xmin }
func (b BBox) Height() float64 { return b.Ymax - b.Ymin }

// Sample constrains the two scanline sample types of the contract.
type Sample interface {
	~uint8 | ~float32
}

// Image is the lazy raster contract. Line8 and LineF fill one scanline of
// channels-interleaved samples and return the number of samples written;
// a line outside [0,height) writes nothing and returns 0. Conversion
// between the two sample types is automatic: float to 8-bit saturates.
type Image interface {
	Width() int
	Height() int
	Channels() int

	BBox() BBox
	SetBBox(BBox)
	ResX() float64
	ResY() float64

	Mask() Image
	SetMask(Image) error

	Line8(buf []uint8, line int) int
	LineF(buf []float32, line int) int
}

// geometry carries the shared spatial state of every image kind.
type geometry struct {
	width    int
	height   int
	channels int
	bbox     BBox
	resx     float64
	resy     float64
	mask     Image
}

// newGeometry derives the resolutions from the pixel and terrain sizes.
func newGeometry(width, height, channels int, bbox BBox) geometry {
	g := geometry{width: width, height: height, channels: channels}
	g.SetBBox(bbox)
	return g
}

// newGeometryRes keeps explicitly provided resolutions.
func newGeometryRes(width, height, channels int, resx, resy float64, bbox BBox) geometry {
	return geometry{width: width, height: height, channels: channels, bbox: bbox, resx: resx, resy: resy}
}

func (g *geometry) Width() int    { return g.width }
func (g *geometry) Height() int   { return g.height }
func (g *geometry) Channels() int { return g.channels }
func (g *geometry) BBox() BBox    { return g.bbox }
func (g *geometry) ResX() float64 { return g.resx }
func (g *geometry) ResY() float64 { return g.resy }
func (g *geometry) Mask() Image   { return g.mask }

func (g *geometry) SetBBox(b BBox) {
	g.bbox = b
	if g.width > 0 {
		g.resx = (b.Xmax - b.Xmin) / float64(g.width)
	}
	if g.height > 0 {
		g.resy = (b.Ymax - b.Ymin) / float64(g.height)
	}
}

func (g *geometry) SetMask(m Image) error {
	if m.Width() != g.width || m.Height() != g.height || m.Channels() != 1 {
		return fmt.Errorf("mask %dx%dx%d does not match image %dx%d",
			m.Width(), m.Height(), m.Channels(), g.width, g.height)
	}
	g.mask = m
	return nil
}

// X2C converts a terrain abscissa to the nearest column index.
func (g *geometry) X2C(x float64) int { return int(math.Round((x - g.bbox.Xmin) / g.resx)) }

// Y2L converts a terrain ordinate to the nearest line index.
func (g *geometry) Y2L(y float64) int { return int(math.Round((g.bbox.Ymax - y) / g.resy)) }

// C2X converts a column index to the terrain abscissa of its left edge.
func (g *geometry) C2X(c int) float64 { return g.bbox.Xmin + float64(c)*g.resx }

// L2Y converts a line index to the terrain ordinate of its top edge.
func (g *geometry) L2Y(l int) float64 { return g.bbox.Ymax - float64(l)*g.resy }

// PhaseX is the fractional alignment of the left edge to the resolution,
// in [0,1).
func (g *geometry) PhaseX() float64 { return phase(g.bbox.Xmin, g.resx) }

// PhaseY is the fractional alignment of the top edge to the resolution.
func (g *geometry) PhaseY() float64 { return phase(g.bbox.Ymax, g.resy) }

func phase(v, res float64) float64 {
	_, frac := math.Modf(v / res)
	if frac < 0 {
		frac += 1
	}
	return frac
}

// PhaseXOf computes the X phase of any image.
func PhaseXOf(img Image) float64 { return phase(img.BBox().Xmin, img.ResX()) }

// PhaseYOf computes the Y phase of any image.
func PhaseYOf(img Image) float64 { return phase(img.BBox().Ymax, img.ResY()) }

// Compatible reports whether two images can be stitched without
// resampling: resolutions equal within a thousandth of the smaller one,
// phases equal within 0.01 modulo 1.
func Compatible(a, b Image) bool {
	epsX := math.Min(a.ResX(), b.ResX()) / 1000
	epsY := math.Min(a.ResY(), b.ResY()) / 1000

	if math.Abs(a.ResX()-b.ResX()) > epsX {
		return false
	}
	if math.Abs(a.ResY()-b.ResY()) > epsY {
		return false
	}

	if d := math.Abs(PhaseXOf(a) - PhaseXOf(b)); d > 0.01 && d < 0.99 {
		return false
	}
	if d := math.Abs(PhaseYOf(a) - PhaseYOf(b)); d > 0.01 && d < 0.99 {
		return false
	}
	return true
}

// getLine pulls one scanline of an image in the requested sample type.
func getLine[T Sample](img Image, buf []T, line int) int {
	switch b := any(buf).(type) {
	case []uint8:
		return img.Line8(b, line)
	case []float32:
		return img.LineF(b, line)
	}
	return 0
}

// fillNodata writes the per-channel nodata value over a whole line.
func fillNodata[T Sample](buf []T, channels int, nodata []float64) {
	for i := range buf {
		buf[i] = T(nodata[i%channels])
	}
}
