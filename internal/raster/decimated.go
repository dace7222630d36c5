package raster

import (
	"fmt"
	"math"
)

// DecimatedImage samples every k-th pixel of a source image, preserving
// pixel-center alignment. Pixels falling outside the source, and pixels
// the source mask rejects, carry nodata.
type DecimatedImage struct {
	geometry

	source Image
	nodata []float64

	ratioX int
	ratioY int

	// imageOffsetX is the first output column backed by the source;
	// sourceOffsetX its column in the source; numberX the sample count.
	imageOffsetX  int
	sourceOffsetX int
	numberX       int
}

// NewDecimatedImage builds a decimation of source onto the given grid.
// The target resolutions must be integer multiples of the source's and
// the pixel centers must stay aligned.
func NewDecimatedImage(source Image, bbox BBox, resx, resy float64, nodata []float64) (*DecimatedImage, error) {
	if source == nil {
		return nil, fmt.Errorf("no source image to decimate")
	}

	if !isIntegerMultiple(resx, source.ResX()) {
		return nil, fmt.Errorf("decimated resolution %g is not a multiple of the source's %g (x wise)", resx, source.ResX())
	}
	if !isIntegerMultiple(resy, source.ResY()) {
		return nil, fmt.Errorf("decimated resolution %g is not a multiple of the source's %g (y wise)", resy, source.ResY())
	}

	// Centers of the top-left pixels must be an integer number of
	// source pixels apart.
	srcB := source.BBox()
	cx := bbox.Xmin + 0.5*resx
	cy := bbox.Ymax - 0.5*resy
	scx := srcB.Xmin + 0.5*source.ResX()
	scy := srcB.Ymax - 0.5*source.ResY()
	if !isIntegerMultiple(cx-scx, source.ResX()) || !isIntegerMultiple(cy-scy, source.ResY()) {
		return nil, fmt.Errorf("decimated pixel centers are not aligned with the source grid")
	}

	width := int(math.Round((bbox.Xmax - bbox.Xmin) / resx))
	height := int(math.Round((bbox.Ymax - bbox.Ymin) / resy))

	d := &DecimatedImage{
		geometry: newGeometryRes(width, height, source.Channels(), resx, resy, bbox),
		source:   source,
		nodata:   nodata,
		ratioX:   int(math.Round(resx / source.ResX())),
		ratioY:   int(math.Round(resy / source.ResY())),
	}

	d.locateColumns()
	return d, nil
}

// locateColumns finds which output columns have a source pixel under
// their center, and where that first source column is.
func (d *DecimatedImage) locateColumns() {
	src := d.source
	first := d.bbox.Xmin + 0.5*d.resx
	last := d.bbox.Xmax - 0.5*d.resx

	firstCol := srcColumn(src, first)
	lastCol := srcColumn(src, last)
	if firstCol >= src.Width() || lastCol < 0 {
		d.numberX = 0
		return
	}

	x := first
	d.imageOffsetX = 0
	for x < src.BBox().Xmin {
		d.imageOffsetX++
		x += d.resx
	}
	d.sourceOffsetX = srcColumn(src, x)

	x = last
	for x > src.BBox().Xmax {
		x -= d.resx
	}
	d.numberX = (srcColumn(src, x)-d.sourceOffsetX)/d.ratioX + 1
}

// srcColumn maps a terrain abscissa onto a source column by pixel center.
func srcColumn(src Image, x float64) int {
	return int(math.Floor((x - src.BBox().Xmin) / src.ResX()))
}

func decimatedLine[T Sample](d *DecimatedImage, buf []T, line int) int {
	if line < 0 || line >= d.height {
		return 0
	}
	n := d.width * d.channels
	fillNodata(buf[:n], d.channels, d.nodata)

	if d.numberX == 0 {
		return n
	}

	yCenter := d.bbox.Ymax - (0.5+float64(line))*d.resy
	srcLineIdx := int(math.Floor((d.source.BBox().Ymax - yCenter) / d.source.ResY()))
	if srcLineIdx < 0 || srcLineIdx >= d.source.Height() {
		return n
	}

	srcLine := make([]T, d.source.Width()*d.source.Channels())
	getLine(d.source, srcLine, srcLineIdx)

	srcChannels := d.source.Channels()
	si := d.sourceOffsetX * srcChannels
	di := d.imageOffsetX * d.channels

	if mask := d.source.Mask(); mask != nil {
		maskLine := make([]uint8, mask.Width())
		mask.Line8(maskLine, srcLineIdx)
		mi := d.sourceOffsetX
		for i := 0; i < d.numberX; i++ {
			if maskLine[mi] >= 127 {
				copy(buf[di:di+d.channels], srcLine[si:si+d.channels])
			}
			si += d.ratioX * srcChannels
			mi += d.ratioX
			di += d.channels
		}
		return n
	}

	for i := 0; i < d.numberX; i++ {
		copy(buf[di:di+d.channels], srcLine[si:si+d.channels])
		si += d.ratioX * srcChannels
		di += d.channels
	}
	return n
}

func (d *DecimatedImage) Line8(buf []uint8, line int) int   { return decimatedLine(d, buf, line) }
func (d *DecimatedImage) LineF(buf []float32, line int) int { return decimatedLine(d, buf, line) }

// isIntegerMultiple reports whether a/b is integral within a 1e-4 phase
// tolerance.
func isIntegerMultiple(a, b float64) bool {
	_, frac := math.Modf(a / b)
	if frac < 0 {
		frac += 1
	}
	return frac <= 0.0001 || frac >= 0.9999
}
