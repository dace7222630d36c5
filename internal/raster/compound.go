package raster

// CompoundImage stitches an M x N grid of sub-images with compatible
// resolutions into one raster. Row heights and column widths follow the
// grid. The row cursor tracks monotonic line access in both directions.
type CompoundImage struct {
	geometry

	images [][]Image

	// top is the absolute line of the current row's first line, y its
	// row index.
	top int
	y   int
}

// NewCompoundImage builds the stitched image. images[0][0] is the
// top-left sub-image; all rows must share their height and all columns
// their width.
func NewCompoundImage(images [][]Image) *CompoundImage {
	width := 0
	for _, img := range images[0] {
		width += img.Width()
	}
	height := 0
	for _, row := range images {
		height += row[0].Height()
	}

	last := len(images) - 1
	bbox := BBox{
		Xmin: images[last][0].BBox().Xmin,
		Ymin: images[last][0].BBox().Ymin,
		Xmax: images[0][len(images[0])-1].BBox().Xmax,
		Ymax: images[0][len(images[0])-1].BBox().Ymax,
	}

	return &CompoundImage{
		geometry: newGeometryRes(width, height, images[0][0].Channels(),
			images[0][0].ResX(), images[0][0].ResY(), bbox),
		images: images,
	}
}

func compoundLine[T Sample](c *CompoundImage, buf []T, line int) int {
	if line < 0 || line >= c.height {
		return 0
	}

	for c.top+c.images[c.y][0].Height() <= line {
		c.top += c.images[c.y][0].Height()
		c.y++
	}
	for c.top > line {
		c.y--
		c.top -= c.images[c.y][0].Height()
	}

	local := line - c.top
	offset := 0
	for _, img := range c.images[c.y] {
		offset += getLine(img, buf[offset:], local)
	}
	return c.width * c.channels
}

func (c *CompoundImage) Line8(buf []uint8, line int) int   { return compoundLine(c, buf, line) }
func (c *CompoundImage) LineF(buf []float32, line int) int { return compoundLine(c, buf, line) }
