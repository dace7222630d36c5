package raster

import (
	"fmt"
	"math"
)

// gridStep is the node spacing of the reprojection grid: coordinates are
// reprojected every gridStep output pixels and interpolated in between.
const gridStep = 16

// Grid is the backward map of a reprojection: for every output pixel it
// yields the matching source coordinate. It is built in output terrain
// coordinates, reprojected node by node into the source CRS, then taken
// to source pixel coordinates with an affine transform.
type Grid struct {
	width  int
	height int

	nx, ny int
	xs     []float64
	ys     []float64

	// BBox is the node envelope in the current coordinate space,
	// updated by Reproject.
	BBox BBox
}

// NewGrid samples the output raster at pixel centers every gridStep
// pixels, edges included.
func NewGrid(width, height int, bbox BBox) *Grid {
	resx := (bbox.Xmax - bbox.Xmin) / float64(width)
	resy := (bbox.Ymax - bbox.Ymin) / float64(height)

	nx := (width+gridStep-1)/gridStep + 1
	ny := (height+gridStep-1)/gridStep + 1

	g := &Grid{width: width, height: height, nx: nx, ny: ny,
		xs:   make([]float64, nx*ny),
		ys:   make([]float64, nx*ny),
		BBox: bbox,
	}

	// Nodes sit on a regular gridStep lattice, the last ones running
	// past the raster edge: Coord's interpolation parameter stays exact
	// and the transforms are continuous there anyway.
	for j := 0; j < ny; j++ {
		py := float64(j*gridStep) + 0.5
		for i := 0; i < nx; i++ {
			px := float64(i*gridStep) + 0.5
			g.xs[j*nx+i] = bbox.Xmin + px*resx
			g.ys[j*nx+i] = bbox.Ymax - py*resy
		}
	}
	return g
}

// Reproject maps every node through transform and recomputes the node
// envelope. A transform yielding NaN anywhere means the requested area
// does not exist in the source CRS; that is fatal for the request.
func (g *Grid) Reproject(transform func(x, y float64) (float64, float64)) error {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for i := range g.xs {
		x, y := transform(g.xs[i], g.ys[i])
		if math.IsNaN(x) || math.IsNaN(y) {
			return fmt.Errorf("reprojection grid contains NaN: the source CRS does not cover the request")
		}
		g.xs[i], g.ys[i] = x, y
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	g.BBox = BBox{minX, minY, maxX, maxY}
	return nil
}

// AffineTransform applies x' = ax*x + bx and y' = ay*y + by to every
// node. It takes reprojected terrain coordinates to source pixel indices.
func (g *Grid) AffineTransform(ax, bx, ay, by float64) {
	for i := range g.xs {
		g.xs[i] = ax*g.xs[i] + bx
		g.ys[i] = ay*g.ys[i] + by
	}
	g.BBox = BBox{
		Xmin: ax*g.BBox.Xmin + bx,
		Ymin: ay*g.BBox.Ymin + by,
		Xmax: ax*g.BBox.Xmax + bx,
		Ymax: ay*g.BBox.Ymax + by,
	}
	if g.BBox.Xmin > g.BBox.Xmax {
		g.BBox.Xmin, g.BBox.Xmax = g.BBox.Xmax, g.BBox.Xmin
	}
	if g.BBox.Ymin > g.BBox.Ymax {
		g.BBox.Ymin, g.BBox.Ymax = g.BBox.Ymax, g.BBox.Ymin
	}
}

// Coord interpolates the source coordinate of output pixel (i,j) between
// the surrounding grid nodes.
func (g *Grid) Coord(i, j int) (float64, float64) {
	fi := float64(i) / gridStep
	fj := float64(j) / gridStep

	i0 := minInt(int(fi), g.nx-2)
	j0 := minInt(int(fj), g.ny-2)
	tx := fi - float64(i0)
	ty := fj - float64(j0)
	if tx > 1 {
		tx = 1
	}
	if ty > 1 {
		ty = 1
	}

	lerp := func(a, b, t float64) float64 { return a*(1-t) + b*t }

	n00 := j0*g.nx + i0
	n10 := n00 + 1
	n01 := n00 + g.nx
	n11 := n01 + 1

	x := lerp(lerp(g.xs[n00], g.xs[n10], tx), lerp(g.xs[n01], g.xs[n11], tx), ty)
	y := lerp(lerp(g.ys[n00], g.ys[n10], tx), lerp(g.ys[n01], g.ys[n11], tx), ty)
	return x, y
}
