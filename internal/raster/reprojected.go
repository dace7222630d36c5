package raster

import (
	"math"

	"github.com/rok4/pyramid/internal/interp"
)

// ReprojectedImage warps a source image through a precomputed backward
// grid: every output pixel looks up its source coordinate and takes a
// kernel-weighted neighbourhood there. The irregular access pattern rules
// out the separable fast path of ResampledImage, but the grid varies
// slowly, so a small ring of source lines still catches most rereads.
type ReprojectedImage struct {
	geometry

	source Image
	grid   *Grid
	kernel interp.Kernel

	ratioX float64
	ratioY float64

	useMask bool

	ringData [][]float32
	ringMask [][]uint8
	ringIdx  []int
}

// NewReprojectedImage builds the warp. The grid must already be in source
// pixel coordinates. ratioX and ratioY express the output-to-source
// resolution ratios and drive the kernel support.
func NewReprojectedImage(source Image, bbox BBox, width, height int, grid *Grid,
	kernel interp.Kernel, ratioX, ratioY float64, useMask bool) *ReprojectedImage {

	if useMask && source.Mask() == nil {
		useMask = false
	}

	ringSize := 4*int(math.Ceil(kernel.Support(ratioY))) + 8
	r := &ReprojectedImage{
		geometry: newGeometry(width, height, source.Channels(), bbox),
		source:   source,
		grid:     grid,
		kernel:   kernel,
		ratioX:   ratioX,
		ratioY:   ratioY,
		useMask:  useMask,

		ringData: make([][]float32, ringSize),
		ringMask: make([][]uint8, ringSize),
		ringIdx:  make([]int, ringSize),
	}
	for i := range r.ringIdx {
		r.ringIdx[i] = -1
	}
	return r
}

func (r *ReprojectedImage) sourceLine(srcY int) ([]float32, []uint8) {
	slot := srcY % len(r.ringData)
	if r.ringIdx[slot] == srcY {
		return r.ringData[slot], r.ringMask[slot]
	}
	if r.ringData[slot] == nil {
		r.ringData[slot] = make([]float32, r.source.Width()*r.source.Channels())
		if r.useMask {
			r.ringMask[slot] = make([]uint8, r.source.Width())
		}
	}
	r.source.LineF(r.ringData[slot], srcY)
	if r.useMask {
		r.source.Mask().Line8(r.ringMask[slot], srcY)
	}
	r.ringIdx[slot] = srcY
	return r.ringData[slot], r.ringMask[slot]
}

func (r *ReprojectedImage) LineF(buf []float32, line int) int {
	if line < 0 || line >= r.height {
		return 0
	}

	ch := r.channels
	for i := 0; i < r.width; i++ {
		sx, sy := r.grid.Coord(i, line)

		startX, wx := r.kernel.Weights(sx, r.ratioX, r.source.Width())
		startY, wy := r.kernel.Weights(sy, r.ratioY, r.source.Height())

		var acc [4]float64
		den := 0.0
		for l, wl := range wy {
			data, mask := r.sourceLine(startY + l)
			for k, wk := range wx {
				w := wl * wk
				src := startX + k
				if r.useMask {
					if mask[src] < 127 {
						continue
					}
					den += w
				}
				for c := 0; c < ch; c++ {
					acc[c] += w * float64(data[src*ch+c])
				}
			}
		}

		if r.useMask {
			if den <= 1e-9 {
				for c := 0; c < ch; c++ {
					buf[i*ch+c] = 0
				}
				continue
			}
			for c := 0; c < ch; c++ {
				buf[i*ch+c] = float32(acc[c] / den)
			}
			continue
		}
		for c := 0; c < ch; c++ {
			buf[i*ch+c] = float32(acc[c])
		}
	}
	return r.width * ch
}

func (r *ReprojectedImage) Line8(buf []uint8, line int) int {
	tmp := make([]float32, r.width*r.channels)
	n := r.LineF(tmp, line)
	f32ToU8(buf, tmp, n)
	return n
}
