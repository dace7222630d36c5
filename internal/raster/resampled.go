package raster

import (
	"math"

	"github.com/rok4/pyramid/internal/interp"
)

// ResampledImage resamples a source image onto a new grid with an
// interpolation kernel, separably: source lines are first resampled in X
// (and cached, since consecutive output lines share most of them), then
// combined with the Y weights. With useMask, contributions are gated by
// the source mask and the weighted sum renormalized by the effective
// weight; a pixel whose every contribution is masked out comes out zero,
// which is nodata territory for the caller.
type ResampledImage struct {
	geometry

	source Image
	kernel interp.Kernel

	ratioX float64
	ratioY float64
	offX   float64
	offY   float64

	useMask bool

	// Per-column X weights, computed once.
	xStart   []int
	xWeights [][]float64

	// Ring of X-resampled source lines, keyed by source line index.
	ringData [][]float32
	ringMask [][]float32
	ringIdx  []int

	srcLine  []float32
	maskLine []uint8
}

// NewResampledImage maps output pixel (i,j) onto source coordinate
// (offX + i*ratioX, offY + j*ratioY), in source pixel units.
func NewResampledImage(source Image, width, height int, resx, resy, offX, offY, ratioX, ratioY float64,
	useMask bool, kernel interp.Kernel, bbox BBox) *ResampledImage {

	if useMask && source.Mask() == nil {
		useMask = false
	}

	r := &ResampledImage{
		geometry: newGeometryRes(width, height, source.Channels(), resx, resy, bbox),
		source:   source,
		kernel:   kernel,
		ratioX:   ratioX,
		ratioY:   ratioY,
		offX:     offX,
		offY:     offY,
		useMask:  useMask,
	}

	r.xStart = make([]int, width)
	r.xWeights = make([][]float64, width)
	for i := 0; i < width; i++ {
		center := offX + ratioX*(float64(i)+0.5) - 0.5
		r.xStart[i], r.xWeights[i] = kernel.Weights(center, ratioX, source.Width())
	}

	ringSize := 2*int(math.Ceil(kernel.Support(ratioY))) + 2
	r.ringData = make([][]float32, ringSize)
	r.ringMask = make([][]float32, ringSize)
	r.ringIdx = make([]int, ringSize)
	for i := range r.ringIdx {
		r.ringIdx[i] = -1
	}

	r.srcLine = make([]float32, source.Width()*source.Channels())
	if useMask {
		r.maskLine = make([]uint8, source.Mask().Width())
	}
	return r
}

// resampleSourceLine returns the X-resampled source line and, with masks,
// the per-column effective weights.
func (r *ResampledImage) resampleSourceLine(srcY int) ([]float32, []float32) {
	slot := srcY % len(r.ringData)
	if r.ringIdx[slot] == srcY {
		return r.ringData[slot], r.ringMask[slot]
	}

	if r.ringData[slot] == nil {
		r.ringData[slot] = make([]float32, r.width*r.channels)
		if r.useMask {
			r.ringMask[slot] = make([]float32, r.width)
		}
	}
	data := r.ringData[slot]
	weights := r.ringMask[slot]

	r.source.LineF(r.srcLine, srcY)
	if r.useMask {
		r.source.Mask().Line8(r.maskLine, srcY)
	}

	ch := r.channels
	for i := 0; i < r.width; i++ {
		start := r.xStart[i]
		w := r.xWeights[i]

		var acc [4]float64
		wsum := 0.0
		for k, wk := range w {
			src := start + k
			if r.useMask {
				if r.maskLine[src] < 127 {
					continue
				}
				wsum += wk
			}
			for c := 0; c < ch; c++ {
				acc[c] += wk * float64(r.srcLine[src*ch+c])
			}
		}
		for c := 0; c < ch; c++ {
			data[i*ch+c] = float32(acc[c])
		}
		if r.useMask {
			weights[i] = float32(wsum)
		}
	}

	r.ringIdx[slot] = srcY
	return data, weights
}

func (r *ResampledImage) LineF(buf []float32, line int) int {
	if line < 0 || line >= r.height {
		return 0
	}

	center := r.offY + r.ratioY*(float64(line)+0.5) - 0.5
	startY, wy := r.kernel.Weights(center, r.ratioY, r.source.Height())

	n := r.width * r.channels
	acc := make([]float64, n)
	var den []float64
	if r.useMask {
		den = make([]float64, r.width)
	}

	for l, wl := range wy {
		data, weights := r.resampleSourceLine(startY + l)
		for i := 0; i < n; i++ {
			acc[i] += wl * float64(data[i])
		}
		if r.useMask {
			for i := 0; i < r.width; i++ {
				den[i] += wl * float64(weights[i])
			}
		}
	}

	if !r.useMask {
		for i := 0; i < n; i++ {
			buf[i] = float32(acc[i])
		}
		return n
	}

	for i := 0; i < r.width; i++ {
		if den[i] <= 1e-9 {
			for c := 0; c < r.channels; c++ {
				buf[i*r.channels+c] = 0
			}
			continue
		}
		for c := 0; c < r.channels; c++ {
			buf[i*r.channels+c] = float32(acc[i*r.channels+c] / den[i])
		}
	}
	return n
}

func (r *ResampledImage) Line8(buf []uint8, line int) int {
	tmp := make([]float32, r.width*r.channels)
	n := r.LineF(tmp, line)
	f32ToU8(buf, tmp, n)
	return n
}
