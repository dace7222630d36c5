// Package interp provides the 1-D interpolation kernels driving the
// resampling and reprojection stages: nearest, linear, cubic and the
// Lanczos family.
package interp

import (
	"fmt"
	"math"
)

// KernelType enumerates the available kernels.
type KernelType int

const (
	Nearest KernelType = iota + 1
	Linear
	Cubic
	Lanczos2
	Lanczos3
	Lanczos4
)

func (t KernelType) String() string {
	switch t {
	case Nearest:
		return "nn"
	case Linear:
		return "linear"
	case Cubic:
		return "bicubic"
	case Lanczos2:
		return "lanczos_2"
	case Lanczos3:
		return "lanczos_3"
	case Lanczos4:
		return "lanczos_4"
	}
	return "unknown"
}

// Parse maps the configuration names onto kernel types. The bare name
// "lanczos" resolves to lanczos_2; ForResampling and ForReprojection then
// apply the per-use policy.
func Parse(s string) (KernelType, error) {
	switch s {
	case "nn", "nearest":
		return Nearest, nil
	case "linear":
		return Linear, nil
	case "bicubic", "cubic":
		return Cubic, nil
	case "lanczos", "lanczos_2":
		return Lanczos2, nil
	case "lanczos_3":
		return Lanczos3, nil
	case "lanczos_4":
		return Lanczos4, nil
	}
	return 0, fmt.Errorf("unknown interpolation %q", s)
}

// ForResampling applies the same-CRS policy: any Lanczos request uses
// lanczos_3.
func ForResampling(t KernelType) KernelType {
	if t >= Lanczos2 {
		return Lanczos3
	}
	return t
}

// ForReprojection applies the warping policy: any Lanczos request uses
// lanczos_2.
func ForReprojection(t KernelType) KernelType {
	if t >= Lanczos2 {
		return Lanczos2
	}
	return t
}

// Kernel is a weighting function of bounded support.
type Kernel struct {
	kind    KernelType
	support float64
	f       func(x float64) float64
}

// Get returns the kernel of the given type.
func Get(t KernelType) Kernel {
	switch t {
	case Nearest:
		return Kernel{kind: t, support: 0.5, f: nearestWeight}
	case Linear:
		return Kernel{kind: t, support: 1, f: linearWeight}
	case Cubic:
		return Kernel{kind: t, support: 2, f: cubicWeight}
	case Lanczos2:
		return Kernel{kind: t, support: 2, f: lanczosWeight(2)}
	case Lanczos3:
		return Kernel{kind: t, support: 3, f: lanczosWeight(3)}
	case Lanczos4:
		return Kernel{kind: t, support: 4, f: lanczosWeight(4)}
	}
	return Kernel{kind: Nearest, support: 0.5, f: nearestWeight}
}

func (k Kernel) Type() KernelType { return k.kind }

// Support returns the half-width of the non-zero support in source
// pixels. Zooming out (ratio > 1) widens the window so every covered
// source pixel contributes.
func (k Kernel) Support(ratio float64) float64 {
	if ratio > 1 {
		return k.support * ratio
	}
	return k.support
}

// Weights samples the kernel around the floating source coordinate
// center. It returns the index of the first tap and the normalized
// weights, clipped to [0,max). The taps are balanced around center to
// within one coefficient and start is never beyond center.
func (k Kernel) Weights(center, ratio float64, max int) (int, []float64) {
	scale := 1.0
	if ratio > 1 {
		scale = ratio
	}
	size := k.support * scale
	half := int(math.Ceil(size))

	c0 := int(math.Floor(center))
	start := c0 - half + 1
	end := c0 + half

	if start < 0 {
		start = 0
	}
	if end > max-1 {
		end = max - 1
	}
	if start > end {
		start = clampInt(c0, 0, max-1)
		return start, []float64{1}
	}

	weights := make([]float64, end-start+1)
	sum := 0.0
	for i := range weights {
		w := k.f((float64(start+i) - center) / scale)
		weights[i] = w
		sum += w
	}
	if sum == 0 {
		// Degenerate window at a raster border: fall back to the
		// closest tap.
		nearest := clampInt(int(math.Round(center)), start, end)
		for i := range weights {
			weights[i] = 0
		}
		weights[nearest-start] = 1
		return start, weights
	}
	for i := range weights {
		weights[i] /= sum
	}
	return start, weights
}

func nearestWeight(x float64) float64 {
	if x >= -0.5 && x < 0.5 {
		return 1
	}
	return 0
}

func linearWeight(x float64) float64 {
	x = math.Abs(x)
	if x < 1 {
		return 1 - x
	}
	return 0
}

// cubicWeight is the Catmull-Rom cubic (a = -0.5).
func cubicWeight(x float64) float64 {
	const a = -0.5
	x = math.Abs(x)
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a * (x*x*x - 5*x*x + 8*x - 4)
	}
	return 0
}

func lanczosWeight(n float64) func(float64) float64 {
	return func(x float64) float64 {
		if x == 0 {
			return 1
		}
		ax := math.Abs(x)
		if ax >= n {
			return 0
		}
		px := math.Pi * x
		return n * math.Sin(px) * math.Sin(px/n) / (px * px)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
