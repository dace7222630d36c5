package interp

import (
	"math"
	"testing"
)

var allTypes = []KernelType{Nearest, Linear, Cubic, Lanczos2, Lanczos3, Lanczos4}

func TestWeightsSumToOne(t *testing.T) {
	for _, kt := range allTypes {
		k := Get(kt)
		for _, ratio := range []float64{0.5, 1, 1.5, 2, 4} {
			for _, center := range []float64{10, 10.25, 10.5, 10.9, 42.123} {
				_, w := k.Weights(center, ratio, 1000)
				sum := 0.0
				for _, v := range w {
					sum += v
				}
				if math.Abs(sum-1) > 1e-6 {
					t.Errorf("%s ratio=%g center=%g: sum = %g", kt, ratio, center, sum)
				}
			}
		}
	}
}

func TestWeightsBalanced(t *testing.T) {
	for _, kt := range allTypes {
		k := Get(kt)
		for _, center := range []float64{50, 50.3, 50.5, 50.7} {
			start, w := k.Weights(center, 1, 1000)
			if float64(start) > center {
				t.Errorf("%s center=%g: start %d beyond center", kt, center, start)
			}
			before, after := 0, 0
			for i := range w {
				if float64(start+i) <= center {
					before++
				} else {
					after++
				}
			}
			if d := before - after; d < -1 || d > 1 {
				t.Errorf("%s center=%g: %d taps before vs %d after", kt, center, before, after)
			}
		}
	}
}

func TestSupportScalesWithRatio(t *testing.T) {
	k := Get(Lanczos3)
	if got := k.Support(1); got != 3 {
		t.Errorf("Support(1) = %g, want 3", got)
	}
	if got := k.Support(2); got != 6 {
		t.Errorf("Support(2) = %g, want 6", got)
	}
	// Zooming in never shrinks the window below the kernel's own width.
	if got := k.Support(0.25); got != 3 {
		t.Errorf("Support(0.25) = %g, want 3", got)
	}
}

func TestNearestPicksClosestTap(t *testing.T) {
	k := Get(Nearest)
	start, w := k.Weights(7.4, 1, 100)
	tap := -1
	for i, v := range w {
		if v == 1 {
			tap = start + i
		}
	}
	if tap != 7 {
		t.Errorf("nearest tap for 7.4 = %d, want 7", tap)
	}

	start, w = k.Weights(7.6, 1, 100)
	for i, v := range w {
		if v == 1 && start+i != 8 {
			t.Errorf("nearest tap for 7.6 = %d, want 8", start+i)
		}
	}
}

func TestLinearInterpolatesExactly(t *testing.T) {
	k := Get(Linear)
	start, w := k.Weights(3.25, 1, 100)
	got := 0.0
	for i, v := range w {
		got += v * float64(start+i)
	}
	// A linear kernel reproduces the coordinate itself.
	if math.Abs(got-3.25) > 1e-9 {
		t.Errorf("linear reconstruction of 3.25 = %g", got)
	}
}

func TestBorderClippingStaysNormalized(t *testing.T) {
	k := Get(Lanczos3)
	for _, center := range []float64{0, 0.5, 1.2, 98.9, 99.0} {
		start, w := k.Weights(center, 1, 100)
		if start < 0 {
			t.Errorf("center=%g: start %d below zero", center, start)
		}
		if start+len(w) > 100 {
			t.Errorf("center=%g: taps run past the raster", center)
		}
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("center=%g: sum = %g after clipping", center, sum)
		}
	}
}

func TestSelectionPolicy(t *testing.T) {
	if got := ForResampling(Lanczos2); got != Lanczos3 {
		t.Errorf("ForResampling(lanczos_2) = %s, want lanczos_3", got)
	}
	if got := ForReprojection(Lanczos4); got != Lanczos2 {
		t.Errorf("ForReprojection(lanczos_4) = %s, want lanczos_2", got)
	}
	if got := ForResampling(Cubic); got != Cubic {
		t.Errorf("ForResampling(bicubic) = %s, want bicubic", got)
	}

	kt, err := Parse("lanczos")
	if err != nil || kt != Lanczos2 {
		t.Errorf("Parse(lanczos) = %s, %v", kt, err)
	}
}
