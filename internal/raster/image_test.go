package raster

import (
	"math"
	"testing"
)

// grayImage builds a single-channel memory image with the given pixel
// values and bounding box.
func grayImage(values [][]uint8, bbox BBox) *MemoryImage {
	h := len(values)
	w := len(values[0])
	img := NewMemoryImage(w, h, 1, SampleU8, bbox)
	for y, row := range values {
		copy(img.Raw()[y*w:], row)
	}
	return img
}

// solidGray builds a uniform single-channel image.
func solidGray(w, h int, v uint8, bbox BBox) *MemoryImage {
	img := NewMemoryImage(w, h, 1, SampleU8, bbox)
	for i := range img.Raw() {
		img.Raw()[i] = v
	}
	return img
}

func TestCoordinateRoundTrip(t *testing.T) {
	g := newGeometry(100, 50, 1, BBox{1000, 500, 1100, 550})
	// resx = resy = 1

	for _, x := range []float64{1000.2, 1042.7, 1099.4} {
		back := g.C2X(g.X2C(x))
		if math.Abs(back-x) > g.resx/2 {
			t.Errorf("C2X(X2C(%g)) = %g, drift beyond half a pixel", x, back)
		}
	}
	for _, y := range []float64{500.3, 523.9, 549.5} {
		back := g.L2Y(g.Y2L(y))
		if math.Abs(back-y) > g.resy/2 {
			t.Errorf("L2Y(Y2L(%g)) = %g, drift beyond half a pixel", y, back)
		}
	}
}

func TestPhase(t *testing.T) {
	g := newGeometry(10, 10, 1, BBox{10.25, 0, 20.25, 10})
	if got := g.PhaseX(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("PhaseX = %g, want 0.25", got)
	}
	g2 := newGeometry(10, 10, 1, BBox{-10.75, 0, -0.75, 10})
	if got := g2.PhaseX(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("PhaseX of negative origin = %g, want 0.25", got)
	}
}

func TestCompatible(t *testing.T) {
	a := solidGray(10, 10, 0, BBox{0, 0, 10, 10})
	b := solidGray(10, 10, 0, BBox{10, 0, 20, 10})
	if !Compatible(a, b) {
		t.Error("same resolution and phase should be compatible")
	}

	// Off-phase by half a pixel.
	c := solidGray(10, 10, 0, BBox{10.5, 0, 20.5, 10})
	if Compatible(a, c) {
		t.Error("half-pixel phase shift should not be compatible")
	}

	// Different resolution.
	d := solidGray(5, 5, 0, BBox{0, 0, 10, 10})
	if Compatible(a, d) {
		t.Error("different resolutions should not be compatible")
	}

	// Phase difference of 0.995 wraps around to 0.005.
	e := solidGray(10, 10, 0, BBox{9.995, 0, 19.995, 10})
	if !Compatible(a, e) {
		t.Error("phase difference wrapping past 1 should be compatible")
	}
}

func TestEmptyImage(t *testing.T) {
	nodata := []float64{255, 0, 0}
	e := NewEmptyImage(4, 2, 3, nodata, BBox{0, 0, 4, 2})

	buf := make([]uint8, 4*3)
	if n := e.Line8(buf, 1); n != 12 {
		t.Fatalf("Line8 = %d samples, want 12", n)
	}
	for i := 0; i < 4; i++ {
		if buf[i*3] != 255 || buf[i*3+1] != 0 || buf[i*3+2] != 0 {
			t.Fatalf("pixel %d = %v, want nodata (255,0,0)", i, buf[i*3:i*3+3])
		}
	}

	if n := e.Line8(buf, 2); n != 0 {
		t.Errorf("out-of-range line returned %d samples", n)
	}
	if n := e.Line8(buf, -1); n != 0 {
		t.Errorf("negative line returned %d samples", n)
	}
}

func TestSampleConversion(t *testing.T) {
	img := NewMemoryImage(4, 1, 1, SampleF32, BBox{0, 0, 4, 1})
	f := []float32{-3.5, 0.4, 127.6, 300}
	for i, v := range f {
		bits := math.Float32bits(v)
		img.Raw()[4*i] = byte(bits)
		img.Raw()[4*i+1] = byte(bits >> 8)
		img.Raw()[4*i+2] = byte(bits >> 16)
		img.Raw()[4*i+3] = byte(bits >> 24)
	}

	buf := make([]uint8, 4)
	img.Line8(buf, 0)
	want := []uint8{0, 0, 128, 255}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("saturating conversion [%d] = %d, want %d", i, buf[i], want[i])
		}
	}

	u8 := NewMemoryImageFrom([]byte{7, 200}, 2, 1, 1, SampleU8, BBox{0, 0, 2, 1})
	fbuf := make([]float32, 2)
	u8.LineF(fbuf, 0)
	if fbuf[0] != 7 || fbuf[1] != 200 {
		t.Errorf("u8 to f32 promotion = %v", fbuf)
	}
}
