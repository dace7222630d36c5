package raster

import (
	"bytes"
	"testing"
)

func TestCompoundImageStitching(t *testing.T) {
	// 2x2 grid of 4x2 tiles, each uniform with a distinct value.
	grid := [][]Image{
		{solidGray(4, 2, 1, BBox{0, 2, 4, 4}), solidGray(4, 2, 2, BBox{4, 2, 8, 4})},
		{solidGray(4, 2, 3, BBox{0, 0, 4, 2}), solidGray(4, 2, 4, BBox{4, 0, 8, 2})},
	}
	c := NewCompoundImage(grid)

	if c.Width() != 8 || c.Height() != 4 {
		t.Fatalf("compound is %dx%d, want 8x4", c.Width(), c.Height())
	}
	if b := c.BBox(); b != (BBox{0, 0, 8, 4}) {
		t.Fatalf("bbox = %+v", b)
	}

	buf := make([]uint8, 8)
	wantTop := append(bytes.Repeat([]byte{1}, 4), bytes.Repeat([]byte{2}, 4)...)
	wantBot := append(bytes.Repeat([]byte{3}, 4), bytes.Repeat([]byte{4}, 4)...)

	for line, want := range map[int][]byte{0: wantTop, 1: wantTop, 2: wantBot, 3: wantBot} {
		if n := c.Line8(buf, line); n != 8 {
			t.Fatalf("line %d: %d samples", line, n)
		}
		if !bytes.Equal(buf, want) {
			t.Errorf("line %d = %v, want %v", line, buf, want)
		}
	}

	// Non-monotonic access must still work: the row cursor backtracks.
	c.Line8(buf, 3)
	c.Line8(buf, 0)
	if !bytes.Equal(buf, wantTop) {
		t.Errorf("after backtracking, line 0 = %v, want %v", buf, wantTop)
	}
}

func TestExtendedCompoundLastWins(t *testing.T) {
	nodata := []float64{9}

	// Two overlapping images on a wider canvas; the later one paints
	// over the earlier one where both cover.
	first := solidGray(4, 2, 10, BBox{1, 0, 5, 2})
	second := solidGray(4, 2, 20, BBox{3, 0, 7, 2})

	e, err := NewExtendedCompoundImage(8, 2, 1, BBox{0, 0, 8, 2}, []Image{first, second}, nil, nodata, 0)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]uint8, 8)
	e.Line8(buf, 0)
	want := []uint8{9, 10, 10, 20, 20, 20, 20, 9}
	if !bytes.Equal(buf, want) {
		t.Errorf("line = %v, want %v", buf, want)
	}
}

func TestExtendedCompoundMasked(t *testing.T) {
	nodata := []float64{0}

	base := solidGray(4, 1, 50, BBox{0, 0, 4, 1})
	over := solidGray(4, 1, 200, BBox{0, 0, 4, 1})

	// Mask lets only the two middle pixels of the overlay through; 126
	// is below the threshold, 127 at it.
	mask := grayImage([][]uint8{{0, 127, 255, 126}}, BBox{0, 0, 4, 1})

	e, err := NewExtendedCompoundImage(4, 1, 1, BBox{0, 0, 4, 1},
		[]Image{base, over}, []Image{nil, mask}, nodata, 0)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]uint8, 4)
	e.Line8(buf, 0)
	want := []uint8{50, 200, 200, 50}
	if !bytes.Equal(buf, want) {
		t.Errorf("masked overlay = %v, want %v", buf, want)
	}
}

func TestExtendedCompoundRejectsIncompatible(t *testing.T) {
	a := solidGray(4, 4, 0, BBox{0, 0, 4, 4})
	b := solidGray(4, 4, 0, BBox{0.5, 0, 4.5, 4})

	_, err := NewExtendedCompoundImage(8, 4, 1, BBox{0, 0, 8, 4}, []Image{a, b}, nil, []float64{0}, 0)
	if err == nil {
		t.Error("out-of-phase images must be rejected")
	}
}

func TestExtendedCompoundMaskCoverage(t *testing.T) {
	img := solidGray(4, 2, 10, BBox{2, 0, 6, 2})
	mirror := solidGray(2, 2, 99, BBox{6, 0, 8, 2})

	e, err := NewExtendedCompoundImage(8, 2, 1, BBox{0, 0, 8, 2}, []Image{img, mirror}, nil, []float64{0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	m := NewExtendedCompoundMask(e)

	buf := make([]uint8, 8)
	m.Line8(buf, 0)
	// Mirror coverage does not count as data.
	want := []uint8{0, 0, 255, 255, 255, 255, 0, 0}
	if !bytes.Equal(buf, want) {
		t.Errorf("coverage = %v, want %v", buf, want)
	}
}
