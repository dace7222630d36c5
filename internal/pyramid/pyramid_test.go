package pyramid

import (
	"testing"

	"github.com/rok4/pyramid/internal/interp"
	"github.com/rok4/pyramid/internal/proj"
	"github.com/rok4/pyramid/internal/raster"
	"github.com/rok4/pyramid/internal/slab"
)

func threeLevelPyramid(t *testing.T) *Pyramid {
	t.Helper()

	matrices := []*TileMatrix{
		{ID: "2", Res: 4, X0: 0, Y0: 1024, TileW: 64, TileH: 64, MatrixW: 4, MatrixH: 4},
		{ID: "1", Res: 2, X0: 0, Y0: 1024, TileW: 64, TileH: 64, MatrixW: 8, MatrixH: 8},
		{ID: "0", Res: 1, X0: 0, Y0: 1024, TileW: 64, TileH: 64, MatrixW: 16, MatrixH: 16},
	}
	tms, err := NewTileMatrixSet("TEST", "EPSG:3857", matrices)
	if err != nil {
		t.Fatal(err)
	}

	var levels []*Level
	for _, tm := range matrices {
		levels = append(levels, testLevel(t, tm, 2, 2, tm.MatrixW-1, tm.MatrixH-1))
	}

	p, err := NewPyramid(tms, levels)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPyramidLookupAndOrder(t *testing.T) {
	p := threeLevelPyramid(t)

	if p.Level("1") == nil || p.Level("42") != nil {
		t.Error("lookup by tile matrix id broken")
	}

	levels := p.Levels()
	if len(levels) != 3 {
		t.Fatalf("%d levels", len(levels))
	}
	if levels[0].TM.Res != 4 || levels[2].TM.Res != 1 {
		t.Errorf("levels not ordered coarse to fine: %g..%g", levels[0].TM.Res, levels[2].TM.Res)
	}
	if p.HighestLevel().TM.Res != 4 || p.LowestLevel().TM.Res != 1 {
		t.Error("highest/lowest selection broken")
	}
}

func TestPyramidBestLevel(t *testing.T) {
	p := threeLevelPyramid(t)

	tests := []struct {
		res  float64
		want string
	}{
		{1, "0"},
		{2.1, "1"},
		{4.5, "2"},
		{100, "2"},
		{0.1, "0"},
	}
	for _, tt := range tests {
		if got := p.BestLevel(tt.res); got.TM.ID != tt.want {
			t.Errorf("BestLevel(%g) = %s, want %s", tt.res, got.TM.ID, tt.want)
		}
	}
}

func TestPyramidRejectsMixedFormats(t *testing.T) {
	matrices := []*TileMatrix{
		{ID: "1", Res: 2, X0: 0, Y0: 1024, TileW: 64, TileH: 64, MatrixW: 8, MatrixH: 8},
		{ID: "0", Res: 1, X0: 0, Y0: 1024, TileW: 64, TileH: 64, MatrixW: 16, MatrixH: 16},
	}
	tms, err := NewTileMatrixSet("TEST", "EPSG:3857", matrices)
	if err != nil {
		t.Fatal(err)
	}

	a := testLevel(t, matrices[0], 2, 2, 7, 7)
	b := testLevel(t, matrices[1], 2, 2, 15, 15)
	b.Format.Channels = 1
	b.Nodata = []float64{0}

	if _, err := NewPyramid(tms, []*Level{a, b}); err == nil {
		t.Error("levels with different channel counts must be rejected")
	}
}

func TestReprojectionAcrossAntimeridian(t *testing.T) {
	merc := proj.WebMercator{}
	wgs := proj.WGS84{}

	// A Web Mercator level whose origin sits at lon 179.5: its data runs
	// towards and beyond the antimeridian.
	x0, _ := merc.FromWGS84(179.5, 0)
	tm := &TileMatrix{ID: "0", Res: 100, X0: x0, Y0: 120000, TileW: 64, TileH: 64, MatrixW: 64, MatrixH: 64}
	l := testLevel(t, tm, 2, 2, 63, 63)
	fillSlab(t, l, 0, 0, []byte{100, 100, 100})

	// Request (179.5,-1)..(180.5,1) in EPSG:4326.
	img, err := l.GetBBoxReprojected(Services{MaxTileX: 128, MaxTileY: 128},
		raster.BBox{Xmin: 179.5, Ymin: -1, Xmax: 180.5, Ymax: 1}, 256, 256, merc, wgs, interp.Lanczos3)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width() != 256 || img.Height() != 256 {
		t.Fatalf("reprojected image is %dx%d, want 256x256", img.Width(), img.Height())
	}

	buf := make([]uint8, 256*3)

	// Top-left corner: just east of lon 179.5 at lat ~1, inside the
	// written slab.
	img.Line8(buf, 2)
	if p := buf[5*3]; p < 95 || p > 105 {
		t.Errorf("covered pixel = %d, want ~100", p)
	}

	// Bottom-right: beyond the antimeridian and south of the data,
	// where only nodata lives.
	img.Line8(buf, 200)
	p := buf[200*3 : 200*3+3]
	if p[0] != 255 || p[1] != 0 || p[2] != 0 {
		t.Errorf("uncovered pixel = %v, want nodata (255,0,0)", p)
	}
}

func TestReprojectionSameAsResampleForIdentityCRS(t *testing.T) {
	merc := proj.WebMercator{}

	tm := &TileMatrix{ID: "0", Res: 1, X0: 0, Y0: 512, TileW: 64, TileH: 64, MatrixW: 8, MatrixH: 8}
	l := testLevel(t, tm, 2, 2, 7, 7)
	for _, s := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		fillSlab(t, l, s[0], s[1], []byte{60, 60, 60})
	}

	img, err := l.GetBBoxReprojected(testServices,
		raster.BBox{Xmin: 32, Ymin: 352, Xmax: 160, Ymax: 480}, 128, 128, merc, merc, interp.Linear)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]uint8, 128*3)
	img.Line8(buf, 64)
	for x := 30; x < 90; x++ {
		if buf[x*3] != 60 {
			t.Fatalf("pixel %d = %d, want 60", x, buf[x*3])
		}
	}
}

func TestEncodedTileMatchesSlabContent(t *testing.T) {
	tm := &TileMatrix{ID: "0", Res: 1, X0: 0, Y0: 256, TileW: 64, TileH: 64, MatrixW: 8, MatrixH: 8}
	l := testLevel(t, tm, 2, 2, 7, 7)
	fillSlab(t, l, 0, 0, []byte{9, 8, 7})

	data, err := l.EncodedTile(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Raw compression: the payload is the tile's pixels.
	if len(data) != 64*64*3 {
		t.Fatalf("encoded tile is %d bytes, want %d", len(data), 64*64*3)
	}
	if data[0] != 9 || data[1] != 8 || data[2] != 7 {
		t.Errorf("tile pixels start with %v", data[:3])
	}

	r, err := slab.NewReader(l.Ctx, l.SlabPath(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	direct, err := r.EncodedTile(l.tileIndexInSlab(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(direct) != len(data) {
		t.Error("Level and Reader disagree on the encoded tile")
	}
}
