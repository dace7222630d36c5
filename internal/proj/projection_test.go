package proj

import (
	"math"
	"testing"
)

func TestWebMercatorRoundTrip(t *testing.T) {
	p := WebMercator{}
	for _, c := range [][2]float64{
		{0, 0},
		{2.35, 48.85},
		{-122.42, 37.77},
		{179.9, -45},
		{-179.9, 80},
	} {
		x, y := p.FromWGS84(c[0], c[1])
		lon, lat := p.ToWGS84(x, y)
		if math.Abs(lon-c[0]) > 1e-9 || math.Abs(lat-c[1]) > 1e-9 {
			t.Errorf("round trip of (%g,%g) = (%g,%g)", c[0], c[1], lon, lat)
		}
	}
}

func TestWebMercatorKnownPoints(t *testing.T) {
	p := WebMercator{}
	x, y := p.FromWGS84(180, 0)
	if math.Abs(x-20037508.342789244) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("(180,0) = (%g,%g)", x, y)
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"EPSG:3857", "epsg:3857", "3857"} {
		p, err := Parse(s)
		if err != nil || p.EPSG() != 3857 {
			t.Errorf("Parse(%q) = %v, %v", s, p, err)
		}
	}
	if _, err := Parse("EPSG:2154"); err == nil {
		t.Error("unsupported CRS must be rejected")
	}
}

func TestTransformChainsThroughWGS84(t *testing.T) {
	src, _ := ForEPSG(4326)
	dst, _ := ForEPSG(3857)
	f := Transform(src, dst)

	x, y := f(180, 0)
	if math.Abs(x-20037508.342789244) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("transform(180,0) = (%g,%g)", x, y)
	}

	identity := Transform(dst, dst)
	x, y = identity(12345, -6789)
	if x != 12345 || y != -6789 {
		t.Errorf("identity transform altered the point: (%g,%g)", x, y)
	}
}
