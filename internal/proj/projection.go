// Package proj converts coordinates between the CRSes a pyramid can be
// served in. Conversions between two supported CRSes go through WGS84.
package proj

import (
	"fmt"
	"strconv"
	"strings"
)

// Projection converts between a CRS and WGS84 longitude/latitude degrees.
type Projection interface {
	ToWGS84(x, y float64) (lon, lat float64)
	FromWGS84(lon, lat float64) (x, y float64)
	EPSG() int
}

// ForEPSG returns the projection of an EPSG code, or an error when the
// code is not supported.
func ForEPSG(epsg int) (Projection, error) {
	switch epsg {
	case 4326:
		return WGS84{}, nil
	case 3857:
		return WebMercator{}, nil
	}
	return nil, fmt.Errorf("unsupported CRS EPSG:%d", epsg)
}

// Parse resolves a CRS identifier such as "EPSG:3857".
func Parse(crs string) (Projection, error) {
	s := strings.TrimPrefix(strings.ToUpper(crs), "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("malformed CRS %q", crs)
	}
	return ForEPSG(code)
}

// Transform builds the src-CRS-to-dst-CRS point function.
func Transform(src, dst Projection) func(x, y float64) (float64, float64) {
	if src.EPSG() == dst.EPSG() {
		return func(x, y float64) (float64, float64) { return x, y }
	}
	return func(x, y float64) (float64, float64) {
		lon, lat := src.ToWGS84(x, y)
		return dst.FromWGS84(lon, lat)
	}
}

// WGS84 is the identity projection for data already in EPSG:4326.
type WGS84 struct{}

func (WGS84) ToWGS84(x, y float64) (float64, float64)   { return x, y }
func (WGS84) FromWGS84(lon, lat float64) (float64, float64) { return lon, lat }
func (WGS84) EPSG() int                                 { return 4326 }
