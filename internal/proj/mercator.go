package proj

import "math"

// originShift is half the earth's equatorial circumference in meters, the
// coordinate extent of Web Mercator.
const originShift = 20037508.342789244

// WebMercator implements EPSG:3857.
type WebMercator struct{}

func (WebMercator) EPSG() int { return 3857 }

func (WebMercator) ToWGS84(x, y float64) (lon, lat float64) {
	lon = x / originShift * 180
	lat = y / originShift * 180
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180)) - math.Pi/2)
	return
}

func (WebMercator) FromWGS84(lon, lat float64) (x, y float64) {
	x = lon * originShift / 180
	y = math.Log(math.Tan((90+lat)*math.Pi/360)) / (math.Pi / 180)
	y = y * originShift / 180
	return
}
