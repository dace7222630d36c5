package raster

import "log/slog"

// TileImage exposes one decoded slab tile as an Image, cropped by per-edge
// pixel margins. The tile bytes are fetched and decoded on the first
// scanline read; a fetch or decode failure downgrades the tile to nodata
// and the rest of the window is unaffected.
type TileImage struct {
	geometry

	fetch  func() ([]byte, error)
	kind   SampleKind
	nodata []float64

	srcWidth   int
	srcHeight  int
	marginLeft int
	marginTop  int

	raw   []byte
	tried bool

	lineF []float32
}

// NewTileImage builds a lazy tile image. fetch must return the decoded
// raw pixels of the full srcWidth x srcHeight tile.
func NewTileImage(fetch func() ([]byte, error), kind SampleKind, srcWidth, srcHeight, channels int,
	bbox BBox, left, top, right, bottom int, nodata []float64) *TileImage {

	return &TileImage{
		geometry:   newGeometry(srcWidth-left-right, srcHeight-top-bottom, channels, bbox),
		fetch:      fetch,
		kind:       kind,
		nodata:     nodata,
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		marginLeft: left,
		marginTop:  top,
	}
}

// load pulls the tile bytes once; nil raw afterwards means nodata.
func (t *TileImage) load() {
	if t.tried {
		return
	}
	t.tried = true

	raw, err := t.fetch()
	if err != nil {
		slog.Warn("tile decode failed, substituting nodata", "error", err)
		return
	}
	want := t.srcWidth * t.srcHeight * t.channels * t.kind.BytesPerSample()
	if len(raw) < want {
		slog.Warn("tile smaller than expected, substituting nodata", "got", len(raw), "want", want)
		return
	}
	t.raw = raw
}

// rowBytes returns the raw bytes of the cropped part of a source row.
func (t *TileImage) rowBytes(line int) []byte {
	bps := t.kind.BytesPerSample()
	srcLine := (t.marginTop + line) * t.srcWidth * t.channels * bps
	start := srcLine + t.marginLeft*t.channels*bps
	return t.raw[start : start+t.width*t.channels*bps]
}

func (t *TileImage) Line8(buf []uint8, line int) int {
	if line < 0 || line >= t.height {
		return 0
	}
	t.load()
	n := t.width * t.channels
	if t.raw == nil {
		fillNodata(buf[:n], t.channels, t.nodata)
		return n
	}
	if t.kind == SampleU8 {
		copy(buf[:n], t.rowBytes(line))
		return n
	}
	if t.lineF == nil {
		t.lineF = make([]float32, n)
	}
	rawToF32(t.lineF, t.rowBytes(line), t.kind, n)
	f32ToU8(buf, t.lineF, n)
	return n
}

func (t *TileImage) LineF(buf []float32, line int) int {
	if line < 0 || line >= t.height {
		return 0
	}
	t.load()
	n := t.width * t.channels
	if t.raw == nil {
		fillNodata(buf[:n], t.channels, t.nodata)
		return n
	}
	rawToF32(buf, t.rowBytes(line), t.kind, n)
	return n
}
