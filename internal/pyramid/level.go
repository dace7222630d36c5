package pyramid

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/rok4/pyramid/internal/interp"
	"github.com/rok4/pyramid/internal/proj"
	"github.com/rok4/pyramid/internal/raster"
	"github.com/rok4/pyramid/internal/slab"
	"github.com/rok4/pyramid/internal/storage"
)

// phaseEps is the in-phase tolerance of the resampling fast path, in
// pixels.
const phaseEps = 1.0 / 256

// reprojMinPadding floors the source window padding of a reprojection, in
// pixels, preserving quality under large scale changes.
const reprojMinPadding = 50

var (
	// ErrTooManyTiles reports a window beyond the per-request tile cap:
	// a request-shape error, not a data hole.
	ErrTooManyTiles = errors.New("pyramid: window exceeds the per-request tile cap")

	// ErrEmptyWindow reports a degenerate window after intersection.
	ErrEmptyWindow = errors.New("pyramid: empty window")

	// ErrNoData reports a tile with no stored bytes.
	ErrNoData = errors.New("pyramid: no data for this tile")
)

// Services carries the per-request limits the serving layer enforces.
type Services struct {
	MaxTileX int
	MaxTileY int
}

// Level binds a TileMatrix to a storage context and a naming scheme, and
// drives the operator graph for window fetches.
type Level struct {
	TM     *TileMatrix
	Format slab.Format

	TilesPerWidth  int
	TilesPerHeight int

	MinTileCol int
	MinTileRow int
	MaxTileCol int
	MaxTileRow int

	// Nodata holds one value per channel, substituted for missing
	// tiles.
	Nodata []float64

	// BaseDir and PathDepth shape filesystem slab paths; Prefix shapes
	// object names.
	BaseDir   string
	PathDepth int
	Prefix    string

	Ctx storage.Context
}

// NewLevel validates the configuration. No partially working level is
// ever returned.
func NewLevel(l Level) (*Level, error) {
	if l.TM == nil {
		return nil, fmt.Errorf("level without tile matrix")
	}
	if err := l.TM.Validate(); err != nil {
		return nil, err
	}
	if l.Ctx == nil {
		return nil, fmt.Errorf("level %s: no storage context", l.TM.ID)
	}
	if l.TilesPerWidth < 1 || l.TilesPerHeight < 1 {
		return nil, fmt.Errorf("level %s: slab tiling %dx%d must be at least 1x1", l.TM.ID, l.TilesPerWidth, l.TilesPerHeight)
	}
	if !l.Format.Supported() {
		return nil, fmt.Errorf("level %s: unsupported pixel format %s", l.TM.ID, l.Format)
	}
	if len(l.Nodata) != l.Format.Channels {
		return nil, fmt.Errorf("level %s: %d nodata values for %d channels", l.TM.ID, len(l.Nodata), l.Format.Channels)
	}
	if l.MaxTileCol < l.MinTileCol || l.MaxTileRow < l.MinTileRow {
		return nil, fmt.Errorf("level %s: empty tile window", l.TM.ID)
	}
	return &l, nil
}

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// SlabPath resolves tile indices to the slab holding them. Filesystem
// contexts use hierarchical base-36 pairs under the level root, one
// directory level per PathDepth step; object stores use
// "{prefix}_{X}_{Y}" with decimal slab indices.
func (l *Level) SlabPath(tileX, tileY int) string {
	x := tileX / l.TilesPerWidth
	y := tileY / l.TilesPerHeight

	if l.Ctx.Type() != storage.TypeFile {
		return fmt.Sprintf("%s_%d_%d", l.Prefix, x, y)
	}

	var sb strings.Builder
	digits := make([]byte, 0, 16)
	for d := 0; d < l.PathDepth; d++ {
		digits = append(digits, base36[y%36], base36[x%36], '/')
		x /= 36
		y /= 36
	}
	for {
		digits = append(digits, base36[y%36], base36[x%36])
		x /= 36
		y /= 36
		if x == 0 && y == 0 {
			break
		}
	}
	digits = append(digits, '/')

	sb.WriteString(l.BaseDir)
	for i := len(digits) - 1; i >= 0; i-- {
		sb.WriteByte(digits[i])
	}
	sb.WriteString(".tif")
	return sb.String()
}

// tileIndexInSlab returns the index of a tile within its slab.
func (l *Level) tileIndexInSlab(x, y int) int {
	return (y%l.TilesPerHeight)*l.TilesPerWidth + (x % l.TilesPerWidth)
}

func (l *Level) tilesNumber() int { return l.TilesPerWidth * l.TilesPerHeight }

// inWindow reports whether tile indices fall inside the level's valid
// window.
func (l *Level) inWindow(x, y int) bool {
	return x >= l.MinTileCol && x <= l.MaxTileCol && y >= l.MinTileRow && y <= l.MaxTileRow
}

// EncodedTile returns the stored payload of tile (x,y), undecoded and
// unwrapped.
func (l *Level) EncodedTile(x, y int) ([]byte, error) {
	if x < 0 || y < 0 {
		return nil, fmt.Errorf("%w: negative tile indices (%d,%d)", ErrNoData, x, y)
	}
	data, err := slab.TileAt(l.Ctx, l.SlabPath(x, y), l.tileIndexInSlab(x, y), l.tilesNumber())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: tile (%d,%d)", ErrNoData, x, y)
		}
		return nil, err
	}
	return data, nil
}

// GetTile returns the tile payload ready for a downstream consumer: raw,
// LZW, deflate and packbits tiles are wrapped in a minimal TIFF envelope,
// JPEG and PNG tiles returned as stored.
func (l *Level) GetTile(x, y int) ([]byte, error) {
	data, err := l.EncodedTile(x, y)
	if err != nil {
		return nil, err
	}
	if !slab.NeedsEnvelope(l.Format.Compression) {
		return data, nil
	}
	env := slab.TIFFEnvelope(l.Format, l.TM.TileW, l.TM.TileH, len(data))
	return append(env, data...), nil
}

// tileBBox is the terrain bounding box of a tile cropped by margins.
func (l *Level) tileBBox(x, y, left, top, right, bottom int) raster.BBox {
	tm := l.TM
	return raster.BBox{
		Xmin: tm.X0 + (float64(x*tm.TileW)+float64(left))*tm.Res,
		Ymin: tm.Y0 - (float64((y+1)*tm.TileH)-float64(bottom))*tm.Res,
		Xmax: tm.X0 + (float64((x+1)*tm.TileW)-float64(right))*tm.Res,
		Ymax: tm.Y0 - (float64(y*tm.TileH)+float64(top))*tm.Res,
	}
}

func (l *Level) sampleKind() raster.SampleKind {
	switch {
	case l.Format.SampleFormat == slab.SampleFloat:
		return raster.SampleF32
	case l.Format.BitsPerSample == 16:
		return raster.SampleU16
	}
	return raster.SampleU8
}

// GetTileImage returns the lazy image of tile (x,y) cropped by the given
// margins. Tiles outside the level window, missing slabs and decode
// failures all materialize as nodata.
func (l *Level) GetTileImage(x, y, left, top, right, bottom int) raster.Image {
	bbox := l.tileBBox(x, y, left, top, right, bottom)
	w := l.TM.TileW - left - right
	h := l.TM.TileH - top - bottom

	if x < 0 || y < 0 || !l.inWindow(x, y) {
		return raster.NewEmptyImage(w, h, l.Format.Channels, l.Nodata, bbox)
	}

	rawSize := l.TM.TileW * l.TM.TileH * l.Format.PixelSize()
	fetch := func() ([]byte, error) {
		encoded, err := l.EncodedTile(x, y)
		if err != nil {
			return nil, err
		}
		return slab.DecodeTile(l.Format, encoded, rawSize)
	}

	return raster.NewTileImage(fetch, l.sampleKind(), l.TM.TileW, l.TM.TileH,
		l.Format.Channels, bbox, left, top, right, bottom, l.Nodata)
}

// euclidean division: quotient rounds towards minus infinity, remainder
// is always positive.
func euclidQuo(i int64, n int) int {
	q := int(i) / n
	if i < 0 && int64(q*n) != i {
		q--
	}
	return q
}

func euclidRem(i int64, n int) int {
	r := int(i % int64(n))
	if r < 0 {
		r += n
	}
	return r
}

// pixelWindow is an integer pixel rectangle in level coordinates,
// half-open on neither side (xmax/ymax exclusive).
type pixelWindow struct {
	xmin, ymin, xmax, ymax int64
}

// GetWindow assembles the pixel rectangle from its tiles: interior tiles
// uncropped, border tiles cropped by the margins, stitched into a
// CompoundImage (or returned directly for a 1x1 grid).
func (l *Level) GetWindow(services Services, win pixelWindow) (raster.Image, error) {
	tm := l.TM

	tileXmin := euclidQuo(win.xmin, tm.TileW)
	tileXmax := euclidQuo(win.xmax-1, tm.TileW)
	nbx := tileXmax - tileXmin + 1
	if services.MaxTileX > 0 && nbx >= services.MaxTileX {
		return nil, fmt.Errorf("%w: %d tiles on the X axis", ErrTooManyTiles, nbx)
	}
	if nbx <= 0 {
		return nil, ErrEmptyWindow
	}

	tileYmin := euclidQuo(win.ymin, tm.TileH)
	tileYmax := euclidQuo(win.ymax-1, tm.TileH)
	nby := tileYmax - tileYmin + 1
	if services.MaxTileY > 0 && nby >= services.MaxTileY {
		return nil, fmt.Errorf("%w: %d tiles on the Y axis", ErrTooManyTiles, nby)
	}
	if nby <= 0 {
		return nil, ErrEmptyWindow
	}

	left := make([]int, nbx)
	right := make([]int, nbx)
	top := make([]int, nby)
	bottom := make([]int, nby)
	left[0] = euclidRem(win.xmin, tm.TileW)
	right[nbx-1] = tm.TileW - euclidRem(win.xmax-1, tm.TileW) - 1
	top[0] = euclidRem(win.ymin, tm.TileH)
	bottom[nby-1] = tm.TileH - euclidRem(win.ymax-1, tm.TileH) - 1

	grid := make([][]raster.Image, nby)
	for y := 0; y < nby; y++ {
		grid[y] = make([]raster.Image, nbx)
		for x := 0; x < nbx; x++ {
			grid[y][x] = l.GetTileImage(tileXmin+x, tileYmin+y, left[x], top[y], right[x], bottom[y])
		}
	}

	if nbx == 1 && nby == 1 {
		return grid[0][0], nil
	}
	return raster.NewCompoundImage(grid), nil
}

// GetBBox renders a terrain bounding box onto a width x height raster in
// the level's own CRS. When the request is pixel-exact and in phase with
// the level grid, the window is returned directly; otherwise the window
// is padded by the kernel support and resampled.
func (l *Level) GetBBox(services Services, bbox raster.BBox, width, height int, kernel interp.KernelType) (raster.Image, error) {
	tm := l.TM

	// Request corners in level pixel coordinates.
	pxmin := (bbox.Xmin - tm.X0) / tm.Res
	pxmax := (bbox.Xmax - tm.X0) / tm.Res
	pymin := (tm.Y0 - bbox.Ymax) / tm.Res
	pymax := (tm.Y0 - bbox.Ymin) / tm.Res

	win := pixelWindow{
		xmin: int64(math.Floor(pxmin + phaseEps)),
		ymin: int64(math.Floor(pymin + phaseEps)),
		xmax: int64(math.Ceil(pxmax - phaseEps)),
		ymax: int64(math.Ceil(pymax - phaseEps)),
	}

	if win.xmax-win.xmin == int64(width) && win.ymax-win.ymin == int64(height) &&
		pxmin-float64(win.xmin) < phaseEps && float64(win.xmax)-pxmax < phaseEps &&
		pymin-float64(win.ymin) < phaseEps && float64(win.ymax)-pymax < phaseEps {
		// In phase and at the level's own resolution: the tiles already
		// hold the exact answer.
		img, err := l.GetWindow(services, win)
		if err != nil {
			return nil, err
		}
		img.SetBBox(l.windowBBox(win))
		return img, nil
	}

	ratioX := (pxmax - pxmin) / float64(width)
	ratioY := (pymax - pymin) / float64(height)

	kt := interp.ForResampling(kernel)
	kk := interp.Get(kt)

	// Pad by the kernel support so border output pixels see their full
	// footprint.
	win = pixelWindow{
		xmin: int64(math.Floor(pxmin - kk.Support(ratioX))),
		xmax: int64(math.Ceil(pxmax + kk.Support(ratioX))),
		ymin: int64(math.Floor(pymin - kk.Support(ratioY))),
		ymax: int64(math.Ceil(pymax + kk.Support(ratioY))),
	}

	img, err := l.GetWindow(services, win)
	if err != nil {
		return nil, err
	}
	img.SetBBox(l.windowBBox(win))

	offX := pxmin - float64(win.xmin)
	offY := pymin - float64(win.ymin)
	resampled := raster.NewResampledImage(img, width, height,
		bbox.Width()/float64(width), bbox.Height()/float64(height),
		offX, offY, ratioX, ratioY, false, kk, bbox)
	return resampled, nil
}

// GetBBoxReprojected renders a terrain bounding box expressed in dstCRS
// from a level stored in srcCRS, through a backward reprojection grid.
func (l *Level) GetBBoxReprojected(services Services, bbox raster.BBox, width, height int,
	srcCRS, dstCRS proj.Projection, kernel interp.KernelType) (raster.Image, error) {

	tm := l.TM

	grid := raster.NewGrid(width, height, bbox)
	if err := grid.Reproject(proj.Transform(dstCRS, srcCRS)); err != nil {
		return nil, err
	}

	kt := interp.ForReprojection(kernel)
	kk := interp.Get(kt)

	ratioX := grid.BBox.Width() / (tm.Res * float64(width))
	ratioY := grid.BBox.Height() / (tm.Res * float64(height))

	bufX := math.Max(kk.Support(ratioX), reprojMinPadding)
	bufY := math.Max(kk.Support(ratioY), reprojMinPadding)

	win := pixelWindow{
		xmin: int64(math.Floor((grid.BBox.Xmin-tm.X0)/tm.Res - bufX)),
		ymin: int64(math.Floor((tm.Y0-grid.BBox.Ymax)/tm.Res - bufY)),
		xmax: int64(math.Ceil((grid.BBox.Xmax-tm.X0)/tm.Res + bufX)),
		ymax: int64(math.Ceil((tm.Y0-grid.BBox.Ymin)/tm.Res + bufY)),
	}

	img, err := l.GetWindow(services, win)
	if err != nil {
		return nil, err
	}
	winBBox := l.windowBBox(win)
	img.SetBBox(winBBox)

	// Into center-based pixel indices of the fetched window.
	grid.AffineTransform(
		1/img.ResX(), -winBBox.Xmin/img.ResX()-0.5,
		-1/img.ResY(), winBBox.Ymax/img.ResY()-0.5)

	slog.Debug("reprojected window ready",
		"level", tm.ID, "tiles", fmt.Sprintf("%dx%d", img.Width()/tm.TileW, img.Height()/tm.TileH),
		"ratio_x", ratioX, "ratio_y", ratioY)

	return raster.NewReprojectedImage(img, bbox, width, height, grid, kk, ratioX, ratioY, false), nil
}

// windowBBox converts a pixel window to terrain coordinates.
func (l *Level) windowBBox(win pixelWindow) raster.BBox {
	tm := l.TM
	return raster.BBox{
		Xmin: tm.X0 + tm.Res*float64(win.xmin),
		Ymin: tm.Y0 - tm.Res*float64(win.ymax),
		Xmax: tm.X0 + tm.Res*float64(win.xmax),
		Ymax: tm.Y0 - tm.Res*float64(win.ymin),
	}
}

// SlabBBox returns the terrain bounding box of the slab holding tile
// (col,row).
func (l *Level) SlabBBox(tileCol, tileRow int) raster.BBox {
	tm := l.TM
	col := (tileCol / l.TilesPerWidth) * l.TilesPerWidth
	row := (tileRow / l.TilesPerHeight) * l.TilesPerHeight

	xmin := float64(col*tm.TileW)*tm.Res + tm.X0
	ymax := tm.Y0 - float64(row*tm.TileH)*tm.Res
	return raster.BBox{
		Xmin: xmin,
		Ymin: ymax - float64(tm.TileH*l.TilesPerHeight)*tm.Res,
		Xmax: xmin + float64(tm.TileW*l.TilesPerWidth)*tm.Res,
		Ymax: ymax,
	}
}

// TileBBox returns the terrain bounding box of one tile.
func (l *Level) TileBBox(tileCol, tileRow int) raster.BBox {
	return l.tileBBox(tileCol, tileRow, 0, 0, 0, 0)
}

// LimitsBBox returns the terrain bounding box of the level's valid tile
// window.
func (l *Level) LimitsBBox() raster.BBox {
	tm := l.TM
	xmin := float64(l.MinTileCol*tm.TileW)*tm.Res + tm.X0
	ymax := tm.Y0 - float64(l.MinTileRow*tm.TileH)*tm.Res
	return raster.BBox{
		Xmin: xmin,
		Ymin: ymax - float64((l.MaxTileRow-l.MinTileRow+1)*tm.TileH)*tm.Res,
		Xmax: tm.X0 + float64((l.MaxTileCol+1)*tm.TileW)*tm.Res,
		Ymax: ymax,
	}
}
