package slab

import (
	"encoding/binary"
	"fmt"

	"github.com/rok4/pyramid/internal/storage"
)

// Reader gives tile- and scanline-level access to one slab. It keeps a
// memorization ring of tilesPerWidth decoded tiles so that assembling
// scanlines in order decodes every tile exactly once. A Reader is owned by
// a single goroutine.
type Reader struct {
	Header

	// Name is the resolved slab name; OriginalName the one the Reader
	// was opened with, kept for diagnostics when the slab is symbolic.
	Name         string
	OriginalName string

	ctx storage.Context

	offsets    []uint32
	byteCounts []uint32

	rawTileSize     int
	rawTileLineSize int

	memTiles [][]byte
	memIndex []int
}

// NewReader opens a slab: reads and parses the header under symbolic-slab
// resolution, then loads the tile index.
func NewReader(ctx storage.Context, name string) (*Reader, error) {
	if !ctx.Connected() {
		return nil, storage.ErrNotConnected
	}

	block, resolved, err := readResolved(ctx, name, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("reading slab %s: %w", name, err)
	}
	h, err := ParseHeader(block)
	if err != nil {
		return nil, fmt.Errorf("slab %s: %w", resolved, err)
	}

	r := &Reader{
		Header:       h,
		Name:         resolved,
		OriginalName: name,
		ctx:          ctx,

		rawTileSize:     h.TileWidth * h.TileHeight * h.Format.PixelSize(),
		rawTileLineSize: h.TileWidth * h.Format.PixelSize(),
	}

	if err := r.loadIndex(); err != nil {
		return nil, fmt.Errorf("slab %s: %w", resolved, err)
	}

	// One full widthwise row of decoded tiles stays resident, which is
	// what in-order scanline assembly needs.
	r.memTiles = make([][]byte, h.TilesAcross())
	r.memIndex = make([]int, h.TilesAcross())
	for i := range r.memIndex {
		r.memIndex[i] = -1
	}
	return r, nil
}

func (r *Reader) loadIndex() error {
	n := r.TilesNumber()
	block, err := r.ctx.Read(HeaderSize, 8*n, r.Name)
	if err != nil {
		return fmt.Errorf("reading tile index: %w", err)
	}
	if len(block) != 8*n {
		return fmt.Errorf("%w: tile index is %d bytes, want %d", ErrBadSlab, len(block), 8*n)
	}

	r.offsets = make([]uint32, n)
	r.byteCounts = make([]uint32, n)
	for i := 0; i < n; i++ {
		r.offsets[i] = binary.LittleEndian.Uint32(block[4*i:])
		r.byteCounts[i] = binary.LittleEndian.Uint32(block[4*n+4*i:])
	}
	return nil
}

// RawTileSize returns the decoded size of one tile in bytes.
func (r *Reader) RawTileSize() int { return r.rawTileSize }

// EncodedTile returns the stored payload of tile i, without decoding.
func (r *Reader) EncodedTile(i int) ([]byte, error) {
	if i < 0 || i >= r.TilesNumber() {
		return nil, fmt.Errorf("tile index %d out of range [0,%d)", i, r.TilesNumber())
	}
	size := int(r.byteCounts[i])
	if size > MaxTileSize {
		return nil, fmt.Errorf("%w: tile %d advertises %d bytes", ErrBadSlab, i, size)
	}
	data, err := r.ctx.Read(int(r.offsets[i]), size, r.Name)
	if err != nil {
		return nil, fmt.Errorf("reading tile %d: %w", i, err)
	}
	return data, nil
}

// RawTile returns the decoded pixels of tile i through the memorization
// ring: a tile already resident is returned as-is. The returned slice is
// owned by the ring and valid until the slot is reused.
func (r *Reader) RawTile(i int) ([]byte, error) {
	if i < 0 || i >= r.TilesNumber() {
		return nil, fmt.Errorf("tile index %d out of range [0,%d)", i, r.TilesNumber())
	}

	slot := i % len(r.memTiles)
	if r.memIndex[slot] == i {
		return r.memTiles[slot], nil
	}

	encoded, err := r.EncodedTile(i)
	if err != nil {
		return nil, err
	}
	raw, err := DecodeTile(r.Format, encoded, r.rawTileSize)
	if err != nil {
		return nil, fmt.Errorf("decoding tile %d: %w", i, err)
	}

	if r.memTiles[slot] == nil {
		r.memTiles[slot] = make([]byte, r.rawTileSize)
	}
	copy(r.memTiles[slot], raw)
	r.memIndex[slot] = i
	return r.memTiles[slot], nil
}

// ReadLine copies one raw scanline of the slab into buf, which must hold
// Width*PixelSize bytes. Tiles of the line's row are pulled through the
// memorization ring, so iterating lines in order is cheap.
func (r *Reader) ReadLine(buf []byte, line int) (int, error) {
	if line < 0 || line >= r.Height {
		return 0, fmt.Errorf("line %d out of range [0,%d)", line, r.Height)
	}

	tileRow := line / r.TileHeight
	tileLine := line % r.TileHeight

	for tileCol := 0; tileCol < r.TilesAcross(); tileCol++ {
		tile, err := r.RawTile(tileRow*r.TilesAcross() + tileCol)
		if err != nil {
			return 0, err
		}
		copy(buf[tileCol*r.rawTileLineSize:], tile[tileLine*r.rawTileLineSize:(tileLine+1)*r.rawTileLineSize])
	}
	return r.TilesAcross() * r.rawTileLineSize, nil
}

// TileAt fetches the encoded payload of a tile directly from the header
// index of a possibly symbolic slab, without a prior NewReader: one read
// grabs header plus index, a second grabs the payload. This is the serving
// path, where the level already knows the slab geometry.
func TileAt(ctx storage.Context, name string, tileIndex, tilesNumber int) ([]byte, error) {
	block, resolved, err := readResolved(ctx, name, HeaderSize+8*tilesNumber)
	if err != nil {
		return nil, err
	}
	if len(block) < HeaderSize+8*tilesNumber {
		return nil, fmt.Errorf("%w: %s: %d bytes of header and index, want %d", ErrBadSlab, resolved, len(block), HeaderSize+8*tilesNumber)
	}

	offset := binary.LittleEndian.Uint32(block[HeaderSize+4*tileIndex:])
	size := binary.LittleEndian.Uint32(block[HeaderSize+4*tilesNumber+4*tileIndex:])
	if size == 0 {
		return nil, fmt.Errorf("%w: empty tile", storage.ErrNotFound)
	}
	if size > MaxTileSize {
		return nil, fmt.Errorf("%w: %s: tile %d advertises %d bytes", ErrBadSlab, resolved, tileIndex, size)
	}

	data, err := ctx.Read(int(offset), int(size), resolved)
	if err != nil {
		return nil, err
	}
	return data, nil
}
