package slab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
)

// jpegBlockSize is the stride of the crop-white scan, matching the JPEG
// coding block.
const jpegBlockSize = 16

// LineReader supplies raw scanlines to WriteImage. The slab Reader and the
// work-TIFF reader both satisfy it.
type LineReader interface {
	ReadLine(buf []byte, line int) (int, error)
}

// Writer produces one slab. Usage: NewWriter (or NewVectorWriter), then
// WriteHeader, then the tiles in index order, then Finalize, which stores
// the tile index and flushes the object.
type Writer struct {
	h        Header
	isVector bool

	ctx  writeContext
	name string

	tilesAcross int
	tilesDown   int
	tilesNumber int

	rawTileSize     int
	rawTileLineSize int

	offsets    []uint32
	byteCounts []uint32
	position   int

	white []byte
}

// writeContext is the slice of storage.Context the writer needs.
type writeContext interface {
	Write(data []byte, offset int, name string) error
	WriteFull(data []byte, name string) error
	OpenToWrite(name string) error
	CloseToWrite(name string) error
}

// NewWriter validates the format and prepares a raster slab writer.
func NewWriter(ctx writeContext, name string, h Header) (*Writer, error) {
	if h.TileWidth <= 0 || h.TileHeight <= 0 || h.Width%h.TileWidth != 0 || h.Height%h.TileHeight != 0 {
		return nil, fmt.Errorf("slab dimensions %dx%d must be multiples of the tile dimensions %dx%d",
			h.Width, h.Height, h.TileWidth, h.TileHeight)
	}

	f := &h.Format
	if f.Compression == CompressionJPEG {
		if f.Photometric == PhotometricGray {
			return nil, fmt.Errorf("gray JPEG slabs are not handled")
		}
		if f.SampleFormat != SampleUInt || f.BitsPerSample != 8 {
			return nil, fmt.Errorf("JPEG compression requires 8-bit integer samples")
		}
		if f.Photometric == PhotometricRGB {
			f.Photometric = PhotometricYCbCr
		}
	} else if f.Photometric == PhotometricYCbCr {
		f.Photometric = PhotometricRGB
	}
	if f.Compression == CompressionPNG && (f.SampleFormat != SampleUInt || f.BitsPerSample != 8) {
		return nil, fmt.Errorf("PNG compression requires 8-bit integer samples")
	}
	if !f.Supported() {
		return nil, fmt.Errorf("unsupported sample type %s with %d bits", f.SampleFormat, f.BitsPerSample)
	}

	w := &Writer{
		h:           h,
		ctx:         ctx,
		name:        name,
		tilesAcross: h.TilesAcross(),
		tilesDown:   h.TilesDown(),
		tilesNumber: h.TilesNumber(),

		rawTileSize:     h.TileWidth * h.TileHeight * h.Format.PixelSize(),
		rawTileLineSize: h.TileWidth * h.Format.PixelSize(),
	}
	w.white = bytes.Repeat([]byte{255}, h.Format.Channels)
	return w, nil
}

// NewVectorWriter prepares a writer for a vector slab: same layout, the
// tile payloads are stored verbatim.
func NewVectorWriter(ctx writeContext, name string, tilesPerWidth, tilesPerHeight int) *Writer {
	return &Writer{
		h:           Header{Width: 1, Height: 1},
		isVector:    true,
		ctx:         ctx,
		name:        name,
		tilesAcross: tilesPerWidth,
		tilesDown:   tilesPerHeight,
		tilesNumber: tilesPerWidth * tilesPerHeight,
	}
}

// WriteHeader opens the output and stores the fixed 2048-byte header.
func (w *Writer) WriteHeader() error {
	if err := w.ctx.OpenToWrite(w.name); err != nil {
		return fmt.Errorf("opening output %s: %w", w.name, err)
	}

	hdr := make([]byte, HeaderSize)
	le := binary.LittleEndian

	le.PutUint16(hdr[0:], 0x4949) // little endian
	le.PutUint16(hdr[2:], 42)     // TIFF magic
	le.PutUint32(hdr[4:], 16)     // IFD offset

	// Four copies of the per-sample bit count live at byte 8; multi-band
	// BitsPerSample entries point here.
	if !w.isVector {
		for i := 0; i < 4; i++ {
			le.PutUint16(hdr[8+2*i:], uint16(w.h.Format.BitsPerSample))
		}
	}

	p := 16
	tag := func(id, typ uint16, count, value uint32) {
		le.PutUint16(hdr[p:], id)
		le.PutUint16(hdr[p+2:], typ)
		le.PutUint32(hdr[p+4:], count)
		le.PutUint32(hdr[p+8:], value)
		p += 12
	}
	tagPair16 := func(id, typ uint16, count uint32, a, b uint16) {
		le.PutUint16(hdr[p:], id)
		le.PutUint16(hdr[p+2:], typ)
		le.PutUint32(hdr[p+4:], count)
		le.PutUint16(hdr[p+8:], a)
		le.PutUint16(hdr[p+10:], b)
		p += 12
	}

	tileOffsetsValue := uint32(HeaderSize)
	if w.tilesNumber == 1 {
		// Single tile: the tag value slot holds the payload position
		// directly; the index copy at 2048 still gets written on
		// finalize, after the offset and size slots themselves.
		tileOffsetsValue = HeaderSize + 8
	}

	if w.isVector {
		le.PutUint16(hdr[p:], 4)
		p += 2
		tag(tagImageWidth, typeLong, 1, uint32(w.h.Width))
		tag(tagImageLength, typeLong, 1, uint32(w.h.Height))
		tag(tagTileOffsets, typeLong, uint32(w.tilesNumber), tileOffsetsValue)
		tag(tagTileByteCounts, typeLong, uint32(w.tilesNumber), HeaderSize+4*uint32(w.tilesNumber))
	} else {
		f := w.h.Format
		n := uint16(11)
		if f.Photometric == PhotometricYCbCr {
			n++
		}
		if f.Channels == 4 || f.Channels == 2 {
			n++
		}
		le.PutUint16(hdr[p:], n)
		p += 2

		tag(tagImageWidth, typeLong, 1, uint32(w.h.Width))
		tag(tagImageLength, typeLong, 1, uint32(w.h.Height))
		switch f.Channels {
		case 1:
			tag(tagBitsPerSample, typeShort, 1, uint32(f.BitsPerSample))
		case 2:
			tagPair16(tagBitsPerSample, typeShort, 2, 8, 8)
		default:
			// Count > 2 never fits inline: the value is the offset of
			// the bit-count block at byte 8.
			tag(tagBitsPerSample, typeShort, uint32(f.Channels), 8)
		}
		tag(tagCompression, typeShort, 1, headerCompressionCode(f.Compression))
		tag(tagPhotometric, typeShort, 1, uint32(f.Photometric))
		tag(tagSamplesPerPixel, typeShort, 1, uint32(f.Channels))
		tag(tagTileWidth, typeLong, 1, uint32(w.h.TileWidth))
		tag(tagTileLength, typeLong, 1, uint32(w.h.TileHeight))
		tag(tagTileOffsets, typeLong, uint32(w.tilesNumber), tileOffsetsValue)
		tag(tagTileByteCounts, typeLong, uint32(w.tilesNumber), HeaderSize+4*uint32(w.tilesNumber))
		if f.Channels == 4 || f.Channels == 2 {
			tag(tagExtraSamples, typeShort, 1, extraSampleUnassAlpha)
		}
		tag(tagSampleFormat, typeShort, 1, uint32(f.SampleFormat))
		if f.Photometric == PhotometricYCbCr {
			tagPair16(tagYCbCrSubsample, typeShort, 2, 2, 2)
		}
	}

	le.PutUint32(hdr[p:], 0) // end of IFD

	if err := w.ctx.Write(hdr, 0, w.name); err != nil {
		return fmt.Errorf("writing header of %s: %w", w.name, err)
	}

	w.offsets = make([]uint32, w.tilesNumber)
	w.byteCounts = make([]uint32, w.tilesNumber)
	w.position = HeaderSize + 8*w.tilesNumber
	return nil
}

// headerCompressionCode maps the runtime compression onto the code stored
// in the header: PNG slabs are declared as deflate.
func headerCompressionCode(c Compression) uint32 {
	if c == CompressionPNG {
		return uint32(CompressionLegacyDeflate)
	}
	return uint32(c)
}

// WriteTile encodes and stores one raster tile. Tiles must be written in
// index order. crop whitens every 16x16 block containing a pure-white
// pixel before JPEG encoding, so block artefacts never bleed into white
// margins.
func (w *Writer) WriteTile(tileInd int, raw []byte, crop bool) error {
	if w.isVector {
		return fmt.Errorf("raster tile write on a vector slab")
	}
	if tileInd < 0 || tileInd >= w.tilesNumber {
		return fmt.Errorf("tile index %d out of range [0,%d)", tileInd, w.tilesNumber)
	}
	if crop && w.h.Format.Compression != CompressionJPEG {
		slog.Warn("crop option is reserved for JPEG compression")
		crop = false
	}

	encoded, err := w.encodeTile(raw, crop)
	if err != nil {
		return fmt.Errorf("encoding tile %d: %w", tileInd, err)
	}
	return w.storeTile(tileInd, encoded)
}

// WritePBFTile stores one vector tile payload verbatim. A nil payload
// records an absent tile (zero size).
func (w *Writer) WritePBFTile(tileInd int, payload []byte) error {
	if !w.isVector {
		return fmt.Errorf("PBF tile write on a raster slab")
	}
	if tileInd < 0 || tileInd >= w.tilesNumber {
		return fmt.Errorf("tile index %d out of range [0,%d)", tileInd, w.tilesNumber)
	}
	if len(payload) == 0 {
		w.offsets[tileInd] = 0
		w.byteCounts[tileInd] = 0
		return nil
	}
	return w.storeTile(tileInd, payload)
}

func (w *Writer) storeTile(tileInd int, encoded []byte) error {
	if w.tilesNumber == 1 {
		// Keep the inline size slot of the header in sync.
		var sz [4]byte
		binary.LittleEndian.PutUint32(sz[:], uint32(len(encoded)))
		if err := w.ctx.Write(sz[:], offTagValue-12, w.name); err != nil {
			return fmt.Errorf("writing inline tile size: %w", err)
		}
	}

	w.offsets[tileInd] = uint32(w.position)
	w.byteCounts[tileInd] = uint32(len(encoded))

	if err := w.ctx.Write(encoded, w.position, w.name); err != nil {
		return fmt.Errorf("writing tile %d: %w", tileInd, err)
	}
	w.position = (w.position + len(encoded) + 15) &^ 15
	return nil
}

// Finalize stores the tile index and closes the output.
func (w *Writer) Finalize() error {
	n := w.tilesNumber
	index := make([]byte, 8*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(index[4*i:], w.offsets[i])
		binary.LittleEndian.PutUint32(index[4*n+4*i:], w.byteCounts[i])
	}
	if err := w.ctx.Write(index, HeaderSize, w.name); err != nil {
		return fmt.Errorf("writing tile index of %s: %w", w.name, err)
	}
	if err := w.ctx.CloseToWrite(w.name); err != nil {
		return fmt.Errorf("closing %s: %w", w.name, err)
	}
	return nil
}

// WriteImage cuts a line source into tiles and writes the whole slab,
// header to index.
func (w *Writer) WriteImage(src LineReader, crop bool) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	imageLineSize := w.h.Width * w.h.Format.PixelSize()
	lines := make([]byte, w.h.TileHeight*imageLineSize)
	tile := make([]byte, w.rawTileSize)

	for ty := 0; ty < w.tilesDown; ty++ {
		for l := 0; l < w.h.TileHeight; l++ {
			if _, err := src.ReadLine(lines[l*imageLineSize:(l+1)*imageLineSize], ty*w.h.TileHeight+l); err != nil {
				return fmt.Errorf("reading source line %d: %w", ty*w.h.TileHeight+l, err)
			}
		}
		for tx := 0; tx < w.tilesAcross; tx++ {
			for l := 0; l < w.h.TileHeight; l++ {
				copy(tile[l*w.rawTileLineSize:], lines[l*imageLineSize+tx*w.rawTileLineSize:l*imageLineSize+(tx+1)*w.rawTileLineSize])
			}
			if err := w.WriteTile(ty*w.tilesAcross+tx, tile, crop); err != nil {
				return err
			}
		}
	}
	return w.Finalize()
}

func (w *Writer) encodeTile(raw []byte, crop bool) ([]byte, error) {
	switch w.h.Format.Compression {
	case CompressionNone:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil

	case CompressionLZW:
		return lzwEncode(raw), nil

	case CompressionDeflate:
		return deflateTile(raw)

	case CompressionPNG:
		return encodePNGTile(raw, w.h.TileWidth, w.h.TileHeight, w.h.Format.Channels, w.rawTileLineSize)

	case CompressionPackBits:
		var out []byte
		for l := 0; l < w.h.TileHeight; l++ {
			out = append(out, packBitsEncodeLine(raw[l*w.rawTileLineSize:(l+1)*w.rawTileLineSize])...)
		}
		return out, nil

	case CompressionJPEG:
		if crop {
			w.cropWhite(raw)
		}
		return w.encodeJPEGTile(raw)
	}
	return nil, fmt.Errorf("unhandled compression %d", w.h.Format.Compression)
}

func (w *Writer) encodeJPEGTile(raw []byte) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w.h.TileWidth, w.h.TileHeight))
	channels := w.h.Format.Channels
	for y := 0; y < w.h.TileHeight; y++ {
		for x := 0; x < w.h.TileWidth; x++ {
			src := raw[y*w.rawTileLineSize+x*channels:]
			dst := img.Pix[y*img.Stride+x*4:]
			dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 255
		}
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// cropWhite whitens every 16x16 block of the tile that contains at least
// one pure-white pixel.
func (w *Writer) cropWhite(raw []byte) {
	for by := 0; by < w.h.TileHeight; by += jpegBlockSize {
		bh := jpegBlockSize
		if by+bh > w.h.TileHeight {
			bh = w.h.TileHeight - by
		}
		for bx := 0; bx < w.h.TileWidth; bx += jpegBlockSize {
			bw := jpegBlockSize
			if bx+bw > w.h.TileWidth {
				bw = w.h.TileWidth - bx
			}
			if w.blockHasWhite(raw, bx, by, bw, bh) {
				w.fillBlockWhite(raw, bx, by, bw, bh)
			}
		}
	}
}

func (w *Writer) blockHasWhite(raw []byte, bx, by, bw, bh int) bool {
	channels := w.h.Format.Channels
	for y := by; y < by+bh; y++ {
		for x := bx; x < bx+bw; x++ {
			if bytes.Equal(raw[y*w.rawTileLineSize+x*channels:y*w.rawTileLineSize+(x+1)*channels], w.white) {
				return true
			}
		}
	}
	return false
}

func (w *Writer) fillBlockWhite(raw []byte, bx, by, bw, bh int) {
	channels := w.h.Format.Channels
	for y := by; y < by+bh; y++ {
		for x := bx; x < bx+bw; x++ {
			copy(raw[y*w.rawTileLineSize+x*channels:], w.white)
		}
	}
}
