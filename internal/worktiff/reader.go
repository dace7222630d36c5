// Package worktiff reads and writes work images: flat TIFF files the
// writer tools exchange with the slab format. Both strip and tile
// layouts are read, in either byte order, with the slab codecs (none,
// LZW, deflate, packbits) plus uint8, uint16 and float32 samples.
package worktiff

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rok4/pyramid/internal/raster"
	"github.com/rok4/pyramid/internal/slab"
)

// TIFF tag ids used by work files.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	typeByte  = 1
	typeShort = 3
	typeLong  = 4
)

// File is a fully decoded work image.
type File struct {
	Format slab.Format
	Image  *raster.MemoryImage
}

// ifd is the subset of a TIFF directory a work file needs.
type ifd struct {
	width, height   uint32
	bitsPerSample   uint16
	samplesPerPixel uint16
	compression     uint16
	photometric     uint16
	sampleFormat    uint16

	rowsPerStrip    uint32
	stripOffsets    []uint32
	stripByteCounts []uint32

	tileWidth      uint32
	tileHeight     uint32
	tileOffsets    []uint32
	tileByteCounts []uint32
}

// Read decodes a work TIFF into memory.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses and decompresses a work TIFF held in memory.
func Decode(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("worktiff: %d bytes is no TIFF", len(data))
	}

	var bo binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("worktiff: invalid byte order mark %q", data[0:2])
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("worktiff: bad TIFF magic %d", bo.Uint16(data[2:4]))
	}

	d, err := parseIFD(data, bo, bo.Uint32(data[4:8]))
	if err != nil {
		return nil, err
	}

	f := slab.Format{
		SampleFormat:  slab.SampleFormat(d.sampleFormat),
		BitsPerSample: int(d.bitsPerSample),
		Channels:      int(d.samplesPerPixel),
		Photometric:   slab.Photometric(d.photometric),
		Compression:   slab.Compression(d.compression),
	}
	if f.Compression == slab.CompressionLegacyDeflate {
		f.Compression = slab.CompressionDeflate
	}
	if f.SampleFormat == slab.SampleUnknown {
		f.SampleFormat = slab.SampleUInt
	}
	if !f.Supported() {
		return nil, fmt.Errorf("worktiff: unsupported sample type %s with %d bits", f.SampleFormat, f.BitsPerSample)
	}

	var kind raster.SampleKind
	switch {
	case f.SampleFormat == slab.SampleFloat:
		kind = raster.SampleF32
	case f.BitsPerSample == 16:
		kind = raster.SampleU16
	default:
		kind = raster.SampleU8
	}

	w, h := int(d.width), int(d.height)
	img := raster.NewMemoryImage(w, h, f.Channels, kind, raster.BBox{Xmin: 0, Ymin: 0, Xmax: float64(w), Ymax: float64(h)})

	var fillErr error
	if len(d.tileOffsets) > 0 {
		fillErr = fillFromTiles(img, d, f, data, bo)
	} else if len(d.stripOffsets) > 0 {
		fillErr = fillFromStrips(img, d, f, data, bo)
	} else {
		fillErr = fmt.Errorf("worktiff: no strip or tile layout")
	}
	if fillErr != nil {
		return nil, fillErr
	}

	return &File{Format: f, Image: img}, nil
}

// decodeChunk expands one strip or tile payload with the slab codecs.
func decodeChunk(f slab.Format, chunk []byte, rawSize int) ([]byte, error) {
	return slab.DecodeTile(f, chunk, rawSize)
}

func fillFromStrips(img *raster.MemoryImage, d *ifd, f slab.Format, data []byte, bo binary.ByteOrder) error {
	w := int(d.width)
	pixelSize := f.PixelSize()
	lineSize := w * pixelSize

	rps := int(d.rowsPerStrip)
	if rps == 0 {
		rps = int(d.height)
	}

	row := 0
	for s := range d.stripOffsets {
		off, size := int(d.stripOffsets[s]), int(d.stripByteCounts[s])
		if off+size > len(data) {
			return fmt.Errorf("worktiff: strip %d runs past the file", s)
		}
		rows := rps
		if row+rows > int(d.height) {
			rows = int(d.height) - row
		}
		raw, err := decodeChunk(f, data[off:off+size], rows*lineSize)
		if err != nil {
			return fmt.Errorf("worktiff: strip %d: %w", s, err)
		}
		fixByteOrder(raw, f, bo)
		copy(img.Raw()[row*lineSize:], raw[:minInt(len(raw), rows*lineSize)])
		row += rows
	}
	return nil
}

func fillFromTiles(img *raster.MemoryImage, d *ifd, f slab.Format, data []byte, bo binary.ByteOrder) error {
	w, h := int(d.width), int(d.height)
	tw, th := int(d.tileWidth), int(d.tileHeight)
	pixelSize := f.PixelSize()
	lineSize := w * pixelSize
	tileLineSize := tw * pixelSize

	across := (w + tw - 1) / tw
	down := (h + th - 1) / th

	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			idx := ty*across + tx
			off, size := int(d.tileOffsets[idx]), int(d.tileByteCounts[idx])
			if off+size > len(data) {
				return fmt.Errorf("worktiff: tile %d runs past the file", idx)
			}
			raw, err := decodeChunk(f, data[off:off+size], tw*th*pixelSize)
			if err != nil {
				return fmt.Errorf("worktiff: tile %d: %w", idx, err)
			}
			fixByteOrder(raw, f, bo)

			rows := minInt(th, h-ty*th)
			cols := minInt(tileLineSize, lineSize-tx*tileLineSize)
			for l := 0; l < rows; l++ {
				dst := (ty*th+l)*lineSize + tx*tileLineSize
				copy(img.Raw()[dst:dst+cols], raw[l*tileLineSize:])
			}
		}
	}
	return nil
}

// fixByteOrder swaps multi-byte samples of big-endian files in place: the
// in-memory layout is little-endian.
func fixByteOrder(raw []byte, f slab.Format, bo binary.ByteOrder) {
	if bo == binary.LittleEndian {
		return
	}
	switch f.PixelSize() / f.Channels {
	case 2:
		for i := 0; i+1 < len(raw); i += 2 {
			raw[i], raw[i+1] = raw[i+1], raw[i]
		}
	case 4:
		for i := 0; i+3 < len(raw); i += 4 {
			raw[i], raw[i+3] = raw[i+3], raw[i]
			raw[i+1], raw[i+2] = raw[i+2], raw[i+1]
		}
	}
}

func parseIFD(data []byte, bo binary.ByteOrder, offset uint32) (*ifd, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("worktiff: IFD offset %d past the file", offset)
	}
	n := int(bo.Uint16(data[offset:]))

	d := &ifd{samplesPerPixel: 1, compression: 1, sampleFormat: 1}
	for i := 0; i < n; i++ {
		e := int(offset) + 2 + 12*i
		if e+12 > len(data) {
			return nil, fmt.Errorf("worktiff: truncated IFD entry %d", i)
		}
		tag := bo.Uint16(data[e:])
		typ := bo.Uint16(data[e+2:])
		count := bo.Uint32(data[e+4:])
		value := data[e+8 : e+12]

		switch tag {
		case tagImageWidth:
			d.width = scalar(value, typ, bo)
		case tagImageLength:
			d.height = scalar(value, typ, bo)
		case tagBitsPerSample:
			d.bitsPerSample = uint16(firstOf(data, bo, typ, count, value))
		case tagSamplesPerPixel:
			d.samplesPerPixel = uint16(scalar(value, typ, bo))
		case tagCompression:
			d.compression = uint16(scalar(value, typ, bo))
		case tagPhotometric:
			d.photometric = uint16(scalar(value, typ, bo))
		case tagSampleFormat:
			d.sampleFormat = uint16(firstOf(data, bo, typ, count, value))
		case tagRowsPerStrip:
			d.rowsPerStrip = scalar(value, typ, bo)
		case tagStripOffsets:
			d.stripOffsets = longSlice(data, bo, typ, count, value)
		case tagStripByteCounts:
			d.stripByteCounts = longSlice(data, bo, typ, count, value)
		case tagTileWidth:
			d.tileWidth = scalar(value, typ, bo)
		case tagTileLength:
			d.tileHeight = scalar(value, typ, bo)
		case tagTileOffsets:
			d.tileOffsets = longSlice(data, bo, typ, count, value)
		case tagTileByteCounts:
			d.tileByteCounts = longSlice(data, bo, typ, count, value)
		}
	}
	if d.width == 0 || d.height == 0 {
		return nil, fmt.Errorf("worktiff: missing image dimensions")
	}
	return d, nil
}

// scalar reads a single inline SHORT or LONG value.
func scalar(value []byte, typ uint16, bo binary.ByteOrder) uint32 {
	if typ == typeShort {
		return uint32(bo.Uint16(value))
	}
	return bo.Uint32(value)
}

// firstOf reads the first element of a possibly out-of-line SHORT/LONG
// array.
func firstOf(data []byte, bo binary.ByteOrder, typ uint16, count uint32, value []byte) uint32 {
	s := longSlice(data, bo, typ, count, value)
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// longSlice reads a SHORT or LONG array, inline or through its offset.
func longSlice(data []byte, bo binary.ByteOrder, typ uint16, count uint32, value []byte) []uint32 {
	elem := 4
	if typ == typeShort {
		elem = 2
	}
	total := int(count) * elem

	src := value
	if total > 4 {
		off := int(bo.Uint32(value))
		if off+total > len(data) {
			return nil
		}
		src = data[off : off+total]
	}

	out := make([]uint32, count)
	for i := range out {
		if typ == typeShort {
			out[i] = uint32(bo.Uint16(src[i*2:]))
		} else {
			out[i] = bo.Uint32(src[i*4:])
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
