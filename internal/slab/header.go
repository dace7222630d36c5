package slab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/rok4/pyramid/internal/storage"
)

const (
	// HeaderSize is the fixed size of the TIFF-shaped slab header. The
	// tile index starts right after it.
	HeaderSize = 2048

	// MaxTileSize bounds the recorded size of an encoded tile, to guard
	// against non-conformant slabs advertising absurd sizes.
	MaxTileSize = 1 << 20

	// SymlinkSignature opens the payload of a symbolic slab; the target
	// slab name follows as UTF-8.
	SymlinkSignature = "SYMLINK#"
)

// Fixed little-endian field offsets within the header.
const (
	offBitsPerSample = 8
	offWidth         = 26
	offHeight        = 38
	offCompression   = 62
	offPhotometric   = 74
	offChannels      = 86
	offTileWidth     = 98
	offTileHeight    = 110
	offTagDiscrim    = 138
	offTagValue      = 146
	offSampleFormat  = 158
)

// TIFF tag and type codes used in the header.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagSamplesPerPixel = 277
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagExtraSamples    = 338
	tagSampleFormat    = 339
	tagYCbCrSubsample  = 530

	typeShort = 3
	typeLong  = 4

	extraSampleUnassAlpha = 2
)

var (
	// ErrBadSlab reports an unreadable or non-conformant header.
	ErrBadSlab = errors.New("slab: bad slab header")

	// ErrSymlinkLoop reports circular symbolic-slab indirection.
	ErrSymlinkLoop = errors.New("slab: symbolic slab loop")
)

// Header is the parsed fixed part of a slab.
type Header struct {
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	Format     Format
}

// TilesAcross returns the number of tiles widthwise.
func (h Header) TilesAcross() int { return h.Width / h.TileWidth }

// TilesDown returns the number of tiles heightwise.
func (h Header) TilesDown() int { return h.Height / h.TileHeight }

// TilesNumber returns the total tile count of the slab.
func (h Header) TilesNumber() int { return h.TilesAcross() * h.TilesDown() }

// ParseHeader decodes the fixed fields of a header block. The block must be
// at least HeaderSize bytes.
func ParseHeader(hdr []byte) (Header, error) {
	if len(hdr) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d header bytes", ErrBadSlab, len(hdr))
	}
	le := binary.LittleEndian
	if le.Uint16(hdr[0:2]) != 0x4949 || le.Uint16(hdr[2:4]) != 42 {
		return Header{}, fmt.Errorf("%w: not a little-endian TIFF header", ErrBadSlab)
	}

	h := Header{
		Width:      int(le.Uint32(hdr[offWidth:])),
		Height:     int(le.Uint32(hdr[offHeight:])),
		TileWidth:  int(le.Uint32(hdr[offTileWidth:])),
		TileHeight: int(le.Uint32(hdr[offTileHeight:])),
		Format: Format{
			Channels:      int(le.Uint32(hdr[offChannels:])),
			BitsPerSample: int(le.Uint16(hdr[offBitsPerSample:])),
			Photometric:   Photometric(le.Uint16(hdr[offPhotometric:])),
			Compression:   Compression(le.Uint32(hdr[offCompression:])),
		},
	}
	if h.Format.Compression == CompressionLegacyDeflate {
		h.Format.Compression = CompressionDeflate
	}

	// The eleventh entry is either ExtraSamples (alpha slabs, the sample
	// format follows as a twelfth entry) or SampleFormat directly.
	switch le.Uint16(hdr[offTagDiscrim:]) {
	case tagExtraSamples:
		h.Format.SampleFormat = SampleFormat(le.Uint32(hdr[offSampleFormat:]))
	case tagSampleFormat:
		h.Format.SampleFormat = SampleFormat(le.Uint32(hdr[offTagValue:]))
	default:
		return Header{}, fmt.Errorf("%w: inconsistent tag %d at sample-format slot", ErrBadSlab, le.Uint16(hdr[offTagDiscrim:]))
	}

	if h.TileWidth <= 0 || h.TileHeight <= 0 || h.Width%h.TileWidth != 0 || h.Height%h.TileHeight != 0 {
		return Header{}, fmt.Errorf("%w: dimensions %dx%d not tiled by %dx%d", ErrBadSlab, h.Width, h.Height, h.TileWidth, h.TileHeight)
	}
	if !h.Format.Supported() {
		return Header{}, fmt.Errorf("%w: unsupported sample type %s with %d bits", ErrBadSlab, h.Format.SampleFormat, h.Format.BitsPerSample)
	}
	return h, nil
}

// readResolved reads size bytes at the start of a slab, resolving symbolic
// slabs: a payload shorter than a regular header that starts with the
// symlink signature redirects to the named target. Loops and over-long
// chains abort. It returns the block, the resolved name and the original
// name (equal when no indirection happened).
func readResolved(ctx storage.Context, name string, size int) (block []byte, resolved string, err error) {
	const maxHops = 8

	seen := map[string]bool{}
	original := name
	for {
		if seen[name] {
			return nil, "", fmt.Errorf("%w: %s chains back to %s", ErrSymlinkLoop, original, name)
		}
		seen[name] = true
		if len(seen) > maxHops {
			return nil, "", fmt.Errorf("%w: more than %d hops from %s", ErrSymlinkLoop, maxHops, original)
		}

		block, err = ctx.Read(0, size, name)
		if err != nil {
			return nil, "", err
		}
		if len(block) >= HeaderSize {
			return block, name, nil
		}
		if !strings.HasPrefix(string(block), SymlinkSignature) {
			return nil, "", fmt.Errorf("%w: %s: short read of %d bytes without symlink signature", ErrBadSlab, name, len(block))
		}
		name = string(block[len(SymlinkSignature):])
	}
}
