// Package slab reads and writes the slab storage format: a 2048-byte
// TIFF-shaped header, two parallel arrays of little-endian uint32 tile
// offsets and sizes, then the encoded tile payloads aligned to 16 bytes.
// A slab groups tilesPerWidth x tilesPerHeight tiles in a single object or
// file of a storage context.
package slab

import "fmt"

// SampleFormat is the numeric interpretation of a sample.
type SampleFormat uint16

const (
	SampleUnknown SampleFormat = 0
	SampleUInt    SampleFormat = 1
	SampleFloat   SampleFormat = 3
)

func (s SampleFormat) String() string {
	switch s {
	case SampleUInt:
		return "uint"
	case SampleFloat:
		return "float"
	}
	return "unknown"
}

// Photometric carries the TIFF photometric interpretation values.
type Photometric uint16

const (
	PhotometricGray  Photometric = 1
	PhotometricRGB   Photometric = 2
	PhotometricYCbCr Photometric = 6
	// PhotometricMask marks single-channel data masks; stored as gray.
	PhotometricMask Photometric = 4
)

func (p Photometric) String() string {
	switch p {
	case PhotometricGray:
		return "gray"
	case PhotometricRGB:
		return "rgb"
	case PhotometricYCbCr:
		return "ycbcr"
	case PhotometricMask:
		return "mask"
	}
	return "unknown"
}

// Compression carries the TIFF compression codes. PNG tiles travel under
// the deflate code and are told apart by their signature.
type Compression uint32

const (
	CompressionNone          Compression = 1
	CompressionLZW           Compression = 5
	CompressionJPEG          Compression = 7
	CompressionDeflate       Compression = 8
	CompressionPackBits      Compression = 32773
	CompressionLegacyDeflate Compression = 32946

	// CompressionPNG never appears in a header; it is the runtime
	// refinement of a deflate code whose tiles carry a PNG signature.
	CompressionPNG Compression = 0x10000
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZW:
		return "lzw"
	case CompressionJPEG:
		return "jpeg"
	case CompressionDeflate, CompressionLegacyDeflate:
		return "deflate"
	case CompressionPackBits:
		return "packbits"
	case CompressionPNG:
		return "png"
	}
	return "unknown"
}

// ParseCompression maps the writer CLI codec names onto compression codes.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "raw":
		return CompressionNone, nil
	case "lzw":
		return CompressionLZW, nil
	case "jpg", "jpeg":
		return CompressionJPEG, nil
	case "zip", "deflate":
		return CompressionDeflate, nil
	case "png":
		return CompressionPNG, nil
	case "pkb", "packbits":
		return CompressionPackBits, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// Format is the pixel format of every tile of a slab.
type Format struct {
	SampleFormat  SampleFormat
	BitsPerSample int
	Channels      int
	Photometric   Photometric
	Compression   Compression
}

// PixelSize returns the raw size of one pixel in bytes.
func (f Format) PixelSize() int {
	return f.BitsPerSample * f.Channels / 8
}

// Supported reports whether the sample type combination can be decoded.
func (f Format) Supported() bool {
	switch {
	case f.SampleFormat == SampleUInt && (f.BitsPerSample == 8 || f.BitsPerSample == 16):
		return true
	case f.SampleFormat == SampleFloat && f.BitsPerSample == 32:
		return true
	}
	return false
}

func (f Format) String() string {
	return fmt.Sprintf("%s, %dx %s%d", f.Compression, f.Channels, f.SampleFormat, f.BitsPerSample)
}
