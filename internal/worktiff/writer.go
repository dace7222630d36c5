package worktiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"os"

	"golang.org/x/image/tiff"

	"github.com/rok4/pyramid/internal/raster"
	"github.com/rok4/pyramid/internal/slab"
)

// Write stores a work image as an untiled TIFF with the requested
// compression. Single-channel 8-bit images with the stock compressions go
// through the standard TIFF encoder; every other layout (multi-band,
// 16-bit, float32, LZW, packbits) uses the native strip writer, which the
// standard encoder does not cover.
func Write(path string, file *File, compression slab.Compression) error {
	img := file.Image

	if img.Kind() == raster.SampleU8 && file.Format.Channels == 1 &&
		(compression == slab.CompressionNone || compression == slab.CompressionDeflate) {
		return writeStandard(path, img, compression)
	}
	return writeNative(path, file, compression)
}

func writeStandard(path string, img *raster.MemoryImage, compression slab.Compression) error {
	gray := image.NewGray(image.Rect(0, 0, img.Width(), img.Height()))
	copy(gray.Pix, img.Raw())

	opts := &tiff.Options{Compression: tiff.Uncompressed}
	if compression == slab.CompressionDeflate {
		opts.Compression = tiff.Deflate
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := tiff.Encode(f, gray, opts); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// writeNative emits a little-endian classic TIFF with one strip per
// image, compressed with the slab codecs.
func writeNative(path string, file *File, compression slab.Compression) error {
	img := file.Image
	f := file.Format

	w, h := img.Width(), img.Height()
	pixelSize := f.PixelSize()
	lineSize := w * pixelSize
	raw := img.Raw()

	var strip []byte
	var compCode uint16
	switch compression {
	case slab.CompressionNone:
		strip = raw
		compCode = 1
	case slab.CompressionLZW:
		strip = slab.EncodeLZW(raw)
		compCode = 5
	case slab.CompressionDeflate:
		var err error
		strip, err = slab.Deflate(raw)
		if err != nil {
			return err
		}
		compCode = 8
	case slab.CompressionPackBits:
		var buf bytes.Buffer
		for l := 0; l < h; l++ {
			buf.Write(slab.EncodePackBitsLine(raw[l*lineSize : (l+1)*lineSize]))
		}
		strip = buf.Bytes()
		compCode = 32773
	default:
		return fmt.Errorf("worktiff: compression %s not supported for work files", compression)
	}

	const entries = 10
	le := binary.LittleEndian

	// Layout: 8-byte header, IFD, bits-per-sample array, strip data.
	ifdSize := 2 + entries*12 + 4
	bpsOffset := 8 + ifdSize
	bpsSize := 0
	if f.Channels > 2 {
		bpsSize = 2 * f.Channels
	}
	dataOffset := bpsOffset + bpsSize

	out := make([]byte, dataOffset, dataOffset+len(strip))
	le.PutUint16(out[0:], 0x4949)
	le.PutUint16(out[2:], 42)
	le.PutUint32(out[4:], 8)
	le.PutUint16(out[8:], entries)

	p := 10
	tag := func(id, typ uint16, count, value uint32) {
		le.PutUint16(out[p:], id)
		le.PutUint16(out[p+2:], typ)
		le.PutUint32(out[p+4:], count)
		le.PutUint32(out[p+8:], value)
		p += 12
	}

	tag(tagImageWidth, typeLong, 1, uint32(w))
	tag(tagImageLength, typeLong, 1, uint32(h))
	switch {
	case f.Channels <= 2:
		tag(tagBitsPerSample, typeShort, 1, uint32(f.BitsPerSample))
	default:
		tag(tagBitsPerSample, typeShort, uint32(f.Channels), uint32(bpsOffset))
	}
	tag(tagCompression, typeShort, 1, uint32(compCode))
	tag(tagPhotometric, typeShort, 1, uint32(f.Photometric))
	tag(tagStripOffsets, typeLong, 1, uint32(dataOffset))
	tag(tagSamplesPerPixel, typeShort, 1, uint32(f.Channels))
	tag(tagRowsPerStrip, typeLong, 1, uint32(h))
	tag(tagStripByteCounts, typeLong, 1, uint32(len(strip)))
	tag(tagSampleFormat, typeShort, 1, uint32(f.SampleFormat))
	le.PutUint32(out[p:], 0)

	if bpsSize > 0 {
		for i := 0; i < f.Channels; i++ {
			le.PutUint16(out[bpsOffset+2*i:], uint16(f.BitsPerSample))
		}
	}

	out = append(out, strip...)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
