package slab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"

	"github.com/klauspost/compress/zlib"
)

// pngSignature is the 8-byte magic that tells PNG tiles apart from plain
// deflate tiles under the same header compression code.
var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

var pngIEND = []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}

// hasPNGSignature reports whether a tile payload is a PNG stream.
func hasPNGSignature(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// encodePNGTile wraps one raw 8-bit tile into a minimal PNG stream: IHDR,
// one IDAT holding the zlib-compressed scanlines (each prefixed with the
// "none" filter byte), IEND.
func encodePNGTile(raw []byte, tileWidth, tileHeight, channels, lineSize int) ([]byte, error) {
	var colorType byte
	switch channels {
	case 1:
		colorType = 0 // gray
	case 2:
		colorType = 4 // gray + alpha
	case 3:
		colorType = 2 // rgb
	case 4:
		colorType = 6 // rgba
	default:
		return nil, fmt.Errorf("png: unsupported channel count %d", channels)
	}

	var out bytes.Buffer
	out.Write(pngSignature)

	// IHDR
	var ihdr [25]byte
	binary.BigEndian.PutUint32(ihdr[0:], 13)
	copy(ihdr[4:], "IHDR")
	binary.BigEndian.PutUint32(ihdr[8:], uint32(tileWidth))
	binary.BigEndian.PutUint32(ihdr[12:], uint32(tileHeight))
	ihdr[16] = 8 // bit depth
	ihdr[17] = colorType
	binary.BigEndian.PutUint32(ihdr[21:], crc32.ChecksumIEEE(ihdr[4:21]))
	out.Write(ihdr[:])

	// IDAT: filter byte 0 before each line, then one zlib stream.
	var filtered bytes.Buffer
	filtered.Grow(tileHeight * (lineSize + 1))
	for l := 0; l < tileHeight; l++ {
		filtered.WriteByte(0)
		filtered.Write(raw[l*lineSize : (l+1)*lineSize])
	}

	var compressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&compressed, 5)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(filtered.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	var chunkHead [8]byte
	binary.BigEndian.PutUint32(chunkHead[0:], uint32(compressed.Len()))
	copy(chunkHead[4:], "IDAT")
	out.Write(chunkHead[:])
	out.Write(compressed.Bytes())

	crc := crc32.NewIEEE()
	crc.Write(chunkHead[4:])
	crc.Write(compressed.Bytes())
	var crcBytes [4]byte
	binary.BigEndian.PutUint32(crcBytes[:], crc.Sum32())
	out.Write(crcBytes[:])

	out.Write(pngIEND)
	return out.Bytes(), nil
}

// decodePNGTile expands a PNG tile into channels-interleaved raw samples.
func decodePNGTile(data []byte, channels int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("png tile: %w", err)
	}
	return imageToRaw(img, channels)
}

// imageToRaw flattens a decoded image into interleaved 8-bit samples with
// the requested channel count.
func imageToRaw(img image.Image, channels int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*channels)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			if channels == 1 {
				copy(out[y*w:], row)
				continue
			}
			for x, v := range row {
				fillPixel(out[(y*w+x)*channels:], channels, v, v, v, 255)
			}
		}
		return out, nil
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := src.Pix[y*src.Stride+x*4:]
				fillPixel(out[(y*w+x)*channels:], channels, p[0], p[1], p[2], p[3])
			}
		}
		return out, nil
	case *image.RGBA:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := src.Pix[y*src.Stride+x*4:]
				fillPixel(out[(y*w+x)*channels:], channels, p[0], p[1], p[2], p[3])
			}
		}
		return out, nil
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			fillPixel(out[(y*w+x)*channels:], channels, byte(r>>8), byte(g>>8), byte(bb>>8), byte(a>>8))
		}
	}
	return out, nil
}

func fillPixel(dst []byte, channels int, r, g, b, a byte) {
	switch channels {
	case 1:
		dst[0] = r
	case 2:
		dst[0] = r
		dst[1] = a
	case 3:
		dst[0] = r
		dst[1] = g
		dst[2] = b
	case 4:
		dst[0] = r
		dst[1] = g
		dst[2] = b
		dst[3] = a
	}
}
