package slab

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// DecodeTile expands an encoded tile payload into rawSize bytes of
// channels-interleaved samples. A deflate-coded tile carrying the PNG
// signature dispatches to the PNG decoder, which is how PNG slabs are laid
// out. Decoders are pure: on failure the caller substitutes nodata.
func DecodeTile(f Format, encoded []byte, rawSize int) ([]byte, error) {
	var (
		raw []byte
		err error
	)

	switch f.Compression {
	case CompressionNone:
		raw = make([]byte, len(encoded))
		copy(raw, encoded)

	case CompressionLZW:
		raw, err = lzwDecode(encoded)

	case CompressionPackBits:
		raw = make([]byte, rawSize)
		var n int
		n, err = packBitsDecode(encoded, raw)
		if err == nil {
			raw = raw[:n]
		}

	case CompressionDeflate, CompressionPNG:
		if hasPNGSignature(encoded) {
			raw, err = decodePNGTile(encoded, f.Channels)
		} else {
			raw, err = inflate(encoded)
		}

	case CompressionJPEG:
		raw, err = decodeJPEGTile(encoded, f.Channels)

	default:
		return nil, fmt.Errorf("slab: unhandled compression %d", f.Compression)
	}

	if err != nil {
		return nil, err
	}
	if len(raw) != rawSize {
		// Keep going with what the codec produced: one odd tile is not
		// worth failing the whole window.
		slog.Warn("decoded tile size mismatch", "got", len(raw), "want", rawSize)
	}
	return raw, nil
}

// inflate expands a deflate tile. The payload normally carries a zlib
// header; some writers emit raw deflate, so that is tried second.
func inflate(data []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		defer zr.Close()
		if out, err := io.ReadAll(zr); err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("deflate tile: %w", err)
	}
	return out, nil
}

// deflateTile compresses one raw tile as a zlib stream.
func deflateTile(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, 6)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// EncodeLZW compresses a raw buffer with the TIFF LZW variant. The work
// image writer shares the slab codec so both containers stay coherent.
func EncodeLZW(raw []byte) []byte { return lzwEncode(raw) }

// EncodePackBitsLine compresses one scanline with PackBits.
func EncodePackBitsLine(line []byte) []byte { return packBitsEncodeLine(line) }

// Deflate compresses a raw buffer as a zlib stream.
func Deflate(raw []byte) ([]byte, error) { return deflateTile(raw) }

// decodeJPEGTile expands a baseline JPEG tile into interleaved samples,
// with the chroma subsampling resolved by the decoder.
func decodeJPEGTile(data []byte, channels int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg tile: %w", err)
	}
	return imageToRaw(img, channels)
}
