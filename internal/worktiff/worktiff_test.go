package worktiff

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/rok4/pyramid/internal/raster"
	"github.com/rok4/pyramid/internal/slab"
)

func testFormat(channels, bits int, sf slab.SampleFormat) slab.Format {
	ph := slab.PhotometricGray
	if channels >= 3 {
		ph = slab.PhotometricRGB
	}
	return slab.Format{
		SampleFormat:  sf,
		BitsPerSample: bits,
		Channels:      channels,
		Photometric:   ph,
		Compression:   slab.CompressionNone,
	}
}

func randomImage(t *testing.T, w, h int, f slab.Format) *File {
	t.Helper()
	var kind raster.SampleKind
	switch {
	case f.SampleFormat == slab.SampleFloat:
		kind = raster.SampleF32
	case f.BitsPerSample == 16:
		kind = raster.SampleU16
	default:
		kind = raster.SampleU8
	}
	img := raster.NewMemoryImage(w, h, f.Channels, kind, raster.BBox{Xmax: float64(w), Ymax: float64(h)})
	rng := rand.New(rand.NewSource(7))
	for i := range img.Raw() {
		img.Raw()[i] = byte(rng.Intn(256))
	}
	return &File{Format: f, Image: img}
}

func TestWriteReadRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		format      slab.Format
		compression slab.Compression
	}{
		{"gray8-none", testFormat(1, 8, slab.SampleUInt), slab.CompressionNone},
		{"gray8-deflate", testFormat(1, 8, slab.SampleUInt), slab.CompressionDeflate},
		{"rgb8-lzw", testFormat(3, 8, slab.SampleUInt), slab.CompressionLZW},
		{"rgb8-packbits", testFormat(3, 8, slab.SampleUInt), slab.CompressionPackBits},
		{"gray16-none", testFormat(1, 16, slab.SampleUInt), slab.CompressionNone},
		{"float32-deflate", testFormat(1, 32, slab.SampleFloat), slab.CompressionDeflate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "work.tif")
			src := randomImage(t, 40, 24, tc.format)

			if err := Write(path, src, tc.compression); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}

			if got.Format.Channels != tc.format.Channels ||
				got.Format.BitsPerSample != tc.format.BitsPerSample ||
				got.Format.SampleFormat != tc.format.SampleFormat {
				t.Fatalf("format after round trip = %+v, want %+v", got.Format, tc.format)
			}
			if got.Image.Width() != 40 || got.Image.Height() != 24 {
				t.Fatalf("image is %dx%d", got.Image.Width(), got.Image.Height())
			}
			if !bytes.Equal(got.Image.Raw(), src.Image.Raw()) {
				t.Error("pixels differ after round trip")
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a tiff at all")); err == nil {
		t.Error("garbage must be rejected")
	}
	if _, err := Decode([]byte{'I', 'I', 43, 0, 8, 0, 0, 0}); err == nil {
		t.Error("a BigTIFF magic must be rejected")
	}
}
