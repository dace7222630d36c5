package slab

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rok4/pyramid/internal/storage"
)

func testContext(t *testing.T) *storage.FileContext {
	t.Helper()
	c := storage.NewFileContext(t.TempDir())
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	return c
}

func rgbFormat(c Compression) Format {
	return Format{
		SampleFormat:  SampleUInt,
		BitsPerSample: 8,
		Channels:      3,
		Photometric:   PhotometricRGB,
		Compression:   c,
	}
}

// solidTile builds a raw tile filled with one pixel value.
func solidTile(w, h int, pixel []byte) []byte {
	raw := make([]byte, w*h*len(pixel))
	for i := 0; i < w*h; i++ {
		copy(raw[i*len(pixel):], pixel)
	}
	return raw
}

func writeTestSlab(t *testing.T, ctx *storage.FileContext, name string, h Header, tiles [][]byte) {
	t.Helper()
	w, err := NewWriter(ctx, name, h)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	for i, tile := range tiles {
		if err := w.WriteTile(i, tile, false); err != nil {
			t.Fatalf("tile %d: %v", i, err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteReadSingleTileSlab(t *testing.T) {
	ctx := testContext(t)
	h := Header{Width: 256, Height: 256, TileWidth: 256, TileHeight: 256, Format: rgbFormat(CompressionNone)}
	green := solidTile(256, 256, []byte{0, 255, 0})

	writeTestSlab(t, ctx, "green.tif", h, [][]byte{green})

	r, err := NewReader(ctx, "green.tif")
	if err != nil {
		t.Fatal(err)
	}
	if r.Width != 256 || r.Height != 256 || r.TileWidth != 256 || r.TileHeight != 256 {
		t.Fatalf("header = %+v", r.Header)
	}
	if r.Format.Channels != 3 || r.Format.BitsPerSample != 8 || r.Format.SampleFormat != SampleUInt {
		t.Fatalf("format = %+v", r.Format)
	}

	raw, err := r.RawTile(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 256*256*3 {
		t.Fatalf("raw tile is %d bytes, want %d", len(raw), 256*256*3)
	}
	if !bytes.Equal(raw, green) {
		t.Error("tile (0,0) pixels differ from the written all-green tile")
	}
}

func TestWriteReadRoundTripPerCompression(t *testing.T) {
	// Lossless compressions must reproduce byte-identical raw pixels
	// right after writing.
	for _, comp := range []Compression{CompressionNone, CompressionLZW, CompressionDeflate, CompressionPackBits, CompressionPNG} {
		t.Run(comp.String(), func(t *testing.T) {
			ctx := testContext(t)
			h := Header{Width: 128, Height: 64, TileWidth: 64, TileHeight: 32, Format: rgbFormat(comp)}

			tiles := make([][]byte, h.TilesNumber())
			for i := range tiles {
				tiles[i] = patternData(64 * 32 * 3)
			}
			writeTestSlab(t, ctx, "slab.tif", h, tiles)

			r, err := NewReader(ctx, "slab.tif")
			if err != nil {
				t.Fatal(err)
			}
			for i := range tiles {
				raw, err := r.RawTile(i)
				if err != nil {
					t.Fatalf("tile %d: %v", i, err)
				}
				if !bytes.Equal(raw, tiles[i]) {
					t.Errorf("tile %d: raw pixels differ after %s round trip", i, comp)
				}
			}
		})
	}
}

func TestEncodedTilesAreAligned(t *testing.T) {
	ctx := testContext(t)
	h := Header{Width: 128, Height: 128, TileWidth: 64, TileHeight: 64, Format: rgbFormat(CompressionLZW)}
	tiles := make([][]byte, 4)
	for i := range tiles {
		tiles[i] = patternData(64 * 64 * 3)
	}
	writeTestSlab(t, ctx, "aligned.tif", h, tiles)

	r, err := NewReader(ctx, "aligned.tif")
	if err != nil {
		t.Fatal(err)
	}
	for i := range tiles {
		if off := r.offsets[i]; off%16 != 0 {
			t.Errorf("tile %d starts at offset %d, not 16-byte aligned", i, off)
		}
	}
}

func TestScanlineAssembly(t *testing.T) {
	ctx := testContext(t)
	h := Header{Width: 8, Height: 4, TileWidth: 4, TileHeight: 2, Format: Format{
		SampleFormat: SampleUInt, BitsPerSample: 8, Channels: 1,
		Photometric: PhotometricGray, Compression: CompressionNone,
	}}

	// Tile (col,row) filled with value 10*row+col.
	tiles := [][]byte{
		solidTile(4, 2, []byte{0}), solidTile(4, 2, []byte{1}),
		solidTile(4, 2, []byte{10}), solidTile(4, 2, []byte{11}),
	}
	writeTestSlab(t, ctx, "grid.tif", h, tiles)

	r, err := NewReader(ctx, "grid.tif")
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 8)
	for line := 0; line < 4; line++ {
		if _, err := r.ReadLine(buf, line); err != nil {
			t.Fatal(err)
		}
		rowBase := byte(0)
		if line >= 2 {
			rowBase = 10
		}
		want := append(bytes.Repeat([]byte{rowBase}, 4), bytes.Repeat([]byte{rowBase + 1}, 4)...)
		if !bytes.Equal(buf, want) {
			t.Errorf("line %d = %v, want %v", line, buf, want)
		}
	}
}

func TestSymbolicSlab(t *testing.T) {
	ctx := testContext(t)
	h := Header{Width: 64, Height: 64, TileWidth: 32, TileHeight: 32, Format: rgbFormat(CompressionNone)}
	tiles := make([][]byte, 4)
	for i := range tiles {
		tiles[i] = patternData(32 * 32 * 3)
	}
	writeTestSlab(t, ctx, "target.tif", h, tiles)

	// Slab A is a pure redirection to slab B.
	if err := ctx.OpenToWrite("link.tif"); err != nil {
		t.Fatal(err)
	}
	if err := ctx.WriteFull([]byte(SymlinkSignature+"target.tif"), "link.tif"); err != nil {
		t.Fatal(err)
	}
	if err := ctx.CloseToWrite("link.tif"); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(ctx, "link.tif")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "target.tif" {
		t.Errorf("resolved name = %q, want %q", r.Name, "target.tif")
	}
	if r.OriginalName != "link.tif" {
		t.Errorf("original name = %q, want %q", r.OriginalName, "link.tif")
	}

	// Indirection is transparent: every tile of A is B's tile.
	direct, err := NewReader(ctx, "target.tif")
	if err != nil {
		t.Fatal(err)
	}
	for i := range tiles {
		viaLink, err := r.EncodedTile(i)
		if err != nil {
			t.Fatal(err)
		}
		viaTarget, err := direct.EncodedTile(i)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(viaLink, viaTarget) {
			t.Errorf("tile %d differs between link and target", i)
		}
		if bytes.Contains(viaLink, []byte("link.tif")) {
			t.Errorf("tile %d leaks the symbolic name into its bytes", i)
		}
	}

	// TileAt follows the same indirection.
	got, err := TileAt(ctx, "link.tif", 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := direct.EncodedTile(2)
	if !bytes.Equal(got, want) {
		t.Error("TileAt through the link differs from the target tile")
	}
}

func TestSymbolicSlabLoop(t *testing.T) {
	ctx := testContext(t)
	for _, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
		if err := ctx.OpenToWrite(pair[0]); err != nil {
			t.Fatal(err)
		}
		ctx.WriteFull([]byte(SymlinkSignature+pair[1]), pair[0])
		ctx.CloseToWrite(pair[0])
	}

	_, err := NewReader(ctx, "a")
	if !errors.Is(err, ErrSymlinkLoop) {
		t.Errorf("err = %v, want ErrSymlinkLoop", err)
	}
}

func TestShortSlabWithoutSignatureIsFatal(t *testing.T) {
	ctx := testContext(t)
	if err := ctx.OpenToWrite("stub"); err != nil {
		t.Fatal(err)
	}
	ctx.WriteFull([]byte("too short to be a slab"), "stub")
	ctx.CloseToWrite("stub")

	_, err := NewReader(ctx, "stub")
	if !errors.Is(err, ErrBadSlab) {
		t.Errorf("err = %v, want ErrBadSlab", err)
	}
}

func TestCropWhiteBlocks(t *testing.T) {
	ctx := testContext(t)
	h := Header{Width: 64, Height: 64, TileWidth: 64, TileHeight: 64, Format: rgbFormat(CompressionJPEG)}

	// Gray tile with one pure-white pixel inside the block at (16,16).
	raw := solidTile(64, 64, []byte{128, 128, 128})
	idx := (20*64 + 19) * 3
	raw[idx], raw[idx+1], raw[idx+2] = 255, 255, 255

	w, err := NewWriter(ctx, "crop.tif", h)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTile(0, raw, true); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(ctx, "crop.tif")
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := r.RawTile(0)
	if err != nil {
		t.Fatal(err)
	}

	// The whole 16x16 block containing the white pixel must come back
	// pure white, JPEG being exact on uniform white blocks.
	for y := 16; y < 32; y++ {
		for x := 16; x < 32; x++ {
			p := decoded[(y*64+x)*3:]
			if p[0] != 255 || p[1] != 255 || p[2] != 255 {
				t.Fatalf("pixel (%d,%d) = %v, want pure white", x, y, p[:3])
			}
		}
	}
	// A block without white pixels keeps its content.
	p := decoded[(8*64+8)*3:]
	if p[0] > 140 || p[0] < 116 {
		t.Errorf("untouched block pixel = %v, want ~128", p[:3])
	}
}

func TestTIFFEnvelope(t *testing.T) {
	f := rgbFormat(CompressionLZW)
	env := TIFFEnvelope(f, 256, 256, 1000)

	if env[0] != 0x49 || env[1] != 0x49 {
		t.Fatal("envelope is not little-endian TIFF")
	}
	if !NeedsEnvelope(CompressionLZW) || NeedsEnvelope(CompressionJPEG) {
		t.Error("envelope requirement wrong for lzw/jpeg")
	}
	// The payload must directly follow the header.
	if len(env)%2 != 0 {
		t.Errorf("envelope length %d is odd", len(env))
	}
}
