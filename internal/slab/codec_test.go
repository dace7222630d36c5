package slab

import (
	"bytes"
	"math/rand"
	"testing"
)

func patternData(n int) []byte {
	// Mix of runs and noise so both RLE and dictionary coders get
	// exercised on realistic content.
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, n)
	i := 0
	for i < n {
		if rng.Intn(2) == 0 {
			run := 1 + rng.Intn(200)
			b := byte(rng.Intn(256))
			for j := 0; j < run && i < n; j++ {
				data[i] = b
				i++
			}
		} else {
			lit := 1 + rng.Intn(50)
			for j := 0; j < lit && i < n; j++ {
				data[i] = byte(rng.Intn(256))
				i++
			}
		}
	}
	return data
}

func TestLZWRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 2, 255, 256, 4096, 65536, 256 * 256 * 3} {
		data := patternData(size)
		decoded, err := lzwDecode(lzwEncode(data))
		if err != nil {
			t.Fatalf("size %d: decode: %v", size, err)
		}
		if size == 0 {
			if len(decoded) != 0 {
				t.Fatalf("size 0: got %d bytes", len(decoded))
			}
			continue
		}
		if !bytes.Equal(decoded, data) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
	}
}

func TestLZWRoundTripLong(t *testing.T) {
	// Long enough to cross every code width and force a table reset.
	data := patternData(1 << 20)
	decoded, err := lzwDecode(lzwEncode(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatal("round trip mismatch on 1 MiB input")
	}
}

func TestLZWRejectsGarbage(t *testing.T) {
	if _, err := lzwDecode([]byte{0x00, 0x01, 0x02, 0x03}); err == nil {
		t.Error("decoding garbage should fail: the stream cannot start with a literal")
	}
}

func TestPackBitsRoundTrip(t *testing.T) {
	lines := [][]byte{
		bytes.Repeat([]byte{7}, 300),
		patternData(768),
		{42},
		append(bytes.Repeat([]byte{1}, 128), patternData(64)...),
	}
	for i, line := range lines {
		enc := packBitsEncodeLine(line)
		dst := make([]byte, len(line))
		n, err := packBitsDecode(enc, dst)
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if n != len(line) || !bytes.Equal(dst[:n], line) {
			t.Fatalf("line %d: round trip mismatch", i)
		}
	}
}

func TestPackBitsConcatenatedLines(t *testing.T) {
	// Slab tiles store packbits per scanline, concatenated; the decoder
	// must run through the stream without knowing the boundaries.
	lineSize := 256 * 3
	raw := patternData(lineSize * 8)
	var enc []byte
	for l := 0; l < 8; l++ {
		enc = append(enc, packBitsEncodeLine(raw[l*lineSize:(l+1)*lineSize])...)
	}
	dst := make([]byte, len(raw))
	n, err := packBitsDecode(enc, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(raw) || !bytes.Equal(dst, raw) {
		t.Fatal("concatenated round trip mismatch")
	}
}

func TestPNGTileRoundTrip(t *testing.T) {
	const w, h, channels = 64, 64, 3
	raw := patternData(w * h * channels)

	enc, err := encodePNGTile(raw, w, h, channels, w*channels)
	if err != nil {
		t.Fatal(err)
	}
	if !hasPNGSignature(enc) {
		t.Fatal("encoded tile lacks the PNG signature")
	}

	f := Format{SampleFormat: SampleUInt, BitsPerSample: 8, Channels: channels, Compression: CompressionDeflate}
	decoded, err := DecodeTile(f, enc, len(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatal("png round trip mismatch")
	}
}

func TestDeflateTileRoundTrip(t *testing.T) {
	raw := patternData(256 * 256)
	enc, err := deflateTile(raw)
	if err != nil {
		t.Fatal(err)
	}
	f := Format{SampleFormat: SampleUInt, BitsPerSample: 8, Channels: 1, Compression: CompressionDeflate}
	decoded, err := DecodeTile(f, enc, len(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatal("deflate round trip mismatch")
	}
}
