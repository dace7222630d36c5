package slab

import "encoding/binary"

// TIFFEnvelope builds the minimal single-strip TIFF header that turns one
// encoded tile payload into a standalone TIFF file. Raw, LZW, deflate and
// packbits tiles need it on the serving path; JPEG and PNG tiles are
// already self-describing.
func TIFFEnvelope(f Format, width, height, payloadSize int) []byte {
	le := binary.LittleEndian

	entries := 9
	if f.SampleFormat == SampleFloat {
		entries++
	}

	// Header, IFD count, entries, next-IFD pointer, then the
	// bits-per-sample array when it does not fit inline.
	ifdEnd := 8 + 2 + entries*12 + 4
	extra := 0
	if f.Channels > 2 {
		extra = 2 * f.Channels
	}
	headerSize := ifdEnd + extra

	hdr := make([]byte, headerSize)
	le.PutUint16(hdr[0:], 0x4949)
	le.PutUint16(hdr[2:], 42)
	le.PutUint32(hdr[4:], 8)
	le.PutUint16(hdr[8:], uint16(entries))

	p := 10
	tag := func(id, typ uint16, count, value uint32) {
		le.PutUint16(hdr[p:], id)
		le.PutUint16(hdr[p+2:], typ)
		le.PutUint32(hdr[p+4:], count)
		le.PutUint32(hdr[p+8:], value)
		p += 12
	}
	tagPair16 := func(id uint16, count uint32, a, b uint16) {
		le.PutUint16(hdr[p:], id)
		le.PutUint16(hdr[p+2:], typeShort)
		le.PutUint32(hdr[p+4:], count)
		le.PutUint16(hdr[p+8:], a)
		le.PutUint16(hdr[p+10:], b)
		p += 12
	}

	tag(tagImageWidth, typeLong, 1, uint32(width))
	tag(tagImageLength, typeLong, 1, uint32(height))
	switch {
	case f.Channels == 1:
		tag(tagBitsPerSample, typeShort, 1, uint32(f.BitsPerSample))
	case f.Channels == 2:
		tagPair16(tagBitsPerSample, 2, uint16(f.BitsPerSample), uint16(f.BitsPerSample))
	default:
		tag(tagBitsPerSample, typeShort, uint32(f.Channels), uint32(ifdEnd))
	}
	tag(tagCompression, typeShort, 1, headerCompressionCode(f.Compression))
	tag(tagPhotometric, typeShort, 1, uint32(f.Photometric))
	tag(273, typeLong, 1, uint32(headerSize)) // strip offsets
	tag(tagSamplesPerPixel, typeShort, 1, uint32(f.Channels))
	tag(278, typeLong, 1, uint32(height)) // rows per strip
	tag(279, typeLong, 1, uint32(payloadSize))
	if f.SampleFormat == SampleFloat {
		tag(tagSampleFormat, typeShort, 1, uint32(f.SampleFormat))
	}
	le.PutUint32(hdr[p:], 0)
	p += 4

	if f.Channels > 2 {
		for i := 0; i < f.Channels; i++ {
			le.PutUint16(hdr[p+2*i:], uint16(f.BitsPerSample))
		}
	}
	return hdr
}

// NeedsEnvelope reports whether a compression's tiles must be wrapped to
// be consumed standalone.
func NeedsEnvelope(c Compression) bool {
	switch c {
	case CompressionNone, CompressionLZW, CompressionDeflate, CompressionPackBits:
		return true
	}
	return false
}
