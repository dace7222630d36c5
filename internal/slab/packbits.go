package slab

import "fmt"

// PackBits run-length coding. Slab tiles are encoded one scanline at a
// time and the per-line streams concatenated; decoding does not need the
// line boundaries and runs over the whole payload.

// packBitsDecode expands a PackBits stream into dst, which must be sized
// to the expected raw length. Returns the number of bytes produced.
func packBitsDecode(src, dst []byte) (int, error) {
	si, di := 0, 0
	for si < len(src) {
		header := int8(src[si])
		si++
		switch {
		case header >= 0:
			n := int(header) + 1
			if si+n > len(src) || di+n > len(dst) {
				return 0, fmt.Errorf("packbits: truncated literal run at byte %d", si)
			}
			copy(dst[di:di+n], src[si:si+n])
			si += n
			di += n
		case header == -128:
			// no-op
		default:
			n := 1 - int(header)
			if si >= len(src) || di+n > len(dst) {
				return 0, fmt.Errorf("packbits: truncated repeat run at byte %d", si)
			}
			b := src[si]
			si++
			for i := 0; i < n; i++ {
				dst[di] = b
				di++
			}
		}
	}
	return di, nil
}

// packBitsEncodeLine compresses one scanline.
func packBitsEncodeLine(line []byte) []byte {
	out := make([]byte, 0, len(line)+len(line)/128+1)
	i := 0
	for i < len(line) {
		// Measure the run starting here.
		run := 1
		for i+run < len(line) && run < 128 && line[i+run] == line[i] {
			run++
		}
		if run > 1 {
			out = append(out, byte(int8(1-run)), line[i])
			i += run
			continue
		}

		// Literal stretch: stop at 128 bytes or before a run of 3.
		lit := 1
		for i+lit < len(line) && lit < 128 {
			if i+lit+2 < len(line) &&
				line[i+lit] == line[i+lit+1] && line[i+lit] == line[i+lit+2] {
				break
			}
			lit++
		}
		out = append(out, byte(int8(lit-1)))
		out = append(out, line[i:i+lit]...)
		i += lit
	}
	return out
}
