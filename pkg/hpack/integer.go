package hpack

import (
	"bytes"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// appendInt encodes v as an HPACK integer with an N-bit prefix (N in
// 1..8), OR-ing the high 8-N bits of the first byte onto flags. §4.4.
func appendInt(buf *bytes.Buffer, flags byte, n uint, v uint64) {
	max := uint64(1)<<n - 1
	if v < max {
		buf.WriteByte(flags | byte(v))
		return
	}
	buf.WriteByte(flags | byte(max))
	v -= max
	for v >= 128 {
		buf.WriteByte(byte(v%128) | 0x80)
		v /= 128
	}
	buf.WriteByte(byte(v))
}

// readInt decodes an HPACK integer with an N-bit prefix starting at p[0],
// returning the value and the number of bytes consumed. The decoder
// rejects integers whose accumulated shift would overflow a 64-bit
// accumulator (§4.4 "decoder rejects when the accumulated shift exceeds
// pointer width").
func readInt(p []byte, n uint) (uint64, int, error) {
	if len(p) == 0 {
		return 0, 0, rawerrors.NewCompressionError("integer", "truncated input", nil)
	}
	max := uint64(1)<<n - 1
	v := uint64(p[0]) & max
	if v < max {
		return v, 1, nil
	}
	var m uint
	i := 1
	for {
		if i >= len(p) {
			return 0, 0, rawerrors.NewCompressionError("integer", "truncated input", nil)
		}
		b := p[i]
		if m >= 63 {
			return 0, 0, rawerrors.NewCompressionError("integer", "integer too large", nil)
		}
		v += uint64(b&0x7f) << m
		i++
		if b&0x80 == 0 {
			return v, i, nil
		}
		m += 7
	}
}
