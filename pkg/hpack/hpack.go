// Package hpack implements RFC 7541 header compression: the static table,
// a per-connection dynamic table, integer coding, Huffman coding, and the
// header-block instruction set. It is written from scratch rather than
// delegating to golang.org/x/net/http2/hpack because HPACK is named as
// core scope to implement directly (see DESIGN.md).
package hpack

import (
	"bytes"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// Instruction prefix patterns (§4.4), matched against the top bits of the
// first byte of a header-block instruction.
const (
	prefixIndexed               = 0x80 // 1xxxxxxx, 7-bit index
	prefixIncrementalIndexing   = 0x40 // 01xxxxxx, 6-bit name index
	prefixDynamicTableSizeUpate = 0x20 // 001xxxxx, 5-bit new max size
	prefixNeverIndexed          = 0x10 // 0001xxxx, 4-bit name index
	prefixWithoutIndexing       = 0x00 // 0000xxxx, 4-bit name index
)

// Encoder encodes header fields into an HPACK header block, maintaining
// its own outbound dynamic table across calls.
type Encoder struct {
	dynTab  *dynamicTable
	maxSize int
}

// NewEncoder creates an encoder with the given initial dynamic table size
// (SETTINGS_HEADER_TABLE_SIZE as announced by the peer).
func NewEncoder(maxTableSize int) *Encoder {
	return &Encoder{dynTab: newDynamicTable(maxTableSize), maxSize: maxTableSize}
}

// SetMaxDynamicTableSize changes the outbound table's capacity and appends
// a dynamic-table-size-update instruction to buf immediately. The
// teacher's Converter calls this SetMaxDynamicTableSize; kept identically
// named so callers familiar with that API need no retraining.
func (e *Encoder) SetMaxDynamicTableSize(buf *bytes.Buffer, max int) {
	e.maxSize = max
	e.dynTab.setMaxSize(max)
	appendInt(buf, prefixDynamicTableSizeUpate, 5, uint64(max))
}

// WriteField appends the encoding of f to buf, choosing indexed,
// incrementally-indexed-literal, or plain-literal representation per the
// encoder lookup policy in §4.4: full match first, then name-only match,
// then literal name.
func (e *Encoder) WriteField(buf *bytes.Buffer, f HeaderField) {
	if f.Sensitive {
		e.writeLiteral(buf, f, prefixNeverIndexed, 4, false)
		return
	}
	if idx, ok := staticFullIndex[f.Name+"\x00"+f.Value]; ok {
		appendInt(buf, prefixIndexed, 7, uint64(idx))
		return
	}
	if idx, ok := e.dynTab.findFull(f.Name, f.Value); ok {
		appendInt(buf, prefixIndexed, 7, uint64(staticTableSize+idx))
		return
	}
	// Name-only match, static table first then dynamic.
	if idx, ok := staticNameIndex[f.Name]; ok {
		e.writeLiteralWithNameIndex(buf, f, idx)
		return
	}
	if idx, ok := e.dynTab.findName(f.Name); ok {
		e.writeLiteralWithNameIndex(buf, f, staticTableSize+idx)
		return
	}
	e.writeLiteral(buf, f, prefixIncrementalIndexing, 6, true)
}

func (e *Encoder) writeLiteralWithNameIndex(buf *bytes.Buffer, f HeaderField, nameIdx int) {
	appendInt(buf, prefixIncrementalIndexing, 6, uint64(nameIdx))
	writeString(buf, f.Value)
	e.dynTab.insert(f)
}

func (e *Encoder) writeLiteral(buf *bytes.Buffer, f HeaderField, prefixFlag byte, n uint, index bool) {
	appendInt(buf, prefixFlag, n, 0) // name index 0 => literal name follows
	writeString(buf, f.Name)
	writeString(buf, f.Value)
	if index {
		e.dynTab.insert(f)
	}
}

// writeString emits an HPACK string literal, using Huffman only when it is
// strictly shorter than the plain encoding (§4.4).
func writeString(buf *bytes.Buffer, s string) {
	huffBits := huffmanEncodedLen(s)
	huffBytes := (huffBits + 7) / 8
	if huffBytes < len(s) {
		appendInt(buf, 0x80, 7, uint64(huffBytes))
		huffmanEncode(buf, s)
		return
	}
	appendInt(buf, 0x00, 7, uint64(len(s)))
	buf.WriteString(s)
}

// Decoder decodes an HPACK header block against its own inbound dynamic
// table.
type Decoder struct {
	dynTab *dynamicTable
}

// NewDecoder creates a decoder with the given initial dynamic table size.
func NewDecoder(maxTableSize int) *Decoder {
	return &Decoder{dynTab: newDynamicTable(maxTableSize)}
}

// SetMaxDynamicTableSize sets the inbound table's current capacity,
// evicting entries as needed; mirrors the teacher's decoder constructor
// taking a size hint. It does not bound later peer-sent
// dynamic-table-size-update instructions: DecodeFull accepts any new size
// up to 2^31.
func (d *Decoder) SetMaxDynamicTableSize(max int) {
	d.dynTab.setMaxSize(max)
}

// DecodeFull decodes an entire header block into an ordered slice of
// fields, preserving duplicate names (unlike the teacher's
// map[string]string shortcut, which loses repeated headers — see
// DESIGN.md). Named DecodeFull to match the call shape of the teacher's
// decoder.DecodeFull(data).
func (d *Decoder) DecodeFull(p []byte) ([]HeaderField, error) {
	var out []HeaderField
	for len(p) > 0 {
		b := p[0]
		switch {
		case b&prefixIndexed != 0:
			idx, n, err := readInt(p, 7)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			f, err := d.lookup(int(idx))
			if err != nil {
				return nil, err
			}
			out = append(out, f)

		case b&0xc0 == prefixIncrementalIndexing:
			f, n, err := d.readLiteral(p, 6)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			d.dynTab.insert(f)
			out = append(out, f)

		case b&0xe0 == prefixDynamicTableSizeUpate:
			max, n, err := readInt(p, 5)
			if err != nil {
				return nil, err
			}
			if max > 1<<31 {
				return nil, rawerrors.NewCompressionError("size-update", "requested dynamic table size too large", nil)
			}
			d.dynTab.setMaxSize(int(max))
			p = p[n:]

		case b&0xf0 == prefixNeverIndexed:
			f, n, err := d.readLiteral(p, 4)
			if err != nil {
				return nil, err
			}
			f.Sensitive = true
			p = p[n:]
			out = append(out, f)

		case b&0xf0 == prefixWithoutIndexing:
			f, n, err := d.readLiteral(p, 4)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			out = append(out, f)

		default:
			return nil, rawerrors.NewCompressionError("decode", "invalid instruction mask bits", nil)
		}
	}
	return out, nil
}

// lookup resolves a 1-based combined-address-space index: 1..61 static,
// 62.. dynamic (§3 data model).
func (d *Decoder) lookup(idx int) (HeaderField, error) {
	if idx == 0 {
		return HeaderField{}, rawerrors.NewCompressionError("index", "index 0 is reserved", nil)
	}
	if idx <= staticTableSize {
		return staticTable[idx-1], nil
	}
	f, ok := d.dynTab.get(idx - staticTableSize)
	if !ok {
		return HeaderField{}, rawerrors.NewCompressionError("index", "index not present", nil)
	}
	return f, nil
}

// readLiteral reads a literal instruction (incremental-indexing,
// without-indexing, or never-indexed share this shape) whose name index
// has an n-bit prefix; index 0 means a literal name follows.
func (d *Decoder) readLiteral(p []byte, n uint) (HeaderField, int, error) {
	idx, consumed, err := readInt(p, n)
	if err != nil {
		return HeaderField{}, 0, err
	}
	p = p[consumed:]
	var name string
	if idx == 0 {
		s, sn, err := readString(p)
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = s
		p = p[sn:]
		consumed += sn
	} else {
		f, err := d.lookup(int(idx))
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = f.Name
	}
	value, vn, err := readString(p)
	if err != nil {
		return HeaderField{}, 0, err
	}
	consumed += vn
	return HeaderField{Name: name, Value: value}, consumed, nil
}

// readString reads an HPACK string literal: 7-bit-prefix length, high bit
// of the first byte signals Huffman.
func readString(p []byte) (string, int, error) {
	if len(p) == 0 {
		return "", 0, rawerrors.NewCompressionError("string", "truncated input", nil)
	}
	huff := p[0]&0x80 != 0
	length, n, err := readInt(p, 7)
	if err != nil {
		return "", 0, err
	}
	total := n + int(length)
	if total > len(p) {
		return "", 0, rawerrors.NewCompressionError("string", "truncated input", nil)
	}
	data := p[n:total]
	if !huff {
		return string(data), total, nil
	}
	s, err := huffmanDecode(data)
	if err != nil {
		return "", 0, err
	}
	return s, total, nil
}
