package hpack

import (
	"bytes"
	"testing"
)

func TestAppendAndReadInt(t *testing.T) {
	cases := []struct {
		name string
		n    uint
		v    uint64
	}{
		{"fits in prefix", 5, 10},
		{"exact boundary", 5, 31},
		{"needs continuation", 5, 1337},
		{"large value", 7, 1 << 20},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			appendInt(&buf, 0, c.n, c.v)
			got, consumed, err := readInt(buf.Bytes(), c.n)
			if err != nil {
				t.Fatalf("readInt() error = %v", err)
			}
			if got != c.v {
				t.Errorf("expected %d, got %d", c.v, got)
			}
			if consumed != buf.Len() {
				t.Errorf("expected to consume %d bytes, got %d", buf.Len(), consumed)
			}
		})
	}
}

func TestReadIntOverflow(t *testing.T) {
	p := []byte{0x1f}
	for i := 0; i < 10; i++ {
		p = append(p, 0xff)
	}
	p = append(p, 0x7f)
	if _, _, err := readInt(p, 5); err == nil {
		t.Error("expected overflow error")
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	samples := []string{
		"",
		"www.example.com",
		"no-cache",
		"custom-key",
		"custom-value",
		"Mozilla/5.0 (compatible)",
	}
	for _, s := range samples {
		t.Run(s, func(t *testing.T) {
			var buf bytes.Buffer
			huffmanEncode(&buf, s)
			decoded, err := huffmanDecode(buf.Bytes())
			if err != nil {
				t.Fatalf("huffmanDecode() error = %v", err)
			}
			if decoded != s {
				t.Errorf("expected %q, got %q", s, decoded)
			}
		})
	}
}

func TestHuffmanRejectsEOS(t *testing.T) {
	var buf bytes.Buffer
	eos := eosCode // a variable, so byte() truncates instead of failing to compile
	buf.WriteByte(byte(eos >> 22))
	buf.WriteByte(byte(eos >> 14))
	buf.WriteByte(byte(eos >> 6))
	buf.WriteByte(byte(eos << 2))
	if _, err := huffmanDecode(buf.Bytes()); err == nil {
		t.Error("expected error decoding explicit EOS symbol")
	}
}

func TestDynamicTableInsertEvict(t *testing.T) {
	dt := newDynamicTable(64)
	dt.insert(HeaderField{Name: "a", Value: "1"}) // size 2+32=34... depends on Size()
	if dt.len() == 0 {
		t.Fatal("expected at least one entry")
	}
	dt.insert(HeaderField{Name: "b", Value: "2"})
	dt.insert(HeaderField{Name: "c", Value: "3"})
	// Oldest entries should be evicted once capacity is exceeded.
	if dt.size > dt.maxSize {
		t.Errorf("table size %d exceeds max %d", dt.size, dt.maxSize)
	}
}

func TestEncodeDecodeStaticIndexed(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	fields := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
	}
	var buf bytes.Buffer
	for _, f := range fields {
		enc.WriteField(&buf, f)
	}
	got, err := dec.DecodeFull(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFull() error = %v", err)
	}
	if len(got) != len(fields) {
		t.Fatalf("expected %d fields, got %d", len(fields), len(got))
	}
	for i, f := range fields {
		if got[i] != f {
			t.Errorf("field %d: expected %+v, got %+v", i, f, got[i])
		}
	}
}

func TestEncodeDecodeLiteralAndDynamicReuse(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	f := HeaderField{Name: "x-custom-header", Value: "some-value"}
	var buf bytes.Buffer
	enc.WriteField(&buf, f)
	enc.WriteField(&buf, f) // second occurrence should hit the dynamic table

	got, err := dec.DecodeFull(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFull() error = %v", err)
	}
	if len(got) != 2 || got[0] != f || got[1] != f {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestEncodeDecodePreservesDuplicateHeaders(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	fields := []HeaderField{
		{Name: "set-cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
	}
	var buf bytes.Buffer
	for _, f := range fields {
		enc.WriteField(&buf, f)
	}
	got, err := dec.DecodeFull(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFull() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both set-cookie headers preserved, got %d", len(got))
	}
}

func TestNeverIndexedNotInsertedIntoDynamicTable(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	f := HeaderField{Name: "authorization", Value: "secret-token", Sensitive: true}
	var buf bytes.Buffer
	enc.WriteField(&buf, f)

	got, err := dec.DecodeFull(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFull() error = %v", err)
	}
	if len(got) != 1 || !got[0].Sensitive || got[0].Value != f.Value {
		t.Fatalf("unexpected decode result: %+v", got)
	}
	if dec.dynTab.len() != 0 {
		t.Errorf("never-indexed field must not enter the dynamic table, got %d entries", dec.dynTab.len())
	}
}

func TestSetMaxDynamicTableSizeRoundTrip(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	var buf bytes.Buffer
	enc.SetMaxDynamicTableSize(&buf, 128)
	enc.WriteField(&buf, HeaderField{Name: "x", Value: "y"})

	if _, err := dec.DecodeFull(buf.Bytes()); err != nil {
		t.Fatalf("DecodeFull() error = %v", err)
	}
	if dec.dynTab.maxSize != 128 {
		t.Errorf("expected dynamic table max size 128, got %d", dec.dynTab.maxSize)
	}
}
