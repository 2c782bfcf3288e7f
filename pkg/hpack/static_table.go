package hpack

// HeaderField is a single (name, value) pair as carried through HPACK and
// the stream engine above it. Sensitive preserves the "never indexed"
// decode flag (§9 open question) so a re-encoder can choose to keep
// forwarding it as never-indexed instead of silently downgrading it to a
// plain "without indexing" literal.
type HeaderField struct {
	Name      string
	Value     string
	Sensitive bool
}

// Size is the RFC 7541 §4.1 entry size: name length + value length + 32
// bytes of accounting overhead.
func (f HeaderField) Size() int {
	return len(f.Name) + len(f.Value) + 32
}

// staticTable is the fixed RFC 7541 Appendix A table, 1-indexed in the
// combined address space (index 1..61); staticTable[0] holds index 1.
var staticTable = []HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

const staticTableSize = 61 // len(staticTable)

// staticNameIndex maps a header name to the first static-table index (1..61)
// carrying it, for the encoder's name-only fallback lookup.
var staticNameIndex = func() map[string]int {
	m := make(map[string]int, staticTableSize)
	for i, f := range staticTable {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = i + 1
		}
	}
	return m
}()

// staticFullIndex maps "name\x00value" to its static-table index for the
// encoder's full-match lookup.
var staticFullIndex = func() map[string]int {
	m := make(map[string]int, staticTableSize)
	for i, f := range staticTable {
		m[f.Name+"\x00"+f.Value] = i + 1
	}
	return m
}()
