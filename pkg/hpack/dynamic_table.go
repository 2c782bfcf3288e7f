package hpack

// dynamicTable is the per-direction (inbound or outbound) HPACK dynamic
// table: a deque with newest at front, oldest at back, shrunk from the back
// until its size is within the configured maximum (§3 data model).
type dynamicTable struct {
	entries []HeaderField // entries[0] is the most recently inserted
	size    int
	maxSize int
}

func newDynamicTable(maxSize int) *dynamicTable {
	return &dynamicTable{maxSize: maxSize}
}

// insert adds f at the front and evicts from the back until size <= maxSize.
// A single entry larger than maxSize by itself results in an empty table,
// per RFC 7541 §4.4.
func (t *dynamicTable) insert(f HeaderField) {
	t.entries = append([]HeaderField{f}, t.entries...)
	t.size += f.Size()
	t.evict()
}

func (t *dynamicTable) evict() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= last.Size()
	}
}

// setMaxSize applies a dynamic-table-size-update instruction (§4.4),
// evicting immediately if the new max is smaller.
func (t *dynamicTable) setMaxSize(max int) {
	t.maxSize = max
	t.evict()
}

func (t *dynamicTable) len() int { return len(t.entries) }

// get returns the dynamic-table entry at 1-based dynamic index i (i=1 is
// the most recently inserted entry, i.e. logical index 62 in the combined
// address space).
func (t *dynamicTable) get(i int) (HeaderField, bool) {
	if i < 1 || i > len(t.entries) {
		return HeaderField{}, false
	}
	return t.entries[i-1], true
}

// findFull looks for a full name+value match, returning a 1-based dynamic
// index.
func (t *dynamicTable) findFull(name, value string) (int, bool) {
	for i, f := range t.entries {
		if f.Name == name && f.Value == value {
			return i + 1, true
		}
	}
	return 0, false
}

// findName looks for a name-only match, returning a 1-based dynamic index.
func (t *dynamicTable) findName(name string) (int, bool) {
	for i, f := range t.entries {
		if f.Name == name {
			return i + 1, true
		}
	}
	return 0, false
}
