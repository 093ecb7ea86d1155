package gm

import (
	"bytes"
	"fmt"
)

// StringTable is the raw string region of a library: NUL-terminated strings
// stored back to back. References elsewhere in the format are byte offsets
// into it, and may point at any byte, including the middle of a string.
type StringTable []byte

// Lookup returns the string starting at off. The string ends at the next NUL
// or at the end of the table.
func (t StringTable) Lookup(off uint32) (string, error) {
	b, err := t.lookupBytes(off)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t StringTable) lookupBytes(off uint32) ([]byte, error) {
	if uint64(off) > uint64(len(t)) {
		return nil, fmt.Errorf("string offset %d out of range (table size %d)", off, len(t))
	}
	rest := t[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		return rest[:i], nil
	}
	return rest, nil
}

// StringEntry is one NUL-delimited string and the offset it starts at.
type StringEntry struct {
	Offset uint32 `json:"offset"`
	Text   string `json:"text"`
}

// Strings splits the table into its strings in order. A final string
// without a terminating NUL is still reported.
func (t StringTable) Strings() []StringEntry {
	var out []StringEntry
	t.each(func(off uint32, s []byte) {
		out = append(out, StringEntry{Offset: off, Text: string(s)})
	})
	return out
}

func (t StringTable) each(fn func(off uint32, s []byte)) {
	off := 0
	for off < len(t) {
		rest := t[off:]
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			fn(uint32(off), rest)
			return
		}
		fn(uint32(off), rest[:i])
		off += i + 1
	}
}

// Find returns the offset of the first string equal to s.
func (t StringTable) Find(s string) (uint32, bool) {
	return newStringIndex(t).find([]byte(s))
}

// BuildStringTable joins strs into a table, each followed by a NUL.
func BuildStringTable(strs ...string) StringTable {
	n := 0
	for _, s := range strs {
		n += len(s) + 1
	}
	out := make(StringTable, 0, n)
	for _, s := range strs {
		out = append(out, s...)
		out = append(out, 0)
	}
	return out
}

// unionStringTables concatenates the strings of a and b, a first, each
// terminated by a NUL. Strings are not deduplicated, so for well-formed
// tables the result is a followed by b and every offset into a stays valid.
func unionStringTables(a, b StringTable) StringTable {
	out := make(StringTable, 0, len(a)+len(b)+2)
	for _, t := range []StringTable{a, b} {
		t.each(func(_ uint32, s []byte) {
			out = append(out, s...)
			out = append(out, 0)
		})
	}
	return out
}

// stringIndex maps each distinct string of a table to the offset of its
// first occurrence. Built once per table, it makes "first match wins" an
// explicit property instead of a side effect of scan order.
type stringIndex struct {
	table StringTable
	first map[string]uint32
}

func newStringIndex(t StringTable) *stringIndex {
	idx := &stringIndex{
		table: t,
		first: make(map[string]uint32),
	}
	t.each(func(off uint32, s []byte) {
		if _, ok := idx.first[string(s)]; !ok {
			idx.first[string(s)] = off
		}
	})
	return idx
}

// find returns the offset of the first whole string equal to s. When s only
// exists as the tail of a longer string (suffix sharing), the lowest offset
// of s followed by a NUL is returned instead.
func (idx *stringIndex) find(s []byte) (uint32, bool) {
	if off, ok := idx.first[string(s)]; ok {
		return off, true
	}
	needle := make([]byte, 0, len(s)+1)
	needle = append(needle, s...)
	needle = append(needle, 0)
	if i := bytes.Index(idx.table, needle); i >= 0 {
		return uint32(i), true
	}
	return 0, false
}
