package gm

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/cryptobyte"
)

// reader is a bounds-checked little-endian cursor over one section of a
// library buffer. Offsets in errors are absolute buffer offsets.
type reader struct {
	s    cryptobyte.String
	base int
	size int
	fn   int
}

func newReader(b []byte, base int) *reader {
	return &reader{
		s:    cryptobyte.String(b),
		base: base,
		size: len(b),
		fn:   -1,
	}
}

func (r *reader) offset() int {
	return r.base + r.size - len(r.s)
}

func (r *reader) remaining() int {
	return len(r.s)
}

func (r *reader) readN(n int, what string) ([]byte, error) {
	if n < 0 {
		return nil, formatErrorf(r.fn, r.offset(), "invalid %s length %d", what, n)
	}
	var b []byte
	if !r.s.ReadBytes(&b, n) {
		return nil, formatErrorf(r.fn, r.offset(), "truncated %s: need %d bytes, have %d", what, n, len(r.s))
	}
	return b, nil
}

func (r *reader) readU32(what string) (uint32, error) {
	b, err := r.readN(4, what)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readMagic(what string) ([4]byte, error) {
	var m [4]byte
	b, err := r.readN(4, what)
	if err != nil {
		return m, err
	}
	copy(m[:], b)
	return m, nil
}

// readCount reads a u32 element count and checks that count elements of
// elemSize bytes can still fit in the section, so a corrupt count fails
// before anything is allocated for it.
func (r *reader) readCount(what string, elemSize int) (int, error) {
	at := r.offset()
	n, err := r.readU32(what)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(elemSize) > uint64(r.remaining()) {
		return 0, formatErrorf(r.fn, at, "%s %d exceeds remaining %d bytes", what, n, r.remaining())
	}
	return int(n), nil
}

func (r *reader) readU32s(n int, what string) ([]uint32, error) {
	if uint64(n)*4 > uint64(r.remaining()) {
		return nil, formatErrorf(r.fn, r.offset(), "truncated %s: need %d entries, have %d bytes", what, n, r.remaining())
	}
	out := make([]uint32, n)
	for i := range out {
		v, err := r.readU32(what)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Decode parses a complete library. The returned Library owns all of its
// memory and does not alias b.
//
// Every byte of b must be accounted for: the function table has to run to the
// end of the buffer, and the header plus the three sections have to add up to
// exactly len(b) without overlapping. Anything else is a FormatError.
func Decode(b []byte) (*Library, error) {
	if len(b) < headerSize {
		return nil, formatErrorf(-1, 0, "truncated header: %d bytes", len(b))
	}
	hdr, err := decodeHeader(b[:headerSize])
	if err != nil {
		return nil, err
	}

	st, err := section(b, hdr.StringTableOffset, "string table")
	if err != nil {
		return nil, err
	}
	strSize, err := st.readCount("string table size", 1)
	if err != nil {
		return nil, err
	}
	strData, err := st.readN(strSize, "string table")
	if err != nil {
		return nil, err
	}
	stEnd := st.offset()

	sc, err := section(b, hdr.SourceDumpOffset, "source dump")
	if err != nil {
		return nil, err
	}
	srcSize, err := sc.readU32("source size")
	if err != nil {
		return nil, err
	}
	srcFlags, err := sc.readU32("source flags")
	if err != nil {
		return nil, err
	}
	srcData, err := sc.readN(int(srcSize), "source dump")
	if err != nil {
		return nil, err
	}
	scEnd := sc.offset()

	fr, err := section(b, hdr.FunctionTableOffset, "function table")
	if err != nil {
		return nil, err
	}
	fns, err := decodeFunctions(fr)
	if err != nil {
		return nil, err
	}
	if fr.remaining() != 0 {
		return nil, formatErrorf(-1, fr.offset(), "%d unconsumed bytes after function table", fr.remaining())
	}

	if err := checkLayout(len(b), hdr, stEnd, scEnd); err != nil {
		return nil, err
	}

	return &Library{
		Header: hdr,
		Source: SourceDump{
			Flags:  srcFlags,
			Source: bytes.Clone(srcData),
		},
		Strings:   StringTable(bytes.Clone(strData)),
		Functions: fns,
	}, nil
}

func decodeHeader(b []byte) (Header, error) {
	r := newReader(b, 0)
	var h Header
	var err error
	if h.Magic, err = r.readMagic("magic"); err != nil {
		return h, err
	}
	if !h.Valid() {
		return h, formatErrorf(-1, 0, "bad magic %q, want %q", h.Magic[:], Magic)
	}
	fields := []*uint32{&h.Flags, &h.StringTableOffset, &h.SourceDumpOffset, &h.FunctionTableOffset}
	for _, f := range fields {
		if *f, err = r.readU32("header"); err != nil {
			return h, err
		}
	}
	if !h.Debug() {
		return h, formatErrorf(-1, 4, "flags %#x: only debug libraries are supported", h.Flags)
	}
	return h, nil
}

func section(b []byte, off uint32, what string) (*reader, error) {
	if off < headerSize || uint64(off) > uint64(len(b)) {
		return nil, formatErrorf(-1, 0, "%s offset %d outside buffer of %d bytes", what, off, len(b))
	}
	return newReader(b[off:], int(off)), nil
}

// checkLayout verifies that the header and the three sections tile the
// buffer exactly.
func checkLayout(size int, h Header, stEnd, scEnd int) error {
	st0, sc0, fn0 := uint64(h.StringTableOffset), uint64(h.SourceDumpOffset), uint64(h.FunctionTableOffset)
	st1, sc1, fn1 := uint64(stEnd), uint64(scEnd), uint64(size)

	if rangesOverlap(st0, st1, sc0, sc1) || rangesOverlap(st0, st1, fn0, fn1) || rangesOverlap(sc0, sc1, fn0, fn1) {
		return formatErrorf(-1, 0, "overlapping sections (strings %d-%d, source %d-%d, functions %d-%d)",
			st0, st1, sc0, sc1, fn0, fn1)
	}
	used := headerSize + (st1 - st0) + (sc1 - sc0) + (fn1 - fn0)
	if used != uint64(size) {
		return formatErrorf(-1, 0, "%d of %d bytes not accounted for by any section", uint64(size)-used, size)
	}
	return nil
}

func rangesOverlap(a0, a1, b0, b1 uint64) bool {
	// half-open ranges [a0,a1) and [b0,b1)
	return a0 < b1 && b0 < a1
}

// minFunctionSize is a function record with no bytecode, no base classes, no
// line info and no symbols.
const minFunctionSize = functionHeaderSize + 4 + 4

func decodeFunctions(r *reader) ([]Function, error) {
	count, err := r.readCount("function count", minFunctionSize)
	if err != nil {
		return nil, err
	}
	fns := make([]Function, count)
	for i := range fns {
		r.fn = i
		if err := decodeFunction(r, &fns[i]); err != nil {
			return nil, err
		}
	}
	r.fn = -1
	return fns, nil
}

func decodeFunction(r *reader, f *Function) error {
	at := r.offset()
	h := &f.Header
	var err error
	if h.Magic, err = r.readMagic("function magic"); err != nil {
		return err
	}
	if string(h.Magic[:]) != FunctionMagic {
		return formatErrorf(r.fn, at, "bad function magic %q, want %q", h.Magic[:], FunctionMagic)
	}
	fields := []*uint32{&h.ID, &h.Flags, &h.NumParams, &h.NumLocals, &h.BaseClassCount, &h.MaxStackSize, &h.BytecodeLen}
	for _, p := range fields {
		if *p, err = r.readU32("function header"); err != nil {
			return err
		}
	}

	code, err := r.readN(int(h.BytecodeLen), "bytecode")
	if err != nil {
		return err
	}
	f.Bytecode = bytes.Clone(code)

	if f.DebugNameOffset, err = r.readU32("debug name offset"); err != nil {
		return err
	}
	if f.BaseClassNameOffsets, err = r.readU32s(int(h.BaseClassCount), "base class name offsets"); err != nil {
		return err
	}

	lines, err := r.readCount("line info count", 8)
	if err != nil {
		return err
	}
	f.LineInfo = make([]LineInfo, lines)
	for i := range f.LineInfo {
		if f.LineInfo[i].Address, err = r.readU32("line info address"); err != nil {
			return err
		}
		if f.LineInfo[i].Line, err = r.readU32("line info line"); err != nil {
			return err
		}
	}

	symbols := uint64(h.NumParams) + uint64(h.NumLocals)
	if symbols*4 > uint64(r.remaining()) {
		return formatErrorf(r.fn, r.offset(), "truncated symbol offsets: need %d entries, have %d bytes", symbols, r.remaining())
	}
	f.SymbolOffsets, err = r.readU32s(int(symbols), "symbol offsets")
	return err
}
