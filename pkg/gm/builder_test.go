package gm

import "testing"

type ins struct {
	op  Opcode
	arg uint32
}

func asm(list ...ins) []byte {
	var code []byte
	for _, in := range list {
		code = AppendInstruction(code, in.op, in.arg)
	}
	return code
}

// libBuilder assembles small libraries for tests. Strings are interned in
// first-use order unless seeded up front.
type libBuilder struct {
	strs []string
	offs map[string]uint32
	size uint32
	fns  []Function
}

func newLibBuilder(seed ...string) *libBuilder {
	b := &libBuilder{offs: make(map[string]uint32)}
	for _, s := range seed {
		b.str(s)
	}
	return b
}

func (b *libBuilder) str(s string) uint32 {
	if off, ok := b.offs[s]; ok {
		return off
	}
	off := b.size
	b.offs[s] = off
	b.strs = append(b.strs, s)
	b.size += uint32(len(s)) + 1
	return off
}

type fnSpec struct {
	name   string
	id     uint32
	params []string
	locals []string
	code   []byte
	lines  []LineInfo
}

func (b *libBuilder) add(spec fnSpec) {
	f := Function{
		Header: FunctionHeader{
			ID:           spec.id,
			NumParams:    uint32(len(spec.params)),
			NumLocals:    uint32(len(spec.locals)),
			MaxStackSize: 4,
			BytecodeLen:  uint32(len(spec.code)),
		},
		Bytecode:        spec.code,
		DebugNameOffset: b.str(spec.name),
		LineInfo:        spec.lines,
	}
	copy(f.Header.Magic[:], FunctionMagic)
	for _, s := range spec.params {
		f.SymbolOffsets = append(f.SymbolOffsets, b.str(s))
	}
	for _, s := range spec.locals {
		f.SymbolOffsets = append(f.SymbolOffsets, b.str(s))
	}
	b.fns = append(b.fns, f)
}

func (b *libBuilder) library() *Library {
	l := &Library{
		Header: Header{Flags: FlagDebug},
		Source: SourceDump{
			Flags:  0,
			Source: []byte("global f = function() {}\x00"),
		},
		Strings:   BuildStringTable(b.strs...),
		Functions: b.fns,
	}
	copy(l.Header.Magic[:], Magic)
	return l
}

// decoded encodes and decodes l so comparisons see the same slice shapes
// Decode produces.
func decoded(t *testing.T, l *Library) *Library {
	t.Helper()
	raw, err := Encode(l)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func listingText(t *testing.T, l *Library, fn int) []string {
	t.Helper()
	list, err := l.Listing(fn)
	if err != nil {
		t.Fatalf("listing %d: %v", fn, err)
	}
	out := make([]string, len(list))
	for i, in := range list {
		out[i] = in.String()
	}
	return out
}

// sampleLibrary has one function per interesting operand kind.
func sampleLibrary(t *testing.T) *Library {
	t.Helper()
	b := newLibBuilder()
	b.add(fnSpec{
		name:   "Init",
		id:     3,
		params: []string{"self"},
		locals: []string{"count"},
		code: asm(
			ins{OpLine, 0},
			ins{OpPushInt, 0xFFFFFFFE},
			ins{OpSetLocal, 1},
			ins{OpGetLocal, 0},
			ins{OpPushStr, b.str("hello")},
			ins{OpSetDot, b.str("greeting")},
			ins{OpGetGlobal, b.str("print")},
			ins{OpPushFP, 0x3FC00000},
			ins{OpCall, 1},
			ins{OpBrz, 48},
			ins{OpPushFn, 1},
			ins{OpRet, 0},
		),
		lines: []LineInfo{{Address: 0, Line: 1}, {Address: 4, Line: 2}},
	})
	b.add(fnSpec{
		name: "Tick",
		id:   4,
		code: asm(
			ins{OpPushThis, 0},
			ins{OpGetThis, b.str("count")},
			ins{OpPushInt1, 0},
			ins{OpAdd, 0},
			ins{OpSetThis, b.str("count")},
			ins{OpRet, 0},
		),
		lines: []LineInfo{{Address: 0, Line: 5}},
	})
	return decoded(t, b.library())
}
