// Package gm implements the compiled GameMonkey library container ("gml0").
//
// A library holds a NUL-delimited string table, the original source text and
// a list of compiled functions. Everything that names something (function
// debug names, symbols, dotted member names, string literals) is stored as a
// byte offset into the string table.
//
// The package decodes and encodes libraries, disassembles function bytecode
// and merges a patch library into a base library while relocating every
// string reference into a single combined table.
package gm

import "slices"

// Format constants. These are fixed by the game runtime and must never change.
const (
	// Magic is the library tag, encoded as "gml0".
	Magic = "gml0"

	// FunctionMagic opens every function record.
	FunctionMagic = "func"

	// FlagDebug marks a library compiled with debug info. Only debug
	// libraries carry the names the merge engine matches on.
	FlagDebug uint32 = 1 << 0

	headerSize         = 20
	functionHeaderSize = 32
)

type Header struct {
	Magic               [4]byte
	Flags               uint32
	StringTableOffset   uint32
	SourceDumpOffset    uint32
	FunctionTableOffset uint32
}

func (h *Header) Valid() bool {
	return string(h.Magic[:]) == Magic
}

func (h *Header) Debug() bool {
	return h.Flags&FlagDebug != 0
}

type FunctionHeader struct {
	Magic          [4]byte
	ID             uint32
	Flags          uint32
	NumParams      uint32
	NumLocals      uint32
	BaseClassCount uint32
	MaxStackSize   uint32
	BytecodeLen    uint32
}

// LineInfo maps a bytecode address to a source line.
type LineInfo struct {
	Address uint32
	Line    uint32
}

// Function is one compiled function record.
//
// SymbolOffsets holds NumParams+NumLocals string offsets indexed by the symbol
// slot used by GETLOCAL/SETLOCAL.
type Function struct {
	Header               FunctionHeader
	Bytecode             []byte
	DebugNameOffset      uint32
	BaseClassNameOffsets []uint32
	LineInfo             []LineInfo
	SymbolOffsets        []uint32
}

// SymbolCount is the number of symbol slots declared by the header.
func (f *Function) SymbolCount() int {
	return int(f.Header.NumParams) + int(f.Header.NumLocals)
}

func (f *Function) clone() Function {
	out := *f
	out.Bytecode = slices.Clone(f.Bytecode)
	out.BaseClassNameOffsets = slices.Clone(f.BaseClassNameOffsets)
	out.LineInfo = slices.Clone(f.LineInfo)
	out.SymbolOffsets = slices.Clone(f.SymbolOffsets)
	return out
}

type SourceDump struct {
	Flags  uint32
	Source []byte
}

type Library struct {
	Header    Header
	Source    SourceDump
	Strings   StringTable
	Functions []Function
}

// FunctionName resolves the debug name of function i.
func (l *Library) FunctionName(i int) (string, error) {
	if i < 0 || i >= len(l.Functions) {
		return "", formatErrorf(-1, 0, "function index %d out of range (%d functions)", i, len(l.Functions))
	}
	return l.Strings.Lookup(l.Functions[i].DebugNameOffset)
}

// FunctionByName returns the index of the last function whose debug name is
// name, matching the precedence Merge uses for duplicate names.
func (l *Library) FunctionByName(name string) (int, bool) {
	found := -1
	for i := range l.Functions {
		n, err := l.Strings.Lookup(l.Functions[i].DebugNameOffset)
		if err == nil && n == name {
			found = i
		}
	}
	return found, found >= 0
}

// Clone returns a deep copy that shares no memory with l.
func (l *Library) Clone() *Library {
	out := &Library{
		Header: l.Header,
		Source: SourceDump{
			Flags:  l.Source.Flags,
			Source: slices.Clone(l.Source.Source),
		},
		Strings:   slices.Clone(l.Strings),
		Functions: make([]Function, len(l.Functions)),
	}
	for i := range l.Functions {
		out.Functions[i] = l.Functions[i].clone()
	}
	return out
}
