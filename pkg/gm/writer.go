package gm

import (
	"encoding/binary"
	"math"
)

// Encode serializes l. Section offsets are recomputed: the string table
// follows the 20-byte header, then the source dump, then the function table.
//
// Counts that are implied by slice lengths (bytecode length, base class
// count, line info count) are written from the slices. The symbol offsets
// must match NumParams+NumLocals because the split between the two cannot be
// derived. Bytecode that does not disassemble is rejected.
func Encode(l *Library) ([]byte, error) {
	if l == nil {
		return nil, formatErrorf(-1, 0, "nil library")
	}
	magic, err := checkMagic(l.Header.Magic, Magic, -1)
	if err != nil {
		return nil, err
	}

	size := headerSize + 4 + len(l.Strings) + 8 + len(l.Source.Source) + 4
	for i := range l.Functions {
		size += encodedFunctionSize(&l.Functions[i])
	}
	if uint64(size) > math.MaxUint32 {
		return nil, formatErrorf(-1, 0, "encoded library of %d bytes exceeds 4 GiB", size)
	}

	stOff := uint32(headerSize)
	scOff := stOff + 4 + uint32(len(l.Strings))
	fnOff := scOff + 8 + uint32(len(l.Source.Source))

	out := make([]byte, 0, size)
	out = append(out, magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, l.Header.Flags)
	out = binary.LittleEndian.AppendUint32(out, stOff)
	out = binary.LittleEndian.AppendUint32(out, scOff)
	out = binary.LittleEndian.AppendUint32(out, fnOff)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(l.Strings)))
	out = append(out, l.Strings...)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(l.Source.Source)))
	out = binary.LittleEndian.AppendUint32(out, l.Source.Flags)
	out = append(out, l.Source.Source...)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(l.Functions)))
	for i := range l.Functions {
		if out, err = appendFunction(out, &l.Functions[i], i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkMagic(m [4]byte, want string, fn int) ([4]byte, error) {
	if m == ([4]byte{}) {
		copy(m[:], want)
		return m, nil
	}
	if string(m[:]) != want {
		return m, formatErrorf(fn, 0, "bad magic %q, want %q", m[:], want)
	}
	return m, nil
}

func encodedFunctionSize(f *Function) int {
	return functionHeaderSize + len(f.Bytecode) + 4 + 4*len(f.BaseClassNameOffsets) +
		4 + 8*len(f.LineInfo) + 4*len(f.SymbolOffsets)
}

func appendFunction(out []byte, f *Function, idx int) ([]byte, error) {
	h := f.Header
	magic, err := checkMagic(h.Magic, FunctionMagic, idx)
	if err != nil {
		return nil, err
	}
	if f.SymbolCount() != len(f.SymbolOffsets) {
		return nil, formatErrorf(idx, 0, "%d params + %d locals but %d symbol offsets",
			h.NumParams, h.NumLocals, len(f.SymbolOffsets))
	}
	if err := walk(f.Bytecode, idx, func(int, Opcode, OpcodeInfo, uint32) error { return nil }); err != nil {
		return nil, err
	}

	out = append(out, magic[:]...)
	for _, v := range []uint32{
		h.ID,
		h.Flags,
		h.NumParams,
		h.NumLocals,
		uint32(len(f.BaseClassNameOffsets)),
		h.MaxStackSize,
		uint32(len(f.Bytecode)),
	} {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	out = append(out, f.Bytecode...)
	out = binary.LittleEndian.AppendUint32(out, f.DebugNameOffset)
	for _, v := range f.BaseClassNameOffsets {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(f.LineInfo)))
	for _, li := range f.LineInfo {
		out = binary.LittleEndian.AppendUint32(out, li.Address)
		out = binary.LittleEndian.AppendUint32(out, li.Line)
	}
	for _, v := range f.SymbolOffsets {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out, nil
}
