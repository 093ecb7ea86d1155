package gm

import (
	"strconv"

	"github.com/dgryski/go-farm"
)

type FunctionInfo struct {
	Index       int      `json:"index"`
	ID          uint32   `json:"id"`
	Name        string   `json:"name"`
	Flags       uint32   `json:"flags"`
	Params      uint32   `json:"params"`
	Locals      uint32   `json:"locals"`
	MaxStack    uint32   `json:"max_stack"`
	BytecodeLen int      `json:"bytecode_len"`
	Lines       int      `json:"lines"`
	BaseClasses []string `json:"base_classes,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
	Fingerprint string   `json:"fingerprint"`
}

type LibraryInfo struct {
	Flags           uint32         `json:"flags"`
	StringTableSize int            `json:"string_table_size"`
	StringCount     int            `json:"string_count"`
	SourceSize      int            `json:"source_size"`
	SourceFlags     uint32         `json:"source_flags"`
	Functions       []FunctionInfo `json:"functions"`
}

// Describe summarizes l for display. Names that cannot be resolved are
// reported as "<bad offset N>" rather than failing the whole summary.
func Describe(l *Library) LibraryInfo {
	info := LibraryInfo{
		Flags:           l.Header.Flags,
		StringTableSize: len(l.Strings),
		StringCount:     len(l.Strings.Strings()),
		SourceSize:      len(l.Source.Source),
		SourceFlags:     l.Source.Flags,
		Functions:       make([]FunctionInfo, 0, len(l.Functions)),
	}
	for i := range l.Functions {
		f := &l.Functions[i]
		fi := FunctionInfo{
			Index:       i,
			ID:          f.Header.ID,
			Name:        l.describeString(f.DebugNameOffset),
			Flags:       f.Header.Flags,
			Params:      f.Header.NumParams,
			Locals:      f.Header.NumLocals,
			MaxStack:    f.Header.MaxStackSize,
			BytecodeLen: len(f.Bytecode),
			Lines:       len(f.LineInfo),
			Fingerprint: fingerprintString(farm.Fingerprint64(f.Bytecode)),
		}
		for _, off := range f.BaseClassNameOffsets {
			fi.BaseClasses = append(fi.BaseClasses, l.describeString(off))
		}
		for _, off := range f.SymbolOffsets {
			fi.Symbols = append(fi.Symbols, l.describeString(off))
		}
		info.Functions = append(info.Functions, fi)
	}
	return info
}

func (l *Library) describeString(off uint32) string {
	s, err := l.Strings.Lookup(off)
	if err != nil {
		return "<bad offset " + strconv.FormatUint(uint64(off), 10) + ">"
	}
	return s
}
