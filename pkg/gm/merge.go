package gm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgryski/go-farm"
)

// UnmatchedPolicy decides what happens to patch functions whose debug name
// does not exist in the base library.
type UnmatchedPolicy int

const (
	// DropUnmatched leaves patch-only functions out of the result. This is
	// the behavior existing patches were built against: only functions that
	// replace a base function take effect.
	DropUnmatched UnmatchedPolicy = iota

	// AppendUnmatched relocates patch-only functions and appends them to the
	// base library with fresh IDs.
	AppendUnmatched
)

func (p UnmatchedPolicy) String() string {
	switch p {
	case DropUnmatched:
		return "drop"
	case AppendUnmatched:
		return "append"
	default:
		return "policy(" + strconv.Itoa(int(p)) + ")"
	}
}

type MergeOptions struct {
	Unmatched UnmatchedPolicy

	// AllowNonASCII relocates strings with bytes >= 0x80 by exact byte match.
	// By default such strings fail relocation: whether the runtime compares
	// them byte for byte is unverified.
	AllowNonASCII bool
}

// MergedFunction describes one base function that adopted patch code.
// Fingerprints are farm fingerprints of the bytecode before and after.
type MergedFunction struct {
	Name             string `json:"name"`
	BaseIndex        int    `json:"base_index"`
	BaseID           uint32 `json:"base_id"`
	PatchID          uint32 `json:"patch_id"`
	BaseFingerprint  string `json:"base_fingerprint"`
	PatchFingerprint string `json:"patch_fingerprint"`
	Changed          bool   `json:"changed"`
}

type MergeReport struct {
	Merged          []MergedFunction `json:"merged"`
	Dropped         []string         `json:"dropped,omitempty"`
	Appended        []string         `json:"appended,omitempty"`
	Policy          string           `json:"policy"`
	StringTableSize int              `json:"string_table_size"`
}

var (
	errNonASCII      = errors.New("string is not ASCII")
	errMissingString = errors.New("string not found in merged table")
)

// Merge splices the functions of patch into base.
//
// The two string tables are concatenated, base first. Every patch function
// whose debug name matches a base function has its string references
// relocated into the combined table and then replaces the base function's
// header, bytecode, symbol offsets and line info. The base function keeps its
// numeric ID, debug name offset and base class name offsets, so external
// references by ID stay valid. Patch functions without a match are handled
// according to opts.Unmatched.
//
// Both libraries must disassemble cleanly, dropped functions included.
// Merge mutates base in place. All relocation is done on copies before base
// is touched, so when Merge returns an error neither library has changed.
// patch is never modified.
func Merge(base, patch *Library, opts MergeOptions) (*MergeReport, error) {
	if base == nil || patch == nil {
		return nil, errors.New("gm: merge requires a base and a patch library")
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("gm: base library: %w", err)
	}
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("gm: patch library: %w", err)
	}

	union := unionStringTables(base.Strings, patch.Strings)
	rel := &relocator{
		patch:         patch,
		index:         newStringIndex(union),
		allowNonASCII: opts.AllowNonASCII,
	}

	byName := make(map[string]int, len(base.Functions))
	for i := range base.Functions {
		name, err := base.Strings.Lookup(base.Functions[i].DebugNameOffset)
		if err != nil {
			return nil, formatErrorf(i, 0, "base debug name: %v", err)
		}
		byName[name] = i
	}

	type transplant struct {
		target int
		name   string
		fn     Function
	}
	var (
		plan     []transplant
		appended []Function
	)
	report := &MergeReport{Policy: opts.Unmatched.String()}
	nextID := nextFunctionID(base)

	for i := range patch.Functions {
		p := &patch.Functions[i]
		name, err := patch.Strings.Lookup(p.DebugNameOffset)
		if err != nil {
			return nil, formatErrorf(i, 0, "patch debug name: %v", err)
		}
		target, ok := byName[name]
		if !ok {
			switch opts.Unmatched {
			case AppendUnmatched:
				fn, err := rel.relocate(p, i, name, true)
				if err != nil {
					return nil, err
				}
				fn.Header.ID = nextID
				nextID++
				appended = append(appended, fn)
				report.Appended = append(report.Appended, name)
			default:
				report.Dropped = append(report.Dropped, name)
			}
			continue
		}
		fn, err := rel.relocate(p, i, name, false)
		if err != nil {
			return nil, err
		}
		plan = append(plan, transplant{target: target, name: name, fn: fn})
	}

	for _, t := range plan {
		o := &base.Functions[t.target]
		before := farm.Fingerprint64(o.Bytecode)
		after := farm.Fingerprint64(t.fn.Bytecode)
		report.Merged = append(report.Merged, MergedFunction{
			Name:             t.name,
			BaseIndex:        t.target,
			BaseID:           o.Header.ID,
			PatchID:          t.fn.Header.ID,
			BaseFingerprint:  fingerprintString(before),
			PatchFingerprint: fingerprintString(after),
			Changed:          before != after,
		})

		hdr := t.fn.Header
		hdr.ID = o.Header.ID
		hdr.BaseClassCount = uint32(len(o.BaseClassNameOffsets))
		o.Header = hdr
		o.Bytecode = t.fn.Bytecode
		o.SymbolOffsets = t.fn.SymbolOffsets
		o.LineInfo = t.fn.LineInfo
	}
	base.Functions = append(base.Functions, appended...)
	base.Strings = union
	report.StringTableSize = len(union)
	return report, nil
}

func nextFunctionID(l *Library) uint32 {
	var next uint32
	for i := range l.Functions {
		if id := l.Functions[i].Header.ID; id >= next {
			next = id + 1
		}
	}
	return next
}

func fingerprintString(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// relocator rewrites string references of patch functions so they point into
// the merged string table.
type relocator struct {
	patch         *Library
	index         *stringIndex
	allowNonASCII bool
}

// relocate returns a copy of p with every string reference moved into the
// merged table: string operands in the bytecode and all symbol offsets. With
// full set, the debug name and base class name offsets are moved as well,
// which is needed when the function is added rather than transplanted.
func (r *relocator) relocate(p *Function, idx int, name string, full bool) (Function, error) {
	fn := p.clone()
	done := make([]bool, len(fn.SymbolOffsets))

	err := walk(p.Bytecode, idx, func(addr int, op Opcode, info OpcodeInfo, operand uint32) error {
		switch info.Operand {
		case OperandString:
			off, err := r.move(operand, name, addr)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(fn.Bytecode[addr+4:], off)
		case OperandSymbol:
			if _, err := symbolOffset(p, idx, addr, operand); err != nil {
				return err
			}
			if done[operand] {
				return nil
			}
			off, err := r.move(p.SymbolOffsets[operand], name, addr)
			if err != nil {
				return err
			}
			fn.SymbolOffsets[operand] = off
			done[operand] = true
		}
		return nil
	})
	if err != nil {
		return Function{}, err
	}

	// Slots no instruction touches (unused parameters, for one) still name
	// strings in the patch table.
	for slot, ok := range done {
		if ok {
			continue
		}
		off, err := r.move(p.SymbolOffsets[slot], name, -1)
		if err != nil {
			return Function{}, err
		}
		fn.SymbolOffsets[slot] = off
	}

	if full {
		off, err := r.move(p.DebugNameOffset, name, -1)
		if err != nil {
			return Function{}, err
		}
		fn.DebugNameOffset = off
		for i, v := range p.BaseClassNameOffsets {
			if fn.BaseClassNameOffsets[i], err = r.move(v, name, -1); err != nil {
				return Function{}, err
			}
		}
	}
	return fn, nil
}

// move maps an offset into the patch string table to the offset of the same
// string in the merged table.
func (r *relocator) move(off uint32, fn string, addr int) (uint32, error) {
	s, err := r.patch.Strings.lookupBytes(off)
	if err != nil {
		return 0, &RelocationError{Function: fn, Address: addr, Err: err}
	}
	if !r.allowNonASCII && !isASCII(s) {
		return 0, &RelocationError{Function: fn, Address: addr, Text: string(s), Err: errNonASCII}
	}
	n, ok := r.index.find(s)
	if !ok {
		return 0, &RelocationError{Function: fn, Address: addr, Text: string(s), Err: errMissingString}
	}
	return n, nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
