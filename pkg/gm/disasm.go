package gm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
)

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Address int
	Op      Opcode
	Operand uint32 // raw operand word, zero when the opcode takes none
	Text    string // operand rendered for humans
}

func (in Instruction) Width() int {
	info, _ := in.Op.Info()
	return info.Width()
}

func (in Instruction) String() string {
	if in.Text == "" {
		return fmt.Sprintf("%04d %s", in.Address, in.Op)
	}
	return fmt.Sprintf("%04d %s %s", in.Address, in.Op, in.Text)
}

// errStop ends a walk early without reporting an error.
var errStop = errors.New("stop")

// decodeAt reads the instruction starting at addr.
func decodeAt(code []byte, fn, addr int) (Opcode, OpcodeInfo, uint32, error) {
	if len(code)-addr < 4 {
		return 0, OpcodeInfo{}, 0, formatErrorf(fn, addr, "truncated opcode: %d trailing bytes", len(code)-addr)
	}
	op := Opcode(binary.LittleEndian.Uint32(code[addr:]))
	info, ok := op.Info()
	if !ok {
		return op, info, 0, formatErrorf(fn, addr, "unknown instruction %d", uint32(op))
	}
	if !info.Operand.HasOperand() {
		return op, info, 0, nil
	}
	if len(code)-addr < 8 {
		return op, info, 0, formatErrorf(fn, addr, "truncated operand for %s", op)
	}
	return op, info, binary.LittleEndian.Uint32(code[addr+4:]), nil
}

// walk visits every instruction of code in order. The cursor advances by
// exactly the width of each instruction and must land on len(code).
func walk(code []byte, fn int, visit func(addr int, op Opcode, info OpcodeInfo, operand uint32) error) error {
	addr := 0
	for addr < len(code) {
		op, info, operand, err := decodeAt(code, fn, addr)
		if err != nil {
			return err
		}
		if err := visit(addr, op, info, operand); err != nil {
			return err
		}
		addr += info.Width()
	}
	return nil
}

// Disassemble returns the instructions of function fn as a lazy sequence.
// The sequence can be ranged over any number of times. Decoding stops at the
// first error, which is yielded once with a zero Instruction; the error
// carries the function and bytecode address.
func (l *Library) Disassemble(fn int) iter.Seq2[Instruction, error] {
	return func(yield func(Instruction, error) bool) {
		if fn < 0 || fn >= len(l.Functions) {
			yield(Instruction{}, formatErrorf(-1, 0, "function index %d out of range (%d functions)", fn, len(l.Functions)))
			return
		}
		f := &l.Functions[fn]
		err := walk(f.Bytecode, fn, func(addr int, op Opcode, info OpcodeInfo, operand uint32) error {
			text, err := l.operandText(f, fn, addr, info.Operand, operand)
			if err != nil {
				return err
			}
			if !yield(Instruction{Address: addr, Op: op, Operand: operand, Text: text}, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(Instruction{}, err)
		}
	}
}

// Listing collects the disassembly of function fn.
func (l *Library) Listing(fn int) ([]Instruction, error) {
	var out []Instruction
	for in, err := range l.Disassemble(fn) {
		if err != nil {
			return out, err
		}
		out = append(out, in)
	}
	return out, nil
}

// Validate walks the bytecode of every function and returns the first
// instruction that cannot be decoded.
func (l *Library) Validate() error {
	for i := range l.Functions {
		err := walk(l.Functions[i].Bytecode, i, func(int, Opcode, OpcodeInfo, uint32) error { return nil })
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) operandText(f *Function, fn, addr int, kind OperandKind, operand uint32) (string, error) {
	switch kind {
	case OperandNone:
		return "", nil
	case OperandBranch, OperandArgCount:
		return strconv.FormatUint(uint64(operand), 10), nil
	case OperandInt:
		return strconv.FormatInt(int64(int32(operand)), 10), nil
	case OperandFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(operand)), 'g', -1, 32), nil
	case OperandFunction:
		return "function_" + strconv.FormatUint(uint64(operand), 10), nil
	case OperandSymbol:
		off, err := symbolOffset(f, fn, addr, operand)
		if err != nil {
			return "", err
		}
		s, err := l.Strings.Lookup(off)
		if err != nil {
			return "", formatErrorf(fn, addr, "symbol slot %d: %v", operand, err)
		}
		return s, nil
	case OperandString:
		s, err := l.Strings.Lookup(operand)
		if err != nil {
			return "", formatErrorf(fn, addr, "%v", err)
		}
		return s, nil
	default:
		return "", formatErrorf(fn, addr, "unhandled operand kind %s", kind)
	}
}

func symbolOffset(f *Function, fn, addr int, slot uint32) (uint32, error) {
	if uint64(slot) >= uint64(len(f.SymbolOffsets)) {
		return 0, formatErrorf(fn, addr, "symbol slot %d out of range (%d symbols)", slot, len(f.SymbolOffsets))
	}
	return f.SymbolOffsets[slot], nil
}

// AppendInstruction encodes op and its operand onto code. The operand is
// ignored for opcodes that take none; unknown opcodes are written as a bare
// opcode word.
func AppendInstruction(code []byte, op Opcode, operand uint32) []byte {
	code = binary.LittleEndian.AppendUint32(code, uint32(op))
	if info, ok := op.Info(); ok && info.Operand.HasOperand() {
		code = binary.LittleEndian.AppendUint32(code, operand)
	}
	return code
}
