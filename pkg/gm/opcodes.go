package gm

import "fmt"

// Opcode is a bytecode instruction tag. Every instruction is a 32-bit
// little-endian opcode word, optionally followed by one 32-bit operand.
type Opcode uint32

const (
	OpGetDot Opcode = iota
	OpSetDot
	OpGetInd
	OpSetInd
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpBitOr
	OpBitXor
	OpBitAnd
	OpBitShl
	OpBitShr
	OpBitInv
	OpLT
	OpGT
	OpLTE
	OpGTE
	OpEQ
	OpNEQ
	OpNeg
	OpPos
	OpNot
	OpNop
	OpLine
	OpBra
	OpBrz
	OpBrnz
	OpBrzk
	OpBrnzk
	OpCall
	OpRet
	OpRetV
	OpForEach
	OpPop
	OpPop2
	OpDup
	OpDup2
	OpSwap
	OpPushNull
	OpPushInt
	OpPushInt0
	OpPushInt1
	OpPushFP
	OpPushStr
	OpPushTbl
	OpPushFn
	OpPushThis
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpSetGlobal
	OpGetThis
	OpSetThis
	OpFork

	opcodeCount
)

// OperandKind describes what the 32-bit operand of an instruction means.
type OperandKind uint8

const (
	OperandNone     OperandKind = iota
	OperandBranch               // absolute bytecode address
	OperandInt                  // signed 32-bit literal
	OperandFloat                // IEEE-754 float32 literal
	OperandArgCount             // call argument count
	OperandSymbol               // symbol slot, resolved through the function's symbol offsets
	OperandString               // string table offset
	OperandFunction             // function index
)

// HasOperand reports whether instructions of this kind carry a 4-byte operand.
func (k OperandKind) HasOperand() bool {
	return k != OperandNone
}

// StringRef reports whether the operand refers to the string table, directly
// or through a symbol slot. These are the operands the merge engine rewrites.
func (k OperandKind) StringRef() bool {
	return k == OperandSymbol || k == OperandString
}

func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandBranch:
		return "branch"
	case OperandInt:
		return "int"
	case OperandFloat:
		return "float"
	case OperandArgCount:
		return "argc"
	case OperandSymbol:
		return "symbol"
	case OperandString:
		return "string"
	case OperandFunction:
		return "function"
	default:
		return fmt.Sprintf("operand(%d)", uint8(k))
	}
}

type OpcodeInfo struct {
	Name    string
	Operand OperandKind
}

// Width is the encoded size of the instruction in bytes.
func (i OpcodeInfo) Width() int {
	if i.Operand.HasOperand() {
		return 8
	}
	return 4
}

// The array length pins the table to the enumeration: adding an opcode
// without an entry leaves a zero Name, which TestOpcodeTableComplete rejects.
var opcodeTable = [opcodeCount]OpcodeInfo{
	OpGetDot:    {"BC_GETDOT", OperandString},
	OpSetDot:    {"BC_SETDOT", OperandString},
	OpGetInd:    {"BC_GETIND", OperandNone},
	OpSetInd:    {"BC_SETIND", OperandNone},
	OpAdd:       {"BC_OP_ADD", OperandNone},
	OpSub:       {"BC_OP_SUB", OperandNone},
	OpMul:       {"BC_OP_MUL", OperandNone},
	OpDiv:       {"BC_OP_DIV", OperandNone},
	OpRem:       {"BC_OP_REM", OperandNone},
	OpBitOr:     {"BC_BIT_OR", OperandNone},
	OpBitXor:    {"BC_BIT_XOR", OperandNone},
	OpBitAnd:    {"BC_BIT_AND", OperandNone},
	OpBitShl:    {"BC_BIT_SHL", OperandNone},
	OpBitShr:    {"BC_BIT_SHR", OperandNone},
	OpBitInv:    {"BC_BIT_INV", OperandNone},
	OpLT:        {"BC_OP_LT", OperandNone},
	OpGT:        {"BC_OP_GT", OperandNone},
	OpLTE:       {"BC_OP_LTE", OperandNone},
	OpGTE:       {"BC_OP_GTE", OperandNone},
	OpEQ:        {"BC_OP_EQ", OperandNone},
	OpNEQ:       {"BC_OP_NEQ", OperandNone},
	OpNeg:       {"BC_OP_NEG", OperandNone},
	OpPos:       {"BC_OP_POS", OperandNone},
	OpNot:       {"BC_OP_NOT", OperandNone},
	OpNop:       {"BC_NOP", OperandNone},
	OpLine:      {"BC_LINE", OperandNone},
	OpBra:       {"BC_BRA", OperandBranch},
	OpBrz:       {"BC_BRZ", OperandBranch},
	OpBrnz:      {"BC_BRNZ", OperandBranch},
	OpBrzk:      {"BC_BRZK", OperandBranch},
	OpBrnzk:     {"BC_BRNZK", OperandBranch},
	OpCall:      {"BC_CALL", OperandArgCount},
	OpRet:       {"BC_RET", OperandNone},
	OpRetV:      {"BC_RETV", OperandNone},
	OpForEach:   {"BC_FOREACH", OperandInt},
	OpPop:       {"BC_POP", OperandNone},
	OpPop2:      {"BC_POP2", OperandNone},
	OpDup:       {"BC_DUP", OperandNone},
	OpDup2:      {"BC_DUP2", OperandNone},
	OpSwap:      {"BC_SWAP", OperandNone},
	OpPushNull:  {"BC_PUSHNULL", OperandNone},
	OpPushInt:   {"BC_PUSHINT", OperandInt},
	OpPushInt0:  {"BC_PUSHINT0", OperandNone},
	OpPushInt1:  {"BC_PUSHINT1", OperandNone},
	OpPushFP:    {"BC_PUSHFP", OperandFloat},
	OpPushStr:   {"BC_PUSHSTR", OperandString},
	OpPushTbl:   {"BC_PUSHTBL", OperandNone},
	OpPushFn:    {"BC_PUSHFN", OperandFunction},
	OpPushThis:  {"BC_PUSHTHIS", OperandNone},
	OpGetLocal:  {"BC_GETLOCAL", OperandSymbol},
	OpSetLocal:  {"BC_SETLOCAL", OperandSymbol},
	OpGetGlobal: {"BC_GETGLOBAL", OperandString},
	OpSetGlobal: {"BC_SETGLOBAL", OperandString},
	OpGetThis:   {"BC_GETTHIS", OperandString},
	OpSetThis:   {"BC_SETTHIS", OperandString},
	OpFork:      {"BC_FORK", OperandNone},
}

// Info returns the table entry for op. ok is false for values outside the
// instruction set.
func (op Opcode) Info() (OpcodeInfo, bool) {
	if op >= opcodeCount {
		return OpcodeInfo{}, false
	}
	return opcodeTable[op], true
}

func (op Opcode) Valid() bool {
	return op < opcodeCount
}

func (op Opcode) String() string {
	if info, ok := op.Info(); ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(op))
}

// Opcodes returns every defined opcode in numeric order.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, opcodeCount)
	for op := Opcode(0); op < opcodeCount; op++ {
		out = append(out, op)
	}
	return out
}
