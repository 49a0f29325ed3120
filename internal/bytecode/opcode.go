package bytecode

import "fmt"

// OpCode enumerates bytecode operations.
// R[x] is a frame slot, K[x] a literal, RK(x) either of the two (see RKBit).
type OpCode uint8

const (
	OpNop OpCode = iota

	OpLoad     // A Bx      R[A] = K[Bx]
	OpLoadInt  // A sBx     R[A] = sBx
	OpLoadBool // A B       R[A] = B != 0
	OpLoadNull // A         R[A] = null
	OpLoadNone // A         R[A] = none
	OpLoadRoot // A         R[A] = root table
	OpMove     // A B       R[A] = R[B]

	OpGet         // A B C   R[A] = R[B][RK(C)]
	OpGetOrRoot   // A B C   R[A] = R[B][RK(C)], falling back to root[RK(C)]
	OpSet         // A B C   R[A][RK(B)] = RK(C), creating the key
	OpSetExisting // A B C   R[A][RK(B)] = RK(C), key must exist

	OpGetCapture // A B     R[A] = Cap[B]
	OpSetCapture // A B     Cap[A] = R[B]
	OpNewClosure // A Bx    R[A] = closure(Functions[Bx]) with defaults R[A+1..]
	OpClose      // A       bake captures of slots >= A

	OpCall   // A B        R[A] = R[A](this=R[A+1], R[A+2..A+1+B])
	OpMethod // A B C      R[A+1] = R[B]; R[A] = R[B][RK(C)]
	OpReturn // A B        return B != 0 ? R[A] : null

	OpJmp // sBx           pc += sBx
	OpJz  // A sBx         if !R[A] then pc += sBx
	OpJnz // A sBx         if R[A] then pc += sBx
	OpAnd // A B sC        R[A] = bool(R[B]); if !R[A] then pc += sC
	OpOr  // A B sC        R[A] = bool(R[B]); if R[A] then pc += sC

	OpNot    // A B        R[A] = !R[B]
	OpUnm    // A B        R[A] = -R[B]
	OpBitNot // A B        R[A] = ~R[B]
	OpTypeof // A B        R[A] = typeof R[B]

	OpAdd    // A B C      R[A] = R[B] + R[C]
	OpSub    // A B C
	OpMul    // A B C
	OpDiv    // A B C
	OpMod    // A B C
	OpExp    // A B C
	OpBitAnd // A B C
	OpBitOr  // A B C
	OpBitXor // A B C
	OpShl    // A B C
	OpShr    // A B C

	OpEq       // A B C    R[A] = R[B] == R[C]
	OpNe       // A B C
	OpStrictEq // A B C
	OpLt       // A B C
	OpLe       // A B C
	OpGt       // A B C
	OpGe       // A B C
	OpCompare  // A B C    R[A] = R[B] <=> R[C]

	OpIncr // A B C        R[B] = R[B] +/- 1; R[A] = old or new value, per IncrMode C

	OpNewTable    // A     R[A] = {}
	OpNewArray    // A     R[A] = []
	OpArrayAppend // A B   R[A].push(R[B])

	OpCheckType // A Bx    R[A] must match type mask Bx
	OpBuiltin   // A B C   R[A] = builtin[B](R[A..A+C-1])

	OpIterInit // A B      R[A] = iterator(R[B])
	OpIterNext // A sBx    R[A+1], R[A+2] = next(R[A]); pc += sBx when exhausted

	OpNewStruct // A Bx    R[A] = struct type with layout Structs[Bx]
	OpSeal      // A B     no new keys in R[A]; B != 0 also forbids writes
	OpEnumSlot  // A B C   R[A][RK(B)] = R[C] or the counter R[A+1] when R[C] is none

	opCount
)

// IncrMode selects the flavour of OpIncr.
type IncrMode int

const (
	PostIncr IncrMode = iota
	PostDecr
	PreIncr
	PreDecr
)

// IsPre reports whether the expression value is the updated one.
func (m IncrMode) IsPre() bool { return m == PreIncr || m == PreDecr }

// Delta is the amount added to the operand.
func (m IncrMode) Delta() int64 {
	if m == PostDecr || m == PreDecr {
		return -1
	}
	return 1
}

// Format describes how operands of an opcode are encoded.
type Format int

const (
	FormatABC Format = iota
	FormatABx
	FormatAsBx
	FormatABsC
)

type opInfo struct {
	name   string
	format Format
}

var opTable = [opCount]opInfo{
	OpNop:         {"NOP", FormatABC},
	OpLoad:        {"LOAD", FormatABx},
	OpLoadInt:     {"LOADINT", FormatAsBx},
	OpLoadBool:    {"LOADBOOL", FormatABC},
	OpLoadNull:    {"LOADNULL", FormatABC},
	OpLoadNone:    {"LOADNONE", FormatABC},
	OpLoadRoot:    {"LOADROOT", FormatABC},
	OpMove:        {"MOVE", FormatABC},
	OpGet:         {"GET", FormatABC},
	OpGetOrRoot:   {"GETORROOT", FormatABC},
	OpSet:         {"SET", FormatABC},
	OpSetExisting: {"SETEXISTING", FormatABC},
	OpGetCapture:  {"GETCAPTURE", FormatABC},
	OpSetCapture:  {"SETCAPTURE", FormatABC},
	OpNewClosure:  {"NEWCLOSURE", FormatABx},
	OpClose:       {"CLOSE", FormatABC},
	OpCall:        {"CALL", FormatABC},
	OpMethod:      {"METHOD", FormatABC},
	OpReturn:      {"RETURN", FormatABC},
	OpJmp:         {"JMP", FormatAsBx},
	OpJz:          {"JZ", FormatAsBx},
	OpJnz:         {"JNZ", FormatAsBx},
	OpAnd:         {"AND", FormatABsC},
	OpOr:          {"OR", FormatABsC},
	OpNot:         {"NOT", FormatABC},
	OpUnm:         {"UNM", FormatABC},
	OpBitNot:      {"BITNOT", FormatABC},
	OpTypeof:      {"TYPEOF", FormatABC},
	OpAdd:         {"ADD", FormatABC},
	OpSub:         {"SUB", FormatABC},
	OpMul:         {"MUL", FormatABC},
	OpDiv:         {"DIV", FormatABC},
	OpMod:         {"MOD", FormatABC},
	OpExp:         {"EXP", FormatABC},
	OpBitAnd:      {"BITAND", FormatABC},
	OpBitOr:       {"BITOR", FormatABC},
	OpBitXor:      {"BITXOR", FormatABC},
	OpShl:         {"SHL", FormatABC},
	OpShr:         {"SHR", FormatABC},
	OpEq:          {"EQ", FormatABC},
	OpNe:          {"NE", FormatABC},
	OpStrictEq:    {"STRICTEQ", FormatABC},
	OpLt:          {"LT", FormatABC},
	OpLe:          {"LE", FormatABC},
	OpGt:          {"GT", FormatABC},
	OpGe:          {"GE", FormatABC},
	OpCompare:     {"COMPARE", FormatABC},
	OpIncr:        {"INCR", FormatABC},
	OpNewTable:    {"NEWTABLE", FormatABC},
	OpNewArray:    {"NEWARRAY", FormatABC},
	OpArrayAppend: {"APPEND", FormatABC},
	OpCheckType:   {"CHECKTYPE", FormatABx},
	OpBuiltin:     {"BUILTIN", FormatABC},
	OpIterInit:    {"ITERINIT", FormatABC},
	OpIterNext:    {"ITERNEXT", FormatAsBx},
	OpNewStruct:   {"NEWSTRUCT", FormatABx},
	OpSeal:        {"SEAL", FormatABC},
	OpEnumSlot:    {"ENUMSLOT", FormatABC},
}

func (op OpCode) String() string {
	if op < opCount && opTable[op].name != "" {
		return opTable[op].name
	}
	return fmt.Sprintf("OP_0x%02X", uint8(op))
}

// Format reports the operand encoding of op.
func (op OpCode) Format() Format {
	if op < opCount {
		return opTable[op].format
	}
	return FormatABC
}

// IsJump reports whether op carries a relative jump offset.
func (op OpCode) IsJump() bool {
	switch op {
	case OpJmp, OpJz, OpJnz, OpAnd, OpOr, OpIterNext:
		return true
	default:
		return false
	}
}

// Type mask bits used by typed declarations and OpCheckType.
const (
	TypeNull uint32 = 1 << iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeTable
	TypeArray
	TypeFunction
	TypeUserData

	TypeNumber = TypeInt | TypeFloat
	TypeAny    = 0
)

var typeMaskNames = []struct {
	bit  uint32
	name string
}{
	{TypeNull, "null"},
	{TypeBool, "bool"},
	{TypeInt, "int"},
	{TypeFloat, "float"},
	{TypeString, "string"},
	{TypeTable, "table"},
	{TypeArray, "array"},
	{TypeFunction, "function"},
	{TypeUserData, "userdata"},
}

// TypeMaskString renders a mask as "int|float".
func TypeMaskString(mask uint32) string {
	if mask == TypeAny {
		return "any"
	}
	out := ""
	for _, t := range typeMaskNames {
		if mask&t.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += t.name
	}
	return out
}
