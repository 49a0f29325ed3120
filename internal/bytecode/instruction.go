package bytecode

import "fmt"

// Instruction is a fixed-width instruction word addressed by index.
//
// Layout (low to high bits):
//
//	op:8 | A:16 | B:16 | C:16      (ABC, ABsC)
//	op:8 | A:16 | Bx:32            (ABx, AsBx)
//
// Jump offsets are relative to the index of the jump instruction itself.
type Instruction uint64

const (
	sizeOp = 8
	sizeA  = 16
	sizeB  = 16
	sizeC  = 16
	sizeBx = 32

	posA  = sizeOp
	posB  = posA + sizeA
	posC  = posB + sizeB
	posBx = posB

	MaxA  = 1<<sizeA - 1
	MaxB  = 1<<sizeB - 1
	MaxC  = 1<<sizeC - 1
	MaxBx = 1<<sizeBx - 1

	MaxSBx = 1<<(sizeBx-1) - 1
	MinSBx = -(1 << (sizeBx - 1))
	MaxSC  = 1<<(sizeC-1) - 1
	MinSC  = -(1 << (sizeC - 1))
)

// RKBit marks a key/value operand as a literal pool index instead of a register.
const RKBit = 0x8000

// MaxRKLiteral is the highest literal index that can be addressed through RK.
const MaxRKLiteral = RKBit - 1

// IsK reports whether an RK operand refers to the literal pool.
func IsK(x int) bool { return x&RKBit != 0 }

// RK encodes a literal index as an RK operand.
func RK(literal int) int { return literal | RKBit }

// IndexK decodes a literal RK operand.
func IndexK(x int) int { return x &^ RKBit }

// ABC encodes an instruction with three unsigned operands.
func ABC(op OpCode, a, b, c int) Instruction {
	return Instruction(op) |
		Instruction(uint16(a))<<posA |
		Instruction(uint16(b))<<posB |
		Instruction(uint16(c))<<posC
}

// ABsC encodes an instruction whose C operand is signed.
func ABsC(op OpCode, a, b, sc int) Instruction {
	return ABC(op, a, b, int(uint16(int16(sc))))
}

// ABx encodes an instruction with a wide unsigned operand.
func ABx(op OpCode, a, bx int) Instruction {
	return Instruction(op) |
		Instruction(uint16(a))<<posA |
		Instruction(uint32(bx))<<posBx
}

// AsBx encodes an instruction with a wide signed operand.
func AsBx(op OpCode, a, sbx int) Instruction {
	return ABx(op, a, int(uint32(int32(sbx))))
}

func (i Instruction) Op() OpCode { return OpCode(i & 0xFF) }
func (i Instruction) A() int     { return int(uint16(i >> posA)) }
func (i Instruction) B() int     { return int(uint16(i >> posB)) }
func (i Instruction) C() int     { return int(uint16(i >> posC)) }
func (i Instruction) SC() int    { return int(int16(uint16(i >> posC))) }
func (i Instruction) Bx() int    { return int(uint32(i >> posBx)) }
func (i Instruction) SBx() int   { return int(int32(uint32(i >> posBx))) }

// WithSBx returns a copy of the instruction with its sBx operand replaced.
func (i Instruction) WithSBx(sbx int) Instruction {
	return AsBx(i.Op(), i.A(), sbx)
}

// WithSC returns a copy of the instruction with its sC operand replaced.
func (i Instruction) WithSC(sc int) Instruction {
	return ABsC(i.Op(), i.A(), i.B(), sc)
}

func (i Instruction) String() string {
	op := i.Op()
	switch op.Format() {
	case FormatABx:
		return fmt.Sprintf("%s %d %d", op, i.A(), i.Bx())
	case FormatAsBx:
		return fmt.Sprintf("%s %d %d", op, i.A(), i.SBx())
	case FormatABsC:
		return fmt.Sprintf("%s %d %d %d", op, i.A(), i.B(), i.SC())
	default:
		return fmt.Sprintf("%s %d %d %d", op, i.A(), i.B(), i.C())
	}
}
