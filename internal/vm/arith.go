package vm

import (
	"math"
	"strings"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
)

// category groups kinds for the arithmetic dispatch matrix.
type category uint8

const (
	catNull category = iota
	catBool
	catInt
	catFloat
	catString
	catTable
	catArray
	catFunction
	catUserData
	catOther
	catCount
)

func categoryOf(v Value) category {
	switch v.Kind {
	case KindNull, KindNone:
		return catNull
	case KindBool:
		return catBool
	case KindInt:
		return catInt
	case KindFloat:
		return catFloat
	case KindString:
		return catString
	case KindTable:
		return catTable
	case KindArray:
		return catArray
	case KindClosure, KindNative:
		return catFunction
	case KindUserData:
		return catUserData
	default:
		return catOther
	}
}

// MaxStringLength bounds strings built by repetition.
const MaxStringLength = 1 << 30

type arithFunc func(vm *VM, op bytecode.OpCode, a, b Value) (Value, error)

var arithMatrix [catCount][catCount]arithFunc

var metaNames = map[bytecode.OpCode]string{
	bytecode.OpAdd:    "add",
	bytecode.OpSub:    "sub",
	bytecode.OpMul:    "mul",
	bytecode.OpDiv:    "div",
	bytecode.OpMod:    "mod",
	bytecode.OpExp:    "exp",
	bytecode.OpBitAnd: "bitand",
	bytecode.OpBitOr:  "bitor",
	bytecode.OpBitXor: "bitxor",
	bytecode.OpShl:    "lshift",
	bytecode.OpShr:    "rshift",
}

var opSymbols = map[bytecode.OpCode]string{
	bytecode.OpAdd:    "+",
	bytecode.OpSub:    "-",
	bytecode.OpMul:    "*",
	bytecode.OpDiv:    "/",
	bytecode.OpMod:    "%",
	bytecode.OpExp:    "**",
	bytecode.OpBitAnd: "&",
	bytecode.OpBitOr:  "|",
	bytecode.OpBitXor: "^",
	bytecode.OpShl:    "<<",
	bytecode.OpShr:    ">>",
}

func init() {
	for i := range arithMatrix {
		for j := range arithMatrix[i] {
			arithMatrix[i][j] = invalidArith
		}
	}
	numeric := []category{catBool, catInt, catFloat}
	for _, a := range numeric {
		for _, b := range numeric {
			arithMatrix[a][b] = numericArith
		}
	}
	arithMatrix[catString][catString] = stringStringArith
	arithMatrix[catString][catInt] = stringIntArith
	arithMatrix[catString][catBool] = stringIntArith
	for _, obj := range []category{catTable, catArray, catUserData} {
		for c := category(0); c < catCount; c++ {
			arithMatrix[obj][c] = metaArith
			arithMatrix[c][obj] = metaArith
		}
	}
}

// arith applies a binary arithmetic or bitwise opcode to a and b.
func (vm *VM) arith(op bytecode.OpCode, a, b Value) (Value, error) {
	return arithMatrix[categoryOf(a)][categoryOf(b)](vm, op, a, b)
}

func invalidArith(_ *VM, op bytecode.OpCode, a, b Value) (Value, error) {
	if a.Kind == KindString && op == bytecode.OpAdd {
		return Null(), errs.InvalidOperation.New("cannot add a string and %s, use tostring(v) to concatenate", typeName(b))
	}
	return Null(), errs.InvalidOperation.New("cannot apply '%s' to %s and %s", opSymbols[op], typeName(a), typeName(b))
}

func numericArith(_ *VM, op bytecode.OpCode, a, b Value) (Value, error) {
	if a.Kind != KindFloat && b.Kind != KindFloat {
		return intArith(op, a.Int, b.Int)
	}
	x, y := a.ToFloat(), b.ToFloat()
	switch op {
	case bytecode.OpAdd:
		return Float(x + y), nil
	case bytecode.OpSub:
		return Float(x - y), nil
	case bytecode.OpMul:
		return Float(x * y), nil
	case bytecode.OpDiv:
		return Float(x / y), nil
	case bytecode.OpMod:
		return Float(math.Mod(x, y)), nil
	case bytecode.OpExp:
		return Float(math.Pow(x, y)), nil
	}
	return Null(), errs.InvalidOperation.New("'%s' requires integer operands, got %s and %s", opSymbols[op], typeName(a), typeName(b))
}

func intArith(op bytecode.OpCode, x, y int64) (Value, error) {
	switch op {
	case bytecode.OpAdd:
		return Int(x + y), nil
	case bytecode.OpSub:
		return Int(x - y), nil
	case bytecode.OpMul:
		return Int(x * y), nil
	case bytecode.OpDiv:
		if y == 0 {
			return Null(), errs.InvalidOperation.New("integer division by zero")
		}
		return Int(x / y), nil
	case bytecode.OpMod:
		if y == 0 {
			return Null(), errs.InvalidOperation.New("integer modulo by zero")
		}
		return Int(x % y), nil
	case bytecode.OpExp:
		if y < 0 {
			return Float(math.Pow(float64(x), float64(y))), nil
		}
		return Int(ipow(x, y)), nil
	case bytecode.OpBitAnd:
		return Int(x & y), nil
	case bytecode.OpBitOr:
		return Int(x | y), nil
	case bytecode.OpBitXor:
		return Int(x ^ y), nil
	case bytecode.OpShl:
		if y < 0 {
			return Null(), errs.InvalidArgument.New("negative shift count %d", y)
		}
		return Int(x << uint64(y)), nil
	case bytecode.OpShr:
		if y < 0 {
			return Null(), errs.InvalidArgument.New("negative shift count %d", y)
		}
		return Int(x >> uint64(y)), nil
	}
	return Null(), errs.InvalidOperation.New("unknown arithmetic opcode %s", op)
}

func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func stringStringArith(_ *VM, op bytecode.OpCode, a, b Value) (Value, error) {
	x, y := a.Str, b.Str
	switch op {
	case bytecode.OpAdd:
		return String(x + y), nil
	case bytecode.OpSub:
		return String(removeAll(x, y)), nil
	case bytecode.OpDiv:
		if y == "" {
			return Null(), errs.InvalidArgument.New("cannot split by an empty string")
		}
		var parts []Value
		for _, p := range strings.Split(x, y) {
			if p != "" {
				parts = append(parts, String(p))
			}
		}
		return NewArray(parts...), nil
	case bytecode.OpMod:
		return String(commonPrefix(x, y)), nil
	}
	return invalidArith(nil, op, a, b)
}

// removeAll erases every occurrence of sub, resuming the search at the erase point.
func removeAll(s, sub string) string {
	if sub == "" {
		return s
	}
	i := 0
	for {
		j := strings.Index(s[i:], sub)
		if j < 0 {
			return s
		}
		i += j
		s = s[:i] + s[i+len(sub):]
	}
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}

func stringIntArith(_ *VM, op bytecode.OpCode, a, b Value) (Value, error) {
	s, n := a.Str, b.Int
	size := int64(len(s))
	switch op {
	case bytecode.OpSub:
		// s - n drops n leading characters; s - (-n) drops n trailing ones.
		switch {
		case n <= 0 && -n <= size:
			return String(s[:size+n]), nil
		case n > 0 && n <= size:
			return String(s[n:]), nil
		}
		return a, nil
	case bytecode.OpMul:
		if n <= 0 {
			return Null(), errs.InvalidOperation.New("cannot repeat a string %d times", n)
		}
		if size > 0 && n > MaxStringLength/size {
			return Null(), errs.InvalidOperation.New("repeating a string of length %d %d times exceeds %d bytes", size, n, MaxStringLength)
		}
		return String(strings.Repeat(s, int(n))), nil
	case bytecode.OpShl:
		if n < 0 {
			return Null(), errs.InvalidArgument.New("cannot shift a string by %d", n)
		}
		return String(s[min(n, size):]), nil
	case bytecode.OpShr:
		if n < 0 {
			return Null(), errs.InvalidArgument.New("cannot shift a string by %d", n)
		}
		return String(s[:size-min(n, size)]), nil
	}
	return invalidArith(nil, op, a, b)
}

// metaArith defers to the left operand's __operator_<op>, then the right
// operand's __operator_rhs_<op>.
func metaArith(vm *VM, op bytecode.OpCode, a, b Value) (Value, error) {
	name := metaNames[op]
	if name == "" {
		return invalidArith(vm, op, a, b)
	}
	if fn, d, ok, err := vm.findMeta(a, "__operator_"+name); err != nil {
		return Null(), err
	} else if ok {
		return vm.callArithMeta(fn, a, d, b)
	}
	if fn, d, ok, err := vm.findMeta(b, "__operator_rhs_"+name); err != nil {
		return Null(), err
	} else if ok {
		return vm.callArithMeta(fn, b, d, a)
	}
	return invalidArith(vm, op, a, b)
}

func (vm *VM) callArithMeta(fn, this, delegate, operand Value) (Value, error) {
	if !fn.IsCallable() {
		return Null(), errs.InvalidType.New("metamethod of type %s is not callable", typeName(fn))
	}
	return vm.callMeta(fn, this, delegate, operand)
}

// negate implements unary minus.
func (vm *VM) negate(v Value) (Value, error) {
	switch v.Kind {
	case KindInt, KindBool:
		return Int(-v.Int), nil
	case KindFloat:
		return Float(-v.Float), nil
	case KindTable, KindArray, KindUserData:
		fn, d, ok, err := vm.findMeta(v, metaUnm)
		if err != nil {
			return Null(), err
		}
		if ok {
			return vm.callMeta(fn, v, d)
		}
	}
	return Null(), errs.InvalidOperation.New("cannot negate %s", typeName(v))
}

func bitNot(v Value) (Value, error) {
	if v.Kind == KindInt || v.Kind == KindBool {
		return Int(^v.Int), nil
	}
	return Null(), errs.InvalidOperation.New("'~' requires an integer, got %s", typeName(v))
}
