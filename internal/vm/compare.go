package vm

import (
	"math"
	"strings"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
)

// compare orders a and b. ordered is false when either side is NaN.
func (vm *VM) compare(a, b Value) (result int, ordered bool, err error) {
	switch {
	case a.IsNumeric() && b.IsNumeric():
		if a.Kind != KindFloat && b.Kind != KindFloat {
			return cmpInt(a.Int, b.Int), true, nil
		}
		x, y := a.ToFloat(), b.ToFloat()
		if math.IsNaN(x) || math.IsNaN(y) {
			return 0, false, nil
		}
		switch {
		case x < y:
			return -1, true, nil
		case x > y:
			return 1, true, nil
		}
		return 0, true, nil
	case a.Kind == KindString && b.Kind == KindString:
		return strings.Compare(a.Str, b.Str), true, nil
	}
	for i, pair := range [2][2]Value{{a, b}, {b, a}} {
		obj := pair[0]
		if obj.Kind != KindTable && obj.Kind != KindUserData && obj.Kind != KindArray {
			continue
		}
		fn, d, ok, err := vm.findMeta(obj, metaCompare)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		r, err := vm.callMeta(fn, obj, d, pair[1])
		if err != nil {
			return 0, false, err
		}
		if !r.IsNumeric() {
			return 0, false, errs.InvalidType.New("%s returned %s, expected a number", metaCompare, typeName(r))
		}
		c := sign(r)
		if i == 1 {
			c = -c
		}
		return c, true, nil
	}
	return 0, false, errs.InvalidOperation.New("cannot compare %s and %s", typeName(a), typeName(b))
}

func cmpInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func sign(v Value) int {
	if v.Kind == KindFloat {
		switch {
		case v.Float < 0:
			return -1
		case v.Float > 0:
			return 1
		}
		return 0
	}
	return cmpInt(v.Int, 0)
}

// relational evaluates <, <=, > and >=. Unordered operands yield false.
func (vm *VM) relational(op bytecode.OpCode, a, b Value) (bool, error) {
	c, ordered, err := vm.compare(a, b)
	if err != nil || !ordered {
		return false, err
	}
	switch op {
	case bytecode.OpLt:
		return c < 0, nil
	case bytecode.OpLe:
		return c <= 0, nil
	case bytecode.OpGt:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}
