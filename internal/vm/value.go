package vm

import (
	"fmt"
	"math"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindArray
	KindClosure
	KindNative
	KindUserData
	KindWeakRef
	KindIterator
)

// Value is a tagged script value. It is comparable, so it can key a Table.
// Heap variants keep their pointer in ref; bools keep 0/1 in Int.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	ref   any
}

func Null() Value           { return Value{} }
func None() Value           { return Value{Kind: KindNone} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }

func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, Int: 1}
	}
	return Value{Kind: KindBool}
}

func TableValue(t *Table) Value          { return Value{Kind: KindTable, ref: t} }
func ArrayValue(a *Array) Value          { return Value{Kind: KindArray, ref: a} }
func ClosureValue(c *Closure) Value      { return Value{Kind: KindClosure, ref: c} }
func NativeValue(n *NativeClosure) Value { return Value{Kind: KindNative, ref: n} }
func UserDataValue(u *UserData) Value    { return Value{Kind: KindUserData, ref: u} }
func WeakRefValue(w *WeakRef) Value      { return Value{Kind: KindWeakRef, ref: w} }
func iteratorValue(it *iterator) Value   { return Value{Kind: KindIterator, ref: it} }

// NewNative wraps a host function.
func NewNative(name string, fn NativeFunc) Value {
	return NativeValue(&NativeClosure{Name: name, Fn: fn})
}

// NewArray builds an array value from items.
func NewArray(items ...Value) Value {
	return ArrayValue(&Array{Items: items})
}

func (v Value) IsNull() bool { return v.Kind == KindNull }
func (v Value) IsNone() bool { return v.Kind == KindNone }
func (v Value) Bool() bool   { return v.Int != 0 }

func (v Value) Table() *Table {
	t, _ := v.ref.(*Table)
	return t
}

func (v Value) Array() *Array {
	a, _ := v.ref.(*Array)
	return a
}

func (v Value) Closure() *Closure {
	c, _ := v.ref.(*Closure)
	return c
}

func (v Value) Native() *NativeClosure {
	n, _ := v.ref.(*NativeClosure)
	return n
}

func (v Value) UserData() *UserData {
	u, _ := v.ref.(*UserData)
	return u
}

func (v Value) WeakRef() *WeakRef {
	w, _ := v.ref.(*WeakRef)
	return w
}

func (v Value) iterator() *iterator {
	it, _ := v.ref.(*iterator)
	return it
}

// IsNumeric reports bool, integer and float values, which take part in arithmetic.
func (v Value) IsNumeric() bool {
	return v.Kind == KindBool || v.Kind == KindInt || v.Kind == KindFloat
}

// IsCallable reports closures and natives.
func (v Value) IsCallable() bool {
	return v.Kind == KindClosure || v.Kind == KindNative
}

// ToFloat converts a numeric value.
func (v Value) ToFloat() float64 {
	if v.Kind == KindFloat {
		return v.Float
	}
	return float64(v.Int)
}

// ToInt converts a numeric value, truncating floats.
func (v Value) ToInt() int64 {
	if v.Kind == KindFloat {
		return int64(v.Float)
	}
	return v.Int
}

// Truthy: null, none, false, 0 and 0.0 are false; everything else is true.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindNull, KindNone:
		return false
	case KindBool, KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	default:
		return true
	}
}

// Equal is loose equality: numbers compare across int, float and bool.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if a.Kind != KindFloat && b.Kind != KindFloat {
			return a.Int == b.Int
		}
		return a.ToFloat() == b.ToFloat()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull, KindNone:
		return true
	case KindString:
		return a.Str == b.Str
	default:
		return a.ref == b.ref
	}
}

// StrictEqual additionally requires identical kinds.
func StrictEqual(a, b Value) bool {
	return a.Kind == b.Kind && Equal(a, b)
}

func typeName(v Value) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindArray:
		return "array"
	case KindClosure, KindNative:
		return "function"
	case KindUserData:
		return "userdata"
	case KindWeakRef:
		return "weakref"
	case KindIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, ch := range s {
		if ch == '.' || ch == 'e' {
			return s
		}
	}
	return s + ".0"
}

// rawString renders v without consulting metamethods.
func rawString(v Value) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindNone:
		return "none"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return formatFloat(v.Float)
	case KindString:
		return v.Str
	case KindClosure:
		return fmt.Sprintf("function %s: %p", v.Closure().Proto.DisplayName(), v.ref)
	case KindNative:
		return fmt.Sprintf("native %s: %p", v.Native().Name, v.ref)
	default:
		return fmt.Sprintf("%s: %p", typeName(v), v.ref)
	}
}

func (v Value) String() string { return rawString(v) }

// normalizeKey folds integral floats onto integer keys.
func normalizeKey(k Value) Value {
	if k.Kind == KindFloat && k.Float == math.Trunc(k.Float) && !math.IsInf(k.Float, 0) &&
		k.Float >= math.MinInt64 && k.Float < math.MaxInt64 {
		return Int(int64(k.Float))
	}
	return k
}
