package vm

import "weak"

// WeakRef refers to a heap value without keeping it alive. Scalars are held directly.
type WeakRef struct {
	kind     Kind
	table    weak.Pointer[Table]
	array    weak.Pointer[Array]
	closure  weak.Pointer[Closure]
	native   weak.Pointer[NativeClosure]
	userdata weak.Pointer[UserData]
	scalar   Value
}

func NewWeakRef(v Value) *WeakRef {
	w := &WeakRef{kind: v.Kind}
	switch v.Kind {
	case KindTable:
		w.table = weak.Make(v.Table())
	case KindArray:
		w.array = weak.Make(v.Array())
	case KindClosure:
		w.closure = weak.Make(v.Closure())
	case KindNative:
		w.native = weak.Make(v.Native())
	case KindUserData:
		w.userdata = weak.Make(v.UserData())
	case KindWeakRef:
		return v.WeakRef()
	default:
		w.scalar = v
	}
	return w
}

// Deref returns the referenced value, or null once it has been collected.
func (w *WeakRef) Deref() Value {
	switch w.kind {
	case KindTable:
		if p := w.table.Value(); p != nil {
			return TableValue(p)
		}
	case KindArray:
		if p := w.array.Value(); p != nil {
			return ArrayValue(p)
		}
	case KindClosure:
		if p := w.closure.Value(); p != nil {
			return ClosureValue(p)
		}
	case KindNative:
		if p := w.native.Value(); p != nil {
			return NativeValue(p)
		}
	case KindUserData:
		if p := w.userdata.Value(); p != nil {
			return UserDataValue(p)
		}
	default:
		return w.scalar
	}
	return Null()
}
