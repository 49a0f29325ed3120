package vm

import "github.com/xirelogy/go-zscript/internal/errs"

// TypeName reports the dynamic type name for a value.
func TypeName(v Value) string {
	return typeName(v)
}

// TypeOf is the typeof operator, including __operator_typeof.
func (vm *VM) TypeOf(v Value) (string, error) {
	return vm.typeOf(v)
}

// ToString renders v, including __operator_tostring.
func (vm *VM) ToString(v Value) (string, error) {
	return vm.toString(v)
}

// Get reads obj[key] through the delegate chain.
func (vm *VM) Get(obj, key Value) (Value, error) {
	return vm.get(obj, key)
}

// Set writes obj[key], creating the key when absent.
func (vm *VM) Set(obj, key, val Value) error {
	return vm.set(obj, key, val, true)
}

// Compare orders a and b, including __operator_compare. ordered is false for NaN.
func (vm *VM) Compare(a, b Value) (result int, ordered bool, err error) {
	return vm.compare(a, b)
}

// Size is the element count of a table, array or string.
func (vm *VM) Size(v Value) (Value, error) {
	switch v.Kind {
	case KindTable:
		return Int(int64(v.Table().Len())), nil
	case KindArray:
		return Int(int64(len(v.Array().Items))), nil
	case KindString:
		return Int(int64(len(v.Str))), nil
	case KindUserData:
		fn, d, ok, err := vm.findMeta(v, "size")
		if err != nil {
			return Null(), err
		}
		if ok {
			return vm.callMeta(fn, v, d)
		}
	}
	return Null(), errs.InvalidType.New("size of %s is undefined", typeName(v))
}

// SetDelegate replaces the delegate of a table, array or user data. d must be
// a table, null (engine default) or none (no delegate).
func SetDelegate(obj, d Value) error {
	if d.Kind != KindTable && !d.IsNull() && !d.IsNone() {
		return errs.InvalidArgument.New("delegate must be a table, null or none, got %s", typeName(d))
	}
	switch obj.Kind {
	case KindTable:
		obj.Table().Delegate = d
	case KindArray:
		obj.Array().Delegate = d
	case KindUserData:
		obj.UserData().Delegate = d
	default:
		return errs.InvalidType.New("cannot set the delegate of %s", typeName(obj))
	}
	return nil
}

// GetDelegate returns the delegate stored on obj (null when it uses the default).
func GetDelegate(obj Value) (Value, error) {
	switch obj.Kind {
	case KindTable:
		return obj.Table().Delegate, nil
	case KindArray:
		return obj.Array().Delegate, nil
	case KindUserData:
		return obj.UserData().Delegate, nil
	}
	return Null(), errs.InvalidType.New("%s has no delegate", typeName(obj))
}

// Bind returns fn with its receiver fixed to this.
func Bind(fn, this Value) (Value, error) {
	v, ok := bind(fn, this)
	if !ok {
		return Null(), errs.InvalidType.New("cannot bind %s", typeName(fn))
	}
	return v, nil
}

// Deref resolves a weak reference; other values are returned unchanged.
func Deref(v Value) Value {
	if w := v.WeakRef(); w != nil {
		return w.Deref()
	}
	return v
}
