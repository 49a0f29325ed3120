package vm

import (
	"math"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
)

// Metamethod names looked up along delegate chains.
const (
	metaGet      = "__operator_get"
	metaSet      = "__operator_set"
	metaCall     = "__operator_call"
	metaTypeof   = "__operator_typeof"
	metaToString = "__operator_tostring"
	metaCompare  = "__operator_compare"
	metaUnm      = "__operator_unm"
)

// delegateOf returns the delegate consulted after v itself.
func (vm *VM) delegateOf(v Value) (Value, bool) {
	var d Value
	switch v.Kind {
	case KindTable:
		d = v.Table().Delegate
		if d.IsNull() {
			d = TableValue(vm.tableDelegate)
		}
	case KindArray:
		d = v.Array().Delegate
		if d.IsNull() {
			d = TableValue(vm.arrayDelegate)
		}
	case KindUserData:
		d = v.UserData().Delegate
	case KindString:
		d = TableValue(vm.strDelegate)
	default:
		return Null(), false
	}
	if d.IsNull() || d.IsNone() {
		return Null(), false
	}
	return d, true
}

func (vm *VM) isDefaultDelegate(t *Table) bool {
	return t == vm.tableDelegate || t == vm.arrayDelegate || t == vm.strDelegate
}

// nextDelegate steps one link down the chain of holder, enforcing the depth bound.
// Default delegates terminate a chain and are not counted.
func (vm *VM) nextDelegate(holder Value, depth *int) (Value, *Table, bool, error) {
	d, ok := vm.delegateOf(holder)
	if !ok {
		return Null(), nil, false, nil
	}
	dt := d.Table()
	if dt == nil {
		return Null(), nil, false, errs.InvalidType.New("delegate of type %s is not a table", typeName(d))
	}
	if !vm.isDefaultDelegate(dt) {
		*depth++
		if *depth > vm.cfg.MaxDelegateDepth {
			return Null(), nil, false, errs.Inaccessible.New("delegate chain exceeds %d levels", vm.cfg.MaxDelegateDepth)
		}
	}
	return d, dt, true, nil
}

func indexable(v Value) bool {
	switch v.Kind {
	case KindTable, KindArray, KindString, KindUserData:
		return true
	}
	return false
}

// get reads obj[key]: the direct representation first, then the delegate chain.
func (vm *VM) get(obj, key Value) (Value, error) {
	if !indexable(obj) {
		return Null(), errs.InvalidType.New("cannot index a value of type %s", typeName(obj))
	}
	v, ok, err := rawGet(obj, key)
	if err != nil || ok {
		return v, err
	}
	depth := 0
	v, ok, err = vm.resolve(obj, obj, key, &depth)
	if err != nil {
		return Null(), err
	}
	if !ok {
		return Null(), errs.NotFound.New("%s not found in %s", describeKey(key), typeName(obj))
	}
	return v, nil
}

// rawGet reads the value's own storage. Integer indexes on arrays and strings
// wrap when negative and are out_of_bounds past either end.
func rawGet(obj, key Value) (Value, bool, error) {
	switch obj.Kind {
	case KindTable:
		v, ok := obj.Table().Get(key)
		return v, ok, nil
	case KindArray:
		idx, ok := intKey(key)
		if !ok {
			return Null(), false, nil
		}
		items := obj.Array().Items
		i, err := wrapIndex(idx, len(items))
		if err != nil {
			return Null(), false, err
		}
		return items[i], true, nil
	case KindString:
		idx, ok := intKey(key)
		if !ok {
			return Null(), false, nil
		}
		i, err := wrapIndex(idx, len(obj.Str))
		if err != nil {
			return Null(), false, err
		}
		return Int(int64(obj.Str[i])), true, nil
	}
	return Null(), false, nil
}

func intKey(k Value) (int64, bool) {
	k = normalizeKey(k)
	if k.Kind == KindInt {
		return k.Int, true
	}
	return 0, false
}

func wrapIndex(idx int64, n int) (int, error) {
	i := idx
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, errs.OutOfBounds.New("index %d out of bounds for length %d", idx, n)
	}
	return int(i), nil
}

// resolve walks the delegates of holder looking up key on behalf of obj.
func (vm *VM) resolve(obj, holder, key Value, depth *int) (Value, bool, error) {
	for {
		d, dt, ok, err := vm.nextDelegate(holder, depth)
		if err != nil || !ok {
			return Null(), false, err
		}
		if v, ok := dt.Get(key); ok {
			return v, true, nil
		}
		if op, ok := dt.GetString(metaGet); ok {
			switch {
			case op.Kind == KindTable:
				if v, ok := op.Table().Get(key); ok {
					return v, true, nil
				}
				v, ok, err := vm.resolve(obj, op, key, depth)
				if err != nil || ok {
					return v, ok, err
				}
			case op.IsCallable():
				v, err := vm.callMeta(op, obj, d, key)
				if err != nil {
					return Null(), false, err
				}
				if !v.IsNone() {
					return v, true, nil
				}
			default:
				return Null(), false, errs.InvalidType.New("%s of type %s is not callable", metaGet, typeName(op))
			}
		}
		holder = d
	}
}

// set writes obj[key] = val. Existing table keys are overwritten in place; misses
// consult __operator_set along the chain and are created only when create is set.
func (vm *VM) set(obj, key, val Value, create bool) error {
	switch obj.Kind {
	case KindTable:
		if key.Kind == KindFloat && math.IsNaN(key.Float) {
			return errs.InvalidArgument.New("table key cannot be NaN")
		}
		t := obj.Table()
		exists := t.Has(key)
		if t.sealed {
			if err := t.checkWrite(key, val, exists); err != nil {
				return err
			}
		}
		if exists {
			t.Set(key, val)
			return nil
		}
		handled, err := vm.setDelegated(obj, key, val)
		if err != nil || handled {
			return err
		}
		if !create {
			return errs.NotFound.New("%s not found in table", describeKey(key))
		}
		if key.IsNull() {
			return errs.InvalidArgument.New("table key cannot be null")
		}
		t.Set(key, val)
		return nil
	case KindArray:
		if idx, ok := intKey(key); ok {
			items := obj.Array().Items
			i, err := wrapIndex(idx, len(items))
			if err != nil {
				return err
			}
			items[i] = val
			return nil
		}
		handled, err := vm.setDelegated(obj, key, val)
		if err != nil || handled {
			return err
		}
		return errs.InvalidType.New("array index must be an integer, got %s", typeName(key))
	case KindUserData:
		handled, err := vm.setDelegated(obj, key, val)
		if err != nil || handled {
			return err
		}
		return errs.NotFound.New("%s not found in userdata", describeKey(key))
	case KindString:
		return errs.InvalidOperation.New("strings are immutable")
	}
	return errs.InvalidType.New("cannot index a value of type %s", typeName(obj))
}

// checkWrite enforces the layout of sealed tables: enums reject every write,
// structs reject new keys, const fields after construction and mistyped values.
func (t *Table) checkWrite(key, val Value, exists bool) error {
	if t.frozen {
		return errs.Inaccessible.New("cannot write %s: table is read-only", describeKey(key))
	}
	if !exists {
		return errs.Inaccessible.New("cannot add %s to a sealed table", describeKey(key))
	}
	if t.schema == nil || key.Kind != KindString {
		return nil
	}
	f, ok := t.schema.Field(key.Str)
	if !ok {
		return nil
	}
	if f.Const && !t.initializing {
		return errs.Inaccessible.New("cannot write const field %s", f.Name)
	}
	if !MatchesType(val, f.Mask) {
		return errs.InvalidType.New("field %s expects %s, got %s", f.Name, bytecode.TypeMaskString(f.Mask), typeName(val))
	}
	return nil
}

func (vm *VM) setDelegated(obj, key, val Value) (bool, error) {
	depth := 0
	holder := obj
	for {
		d, dt, ok, err := vm.nextDelegate(holder, &depth)
		if err != nil || !ok {
			return false, err
		}
		if op, ok := dt.GetString(metaSet); ok {
			switch {
			case op.Kind == KindTable:
				op.Table().Set(key, val)
				return true, nil
			case op.IsCallable():
				v, err := vm.callMeta(op, obj, d, key, val)
				if err != nil {
					return false, err
				}
				if !v.IsNone() {
					return true, nil
				}
			default:
				return false, errs.InvalidType.New("%s of type %s is not callable", metaSet, typeName(op))
			}
		}
		holder = d
	}
}

// findMeta looks name up with plain lookups along the delegate chain of obj.
// It returns the metamethod and the delegate that holds it.
func (vm *VM) findMeta(obj Value, name string) (Value, Value, bool, error) {
	depth := 0
	holder := obj
	key := String(name)
	for {
		d, dt, ok, err := vm.nextDelegate(holder, &depth)
		if err != nil || !ok {
			return Null(), Null(), false, err
		}
		if v, ok := dt.Get(key); ok && !v.IsNull() {
			return v, d, true, nil
		}
		holder = d
	}
}

// callMeta calls a metamethod with this bound to the receiver. Script closures
// declaring more parameters than there are operands also receive the delegate;
// natives always do.
func (vm *VM) callMeta(fn, this, delegate Value, operands ...Value) (Value, error) {
	args := operands
	if wantsDelegate(fn, len(operands)) {
		args = make([]Value, len(operands), len(operands)+1)
		copy(args, operands)
		args = append(args, delegate)
	}
	return vm.call(fn, this, args)
}

func wantsDelegate(fn Value, operands int) bool {
	if cl := fn.Closure(); cl != nil {
		return cl.Proto.NumFixed() > operands
	}
	return fn.Kind == KindNative
}

// typeOf names the type of v, honouring __operator_typeof.
func (vm *VM) typeOf(v Value) (string, error) {
	if v.Kind == KindTable || v.Kind == KindUserData || v.Kind == KindArray {
		fn, d, ok, err := vm.findMeta(v, metaTypeof)
		if err != nil {
			return "", err
		}
		if ok {
			r, err := vm.callMeta(fn, v, d)
			if err != nil {
				return "", err
			}
			if r.Kind == KindString {
				return r.Str, nil
			}
			return "", errs.InvalidType.New("%s returned %s, expected string", metaTypeof, typeName(r))
		}
	}
	return typeName(v), nil
}

// toString renders v, honouring __operator_tostring.
func (vm *VM) toString(v Value) (string, error) {
	if v.Kind == KindTable || v.Kind == KindUserData || v.Kind == KindArray {
		fn, d, ok, err := vm.findMeta(v, metaToString)
		if err != nil {
			return "", err
		}
		if ok {
			r, err := vm.callMeta(fn, v, d)
			if err != nil {
				return "", err
			}
			return rawString(r), nil
		}
	}
	if v.Kind == KindArray {
		return vm.arrayString(v.Array(), 0)
	}
	return rawString(v), nil
}

func (vm *VM) arrayString(a *Array, depth int) (string, error) {
	if depth > vm.cfg.MaxDelegateDepth {
		return "[...]", nil
	}
	out := "["
	for i, item := range a.Items {
		if i > 0 {
			out += ", "
		}
		var s string
		var err error
		switch item.Kind {
		case KindArray:
			s, err = vm.arrayString(item.Array(), depth+1)
		case KindString:
			s = "\"" + item.Str + "\""
		default:
			s, err = vm.toString(item)
		}
		if err != nil {
			return "", err
		}
		out += s
	}
	return out + "]", nil
}

func describeKey(k Value) string {
	if k.Kind == KindString {
		return "'" + k.Str + "'"
	}
	return rawString(k)
}
