package vm

import (
	"maps"
	"slices"

	"github.com/xirelogy/go-zscript/internal/errs"
)

// installDefaultDelegates creates the per-VM delegates used by tables, arrays and
// strings whose own delegate is null.
func (vm *VM) installDefaultDelegates() {
	vm.tableDelegate = defaultDelegate(map[string]NativeFunc{
		"size":     tableSize,
		"contains": tableContains,
	})
	vm.arrayDelegate = defaultDelegate(map[string]NativeFunc{
		"push": arrayPush,
		"pop":  arrayPop,
		"size": arraySize,
	})
	vm.strDelegate = defaultDelegate(map[string]NativeFunc{
		"size": stringSize,
	})
}

func defaultDelegate(methods map[string]NativeFunc) *Table {
	t := NewTable()
	t.Delegate = None()
	for _, name := range slices.Sorted(maps.Keys(methods)) {
		t.SetString(name, NewNative(name, methods[name]))
	}
	return t
}

func wantArgs(name string, args []Value, n int) error {
	if len(args) != n {
		return errs.InvalidParameterCount.New("%s expects %d args, got %d", name, n, len(args))
	}
	return nil
}

func tableSize(_ *VM, this Value, args []Value) (Value, error) {
	t := this.Table()
	if t == nil {
		return Null(), errs.InvalidType.New("size called on %s", typeName(this))
	}
	if err := wantArgs("size", args, 0); err != nil {
		return Null(), err
	}
	return Int(int64(t.Len())), nil
}

func tableContains(_ *VM, this Value, args []Value) (Value, error) {
	t := this.Table()
	if t == nil {
		return Null(), errs.InvalidType.New("contains called on %s", typeName(this))
	}
	if err := wantArgs("contains", args, 1); err != nil {
		return Null(), err
	}
	return Bool(t.Has(args[0])), nil
}

func arrayPush(_ *VM, this Value, args []Value) (Value, error) {
	a := this.Array()
	if a == nil {
		return Null(), errs.InvalidType.New("push called on %s", typeName(this))
	}
	a.Items = append(a.Items, args...)
	return this, nil
}

func arrayPop(_ *VM, this Value, args []Value) (Value, error) {
	a := this.Array()
	if a == nil {
		return Null(), errs.InvalidType.New("pop called on %s", typeName(this))
	}
	if err := wantArgs("pop", args, 0); err != nil {
		return Null(), err
	}
	n := len(a.Items)
	if n == 0 {
		return Null(), errs.OutOfBounds.New("pop from an empty array")
	}
	v := a.Items[n-1]
	a.Items[n-1] = Null()
	a.Items = a.Items[:n-1]
	return v, nil
}

func arraySize(_ *VM, this Value, args []Value) (Value, error) {
	a := this.Array()
	if a == nil {
		return Null(), errs.InvalidType.New("size called on %s", typeName(this))
	}
	if err := wantArgs("size", args, 0); err != nil {
		return Null(), err
	}
	return Int(int64(len(a.Items))), nil
}

func stringSize(_ *VM, this Value, args []Value) (Value, error) {
	if this.Kind != KindString {
		return Null(), errs.InvalidType.New("size called on %s", typeName(this))
	}
	if err := wantArgs("size", args, 0); err != nil {
		return Null(), err
	}
	return Int(int64(len(this.Str))), nil
}
