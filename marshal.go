package zscript

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/vm"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	valueType = reflect.TypeOf(Value{})
)

// ArgError represents a typed argument validation error for host functions.
type ArgError struct {
	Name string
	Want string
	Got  string
}

func (e ArgError) Error() string {
	switch {
	case e.Name != "" && e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %q: want %s, got %s", e.Name, e.Want, e.Got)
	case e.Name != "" && e.Want != "":
		return fmt.Sprintf("argument %q: want %s", e.Name, e.Want)
	case e.Want != "" && e.Got != "":
		return fmt.Sprintf("want %s, got %s", e.Want, e.Got)
	default:
		return "argument error"
	}
}

// Marshaler allows custom control over Go→script conversion.
type Marshaler interface {
	MarshalZScript() (Value, error)
}

// Unmarshaler allows custom control over script→Go conversion in Unmarshal.
type Unmarshaler interface {
	UnmarshalZScript(Value) error
}

// NewValue marshals a Go value into a script value.
//
// Integers become script integers, floats become floats, slices and arrays become
// arrays, maps and structs become tables and Go functions become natives (see
// MarshalFunctionMap for the supported signatures). Struct fields honour a
// `zscript:"name"` tag; "-" skips the field.
func NewValue(val any) (Value, error) {
	v, err := marshalGoValue(val)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// MustValue marshals and panics on error (convenience for tests/examples).
func MustValue(val any) Value {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

// MarshalFunctionMap converts a map of Go functions into a table of natives.
// Supported signatures:
//
//	func(...) T
//	func(...) (T, error)
//	func(...) error
//	func(...), which returns null
//
// Where T is any type supported by NewValue marshaling.
func MarshalFunctionMap(funcs map[string]any) (Value, error) {
	if funcs == nil {
		return Value{}, errors.New("nil function map")
	}
	t := vm.NewTable()
	for name, fn := range funcs {
		hostFn, err := functionFromGo(name, fn)
		if err != nil {
			return Value{}, fmt.Errorf("marshal function %s: %w", name, err)
		}
		t.SetString(name, hostFn.native(name))
	}
	return Value{v: vm.TableValue(t)}, nil
}

// MustMarshalFunctionMap panics on error; convenience for tests/bootstrap.
func MustMarshalFunctionMap(funcs map[string]any) Value {
	v, err := MarshalFunctionMap(funcs)
	if err != nil {
		panic(err)
	}
	return v
}

func functionFromGo(name string, fn any) (*Function, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, fmt.Errorf("value of %s is not a function", name)
	}
	if rt.IsVariadic() {
		return nil, fmt.Errorf("function %s is variadic", name)
	}
	if rt.NumOut() > 2 {
		return nil, fmt.Errorf("function %s has too many return values (max 2)", name)
	}
	retValIndex := -1
	retErrIndex := -1
	switch rt.NumOut() {
	case 0:
	case 1:
		if rt.Out(0) == errorType {
			retErrIndex = 0
		} else {
			retValIndex = 0
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, fmt.Errorf("function %s second return value must be error", name)
		}
		retValIndex = 0
		retErrIndex = 1
	}

	paramNames := make([]string, rt.NumIn())
	for i := range paramNames {
		paramNames[i] = fmt.Sprintf("arg%d", i)
	}

	handler := func(_ *Context, args map[string]Value) (Value, error) {
		inputs := make([]reflect.Value, rt.NumIn())
		for i := 0; i < rt.NumIn(); i++ {
			arg, ok := args[paramNames[i]]
			if !ok {
				return Value{}, ArgError{Name: paramNames[i], Want: "present"}
			}
			val, err := convertValue(arg, rt.In(i))
			if err != nil {
				return Value{}, fmt.Errorf("argument %s: %w", paramNames[i], err)
			}
			inputs[i] = val
		}
		results := rv.Call(inputs)
		if retErrIndex >= 0 && !results[retErrIndex].IsNil() {
			return Value{}, results[retErrIndex].Interface().(error)
		}
		if retValIndex >= 0 {
			mv, err := marshalGoValue(results[retValIndex].Interface())
			if err != nil {
				return Value{}, err
			}
			return Value{v: mv}, nil
		}
		return Value{v: vm.Null()}, nil
	}

	return &Function{
		Params:  paramNames,
		Handler: handler,
	}, nil
}

func convertValue(src Value, targetType reflect.Type) (reflect.Value, error) {
	if targetType == valueType {
		return reflect.ValueOf(src), nil
	}
	ptr := reflect.New(targetType)
	if err := assignValue(src.v, ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// marshalGoValue converts common Go types into vm.Value.
func marshalGoValue(val any) (vm.Value, error) {
	if m, ok := val.(Marshaler); ok {
		custom, err := m.MarshalZScript()
		if err != nil {
			return vm.Value{}, err
		}
		return custom.v, nil
	}
	switch v := val.(type) {
	case Value:
		return v.v, nil
	case nil:
		return vm.Null(), nil
	case bool:
		return vm.Bool(v), nil
	case int:
		return vm.Int(int64(v)), nil
	case int64:
		return vm.Int(v), nil
	case float64:
		return vm.Float(v), nil
	case string:
		return vm.String(v), nil
	case error:
		return vm.String(v.Error()), nil
	case []any:
		out := make([]vm.Value, len(v))
		for i, el := range v {
			mv, err := marshalGoValue(el)
			if err != nil {
				return vm.Value{}, err
			}
			out[i] = mv
		}
		return vm.NewArray(out...), nil
	case []Value:
		out := make([]vm.Value, len(v))
		for i, el := range v {
			out[i] = el.v
		}
		return vm.NewArray(out...), nil
	case map[string]any:
		t := vm.NewTable()
		for _, k := range sortedKeys(v) {
			mv, err := marshalGoValue(v[k])
			if err != nil {
				return vm.Value{}, err
			}
			t.SetString(k, mv)
		}
		return vm.TableValue(t), nil
	case *Function:
		return v.native(""), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return vm.Null(), nil
		}
		return marshalGoValue(rv.Elem().Interface())
	case reflect.Bool:
		return vm.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.Int(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return vm.Float(rv.Float()), nil
	case reflect.String:
		return vm.String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return vm.Null(), nil
		}
		out := make([]vm.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			mv, err := marshalGoValue(rv.Index(i).Interface())
			if err != nil {
				return vm.Value{}, err
			}
			out[i] = mv
		}
		return vm.NewArray(out...), nil
	case reflect.Map:
		if rv.IsNil() {
			return vm.Null(), nil
		}
		t := vm.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			k, err := marshalGoValue(iter.Key().Interface())
			if err != nil {
				return vm.Value{}, err
			}
			mv, err := marshalGoValue(iter.Value().Interface())
			if err != nil {
				return vm.Value{}, err
			}
			t.Set(k, mv)
		}
		return vm.TableValue(t), nil
	case reflect.Struct:
		t := vm.NewTable()
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			name, ok := fieldName(field)
			if !ok {
				continue
			}
			mv, err := marshalGoValue(rv.Field(i).Interface())
			if err != nil {
				return vm.Value{}, err
			}
			t.SetString(name, mv)
		}
		return vm.TableValue(t), nil
	case reflect.Func:
		if rv.IsNil() {
			return vm.Null(), nil
		}
		fn, err := functionFromGo("", val)
		if err != nil {
			return vm.Value{}, err
		}
		return fn.native(""), nil
	}
	return vm.Value{}, fmt.Errorf("unsupported value type %T", val)
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// fieldName applies the zscript struct tag. Unexported fields are skipped.
func fieldName(field reflect.StructField) (string, bool) {
	if field.PkgPath != "" {
		return "", false
	}
	tag := field.Tag.Get("zscript")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return field.Name, true
}

// unmarshalToGo converts a vm.Value into plain Go values for Raw().
// Tables with only string keys become map[string]any, other tables map[any]any.
func unmarshalToGo(v vm.Value, seen map[any]bool) (any, error) {
	switch v.Kind {
	case vm.KindNull, vm.KindNone:
		return nil, nil
	case vm.KindBool:
		return v.Bool(), nil
	case vm.KindInt:
		return v.Int, nil
	case vm.KindFloat:
		return v.Float, nil
	case vm.KindString:
		return v.Str, nil
	case vm.KindArray:
		a := v.Array()
		if seen[a] {
			return nil, errs.InvalidArgument.New("cyclic array cannot be converted")
		}
		seen[a] = true
		defer delete(seen, a)
		out := make([]any, len(a.Items))
		for i, el := range a.Items {
			val, err := unmarshalToGo(el, seen)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case vm.KindTable:
		t := v.Table()
		if seen[t] {
			return nil, errs.InvalidArgument.New("cyclic table cannot be converted")
		}
		seen[t] = true
		defer delete(seen, t)
		return tableToGo(t, seen)
	case vm.KindUserData:
		return v.UserData().Data, nil
	case vm.KindWeakRef:
		return unmarshalToGo(vm.Deref(v), seen)
	case vm.KindClosure, vm.KindNative:
		return nil, errors.New("Raw() not supported on function values; use AsFunction")
	default:
		return nil, fmt.Errorf("unsupported value kind %s", vm.TypeName(v))
	}
}

func tableToGo(t *vm.Table, seen map[any]bool) (any, error) {
	stringKeys := true
	t.Range(func(k, _ vm.Value) bool {
		stringKeys = k.Kind == vm.KindString
		return stringKeys
	})
	if stringKeys {
		out := make(map[string]any, t.Len())
		var err error
		t.Range(func(k, el vm.Value) bool {
			var val any
			val, err = unmarshalToGo(el, seen)
			out[k.Str] = val
			return err == nil
		})
		return out, err
	}
	out := make(map[any]any, t.Len())
	var err error
	t.Range(func(k, el vm.Value) bool {
		var key, val any
		if key, err = unmarshalToGo(k, seen); err != nil {
			return false
		}
		if key == nil || !reflect.TypeOf(key).Comparable() {
			err = errs.InvalidArgument.New("table key of type %s cannot be converted", vm.TypeName(k))
			return false
		}
		val, err = unmarshalToGo(el, seen)
		out[key] = val
		return err == nil
	})
	return out, err
}

// Unmarshal assigns a script value into a Go target using reflection.
// Supports primitives, slices, maps, structs, Value and Unmarshaler.
func Unmarshal(val Value, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	if u, ok := target.(Unmarshaler); ok {
		return u.UnmarshalZScript(val)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("target must be non-nil pointer")
	}
	return assignValue(val.v, rv.Elem())
}

func assignValue(src vm.Value, dst reflect.Value) error {
	if !dst.CanSet() {
		return errors.New("cannot set target")
	}
	if dst.Type() == valueType {
		dst.Set(reflect.ValueOf(Value{v: src}))
		return nil
	}
	src = vm.Deref(src)
	switch dst.Kind() {
	case reflect.Interface:
		raw, err := unmarshalToGo(src, map[any]bool{})
		if err != nil {
			return err
		}
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(dst.Type()) {
			return ArgError{Want: dst.Type().String(), Got: vm.TypeName(src)}
		}
		dst.Set(rv)
		return nil
	case reflect.Pointer:
		if src.IsNull() || src.IsNone() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		ptr := reflect.New(dst.Type().Elem())
		if err := assignValue(src, ptr.Elem()); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	case reflect.Bool:
		if src.Kind != vm.KindBool {
			return ArgError{Want: "boolean", Got: vm.TypeName(src)}
		}
		dst.SetBool(src.Bool())
		return nil
	case reflect.String:
		if src.Kind != vm.KindString {
			return ArgError{Want: "string", Got: vm.TypeName(src)}
		}
		dst.SetString(src.Str)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !src.IsNumeric() {
			return ArgError{Want: "integer", Got: vm.TypeName(src)}
		}
		n := src.ToInt()
		if dst.OverflowInt(n) {
			return ArgError{Want: dst.Kind().String(), Got: fmt.Sprintf("out of range %d", n)}
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if !src.IsNumeric() {
			return ArgError{Want: "integer", Got: vm.TypeName(src)}
		}
		n := src.ToInt()
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return ArgError{Want: dst.Kind().String(), Got: fmt.Sprintf("out of range %d", n)}
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		if !src.IsNumeric() {
			return ArgError{Want: "float", Got: vm.TypeName(src)}
		}
		dst.SetFloat(src.ToFloat())
		return nil
	case reflect.Slice:
		if src.IsNull() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if src.Kind != vm.KindArray {
			return ArgError{Want: "array", Got: vm.TypeName(src)}
		}
		items := src.Array().Items
		dst.Set(reflect.MakeSlice(dst.Type(), len(items), len(items)))
		for i := range items {
			if err := assignValue(items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Array:
		if src.Kind != vm.KindArray {
			return ArgError{Want: "array", Got: vm.TypeName(src)}
		}
		items := src.Array().Items
		if len(items) != dst.Len() {
			return fmt.Errorf("array length mismatch: have %d want %d", len(items), dst.Len())
		}
		for i := range items {
			if err := assignValue(items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if src.IsNull() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if src.Kind != vm.KindTable {
			return ArgError{Want: "table", Got: vm.TypeName(src)}
		}
		t := src.Table()
		dst.Set(reflect.MakeMapWithSize(dst.Type(), t.Len()))
		var err error
		t.Range(func(k, v vm.Value) bool {
			key := reflect.New(dst.Type().Key()).Elem()
			if err = assignValue(k, key); err != nil {
				return false
			}
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err = assignValue(v, elem); err != nil {
				return false
			}
			dst.SetMapIndex(key, elem)
			return true
		})
		return err
	case reflect.Struct:
		if src.Kind != vm.KindTable {
			return ArgError{Want: "table", Got: vm.TypeName(src)}
		}
		t := src.Table()
		rt := dst.Type()
		for i := 0; i < rt.NumField(); i++ {
			name, ok := fieldName(rt.Field(i))
			if !ok {
				continue
			}
			if val, ok := t.GetString(name); ok {
				if err := assignValue(val, dst.Field(i)); err != nil {
					return fmt.Errorf("field %s: %w", name, err)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported unmarshal target kind %s", dst.Kind())
	}
}
