package zscript

import (
	"fmt"
	"math"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/vm"
)

// cborEncMode uses canonical mode so equal values encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("zscript: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeCBOR serializes a data value (null, booleans, numbers, strings, arrays
// and tables of those) to CBOR. Functions and cyclic structures are rejected.
func EncodeCBOR(v Value) ([]byte, error) {
	raw, err := v.Raw()
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	return cborEncMode.Marshal(raw)
}

// DecodeCBOR deserializes CBOR into a fresh script value. Map entries are
// inserted in key order; byte strings become strings.
func DecodeCBOR(data []byte) (Value, error) {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("cbor: unmarshal: %w", err)
	}
	v, err := fromCBOR(raw)
	if err != nil {
		return Value{}, fmt.Errorf("cbor: %w", err)
	}
	return Value{v: v}, nil
}

func fromCBOR(raw any) (vm.Value, error) {
	switch x := raw.(type) {
	case nil:
		return vm.Null(), nil
	case bool:
		return vm.Bool(x), nil
	case int64:
		return vm.Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return vm.Null(), errs.InvalidArgument.New("integer %d overflows", x)
		}
		return vm.Int(int64(x)), nil
	case float32:
		return vm.Float(float64(x)), nil
	case float64:
		return vm.Float(x), nil
	case string:
		return vm.String(x), nil
	case []byte:
		return vm.String(string(x)), nil
	case []any:
		items := make([]vm.Value, len(x))
		for i, el := range x {
			v, err := fromCBOR(el)
			if err != nil {
				return vm.Null(), err
			}
			items[i] = v
		}
		return vm.NewArray(items...), nil
	case map[any]any:
		type entry struct{ k, v vm.Value }
		entries := make([]entry, 0, len(x))
		for rk, rv := range x {
			k, err := fromCBOR(rk)
			if err != nil {
				return vm.Null(), err
			}
			if k.IsNull() {
				return vm.Null(), errs.InvalidArgument.New("null table key")
			}
			v, err := fromCBOR(rv)
			if err != nil {
				return vm.Null(), err
			}
			entries = append(entries, entry{k, v})
		}
		slices.SortFunc(entries, func(a, b entry) int {
			return compareKeys(a.k, b.k)
		})
		t := vm.NewTable()
		for _, e := range entries {
			t.Set(e.k, e.v)
		}
		return vm.TableValue(t), nil
	case cbor.Tag:
		return vm.Null(), errs.InvalidType.New("unsupported cbor tag %d", x.Number)
	}
	return marshalGoValue(raw)
}

// compareKeys orders numbers before strings, then by value.
func compareKeys(a, b vm.Value) int {
	an, bn := a.IsNumeric(), b.IsNumeric()
	switch {
	case an && bn:
		switch fa, fb := a.ToFloat(), b.ToFloat(); {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	switch sa, sb := a.String(), b.String(); {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
