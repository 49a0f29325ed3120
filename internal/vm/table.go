package vm

import "github.com/xirelogy/go-zscript/internal/bytecode"

// Table is an insertion-ordered hash table. A null Delegate selects the engine's
// default table delegate; none disables delegation.
type Table struct {
	keys     []Value
	vals     []Value
	index    map[Value]int
	Delegate Value

	// struct types and instances
	schema       *bytecode.StructInfo
	instance     bool
	initializing bool

	sealed bool // no new keys
	frozen bool // no writes at all
}

func NewTable() *Table {
	return &Table{index: make(map[Value]int)}
}

func (t *Table) Len() int { return len(t.keys) }

func (t *Table) Get(k Value) (Value, bool) {
	i, ok := t.index[normalizeKey(k)]
	if !ok {
		return Null(), false
	}
	return t.vals[i], true
}

// GetString is a shorthand for string keys.
func (t *Table) GetString(k string) (Value, bool) {
	return t.Get(String(k))
}

func (t *Table) Has(k Value) bool {
	_, ok := t.index[normalizeKey(k)]
	return ok
}

func (t *Table) Set(k, v Value) {
	k = normalizeKey(k)
	if i, ok := t.index[k]; ok {
		t.vals[i] = v
		return
	}
	t.index[k] = len(t.keys)
	t.keys = append(t.keys, k)
	t.vals = append(t.vals, v)
}

func (t *Table) SetString(k string, v Value) { t.Set(String(k), v) }

// Delete removes k, keeping the order of the remaining entries.
func (t *Table) Delete(k Value) bool {
	k = normalizeKey(k)
	i, ok := t.index[k]
	if !ok {
		return false
	}
	delete(t.index, k)
	t.keys = append(t.keys[:i], t.keys[i+1:]...)
	t.vals = append(t.vals[:i], t.vals[i+1:]...)
	for j := i; j < len(t.keys); j++ {
		t.index[t.keys[j]] = j
	}
	return true
}

// Entry returns the i-th entry in insertion order.
func (t *Table) Entry(i int) (Value, Value) {
	return t.keys[i], t.vals[i]
}

// Range calls fn for each entry in insertion order until it returns false.
func (t *Table) Range(fn func(k, v Value) bool) {
	for i := 0; i < len(t.keys); i++ {
		if !fn(t.keys[i], t.vals[i]) {
			return
		}
	}
}

// Array is a growable list of values.
type Array struct {
	Items    []Value
	Delegate Value
}

// UserData wraps a host object.
type UserData struct {
	Data     any
	Delegate Value
}

func NewUserData(data any, delegate Value) Value {
	return UserDataValue(&UserData{Data: data, Delegate: delegate})
}
