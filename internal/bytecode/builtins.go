package bytecode

import "fmt"

// BuiltinInfo describes a registered builtin (intrinsic) function.
type BuiltinInfo struct {
	Name  string
	ID    int
	Arity int // -1 for variadic
}

var builtinInfo = map[int]BuiltinInfo{}

// RegisterBuiltinInfo registers builtin metadata for diagnostics and disassembly.
func RegisterBuiltinInfo(name string, id int, arity int) {
	if name == "" {
		name = fmt.Sprintf("#%d", id)
	}
	if _, exists := builtinInfo[id]; exists {
		panic(fmt.Sprintf("builtin id %d already registered", id))
	}
	builtinInfo[id] = BuiltinInfo{Name: name, ID: id, Arity: arity}
}

// LookupBuiltinInfo returns builtin metadata if registered.
func LookupBuiltinInfo(id int) (BuiltinInfo, bool) {
	info, ok := builtinInfo[id]
	return info, ok
}
