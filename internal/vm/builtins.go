package vm

import (
	"fmt"

	"github.com/xirelogy/go-zscript/internal/errs"
)

// BuiltinHandler implements an intrinsic. args aliases the frame slots holding
// the arguments and is only valid for the duration of the call.
type BuiltinHandler func(vm *VM, args []Value) (Value, error)

type builtinEntry struct {
	name    string
	id      int
	arity   int
	handler BuiltinHandler
}

var builtinRegistry = map[int]builtinEntry{}

// RegisterBuiltin installs the handler dispatched by OpBuiltin with operand B == id.
func RegisterBuiltin(name string, id int, arity int, handler BuiltinHandler) {
	if handler == nil {
		panic("nil builtin handler")
	}
	if _, exists := builtinRegistry[id]; exists {
		panic(fmt.Sprintf("builtin id %d already registered", id))
	}
	builtinRegistry[id] = builtinEntry{
		name:    name,
		id:      id,
		arity:   arity,
		handler: handler,
	}
}

func lookupBuiltin(id int) (builtinEntry, bool) {
	entry, ok := builtinRegistry[id]
	return entry, ok
}

func (vm *VM) runBuiltin(id int, args []Value) (Value, error) {
	entry, ok := lookupBuiltin(id)
	if !ok {
		return Null(), errs.InvalidOperation.New("unknown builtin #%d", id)
	}
	if entry.arity >= 0 && len(args) != entry.arity {
		return Null(), errs.InvalidParameterCount.New("builtin %s expects %d args, got %d", entry.name, entry.arity, len(args))
	}
	return entry.handler(vm, args)
}
