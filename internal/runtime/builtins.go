package runtime

import (
	"fmt"
	"sort"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/vm"
)

// Spec describes an intrinsic the compiler lowers to OpBuiltin.
type Spec struct {
	Name    string
	ID      int
	Arity   int // -1 for variadic
	Handler vm.BuiltinHandler
}

var (
	byName = map[string]Spec{}
	byID   = map[int]Spec{}
)

// Register installs an intrinsic for the compiler, the VM and the disassembler.
func Register(spec Spec) {
	if spec.Handler == nil {
		panic(fmt.Sprintf("builtin %s has nil handler", spec.Name))
	}
	if spec.ID < 0 || spec.ID > bytecode.MaxB {
		panic(fmt.Sprintf("builtin %s id %d out of range", spec.Name, spec.ID))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("builtin %s already registered", spec.Name))
	}
	if _, exists := byID[spec.ID]; exists {
		panic(fmt.Sprintf("builtin id %d already registered", spec.ID))
	}
	byName[spec.Name] = spec
	byID[spec.ID] = spec
	vm.RegisterBuiltin(spec.Name, spec.ID, spec.Arity, spec.Handler)
	bytecode.RegisterBuiltinInfo(spec.Name, spec.ID, spec.Arity)
}

// LookupByName finds a builtin by its script-visible name.
func LookupByName(name string) (Spec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// LookupByID finds a builtin by id.
func LookupByID(id int) (Spec, bool) {
	spec, ok := byID[id]
	return spec, ok
}

// All returns all registered builtins ordered by id.
func All() []Spec {
	out := make([]Spec, 0, len(byName))
	for _, spec := range byName {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
