// Package weakref provides weakref(v), which does not keep v alive, and deref(w).
package weakref

import (
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

const (
	weakrefID = 6
	derefID   = 7
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "weakref",
		ID:      weakrefID,
		Arity:   1,
		Handler: runWeakref,
	})
	runtime.Register(runtime.Spec{
		Name:    "deref",
		ID:      derefID,
		Arity:   1,
		Handler: runDeref,
	})
}

func runWeakref(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.WeakRefValue(vm.NewWeakRef(args[0])), nil
}

func runDeref(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.Deref(args[0]), nil
}
