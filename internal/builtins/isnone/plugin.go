package isnone

import (
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

const id = 8

func init() {
	runtime.Register(runtime.Spec{
		Name:    "is_none",
		ID:      id,
		Arity:   1,
		Handler: runIsNone,
	})
}

func runIsNone(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.Bool(args[0].IsNone()), nil
}
