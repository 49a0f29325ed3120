package tostring

import (
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

const id = 2

func init() {
	runtime.Register(runtime.Spec{
		Name:    "tostring",
		ID:      id,
		Arity:   1,
		Handler: runToString,
	})
}

func runToString(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	s, err := rt.ToString(args[0])
	if err != nil {
		return vm.Null(), err
	}
	return vm.String(s), nil
}
