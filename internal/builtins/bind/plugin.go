package bind

import (
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

const id = 5

func init() {
	runtime.Register(runtime.Spec{
		Name:    "bind",
		ID:      id,
		Arity:   2,
		Handler: runBind,
	})
}

func runBind(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.Bind(args[0], args[1])
}
