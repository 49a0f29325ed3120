package size

import (
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

const id = 1

func init() {
	runtime.Register(runtime.Spec{
		Name:    "size",
		ID:      id,
		Arity:   1,
		Handler: runSize,
	})
}

func runSize(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	return rt.Size(args[0])
}
