// Package delegate provides set_delegate(obj, d) and get_delegate(obj).
package delegate

import (
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

const (
	setID = 3
	getID = 4
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "set_delegate",
		ID:      setID,
		Arity:   2,
		Handler: runSetDelegate,
	})
	runtime.Register(runtime.Spec{
		Name:    "get_delegate",
		ID:      getID,
		Arity:   1,
		Handler: runGetDelegate,
	})
}

// runSetDelegate returns obj so calls can be chained.
func runSetDelegate(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	obj := args[0]
	if err := vm.SetDelegate(obj, args[1]); err != nil {
		return vm.Null(), err
	}
	return obj, nil
}

func runGetDelegate(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.GetDelegate(args[0])
}
