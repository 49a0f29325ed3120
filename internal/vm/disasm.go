package vm

import (
	"fmt"
	"io"
	"sort"

	"github.com/xirelogy/go-zscript/internal/bytecode"
)

// Disassemble emits assembly-style bytecode output for the functions bound in the root table.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	names := make([]string, 0, vm.root.Len())
	funcs := make(map[string]Value, vm.root.Len())
	vm.root.Range(func(k, v Value) bool {
		if k.Kind == KindString && (v.Kind == KindClosure || v.Kind == KindNative) {
			names = append(names, k.Str)
			funcs[k.Str] = v
		}
		return true
	})
	sort.Strings(names)
	dis := bytecode.NewDisassembler(w)
	for _, name := range names {
		fn := funcs[name]
		if fn.Kind == KindNative {
			dis.PrintNative(name)
			continue
		}
		if err := dis.DisassemblePrototype(name, fn.Closure().Proto); err != nil {
			return err
		}
	}
	return nil
}
