package vm

import (
	"slices"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
)

// call dispatches any callable value with a receiver and arguments.
func (vm *VM) call(fn Value, this Value, args []Value) (Value, error) {
	switch fn.Kind {
	case KindClosure:
		base := len(vm.stack)
		vm.stack = append(vm.stack, this)
		vm.stack = append(vm.stack, args...)
		return vm.callClosure(fn.Closure(), base, len(args), base)
	case KindNative:
		return vm.callNative(fn.Native(), this, args)
	case KindTable, KindUserData:
		return vm.callObject(fn, args)
	}
	return Null(), errs.InvalidType.New("value of type %s is not callable", typeName(fn))
}

// callAt performs OpCall for a callee staged at absolute slot at, with its
// receiver at at+1 and nargs arguments following.
func (vm *VM) callAt(at, nargs int) (Value, error) {
	fn := vm.stack[at]
	if fn.Kind == KindClosure {
		return vm.callClosure(fn.Closure(), at+1, nargs, len(vm.stack))
	}
	this := vm.stack[at+1]
	args := make([]Value, nargs)
	copy(args, vm.stack[at+2:at+2+nargs])
	return vm.call(fn, this, args)
}

func (vm *VM) callNative(n *NativeClosure, this Value, args []Value) (Value, error) {
	if n.Bound {
		this = n.This
	}
	return n.Fn(vm, this, args)
}

// callClosure runs a script closure whose receiver sits at base and whose nargs
// arguments follow it. The stack is truncated to prevTop afterwards.
func (vm *VM) callClosure(cl *Closure, base, nargs, prevTop int) (Value, error) {
	if err := vm.enterFrame(cl, base, nargs, prevTop); err != nil {
		vm.truncate(prevTop)
		return Null(), err
	}
	ret, err := vm.execute()
	vm.leaveFrame()
	return ret, err
}

func (vm *VM) enterFrame(cl *Closure, base, nargs, prevTop int) error {
	if len(vm.frames) >= vm.cfg.MaxFrames {
		log.Warningf("frame limit %d reached", vm.cfg.MaxFrames)
		return errs.StackOverflow.New("call depth exceeds %d frames", vm.cfg.MaxFrames)
	}
	p := cl.Proto
	np := p.NumParams()
	fixed := p.NumFixed()
	if nargs > fixed && !p.Variadic {
		return errs.InvalidParameterCount.New("%s expects at most %d arguments, got %d", p.DisplayName(), np, nargs)
	}
	firstDefault := fixed - len(cl.Defaults)
	if nargs < firstDefault {
		return errs.InvalidParameterCount.New("%s expects at least %d arguments, got %d", p.DisplayName(), firstDefault, nargs)
	}
	var rest Value
	if p.Variadic {
		var extra []Value
		if nargs > fixed {
			extra = slices.Clone(vm.stack[base+1+fixed : base+1+nargs])
			clear(vm.stack[base+1+fixed : base+1+nargs])
			nargs = fixed
		}
		rest = NewArray(extra...)
	}
	size := p.StackSize
	if size < np+1 {
		size = np + 1
	}
	need := base + size
	if need > vm.cfg.MaxStack {
		return errs.StackOverflow.New("stack exceeds %d slots", vm.cfg.MaxStack)
	}
	if need > len(vm.stack) {
		vm.stack = append(vm.stack, make([]Value, need-len(vm.stack))...)
	}
	if cl.Bound {
		vm.stack[base] = cl.This
	}
	for i := nargs; i < fixed; i++ {
		vm.stack[base+1+i] = cl.Defaults[i-firstDefault]
	}
	if p.Variadic {
		vm.stack[base+1+fixed] = rest
	}
	clear(vm.stack[base+1+np : need])
	vm.frames = append(vm.frames, &frame{closure: cl, base: base, lastPC: -1, prevTop: prevTop})
	return nil
}

// leaveFrame bakes the frame's captures and releases its slots, on success and on error.
func (vm *VM) leaveFrame() {
	fr := vm.frames[len(vm.frames)-1]
	vm.closeCaptures(fr.base)
	vm.frames[len(vm.frames)-1] = nil
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.truncate(fr.prevTop)
}

func (vm *VM) truncate(top int) {
	if top < len(vm.stack) {
		clear(vm.stack[top:])
		vm.stack = vm.stack[:top]
	}
}

// callObject calls a table or user data: __operator_call first, then a struct
// type or class constructor, either of which yields a new instance delegating to
// the callee. A call
// operator that is itself an object is followed, bounded like a delegate chain.
func (vm *VM) callObject(obj Value, args []Value) (Value, error) {
	for hops := 0; ; hops++ {
		if hops > vm.cfg.MaxDelegateDepth {
			return Null(), errs.Inaccessible.New("call operator chain exceeds %d levels", vm.cfg.MaxDelegateDepth)
		}
		op, _, ok, err := vm.findMeta(obj, metaCall)
		if err != nil {
			return Null(), err
		}
		if ok {
			if op.Kind == KindTable || op.Kind == KindUserData {
				obj = op
				continue
			}
			return vm.call(op, obj, args)
		}
		break
	}
	if t := obj.Table(); t != nil {
		if t.schema != nil && !t.instance {
			return vm.instantiate(obj, t, args)
		}
		if ctor, ok := t.GetString("constructor"); ok {
			instance := NewTable()
			instance.Delegate = obj
			self := TableValue(instance)
			if _, err := vm.call(ctor, self, args); err != nil {
				return Null(), err
			}
			return self, nil
		}
	}
	return Null(), errs.InvalidType.New("value of type %s is not callable", typeName(obj))
}

// instantiate creates a sealed instance of a struct type holding a copy of the
// type's field values. Const fields stay writable until the constructor returns.
func (vm *VM) instantiate(typ Value, t *Table, args []Value) (Value, error) {
	instance := NewTable()
	for _, f := range t.schema.Fields {
		v, _ := t.GetString(f.Name)
		instance.SetString(f.Name, v)
	}
	instance.schema = t.schema
	instance.instance = true
	instance.sealed = true
	instance.Delegate = typ
	self := TableValue(instance)
	ctor, ok := t.GetString("constructor")
	if !ok {
		if len(args) > 0 {
			return Null(), errs.InvalidParameterCount.New("struct %s has no constructor, got %d arguments", structName(t.schema), len(args))
		}
		return self, nil
	}
	instance.initializing = true
	_, err := vm.call(ctor, self, args)
	instance.initializing = false
	if err != nil {
		return Null(), err
	}
	return self, nil
}

func structName(s *bytecode.StructInfo) string {
	if s.Name == "" {
		return "<anon>"
	}
	return s.Name
}
