package vm

import "github.com/xirelogy/go-zscript/internal/bytecode"

// NativeFunc is a host callable. args is a private copy.
type NativeFunc func(vm *VM, this Value, args []Value) (Value, error)

// Closure is an instance of a prototype: shared code plus its own captures and defaults.
type Closure struct {
	Proto    *bytecode.Prototype
	Captures []*Capture
	Defaults []Value
	This     Value
	Bound    bool
}

// NativeClosure wraps a host function; This is used when Bound is set.
type NativeClosure struct {
	Name  string
	Fn    NativeFunc
	This  Value
	Bound bool
}

// NewClosure instantiates a top-level prototype. Its captures, if any, start closed and null.
func (vm *VM) NewClosure(proto *bytecode.Prototype) *Closure {
	cl := &Closure{Proto: proto, Captures: make([]*Capture, len(proto.Captures))}
	for i := range cl.Captures {
		cl.Captures[i] = ClosedCapture(Null())
	}
	return cl
}

// newClosure runs OpNewClosure for the frame fr; defaults come from the slots after a.
func (vm *VM) newClosure(fr *frame, proto *bytecode.Prototype, a int) *Closure {
	parent := fr.closure
	cl := &Closure{Proto: proto, Captures: make([]*Capture, len(proto.Captures))}
	for i, info := range proto.Captures {
		if info.Kind == bytecode.CaptureLocal {
			cl.Captures[i] = vm.captureAt(fr.base + info.Index)
		} else {
			cl.Captures[i] = parent.Captures[info.Index]
		}
	}
	if n := proto.NumDefaults; n > 0 {
		cl.Defaults = make([]Value, n)
		copy(cl.Defaults, vm.stack[a+1:a+1+n])
	}
	return cl
}

// bind returns a copy of fn whose receiver is fixed to this.
func bind(fn Value, this Value) (Value, bool) {
	switch fn.Kind {
	case KindClosure:
		c := *fn.Closure()
		c.This, c.Bound = this, true
		return ClosureValue(&c), true
	case KindNative:
		n := *fn.Native()
		n.This, n.Bound = this, true
		return NativeValue(&n), true
	}
	return Null(), false
}
