package vm

import (
	"context"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-zscript/internal/bytecode"
)

var log = commonlog.GetLogger("zscript.vm")

const (
	DefaultMaxStack         = 1 << 16
	DefaultMaxFrames        = 512
	DefaultMaxDelegateDepth = 32
	MinDelegateDepth        = 8
)

// Config bounds a VM. Zero values select the defaults.
type Config struct {
	InstructionLimit int
	MaxFrames        int
	MaxStack         int
	MaxDelegateDepth int
}

func (c Config) withDefaults() Config {
	if c.MaxFrames <= 0 {
		c.MaxFrames = DefaultMaxFrames
	}
	if c.MaxStack <= 0 {
		c.MaxStack = DefaultMaxStack
	}
	if c.MaxDelegateDepth <= 0 {
		c.MaxDelegateDepth = DefaultMaxDelegateDepth
	}
	if c.MaxDelegateDepth < MinDelegateDepth {
		c.MaxDelegateDepth = MinDelegateDepth
	}
	if c.InstructionLimit < 0 {
		c.InstructionLimit = 0
	}
	return c
}

type frame struct {
	closure *Closure
	base    int
	pc      int
	lastPC  int
	prevTop int
}

// VM executes prototypes over one contiguous value stack. Frames are windows into it.
// A VM is not safe for concurrent use.
type VM struct {
	stack        []Value
	frames       []*frame
	openCaptures []*Capture

	root          *Table
	tableDelegate *Table
	arrayDelegate *Table
	strDelegate   *Table

	cfg       Config
	traceHook TraceHook
	instCount int
	ctx       context.Context
}

// New constructs a VM with its own root table and default delegates.
func New(cfg Config) *VM {
	vm := &VM{
		stack:  make([]Value, 0, 256),
		frames: make([]*frame, 0, 16),
		cfg:    cfg.withDefaults(),
	}
	vm.root = NewTable()
	vm.root.Delegate = None()
	vm.installDefaultDelegates()
	log.Debugf("new vm: max frames %d, max stack %d, delegate depth %d, instruction limit %d",
		vm.cfg.MaxFrames, vm.cfg.MaxStack, vm.cfg.MaxDelegateDepth, vm.cfg.InstructionLimit)
	return vm
}

// Config returns the effective configuration.
func (vm *VM) Config() Config { return vm.cfg }

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per top-level call (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.cfg.InstructionLimit = limit
}

// ResetState clears transient execution state (stack, frames, open captures).
func (vm *VM) ResetState() {
	vm.closeCaptures(0)
	clear(vm.stack)
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.instCount = 0
}

// Root returns the root table that unresolved names fall back to.
func (vm *VM) Root() *Table { return vm.root }

// SetGlobal binds a value into the root table.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.root.SetString(name, v)
}

// Global reads a root table entry.
func (vm *VM) Global(name string) (Value, bool) {
	return vm.root.GetString(name)
}

// Run instantiates proto and calls it with the root table as this.
func (vm *VM) Run(ctx context.Context, proto *bytecode.Prototype) (Value, error) {
	return vm.CallContext(ctx, ClosureValue(vm.NewClosure(proto)), TableValue(vm.root), nil)
}

// Call invokes callable with the given receiver and arguments. It may be used
// re-entrantly from natives.
func (vm *VM) Call(fn Value, this Value, args []Value) (Value, error) {
	return vm.CallContext(context.Background(), fn, this, args)
}

// CallContext is Call with cancellation checked in the dispatch loop.
func (vm *VM) CallContext(ctx context.Context, fn Value, this Value, args []Value) (Value, error) {
	outer := len(vm.frames) == 0
	if outer {
		vm.instCount = 0
		prev := vm.ctx
		vm.ctx = ctx
		defer func() { vm.ctx = prev }()
	}
	ret, err := vm.call(fn, this, args)
	if err != nil {
		if _, ok := err.(*RuntimeError); !ok {
			err = vm.newRuntimeError(vm.currentFrame(), err.Error(), err)
		}
		if outer {
			log.Debugf("call failed: %s", err)
		}
		return Null(), err
	}
	return ret, nil
}

func (vm *VM) currentFrame() *frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

// Depth is the number of active script frames.
func (vm *VM) Depth() int { return len(vm.frames) }
