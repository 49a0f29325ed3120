// Package zscript embeds the zscript language: compile source to prototypes and run
// them on an isolated VM, exchanging values with Go through reflection or CBOR.
package zscript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joomcode/errorx"
	"github.com/tliron/commonlog"

	_ "github.com/xirelogy/go-zscript/internal/builtins"
	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/compiler"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/vm"
)

var log = commonlog.GetLogger("zscript")

// Error kinds, for use with IsError.
var (
	ErrLex                   = errs.LexError
	ErrSyntax                = errs.Syntax
	ErrDuplicateDeclaration  = errs.DuplicateDeclaration
	ErrTooManyLocals         = errs.TooManyLocals
	ErrInvalidTypeAnnotation = errs.InvalidTypeAnnotation
	ErrUnresolvedSymbol      = errs.UnresolvedSymbol
	ErrConstAssignment       = errs.ConstAssignment
	ErrNotFound              = errs.NotFound
	ErrInvalidType           = errs.InvalidType
	ErrInvalidOperation      = errs.InvalidOperation
	ErrOutOfBounds           = errs.OutOfBounds
	ErrInvalidParameterCount = errs.InvalidParameterCount
	ErrInaccessible          = errs.Inaccessible
	ErrInvalidArgument       = errs.InvalidArgument
	ErrStackOverflow         = errs.StackOverflow
	ErrInstructionLimit      = errs.InstructionLimit
	ErrCancelled             = errs.Cancelled
	ErrInvalidConfig         = errs.InvalidConfig
)

// IsError reports whether err, or the error it wraps, is of kind t.
func IsError(err error, t *errorx.Type) bool {
	return errs.Is(err, t)
}

// ErrBusy is returned when an Engine is entered while another call is running.
var ErrBusy = errors.New("engine is busy; concurrent calls are not allowed")

// FrameTrace describes a single frame in a runtime error.
type FrameTrace struct {
	Op       string
	Function string
	Source   string
	Line     int
	PC       int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	parts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			parts = append(parts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(parts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
// Depth is the number of active frames when the error was raised.
func (e *RuntimeError) Depth() int { return len(e.Stack) }

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op       string
	Function string
	Source   string
	Line     int
	PC       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if errors.As(err, &rte) {
		return &RuntimeError{
			Message: rte.Message,
			Frame:   frameTraceFromVM(rte.Frame),
			Stack:   stackTraceFromVM(rte.Stack),
			Cause:   rte.Cause,
		}
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Op:       info.Op.String(),
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		PC:       info.PC,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueNone
	ValueBool
	ValueInt
	ValueFloat
	ValueString
	ValueTable
	ValueArray
	ValueFunction
	ValueUserData
	ValueWeakRef
	ValueIterator
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueNone:
		return "none"
	case ValueBool:
		return "bool"
	case ValueInt:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueString:
		return "string"
	case ValueTable:
		return "table"
	case ValueArray:
		return "array"
	case ValueFunction:
		return "function"
	case ValueUserData:
		return "userdata"
	case ValueWeakRef:
		return "weakref"
	case ValueIterator:
		return "iterator"
	}
	return "unknown"
}

// Value is a script value. It wraps the internal vm.Value representation and,
// when it came out of a VM, the VM that owns it.
type Value struct {
	v     vm.Value
	owner *vm.VM
}

// Null is the script null value.
func Null() Value { return Value{v: vm.Null()} }

// None is the script none value, used by metamethods to mean "not handled".
func None() Value { return Value{v: vm.None()} }

// Kind reports the underlying value kind.
func (v Value) Kind() ValueKind {
	switch v.v.Kind {
	case vm.KindNone:
		return ValueNone
	case vm.KindBool:
		return ValueBool
	case vm.KindInt:
		return ValueInt
	case vm.KindFloat:
		return ValueFloat
	case vm.KindString:
		return ValueString
	case vm.KindTable:
		return ValueTable
	case vm.KindArray:
		return ValueArray
	case vm.KindClosure, vm.KindNative:
		return ValueFunction
	case vm.KindUserData:
		return ValueUserData
	case vm.KindWeakRef:
		return ValueWeakRef
	case vm.KindIterator:
		return ValueIterator
	}
	return ValueNull
}

func (v Value) IsNull() bool { return v.v.IsNull() }
func (v Value) IsNone() bool { return v.v.IsNone() }

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) {
	if v.v.Kind != vm.KindBool {
		return false, false
	}
	return v.v.Bool(), true
}

// Int returns the integer payload.
func (v Value) Int() (int64, bool) {
	if v.v.Kind != vm.KindInt {
		return 0, false
	}
	return v.v.Int, true
}

// Float returns the float payload.
func (v Value) Float() (float64, bool) {
	if v.v.Kind != vm.KindFloat {
		return 0, false
	}
	return v.v.Float, true
}

// Number returns integers and floats as float64.
func (v Value) Number() (float64, bool) {
	if v.v.Kind != vm.KindInt && v.v.Kind != vm.KindFloat {
		return 0, false
	}
	return v.v.ToFloat(), true
}

// String returns the string payload.
func (v Value) String() (string, bool) {
	if v.v.Kind != vm.KindString {
		return "", false
	}
	return v.v.Str, true
}

// Array returns the elements of an array.
func (v Value) Array() ([]Value, bool) {
	if v.v.Kind != vm.KindArray {
		return nil, false
	}
	items := v.v.Array().Items
	out := make([]Value, len(items))
	for i, el := range items {
		out[i] = Value{v: el, owner: v.owner}
	}
	return out, true
}

// Table returns the string-keyed entries of a table. Other keys are rendered
// the way tostring would render them.
func (v Value) Table() (map[string]Value, bool) {
	if v.v.Kind != vm.KindTable {
		return nil, false
	}
	t := v.v.Table()
	out := make(map[string]Value, t.Len())
	t.Range(func(k, el vm.Value) bool {
		out[k.String()] = Value{v: el, owner: v.owner}
		return true
	})
	return out, true
}

// Format renders the value without consulting metamethods.
func (v Value) Format() string {
	return v.v.String()
}

// Raw returns a Go representation of the value.
// Functions are not convertible and return an error.
func (v Value) Raw() (any, error) {
	return unmarshalToGo(v.v, map[any]bool{})
}

// MustRaw returns Raw() or panics on error (convenience).
func (v Value) MustRaw() any {
	val, err := v.Raw()
	if err != nil {
		panic(err)
	}
	return val
}

// AsFunction extracts a callable handle when the value is a function.
func (v Value) AsFunction() (*FunctionHandle, bool) {
	if !v.v.IsCallable() {
		return nil, false
	}
	return &FunctionHandle{owner: v.owner, fn: v.v}, true
}

// FunctionHandle represents a function value returned from the VM.
type FunctionHandle struct {
	owner *vm.VM
	fn    vm.Value
}

// Call invokes the function on its owning VM with a null receiver. It may be
// used from inside a host function.
func (h *FunctionHandle) Call(ctx context.Context, args ...Value) (Value, error) {
	if h == nil {
		return Value{}, errors.New("nil function handle")
	}
	if h.owner == nil {
		return Value{}, errors.New("function handle missing VM owner")
	}
	res, err := h.owner.CallContext(ctx, h.fn, vm.Null(), rawValues(args))
	if err != nil {
		return Value{}, convertRuntimeError(err)
	}
	return Value{v: res, owner: h.owner}, nil
}

func rawValues(args []Value) []vm.Value {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		out[i] = a.v
	}
	return out
}

// Context is handed to host functions while a script calls them.
type Context struct {
	rt   *vm.VM
	This Value
}

// Call re-enters the VM from a host function.
func (c *Context) Call(fn Value, args ...Value) (Value, error) {
	res, err := c.rt.Call(fn.v, vm.Null(), rawValues(args))
	if err != nil {
		return Value{}, err
	}
	return Value{v: res, owner: c.rt}, nil
}

// ToString renders v the way the tostring intrinsic does.
func (c *Context) ToString(v Value) (string, error) {
	return c.rt.ToString(v.v)
}

// FunctionHandler is the Go-side implementation of a script function.
// Arguments are provided by name after validation against the declared parameter list.
type FunctionHandler func(ctx *Context, args map[string]Value) (Value, error)

// Function describes a host-provided function, including its parameter list and handler.
// Extra script arguments beyond Params are available as "argN" when Variadic is set.
type Function struct {
	Params   []string
	Variadic bool
	Handler  FunctionHandler
}

// NewFunction creates a host function from a parameter list and handler.
func NewFunction(params []string, handler FunctionHandler) *Function {
	return &Function{
		Params:  params,
		Handler: handler,
	}
}

func (fn *Function) native(name string) vm.Value {
	return vm.NewNative(name, func(rt *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if fn == nil || fn.Handler == nil {
			return vm.Null(), errs.InvalidOperation.New("nil function handler")
		}
		if len(args) < len(fn.Params) || (!fn.Variadic && len(args) > len(fn.Params)) {
			return vm.Null(), errs.InvalidParameterCount.New("%s expects %d arguments, got %d", displayName(name), len(fn.Params), len(args))
		}
		argMap := make(map[string]Value, len(args))
		for i, a := range args {
			key := fmt.Sprintf("arg%d", i)
			if i < len(fn.Params) {
				key = fn.Params[i]
			}
			argMap[key] = Value{v: a, owner: rt}
		}
		res, err := fn.Handler(&Context{rt: rt, This: Value{v: this, owner: rt}}, argMap)
		if err != nil {
			var argErr ArgError
			if errors.As(err, &argErr) {
				return vm.Null(), errs.InvalidArgument.Wrap(err, "%s", displayName(name))
			}
			return vm.Null(), err
		}
		return res.v, nil
	})
}

func displayName(name string) string {
	if name == "" {
		return "<native>"
	}
	return name
}

// HostArgs provides typed accessors for host function arguments.
type HostArgs struct {
	args map[string]Value
}

// NewHostArgs wraps the raw argument map for typed access.
func NewHostArgs(args map[string]Value) HostArgs {
	return HostArgs{args: args}
}

// Value returns the raw Value for a named argument.
func (a HostArgs) Value(name string) (Value, error) {
	v, ok := a.args[name]
	if !ok {
		return Value{}, ArgError{Name: name, Want: "present"}
	}
	return v, nil
}

// Int returns the integer argument.
func (a HostArgs) Int(name string) (int64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	if n, ok := v.Int(); ok {
		return n, nil
	}
	return 0, ArgError{Name: name, Want: "integer", Got: v.Kind().String()}
}

// Number returns an integer or float argument as float64.
func (a HostArgs) Number(name string) (float64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	if n, ok := v.Number(); ok {
		return n, nil
	}
	return 0, ArgError{Name: name, Want: "number", Got: v.Kind().String()}
}

// String returns the string argument.
func (a HostArgs) String(name string) (string, error) {
	v, err := a.Value(name)
	if err != nil {
		return "", err
	}
	if s, ok := v.String(); ok {
		return s, nil
	}
	return "", ArgError{Name: name, Want: "string", Got: v.Kind().String()}
}

// Bool returns the boolean argument.
func (a HostArgs) Bool(name string) (bool, error) {
	v, err := a.Value(name)
	if err != nil {
		return false, err
	}
	if b, ok := v.Bool(); ok {
		return b, nil
	}
	return false, ArgError{Name: name, Want: "boolean", Got: v.Kind().String()}
}

// Array returns the array argument.
func (a HostArgs) Array(name string) ([]Value, error) {
	v, err := a.Value(name)
	if err != nil {
		return nil, err
	}
	if arr, ok := v.Array(); ok {
		return arr, nil
	}
	return nil, ArgError{Name: name, Want: "array", Got: v.Kind().String()}
}

// Table returns the table argument.
func (a HostArgs) Table(name string) (map[string]Value, error) {
	v, err := a.Value(name)
	if err != nil {
		return nil, err
	}
	if t, ok := v.Table(); ok {
		return t, nil
	}
	return nil, ArgError{Name: name, Want: "table", Got: v.Kind().String()}
}

// Program is a compiled main chunk.
type Program struct {
	Name  string
	proto *bytecode.Prototype
}

// Disassemble writes the program's bytecode, nested functions included.
func (p *Program) Disassemble(w io.Writer) error {
	return bytecode.NewDisassembler(w).DisassemblePrototype(p.Name, p.proto)
}

// Engine owns one VM and its root table. It accumulates host bindings and
// script sources before execution. An Engine runs one call at a time.
type Engine struct {
	id   uuid.UUID
	cfg  Config
	core *vm.VM
	out  io.Writer

	mu   sync.Mutex
	busy bool
}

// NewEngine validates cfg and constructs an engine with the print native installed.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		id:   uuid.New(),
		cfg:  cfg,
		core: vm.New(cfg.vmConfig()),
		out:  os.Stdout,
	}
	e.installPrint()
	log.Infof("engine %s created", e.id)
	return e, nil
}

// ID identifies the engine in logs.
func (e *Engine) ID() string { return e.id.String() }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// SetOutput redirects the print native.
func (e *Engine) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	e.out = w
}

func (e *Engine) installPrint() {
	e.core.SetGlobal("print", vm.NewNative("print", func(rt *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := rt.ToString(a)
			if err != nil {
				return vm.Null(), err
			}
			parts[i] = s
		}
		_, err := fmt.Fprintln(e.out, strings.Join(parts, " "))
		return vm.Null(), err
	}))
}

func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	e.busy = true
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// Compile compiles source text. The name is used in diagnostics (e.g., "inline"
// or a file name).
func (e *Engine) Compile(name, src string) (*Program, error) {
	proto, err := compiler.Compile(src, name, compiler.Options{GlobalDeclarations: e.cfg.GlobalDeclarations})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Program{Name: name, proto: proto}, nil
}

// Instantiate creates a closure for the program's main chunk without running it.
func (e *Engine) Instantiate(p *Program) Value {
	return Value{v: vm.ClosureValue(e.core.NewClosure(p.proto)), owner: e.core}
}

// Run executes a compiled program with the root table as this and returns the
// value of its last top-level expression statement.
func (e *Engine) Run(ctx context.Context, p *Program) (Value, error) {
	if err := e.acquire(); err != nil {
		return Value{}, err
	}
	defer e.release()
	log.Debugf("engine %s: run %s", e.id, p.Name)
	res, err := e.core.Run(ctx, p.proto)
	if err != nil {
		return Value{}, convertRuntimeError(err)
	}
	return Value{v: res, owner: e.core}, nil
}

// LoadSource compiles and runs a script from raw source text.
func (e *Engine) LoadSource(ctx context.Context, name, src string) (Value, error) {
	p, err := e.Compile(name, src)
	if err != nil {
		return Value{}, err
	}
	return e.Run(ctx, p)
}

// LoadFile loads, compiles and runs a script from a filesystem path.
func (e *Engine) LoadFile(ctx context.Context, path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Value{}, err
	}
	return e.LoadSource(ctx, path, string(data))
}

// Eval is LoadSource for inline snippets.
func (e *Engine) Eval(ctx context.Context, src string) (Value, error) {
	return e.LoadSource(ctx, "inline", src)
}

// Call invokes a callable value with the root table as this.
func (e *Engine) Call(ctx context.Context, fn Value, args ...Value) (Value, error) {
	if err := e.acquire(); err != nil {
		return Value{}, err
	}
	defer e.release()
	return e.call(ctx, fn.v, args)
}

func (e *Engine) call(ctx context.Context, fn vm.Value, args []Value) (Value, error) {
	res, err := e.core.CallContext(ctx, fn, vm.TableValue(e.core.Root()), rawValues(args))
	if err != nil {
		return Value{}, convertRuntimeError(err)
	}
	return Value{v: res, owner: e.core}, nil
}

func (e *Engine) lookupCallable(name string) (vm.Value, error) {
	fn, ok := e.core.Global(name)
	if !ok {
		return vm.Null(), errs.NotFound.New("unresolved symbol %s", name)
	}
	if !fn.IsCallable() && fn.Kind != vm.KindTable {
		return vm.Null(), errs.InvalidType.New("%s is %s, not callable", name, vm.TypeName(fn))
	}
	return fn, nil
}

// CallGlobal resolves a function in the root table and calls it.
func (e *Engine) CallGlobal(ctx context.Context, name string, args ...Value) (Value, error) {
	if err := e.acquire(); err != nil {
		return Value{}, err
	}
	defer e.release()
	fn, err := e.lookupCallable(name)
	if err != nil {
		return Value{}, err
	}
	log.Debugf("engine %s: call %s", e.id, name)
	return e.call(ctx, fn, args)
}

// CallFuture represents an in-flight call.
type CallFuture struct {
	ch <-chan CallResult
}

// CallResult is the outcome of a call.
type CallResult struct {
	Value Value
	Err   error
}

// Await waits for completion or context cancellation.
func (f CallFuture) Await(ctx context.Context) (Value, error) {
	select {
	case <-ctx.Done():
		return Value{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

// CallAsync resolves a global function and runs it on a separate goroutine.
// The engine is marked busy before CallAsync returns; ctx also cancels the
// script itself.
func (e *Engine) CallAsync(ctx context.Context, name string, args ...Value) CallFuture {
	ch := make(chan CallResult, 1)
	if err := e.acquire(); err != nil {
		ch <- CallResult{Err: err}
		close(ch)
		return CallFuture{ch: ch}
	}
	go func() {
		defer close(ch)
		defer e.release()
		if err := ctx.Err(); err != nil {
			ch <- CallResult{Err: err}
			return
		}
		fn, err := e.lookupCallable(name)
		if err != nil {
			ch <- CallResult{Err: err}
			return
		}
		log.Debugf("engine %s: async call %s", e.id, name)
		res, err := e.call(ctx, fn, args)
		ch <- CallResult{Value: res, Err: err}
	}()
	return CallFuture{ch: ch}
}

// SetGlobal marshals val into the root table.
func (e *Engine) SetGlobal(name string, val any) error {
	v, err := marshalGoValue(val)
	if err != nil {
		return fmt.Errorf("global %s: %w", name, err)
	}
	e.core.SetGlobal(name, v)
	return nil
}

// SetGlobalFunction binds a host function to a global name.
func (e *Engine) SetGlobalFunction(name string, fn *Function) error {
	if fn == nil {
		return errors.New("nil function")
	}
	e.core.SetGlobal(name, fn.native(name))
	return nil
}

// Global reads a root table entry.
func (e *Engine) Global(name string) (Value, bool) {
	v, ok := e.core.Global(name)
	return Value{v: v, owner: e.core}, ok
}

// HasFunction reports whether a global function exists with the given name.
func (e *Engine) HasFunction(name string) bool {
	v, ok := e.core.Global(name)
	return ok && v.IsCallable()
}

// Duplicate clones the configuration and root table into a new engine.
// The duplicate has independent memory and no in-flight execution state.
func (e *Engine) Duplicate() (*Engine, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()
	dup := &Engine{
		id:   uuid.New(),
		cfg:  e.cfg,
		core: e.core.Duplicate(),
		out:  e.out,
	}
	dup.installPrint()
	log.Infof("engine %s duplicated from %s", dup.id, e.id)
	return dup, nil
}

// SetInstructionLimit caps the number of instructions a single call may execute (0 for unlimited).
func (e *Engine) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	e.cfg.InstructionLimit = limit
	e.core.SetInstructionLimit(limit)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (e *Engine) SetTraceHook(h TraceHook) {
	if h == nil {
		e.core.SetTraceHook(nil)
		return
	}
	e.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       info.Op.String(),
			Function: info.Function,
			Source:   info.Source,
			Line:     info.Line,
			PC:       info.PC,
			Depth:    info.Depth,
		})
	})
}

// ToString renders v with __operator_tostring applied.
func (e *Engine) ToString(v Value) (string, error) {
	return e.core.ToString(v.v)
}

// TypeOf is the typeof operator.
func (e *Engine) TypeOf(v Value) (string, error) {
	return e.core.TypeOf(v.v)
}

// Disassemble writes the functions bound in the root table.
func (e *Engine) Disassemble(w io.Writer) error {
	return e.core.Disassemble(w)
}
