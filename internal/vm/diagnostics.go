package vm

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-zscript/internal/bytecode"
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op       bytecode.OpCode
	Function string
	Source   string
	Line     int
	PC       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Op       bytecode.OpCode
	Function string
	Source   string
	Line     int
	PC       int
}

// RuntimeError carries source/stack information for VM failures.
// Cause holds the errorx error naming the failure kind.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error
}

func (e *RuntimeError) Error() string {
	locParts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			locParts = append(locParts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			locParts = append(locParts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		locParts = append(locParts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		locParts = append(locParts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(locParts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// wrapError attaches the position of fr to err unless an inner frame already did.
func (vm *VM) wrapError(fr *frame, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*RuntimeError); ok {
		return err
	}
	return vm.newRuntimeError(fr, err.Error(), err)
}

func (vm *VM) newRuntimeError(fr *frame, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Message: msg,
		Frame:   frameInfo(fr),
		Stack:   vm.stackTrace(),
		Cause:   cause,
	}
}

func (vm *VM) trace(fr *frame, op bytecode.OpCode) {
	info := frameInfo(fr)
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		PC:       info.PC,
		Depth:    len(vm.frames),
	})
}

// stackTrace lists active frames innermost first.
func (vm *VM) stackTrace() []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, frameInfo(vm.frames[i]))
	}
	return trace
}

func frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.closure == nil {
		return FrameInfo{}
	}
	p := fr.closure.Proto
	var op bytecode.OpCode
	if fr.lastPC >= 0 && fr.lastPC < len(p.Code) {
		op = p.Code[fr.lastPC].Op()
	}
	return FrameInfo{
		Op:       op,
		Function: p.DisplayName(),
		Source:   p.Source,
		Line:     p.LineForPC(fr.lastPC),
		PC:       fr.lastPC,
	}
}
