package compiler

import (
	"github.com/joomcode/errorx"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/token"
)

// MaxFuncStackSize bounds the number of frame slots a single function may use.
const MaxFuncStackSize = 0xFF

// capturedPC marks a local whose slot is referenced by a closure.
const capturedPC = -1

type localVar struct {
	name     string // empty for temporaries
	scopeID  int
	startPC  int
	endPC    int
	typeMask uint32
	isConst  bool
}

// compileState tracks one function body while it is being compiled.
// Slot i of the frame is vlocals[i]; temporaries and named locals share the same stack.
type compileState struct {
	parent *compileState
	name   string
	source string
	line   int

	code  []bytecode.Instruction
	lines []bytecode.LineInfo
	pos   token.Position

	literals     []any
	literalIndex map[any]int

	vlocals []localVar
	targets []int

	captures  []bytecode.CaptureInfo
	functions []*bytecode.Prototype
	structs   []*bytecode.StructInfo
	locals    []bytecode.LocalVarInfo
	params    []string
	nDefaults int
	variadic  bool

	nCapture    int
	scopeID     int
	nextScopeID int
	stackSize   int

	err error
}

func newCompileState(parent *compileState, name, source string, line int) *compileState {
	cs := &compileState{
		parent:       parent,
		name:         name,
		source:       source,
		line:         line,
		literalIndex: make(map[any]int),
	}
	cs.vlocals = append(cs.vlocals, localVar{name: "this", isConst: true})
	cs.stackSize = 1
	return cs
}

// fail records the first error; later statements check it.
func (cs *compileState) fail(t *errorx.Type, format string, args ...any) {
	if cs.err == nil {
		cs.err = errs.At(t.New(format, args...), cs.source, cs.pos.Line, cs.pos.Column)
	}
}

func (cs *compileState) pc() int { return len(cs.code) }

func (cs *compileState) emit(inst bytecode.Instruction) int {
	line := cs.pos.Line
	if n := len(cs.lines); n == 0 || cs.lines[n-1].Line != line {
		cs.lines = append(cs.lines, bytecode.LineInfo{PC: len(cs.code), Line: line})
	}
	cs.code = append(cs.code, inst)
	return len(cs.code) - 1
}

func (cs *compileState) updateTotalStackSize(n int) {
	if n > cs.stackSize {
		cs.stackSize = n
	}
	if cs.stackSize >= MaxFuncStackSize {
		cs.fail(errs.TooManyLocals, "function %s needs more than %d frame slots", cs.displayName(), MaxFuncStackSize-1)
	}
}

func (cs *compileState) displayName() string {
	if cs.name == "" {
		return "<anon>"
	}
	return cs.name
}

// newTarget allocates an unnamed slot on top of the frame and pushes it as a target.
func (cs *compileState) newTarget() int {
	return cs.newTypedTarget(bytecode.TypeAny)
}

func (cs *compileState) newTypedTarget(mask uint32) int {
	slot := len(cs.vlocals)
	cs.vlocals = append(cs.vlocals, localVar{scopeID: cs.scopeID, startPC: cs.pc(), typeMask: mask})
	cs.targets = append(cs.targets, slot)
	cs.updateTotalStackSize(len(cs.vlocals))
	return slot
}

// pushVarTarget pushes an existing slot (usually a named local) as a target.
func (cs *compileState) pushVarTarget(slot int) {
	cs.targets = append(cs.targets, slot)
}

func (cs *compileState) topTarget() int {
	return cs.targets[len(cs.targets)-1]
}

// popTarget pops the top target. The slot is released only when it is an unnamed
// slot on top of the frame; named locals stay live.
func (cs *compileState) popTarget() int {
	n := len(cs.targets) - 1
	slot := cs.targets[n]
	cs.targets = cs.targets[:n]
	last := len(cs.vlocals) - 1
	if slot == last && slot > 0 && cs.vlocals[last].name == "" {
		cs.vlocals = cs.vlocals[:last]
	}
	return slot
}

func (cs *compileState) resetTargets(n int) {
	for len(cs.targets) > n {
		cs.popTarget()
	}
}

func (cs *compileState) checkDuplicate(name string) bool {
	for i := len(cs.vlocals) - 1; i >= 0; i-- {
		v := cs.vlocals[i]
		if v.scopeID != cs.scopeID {
			break
		}
		if v.name == name {
			cs.fail(errs.DuplicateDeclaration, "%s is already declared in this scope", name)
			return false
		}
	}
	return true
}

// pushLocalVariable declares a new named local in a fresh slot.
func (cs *compileState) pushLocalVariable(name string, mask uint32, isConst bool) int {
	cs.checkDuplicate(name)
	slot := len(cs.vlocals)
	cs.vlocals = append(cs.vlocals, localVar{
		name:     name,
		scopeID:  cs.scopeID,
		startPC:  cs.pc(),
		typeMask: mask,
		isConst:  isConst,
	})
	cs.updateTotalStackSize(len(cs.vlocals))
	return slot
}

// nameTopTarget turns the temporary on top of the target stack into a named local.
func (cs *compileState) nameTopTarget(name string, mask uint32, isConst bool) int {
	cs.checkDuplicate(name)
	slot := cs.targets[len(cs.targets)-1]
	cs.targets = cs.targets[:len(cs.targets)-1]
	v := &cs.vlocals[slot]
	v.name = name
	v.scopeID = cs.scopeID
	v.startPC = cs.pc()
	v.typeMask = mask
	v.isConst = isConst
	return slot
}

func (cs *compileState) findLocal(name string) (int, bool) {
	for i := len(cs.vlocals) - 1; i >= 0; i-- {
		if cs.vlocals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

func (cs *compileState) markLocalAsCapture(slot int) {
	v := &cs.vlocals[slot]
	if v.endPC != capturedPC {
		v.endPC = capturedPC
		cs.nCapture++
	}
}

// getCapture resolves name through the parent chain, registering capture descriptors
// in every intermediate function on the way.
func (cs *compileState) getCapture(name string) (int, bool) {
	for i, c := range cs.captures {
		if c.Name == name {
			return i, true
		}
	}
	if cs.parent == nil {
		return -1, false
	}
	if slot, ok := cs.parent.findLocal(name); ok {
		cs.parent.markLocalAsCapture(slot)
		cs.captures = append(cs.captures, bytecode.CaptureInfo{Name: name, Index: slot, Kind: bytecode.CaptureLocal})
		return len(cs.captures) - 1, true
	}
	if idx, ok := cs.parent.getCapture(name); ok {
		cs.captures = append(cs.captures, bytecode.CaptureInfo{Name: name, Index: idx, Kind: bytecode.CaptureOuter})
		return len(cs.captures) - 1, true
	}
	return -1, false
}

// getLiteral returns the pool index of v, adding it once.
func (cs *compileState) getLiteral(v any) int {
	if idx, ok := cs.literalIndex[v]; ok {
		return idx
	}
	if len(cs.literals) >= bytecode.MaxBx {
		cs.fail(errs.TooManyLiterals, "function %s has too many literals", cs.displayName())
		return 0
	}
	idx := len(cs.literals)
	cs.literals = append(cs.literals, v)
	cs.literalIndex[v] = idx
	return idx
}

func (cs *compileState) addParameter(name string) int {
	cs.params = append(cs.params, name)
	return cs.pushLocalVariable(name, bytecode.TypeAny, false)
}

type scopeMark struct {
	prevScope int
	size      int
}

func (cs *compileState) enterScope() scopeMark {
	m := scopeMark{prevScope: cs.scopeID, size: len(cs.vlocals)}
	cs.nextScopeID++
	cs.scopeID = cs.nextScopeID
	return m
}

// exitScope truncates the frame to the mark and reports whether a captured local went away.
func (cs *compileState) exitScope(m scopeMark) bool {
	closed := cs.setStackSize(m.size)
	cs.scopeID = m.prevScope
	return closed > 0
}

// setStackSize drops every local at or above n, recording debug info for named ones.
// It returns how many of them were captured.
func (cs *compileState) setStackSize(n int) int {
	closed := 0
	for len(cs.vlocals) > n {
		last := len(cs.vlocals) - 1
		v := cs.vlocals[last]
		if v.name != "" {
			if v.endPC == capturedPC {
				cs.nCapture--
				closed++
			}
			cs.locals = append(cs.locals, bytecode.LocalVarInfo{
				Name:     v.name,
				Slot:     last,
				StartPC:  v.startPC,
				EndPC:    cs.pc(),
				TypeMask: v.typeMask,
				Const:    v.isConst,
			})
		}
		cs.vlocals = cs.vlocals[:last]
	}
	for len(cs.targets) > 0 && cs.targets[len(cs.targets)-1] >= n {
		cs.targets = cs.targets[:len(cs.targets)-1]
	}
	return closed
}

func (cs *compileState) buildPrototype() *bytecode.Prototype {
	cs.setStackSize(0)
	return &bytecode.Prototype{
		Name:        cs.name,
		Source:      cs.source,
		Params:      cs.params,
		NumDefaults: cs.nDefaults,
		Variadic:    cs.variadic,
		Literals:    cs.literals,
		Code:        cs.code,
		Lines:       cs.lines,
		Captures:    cs.captures,
		Functions:   cs.functions,
		Structs:     cs.structs,
		Locals:      cs.locals,
		StackSize:   cs.stackSize,
		Line:        cs.line,
	}
}
