package vm

import (
	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
)

// execute runs the innermost frame until it returns. Completion is the returned
// value; the error channel carries failures only.
func (vm *VM) execute() (Value, error) {
	fr := vm.frames[len(vm.frames)-1]
	cl := fr.closure
	p := cl.Proto
	code := p.Code
	base := fr.base

	reg := func(x int) Value { return vm.stack[base+x] }
	rk := func(x int) Value {
		if bytecode.IsK(x) {
			return literalValue(p.Literals[bytecode.IndexK(x)])
		}
		return vm.stack[base+x]
	}

	for fr.pc < len(code) {
		inst := code[fr.pc]
		op := inst.Op()
		fr.lastPC = fr.pc
		fr.pc++
		if err := vm.tick(fr, op); err != nil {
			return Null(), vm.wrapError(fr, err)
		}

		a := inst.A()
		var err error
		switch op {
		case bytecode.OpNop:

		case bytecode.OpLoad:
			vm.stack[base+a] = literalValue(p.Literals[inst.Bx()])
		case bytecode.OpLoadInt:
			vm.stack[base+a] = Int(int64(inst.SBx()))
		case bytecode.OpLoadBool:
			vm.stack[base+a] = Bool(inst.B() != 0)
		case bytecode.OpLoadNull:
			vm.stack[base+a] = Null()
		case bytecode.OpLoadNone:
			vm.stack[base+a] = None()
		case bytecode.OpLoadRoot:
			vm.stack[base+a] = TableValue(vm.root)
		case bytecode.OpMove:
			vm.stack[base+a] = reg(inst.B())

		case bytecode.OpGet:
			var v Value
			v, err = vm.get(reg(inst.B()), rk(inst.C()))
			vm.stack[base+a] = v
		case bytecode.OpGetOrRoot:
			var v Value
			v, err = vm.getOrRoot(reg(inst.B()), rk(inst.C()))
			vm.stack[base+a] = v
		case bytecode.OpSet:
			err = vm.set(reg(a), rk(inst.B()), rk(inst.C()), true)
		case bytecode.OpSetExisting:
			err = vm.set(reg(a), rk(inst.B()), rk(inst.C()), false)

		case bytecode.OpGetCapture:
			vm.stack[base+a] = cl.Captures[inst.B()].Get()
		case bytecode.OpSetCapture:
			cl.Captures[a].Set(reg(inst.B()))
		case bytecode.OpNewClosure:
			vm.stack[base+a] = ClosureValue(vm.newClosure(fr, p.Functions[inst.Bx()], base+a))
		case bytecode.OpClose:
			vm.closeCaptures(base + a)

		case bytecode.OpCall:
			var v Value
			v, err = vm.callAt(base+a, inst.B())
			vm.stack[base+a] = v
		case bytecode.OpMethod:
			obj := reg(inst.B())
			var fn Value
			fn, err = vm.get(obj, rk(inst.C()))
			vm.stack[base+a+1] = obj
			vm.stack[base+a] = fn
		case bytecode.OpReturn:
			if inst.B() == 0 {
				return Null(), nil
			}
			return reg(a), nil

		case bytecode.OpJmp:
			fr.pc = fr.lastPC + inst.SBx()
		case bytecode.OpJz:
			if !Truthy(reg(a)) {
				fr.pc = fr.lastPC + inst.SBx()
			}
		case bytecode.OpJnz:
			if Truthy(reg(a)) {
				fr.pc = fr.lastPC + inst.SBx()
			}
		case bytecode.OpAnd:
			b := Truthy(reg(inst.B()))
			vm.stack[base+a] = Bool(b)
			if !b {
				fr.pc = fr.lastPC + inst.SC()
			}
		case bytecode.OpOr:
			b := Truthy(reg(inst.B()))
			vm.stack[base+a] = Bool(b)
			if b {
				fr.pc = fr.lastPC + inst.SC()
			}

		case bytecode.OpNot:
			vm.stack[base+a] = Bool(!Truthy(reg(inst.B())))
		case bytecode.OpUnm:
			var v Value
			v, err = vm.negate(reg(inst.B()))
			vm.stack[base+a] = v
		case bytecode.OpBitNot:
			var v Value
			v, err = bitNot(reg(inst.B()))
			vm.stack[base+a] = v
		case bytecode.OpTypeof:
			var name string
			name, err = vm.typeOf(reg(inst.B()))
			vm.stack[base+a] = String(name)

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpExp,
			bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr:
			var v Value
			v, err = vm.arith(op, reg(inst.B()), reg(inst.C()))
			vm.stack[base+a] = v

		case bytecode.OpEq:
			vm.stack[base+a] = Bool(Equal(reg(inst.B()), reg(inst.C())))
		case bytecode.OpNe:
			vm.stack[base+a] = Bool(!Equal(reg(inst.B()), reg(inst.C())))
		case bytecode.OpStrictEq:
			vm.stack[base+a] = Bool(StrictEqual(reg(inst.B()), reg(inst.C())))
		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			var b bool
			b, err = vm.relational(op, reg(inst.B()), reg(inst.C()))
			vm.stack[base+a] = Bool(b)
		case bytecode.OpCompare:
			c, ordered, cerr := vm.compare(reg(inst.B()), reg(inst.C()))
			err = cerr
			if ordered {
				vm.stack[base+a] = Int(int64(c))
			} else {
				vm.stack[base+a] = Null()
			}

		case bytecode.OpIncr:
			mode := bytecode.IncrMode(inst.C())
			old := reg(inst.B())
			var v Value
			v, err = vm.arith(bytecode.OpAdd, old, Int(mode.Delta()))
			if err == nil {
				vm.stack[base+inst.B()] = v
				if mode.IsPre() {
					vm.stack[base+a] = v
				} else {
					vm.stack[base+a] = old
				}
			}

		case bytecode.OpNewTable:
			vm.stack[base+a] = TableValue(NewTable())
		case bytecode.OpNewStruct:
			t := NewTable()
			t.schema = p.Structs[inst.Bx()]
			vm.stack[base+a] = TableValue(t)
		case bytecode.OpSeal:
			t := reg(a).Table()
			t.sealed = true
			t.frozen = inst.B() != 0
		case bytecode.OpEnumSlot:
			err = vm.enumSlot(base+a, rk(inst.B()), reg(inst.C()))
		case bytecode.OpNewArray:
			vm.stack[base+a] = NewArray()
		case bytecode.OpArrayAppend:
			arr := reg(a).Array()
			arr.Items = append(arr.Items, reg(inst.B()))

		case bytecode.OpCheckType:
			v := reg(a)
			if mask := uint32(inst.Bx()); !MatchesType(v, mask) {
				err = errs.InvalidType.New("expected %s, got %s", bytecode.TypeMaskString(mask), typeName(v))
			}
		case bytecode.OpBuiltin:
			n := inst.C()
			var v Value
			v, err = vm.runBuiltin(inst.B(), vm.stack[base+a:base+a+n])
			vm.stack[base+a] = v

		case bytecode.OpIterInit:
			var it *iterator
			it, err = newIterator(reg(inst.B()))
			if err == nil {
				vm.stack[base+a] = iteratorValue(it)
			}
		case bytecode.OpIterNext:
			it := reg(a).iterator()
			if it == nil {
				err = errs.InvalidType.New("value of type %s is not an iterator", typeName(reg(a)))
				break
			}
			k, v, ok := it.next()
			if !ok {
				fr.pc = fr.lastPC + inst.SBx()
				break
			}
			vm.stack[base+a+1] = k
			vm.stack[base+a+2] = v

		default:
			err = errs.InvalidOperation.New("unknown opcode %s", op)
		}
		if err != nil {
			return Null(), vm.wrapError(fr, err)
		}
	}
	return Null(), nil
}

// tick enforces the instruction budget and cancellation, then reports to the trace hook.
func (vm *VM) tick(fr *frame, op bytecode.OpCode) error {
	vm.instCount++
	if limit := vm.cfg.InstructionLimit; limit > 0 && vm.instCount > limit {
		log.Warningf("instruction limit %d reached", limit)
		return errs.InstructionLimit.New("instruction limit %d exceeded", limit)
	}
	if vm.instCount&1023 == 0 && vm.ctx != nil {
		if err := vm.ctx.Err(); err != nil {
			return errs.Cancelled.Wrap(err, "execution cancelled")
		}
	}
	if vm.traceHook != nil {
		vm.trace(fr, op)
	}
	return nil
}

// getOrRoot resolves an unresolved name: through this first, then the root table.
func (vm *VM) getOrRoot(this, key Value) (Value, error) {
	if indexable(this) && this.Table() != vm.root {
		v, err := vm.get(this, key)
		if err == nil || !errs.Is(err, errs.NotFound) {
			return v, err
		}
	}
	if v, ok := vm.root.Get(key); ok {
		return v, nil
	}
	return Null(), errs.NotFound.New("unresolved symbol %s", rawString(key))
}

func literalValue(lit any) Value {
	switch v := lit.(type) {
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case string:
		return String(v)
	case bool:
		return Bool(v)
	}
	return Null()
}

// enumSlot stores one enum member. The slot after the table holds the next
// automatic value: members without a value take it, integer members reset it.
func (vm *VM) enumSlot(at int, key, v Value) error {
	counter := &vm.stack[at+1]
	switch v.Kind {
	case KindNone:
		v = *counter
		*counter = Int(counter.Int + 1)
	case KindInt:
		*counter = Int(v.Int + 1)
	case KindFloat, KindBool, KindString:
	default:
		return errs.InvalidType.New("enum member %s cannot hold a %s", describeKey(key), typeName(v))
	}
	return vm.set(vm.stack[at], key, v, true)
}

// MatchesType reports whether v satisfies a declared type mask. TypeAny accepts everything.
func MatchesType(v Value, mask uint32) bool {
	if mask == bytecode.TypeAny {
		return true
	}
	var bit uint32
	switch v.Kind {
	case KindNull, KindNone:
		bit = bytecode.TypeNull
	case KindBool:
		bit = bytecode.TypeBool
	case KindInt:
		bit = bytecode.TypeInt
	case KindFloat:
		bit = bytecode.TypeFloat
	case KindString:
		bit = bytecode.TypeString
	case KindTable:
		bit = bytecode.TypeTable
	case KindArray:
		bit = bytecode.TypeArray
	case KindClosure, KindNative:
		bit = bytecode.TypeFunction
	case KindUserData:
		bit = bytecode.TypeUserData
	}
	return mask&bit != 0
}
