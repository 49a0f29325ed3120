package compiler

import (
	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/token"
)

type exprKind int

const (
	exprNone    exprKind = iota
	exprValue            // temporary in slot, owns one target
	exprLocal            // named local in slot, owns one var target
	exprCapture          // capture index in slot
	exprGlobal           // unresolved name, key operand in key
	exprIndex            // slot[key]; owns the object target and maybe a key target
)

// expr describes an expression whose value has not necessarily been materialized yet.
type expr struct {
	kind      exprKind
	slot      int
	key       int
	keyTarget bool
	name      string
}

type binOp struct {
	prec int
	op   bytecode.OpCode
}

var binaryOps = map[token.Type]binOp{
	token.OrOr:         {1, bytecode.OpOr},
	token.AndAnd:       {2, bytecode.OpAnd},
	token.Pipe:         {3, bytecode.OpBitOr},
	token.Caret:        {4, bytecode.OpBitXor},
	token.Amp:          {5, bytecode.OpBitAnd},
	token.Equal:        {6, bytecode.OpEq},
	token.NotEqual:     {6, bytecode.OpNe},
	token.StrictEqual:  {6, bytecode.OpStrictEq},
	token.Less:         {7, bytecode.OpLt},
	token.LessEqual:    {7, bytecode.OpLe},
	token.Greater:      {7, bytecode.OpGt},
	token.GreaterEqual: {7, bytecode.OpGe},
	token.Compare:      {7, bytecode.OpCompare},
	token.LShift:       {8, bytecode.OpShl},
	token.RShift:       {8, bytecode.OpShr},
	token.Plus:         {9, bytecode.OpAdd},
	token.Minus:        {9, bytecode.OpSub},
	token.Star:         {10, bytecode.OpMul},
	token.Slash:        {10, bytecode.OpDiv},
	token.Percent:      {10, bytecode.OpMod},
}

// OpNop marks plain assignment.
var assignOps = map[token.Type]bytecode.OpCode{
	token.Assign:    bytecode.OpNop,
	token.PlusEq:    bytecode.OpAdd,
	token.MinusEq:   bytecode.OpSub,
	token.StarEq:    bytecode.OpMul,
	token.SlashEq:   bytecode.OpDiv,
	token.PercentEq: bytecode.OpMod,
	token.AmpEq:     bytecode.OpBitAnd,
	token.PipeEq:    bytecode.OpBitOr,
	token.CaretEq:   bytecode.OpBitXor,
	token.LShiftEq:  bytecode.OpShl,
	token.RShiftEq:  bytecode.OpShr,
}

var unaryOps = map[token.Type]bytecode.OpCode{
	token.Minus:  bytecode.OpUnm,
	token.Bang:   bytecode.OpNot,
	token.Tilde:  bytecode.OpBitNot,
	token.Typeof: bytecode.OpTypeof,
}

func (c *compiler) loadInt(v int64) expr {
	t := c.cs.newTarget()
	if v >= bytecode.MinSBx && v <= bytecode.MaxSBx {
		c.cs.emit(bytecode.AsBx(bytecode.OpLoadInt, t, int(v)))
	} else {
		c.cs.emit(bytecode.ABx(bytecode.OpLoad, t, c.cs.getLiteral(v)))
	}
	return expr{kind: exprValue, slot: t}
}

func (c *compiler) loadLiteral(v any) expr {
	t := c.cs.newTarget()
	c.cs.emit(bytecode.ABx(bytecode.OpLoad, t, c.cs.getLiteral(v)))
	return expr{kind: exprValue, slot: t}
}

func (c *compiler) loadOp(op bytecode.OpCode, b int) expr {
	t := c.cs.newTarget()
	c.cs.emit(bytecode.ABC(op, t, b, 0))
	return expr{kind: exprValue, slot: t}
}

// keyOperand returns an RK operand for a literal key, spilling to a target when the
// literal index is too large for RK addressing.
func (c *compiler) keyOperand(v any) (int, bool) {
	idx := c.cs.getLiteral(v)
	if idx <= bytecode.MaxRKLiteral {
		return bytecode.RK(idx), false
	}
	t := c.cs.newTarget()
	c.cs.emit(bytecode.ABx(bytecode.OpLoad, t, idx))
	return t, true
}

func (c *compiler) freeExpr(e expr) {
	switch e.kind {
	case exprValue, exprLocal:
		c.cs.popTarget()
	case exprGlobal:
		if e.keyTarget {
			c.cs.popTarget()
		}
	case exprIndex:
		if e.keyTarget {
			c.cs.popTarget()
		}
		c.cs.popTarget()
	}
}

// toNextReg materializes e into a fresh temporary on top of the frame.
func (c *compiler) toNextReg(e expr) int {
	cs := c.cs
	switch e.kind {
	case exprValue:
		return e.slot
	case exprLocal:
		cs.popTarget()
		t := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpMove, t, e.slot, 0))
		return t
	case exprCapture:
		t := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpGetCapture, t, e.slot, 0))
		return t
	case exprGlobal:
		c.freeExpr(e)
		t := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpGetOrRoot, t, 0, e.key))
		return t
	case exprIndex:
		c.freeExpr(e)
		t := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpGet, t, e.slot, e.key))
		return t
	default:
		t := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpLoadNull, t, 0, 0))
		return t
	}
}

// toAnyReg returns a register holding e; named locals are used in place.
func (c *compiler) toAnyReg(e expr) int {
	if e.kind == exprLocal {
		return e.slot
	}
	return c.toNextReg(e)
}

func (c *compiler) materialize(e expr) expr {
	if e.kind == exprLocal {
		return e
	}
	return expr{kind: exprValue, slot: c.toNextReg(e)}
}

// exprToSlot stores e into dst and releases e's targets.
func (c *compiler) exprToSlot(e expr, dst int) {
	cs := c.cs
	switch e.kind {
	case exprValue, exprLocal:
		if e.slot != dst {
			cs.emit(bytecode.ABC(bytecode.OpMove, dst, e.slot, 0))
		}
	case exprCapture:
		cs.emit(bytecode.ABC(bytecode.OpGetCapture, dst, e.slot, 0))
	case exprGlobal:
		cs.emit(bytecode.ABC(bytecode.OpGetOrRoot, dst, 0, e.key))
	case exprIndex:
		cs.emit(bytecode.ABC(bytecode.OpGet, dst, e.slot, e.key))
	default:
		cs.emit(bytecode.ABC(bytecode.OpLoadNull, dst, 0, 0))
	}
	c.freeExpr(e)
}

// keepResult drops every target above base and leaves the value of m on top.
func (c *compiler) keepResult(base int, m expr, want bool) expr {
	cs := c.cs
	cs.resetTargets(base)
	if !want {
		return expr{}
	}
	if m.kind == exprLocal {
		cs.pushVarTarget(m.slot)
		return m
	}
	t := cs.newTarget()
	if t != m.slot {
		cs.emit(bytecode.ABC(bytecode.OpMove, t, m.slot, 0))
	}
	return expr{kind: exprValue, slot: t}
}

func (c *compiler) expression() (expr, error) {
	return c.assignment(true)
}

func (c *compiler) assignment(want bool) (expr, error) {
	base := len(c.cs.targets)
	lhs, err := c.ternary()
	if err != nil {
		return expr{}, err
	}
	op, ok := assignOps[c.tok.Type]
	if !ok {
		return lhs, nil
	}
	if err := c.next(); err != nil {
		return expr{}, err
	}
	return c.assign(lhs, op, base, want)
}

// rhs compiles the right side of an assignment into a register.
func (c *compiler) rhs() (expr, error) {
	r, err := c.assignment(true)
	if err != nil {
		return expr{}, err
	}
	return c.materialize(r), nil
}

func (c *compiler) assign(lhs expr, op bytecode.OpCode, base int, want bool) (expr, error) {
	cs := c.cs
	compound := op != bytecode.OpNop
	switch lhs.kind {
	case exprLocal:
		v := cs.vlocals[lhs.slot]
		if v.isConst {
			return expr{}, c.errorf(errs.ConstAssignment, "cannot assign to const %s", v.name)
		}
		r, err := c.rhs()
		if err != nil {
			return expr{}, err
		}
		if compound {
			cs.emit(bytecode.ABC(op, lhs.slot, lhs.slot, r.slot))
			cs.popTarget()
		} else {
			c.exprToSlot(r, lhs.slot)
		}
		c.checkType(lhs.slot, v.typeMask)
		return c.keepResult(base, lhs, want), nil

	case exprCapture:
		if compound {
			t := cs.newTarget()
			cs.emit(bytecode.ABC(bytecode.OpGetCapture, t, lhs.slot, 0))
			r, err := c.rhs()
			if err != nil {
				return expr{}, err
			}
			cs.emit(bytecode.ABC(op, t, t, r.slot))
			cs.emit(bytecode.ABC(bytecode.OpSetCapture, lhs.slot, t, 0))
			return c.keepResult(base, expr{kind: exprValue, slot: t}, want), nil
		}
		r, err := c.rhs()
		if err != nil {
			return expr{}, err
		}
		cs.emit(bytecode.ABC(bytecode.OpSetCapture, lhs.slot, r.slot, 0))
		return c.keepResult(base, r, want), nil

	case exprIndex:
		if compound {
			t := cs.newTarget()
			cs.emit(bytecode.ABC(bytecode.OpGet, t, lhs.slot, lhs.key))
			r, err := c.rhs()
			if err != nil {
				return expr{}, err
			}
			cs.emit(bytecode.ABC(op, t, t, r.slot))
			cs.emit(bytecode.ABC(bytecode.OpSet, lhs.slot, lhs.key, t))
			return c.keepResult(base, expr{kind: exprValue, slot: t}, want), nil
		}
		r, err := c.rhs()
		if err != nil {
			return expr{}, err
		}
		cs.emit(bytecode.ABC(bytecode.OpSet, lhs.slot, lhs.key, r.slot))
		return c.keepResult(base, r, want), nil

	case exprGlobal:
		if !c.opts.GlobalDeclarations {
			return expr{}, c.errorf(errs.UnresolvedSymbol, "assignment to undeclared variable %s", lhs.name)
		}
		if compound {
			t := cs.newTarget()
			cs.emit(bytecode.ABC(bytecode.OpGetOrRoot, t, 0, lhs.key))
			r, err := c.rhs()
			if err != nil {
				return expr{}, err
			}
			cs.emit(bytecode.ABC(op, t, t, r.slot))
			c.storeRootKey(lhs.key, t, true)
			return c.keepResult(base, expr{kind: exprValue, slot: t}, want), nil
		}
		r, err := c.rhs()
		if err != nil {
			return expr{}, err
		}
		c.storeRootKey(lhs.key, r.slot, true)
		return c.keepResult(base, r, want), nil
	}
	return expr{}, c.errorf(errs.Syntax, "invalid assignment target")
}

func (c *compiler) increment(e expr, mode bytecode.IncrMode, base int) (expr, error) {
	cs := c.cs
	var t int
	switch e.kind {
	case exprLocal:
		v := cs.vlocals[e.slot]
		if v.isConst {
			return expr{}, c.errorf(errs.ConstAssignment, "cannot modify const %s", v.name)
		}
		t = cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpIncr, t, e.slot, int(mode)))
		c.checkType(e.slot, v.typeMask)
	case exprCapture:
		v := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpGetCapture, v, e.slot, 0))
		t = cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpIncr, t, v, int(mode)))
		cs.emit(bytecode.ABC(bytecode.OpSetCapture, e.slot, v, 0))
	case exprIndex:
		v := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpGet, v, e.slot, e.key))
		t = cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpIncr, t, v, int(mode)))
		cs.emit(bytecode.ABC(bytecode.OpSet, e.slot, e.key, v))
	case exprGlobal:
		if !c.opts.GlobalDeclarations {
			return expr{}, c.errorf(errs.UnresolvedSymbol, "increment of undeclared variable %s", e.name)
		}
		v := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpGetOrRoot, v, 0, e.key))
		t = cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpIncr, t, v, int(mode)))
		c.storeRootKey(e.key, v, true)
	default:
		return expr{}, c.errorf(errs.Syntax, "invalid increment operand")
	}
	return c.keepResult(base, expr{kind: exprValue, slot: t}, true), nil
}

func (c *compiler) ternary() (expr, error) {
	cond, err := c.binary(1)
	if err != nil || c.tok.Type != token.Question {
		return cond, err
	}
	if err := c.next(); err != nil {
		return expr{}, err
	}
	cs := c.cs
	skip := c.emitJump(bytecode.OpJz, c.toAnyReg(cond))
	cs.popTarget()
	t := cs.newTarget()
	e, err := c.expression()
	if err != nil {
		return expr{}, err
	}
	c.exprToSlot(e, t)
	if err := c.expect(token.Colon, "':'"); err != nil {
		return expr{}, err
	}
	end := c.emitJump(bytecode.OpJmp, 0)
	c.patchHere(skip)
	if e, err = c.ternary(); err != nil {
		return expr{}, err
	}
	c.exprToSlot(e, t)
	c.patchHere(end)
	return expr{kind: exprValue, slot: t}, nil
}

func (c *compiler) binary(minPrec int) (expr, error) {
	lhs, err := c.unary()
	if err != nil {
		return expr{}, err
	}
	cs := c.cs
	for {
		bo, ok := binaryOps[c.tok.Type]
		if !ok || bo.prec < minPrec {
			return lhs, nil
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
		if bo.op == bytecode.OpAnd || bo.op == bytecode.OpOr {
			// R[t] = bool(lhs); short-circuit past the right side
			t := c.toNextReg(lhs)
			j := cs.emit(bytecode.ABsC(bo.op, t, t, 0))
			r, err := c.binary(bo.prec + 1)
			if err != nil {
				return expr{}, err
			}
			cs.emit(bytecode.ABsC(bo.op, t, c.toAnyReg(r), 1))
			cs.popTarget()
			c.patchHere(j)
			lhs = expr{kind: exprValue, slot: t}
			continue
		}
		lreg := c.toAnyReg(lhs)
		r, err := c.binary(bo.prec + 1)
		if err != nil {
			return expr{}, err
		}
		rreg := c.toAnyReg(r)
		cs.popTarget()
		cs.popTarget()
		t := cs.newTarget()
		cs.emit(bytecode.ABC(bo.op, t, lreg, rreg))
		lhs = expr{kind: exprValue, slot: t}
	}
}

func (c *compiler) unary() (expr, error) {
	base := len(c.cs.targets)
	if op, ok := unaryOps[c.tok.Type]; ok {
		if err := c.next(); err != nil {
			return expr{}, err
		}
		operand, err := c.unary()
		if err != nil {
			return expr{}, err
		}
		reg := c.toAnyReg(operand)
		c.cs.popTarget()
		return c.loadOp(op, reg), nil
	}
	if c.tok.Type == token.Incr || c.tok.Type == token.Decr {
		mode := bytecode.PreIncr
		if c.tok.Type == token.Decr {
			mode = bytecode.PreDecr
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
		operand, err := c.unary()
		if err != nil {
			return expr{}, err
		}
		return c.increment(operand, mode, base)
	}
	return c.power()
}

// power is right associative and binds tighter than unary minus on its left.
func (c *compiler) power() (expr, error) {
	lhs, err := c.postfix()
	if err != nil || c.tok.Type != token.Exp {
		return lhs, err
	}
	if err := c.next(); err != nil {
		return expr{}, err
	}
	lreg := c.toAnyReg(lhs)
	r, err := c.unary()
	if err != nil {
		return expr{}, err
	}
	rreg := c.toAnyReg(r)
	c.cs.popTarget()
	c.cs.popTarget()
	t := c.cs.newTarget()
	c.cs.emit(bytecode.ABC(bytecode.OpExp, t, lreg, rreg))
	return expr{kind: exprValue, slot: t}, nil
}

func (c *compiler) postfix() (expr, error) {
	base := len(c.cs.targets)
	e, err := c.primary()
	if err != nil {
		return expr{}, err
	}
	for {
		switch c.tok.Type {
		case token.Dot:
			if err := c.next(); err != nil {
				return expr{}, err
			}
			if !isName(c.tok) {
				return expr{}, c.errorf(errs.Syntax, "expected member name, found %s", c.describe())
			}
			name := c.tok.Literal
			if err := c.next(); err != nil {
				return expr{}, err
			}
			obj := c.toAnyReg(e)
			key, keyTarget := c.keyOperand(name)
			e = expr{kind: exprIndex, slot: obj, key: key, keyTarget: keyTarget}
		case token.LBracket:
			if err := c.next(); err != nil {
				return expr{}, err
			}
			if e, err = c.indexKey(e); err != nil {
				return expr{}, err
			}
		case token.LParen:
			if e, err = c.call(e); err != nil {
				return expr{}, err
			}
		case token.Incr, token.Decr:
			mode := bytecode.PostIncr
			if c.tok.Type == token.Decr {
				mode = bytecode.PostDecr
			}
			if err := c.next(); err != nil {
				return expr{}, err
			}
			if e, err = c.increment(e, mode, base); err != nil {
				return expr{}, err
			}
		default:
			return e, nil
		}
	}
}

func (c *compiler) indexKey(obj expr) (expr, error) {
	o := c.toAnyReg(obj)
	if t := c.tok.Type; (t == token.String || t == token.Integer) && c.lex.Peek().Type == token.RBracket {
		var lit any = c.tok.Literal
		if t == token.Integer {
			lit = c.tok.Int
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
		key, keyTarget := c.keyOperand(lit)
		return expr{kind: exprIndex, slot: o, key: key, keyTarget: keyTarget}, c.expect(token.RBracket, "']'")
	}
	k, err := c.expression()
	if err != nil {
		return expr{}, err
	}
	key := c.toAnyReg(k)
	return expr{kind: exprIndex, slot: o, key: key, keyTarget: true}, c.expect(token.RBracket, "']'")
}

// call stages callee, receiver and arguments in consecutive slots.
// Method calls bind the object, unresolved names bind the caller's this, others the root.
func (c *compiler) call(fn expr) (expr, error) {
	cs := c.cs
	var a int
	switch fn.kind {
	case exprIndex:
		c.freeExpr(fn)
		a = cs.newTarget()
		cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpMethod, a, fn.slot, fn.key))
	case exprGlobal:
		a = c.toNextReg(fn)
		this := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpMove, this, 0, 0))
	default:
		a = c.toNextReg(fn)
		this := cs.newTarget()
		cs.emit(bytecode.ABC(bytecode.OpLoadRoot, this, 0, 0))
	}
	n, err := c.arguments()
	if err != nil {
		return expr{}, err
	}
	cs.emit(bytecode.ABC(bytecode.OpCall, a, n, 0))
	for i := 0; i <= n; i++ {
		cs.popTarget()
	}
	return expr{kind: exprValue, slot: a}, nil
}

// arguments compiles "(e, ...)" into consecutive fresh slots and returns the count.
func (c *compiler) arguments() (int, error) {
	if err := c.expect(token.LParen, "'('"); err != nil {
		return 0, err
	}
	n := 0
	for c.tok.Type != token.RParen {
		e, err := c.expression()
		if err != nil {
			return 0, err
		}
		c.toNextReg(e)
		n++
		if c.tok.Type != token.Comma {
			break
		}
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	return n, c.expect(token.RParen, "')'")
}

func (c *compiler) primary() (expr, error) {
	cs := c.cs
	tok := c.tok
	switch tok.Type {
	case token.Integer, token.Char:
		return c.loadInt(tok.Int), c.next()
	case token.Float:
		return c.loadLiteral(tok.Float), c.next()
	case token.String:
		return c.loadLiteral(tok.Literal), c.next()
	case token.True:
		return c.loadOp(bytecode.OpLoadBool, 1), c.next()
	case token.False:
		return c.loadOp(bytecode.OpLoadBool, 0), c.next()
	case token.Null:
		return c.loadOp(bytecode.OpLoadNull, 0), c.next()
	case token.None:
		return c.loadOp(bytecode.OpLoadNone, 0), c.next()
	case token.Global:
		return c.loadOp(bytecode.OpLoadRoot, 0), c.next()
	case token.This:
		cs.pushVarTarget(0)
		return expr{kind: exprLocal, slot: 0}, c.next()
	case token.Ident:
		return c.identifier()
	case token.LParen:
		if c.isArrowHead() {
			a := cs.newTarget()
			params, err := c.parameterList()
			if err != nil {
				return expr{}, err
			}
			if err := c.expect(token.Arrow, "'=>'"); err != nil {
				return expr{}, err
			}
			return c.functionBody("", tok.Pos.Line, a, params, true)
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
		e, err := c.expression()
		if err != nil {
			return expr{}, err
		}
		return e, c.expect(token.RParen, "')'")
	case token.Function:
		if err := c.next(); err != nil {
			return expr{}, err
		}
		name := ""
		if c.tok.Type == token.Ident {
			name = c.tok.Literal
			if err := c.next(); err != nil {
				return expr{}, err
			}
		}
		return c.functionLiteral(name)
	case token.Class:
		if err := c.next(); err != nil {
			return expr{}, err
		}
		return c.classBody("")
	case token.Struct:
		if err := c.next(); err != nil {
			return expr{}, err
		}
		if c.tok.Type == token.Ident {
			return expr{}, c.errorf(errs.Syntax, "a struct expression cannot be named")
		}
		return c.structBody("")
	case token.LBracket:
		return c.arrayLiteral()
	case token.LBrace:
		return c.tableLiteral()
	}
	return expr{}, c.errorf(errs.Syntax, "unexpected %s", c.describe())
}

func (c *compiler) identifier() (expr, error) {
	cs := c.cs
	name := c.tok.Literal
	line := c.tok.Pos.Line
	peek := c.lex.Peek().Type
	if err := c.next(); err != nil {
		return expr{}, err
	}
	if peek == token.Arrow {
		if err := c.next(); err != nil {
			return expr{}, err
		}
		a := cs.newTarget()
		return c.functionBody("", line, a, paramList{names: []string{name}}, true)
	}
	if slot, ok := cs.findLocal(name); ok {
		cs.pushVarTarget(slot)
		return expr{kind: exprLocal, slot: slot, name: name}, nil
	}
	if idx, ok := cs.getCapture(name); ok {
		return expr{kind: exprCapture, slot: idx, name: name}, nil
	}
	if spec, ok := runtime.LookupByName(name); ok && peek == token.LParen {
		return c.builtinCall(spec)
	}
	key, keyTarget := c.keyOperand(name)
	return expr{kind: exprGlobal, key: key, keyTarget: keyTarget, name: name}, nil
}

func (c *compiler) isArrowHead() bool {
	s := c.lex.Snapshot()
	defer c.lex.Restore(s)
	if !c.lex.SkipBalanced(token.LParen, token.RParen) {
		return false
	}
	return c.lex.NextToken().Type == token.Arrow
}

func (c *compiler) arrayLiteral() (expr, error) {
	if err := c.next(); err != nil {
		return expr{}, err
	}
	t := c.loadOp(bytecode.OpNewArray, 0)
	for c.tok.Type != token.RBracket {
		e, err := c.expression()
		if err != nil {
			return expr{}, err
		}
		c.cs.emit(bytecode.ABC(bytecode.OpArrayAppend, t.slot, c.toAnyReg(e), 0))
		c.cs.popTarget()
		if c.tok.Type != token.Comma {
			break
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
	}
	return t, c.expect(token.RBracket, "']'")
}

// tableLiteral compiles {a: 1, "b": 2, [k]: v, 3: x, m() {...}}.
func (c *compiler) tableLiteral() (expr, error) {
	if err := c.next(); err != nil {
		return expr{}, err
	}
	cs := c.cs
	t := c.loadOp(bytecode.OpNewTable, 0)
	for c.tok.Type != token.RBrace {
		switch {
		case c.tok.Type == token.LBracket:
			if err := c.next(); err != nil {
				return expr{}, err
			}
			k, err := c.expression()
			if err != nil {
				return expr{}, err
			}
			kreg := c.toAnyReg(k)
			if err := c.expect(token.RBracket, "']'"); err != nil {
				return expr{}, err
			}
			if err := c.fieldSeparator(); err != nil {
				return expr{}, err
			}
			v, err := c.expression()
			if err != nil {
				return expr{}, err
			}
			cs.emit(bytecode.ABC(bytecode.OpSet, t.slot, kreg, c.toAnyReg(v)))
			cs.popTarget()
			cs.popTarget()
		case isName(c.tok) || c.tok.Type == token.String || c.tok.Type == token.Integer:
			var key any = c.tok.Literal
			if c.tok.Type == token.Integer {
				key = c.tok.Int
			}
			name := c.tok.Literal
			isMethod := c.tok.Type != token.Integer && c.lex.Peek().Type == token.LParen
			if err := c.next(); err != nil {
				return expr{}, err
			}
			var v expr
			var err error
			if isMethod {
				v, err = c.functionLiteral(name)
			} else if err = c.fieldSeparator(); err == nil {
				v, err = c.expression()
			}
			if err != nil {
				return expr{}, err
			}
			c.setField(t.slot, key, c.toAnyReg(v))
			cs.popTarget()
		default:
			return expr{}, c.errorf(errs.Syntax, "expected table key, found %s", c.describe())
		}
		if c.tok.Type != token.Comma && c.tok.Type != token.Semicolon {
			break
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
	}
	return t, c.expect(token.RBrace, "'}'")
}

func (c *compiler) fieldSeparator() error {
	if c.tok.Type == token.Colon || c.tok.Type == token.Assign {
		return c.next()
	}
	return c.errorf(errs.Syntax, "expected ':' or '=', found %s", c.describe())
}
