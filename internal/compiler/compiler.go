package compiler

import (
	"strconv"

	"github.com/joomcode/errorx"
	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/lexer"
	"github.com/xirelogy/go-zscript/internal/token"
)

var log = commonlog.GetLogger("zscript.compiler")

// Options tunes compilation.
type Options struct {
	// GlobalDeclarations makes top-level declarations of the main chunk, and assignments
	// to unresolved names, write the root table instead of frame locals.
	GlobalDeclarations bool
}

type loopState struct {
	parent    *loopState
	closeBase int
	breaks    []int
	continues []int
}

type compiler struct {
	lex    *lexer.Lexer
	tok    token.Token
	source string
	opts   Options

	cs         *compileState
	loop       *loopState
	resultSlot int
}

// Compile translates source text into the prototype of its main chunk in a single pass.
// The main chunk returns the value of the last top-level expression statement it executed.
func Compile(src, source string, opts Options) (*bytecode.Prototype, error) {
	c := &compiler{
		lex:    lexer.New(src),
		source: source,
		opts:   opts,
	}
	c.cs = newCompileState(nil, "main", source, 1)
	c.resultSlot = c.cs.pushLocalVariable("(result)", bytecode.TypeAny, false)
	if err := c.next(); err != nil {
		return nil, err
	}
	for c.tok.Type != token.EOF {
		if err := c.statement(); err != nil {
			return nil, err
		}
	}
	c.cs.emit(bytecode.ABC(bytecode.OpReturn, c.resultSlot, 1, 0))
	if c.cs.err != nil {
		return nil, c.cs.err
	}
	proto := c.cs.buildPrototype()
	log.Debugf("compiled %s: %d instructions, %d literals, %d functions", source, len(proto.Code), len(proto.Literals), len(proto.Functions))
	return proto, nil
}

func (c *compiler) next() error {
	if c.cs != nil && c.tok.Pos.Line > 0 {
		c.cs.pos = c.tok.Pos
	}
	c.tok = c.lex.NextToken()
	if c.tok.Type == token.Illegal {
		return errs.At(errs.LexError.New("%s", c.tok.Literal), c.source, c.tok.Pos.Line, c.tok.Pos.Column)
	}
	return nil
}

func (c *compiler) errorf(t *errorx.Type, format string, args ...any) error {
	if c.cs.err != nil {
		return c.cs.err
	}
	return errs.At(t.New(format, args...), c.source, c.tok.Pos.Line, c.tok.Pos.Column)
}

func (c *compiler) describe() string {
	switch c.tok.Type {
	case token.EOF:
		return "end of input"
	case token.String:
		return strconv.Quote(c.tok.Literal)
	}
	if c.tok.Literal != "" {
		return "'" + c.tok.Literal + "'"
	}
	return string(c.tok.Type)
}

func (c *compiler) expect(t token.Type, what string) error {
	if c.tok.Type != t {
		return c.errorf(errs.Syntax, "expected %s, found %s", what, c.describe())
	}
	return c.next()
}

func (c *compiler) optionalSemicolon() error {
	if c.tok.Type == token.Semicolon {
		return c.next()
	}
	return nil
}

// isName accepts identifiers and keywords, which are valid member names.
func isName(t token.Token) bool {
	return t.Literal != "" && token.LookupIdent(t.Literal) == t.Type
}

func (c *compiler) atTopLevel() bool {
	return c.cs.parent == nil && c.cs.scopeID == 0
}

func (c *compiler) globalDecl() bool {
	return c.opts.GlobalDeclarations && c.atTopLevel()
}

func (c *compiler) statement() error {
	base := len(c.cs.targets)
	if err := c.statementBody(); err != nil {
		return err
	}
	c.cs.resetTargets(base)
	return c.cs.err
}

func (c *compiler) statementBody() error {
	switch c.tok.Type {
	case token.Semicolon:
		return c.next()
	case token.LBrace:
		return c.block()
	case token.Var, token.Const:
		return c.declarationStatement()
	case token.Function:
		if c.lex.Peek().Type == token.Ident {
			return c.functionDeclaration()
		}
	case token.Class:
		if c.lex.Peek().Type == token.Ident {
			return c.classDeclaration()
		}
	case token.Struct:
		if c.lex.Peek().Type == token.Ident {
			return c.structDeclaration()
		}
	case token.Enum:
		return c.enumDeclaration()
	case token.If:
		return c.ifStatement()
	case token.While:
		return c.whileStatement()
	case token.Do:
		return c.doWhileStatement()
	case token.For:
		return c.forStatement()
	case token.Break, token.Continue:
		return c.jumpStatement()
	case token.Return:
		return c.returnStatement()
	}
	if token.IsTypeAnnotation(c.tok.Type) {
		return c.declarationStatement()
	}
	return c.expressionStatement()
}

func (c *compiler) block() error {
	if err := c.expect(token.LBrace, "'{'"); err != nil {
		return err
	}
	m := c.cs.enterScope()
	if err := c.statementsUntilBrace(); err != nil {
		return err
	}
	c.closeScope(m)
	return c.expect(token.RBrace, "'}'")
}

func (c *compiler) statementsUntilBrace() error {
	for c.tok.Type != token.RBrace {
		if c.tok.Type == token.EOF {
			return c.errorf(errs.Syntax, "unexpected end of input, expected '}'")
		}
		if err := c.statement(); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) scopedStatement() error {
	m := c.cs.enterScope()
	if err := c.statement(); err != nil {
		return err
	}
	c.closeScope(m)
	return nil
}

func (c *compiler) closeScope(m scopeMark) {
	if c.cs.exitScope(m) {
		c.cs.emit(bytecode.ABC(bytecode.OpClose, m.size, 0, 0))
	}
}

func (c *compiler) expressionStatement() error {
	e, err := c.assignment(false)
	if err != nil {
		return err
	}
	if c.cs.parent == nil && e.kind != exprNone {
		c.exprToSlot(e, c.resultSlot)
	}
	return c.optionalSemicolon()
}

func (c *compiler) declarationStatement() error {
	if err := c.declaration(); err != nil {
		return err
	}
	return c.optionalSemicolon()
}

func typeMaskOf(t token.Type) (uint32, bool) {
	switch t {
	case token.IntType:
		return bytecode.TypeInt, true
	case token.FloatType:
		return bytecode.TypeFloat, true
	case token.NumberType:
		return bytecode.TypeNumber, true
	case token.BoolType:
		return bytecode.TypeBool, true
	case token.StringType:
		return bytecode.TypeString, true
	case token.TableType:
		return bytecode.TypeTable, true
	case token.ArrayType:
		return bytecode.TypeArray, true
	case token.Null:
		return bytecode.TypeNull, true
	case token.Function:
		return bytecode.TypeFunction, true
	}
	return 0, false
}

// typeAnnotation consumes the declaration keyword and an optional type list.
func (c *compiler) typeAnnotation() (uint32, error) {
	kw := c.tok.Type
	if err := c.next(); err != nil {
		return 0, err
	}
	if kw != token.Var && kw != token.Const {
		mask, _ := typeMaskOf(kw)
		return mask, nil
	}
	if kw == token.Const {
		if mask, ok := typeMaskOf(c.tok.Type); ok && token.IsTypeAnnotation(c.tok.Type) {
			return mask, c.next()
		}
		return bytecode.TypeAny, nil
	}
	if c.tok.Type != token.Less {
		return bytecode.TypeAny, nil
	}
	if err := c.next(); err != nil {
		return 0, err
	}
	var mask uint32
	for {
		m, ok := typeMaskOf(c.tok.Type)
		if !ok {
			return 0, c.errorf(errs.InvalidTypeAnnotation, "unknown type %s", c.describe())
		}
		mask |= m
		if err := c.next(); err != nil {
			return 0, err
		}
		if c.tok.Type != token.Comma {
			break
		}
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	return mask, c.expect(token.Greater, "'>'")
}

func (c *compiler) checkType(slot int, mask uint32) {
	if mask != bytecode.TypeAny {
		c.cs.emit(bytecode.ABx(bytecode.OpCheckType, slot, int(mask)))
	}
}

func (c *compiler) emitZero(slot int, mask uint32) {
	cs := c.cs
	switch {
	case mask&bytecode.TypeInt != 0:
		cs.emit(bytecode.AsBx(bytecode.OpLoadInt, slot, 0))
	case mask&bytecode.TypeFloat != 0:
		cs.emit(bytecode.ABx(bytecode.OpLoad, slot, cs.getLiteral(0.0)))
	case mask&bytecode.TypeBool != 0:
		cs.emit(bytecode.ABC(bytecode.OpLoadBool, slot, 0, 0))
	case mask&bytecode.TypeString != 0:
		cs.emit(bytecode.ABx(bytecode.OpLoad, slot, cs.getLiteral("")))
	case mask&bytecode.TypeTable != 0:
		cs.emit(bytecode.ABC(bytecode.OpNewTable, slot, 0, 0))
	case mask&bytecode.TypeArray != 0:
		cs.emit(bytecode.ABC(bytecode.OpNewArray, slot, 0, 0))
	default:
		cs.emit(bytecode.ABC(bytecode.OpLoadNull, slot, 0, 0))
	}
}

func (c *compiler) declaration() error {
	isConst := c.tok.Type == token.Const
	mask, err := c.typeAnnotation()
	if err != nil {
		return err
	}
	for {
		if c.tok.Type != token.Ident {
			return c.errorf(errs.Syntax, "expected variable name, found %s", c.describe())
		}
		name := c.tok.Literal
		if err := c.next(); err != nil {
			return err
		}
		// const stays a frame local so assignments to it are still rejected.
		global := c.globalDecl() && !isConst
		if c.tok.Type == token.Assign {
			if err := c.next(); err != nil {
				return err
			}
			e, err := c.expression()
			if err != nil {
				return err
			}
			if global {
				reg := c.toAnyReg(e)
				c.checkType(reg, mask)
				c.storeRoot(name, reg, false)
				c.cs.popTarget()
			} else {
				slot := c.toNextReg(e)
				c.checkType(slot, mask)
				c.cs.nameTopTarget(name, mask, isConst)
			}
		} else {
			if isConst {
				return c.errorf(errs.Syntax, "const %s requires an initializer", name)
			}
			slot := c.cs.newTypedTarget(mask)
			c.emitZero(slot, mask)
			if global {
				c.storeRoot(name, slot, false)
				c.cs.popTarget()
			} else {
				c.cs.nameTopTarget(name, mask, false)
			}
		}
		if c.tok.Type != token.Comma {
			return nil
		}
		if err := c.next(); err != nil {
			return err
		}
	}
}

// storeRoot writes reg into the root table under name.
func (c *compiler) storeRoot(name string, reg int, existing bool) {
	key, keyTarget := c.keyOperand(name)
	c.storeRootKey(key, reg, existing)
	if keyTarget {
		c.cs.popTarget()
	}
}

func (c *compiler) storeRootKey(key, reg int, existing bool) {
	op := bytecode.OpSet
	if existing {
		op = bytecode.OpSetExisting
	}
	root := c.cs.newTarget()
	c.cs.emit(bytecode.ABC(bytecode.OpLoadRoot, root, 0, 0))
	c.cs.emit(bytecode.ABC(op, root, key, reg))
	c.cs.popTarget()
}

func (c *compiler) functionDeclaration() error {
	if err := c.next(); err != nil {
		return err
	}
	name := c.tok.Literal
	if err := c.next(); err != nil {
		return err
	}
	if c.globalDecl() {
		f, err := c.functionLiteral(name)
		if err != nil {
			return err
		}
		c.storeRoot(name, f.slot, false)
		c.cs.popTarget()
		return nil
	}
	// declared before the body so the function can refer to itself
	slot := c.cs.pushLocalVariable(name, bytecode.TypeAny, false)
	f, err := c.functionLiteral(name)
	if err != nil {
		return err
	}
	c.cs.emit(bytecode.ABC(bytecode.OpMove, slot, f.slot, 0))
	c.cs.popTarget()
	return nil
}

// functionLiteral compiles "(params) { body }" into a closure held in a new target.
func (c *compiler) functionLiteral(name string) (expr, error) {
	line := c.tok.Pos.Line
	a := c.cs.newTarget()
	params, err := c.parameterList()
	if err != nil {
		return expr{}, err
	}
	return c.functionBody(name, line, a, params, false)
}

type paramList struct {
	names     []string
	nDefaults int
	variadic  bool
}

// parameterList compiles default values into the targets following the closure slot.
// A trailing "name..." or bare "..." (named vargv) collects extra arguments.
func (c *compiler) parameterList() (paramList, error) {
	var pl paramList
	if err := c.expect(token.LParen, "'('"); err != nil {
		return pl, err
	}
	for c.tok.Type != token.RParen {
		if c.tok.Type == token.Ellipsis {
			pl.names = append(pl.names, "vargv")
			pl.variadic = true
			if err := c.next(); err != nil {
				return pl, err
			}
			break
		}
		if c.tok.Type != token.Ident {
			return pl, c.errorf(errs.Syntax, "expected parameter name, found %s", c.describe())
		}
		name := c.tok.Literal
		pl.names = append(pl.names, name)
		if err := c.next(); err != nil {
			return pl, err
		}
		if c.tok.Type == token.Ellipsis {
			pl.variadic = true
			if err := c.next(); err != nil {
				return pl, err
			}
			break
		}
		if c.tok.Type == token.Assign {
			if err := c.next(); err != nil {
				return pl, err
			}
			e, err := c.expression()
			if err != nil {
				return pl, err
			}
			c.toNextReg(e)
			pl.nDefaults++
		} else if pl.nDefaults > 0 {
			return pl, c.errorf(errs.Syntax, "parameter %s needs a default value", name)
		}
		if c.tok.Type != token.Comma {
			break
		}
		if err := c.next(); err != nil {
			return pl, err
		}
	}
	if pl.variadic && c.tok.Type != token.RParen {
		return pl, c.errorf(errs.Syntax, "the variadic parameter must be the last one, found %s", c.describe())
	}
	return pl, c.expect(token.RParen, "')'")
}

func (c *compiler) functionBody(name string, line, a int, params paramList, arrow bool) (expr, error) {
	parent := c.cs
	child := newCompileState(parent, name, c.source, line)
	child.pos = parent.pos
	child.nDefaults = params.nDefaults
	child.variadic = params.variadic
	savedLoop := c.loop
	c.cs, c.loop = child, nil
	for _, p := range params.names {
		child.addParameter(p)
	}

	err := c.functionStatements(arrow)
	if err == nil {
		err = child.err
	}
	c.cs, c.loop = parent, savedLoop
	if err != nil {
		return expr{}, err
	}

	proto := child.buildPrototype()
	idx := len(parent.functions)
	parent.functions = append(parent.functions, proto)
	parent.emit(bytecode.ABx(bytecode.OpNewClosure, a, idx))
	for i := 0; i < params.nDefaults; i++ {
		parent.popTarget()
	}
	return expr{kind: exprValue, slot: a}, nil
}

func (c *compiler) functionStatements(arrow bool) error {
	if arrow && c.tok.Type != token.LBrace {
		e, err := c.expression()
		if err != nil {
			return err
		}
		c.cs.emit(bytecode.ABC(bytecode.OpReturn, c.toAnyReg(e), 1, 0))
		return nil
	}
	if err := c.expect(token.LBrace, "'{'"); err != nil {
		return err
	}
	if err := c.statementsUntilBrace(); err != nil {
		return err
	}
	c.cs.emit(bytecode.ABC(bytecode.OpReturn, 0, 0, 0))
	return c.expect(token.RBrace, "'}'")
}

func (c *compiler) classDeclaration() error {
	if err := c.next(); err != nil {
		return err
	}
	name := c.tok.Literal
	if err := c.next(); err != nil {
		return err
	}
	if c.globalDecl() {
		t, err := c.classBody(name)
		if err != nil {
			return err
		}
		c.storeRoot(name, t.slot, false)
		c.cs.popTarget()
		return nil
	}
	slot := c.cs.pushLocalVariable(name, bytecode.TypeAny, false)
	t, err := c.classBody(name)
	if err != nil {
		return err
	}
	c.cs.emit(bytecode.ABC(bytecode.OpMove, slot, t.slot, 0))
	c.cs.popTarget()
	return nil
}

// classBody compiles "{ members }" into a table. Instances are created by calling it.
func (c *compiler) classBody(name string) (expr, error) {
	if err := c.expect(token.LBrace, "'{'"); err != nil {
		return expr{}, err
	}
	t := c.cs.newTarget()
	c.cs.emit(bytecode.ABC(bytecode.OpNewTable, t, 0, 0))
	hasCtor := false
	for c.tok.Type != token.RBrace {
		if c.tok.Type == token.Semicolon || c.tok.Type == token.Comma {
			if err := c.next(); err != nil {
				return expr{}, err
			}
			continue
		}
		field := false
		if c.tok.Type == token.Var {
			field = true
			if err := c.next(); err != nil {
				return expr{}, err
			}
		}
		if !isName(c.tok) {
			return expr{}, c.errorf(errs.Syntax, "expected class member, found %s", c.describe())
		}
		member := c.tok.Literal
		if member == "constructor" {
			hasCtor = true
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
		var v expr
		var err error
		if !field && c.tok.Type == token.LParen {
			qualified := member
			if name != "" {
				qualified = name + "." + member
			}
			v, err = c.functionLiteral(qualified)
		} else {
			if err = c.expect(token.Assign, "'='"); err != nil {
				return expr{}, err
			}
			var e expr
			if e, err = c.expression(); err == nil {
				v = expr{kind: exprValue, slot: c.toAnyReg(e)}
			}
		}
		if err != nil {
			return expr{}, err
		}
		c.setField(t, member, v.slot)
		c.cs.popTarget()
	}
	if !hasCtor {
		c.emptyConstructor(t, name)
	}
	return expr{kind: exprValue, slot: t}, c.expect(token.RBrace, "'}'")
}

// emptyConstructor keeps a class without a constructor callable.
func (c *compiler) emptyConstructor(t int, name string) {
	parent := c.cs
	qualified := "constructor"
	if name != "" {
		qualified = name + ".constructor"
	}
	child := newCompileState(parent, qualified, c.source, parent.pos.Line)
	child.pos = parent.pos
	child.emit(bytecode.ABC(bytecode.OpReturn, 0, 0, 0))
	idx := len(parent.functions)
	parent.functions = append(parent.functions, child.buildPrototype())
	a := parent.newTarget()
	parent.emit(bytecode.ABx(bytecode.OpNewClosure, a, idx))
	c.setField(t, "constructor", a)
	parent.popTarget()
}

func (c *compiler) setField(obj int, key any, reg int) {
	k, keyTarget := c.keyOperand(key)
	c.cs.emit(bytecode.ABC(bytecode.OpSet, obj, k, reg))
	if keyTarget {
		c.cs.popTarget()
	}
}

func (c *compiler) condition() (int, error) {
	if err := c.expect(token.LParen, "'('"); err != nil {
		return 0, err
	}
	e, err := c.expression()
	if err != nil {
		return 0, err
	}
	if err := c.expect(token.RParen, "')'"); err != nil {
		return 0, err
	}
	reg := c.toAnyReg(e)
	c.cs.popTarget()
	return reg, nil
}

func (c *compiler) ifStatement() error {
	if err := c.next(); err != nil {
		return err
	}
	reg, err := c.condition()
	if err != nil {
		return err
	}
	skip := c.emitJump(bytecode.OpJz, reg)
	if err := c.scopedStatement(); err != nil {
		return err
	}
	if c.tok.Type != token.Else {
		c.patchHere(skip)
		return nil
	}
	if err := c.next(); err != nil {
		return err
	}
	end := c.emitJump(bytecode.OpJmp, 0)
	c.patchHere(skip)
	if err := c.scopedStatement(); err != nil {
		return err
	}
	c.patchHere(end)
	return nil
}

func (c *compiler) pushLoop(closeBase int) *loopState {
	l := &loopState{parent: c.loop, closeBase: closeBase}
	c.loop = l
	return l
}

func (c *compiler) popLoop(l *loopState, continueTarget, breakTarget int) {
	for _, at := range l.continues {
		c.patchJump(at, continueTarget)
	}
	for _, at := range l.breaks {
		c.patchJump(at, breakTarget)
	}
	c.loop = l.parent
}

func (c *compiler) whileStatement() error {
	if err := c.next(); err != nil {
		return err
	}
	start := c.cs.pc()
	reg, err := c.condition()
	if err != nil {
		return err
	}
	exit := c.emitJump(bytecode.OpJz, reg)
	l := c.pushLoop(len(c.cs.vlocals))
	if err := c.scopedStatement(); err != nil {
		return err
	}
	c.emitJumpTo(bytecode.OpJmp, 0, start)
	c.popLoop(l, start, c.cs.pc())
	c.patchHere(exit)
	return nil
}

func (c *compiler) doWhileStatement() error {
	if err := c.next(); err != nil {
		return err
	}
	start := c.cs.pc()
	l := c.pushLoop(len(c.cs.vlocals))
	if err := c.scopedStatement(); err != nil {
		return err
	}
	cont := c.cs.pc()
	if err := c.expect(token.While, "'while'"); err != nil {
		return err
	}
	reg, err := c.condition()
	if err != nil {
		return err
	}
	c.emitJumpTo(bytecode.OpJnz, reg, start)
	c.popLoop(l, cont, c.cs.pc())
	return c.optionalSemicolon()
}

func (c *compiler) forStatement() error {
	if err := c.next(); err != nil {
		return err
	}
	if err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	if c.isForeach() {
		return c.foreachStatement()
	}
	m := c.cs.enterScope()

	switch {
	case c.tok.Type == token.Semicolon:
	case c.tok.Type == token.Var || c.tok.Type == token.Const || token.IsTypeAnnotation(c.tok.Type):
		if err := c.declaration(); err != nil {
			return err
		}
	default:
		if err := c.discardedExpressions(); err != nil {
			return err
		}
	}
	if err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}

	condPC := c.cs.pc()
	exit := -1
	if c.tok.Type != token.Semicolon {
		e, err := c.expression()
		if err != nil {
			return err
		}
		exit = c.emitJump(bytecode.OpJz, c.toAnyReg(e))
		c.cs.popTarget()
	}
	if err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}

	incrPC := condPC
	if c.tok.Type != token.RParen {
		toBody := c.emitJump(bytecode.OpJmp, 0)
		incrPC = c.cs.pc()
		if err := c.discardedExpressions(); err != nil {
			return err
		}
		c.emitJumpTo(bytecode.OpJmp, 0, condPC)
		c.patchHere(toBody)
	}
	if err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}

	l := c.pushLoop(len(c.cs.vlocals))
	if err := c.scopedStatement(); err != nil {
		return err
	}
	c.emitJumpTo(bytecode.OpJmp, 0, incrPC)
	c.popLoop(l, incrPC, c.cs.pc())
	if exit >= 0 {
		c.patchHere(exit)
	}
	c.closeScope(m)
	return nil
}

// discardedExpressions compiles "e1, e2, ..." for their side effects.
func (c *compiler) discardedExpressions() error {
	for {
		base := len(c.cs.targets)
		if _, err := c.assignment(false); err != nil {
			return err
		}
		c.cs.resetTargets(base)
		if c.tok.Type != token.Comma {
			return nil
		}
		if err := c.next(); err != nil {
			return err
		}
	}
}

// isForeach looks ahead for "var v :" or "var k, v :".
func (c *compiler) isForeach() bool {
	if c.tok.Type != token.Var && !token.IsTypeAnnotation(c.tok.Type) {
		return false
	}
	s := c.lex.Snapshot()
	defer c.lex.Restore(s)
	if c.lex.NextToken().Type != token.Ident {
		return false
	}
	switch c.lex.NextToken().Type {
	case token.Colon:
		return true
	case token.Comma:
		return c.lex.NextToken().Type == token.Ident && c.lex.NextToken().Type == token.Colon
	}
	return false
}

func (c *compiler) foreachStatement() error {
	m := c.cs.enterScope()
	if err := c.next(); err != nil {
		return err
	}
	first := c.tok.Literal
	if err := c.next(); err != nil {
		return err
	}
	second := ""
	if c.tok.Type == token.Comma {
		if err := c.next(); err != nil {
			return err
		}
		second = c.tok.Literal
		if err := c.next(); err != nil {
			return err
		}
	}
	if err := c.expect(token.Colon, "':'"); err != nil {
		return err
	}
	e, err := c.expression()
	if err != nil {
		return err
	}
	if err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	src := c.toAnyReg(e)
	c.cs.popTarget()
	it := c.cs.newTarget()
	c.cs.emit(bytecode.ABC(bytecode.OpIterInit, it, src, 0))

	loopPC := c.cs.pc()
	done := c.emitJump(bytecode.OpIterNext, it)
	body := c.cs.enterScope()
	if second == "" {
		c.cs.pushLocalVariable("(key)", bytecode.TypeAny, false)
		c.cs.pushLocalVariable(first, bytecode.TypeAny, false)
	} else {
		c.cs.pushLocalVariable(first, bytecode.TypeAny, false)
		c.cs.pushLocalVariable(second, bytecode.TypeAny, false)
	}
	l := c.pushLoop(it + 1)
	if err := c.statement(); err != nil {
		return err
	}
	cont := c.cs.pc()
	c.closeScope(body)
	c.emitJumpTo(bytecode.OpJmp, 0, loopPC)
	c.popLoop(l, cont, c.cs.pc())
	c.patchHere(done)
	c.closeScope(m)
	return nil
}

func (c *compiler) jumpStatement() error {
	isBreak := c.tok.Type == token.Break
	if c.loop == nil {
		return c.errorf(errs.Syntax, "%s outside of a loop", c.tok.Literal)
	}
	if err := c.next(); err != nil {
		return err
	}
	if c.cs.nCapture > 0 {
		c.cs.emit(bytecode.ABC(bytecode.OpClose, c.loop.closeBase, 0, 0))
	}
	j := c.emitJump(bytecode.OpJmp, 0)
	if isBreak {
		c.loop.breaks = append(c.loop.breaks, j)
	} else {
		c.loop.continues = append(c.loop.continues, j)
	}
	return c.optionalSemicolon()
}

func (c *compiler) returnStatement() error {
	if err := c.next(); err != nil {
		return err
	}
	switch c.tok.Type {
	case token.Semicolon, token.RBrace, token.EOF:
		c.cs.emit(bytecode.ABC(bytecode.OpReturn, 0, 0, 0))
	default:
		e, err := c.expression()
		if err != nil {
			return err
		}
		c.cs.emit(bytecode.ABC(bytecode.OpReturn, c.toAnyReg(e), 1, 0))
	}
	return c.optionalSemicolon()
}

func (c *compiler) emitJump(op bytecode.OpCode, a int) int {
	return c.cs.emit(bytecode.AsBx(op, a, 0))
}

func (c *compiler) emitJumpTo(op bytecode.OpCode, a, target int) {
	c.cs.emit(bytecode.AsBx(op, a, target-c.cs.pc()))
}

func (c *compiler) patchHere(at int) {
	c.patchJump(at, c.cs.pc())
}

func (c *compiler) patchJump(at, target int) {
	inst := c.cs.code[at]
	off := target - at
	if inst.Op().Format() == bytecode.FormatABsC {
		if off > bytecode.MaxSC || off < bytecode.MinSC {
			c.cs.fail(errs.JumpTooFar, "jump of %d instructions does not fit", off)
			return
		}
		c.cs.code[at] = inst.WithSC(off)
		return
	}
	if off > bytecode.MaxSBx || off < bytecode.MinSBx {
		c.cs.fail(errs.JumpTooFar, "jump of %d instructions does not fit", off)
		return
	}
	c.cs.code[at] = inst.WithSBx(off)
}
