package compiler

import (
	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/token"
)

// enumDeclaration compiles "enum Name [=] { A, B = 5, C }" into a frozen table
// bound to a const local, or to the root table for global declarations.
func (c *compiler) enumDeclaration() error {
	if err := c.next(); err != nil {
		return err
	}
	if c.tok.Type != token.Ident {
		return c.errorf(errs.Syntax, "expected enum name, found %s", c.describe())
	}
	name := c.tok.Literal
	if err := c.next(); err != nil {
		return err
	}
	if c.tok.Type == token.Assign {
		if err := c.next(); err != nil {
			return err
		}
	}
	t, err := c.enumBody()
	if err != nil {
		return err
	}
	if c.globalDecl() {
		c.storeRoot(name, t, false)
		c.cs.popTarget()
	} else {
		c.cs.nameTopTarget(name, bytecode.TypeAny, true)
	}
	return c.optionalSemicolon()
}

// enumBody keeps the auto-increment counter in the slot after the table.
func (c *compiler) enumBody() (int, error) {
	cs := c.cs
	if err := c.expect(token.LBrace, "'{'"); err != nil {
		return 0, err
	}
	t := cs.newTarget()
	cs.emit(bytecode.ABC(bytecode.OpNewTable, t, 0, 0))
	counter := cs.newTarget()
	cs.emit(bytecode.AsBx(bytecode.OpLoadInt, counter, 0))
	seen := make(map[string]bool)
	for c.tok.Type != token.RBrace {
		if !isName(c.tok) {
			return 0, c.errorf(errs.Syntax, "expected enum member, found %s", c.describe())
		}
		member := c.tok.Literal
		if seen[member] {
			return 0, c.errorf(errs.DuplicateDeclaration, "enum member %s is already declared", member)
		}
		seen[member] = true
		if err := c.next(); err != nil {
			return 0, err
		}
		var reg int
		if c.tok.Type == token.Assign {
			if err := c.next(); err != nil {
				return 0, err
			}
			e, err := c.expression()
			if err != nil {
				return 0, err
			}
			reg = c.toAnyReg(e)
		} else {
			reg = cs.newTarget()
			cs.emit(bytecode.ABC(bytecode.OpLoadNone, reg, 0, 0))
		}
		k, keyTarget := c.keyOperand(member)
		cs.emit(bytecode.ABC(bytecode.OpEnumSlot, t, k, reg))
		if keyTarget {
			cs.popTarget()
		}
		cs.popTarget()
		if c.tok.Type != token.Comma && c.tok.Type != token.Semicolon {
			break
		}
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	cs.popTarget()
	cs.emit(bytecode.ABC(bytecode.OpSeal, t, 1, 0))
	return t, c.expect(token.RBrace, "'}'")
}

func (c *compiler) structDeclaration() error {
	if err := c.next(); err != nil {
		return err
	}
	name := c.tok.Literal
	if err := c.next(); err != nil {
		return err
	}
	if c.globalDecl() {
		t, err := c.structBody(name)
		if err != nil {
			return err
		}
		c.storeRoot(name, t.slot, false)
		c.cs.popTarget()
		return c.optionalSemicolon()
	}
	slot := c.cs.pushLocalVariable(name, bytecode.TypeAny, false)
	t, err := c.structBody(name)
	if err != nil {
		return err
	}
	c.cs.emit(bytecode.ABC(bytecode.OpMove, slot, t.slot, 0))
	c.cs.popTarget()
	return c.optionalSemicolon()
}

// structBody compiles "{ members }" into a sealed struct type. Fields carry their
// declared type and constness; methods and the constructor live on the type and
// are reached from instances through delegation.
func (c *compiler) structBody(name string) (expr, error) {
	cs := c.cs
	if err := c.expect(token.LBrace, "'{'"); err != nil {
		return expr{}, err
	}
	info := &bytecode.StructInfo{Name: name}
	t := cs.newTarget()
	cs.emit(bytecode.ABx(bytecode.OpNewStruct, t, len(cs.structs)))
	cs.structs = append(cs.structs, info)
	seen := make(map[string]bool)
	declare := func(member string) error {
		if seen[member] {
			return c.errorf(errs.DuplicateDeclaration, "struct member %s is already declared", member)
		}
		seen[member] = true
		return nil
	}
	for c.tok.Type != token.RBrace {
		switch {
		case c.tok.Type == token.Semicolon || c.tok.Type == token.Comma:
			if err := c.next(); err != nil {
				return expr{}, err
			}
		case c.tok.Type == token.EOF:
			return expr{}, c.errorf(errs.Syntax, "unexpected end of input, expected '}'")
		case c.tok.Type == token.Function && c.lex.Peek().Type == token.Ident:
			if err := c.next(); err != nil {
				return expr{}, err
			}
			var err error
			if c.lex.Peek().Type == token.LParen {
				err = c.structMethod(t, name, declare)
			} else {
				err = c.structFields(t, info, bytecode.TypeFunction, false, declare)
			}
			if err != nil {
				return expr{}, err
			}
		case c.tok.Type == token.Var || c.tok.Type == token.Const || token.IsTypeAnnotation(c.tok.Type):
			isConst := c.tok.Type == token.Const
			mask, err := c.typeAnnotation()
			if err != nil {
				return expr{}, err
			}
			if err := c.structFields(t, info, mask, isConst, declare); err != nil {
				return expr{}, err
			}
		case isName(c.tok) && c.lex.Peek().Type == token.LParen:
			if err := c.structMethod(t, name, declare); err != nil {
				return expr{}, err
			}
		case isName(c.tok):
			if err := c.structFields(t, info, bytecode.TypeAny, false, declare); err != nil {
				return expr{}, err
			}
		default:
			return expr{}, c.errorf(errs.Syntax, "expected struct member, found %s", c.describe())
		}
	}
	cs.emit(bytecode.ABC(bytecode.OpSeal, t, 0, 0))
	return expr{kind: exprValue, slot: t}, c.expect(token.RBrace, "'}'")
}

func (c *compiler) structMethod(t int, structName string, declare func(string) error) error {
	if !isName(c.tok) {
		return c.errorf(errs.Syntax, "expected method name, found %s", c.describe())
	}
	member := c.tok.Literal
	if err := declare(member); err != nil {
		return err
	}
	if err := c.next(); err != nil {
		return err
	}
	qualified := member
	if structName != "" {
		qualified = structName + "." + member
	}
	f, err := c.functionLiteral(qualified)
	if err != nil {
		return err
	}
	c.setField(t, member, f.slot)
	c.cs.popTarget()
	return nil
}

// structFields compiles "a = 1, b" after an optional type annotation.
func (c *compiler) structFields(t int, info *bytecode.StructInfo, mask uint32, isConst bool, declare func(string) error) error {
	for {
		if !isName(c.tok) {
			return c.errorf(errs.Syntax, "expected field name, found %s", c.describe())
		}
		member := c.tok.Literal
		if err := declare(member); err != nil {
			return err
		}
		if err := c.next(); err != nil {
			return err
		}
		var reg int
		if c.tok.Type == token.Assign {
			if err := c.next(); err != nil {
				return err
			}
			e, err := c.expression()
			if err != nil {
				return err
			}
			reg = c.toAnyReg(e)
			c.checkType(reg, mask)
		} else {
			if isConst {
				return c.errorf(errs.Syntax, "const %s requires an initializer", member)
			}
			reg = c.cs.newTypedTarget(mask)
			c.emitZero(reg, mask)
		}
		info.Fields = append(info.Fields, bytecode.FieldInfo{Name: member, Mask: mask, Const: isConst})
		c.setField(t, member, reg)
		c.cs.popTarget()
		if c.tok.Type != token.Comma {
			return nil
		}
		if err := c.next(); err != nil {
			return err
		}
	}
}
