package compiler

import (
	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/token"
)

// builtinCall lowers name(args...) to OpBuiltin when name is a registered intrinsic
// that no local or capture shadows. Arguments land in consecutive slots starting at A.
func (c *compiler) builtinCall(spec runtime.Spec) (expr, error) {
	cs := c.cs
	base := len(cs.targets)
	first := -1
	n := 0
	if err := c.expect(token.LParen, "'('"); err != nil {
		return expr{}, err
	}
	for c.tok.Type != token.RParen {
		e, err := c.expression()
		if err != nil {
			return expr{}, err
		}
		reg := c.toNextReg(e)
		if first < 0 {
			first = reg
		}
		n++
		if c.tok.Type != token.Comma {
			break
		}
		if err := c.next(); err != nil {
			return expr{}, err
		}
	}
	if err := c.expect(token.RParen, "')'"); err != nil {
		return expr{}, err
	}
	if spec.Arity >= 0 && n != spec.Arity {
		return expr{}, errArgs(c, spec.Name, spec.Arity, n)
	}
	if first < 0 {
		first = cs.newTarget()
	}
	cs.emit(bytecode.ABC(bytecode.OpBuiltin, first, spec.ID, n))
	cs.resetTargets(base)
	t := cs.newTarget()
	if t != first {
		cs.emit(bytecode.ABC(bytecode.OpMove, t, first, 0))
	}
	return expr{kind: exprValue, slot: t}, nil
}

func errArgs(c *compiler, name string, want, got int) error {
	return c.errorf(errs.Syntax, "builtin %s expects %d args, got %d", name, want, got)
}
