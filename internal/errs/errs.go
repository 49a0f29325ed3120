// Package errs declares the error namespace shared by the lexer, compiler and VM.
package errs

import (
	"github.com/joomcode/errorx"
)

var (
	Namespace = errorx.NewNamespace("zscript")

	LexNamespace     = Namespace.NewSubNamespace("lex")
	CompileNamespace = Namespace.NewSubNamespace("compile")
	RuntimeNamespace = Namespace.NewSubNamespace("runtime")
	ConfigNamespace  = Namespace.NewSubNamespace("config")
)

// InvalidConfig marks configuration files and values an engine cannot use.
var InvalidConfig = ConfigNamespace.NewType("invalid")

// Lexer failures.
var (
	LexError = LexNamespace.NewType("error")
)

// Compiler failures.
var (
	Syntax                = CompileNamespace.NewType("syntax")
	DuplicateDeclaration  = CompileNamespace.NewType("duplicate_declaration")
	TooManyLocals         = CompileNamespace.NewType("too_many_locals")
	InvalidTypeAnnotation = CompileNamespace.NewType("invalid_type_annotation")
	UnresolvedSymbol      = CompileNamespace.NewType("unresolved_symbol")
	TooManyLiterals       = CompileNamespace.NewType("too_many_literals")
	JumpTooFar            = CompileNamespace.NewType("jump_too_far")
	ConstAssignment       = CompileNamespace.NewType("const_assignment")
)

// Runtime failures.
var (
	NotFound              = RuntimeNamespace.NewType("not_found")
	InvalidType           = RuntimeNamespace.NewType("invalid_type")
	InvalidOperation      = RuntimeNamespace.NewType("invalid_operation")
	OutOfBounds           = RuntimeNamespace.NewType("out_of_bounds")
	InvalidParameterCount = RuntimeNamespace.NewType("invalid_parameter_count")
	Inaccessible          = RuntimeNamespace.NewType("inaccessible")
	InvalidArgument       = RuntimeNamespace.NewType("invalid_argument")
	StackOverflow         = RuntimeNamespace.NewType("stack_overflow")
	InstructionLimit      = RuntimeNamespace.NewType("instruction_limit")
	Cancelled             = RuntimeNamespace.NewType("cancelled")
)

// Source position properties attached to lex and compile errors.
var (
	PropertySource = errorx.RegisterPrintableProperty("source")
	PropertyLine   = errorx.RegisterPrintableProperty("line")
	PropertyColumn = errorx.RegisterPrintableProperty("column")
)

// At decorates err with a source position.
func At(err *errorx.Error, source string, line, column int) *errorx.Error {
	return err.
		WithProperty(PropertySource, source).
		WithProperty(PropertyLine, line).
		WithProperty(PropertyColumn, column)
}

// Position extracts the source position attached by At.
func Position(err error) (line, column int, ok bool) {
	l, lok := errorx.ExtractProperty(err, PropertyLine)
	c, cok := errorx.ExtractProperty(err, PropertyColumn)
	if !lok || !cok {
		return 0, 0, false
	}
	line, _ = l.(int)
	column, _ = c.(int)
	return line, column, true
}

// Is reports whether err (or the errorx error it wraps) has type t.
func Is(err error, t *errorx.Type) bool {
	for err != nil {
		if errorx.IsOfType(err, t) {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
