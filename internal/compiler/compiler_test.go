package compiler

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/joomcode/errorx"

	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/runtime"
	"github.com/xirelogy/go-zscript/internal/vm"
)

var registerOnce sync.Once

func registerTestBuiltin() {
	registerOnce.Do(func() {
		runtime.Register(runtime.Spec{
			Name:  "size",
			ID:    1,
			Arity: 1,
			Handler: func(rt *vm.VM, args []vm.Value) (vm.Value, error) {
				return rt.Size(args[0])
			},
		})
	})
}

func compileSource(t *testing.T, src string) *bytecode.Prototype {
	t.Helper()
	proto, err := Compile(src, "test", Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return proto
}

func countOps(p *bytecode.Prototype, op bytecode.OpCode) int {
	n := 0
	for _, inst := range p.Code {
		if inst.Op() == op {
			n++
		}
	}
	return n
}

func TestCompileFunctionCall(t *testing.T) {
	p := compileSource(t, `var f = function(x) { return x + 1; }; var r = f(41);`)
	if len(p.Functions) != 1 {
		t.Fatalf("expected 1 child prototype, got %d", len(p.Functions))
	}
	child := p.Functions[0]
	if child.NumParams() != 1 || child.Params[0] != "x" {
		t.Fatalf("unexpected params %v", child.Params)
	}
	if countOps(p, bytecode.OpNewClosure) != 1 || countOps(p, bytecode.OpCall) != 1 {
		t.Fatalf("expected one closure and one call in:\n%v", p.Code)
	}
	if countOps(child, bytecode.OpAdd) != 1 {
		t.Fatalf("expected ADD in child")
	}
	last := p.Code[len(p.Code)-1]
	if last.Op() != bytecode.OpReturn {
		t.Fatalf("main chunk must end with RETURN, got %s", last)
	}
}

func TestLiteralDeduplication(t *testing.T) {
	p := compileSource(t, `var s = "a" + "a"; var t = "a";`)
	n := 0
	for _, lit := range p.Literals {
		if lit == "a" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected one \"a\" literal, got %d in %v", n, p.Literals)
	}
	if countOps(p, bytecode.OpLoad) != 3 {
		t.Fatalf("expected 3 LOADs sharing the literal, got %d", countOps(p, bytecode.OpLoad))
	}
}

func TestSmallIntegersAvoidLiteralPool(t *testing.T) {
	p := compileSource(t, `var a = 7; var b = -3;`)
	for _, lit := range p.Literals {
		if _, ok := lit.(int64); ok {
			t.Fatalf("small integer stored in literal pool: %v", p.Literals)
		}
	}
}

func TestTooManyLocals(t *testing.T) {
	var b strings.Builder
	b.WriteString("function f() {\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "var v%d = %d;\n", i, i)
	}
	b.WriteString("}\n")
	_, err := Compile(b.String(), "test", Options{})
	if err == nil {
		t.Fatalf("expected too_many_locals error")
	}
	if !errorx.IsOfType(err, errs.TooManyLocals) {
		t.Fatalf("expected too_many_locals, got %v", err)
	}
}

func TestCaptureDescriptors(t *testing.T) {
	src := `
function outer() {
  var x = 1;
  function middle() {
    function inner() { return x; }
    return inner;
  }
  return middle;
}`
	p := compileSource(t, src)
	outer := p.Functions[0]
	middle := outer.Functions[0]
	inner := middle.Functions[0]
	if len(middle.Captures) != 1 || middle.Captures[0].Kind != bytecode.CaptureLocal {
		t.Fatalf("middle should capture x as a local, got %+v", middle.Captures)
	}
	if middle.Captures[0].Index != 1 {
		t.Fatalf("x lives in slot 1 of outer, got %d", middle.Captures[0].Index)
	}
	if len(inner.Captures) != 1 || inner.Captures[0].Kind != bytecode.CaptureOuter || inner.Captures[0].Index != 0 {
		t.Fatalf("inner should forward middle's capture 0, got %+v", inner.Captures)
	}
	if countOps(inner, bytecode.OpGetCapture) != 1 {
		t.Fatalf("inner should read x through GETCAPTURE")
	}
}

func TestCaptureIsShared(t *testing.T) {
	src := `
function counter() {
  var n = 0;
  var inc = function() { n = n + 1; return n; };
  var get = function() { return n; };
  return inc;
}`
	p := compileSource(t, src)
	counter := p.Functions[0]
	for i, fn := range counter.Functions {
		if len(fn.Captures) != 1 || fn.Captures[0].Name != "n" {
			t.Fatalf("closure %d: unexpected captures %+v", i, fn.Captures)
		}
	}
	if countOps(counter.Functions[0], bytecode.OpSetCapture) != 1 {
		t.Fatalf("assignment to a captured variable must use SETCAPTURE")
	}
}

func TestScopeExitClosesCaptures(t *testing.T) {
	src := `
function f() {
  var fs = [];
  for (var i = 0; i < 3; i++) {
    var j = i;
    fs.push(function() { return j; });
  }
  return fs;
}`
	p := compileSource(t, src)
	if countOps(p.Functions[0], bytecode.OpClose) == 0 {
		t.Fatalf("expected CLOSE when a block with captured locals ends")
	}

	p = compileSource(t, `function g() { { var k = 1; } return 0; }`)
	if countOps(p.Functions[0], bytecode.OpClose) != 0 {
		t.Fatalf("no CLOSE expected without captures")
	}
}

func TestBreakClosesCaptures(t *testing.T) {
	src := `
function f() {
  var fs = [];
  while (true) {
    var k = 1;
    fs.push(function() { return k; });
    break;
  }
  return fs;
}`
	p := compileSource(t, src)
	if n := countOps(p.Functions[0], bytecode.OpClose); n < 2 {
		t.Fatalf("expected CLOSE before break and at scope end, got %d", n)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *errorx.Type
	}{
		{"duplicate local", `var a = 1; var a = 2;`, errs.DuplicateDeclaration},
		{"duplicate param", `function f(a, a) {}`, errs.DuplicateDeclaration},
		{"unknown type", `var<thing> x = 1;`, errs.InvalidTypeAnnotation},
		{"unresolved assignment", `undeclared = 3;`, errs.UnresolvedSymbol},
		{"const assignment", `const c = 1; c = 2;`, errs.ConstAssignment},
		{"const increment", `const c = 1; c++;`, errs.ConstAssignment},
		{"missing default", `function f(a = 1, b) {}`, errs.Syntax},
		{"break outside loop", `break;`, errs.Syntax},
		{"unterminated string", `var s = "abc`, errs.LexError},
		{"builtin arity", `var n = size(1, 2);`, errs.Syntax},
		{"variadic not last", `function f(rest..., b) {}`, errs.Syntax},
		{"duplicate enum member", `enum E { a, b, a }`, errs.DuplicateDeclaration},
		{"enum assignment", `enum E { a } E = 1;`, errs.ConstAssignment},
		{"duplicate struct member", `struct S { var a = 1; a() {} }`, errs.DuplicateDeclaration},
		{"named struct expression", `var s = struct S {};`, errs.Syntax},
		{"uninitialized const field", `struct S { const c; }`, errs.Syntax},
	}
	registerTestBuiltin()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src, "test", Options{})
			if err == nil {
				t.Fatalf("expected error for %q", tt.src)
			}
			if !errorx.IsOfType(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestShadowingInNestedScopeIsAllowed(t *testing.T) {
	compileSource(t, `var a = 1; { var a = 2; }`)
}

func TestErrorPosition(t *testing.T) {
	_, err := Compile("var a = 1;\nvar a = 2;", "test", Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	line, _, ok := errs.Position(err)
	if !ok || line != 2 {
		t.Fatalf("expected error on line 2, got %d (ok=%v): %v", line, ok, err)
	}
}

func TestGlobalDeclarations(t *testing.T) {
	p, err := Compile(`var g = 1; function h() { return g; } undeclared = 2;`, "test", Options{GlobalDeclarations: true})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if countOps(p, bytecode.OpSet) != 2 {
		t.Fatalf("top-level declarations should store into root")
	}
	if countOps(p, bytecode.OpSetExisting) != 1 {
		t.Fatalf("unresolved assignment should use SETEXISTING")
	}
	if countOps(p.Functions[0], bytecode.OpGetOrRoot) != 1 {
		t.Fatalf("unresolved read should use GETORROOT")
	}
}

func TestTypedDeclarations(t *testing.T) {
	p := compileSource(t, `int n = 3; var<int, float> x = 1.5; string s;`)
	if n := countOps(p, bytecode.OpCheckType); n != 2 {
		t.Fatalf("expected 2 CHECKTYPE, got %d", n)
	}
	found := false
	for _, l := range p.Locals {
		if l.Name == "x" {
			found = true
			if l.TypeMask != bytecode.TypeInt|bytecode.TypeFloat {
				t.Fatalf("unexpected mask %s", bytecode.TypeMaskString(l.TypeMask))
			}
		}
	}
	if !found {
		t.Fatalf("missing debug record for x in %+v", p.Locals)
	}
}

func TestDefaultParameters(t *testing.T) {
	p := compileSource(t, `function f(a, b = 2, c = "x") { return a; }`)
	f := p.Functions[0]
	if f.NumParams() != 3 || f.NumDefaults != 2 {
		t.Fatalf("expected 3 params with 2 defaults, got %d/%d", f.NumParams(), f.NumDefaults)
	}
}

func TestVariadicPrototype(t *testing.T) {
	p := compileSource(t, `function f(a, rest...) {} var g = (...) => vargv;`)
	f := p.Functions[0]
	if !f.Variadic || f.NumFixed() != 1 || f.Params[1] != "rest" {
		t.Fatalf("unexpected variadic layout %v fixed=%d", f.Params, f.NumFixed())
	}
	g := p.Functions[1]
	if !g.Variadic || len(g.Params) != 1 || g.Params[0] != "vargv" {
		t.Fatalf("bare ellipsis should bind vargv, got %v", g.Params)
	}
}

func TestEnumIsSealedConst(t *testing.T) {
	p := compileSource(t, `enum E { a, b = 4, c }`)
	if n := countOps(p, bytecode.OpEnumSlot); n != 3 {
		t.Fatalf("expected 3 ENUMSLOT, got %d", n)
	}
	if countOps(p, bytecode.OpSeal) != 1 {
		t.Fatalf("enum table should be sealed")
	}
}

func TestStructLayout(t *testing.T) {
	p := compileSource(t, `struct P { int x; const y = 1; var<int, float> z; function f; m() {} }`)
	if len(p.Structs) != 1 {
		t.Fatalf("expected one struct layout, got %d", len(p.Structs))
	}
	s := p.Structs[0]
	if s.Name != "P" || len(s.Fields) != 4 {
		t.Fatalf("unexpected layout %+v", s)
	}
	if f, ok := s.Field("x"); !ok || f.Mask != bytecode.TypeInt || f.Const {
		t.Fatalf("unexpected field x %+v", f)
	}
	if f, ok := s.Field("y"); !ok || !f.Const {
		t.Fatalf("y should be const, got %+v", f)
	}
	if f, _ := s.Field("z"); f.Mask != bytecode.TypeInt|bytecode.TypeFloat {
		t.Fatalf("unexpected mask for z: %s", bytecode.TypeMaskString(f.Mask))
	}
	if f, _ := s.Field("f"); f.Mask != bytecode.TypeFunction {
		t.Fatalf("unexpected mask for f: %s", bytecode.TypeMaskString(f.Mask))
	}
	if _, ok := s.Field("m"); ok {
		t.Fatalf("methods are not fields")
	}
	if countOps(p, bytecode.OpNewStruct) != 1 || countOps(p, bytecode.OpSeal) != 1 {
		t.Fatalf("expected NEWSTRUCT and SEAL")
	}
}

func TestClassWithoutConstructorGetsOne(t *testing.T) {
	p := compileSource(t, `class Point { var x = 0; norm() { return 1; } }`)
	if len(p.Functions) != 2 {
		t.Fatalf("expected method plus synthesized constructor, got %d prototypes", len(p.Functions))
	}
	if p.Functions[1].Name != "Point.constructor" {
		t.Fatalf("unexpected synthesized name %q", p.Functions[1].Name)
	}
}

func TestArrowFunctions(t *testing.T) {
	p := compileSource(t, `var sq = x => x * x; var add = (a, b) => { return a + b; };`)
	if len(p.Functions) != 2 {
		t.Fatalf("expected 2 arrow prototypes, got %d", len(p.Functions))
	}
	if p.Functions[1].NumParams() != 2 {
		t.Fatalf("expected 2 params, got %d", p.Functions[1].NumParams())
	}
}

func TestJumpOffsetsAreRelative(t *testing.T) {
	p := compileSource(t, `var i = 0; while (i < 10) { i++; }`)
	for pc, inst := range p.Code {
		if inst.Op() != bytecode.OpJmp {
			continue
		}
		target := pc + inst.SBx()
		if target < 0 || target >= len(p.Code) {
			t.Fatalf("jump at %d leaves the function: %d", pc, target)
		}
	}
}
