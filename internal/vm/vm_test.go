package vm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/joomcode/errorx"

	_ "github.com/xirelogy/go-zscript/internal/builtins"
	"github.com/xirelogy/go-zscript/internal/bytecode"
	"github.com/xirelogy/go-zscript/internal/compiler"
	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/vm"
)

func compileChunk(t *testing.T, src string) *bytecode.Prototype {
	t.Helper()
	proto, err := compiler.Compile(src, "test", compiler.Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return proto
}

func runWith(t *testing.T, machine *vm.VM, src string) (vm.Value, error) {
	t.Helper()
	return machine.Run(context.Background(), compileChunk(t, src))
}

func run(t *testing.T, src string) vm.Value {
	t.Helper()
	v, err := runWith(t, vm.New(vm.Config{}), src)
	if err != nil {
		t.Fatalf("vm error: %v", err)
	}
	return v
}

func expectInt(t *testing.T, v vm.Value, want int64) {
	t.Helper()
	if v.Kind != vm.KindInt || v.Int != want {
		t.Fatalf("expected %d, got %s (%s)", want, v, vm.TypeName(v))
	}
}

func expectString(t *testing.T, v vm.Value, want string) {
	t.Helper()
	if v.Kind != vm.KindString || v.Str != want {
		t.Fatalf("expected %q, got %s (%s)", want, v, vm.TypeName(v))
	}
}

func expectBool(t *testing.T, v vm.Value, want bool) {
	t.Helper()
	if v.Kind != vm.KindBool || v.Bool() != want {
		t.Fatalf("expected %v, got %s (%s)", want, v, vm.TypeName(v))
	}
}

func expectError(t *testing.T, err error, want *errorx.Type) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error", want)
	}
	if !errs.Is(err, want) {
		t.Fatalf("expected %s, got %v", want, err)
	}
	if _, ok := err.(*vm.RuntimeError); !ok {
		t.Fatalf("expected *vm.RuntimeError, got %T", err)
	}
}

func TestFunctionCall(t *testing.T) {
	expectInt(t, run(t, `var f = function(x) { return x + 1; }; var r = f(41); r;`), 42)
}

func TestCounterClosure(t *testing.T) {
	src := `
function make() {
  var n = 0;
  return function() { n = n + 1; return n; };
}
var c = make();
c();
c();`
	expectInt(t, run(t, src), 2)
}

func TestClosuresShareCapture(t *testing.T) {
	src := `
function pair() {
  var n = 0;
  return [function() { n++; }, function() { return n; }];
}
var p = pair();
p[0]();
p[0]();
p[1]();`
	expectInt(t, run(t, src), 2)
}

func TestLoopClosuresBakePerIteration(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"block local", `
var fs = [];
for (var i = 0; i < 3; i++) {
  var j = i;
  fs.push(function() { return j; });
}
fs[0]() + fs[1]() * 10 + fs[2]() * 100;`, 210},
		{"foreach value", `
var fs = [];
for (var v : [0, 1, 2]) {
  fs.push(function() { return v; });
}
fs[0]() + fs[1]() * 10 + fs[2]() * 100;`, 210},
		{"shared loop variable", `
var fs = [];
for (var i = 0; i < 3; i++) {
  fs.push(function() { return i; });
}
fs[0]() + fs[1]() + fs[2]();`, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectInt(t, run(t, tt.src), tt.want)
		})
	}
}

func TestStringArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"ab" + "cd";`, "abcd"},
		{`"ab" - "a";`, "b"},
		{`"banana" - "an";`, "ba"},
		{`"abc" << 1;`, "bc"},
		{`"abc" >> 1;`, "ab"},
		{`"abc" << 10;`, ""},
		{`"ab" * 3;`, "ababab"},
		{`"abcd" % "abxy";`, "ab"},
		{`"abc" - 1;`, "bc"},
		{`"abc" - -1;`, "ab"},
		{`"abc" - 5;`, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expectString(t, run(t, tt.src), tt.want)
		})
	}
	expectInt(t, run(t, `var parts = "a,b,,c" / ","; parts.size();`), 3)
}

func TestStringArithmeticErrors(t *testing.T) {
	tests := []struct {
		src  string
		want *errorx.Type
	}{
		{`"a" + 1;`, errs.InvalidOperation},
		{`"a" * 0;`, errs.InvalidOperation},
		{`"a" << -1;`, errs.InvalidArgument},
		{`"a" * "b";`, errs.InvalidOperation},
		{`"ab" * 4611686018427387904;`, errs.InvalidOperation},
		{`"ab" * 1073741824;`, errs.InvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := runWith(t, vm.New(vm.Config{}), tt.src)
			expectError(t, err, tt.want)
		})
	}
}

func TestAdditionIsCommutative(t *testing.T) {
	pairs := []string{"1, 2", "1.5, 2", "true, 3", "-4, 2.25", "0, 0"}
	for _, p := range pairs {
		src := `function add(a, b) { return a + b == b + a; } add(` + p + `);`
		expectBool(t, run(t, src), true)
	}
}

func TestNumericSemantics(t *testing.T) {
	expectInt(t, run(t, `7 / 2;`), 3)
	expectInt(t, run(t, `7 % 3;`), 1)
	expectInt(t, run(t, `2 ** 10;`), 1024)
	expectInt(t, run(t, `1 << 4 | 1;`), 17)
	expectInt(t, run(t, `1 <=> 2;`), -1)
	v := run(t, `7.0 / 2;`)
	if v.Kind != vm.KindFloat || v.Float != 3.5 {
		t.Fatalf("expected 3.5, got %s", v)
	}
	_, err := runWith(t, vm.New(vm.Config{}), `1 / 0;`)
	expectError(t, err, errs.InvalidOperation)
	_, err = runWith(t, vm.New(vm.Config{}), `1 << -1;`)
	expectError(t, err, errs.InvalidArgument)
}

func TestLogicalOperatorsYieldBooleans(t *testing.T) {
	expectBool(t, run(t, `1 && 0;`), false)
	expectBool(t, run(t, `0 || "x";`), true)
	expectInt(t, run(t, `var n = 0; false && (n = 1); n;`), 0)
	expectInt(t, run(t, `true ? 1 : 2;`), 1)
}

func TestIncrement(t *testing.T) {
	expectInt(t, run(t, `var i = 5; var j = i++; j * 10 + i;`), 56)
	expectInt(t, run(t, `var i = 5; var j = --i; j * 10 + i;`), 44)
	expectInt(t, run(t, `var t = {n: 1}; t.n += 4; ++t.n;`), 6)
}

func TestDelegateLookup(t *testing.T) {
	src := `
var base = { greet: function() { return "hi " + this.name; } };
var o = set_delegate({ name: "bob" }, base);
o.greet();`
	expectString(t, run(t, src), "hi bob")
}

func TestDelegateChainTerminates(t *testing.T) {
	src := `
var t = {};
var cur = t;
for (var i = 0; i < 8; i++) {
  var d = {};
  set_delegate(cur, d);
  cur = d;
}
t.missing;`
	_, err := runWith(t, vm.New(vm.Config{}), src)
	expectError(t, err, errs.NotFound)
}

func TestDelegateCycleIsInaccessible(t *testing.T) {
	src := `
var a = {};
var b = {};
set_delegate(a, b);
set_delegate(b, a);
a.missing;`
	_, err := runWith(t, vm.New(vm.Config{}), src)
	expectError(t, err, errs.Inaccessible)
}

func TestGetMetamethod(t *testing.T) {
	expectString(t, run(t, `
var d = { __operator_get: function(k) { return k + "!"; } };
var o = set_delegate({}, d);
o.abc;`), "abc!")

	_, err := runWith(t, vm.New(vm.Config{}), `
var d = { __operator_get: function(k) { return none; } };
var o = set_delegate({}, d);
o.abc;`)
	expectError(t, err, errs.NotFound)

	expectInt(t, run(t, `
var fallback = { x: 3 };
var o = set_delegate({}, { __operator_get: fallback });
o.x;`), 3)
}

func TestSetMetamethod(t *testing.T) {
	src := `
var log = [];
var d = { __operator_set: function(k, v) { log.push(k); return true; } };
var o = set_delegate({}, d);
o.a = 1;
o.b = 2;
log.size() * 10 + size(o);`
	expectInt(t, run(t, src), 20)
}

func TestArithmeticMetamethods(t *testing.T) {
	src := `
var meta = {
  __operator_add: function(o) { return this.n + o; },
  __operator_rhs_add: function(o) { return o * 100 + this.n; }
};
var a = set_delegate({n: 5}, meta);
(a + 1) * 1000 + (1 + a);`
	expectInt(t, run(t, src), 6105)
}

func TestMetamethodAritySniffing(t *testing.T) {
	src := `
var meta = {};
meta.__operator_sub = function(o, d) { return d == meta; };
var a = set_delegate({}, meta);
a - 1;`
	expectBool(t, run(t, src), true)
}

func TestTypeofAndToString(t *testing.T) {
	expectString(t, run(t, `typeof 1;`), "integer")
	expectString(t, run(t, `typeof "s";`), "string")
	expectString(t, run(t, `typeof function() {};`), "function")
	expectString(t, run(t, `var o = set_delegate({}, { __operator_typeof: function() { return "point"; } }); typeof o;`), "point")
	expectString(t, run(t, `tostring([1, "a", 2.0]);`), `[1, "a", 2.0]`)
}

func TestInstructionLimit(t *testing.T) {
	machine := vm.New(vm.Config{InstructionLimit: 1000})
	_, err := runWith(t, machine, `while (true) {}`)
	expectError(t, err, errs.InstructionLimit)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	machine := vm.New(vm.Config{})
	_, err := machine.Run(ctx, compileChunk(t, `while (true) {}`))
	expectError(t, err, errs.Cancelled)
}

func TestDefaultParameters(t *testing.T) {
	expectInt(t, run(t, `function f(a, b = 10) { return a + b; } f(1) + f(1, 2);`), 14)
	_, err := runWith(t, vm.New(vm.Config{}), `function f(a, b = 10) { return a; } f(1, 2, 3);`)
	expectError(t, err, errs.InvalidParameterCount)
	_, err = runWith(t, vm.New(vm.Config{}), `function f(a, b = 10) { return a; } f();`)
	expectError(t, err, errs.InvalidParameterCount)
}

func TestClassConstruction(t *testing.T) {
	src := `
class Point {
  constructor(x, y) { this.x = x; this.y = y; }
  sum() { return this.x + this.y; }
}
var p = Point(2, 3);
p.sum();`
	expectInt(t, run(t, src), 5)
	expectInt(t, run(t, `class E { var v = 1; } var e = E(); e.v;`), 1)
}

func TestVariadicParameters(t *testing.T) {
	expectInt(t, run(t, `function f(a, ...) { return vargv.size(); } f(1, 2, 3) * 10 + f(1);`), 20)
	src := `
function sum(first, rest...) {
  var s = first;
  for (var i = 0; i < rest.size(); i++) s += rest[i];
  return s;
}
sum(1, 2, 3, 4);`
	expectInt(t, run(t, src), 10)
	expectInt(t, run(t, `function g(a, b = 5, ...) { return a + b + vargv.size(); } g(1) + g(1, 1, 9, 9);`), 10)
	expectInt(t, run(t, `var f = (...) => vargv.size(); f(1, 2);`), 2)
	_, err := runWith(t, vm.New(vm.Config{}), `function h(a, ...) { return a; } h();`)
	expectError(t, err, errs.InvalidParameterCount)
}

func TestEnumValues(t *testing.T) {
	src := `enum E { a, b, c, d = "D", e = 8, f = "F", g }`
	expectInt(t, run(t, src+` E.a + E.b * 10 + E.c * 100;`), 210)
	expectString(t, run(t, src+` E.d + E.f;`), "DF")
	expectInt(t, run(t, src+` E.g;`), 9)
	expectInt(t, run(t, `var k = 9; enum v = { a = -1, b, c = k, d = "90", e, }; v.b * 100 + v.e;`), 10)
}

func TestEnumIsReadOnly(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *errorx.Type
	}{
		{"overwrite", `enum E { a, b } E.a = 5;`, errs.Inaccessible},
		{"add", `enum E { a } E.z = 1;`, errs.Inaccessible},
		{"table member", `enum E { a = {} }`, errs.InvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWith(t, vm.New(vm.Config{}), tt.src)
			expectError(t, err, tt.want)
		})
	}
}

func TestStructInstances(t *testing.T) {
	src := `
struct Point {
  var x = 0;
  int y;
  const tag = "pt";
  constructor(x, y = 2) { this.x = x; this.y = y; }
  sum() { return this.x + this.y; }
}
`
	expectInt(t, run(t, src+`var p = Point(3); p.sum();`), 5)
	expectString(t, run(t, src+`Point(1).tag;`), "pt")
	expectString(t, run(t, src+`typeof Point(1);`), "table")
	expectInt(t, run(t, `struct S { var a = 1; } var x = S(); var y = S(); x.a = 5; y.a;`), 1)
	expectInt(t, run(t, `struct S { const c = 1; constructor(v) { this.c = v; } } S(7).c;`), 7)
	expectInt(t, run(t, `var S = struct { a = 4; }; S().a;`), 4)
}

func TestStructLayoutEnforced(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *errorx.Type
	}{
		{"typed field", `struct S { int n; } var s = S(); s.n = "x";`, errs.InvalidType},
		{"new field", `struct S { var a = 1; } var s = S(); s.b = 2;`, errs.Inaccessible},
		{"const field", `struct S { const c = 1; } var s = S(); s.c = 2;`, errs.Inaccessible},
		{"const on type", `struct S { const c = 1; } S.c = 2;`, errs.Inaccessible},
		{"method replaced on instance", `struct S { m() {} } var s = S(); s.m = 1;`, errs.Inaccessible},
		{"arguments without constructor", `struct S { var a = 1; } S(1);`, errs.InvalidParameterCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWith(t, vm.New(vm.Config{}), tt.src)
			expectError(t, err, tt.want)
		})
	}
}

func TestCallMetamethod(t *testing.T) {
	src := `
var meta = { __operator_call: function(a, b) { return a * b + this.k; } };
var o = set_delegate({k: 1}, meta);
o(6, 7);`
	expectInt(t, run(t, src), 43)
}

func TestCallOperatorCycleIsInaccessible(t *testing.T) {
	src := `
var t = {};
var d = {};
d.__operator_call = t;
set_delegate(t, d);
t();`
	_, err := runWith(t, vm.New(vm.Config{}), src)
	expectError(t, err, errs.Inaccessible)

	expectInt(t, run(t, `
var inner = set_delegate({}, { __operator_call: function(x) { return x + 1; } });
var outer = set_delegate({}, { __operator_call: inner });
outer(1);`), 2)
}

func TestArrayIndexing(t *testing.T) {
	expectInt(t, run(t, `var a = [1, 2, 3]; a[-1];`), 3)
	expectInt(t, run(t, `var a = [1, 2, 3]; a[0] = 9; a[0] + a.pop();`), 12)
	_, err := runWith(t, vm.New(vm.Config{}), `var a = [1]; a[5];`)
	expectError(t, err, errs.OutOfBounds)
	expectInt(t, run(t, `"abc"[1];`), 'b')

	_, err = runWith(t, vm.New(vm.Config{}), `"abc"[-4];`)
	expectError(t, err, errs.OutOfBounds)
	if !strings.Contains(err.Error(), "index -4 out of bounds for length 3") {
		t.Fatalf("error should name the index as written: %v", err)
	}
}

func TestNaNTableKeyRejected(t *testing.T) {
	_, err := runWith(t, vm.New(vm.Config{}), `var t = {}; t[0.0 / 0.0] = 1;`)
	expectError(t, err, errs.InvalidArgument)
	expectInt(t, run(t, `var t = {}; var k = 2.0; t[k] = 1; t[2] = 5; size(t) * 10 + t[k];`), 15)
}

func TestForeachTableOrder(t *testing.T) {
	src := `
var t = {b: 1, a: 2, c: 3};
var s = "";
var sum = 0;
for (var k, v : t) { s = s + k; sum += v; }
s + tostring(sum);`
	expectString(t, run(t, src), "bac6")
}

func TestTypedDeclarationChecked(t *testing.T) {
	_, err := runWith(t, vm.New(vm.Config{}), `int n = "x";`)
	expectError(t, err, errs.InvalidType)
	expectInt(t, run(t, `int n; n;`), 0)
}

func TestBindAndWeakRef(t *testing.T) {
	expectInt(t, run(t, `var f = function() { return this.v; }; var g = bind(f, {v: 7}); g();`), 7)
	expectBool(t, run(t, `var t = {}; var w = weakref(t); deref(w) == t;`), true)
	expectBool(t, run(t, `is_none(none);`), true)
}

func TestNativeReentrancy(t *testing.T) {
	machine := vm.New(vm.Config{})
	machine.SetGlobal("apply", vm.NewNative("apply", func(rt *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.Call(args[0], vm.Null(), args[1:])
	}))
	v, err := runWith(t, machine, `apply(function(x) { return apply(function(y) { return y * 2; }, x); }, 21);`)
	if err != nil {
		t.Fatalf("vm error: %v", err)
	}
	expectInt(t, v, 42)
	if machine.Depth() != 0 {
		t.Fatalf("frames leaked: depth %d", machine.Depth())
	}
}

func TestCapturesBakedOnErrorUnwind(t *testing.T) {
	machine := vm.New(vm.Config{})
	var stashed vm.Value
	machine.SetGlobal("stash", vm.NewNative("stash", func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		stashed = args[0]
		return vm.Null(), nil
	}))
	_, err := runWith(t, machine, `
function fail() {
	var x = 77;
	stash(function() { return x; });
	var n = null;
	return n.boom;
}
fail();`)
	expectError(t, err, errs.InvalidType)
	if machine.Depth() != 0 {
		t.Fatalf("frames leaked after error: depth %d", machine.Depth())
	}

	// Reuse the same stack slots before calling the stashed closure.
	if _, err := runWith(t, machine, `function g() { var a = 1; var b = 2; var c = 3; return a + b + c; } g();`); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	v, err := machine.Call(stashed, vm.Null(), nil)
	if err != nil {
		t.Fatalf("call stashed closure: %v", err)
	}
	expectInt(t, v, 77)
}

func TestStackOverflow(t *testing.T) {
	machine := vm.New(vm.Config{MaxFrames: 64})
	_, err := runWith(t, machine, `function r() { return r(); } r();`)
	expectError(t, err, errs.StackOverflow)
	if machine.Depth() != 0 {
		t.Fatalf("frames leaked after error: depth %d", machine.Depth())
	}
}

func TestRuntimeErrorLocation(t *testing.T) {
	_, err := runWith(t, vm.New(vm.Config{}), "var a = 1;\nfunction f() { return nothing; }\nf();")
	rerr, ok := err.(*vm.RuntimeError)
	if !ok {
		t.Fatalf("expected *vm.RuntimeError, got %T (%v)", err, err)
	}
	if rerr.Frame.Function != "f" || rerr.Frame.Line != 2 {
		t.Fatalf("unexpected frame %+v", rerr.Frame)
	}
	if len(rerr.Stack) != 2 {
		t.Fatalf("expected 2 frames in trace, got %+v", rerr.Stack)
	}
	if !strings.Contains(err.Error(), "nothing") {
		t.Fatalf("message should name the symbol: %v", err)
	}
}

func TestTraceHook(t *testing.T) {
	machine := vm.New(vm.Config{})
	count := 0
	machine.SetTraceHook(func(info vm.TraceInfo) {
		count++
	})
	proto := compileChunk(t, `var a = 1 + 2;`)
	if _, err := machine.Run(context.Background(), proto); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	if count != len(proto.Code) {
		t.Fatalf("expected %d traced instructions, got %d", len(proto.Code), count)
	}
}

func TestDuplicateIsolatesState(t *testing.T) {
	machine := vm.New(vm.Config{})
	p, err := compiler.Compile(`var t = {n: 1}; var f = function() { return t.n; };`, "test", compiler.Options{GlobalDeclarations: true})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if _, err := machine.Run(context.Background(), p); err != nil {
		t.Fatalf("vm error: %v", err)
	}
	dup := machine.Duplicate()
	orig, _ := machine.Global("t")
	orig.Table().SetString("n", vm.Int(5))

	f, _ := dup.Global("f")
	v, err := dup.Call(f, vm.Null(), nil)
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	expectInt(t, v, 1)
	f, _ = machine.Global("f")
	v, err = machine.Call(f, vm.Null(), nil)
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	expectInt(t, v, 5)
}
