package zscript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

type testCustomMarshaler struct{ V string }
type testCustomUnmarshaler struct{ V string }

var _ Marshaler = (*testCustomMarshaler)(nil)
var _ Unmarshaler = (*testCustomUnmarshaler)(nil)

func (c testCustomMarshaler) MarshalZScript() (Value, error) {
	return NewValue(map[string]any{"v": c.V})
}

func (c *testCustomUnmarshaler) UnmarshalZScript(v Value) error {
	t, ok := v.Table()
	if !ok {
		return fmt.Errorf("expected table")
	}
	val, ok := t["v"].String()
	if !ok {
		return fmt.Errorf("missing v")
	}
	c.V = val
	return nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func load(t *testing.T, e *Engine, src string) {
	t.Helper()
	if _, err := e.LoadSource(context.Background(), "inline", src); err != nil {
		t.Fatalf("load source: %v", err)
	}
}

func expectRawInt(t *testing.T, v Value, want int64) {
	t.Helper()
	if n, ok := v.Int(); !ok || n != want {
		t.Fatalf("expected %d, got %s (%s)", want, v.Format(), v.Kind())
	}
}

func TestAPIScriptCall(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, `function add(a, b) { return a + b; }`)
	res, err := e.CallAsync(context.Background(), "add", MustValue(2), MustValue(3)).Await(context.Background())
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	if v, ok := res.MustRaw().(int64); !ok || v != 5 {
		t.Fatalf("expected 5, got %#v", res.MustRaw())
	}
}

func TestAPIEvalResult(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Eval(context.Background(), `1 + 2;`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	expectRawInt(t, res, 3)

	res, err = e.Eval(context.Background(), `var x = 10; x * 2;`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	expectRawInt(t, res, 20)

	res, err = e.Eval(context.Background(), `x + 1;`)
	if err != nil {
		t.Fatalf("globals should persist across loads: %v", err)
	}
	expectRawInt(t, res, 11)
}

func TestAPIHostFunctionBinding(t *testing.T) {
	e := newTestEngine(t)
	host := NewFunction([]string{"x"}, func(ctx *Context, args map[string]Value) (Value, error) {
		n, err := NewHostArgs(args).Int("x")
		if err != nil {
			return Value{}, err
		}
		return NewValue(n + 1)
	})
	if err := e.SetGlobalFunction("inc", host); err != nil {
		t.Fatalf("set global: %v", err)
	}
	load(t, e, `function run(v) { return inc(v); }`)
	res, err := e.CallGlobal(context.Background(), "run", MustValue(4))
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	expectRawInt(t, res, 5)

	_, err = e.CallGlobal(context.Background(), "run", MustValue("four"))
	if !IsError(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid_argument from a typed host arg, got %v", err)
	}
}

func TestAPIHasFunction(t *testing.T) {
	e := newTestEngine(t)
	if e.HasFunction("missing") {
		t.Fatalf("expected missing to be false")
	}
	load(t, e, `function present() { return 1; } var notfn = 2;`)
	if !e.HasFunction("present") {
		t.Fatalf("expected present to be true")
	}
	if e.HasFunction("notfn") {
		t.Fatalf("a plain global is not a function")
	}
	if !e.HasFunction("print") {
		t.Fatalf("print should be installed")
	}
	if _, err := e.CallGlobal(context.Background(), "nothing"); !IsError(err, ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := e.CallGlobal(context.Background(), "notfn"); !IsError(err, ErrInvalidType) {
		t.Fatalf("expected invalid_type, got %v", err)
	}
}

func TestAPIDuplicateIsolation(t *testing.T) {
	base := newTestEngine(t)
	load(t, base, `
var state = { count: 0 };
function bump() {
  state.count += 1;
  return state.count;
}`)
	dup, err := base.Duplicate()
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.ID() == base.ID() {
		t.Fatalf("duplicate should get its own id")
	}
	dupFirst, err := dup.CallAsync(context.Background(), "bump").Await(context.Background())
	if err != nil {
		t.Fatalf("dup bump: %v", err)
	}
	expectRawInt(t, dupFirst, 1)
	baseFirst, err := base.CallAsync(context.Background(), "bump").Await(context.Background())
	if err != nil {
		t.Fatalf("base bump: %v", err)
	}
	expectRawInt(t, baseFirst, 1)
	dupSecond, err := dup.CallAsync(context.Background(), "bump").Await(context.Background())
	if err != nil {
		t.Fatalf("dup bump second: %v", err)
	}
	expectRawInt(t, dupSecond, 2)
}

func TestAPIPrint(t *testing.T) {
	e := newTestEngine(t)
	var out bytes.Buffer
	e.SetOutput(&out)
	load(t, e, `print("a", 1, [1, 2.5], null);`)
	if got := out.String(); got != "a 1 [1, 2.5] null\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestAPIHostInteropMarshaling(t *testing.T) {
	type service struct {
		Name  string `zscript:"name"`
		Port  int    `zscript:"port"`
		Tags  []string
		Skip  string `zscript:"-"`
		inner int
	}
	e := newTestEngine(t)
	if err := e.SetGlobal("svc", service{Name: "api", Port: 80, Tags: []string{"a", "b"}, Skip: "x", inner: 1}); err != nil {
		t.Fatalf("set global: %v", err)
	}
	res, err := e.Eval(context.Background(), `svc.name + ":" + tostring(svc.port) + ":" + svc.Tags[1];`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if s, ok := res.String(); !ok || s != "api:80:b" {
		t.Fatalf("unexpected %s", res.Format())
	}
	if _, err := e.Eval(context.Background(), `svc.Skip;`); !IsError(err, ErrNotFound) {
		t.Fatalf("tagged-out field should be absent, got %v", err)
	}

	res, err = e.Eval(context.Background(), `var r = { name: "db", port: 5432, Tags: ["x"] }; r;`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	var back service
	if err := Unmarshal(res, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Name != "db" || back.Port != 5432 || !reflect.DeepEqual(back.Tags, []string{"x"}) {
		t.Fatalf("unexpected struct %+v", back)
	}

	var n int8
	big, _ := NewValue(1000)
	if err := Unmarshal(big, &n); err == nil {
		t.Fatalf("expected overflow error for int8")
	}
}

func TestAPICustomMarshalers(t *testing.T) {
	v, err := NewValue(testCustomMarshaler{V: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var u testCustomUnmarshaler
	if err := Unmarshal(v, &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.V != "hi" {
		t.Fatalf("expected hi, got %q", u.V)
	}
}

func TestAPIBuiltinsAutoRegistered(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Eval(context.Background(), `size([1, 2, 3]) + size("ab") + size({a: 1});`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	expectRawInt(t, res, 6)
}

func TestAPIFunctionMapMarshal(t *testing.T) {
	e := newTestEngine(t)
	funcs, err := MarshalFunctionMap(map[string]any{
		"add":   func(a, b int) int { return a + b },
		"greet": func(name string) (string, error) { return "hello " + name, nil },
		"fail":  func() error { return errors.New("boom") },
		"noop":  func() {},
	})
	if err != nil {
		t.Fatalf("marshal map: %v", err)
	}
	if err := e.SetGlobal("m", funcs); err != nil {
		t.Fatalf("set global: %v", err)
	}
	res, err := e.Eval(context.Background(), `m.add(2, 3);`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	expectRawInt(t, res, 5)

	res, err = e.Eval(context.Background(), `m.greet("bob");`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if s, _ := res.String(); s != "hello bob" {
		t.Fatalf("unexpected %s", res.Format())
	}

	res, err = e.Eval(context.Background(), `m.noop();`)
	if err != nil || !res.IsNull() {
		t.Fatalf("noop should return null, got %s, %v", res.Format(), err)
	}

	_, err = e.Eval(context.Background(), `m.fail();`)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := e.Eval(context.Background(), `m.add(1);`); !IsError(err, ErrInvalidParameterCount) {
		t.Fatalf("expected invalid_parameter_count, got %v", err)
	}

	if _, err := MarshalFunctionMap(map[string]any{"bad": 3}); err == nil {
		t.Fatalf("expected error for non-function")
	}
	if _, err := MarshalFunctionMap(map[string]any{"bad": func() (int, int) { return 1, 2 }}); err == nil {
		t.Fatalf("expected error for non-error second result")
	}
}

func TestAPIRuntimeErrorDiagnostics(t *testing.T) {
	e := newTestEngine(t)
	src := "var a = 1;\nfunction f() {\n  return a.missing;\n}\n"
	if _, err := e.LoadSource(context.Background(), "diag.zs", src); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err := e.CallGlobal(context.Background(), "f")
	var rte *RuntimeError
	if !errors.As(err, &rte) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if rte.Frame.Source != "diag.zs" || rte.Frame.Line != 3 || rte.Frame.Function != "f" {
		t.Fatalf("unexpected frame %+v", rte.Frame)
	}
	if rte.Frame.Op != "GET" {
		t.Fatalf("expected the failing op to be GET, got %q", rte.Frame.Op)
	}
	if len(rte.Stack) != 1 || rte.Depth() != 1 {
		t.Fatalf("expected one frame, got %+v", rte.Stack)
	}
	if !IsError(err, ErrInvalidType) {
		t.Fatalf("indexing an integer should be invalid_type, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "diag.zs:3 in f: ") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestAPICompileErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Compile("bad.zs", "var a = ;")
	if !IsError(err, ErrSyntax) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	_, err = e.Compile("bad.zs", "const c = 1; c = 2;")
	if !IsError(err, ErrConstAssignment) {
		t.Fatalf("expected const_assignment, got %v", err)
	}
}

func TestAPITraceHook(t *testing.T) {
	e := newTestEngine(t)
	var infos []TraceInfo
	e.SetTraceHook(func(info TraceInfo) {
		infos = append(infos, info)
	})
	load(t, e, `var a = 1 + 2;`)
	if len(infos) == 0 {
		t.Fatalf("expected trace events")
	}
	if infos[0].Function != "main" || infos[0].Source != "inline" || infos[0].Depth != 1 {
		t.Fatalf("unexpected first event %+v", infos[0])
	}
	if last := infos[len(infos)-1]; last.Op != "RETURN" {
		t.Fatalf("expected RETURN last, got %s", last.Op)
	}
	e.SetTraceHook(nil)
	n := len(infos)
	load(t, e, `var b = 2;`)
	if len(infos) != n {
		t.Fatalf("hook should be detached")
	}
}

func TestAPIInstructionLimit(t *testing.T) {
	e := newTestEngine(t)
	e.SetInstructionLimit(100)
	_, err := e.Eval(context.Background(), `while (true) {}`)
	if !IsError(err, ErrInstructionLimit) {
		t.Fatalf("expected instruction_limit, got %v", err)
	}
	e.SetInstructionLimit(0)
	res, err := e.Eval(context.Background(), `var i = 0; while (i < 1000) { i++; } i;`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	expectRawInt(t, res, 1000)
}

func TestAPICancellation(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, `function spin() { while (true) {} }`)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.CallAsync(ctx, "spin").Await(context.Background())
	if !IsError(err, ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if !strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
		t.Fatalf("cancellation should carry the context error, got %v", err)
	}
}

func TestAPIHostArgHelpersAndExtraArgs(t *testing.T) {
	e := newTestEngine(t)
	strict := NewFunction([]string{"a"}, func(_ *Context, args map[string]Value) (Value, error) {
		return args["a"], nil
	})
	variadic := &Function{
		Params:   []string{"first"},
		Variadic: true,
		Handler: func(_ *Context, args map[string]Value) (Value, error) {
			ha := NewHostArgs(args)
			s, err := ha.String("first")
			if err != nil {
				return Value{}, err
			}
			n, err := ha.Number("arg1")
			if err != nil {
				return Value{}, err
			}
			b, err := ha.Bool("arg2")
			if err != nil {
				return Value{}, err
			}
			arr, err := ha.Array("arg3")
			if err != nil {
				return Value{}, err
			}
			tbl, err := ha.Table("arg4")
			if err != nil {
				return Value{}, err
			}
			return NewValue(fmt.Sprintf("%s %.1f %v %d %d", s, n, b, len(arr), len(tbl)))
		},
	}
	if err := e.SetGlobalFunction("strict", strict); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := e.SetGlobalFunction("variadic", variadic); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := e.Eval(context.Background(), `strict(1, 2);`); !IsError(err, ErrInvalidParameterCount) {
		t.Fatalf("expected invalid_parameter_count, got %v", err)
	}
	res, err := e.Eval(context.Background(), `variadic("x", 1.5, true, [1, 2], {a: 1});`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if s, _ := res.String(); s != "x 1.5 true 2 1" {
		t.Fatalf("unexpected %q", s)
	}
	_, err = e.Eval(context.Background(), `variadic(1, 1.5, true, [], {});`)
	if !IsError(err, ErrInvalidArgument) || !strings.Contains(err.Error(), `argument "first": want string`) {
		t.Fatalf("expected argument error for first, got %v", err)
	}
}

func TestAPIContextCallReentersVM(t *testing.T) {
	e := newTestEngine(t)
	apply := NewFunction([]string{"fn", "x"}, func(ctx *Context, args map[string]Value) (Value, error) {
		return ctx.Call(args["fn"], args["x"])
	})
	if err := e.SetGlobalFunction("apply", apply); err != nil {
		t.Fatalf("bind: %v", err)
	}
	res, err := e.Eval(context.Background(), `apply(function(y) { return apply(function(z) { return z * 2; }, y + 1); }, 20);`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	expectRawInt(t, res, 42)
}

func TestAPIFunctionHandle(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Eval(context.Background(), `function(a) { return a * 3; };`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	fn, ok := res.AsFunction()
	if !ok {
		t.Fatalf("expected function, got %s", res.Kind())
	}
	out, err := fn.Call(context.Background(), MustValue(7))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	expectRawInt(t, out, 21)
	if _, err := res.Raw(); err == nil {
		t.Fatalf("Raw on a function should fail")
	}
}

func TestAPIHostFunctionBlocksVM(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, `function slowCall(x) { return host(x); }`)
	hostFn := NewFunction([]string{"v"}, func(_ *Context, args map[string]Value) (Value, error) {
		time.Sleep(30 * time.Millisecond)
		return args["v"], nil
	})
	if err := e.SetGlobalFunction("host", hostFn); err != nil {
		t.Fatalf("bind host: %v", err)
	}

	start := time.Now()
	res, err := e.CallAsync(context.Background(), "slowCall", MustValue(42)).Await(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	expectRawInt(t, res, 42)
	if elapsed < 25*time.Millisecond {
		t.Fatalf("expected blocking host call; elapsed %v too short", elapsed)
	}
}

func TestAPICallAsyncBusyProtection(t *testing.T) {
	e := newTestEngine(t)
	load(t, e, `function slow() { return host(); }`)
	hostFn := NewFunction(nil, func(_ *Context, _ map[string]Value) (Value, error) {
		time.Sleep(50 * time.Millisecond)
		return NewValue(1)
	})
	if err := e.SetGlobalFunction("host", hostFn); err != nil {
		t.Fatalf("bind host: %v", err)
	}

	fut1 := e.CallAsync(context.Background(), "slow")
	fut2 := e.CallAsync(context.Background(), "slow")

	if _, err := fut2.Await(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy error on concurrent CallAsync, got %v", err)
	}
	if _, err := e.Duplicate(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy error on duplicate, got %v", err)
	}

	val, err := fut1.Await(context.Background())
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if num, ok := val.Number(); !ok || num != 1 {
		t.Fatalf("unexpected result %v ok=%v", num, ok)
	}
}

func TestAPIBroaderMarshalingAndAccessors(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Eval(context.Background(), `[null, true, 3, 2.5, "s", {a: 1}, {[1]: "one"}];`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	items, ok := res.Array()
	if !ok || len(items) != 7 {
		t.Fatalf("expected 7 items, got %s", res.Format())
	}
	kinds := []ValueKind{ValueNull, ValueBool, ValueInt, ValueFloat, ValueString, ValueTable, ValueTable}
	for i, k := range kinds {
		if items[i].Kind() != k {
			t.Fatalf("item %d: expected %s, got %s", i, k, items[i].Kind())
		}
	}
	if f, ok := items[3].Float(); !ok || f != 2.5 {
		t.Fatalf("unexpected float %v", f)
	}
	if n, ok := items[2].Number(); !ok || n != 3 {
		t.Fatalf("integers should read as numbers")
	}
	raw := res.MustRaw().([]any)
	if !reflect.DeepEqual(raw[5], map[string]any{"a": int64(1)}) {
		t.Fatalf("unexpected string-keyed table %#v", raw[5])
	}
	if !reflect.DeepEqual(raw[6], map[any]any{int64(1): "one"}) {
		t.Fatalf("unexpected int-keyed table %#v", raw[6])
	}

	cyclic, err := e.Eval(context.Background(), `var c = {}; c.self = c; c;`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if _, err := cyclic.Raw(); err == nil {
		t.Fatalf("expected cycle error")
	}

	v, err := NewValue(map[string][]float32{"xs": {1, 2}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string][]float64
	if err := Unmarshal(v, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, map[string][]float64{"xs": {1, 2}}) {
		t.Fatalf("unexpected %#v", back)
	}
	if _, err := NewValue(make(chan int)); err == nil {
		t.Fatalf("channels should not marshal")
	}
}
