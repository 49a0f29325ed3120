package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

func TestInstructionEncoding(t *testing.T) {
	cases := []struct {
		inst Instruction
		op   OpCode
		a    int
		b    int
		c    int
		sbx  int
		sc   int
	}{
		{inst: ABC(OpAdd, 3, 4, 5), op: OpAdd, a: 3, b: 4, c: 5},
		{inst: ABC(OpGet, 0xFF, 0, RK(12)), op: OpGet, a: 0xFF, c: RK(12)},
		{inst: AsBx(OpJmp, 0, -7), op: OpJmp, sbx: -7},
		{inst: AsBx(OpLoadInt, 2, MinSBx), op: OpLoadInt, a: 2, sbx: MinSBx},
		{inst: AsBx(OpJz, 9, MaxSBx), op: OpJz, a: 9, sbx: MaxSBx},
		{inst: ABsC(OpAnd, 1, 2, -3), op: OpAnd, a: 1, b: 2, sc: -3},
	}
	for i, tc := range cases {
		if tc.inst.Op() != tc.op || tc.inst.A() != tc.a {
			t.Fatalf("case %d: got %s", i, tc.inst)
		}
		switch tc.op.Format() {
		case FormatAsBx:
			if tc.inst.SBx() != tc.sbx {
				t.Fatalf("case %d: expected sBx %d, got %d", i, tc.sbx, tc.inst.SBx())
			}
		case FormatABsC:
			if tc.inst.B() != tc.b || tc.inst.SC() != tc.sc {
				t.Fatalf("case %d: expected B=%d sC=%d, got %s", i, tc.b, tc.sc, tc.inst)
			}
		default:
			if tc.inst.B() != tc.b || tc.inst.C() != tc.c {
				t.Fatalf("case %d: expected B=%d C=%d, got %s", i, tc.b, tc.c, tc.inst)
			}
		}
	}

	patched := AsBx(OpJz, 4, 0).WithSBx(-12)
	if patched.A() != 4 || patched.SBx() != -12 {
		t.Fatalf("patch lost operands: %s", patched)
	}
	if !IsK(RK(5)) || IsK(5) || IndexK(RK(5)) != 5 {
		t.Fatalf("RK helpers inconsistent")
	}
}

func TestDisassembleBuiltinName(t *testing.T) {
	const id = 90
	if _, ok := LookupBuiltinInfo(id); !ok {
		RegisterBuiltinInfo("size", id, 1)
	}
	proto := &Prototype{
		Name:  "test",
		Code:  []Instruction{ABC(OpBuiltin, 1, id, 1), ABC(OpReturn, 1, 1, 0)},
		Lines: []LineInfo{{PC: 0, Line: 1}},
	}
	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassemblePrototype("test", proto); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "BUILTIN") || !strings.Contains(out, "size arity=1") {
		t.Fatalf("expected builtin name, got:\n%s", out)
	}
}

func TestDisassembleNestedAndLiterals(t *testing.T) {
	child := &Prototype{
		Name:     "inner",
		Code:     []Instruction{ABC(OpGetCapture, 1, 0, 0), ABC(OpReturn, 1, 1, 0)},
		Captures: []CaptureInfo{{Name: "n", Index: 1, Kind: CaptureLocal}},
	}
	proto := &Prototype{
		Name:      "outer",
		Literals:  []any{"name", int64(7)},
		Code:      []Instruction{ABx(OpLoad, 1, 0), ABC(OpGet, 2, 0, RK(1)), AsBx(OpJmp, 0, -2), ABx(OpNewClosure, 3, 0)},
		Functions: []*Prototype{child},
	}
	var buf bytes.Buffer
	if err := NewDisassembler(&buf).DisassemblePrototype("", proto); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"name"`, "K1", "to 0000", "proto inner", "func inner", "capture 0 n local 1", "GETCAPTURE"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
