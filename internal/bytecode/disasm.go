package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Prototype]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Prototype]bool),
	}
}

// DisassemblePrototype emits a readable dump for a prototype and any nested prototypes.
func (d *Disassembler) DisassemblePrototype(label string, proto *Prototype) error {
	if proto == nil {
		return fmt.Errorf("nil prototype")
	}
	if d.visited[proto] {
		return nil
	}
	d.visited[proto] = true
	d.startSection()
	name := label
	if name == "" {
		name = proto.DisplayName()
	}
	source := proto.Source
	if source == "" {
		source = "<unknown>"
	}
	variadic := ""
	if proto.Variadic {
		variadic = ", variadic"
	}
	fmt.Fprintf(d.w, "func %s (params=%d%s, defaults=%d, stack=%d, captures=%d) source=%s\n",
		name, proto.NumParams(), variadic, proto.NumDefaults, proto.StackSize, len(proto.Captures), source)
	for i, c := range proto.Captures {
		fmt.Fprintf(d.w, "  capture %d %s %s %d\n", i, c.Name, c.Kind, c.Index)
	}
	for pc, inst := range proto.Code {
		d.instruction(proto, pc, inst)
	}
	for idx, child := range proto.Functions {
		childName := child.Name
		if childName == "" {
			childName = fmt.Sprintf("<closure@%s:%d>", name, idx)
		}
		if err := d.DisassemblePrototype(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a header for a native (host) function.
func (d *Disassembler) PrintNative(name string) {
	d.startSection()
	if name == "" {
		name = "<native>"
	}
	fmt.Fprintf(d.w, "func %s [native]\n", name)
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) instruction(proto *Prototype, pc int, inst Instruction) {
	line := proto.LineForPC(pc)
	lineStr := "-"
	if line > 0 {
		lineStr = strconv.Itoa(line)
	}
	op := inst.Op()
	operands, comment := d.operands(proto, pc, inst)
	fmt.Fprintf(d.w, "%04d %4s %-12s %s", pc, lineStr, op, operands)
	if comment != "" {
		fmt.Fprintf(d.w, " ; %s", comment)
	}
	fmt.Fprintln(d.w)
}

func (d *Disassembler) operands(proto *Prototype, pc int, inst Instruction) (string, string) {
	op := inst.Op()
	a, b, c := inst.A(), inst.B(), inst.C()
	switch op {
	case OpNop:
		return "", ""
	case OpLoad:
		return fmt.Sprintf("%d %d", a, inst.Bx()), formatLiteral(proto, inst.Bx())
	case OpLoadInt, OpJz, OpJnz, OpIterNext:
		if op == OpLoadInt {
			return fmt.Sprintf("%d %d", a, inst.SBx()), ""
		}
		return fmt.Sprintf("%d %d", a, inst.SBx()), fmt.Sprintf("to %04d", pc+inst.SBx())
	case OpJmp:
		return strconv.Itoa(inst.SBx()), fmt.Sprintf("to %04d", pc+inst.SBx())
	case OpAnd, OpOr:
		return fmt.Sprintf("%d %d %d", a, b, inst.SC()), fmt.Sprintf("to %04d", pc+inst.SC())
	case OpLoadNull, OpLoadNone, OpLoadRoot, OpClose, OpNewTable, OpNewArray:
		return strconv.Itoa(a), ""
	case OpGet, OpGetOrRoot, OpMethod:
		return fmt.Sprintf("%d %d %s", a, b, rkString(c)), rkComment(proto, c)
	case OpSet, OpSetExisting:
		comments := []string{}
		if k := rkComment(proto, b); k != "" {
			comments = append(comments, "key="+k)
		}
		if v := rkComment(proto, c); v != "" {
			comments = append(comments, "value="+v)
		}
		return fmt.Sprintf("%d %s %s", a, rkString(b), rkString(c)), strings.Join(comments, " ")
	case OpGetCapture:
		return fmt.Sprintf("%d %d", a, b), captureName(proto, b)
	case OpSetCapture:
		return fmt.Sprintf("%d %d", a, b), captureName(proto, a)
	case OpNewClosure:
		bx := inst.Bx()
		if bx < len(proto.Functions) {
			return fmt.Sprintf("%d %d", a, bx), "proto " + proto.Functions[bx].DisplayName()
		}
		return fmt.Sprintf("%d %d", a, bx), "<invalid>"
	case OpCall:
		return fmt.Sprintf("%d %d", a, b), fmt.Sprintf("args=%d", b)
	case OpNewStruct:
		bx := inst.Bx()
		if bx < len(proto.Structs) {
			return fmt.Sprintf("%d %d", a, bx), structString(proto.Structs[bx])
		}
		return fmt.Sprintf("%d %d", a, bx), "<invalid>"
	case OpSeal:
		if b != 0 {
			return fmt.Sprintf("%d %d", a, b), "read-only"
		}
		return fmt.Sprintf("%d %d", a, b), ""
	case OpEnumSlot:
		return fmt.Sprintf("%d %s %d", a, rkString(b), c), rkComment(proto, b)
	case OpReturn, OpLoadBool, OpMove, OpArrayAppend, OpNot, OpUnm, OpBitNot, OpTypeof, OpIterInit:
		return fmt.Sprintf("%d %d", a, b), ""
	case OpIncr:
		return fmt.Sprintf("%d %d %d", a, b, c), incrName(IncrMode(c))
	case OpCheckType:
		return fmt.Sprintf("%d %d", a, inst.Bx()), TypeMaskString(uint32(inst.Bx()))
	case OpBuiltin:
		if info, ok := LookupBuiltinInfo(b); ok {
			return fmt.Sprintf("%d %d %d", a, b, c), fmt.Sprintf("%s arity=%d", info.Name, info.Arity)
		}
		return fmt.Sprintf("%d %d %d", a, b, c), ""
	default:
		return fmt.Sprintf("%d %d %d", a, b, c), ""
	}
}

func structString(s *StructInfo) string {
	fields := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.Name
		if f.Const {
			fields[i] = "const " + f.Name
		}
	}
	return fmt.Sprintf("struct %s {%s}", s.Name, strings.Join(fields, ", "))
}

func rkString(x int) string {
	if IsK(x) {
		return "K" + strconv.Itoa(IndexK(x))
	}
	return strconv.Itoa(x)
}

func rkComment(proto *Prototype, x int) string {
	if !IsK(x) {
		return ""
	}
	return formatLiteral(proto, IndexK(x))
}

func captureName(proto *Prototype, idx int) string {
	if idx < len(proto.Captures) {
		return proto.Captures[idx].Name
	}
	return "<invalid>"
}

func incrName(m IncrMode) string {
	switch m {
	case PostIncr:
		return "x++"
	case PostDecr:
		return "x--"
	case PreIncr:
		return "++x"
	case PreDecr:
		return "--x"
	default:
		return ""
	}
}

func formatLiteral(proto *Prototype, idx int) string {
	if proto == nil || idx < 0 || idx >= len(proto.Literals) {
		return "<invalid>"
	}
	switch val := proto.Literals[idx].(type) {
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return strconv.Quote(val)
	default:
		return "<unknown>"
	}
}
