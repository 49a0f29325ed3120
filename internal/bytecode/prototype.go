package bytecode

// CaptureKind says where a captured variable is found when a closure is created.
type CaptureKind uint8

const (
	// CaptureLocal refers to a slot of the immediately enclosing function's frame.
	CaptureLocal CaptureKind = iota
	// CaptureOuter forwards a capture the enclosing function already holds.
	CaptureOuter
)

func (k CaptureKind) String() string {
	if k == CaptureLocal {
		return "local"
	}
	return "outer"
}

// CaptureInfo describes one captured variable of a prototype.
type CaptureInfo struct {
	Name  string
	Index int // slot (CaptureLocal) or enclosing capture index (CaptureOuter)
	Kind  CaptureKind
}

// LocalVarInfo is the debug record of a named local.
type LocalVarInfo struct {
	Name     string
	Slot     int
	StartPC  int
	EndPC    int
	TypeMask uint32
	Const    bool
}

// LineInfo maps instruction indices to source lines (start-inclusive).
type LineInfo struct {
	PC   int
	Line int
}

// FieldInfo is one declared field of a struct layout.
type FieldInfo struct {
	Name  string
	Mask  uint32
	Const bool
}

// StructInfo is the fixed field layout shared by a struct type and its instances.
type StructInfo struct {
	Name   string
	Fields []FieldInfo
}

// Field looks up a declared field by name.
func (s *StructInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Prototype is the immutable compiled form of one function body.
// Closures share it without copying any of its tables.
type Prototype struct {
	Name        string
	Source      string
	Params      []string // user parameters, slot 1..len(Params); slot 0 is this
	NumDefaults int      // trailing fixed parameters that have a default value
	Variadic    bool     // the last parameter collects extra arguments into an array
	Literals    []any    // int64, float64, string, bool
	Code        []Instruction
	Lines       []LineInfo
	Captures    []CaptureInfo
	Functions   []*Prototype
	Structs     []*StructInfo
	Locals      []LocalVarInfo
	StackSize   int
	Line        int
}

// NumParams is the number of declared user parameters, the variadic one included.
func (p *Prototype) NumParams() int { return len(p.Params) }

// NumFixed is the number of parameters bound one argument each.
func (p *Prototype) NumFixed() int {
	if p.Variadic {
		return len(p.Params) - 1
	}
	return len(p.Params)
}

// LineForPC returns the source line of the instruction at pc, or 0.
func (p *Prototype) LineForPC(pc int) int {
	if p == nil || pc < 0 {
		return 0
	}
	line := 0
	for _, info := range p.Lines {
		if info.PC > pc {
			break
		}
		line = info.Line
	}
	return line
}

// DisplayName returns the name used in traces.
func (p *Prototype) DisplayName() string {
	if p == nil || p.Name == "" {
		return "<anon>"
	}
	return p.Name
}
