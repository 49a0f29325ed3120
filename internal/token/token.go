package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
// Int and Float hold the decoded value of numeric and character literals.
type Token struct {
	Type    Type
	Literal string
	Int     int64
	Float   float64
	Pos     Position
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// identifiers and literals
	Ident   Type = "IDENT"
	Integer Type = "INTEGER"
	Float   Type = "FLOAT"
	Char    Type = "CHAR"
	String  Type = "STRING"

	// keywords
	Var         Type = "VAR"
	Const       Type = "CONST"
	Function    Type = "FUNCTION"
	Return      Type = "RETURN"
	If          Type = "IF"
	Else        Type = "ELSE"
	While       Type = "WHILE"
	Do          Type = "DO"
	For         Type = "FOR"
	Break       Type = "BREAK"
	Continue    Type = "CONTINUE"
	True        Type = "TRUE"
	False       Type = "FALSE"
	Null        Type = "NULL"
	None        Type = "NONE"
	This        Type = "THIS"
	Global      Type = "GLOBAL"
	Typeof      Type = "TYPEOF"
	Class       Type = "CLASS"
	Constructor Type = "CONSTRUCTOR"
	Struct      Type = "STRUCT"
	Enum        Type = "ENUM"

	// type annotation keywords
	IntType    Type = "INT_TYPE"
	FloatType  Type = "FLOAT_TYPE"
	BoolType   Type = "BOOL_TYPE"
	StringType Type = "STRING_TYPE"
	TableType  Type = "TABLE_TYPE"
	ArrayType  Type = "ARRAY_TYPE"
	NumberType Type = "NUMBER_TYPE"

	// operators
	Assign       Type = "ASSIGN"       // =
	Plus         Type = "PLUS"         // +
	Minus        Type = "MINUS"        // -
	Star         Type = "STAR"         // *
	Slash        Type = "SLASH"        // /
	Percent      Type = "PERCENT"      // %
	Exp          Type = "EXP"          // **
	Bang         Type = "BANG"         // !
	Tilde        Type = "TILDE"        // ~
	Amp          Type = "AMP"          // &
	Pipe         Type = "PIPE"         // |
	Caret        Type = "CARET"        // ^
	LShift       Type = "LSHIFT"       // <<
	RShift       Type = "RSHIFT"       // >>
	Equal        Type = "EQUAL"        // ==
	NotEqual     Type = "NOTEQUAL"     // !=
	StrictEqual  Type = "STRICTEQUAL"  // ===
	Less         Type = "LESS"         // <
	LessEqual    Type = "LESSEQUAL"    // <=
	Greater      Type = "GREATER"      // >
	GreaterEqual Type = "GREATEREQUAL" // >=
	Compare      Type = "COMPARE"      // <=>
	AndAnd       Type = "ANDAND"       // &&
	OrOr         Type = "OROR"         // ||
	Incr         Type = "INCR"         // ++
	Decr         Type = "DECR"         // --
	PlusEq       Type = "PLUSEQ"       // +=
	MinusEq      Type = "MINUSEQ"      // -=
	StarEq       Type = "STAREQ"       // *=
	SlashEq      Type = "SLASHEQ"      // /=
	PercentEq    Type = "PERCENTEQ"    // %=
	AmpEq        Type = "AMPEQ"        // &=
	PipeEq       Type = "PIPEEQ"       // |=
	CaretEq      Type = "CARETEQ"      // ^=
	LShiftEq     Type = "LSHIFTEQ"     // <<=
	RShiftEq     Type = "RSHIFTEQ"     // >>=
	Arrow        Type = "ARROW"        // =>
	Question     Type = "QUESTION"     // ?
	Ellipsis     Type = "ELLIPSIS"     // ...

	// delimiters
	Comma     Type = "COMMA"
	Colon     Type = "COLON"
	Semicolon Type = "SEMICOLON"
	Dot       Type = "DOT"
	LParen    Type = "LPAREN"
	RParen    Type = "RPAREN"
	LBrace    Type = "LBRACE"
	RBrace    Type = "RBRACE"
	LBracket  Type = "LBRACKET"
	RBracket  Type = "RBRACKET"
)

var keywords = map[string]Type{
	"var":         Var,
	"const":       Const,
	"function":    Function,
	"return":      Return,
	"if":          If,
	"else":        Else,
	"while":       While,
	"do":          Do,
	"for":         For,
	"break":       Break,
	"continue":    Continue,
	"true":        True,
	"false":       False,
	"null":        Null,
	"none":        None,
	"this":        This,
	"global":      Global,
	"typeof":      Typeof,
	"class":       Class,
	"constructor": Constructor,
	"struct":      Struct,
	"enum":        Enum,
	"int":         IntType,
	"float":       FloatType,
	"bool":        BoolType,
	"string":      StringType,
	"table":       TableType,
	"array":       ArrayType,
	"number":      NumberType,
}

// LookupIdent returns the keyword token type or Ident.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Ident
}

// IsTypeAnnotation reports whether t names a declaration type.
func IsTypeAnnotation(t Type) bool {
	switch t {
	case IntType, FloatType, BoolType, StringType, TableType, ArrayType, NumberType:
		return true
	default:
		return false
	}
}
